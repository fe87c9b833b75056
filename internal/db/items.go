package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
)

const itemColumns = `path, has_stamp, time_stamp, weight, elo, tags_json`

// UpsertItems stores items. For an item that is already stored, a non-nil
// weight, elo or tag list replaces the stored one and a missing one keeps it.
// The original added_at is kept on update, so ListItems keeps first-seen order.
func UpsertItems(ctx context.Context, db *sql.DB, items []library.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO media_items (`+itemColumns+`, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, has_stamp, time_stamp) DO UPDATE SET
			weight = COALESCE(excluded.weight, media_items.weight),
			elo = COALESCE(excluded.elo, media_items.elo),
			tags_json = COALESCE(excluded.tags_json, media_items.tags_json),
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, it := range items {
		if it.Path == "" {
			return errors.NewInvalidRequest("item path is required")
		}
		tagsJSON, err := encodeTags(it.Tags)
		if err != nil {
			return errors.NewInternal(err)
		}
		hasStamp, stamp := stampColumns(it.Key())
		if _, err := stmt.ExecContext(ctx,
			it.Path, hasStamp, stamp, toNullFloat(it.Weight), toNullFloat(it.Elo), tagsJSON,
			now, now,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListItems returns stored items in first-seen order. A non-empty prefix
// restricts the result to paths starting with it.
func ListItems(ctx context.Context, db *sql.DB, prefix string) ([]library.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM media_items`
	var args []any
	if prefix != "" {
		// length() counts characters, as substr does.
		query += ` WHERE substr(path, 1, length(?)) = ?`
		args = append(args, prefix, prefix)
	}
	query += ` ORDER BY added_at, rowid`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items := []library.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return items, nil
}

// GetItem returns the item with the given identity.
func GetItem(ctx context.Context, db *sql.DB, key library.Key) (*library.Item, error) {
	hasStamp, stamp := stampColumns(key)
	row := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM media_items WHERE path = ? AND has_stamp = ? AND time_stamp = ?`,
		key.Path, hasStamp, stamp,
	)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("item", key.Path)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return it, nil
}

// UpdateWeight sets the weight of one item.
func UpdateWeight(ctx context.Context, db *sql.DB, key library.Key, weight float64) error {
	hasStamp, stamp := stampColumns(key)
	res, err := db.ExecContext(ctx,
		`UPDATE media_items SET weight = ?, updated_at = ? WHERE path = ? AND has_stamp = ? AND time_stamp = ?`,
		weight, time.Now().Unix(), key.Path, hasStamp, stamp,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("item", key.Path)
	}
	return nil
}

// UpdateWeights applies several weight updates in one transaction. Updates
// for items that are not stored are skipped; the number of rows changed is
// returned.
func UpdateWeights(ctx context.Context, db *sql.DB, updates []library.WeightUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE media_items SET weight = ?, updated_at = ? WHERE path = ? AND has_stamp = ? AND time_stamp = ?`)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	changed := 0
	for _, u := range updates {
		hasStamp, stamp := stampColumns(u.Key)
		res, err := stmt.ExecContext(ctx, u.Weight, now, u.Key.Path, hasStamp, stamp)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		changed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return changed, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*library.Item, error) {
	var (
		it       library.Item
		hasStamp bool
		stamp    float64
		weight   sql.NullFloat64
		elo      sql.NullFloat64
		tagsJSON sql.NullString
	)
	if err := s.Scan(&it.Path, &hasStamp, &stamp, &weight, &elo, &tagsJSON); err != nil {
		return nil, err
	}
	if hasStamp {
		it.TimeStamp = library.Float(stamp)
	}
	if weight.Valid {
		it.Weight = library.Float(weight.Float64)
	}
	if elo.Valid {
		it.Elo = library.Float(elo.Float64)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &it.Tags); err != nil {
			return nil, err
		}
	}
	return &it, nil
}

func stampColumns(k library.Key) (bool, float64) {
	if !k.HasStamp {
		return false, 0
	}
	return true, k.Stamp
}

func encodeTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
