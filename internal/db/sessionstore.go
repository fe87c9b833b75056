package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/mediasync/internal/session"
)

// SessionStore persists session slots in the session_slots table.
// It implements session.Backend.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ session.Backend = (*SessionStore)(nil)

// NewSessionStore wraps an initialized database.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// SlotRow is one persisted slot with its revision metadata.
type SlotRow struct {
	Slot      session.Slot
	Value     json.RawMessage
	Rev       string
	UpdatedAt int64
}

// GetAll returns every persisted slot. Rows with an unknown slot name are skipped.
func (s *SessionStore) GetAll(ctx context.Context) (session.Raw, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make(session.Raw, len(rows))
	for _, r := range rows {
		out[r.Slot] = r.Value
	}
	return out, nil
}

// Rows returns the persisted slots with their revisions, in slot order.
func (s *SessionStore) Rows(ctx context.Context) ([]SlotRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot, value_json, rev, updated_at FROM session_slots ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("query session slots: %w", err)
	}
	defer rows.Close()

	var out []SlotRow
	for rows.Next() {
		var (
			name  string
			value string
			row   SlotRow
		)
		if err := rows.Scan(&name, &value, &row.Rev, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session slot: %w", err)
		}
		slot, ok := session.ParseSlot(name)
		if !ok {
			continue
		}
		row.Slot = slot
		row.Value = json.RawMessage(value)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session slots: %w", err)
	}
	return out, nil
}

// Set writes one slot. A JSON null deletes it.
func (s *SessionStore) Set(ctx context.Context, slot session.Slot, value json.RawMessage) error {
	return s.SetMany(ctx, session.Raw{slot: value})
}

// SetMany writes several slots in one transaction. JSON null values delete
// their slot.
func (s *SessionStore) SetMany(ctx context.Context, values session.Raw) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Unix()
	for slot, value := range values {
		if isNull(value) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM session_slots WHERE slot = ?`, string(slot)); err != nil {
				return fmt.Errorf("delete slot %s: %w", slot, err)
			}
			continue
		}
		rev, err := s.newRev()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_slots (slot, value_json, rev, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(slot) DO UPDATE SET
				value_json = excluded.value_json,
				rev = excluded.rev,
				updated_at = excluded.updated_at
		`, string(slot), string(value), rev, now)
		if err != nil {
			return fmt.Errorf("write slot %s: %w", slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Clear removes every slot.
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slots`); err != nil {
		return fmt.Errorf("clear session slots: %w", err)
	}
	return nil
}

// ClearKeys removes the given slots.
func (s *SessionStore) ClearKeys(ctx context.Context, slots []session.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	placeholders := make([]string, len(slots))
	args := make([]any, len(slots))
	for i, slot := range slots {
		placeholders[i] = "?"
		args[i] = string(slot)
	}
	query := `DELETE FROM session_slots WHERE slot IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear session slots: %w", err)
	}
	return nil
}

// Flush checkpoints the WAL into the main database file. Committed
// transactions are already durable; the checkpoint makes the file on disk
// self-contained.
func (s *SessionStore) Flush(ctx context.Context) error {
	var busy, logFrames, checkpointed int
	row := s.db.QueryRowContext(ctx, `PRAGMA wal_checkpoint(FULL)`)
	if err := row.Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("wal checkpoint: database busy (%d of %d frames checkpointed)", checkpointed, logFrames)
	}
	return nil
}

func (s *SessionStore) newRev() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
	if err != nil {
		return "", fmt.Errorf("generate revision: %w", err)
	}
	return id.String(), nil
}

func isNull(value json.RawMessage) bool {
	v := strings.TrimSpace(string(value))
	return v == "" || v == "null"
}
