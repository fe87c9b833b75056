package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/db"
	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/session"
)

// MaxSnapshotBytes bounds the size of an imported snapshot.
const MaxSnapshotBytes = 64 << 20

// ImportMode controls what happens to slots the snapshot does not carry.
type ImportMode string

const (
	ImportModeReplace ImportMode = "replace" // absent slots are cleared
	ImportModeMerge   ImportMode = "merge"   // absent slots are kept
)

// ImportInput contains parameters for Import.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: replace
}

// ImportOutput contains the result of Import.
type ImportOutput struct {
	Slots   []string `json:"slots"`
	Cleared []string `json:"cleared"`
	LoadID  uint64   `json:"load_id"`
}

// Import restores a snapshot written by Export. Every slot is validated
// before anything is applied; one bad slot rejects the whole file. Library
// items are recorded in the item store so later reorders can be committed.
func (b *Browser) Import(ctx context.Context, input ImportInput) (*ImportOutput, error) {
	mode := input.Mode
	if mode == "" {
		mode = ImportModeReplace
	}
	if mode != ImportModeReplace && mode != ImportModeMerge {
		return nil, errors.NewInvalidRequest("mode must be one of: replace, merge")
	}
	if err := ValidatePath(input.Path, PathCheckRead, b.cfg); err != nil {
		return nil, err
	}

	file, err := openSnapshot(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := parseSnapshot(io.LimitReader(file, MaxSnapshotBytes))
	if err != nil {
		return nil, err
	}

	if b.db != nil && data.Library != nil {
		if err := db.UpsertItems(ctx, b.db, data.Library.Items); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := &ImportOutput{Slots: []string{}, Cleared: []string{}}
	var absent []session.Slot
	for _, slot := range session.AllSlots {
		if data.Get(slot) != nil {
			out.Slots = append(out.Slots, string(slot))
		} else if mode == ImportModeReplace {
			absent = append(absent, slot)
			out.Cleared = append(out.Cleared, string(slot))
		}
	}
	b.cache.ClearKeys(absent...)
	b.cache.SetMany(data)
	out.LoadID = b.nextLoad()

	b.logger.Info("session imported",
		zap.String("path", input.Path),
		zap.String("mode", string(mode)),
		zap.Strings("slots", out.Slots),
	)
	return out, nil
}

func parseSnapshot(r io.Reader) (session.Data, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return session.Data{}, errors.NewInvalidRequest(fmt.Sprintf("invalid snapshot JSON: %v", err))
	}
	if !snap.MediasyncExport {
		return session.Data{}, errors.NewInvalidRequest("not a mediasync session snapshot")
	}
	if major, _, _ := strings.Cut(snap.SchemaVersion, "."); major != "1" {
		return session.Data{}, errors.NewInvalidRequest(fmt.Sprintf("unsupported snapshot schema version %q", snap.SchemaVersion))
	}

	var data session.Data
	for name, raw := range snap.Slots {
		slot, ok := session.ParseSlot(string(name))
		if !ok {
			return session.Data{}, errors.NewUnknownSlot(string(name))
		}
		rec, err := session.DecodeRecord(slot, raw)
		if err != nil {
			return session.Data{}, errors.NewInvalidRequest(fmt.Sprintf("invalid %s slot: %v", slot, err))
		}
		if rec != nil {
			data = withRecord(data, rec)
		}
	}
	return data, nil
}

func withRecord(d session.Data, rec session.Record) session.Data {
	switch r := rec.(type) {
	case *session.LibraryRecord:
		d.Library = r
	case *session.CursorRecord:
		d.Cursor = r
	case *session.QueryRecord:
		d.Query = r
	case *session.PreviousRecord:
		d.Previous = r
	}
	return d
}
