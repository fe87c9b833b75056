package ops

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/session"
)

// SnapshotSchemaVersion is written into every snapshot header.
const SnapshotSchemaVersion = "1.0"

// Snapshot is the on-disk form of an exported session.
type Snapshot struct {
	MediasyncExport bool                             `json:"_mediasync_export"`
	SchemaVersion   string                           `json:"schema_version"`
	ExportedAt      int64                            `json:"exported_at"`
	Slots           map[session.Slot]json.RawMessage `json:"slots"`
}

// ExportInput contains parameters for Export.
type ExportInput struct {
	Path string // optional, default: ~/.mediasync/exports/session-<ulid>.json
	// FlushFirst writes pending debounced slots to the backend before exporting.
	FlushFirst bool
}

// ExportOutput contains the result of Export.
type ExportOutput struct {
	Path       string   `json:"path"`
	Slots      []string `json:"slots"`
	ExportedAt int64    `json:"exported_at"`
}

// Export writes the in-memory session to a snapshot file. The file is
// replaced atomically, so a failed export leaves an existing file intact.
func (b *Browser) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	path := input.Path
	if path == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, defaultSnapshotName(now))
	}
	if err := ValidatePath(path, PathCheckWrite, b.cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	if input.FlushFirst {
		if err := b.cache.FlushAll(ctx); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	data := b.cache.Data()
	snap := Snapshot{
		MediasyncExport: true,
		SchemaVersion:   SnapshotSchemaVersion,
		ExportedAt:      now.Unix(),
		Slots:           make(map[session.Slot]json.RawMessage),
	}
	out := &ExportOutput{Path: path, Slots: []string{}, ExportedAt: snap.ExportedAt}
	for _, slot := range data.Slots() {
		raw, err := json.Marshal(data.Get(slot))
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		snap.Slots[slot] = raw
		out.Slots = append(out.Slots, string(slot))
	}

	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(append(buf, '\n'))); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to write export: %w", err))
	}
	// atomic.WriteFile leaves new files with the temp file's mode.
	_ = os.Chmod(path, 0600)

	b.logger.Info("session exported", zap.String("path", path), zap.Strings("slots", out.Slots))
	return out, nil
}

func defaultSnapshotName(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	return "session-" + id.String() + SnapshotExt
}
