// Package ops implements the browsing operations on top of the session cache,
// the projection provider and the media item store. CLI commands and MCP
// tools are thin wrappers around a Browser.
package ops

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/config"
	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/logging"
	"github.com/hpungsan/mediasync/internal/session"
)

// Browser drives a library session.
//
// Every operation that reads one slot and writes another holds mu, so two
// operations never interleave their read-modify-write sequences. Reads of
// the cache itself are lock-free from the Browser's point of view.
type Browser struct {
	cache     *session.Cache
	projector *library.Projector
	db        *sql.DB
	cfg       *config.Config
	logger    *zap.Logger

	loadID atomic.Uint64
	mu     sync.Mutex
}

// NewBrowser wires a Browser. The cache should already be initialized.
func NewBrowser(cache *session.Cache, database *sql.DB, cfg *config.Config, logger *zap.Logger) *Browser {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	b := &Browser{
		cache:     cache,
		projector: library.NewProjector(cfg.ProjectionCacheTTL()),
		db:        database,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("ops"),
	}
	// Start at 1 so the restored session is its own load.
	b.loadID.Store(1)
	return b
}

// Cache returns the session cache the Browser writes to.
func (b *Browser) Cache() *session.Cache { return b.cache }

// ClearSession empties the given slots, or every slot when none are given.
// It waits for any operation in progress, so a clear never lands between an
// operation's read of a slot and its write back.
func (b *Browser) ClearSession(slots ...session.Slot) {
	if len(slots) == 0 {
		slots = session.AllSlots
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.ClearKeys(slots...)
	b.logger.Debug("session cleared", zap.Int("slots", len(slots)))
}

// nextLoad starts a new load. Projections memoized for earlier loads can never
// be hit again, so they are dropped.
func (b *Browser) nextLoad() uint64 {
	if n := b.projector.Len(); n > 0 {
		b.projector.Reset()
		b.logger.Debug("projection memo reset", zap.Int("entries", n))
	}
	return b.loadID.Add(1)
}

// LoadID returns the current load id. It increases whenever a new library
// snapshot replaces the old one.
func (b *Browser) LoadID() uint64 { return b.loadID.Load() }

// ViewOptions selects how the cached library is projected. The text and tag
// filters come from the query slot; these are the per-view settings.
type ViewOptions struct {
	Sort string `json:"sort,omitempty"`
	Mode string `json:"mode,omitempty"`
	Kind string `json:"kind,omitempty"`
	Seed uint64 `json:"seed,omitempty"`
}

type viewSettings struct {
	sort   library.SortKey
	filter library.FilterConfig
}

func (o ViewOptions) parse() (viewSettings, error) {
	sortKey, ok := library.ParseSortKey(o.Sort)
	if !ok {
		return viewSettings{}, errors.NewInvalidRequest("sort must be one of: none, name, weight, elo, shuffle")
	}
	mode, ok := library.ParseFilterMode(o.Mode)
	if !ok {
		return viewSettings{}, errors.NewInvalidRequest("mode must be one of: and, or, exclusive")
	}
	kind, ok := library.ParseKind(o.Kind)
	if !ok {
		return viewSettings{}, errors.NewInvalidRequest("kind must be one of: all, image, video, audio")
	}
	return viewSettings{
		sort:   sortKey,
		filter: library.FilterConfig{Mode: mode, Kind: kind, Seed: o.Seed},
	}, nil
}

// project returns the ordered projection of the cached library under the
// cached query and the given settings.
func (b *Browser) project(vs viewSettings) []library.Item {
	lib := b.cache.Library()
	if lib == nil {
		return []library.Item{}
	}
	filter := vs.filter
	text := ""
	if q := b.cache.Query(); q != nil {
		filter.Tags = q.TagFilter
		text = q.TextFilter
	}
	return b.projector.Project(b.loadID.Load(), text, lib.Items, filter, vs.sort)
}

// cursorIndex returns the stored cursor, or 0.
func (b *Browser) cursorIndex() int {
	if c := b.cache.Cursor(); c != nil {
		return c.Index
	}
	return 0
}

func itemPtr(it library.Item) *library.Item {
	return &it
}
