package library

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Projector memoizes Project.
//
// Entries are keyed on every input: the load id, the text filter, the filter
// settings, the sort key and a fingerprint of the raw library. A reload bumps
// the load id and a weight edit changes the fingerprint, so a stale projection
// is never served.
type Projector struct {
	memo *cache.Cache
}

// NewProjector creates a Projector whose entries expire after ttl.
// A non-positive ttl keeps entries until Reset.
func NewProjector(ttl time.Duration) *Projector {
	if ttl <= 0 {
		return &Projector{memo: cache.New(cache.NoExpiration, 0)}
	}
	return &Projector{memo: cache.New(ttl, 2*ttl)}
}

// Project returns the memoized projection, computing it on a miss.
// The returned slice is a copy; callers may reorder it freely.
func (p *Projector) Project(loadID uint64, textFilter string, raw []Item, filter FilterConfig, sortKey SortKey) []Item {
	key := projectionKey(loadID, textFilter, raw, filter, sortKey)
	if v, ok := p.memo.Get(key); ok {
		return slices.Clone(v.([]Item))
	}
	out := Project(loadID, textFilter, raw, filter, sortKey)
	p.memo.SetDefault(key, out)
	return slices.Clone(out)
}

// Len returns the number of memoized projections.
func (p *Projector) Len() int {
	return p.memo.ItemCount()
}

// Reset drops every memoized projection.
func (p *Projector) Reset() {
	p.memo.Flush()
}

func projectionKey(loadID uint64, textFilter string, raw []Item, filter FilterConfig, sortKey SortKey) string {
	mode := filter.Mode
	if mode == "" {
		mode = FilterAnd
	}
	kind := filter.Kind
	if kind == "" {
		kind = KindAll
	}
	return fmt.Sprintf("%d|%016x|%q|%s|%s|%d|%q|%s",
		loadID,
		Fingerprint(raw),
		strings.ToLower(strings.TrimSpace(textFilter)),
		mode,
		kind,
		filter.Seed,
		strings.Join(NormalizeTags(filter.Tags), "\x00"),
		sortKey,
	)
}
