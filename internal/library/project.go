package library

import (
	"cmp"
	"encoding/binary"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SortKey selects the order of a projection.
type SortKey string

const (
	// SortNone keeps library order.
	SortNone SortKey = "none"
	// SortName orders by path, then time stamp.
	SortName SortKey = "name"
	// SortWeight orders by ascending manual weight; missing weights sort first.
	SortWeight SortKey = "weight"
	// SortElo orders by descending elo; missing scores sort last.
	SortElo SortKey = "elo"
	// SortShuffle orders by a seeded hash of the item identity.
	SortShuffle SortKey = "shuffle"
)

// ParseSortKey validates a sort key. Empty means SortNone.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNone:
		return SortNone, true
	case SortName:
		return SortName, true
	case SortWeight:
		return SortWeight, true
	case SortElo:
		return SortElo, true
	case SortShuffle:
		return SortShuffle, true
	}
	return "", false
}

// FilterMode is how FilterConfig.Tags are combined.
type FilterMode string

const (
	// FilterAnd keeps items carrying every filter tag.
	FilterAnd FilterMode = "and"
	// FilterOr keeps items carrying at least one filter tag.
	FilterOr FilterMode = "or"
	// FilterExclusive keeps items whose tag set is exactly the filter set.
	FilterExclusive FilterMode = "exclusive"
)

// ParseFilterMode validates a filter mode. Empty means FilterAnd.
func ParseFilterMode(s string) (FilterMode, bool) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAnd:
		return FilterAnd, true
	case FilterOr:
		return FilterOr, true
	case FilterExclusive:
		return FilterExclusive, true
	}
	return "", false
}

// ParseKind validates a media kind filter. Empty means KindAll.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindAll:
		return KindAll, true
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	case KindAudio:
		return KindAudio, true
	}
	return "", false
}

// FilterConfig holds the non-text filter settings of a projection.
type FilterConfig struct {
	Tags []string   `json:"tags,omitempty"`
	Mode FilterMode `json:"mode,omitempty"`
	Kind Kind       `json:"kind,omitempty"`
	// Seed drives SortShuffle.
	Seed uint64 `json:"seed,omitempty"`
}

// Project returns the filtered and sorted view of raw.
//
// It is a pure function of its arguments: raw is never modified and the
// result is always a fresh slice. The leading load id does not influence the
// result; it is accepted so that every caller passes the same inputs a
// memoizing Projector keys on. Sorting is stable, so equal keys keep library order.
func Project(_ uint64, textFilter string, raw []Item, filter FilterConfig, sortKey SortKey) []Item {
	text := strings.ToLower(strings.TrimSpace(textFilter))
	tags := NormalizeTags(filter.Tags)
	mode := filter.Mode
	if mode == "" {
		mode = FilterAnd
	}

	out := make([]Item, 0, len(raw))
	for _, it := range raw {
		if text != "" && !strings.Contains(strings.ToLower(it.Path), text) {
			continue
		}
		if filter.Kind != "" && filter.Kind != KindAll && KindOf(it.Path) != filter.Kind {
			continue
		}
		if len(tags) > 0 && !matchTags(it.Tags, tags, mode) {
			continue
		}
		out = append(out, it)
	}

	sortItems(out, sortKey, filter.Seed)
	return out
}

func matchTags(itemTags, want []string, mode FilterMode) bool {
	have := make(map[string]bool, len(itemTags))
	for _, t := range itemTags {
		have[NormalizeTag(t)] = true
	}
	switch mode {
	case FilterOr:
		for _, t := range want {
			if have[t] {
				return true
			}
		}
		return false
	case FilterExclusive:
		if len(have) != len(want) {
			return false
		}
		fallthrough
	default:
		for _, t := range want {
			if !have[t] {
				return false
			}
		}
		return true
	}
}

func sortItems(items []Item, key SortKey, seed uint64) {
	switch key {
	case SortName:
		slices.SortStableFunc(items, compareName)
	case SortWeight:
		slices.SortStableFunc(items, func(a, b Item) int {
			return compareOptional(a.Weight, b.Weight)
		})
	case SortElo:
		slices.SortStableFunc(items, func(a, b Item) int {
			return compareOptional(b.Elo, a.Elo)
		})
	case SortShuffle:
		keys := make(map[Key]uint64, len(items))
		for _, it := range items {
			keys[it.Key()] = shuffleKey(seed, it)
		}
		slices.SortStableFunc(items, func(a, b Item) int {
			return cmp.Compare(keys[a.Key()], keys[b.Key()])
		})
	}
}

func compareName(a, b Item) int {
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	return compareOptional(a.TimeStamp, b.TimeStamp)
}

// compareOptional orders nil before any value.
func compareOptional(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

func shuffleKey(seed uint64, it Item) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	_, _ = d.Write(buf[:])
	writeKey(d, it.Key())
	return d.Sum64()
}

func writeKey(d *xxhash.Digest, k Key) {
	_, _ = d.WriteString(k.Path)
	_, _ = d.Write([]byte{0})
	if k.HasStamp {
		writeFloat(d, k.Stamp)
	}
	_, _ = d.Write([]byte{0})
}

func writeFloat(d *xxhash.Digest, f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, _ = d.Write(buf[:])
}

func writeOptional(d *xxhash.Digest, f *float64) {
	if f == nil {
		_, _ = d.Write([]byte{0})
		return
	}
	_, _ = d.Write([]byte{1})
	writeFloat(d, *f)
}

// Fingerprint hashes every field of raw that can change a projection.
// Two libraries with equal fingerprints project identically under equal settings.
func Fingerprint(raw []Item) uint64 {
	d := xxhash.New()
	for _, it := range raw {
		writeKey(d, it.Key())
		writeOptional(d, it.Weight)
		writeOptional(d, it.Elo)
		for _, t := range it.Tags {
			_, _ = d.WriteString(t)
			_, _ = d.Write([]byte{0})
		}
		_, _ = d.Write([]byte{0xff})
	}
	return d.Sum64()
}
