// Package session is the write-back cache for the four session slots that keep
// UI state (library snapshot, cursor, query, back-navigation snapshot) across
// restarts.
package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/mediasync/internal/library"
)

// Slot names one of the four session records.
type Slot string

const (
	SlotLibrary  Slot = "library"
	SlotCursor   Slot = "cursor"
	SlotQuery    Slot = "query"
	SlotPrevious Slot = "previous"
)

// AllSlots lists every slot in a fixed order.
var AllSlots = []Slot{SlotLibrary, SlotCursor, SlotQuery, SlotPrevious}

// ParseSlot validates a slot name.
func ParseSlot(s string) (Slot, bool) {
	switch Slot(strings.ToLower(strings.TrimSpace(s))) {
	case SlotLibrary:
		return SlotLibrary, true
	case SlotCursor:
		return SlotCursor, true
	case SlotQuery:
		return SlotQuery, true
	case SlotPrevious:
		return SlotPrevious, true
	}
	return "", false
}

// Record is the value of one slot. It is implemented by *LibraryRecord,
// *CursorRecord, *QueryRecord and *PreviousRecord.
type Record interface {
	Slot() Slot
	validate() error
}

// LibraryRecord is the last-known library listing and the file to reopen on restart.
type LibraryRecord struct {
	Items       []library.Item `json:"items"`
	InitialFile string         `json:"initial_file"`
}

// Slot implements Record.
func (*LibraryRecord) Slot() Slot { return SlotLibrary }

func (r *LibraryRecord) validate() error {
	return validateItems(r.Items)
}

// CursorRecord is the last focused position and scroll offset.
type CursorRecord struct {
	Index          int      `json:"index"`
	ScrollPosition *float64 `json:"scroll_position,omitempty"`
}

// Slot implements Record.
func (*CursorRecord) Slot() Slot { return SlotCursor }

// Any index is valid; readers fold it into range with library.Wrap.
func (r *CursorRecord) validate() error { return nil }

// QueryRecord is the last active search state. The first tag of TagFilter is
// the active tag.
type QueryRecord struct {
	TagFilter          []string `json:"tag_filter"`
	MostRecentTag      string   `json:"most_recent_tag"`
	MostRecentCategory string   `json:"most_recent_category"`
	TextFilter         string   `json:"text_filter"`
}

// Slot implements Record.
func (*QueryRecord) Slot() Slot { return SlotQuery }

func (r *QueryRecord) validate() error { return nil }

// ActiveTag returns the first tag of the filter, or "".
func (r *QueryRecord) ActiveTag() string {
	if r == nil || len(r.TagFilter) == 0 {
		return ""
	}
	return r.TagFilter[0]
}

// PreviousRecord is the snapshot for one level of back navigation.
type PreviousRecord struct {
	PreviousLibrary []library.Item `json:"previous_library"`
	PreviousCursor  int            `json:"previous_cursor"`
}

// Slot implements Record.
func (*PreviousRecord) Slot() Slot { return SlotPrevious }

func (r *PreviousRecord) validate() error {
	return validateItems(r.PreviousLibrary)
}

func validateItems(items []library.Item) error {
	for i, it := range items {
		if strings.TrimSpace(it.Path) == "" {
			return fmt.Errorf("item %d has an empty path", i)
		}
	}
	return nil
}

// Data is a snapshot of all four slots. A nil field is a slot that was never
// written (or was cleared). As an argument to SetMany it is a partial update:
// only non-nil fields are touched.
//
// Records reachable from a Data returned by the cache are shared with the
// cache and must be treated as read-only.
type Data struct {
	Library  *LibraryRecord  `json:"library,omitempty"`
	Cursor   *CursorRecord   `json:"cursor,omitempty"`
	Query    *QueryRecord    `json:"query,omitempty"`
	Previous *PreviousRecord `json:"previous,omitempty"`
}

// Get returns the record stored in slot, or nil.
func (d Data) Get(slot Slot) Record {
	switch slot {
	case SlotLibrary:
		if d.Library != nil {
			return d.Library
		}
	case SlotCursor:
		if d.Cursor != nil {
			return d.Cursor
		}
	case SlotQuery:
		if d.Query != nil {
			return d.Query
		}
	case SlotPrevious:
		if d.Previous != nil {
			return d.Previous
		}
	}
	return nil
}

// Slots returns the slots holding a value, in AllSlots order.
func (d Data) Slots() []Slot {
	var out []Slot
	for _, s := range AllSlots {
		if d.Get(s) != nil {
			out = append(out, s)
		}
	}
	return out
}

func (d *Data) put(rec Record) {
	switch r := rec.(type) {
	case *LibraryRecord:
		d.Library = r
	case *CursorRecord:
		d.Cursor = r
	case *QueryRecord:
		d.Query = r
	case *PreviousRecord:
		d.Previous = r
	}
}

func (d *Data) clear(slot Slot) {
	switch slot {
	case SlotLibrary:
		d.Library = nil
	case SlotCursor:
		d.Cursor = nil
	case SlotQuery:
		d.Query = nil
	case SlotPrevious:
		d.Previous = nil
	}
}

// cloneRecord deep-copies rec so later caller mutations cannot leak into the
// cache. A typed nil pointer returns nil.
func cloneRecord(rec Record) Record {
	switch r := rec.(type) {
	case *LibraryRecord:
		if r == nil {
			return nil
		}
		return &LibraryRecord{Items: library.CloneItems(r.Items), InitialFile: r.InitialFile}
	case *CursorRecord:
		if r == nil {
			return nil
		}
		out := &CursorRecord{Index: r.Index}
		if r.ScrollPosition != nil {
			out.ScrollPosition = library.Float(*r.ScrollPosition)
		}
		return out
	case *QueryRecord:
		if r == nil {
			return nil
		}
		out := *r
		if r.TagFilter != nil {
			out.TagFilter = append([]string(nil), r.TagFilter...)
		}
		return &out
	case *PreviousRecord:
		if r == nil {
			return nil
		}
		return &PreviousRecord{PreviousLibrary: library.CloneItems(r.PreviousLibrary), PreviousCursor: r.PreviousCursor}
	}
	return nil
}

// DecodeRecord parses the JSON value of slot. A JSON null decodes to (nil, nil).
func DecodeRecord(slot Slot, raw json.RawMessage) (Record, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var rec Record
	switch slot {
	case SlotLibrary:
		rec = &LibraryRecord{}
	case SlotCursor:
		rec = &CursorRecord{}
	case SlotQuery:
		rec = &QueryRecord{}
	case SlotPrevious:
		rec = &PreviousRecord{}
	default:
		return nil, fmt.Errorf("unknown slot %q", slot)
	}

	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", slot, err)
	}
	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", slot, err)
	}
	return rec, nil
}
