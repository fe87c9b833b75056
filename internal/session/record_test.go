package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mediasync/internal/library"
)

func TestParseSlot(t *testing.T) {
	for _, s := range AllSlots {
		got, ok := ParseSlot(" " + string(s) + " ")
		require.True(t, ok)
		require.Equal(t, s, got)
	}
	_, ok := ParseSlot("scroll")
	require.False(t, ok)
}

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord(SlotLibrary, json.RawMessage(`{"items":[{"path":"a.jpg","weight":1.5}],"initial_file":"a.jpg"}`))
	require.NoError(t, err)
	lib := rec.(*LibraryRecord)
	require.Equal(t, "a.jpg", lib.InitialFile)
	require.Equal(t, 1.5, *lib.Items[0].Weight)

	rec, err = DecodeRecord(SlotCursor, json.RawMessage(`null`))
	require.NoError(t, err)
	require.Nil(t, rec)

	_, err = DecodeRecord(SlotPrevious, json.RawMessage(`{"previous_library":[{"path":"  "}]}`))
	require.Error(t, err)

	rec, err = DecodeRecord(SlotCursor, json.RawMessage(`{"index":-2}`))
	require.NoError(t, err)
	require.Equal(t, -2, rec.(*CursorRecord).Index)

	_, err = DecodeRecord(SlotQuery, json.RawMessage(`[1,2]`))
	require.Error(t, err)

	_, err = DecodeRecord(Slot("nope"), json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestData_GetAndSlots(t *testing.T) {
	d := Data{Cursor: &CursorRecord{Index: 1}, Previous: &PreviousRecord{}}
	require.Equal(t, []Slot{SlotCursor, SlotPrevious}, d.Slots())
	require.Nil(t, d.Get(SlotLibrary))
	require.Equal(t, SlotCursor, d.Get(SlotCursor).Slot())

	d.clear(SlotCursor)
	require.Equal(t, []Slot{SlotPrevious}, d.Slots())
}

func TestCloneRecord_Deep(t *testing.T) {
	q := &QueryRecord{TagFilter: []string{"a", "b"}}
	cl := cloneRecord(q).(*QueryRecord)
	q.TagFilter[0] = "z"
	require.Equal(t, "a", cl.TagFilter[0])

	prev := &PreviousRecord{PreviousLibrary: []library.Item{{Path: "p", Tags: []string{"t"}}}}
	pc := cloneRecord(prev).(*PreviousRecord)
	prev.PreviousLibrary[0].Tags[0] = "changed"
	require.Equal(t, "t", pc.PreviousLibrary[0].Tags[0])

	var nilCursor *CursorRecord
	require.Nil(t, cloneRecord(nilCursor))
}

func TestQueryRecord_ActiveTag(t *testing.T) {
	var q *QueryRecord
	require.Equal(t, "", q.ActiveTag())
	require.Equal(t, "first", (&QueryRecord{TagFilter: []string{"first", "second"}}).ActiveTag())
}
