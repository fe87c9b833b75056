package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hpungsan/mediasync/internal/library"
)

func fastIntervals() Intervals {
	return Intervals{
		Library:  60 * time.Millisecond,
		Cursor:   20 * time.Millisecond,
		Query:    40 * time.Millisecond,
		Previous: 60 * time.Millisecond,
	}
}

func newTestCache(t *testing.T, b Backend) *Cache {
	t.Helper()
	c := New(b, fastIntervals(), zaptest.NewLogger(t))
	c.Init(context.Background())
	// Cancel timers before the test logger goes away.
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func observedCache(b Backend) (*Cache, *observer.ObservedLogs) {
	core, logs := observer.New(zap.WarnLevel)
	return New(b, fastIntervals(), zap.New(core)), logs
}

func decodeCursor(t *testing.T, raw json.RawMessage) CursorRecord {
	t.Helper()
	var cur CursorRecord
	require.NoError(t, json.Unmarshal(raw, &cur))
	return cur
}

func sampleData() Data {
	return Data{
		Library: &LibraryRecord{
			Items: []library.Item{
				{Path: "/m/a.jpg", Weight: library.Float(1)},
				{Path: "/m/b.mp4", TimeStamp: library.Float(12.5), Elo: library.Float(1400)},
			},
			InitialFile: "/m/a.jpg",
		},
		Cursor: &CursorRecord{Index: 1, ScrollPosition: library.Float(320)},
		Query: &QueryRecord{
			TagFilter:          []string{"beach", "sunset"},
			MostRecentTag:      "sunset",
			MostRecentCategory: "places",
			TextFilter:         "2024",
		},
		Previous: &PreviousRecord{
			PreviousLibrary: []library.Item{{Path: "/old/x.png"}},
			PreviousCursor:  4,
		},
	}
}

func TestGet_EmptyBeforeWrite(t *testing.T) {
	c := newTestCache(t, newFakeBackend())

	for _, s := range AllSlots {
		rec, ok := c.Get(s)
		require.False(t, ok, "slot %s", s)
		require.Nil(t, rec, "slot %s", s)
	}
	require.Nil(t, c.Cursor())
	require.Empty(t, c.Data().Slots())
}

func TestSet_ReadYourWrites(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.Set(&CursorRecord{Index: 7})

	rec, ok := c.Get(SlotCursor)
	require.True(t, ok)
	require.Equal(t, 7, rec.(*CursorRecord).Index)
	require.Equal(t, 0, b.opCount("set", "setMany"), "write must be deferred")
	require.True(t, c.Pending(SlotCursor))
}

func TestSet_CoalescesToLatestValue(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.Set(&CursorRecord{Index: 1})
	c.Set(&CursorRecord{Index: 2})
	require.Equal(t, 2, c.Cursor().Index)

	require.Eventually(t, func() bool { return b.opCount("set") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * fastIntervals().Cursor)

	writes := b.writes()
	require.Len(t, writes, 1, "superseded value must never be written")
	require.Equal(t, 2, decodeCursor(t, writes[0].values[SlotCursor]).Index)
	require.False(t, c.Pending(SlotCursor))
}

func TestSet_IsolatedFromCallerMutation(t *testing.T) {
	c := newTestCache(t, newFakeBackend())

	rec := &LibraryRecord{Items: []library.Item{{Path: "a", Weight: library.Float(1)}}}
	c.Set(rec)
	rec.Items[0].Path = "mutated"
	*rec.Items[0].Weight = 99

	got := c.Library()
	require.Equal(t, "a", got.Items[0].Path)
	require.Equal(t, 1.0, *got.Items[0].Weight)
}

func TestSet_NilRecordIgnored(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	var cur *CursorRecord
	c.Set(cur)
	c.Set(nil)

	_, ok := c.Get(SlotCursor)
	require.False(t, ok)
	require.False(t, c.Pending(SlotCursor))
}

func TestSetMany_SingleBatchAfterLongestInterval(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	start := time.Now()
	c.SetMany(Data{
		Cursor: &CursorRecord{Index: 3},
		Query:  &QueryRecord{TextFilter: "cats"},
	})

	require.Equal(t, 3, c.Cursor().Index)
	require.Equal(t, "cats", c.Query().TextFilter)

	require.Eventually(t, func() bool { return b.opCount("setMany") == 1 }, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), fastIntervals().Query, "batch delay is the max of its slots")

	writes := b.writes()
	require.Len(t, writes, 1)
	require.Contains(t, writes[0].values, SlotCursor)
	require.Contains(t, writes[0].values, SlotQuery)
}

func TestSetMany_CancelsPendingSlotTimers(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.Set(&CursorRecord{Index: 1})
	c.SetMany(Data{Cursor: &CursorRecord{Index: 2}, Query: &QueryRecord{TextFilter: "q"}})

	require.Eventually(t, func() bool { return b.opCount("setMany") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * fastIntervals().Query)

	require.Equal(t, 0, b.opCount("set"), "per-slot timer should have been replaced by the batch")
	raw, ok := b.storedValue(SlotCursor)
	require.True(t, ok)
	require.Equal(t, 2, decodeCursor(t, raw).Index)
}

func TestSetMany_RestartedBatchKeepsLongestInterval(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	start := time.Now()
	c.SetMany(Data{Library: &LibraryRecord{Items: []library.Item{{Path: "/m/a.jpg"}}}})
	c.SetMany(Data{Cursor: &CursorRecord{Index: 0}})

	require.Eventually(t, func() bool { return b.opCount("setMany") == 1 }, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), fastIntervals().Library, "library slot flushed on the cursor interval")

	writes := b.writes()
	require.Len(t, writes, 1)
	require.Contains(t, writes[0].values, SlotLibrary)
	require.Contains(t, writes[0].values, SlotCursor)
}

func TestSetMany_EmptyIsNoop(t *testing.T) {
	c := newTestCache(t, newFakeBackend())
	c.SetMany(Data{})
	require.False(t, c.Pending(SlotCursor))
}

func TestClearKeys_CancelsSlotInPendingBatch(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.SetMany(Data{
		Cursor: &CursorRecord{Index: 9},
		Query:  &QueryRecord{TextFilter: "Y"},
	})
	c.ClearKeys(SlotCursor)

	_, ok := c.Get(SlotCursor)
	require.False(t, ok)
	require.False(t, c.Pending(SlotCursor))
	require.True(t, c.Pending(SlotQuery))

	require.Eventually(t, func() bool { return b.opCount("setMany") == 1 }, time.Second, 5*time.Millisecond)
	c.Wait()

	writes := b.writes()
	require.Len(t, writes, 1)
	require.NotContains(t, writes[0].values, SlotCursor)
	require.Contains(t, writes[0].values, SlotQuery)

	_, ok = b.storedValue(SlotCursor)
	require.False(t, ok)
	raw, ok := b.storedValue(SlotQuery)
	require.True(t, ok)
	require.JSONEq(t, `{"tag_filter":null,"most_recent_tag":"","most_recent_category":"","text_filter":"Y"}`, string(raw))
}

func TestClearKeys_ClearingWholeBatchCancelsIt(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.SetMany(Data{Cursor: &CursorRecord{Index: 1}})
	c.ClearKeys(SlotCursor)
	c.Wait()

	time.Sleep(3 * fastIntervals().Cursor)
	require.Equal(t, 0, b.opCount("set", "setMany"))
	require.Equal(t, 1, b.opCount("clearKeys"))
}

func TestClear_RemovesEverything(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.SetMany(sampleData())
	require.NoError(t, c.FlushAll(context.Background()))

	c.Clear()
	require.Empty(t, c.Data().Slots())
	c.Wait()

	require.Equal(t, 1, b.opCount("clear"))
	for _, s := range AllSlots {
		_, ok := b.storedValue(s)
		require.False(t, ok, "slot %s still persisted", s)
	}
}

func TestClear_SetAgainBeforeFlushSurvives(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.Set(&CursorRecord{Index: 1})
	c.Clear()
	c.Set(&CursorRecord{Index: 5})
	require.NoError(t, c.FlushAll(context.Background()))
	c.Wait()

	raw, ok := b.storedValue(SlotCursor)
	require.True(t, ok, "a value set after the clear must not be deleted by it")
	require.Equal(t, 5, decodeCursor(t, raw).Index)
}

func TestClear_DeleteFailureIsLogged(t *testing.T) {
	b := newFakeBackend()
	b.clearErr = errors.New("disk gone")
	c, logs := observedCache(b)
	c.Init(context.Background())

	c.Set(&QueryRecord{TextFilter: "x"})
	c.ClearKeys(SlotQuery)
	c.Wait()

	require.Equal(t, 1, logs.FilterMessage("session delete failed").Len())
	_, ok := c.Get(SlotQuery)
	require.False(t, ok)
}

func TestFlushAll_RoundTrip(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.SetMany(sampleData())
	c.Set(&CursorRecord{Index: 2})
	before := c.Data()

	require.NoError(t, c.FlushAll(context.Background()))
	require.Equal(t, 1, b.flushes)
	for _, s := range AllSlots {
		require.False(t, c.Pending(s), "slot %s still pending after flush", s)
	}

	// Simulated restart.
	restarted := newTestCache(t, b)
	if diff := cmp.Diff(before, restarted.Data()); diff != "" {
		t.Errorf("restart snapshot mismatch (-before +after):\n%s", diff)
	}

	// Canceled timers must not write after the flush.
	time.Sleep(2 * fastIntervals().Library)
	require.Equal(t, 1, b.opCount("set", "setMany"))
}

func TestFlushAll_RoundTripNegativeCursor(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(t, b)

	c.Set(&CursorRecord{Index: -1})
	require.NoError(t, c.FlushAll(context.Background()))

	restarted := newTestCache(t, b)
	require.NotNil(t, restarted.Cursor())
	require.Equal(t, -1, restarted.Cursor().Index)
}

func TestFlushAll_WritesEmptySlotsAsNull(t *testing.T) {
	b := newFakeBackend()
	b.stored[SlotPrevious] = json.RawMessage(`{"previous_library":[],"previous_cursor":1}`)
	c := New(b, fastIntervals(), nil)
	c.Init(context.Background())
	c.ClearKeys(SlotPrevious)
	c.Wait()

	c.Set(&CursorRecord{Index: 1})
	require.NoError(t, c.FlushAll(context.Background()))

	writes := b.writes()
	require.Len(t, writes, 1)
	require.Len(t, writes[0].values, len(AllSlots))
	require.Equal(t, "null", string(writes[0].values[SlotLibrary]))
}

func TestFlushAll_ReturnsAndLogsBackendError(t *testing.T) {
	b := newFakeBackend()
	b.setErr = errors.New("read-only filesystem")
	c, logs := observedCache(b)
	c.Init(context.Background())

	c.Set(&CursorRecord{Index: 4})
	err := c.FlushAll(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, logs.FilterMessage("session flush write failed").Len())

	// Memory stays authoritative.
	require.Equal(t, 4, c.Cursor().Index)
}

func TestWriteFailure_KeepsMemory(t *testing.T) {
	b := newFakeBackend()
	b.setErr = errors.New("locked")
	c, logs := observedCache(b)
	c.Init(context.Background())

	c.Set(&QueryRecord{TextFilter: "kept"})
	require.Eventually(t, func() bool { return b.opCount("set") == 1 }, time.Second, 5*time.Millisecond)
	c.Wait()

	require.Equal(t, "kept", c.Query().TextFilter)
	require.Equal(t, 1, logs.FilterMessage("session write failed").Len())
}

func TestInit_LoadsPersistedSlots(t *testing.T) {
	b := newFakeBackend()
	b.stored[SlotCursor] = json.RawMessage(`{"index":12,"scroll_position":40.5}`)
	b.stored[SlotQuery] = json.RawMessage(`{"tag_filter":["dogs"],"text_filter":""}`)

	c := newTestCache(t, b)
	require.True(t, c.Initialized())
	require.Equal(t, 12, c.Cursor().Index)
	require.Equal(t, 40.5, *c.Cursor().ScrollPosition)
	require.True(t, c.HasPersistedTags())
	require.False(t, c.HasPersistedTextFilter())
	require.False(t, c.HasPersistedLibrary())
	require.Equal(t, "dogs", c.Query().ActiveTag())
}

func TestInit_MalformedSlotsTreatedAsAbsent(t *testing.T) {
	b := newFakeBackend()
	b.stored[SlotCursor] = json.RawMessage(`{"index":`)
	b.stored[SlotLibrary] = json.RawMessage(`{"items":[{"path":""}],"initial_file":""}`)
	b.stored[SlotQuery] = json.RawMessage(`{"tag_filter":[],"text_filter":"ok"}`)
	b.stored[SlotPrevious] = json.RawMessage(`null`)

	c, logs := observedCache(b)
	c.Init(context.Background())

	require.True(t, c.Initialized())
	require.Nil(t, c.Cursor())
	require.Nil(t, c.Library())
	require.Nil(t, c.Previous())
	require.Equal(t, "ok", c.Query().TextFilter)
	require.Equal(t, 2, logs.FilterMessage("discarding malformed session slot").Len())
}

func TestInit_BackendFailureIsNonFatal(t *testing.T) {
	b := newFakeBackend()
	b.getErr = errors.New("database is locked")

	c, logs := observedCache(b)
	c.Init(context.Background())

	require.True(t, c.Initialized())
	require.Empty(t, c.Data().Slots())
	require.Equal(t, 1, logs.FilterMessage("session load failed; starting empty").Len())

	// Idempotent: no second load.
	c.Init(context.Background())
	require.Equal(t, 1, b.getCalls)
}

func TestInit_SingleFlight(t *testing.T) {
	b := newFakeBackend()
	b.gate = make(chan struct{})
	b.stored[SlotCursor] = json.RawMessage(`{"index":3}`)
	c := New(b, fastIntervals(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Init(context.Background())
			if c.Cursor() == nil || c.Cursor().Index != 3 {
				t.Errorf("caller returned before load completed")
			}
		}()
	}

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.getCalls >= 1
	}, time.Second, time.Millisecond)
	close(b.gate)
	wg.Wait()

	require.Equal(t, 1, b.getCalls)
}

func TestInit_WritesDuringLoadWin(t *testing.T) {
	b := newFakeBackend()
	b.gate = make(chan struct{})
	b.stored[SlotCursor] = json.RawMessage(`{"index":1}`)
	b.stored[SlotQuery] = json.RawMessage(`{"text_filter":"persisted"}`)
	c := New(b, fastIntervals(), nil)
	t.Cleanup(c.Wait)

	done := make(chan struct{})
	go func() {
		c.Init(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.getCalls == 1
	}, time.Second, time.Millisecond)

	c.Set(&CursorRecord{Index: 50})
	close(b.gate)
	<-done

	require.Equal(t, 50, c.Cursor().Index, "in-memory write must not be overwritten by the load")
	require.Equal(t, "persisted", c.Query().TextFilter)
}

func TestClose_FlushesPendingWrites(t *testing.T) {
	b := newFakeBackend()
	c := New(b, Intervals{Library: time.Hour, Cursor: time.Hour, Query: time.Hour, Previous: time.Hour}, nil)
	c.Init(context.Background())

	c.Set(&CursorRecord{Index: 8})
	require.NoError(t, c.Close(context.Background()))

	raw, ok := b.storedValue(SlotCursor)
	require.True(t, ok)
	require.Equal(t, 8, decodeCursor(t, raw).Index)
}

func TestHasPersisted(t *testing.T) {
	c := newTestCache(t, newFakeBackend())

	require.False(t, c.HasPersistedLibrary())
	c.Set(&LibraryRecord{})
	require.False(t, c.HasPersistedLibrary(), "empty library does not count")
	c.Set(&LibraryRecord{Items: []library.Item{{Path: "a"}}})
	require.True(t, c.HasPersistedLibrary())

	c.Set(&QueryRecord{TextFilter: "x"})
	require.True(t, c.HasPersistedTextFilter())
	require.False(t, c.HasPersistedTags())
}
