package session

import "time"

// timerKind tags an entry of the debounce table.
type timerKind uint8

const (
	slotTimer timerKind = iota
	batchTimer
)

// timerKey is the fixed key space of the debounce table: one key per slot
// plus a single batch key shared by every SetMany.
type timerKey struct {
	kind timerKind
	slot Slot // zero for batchTimer
}

func slotKey(s Slot) timerKey { return timerKey{kind: slotTimer, slot: s} }

var batchKey = timerKey{kind: batchTimer}

// pendingWrite is a cancelable scheduled write.
type pendingWrite struct {
	timer *time.Timer
	gen   uint64
	slots map[Slot]bool
}

// debounceTable maps timer keys to their pending write. It is not safe for
// concurrent use; the cache guards it with its mutex.
type debounceTable struct {
	entries map[timerKey]*pendingWrite
	gen     uint64
}

func newDebounceTable() debounceTable {
	return debounceTable{entries: make(map[timerKey]*pendingWrite)}
}

// schedule (re)starts the timer for key. A pending timer for the same key is
// stopped and its slots carried over, so only the newest schedule fires.
// fire receives the generation it must present to take.
func (t *debounceTable) schedule(key timerKey, delay time.Duration, slots []Slot, fire func(timerKey, uint64)) {
	merged := make(map[Slot]bool, len(slots))
	if prev, ok := t.entries[key]; ok {
		prev.timer.Stop()
		for s := range prev.slots {
			merged[s] = true
		}
	}
	for _, s := range slots {
		merged[s] = true
	}

	t.gen++
	gen := t.gen
	t.entries[key] = &pendingWrite{
		timer: time.AfterFunc(delay, func() { fire(key, gen) }),
		gen:   gen,
		slots: merged,
	}
}

// take removes and returns the entry for key if it still carries gen.
// A superseded or canceled timer gets ok=false.
func (t *debounceTable) take(key timerKey, gen uint64) (*pendingWrite, bool) {
	pw, ok := t.entries[key]
	if !ok || pw.gen != gen {
		return nil, false
	}
	delete(t.entries, key)
	return pw, true
}

// cancel stops and removes the entry for key.
func (t *debounceTable) cancel(key timerKey) {
	if pw, ok := t.entries[key]; ok {
		pw.timer.Stop()
		delete(t.entries, key)
	}
}

// drop cancels slot's own timer and removes slot from the pending batch.
// An emptied batch is canceled.
func (t *debounceTable) drop(slot Slot) {
	t.cancel(slotKey(slot))
	if pw, ok := t.entries[batchKey]; ok {
		delete(pw.slots, slot)
		if len(pw.slots) == 0 {
			t.cancel(batchKey)
		}
	}
}

// cancelAll stops every pending timer.
func (t *debounceTable) cancelAll() {
	for key, pw := range t.entries {
		pw.timer.Stop()
		delete(t.entries, key)
	}
}

// pending reports whether key has a scheduled write.
func (t *debounceTable) pending(key timerKey) bool {
	_, ok := t.entries[key]
	return ok
}

// Intervals are the per-slot debounce delays.
type Intervals struct {
	Library  time.Duration
	Cursor   time.Duration
	Query    time.Duration
	Previous time.Duration
}

// DefaultIntervals returns the delays by access-frequency class: the cursor
// changes on every navigation and is tiny, the library and previous snapshots
// are large and change rarely.
func DefaultIntervals() Intervals {
	return Intervals{
		Library:  2 * time.Second,
		Cursor:   250 * time.Millisecond,
		Query:    time.Second,
		Previous: 2 * time.Second,
	}
}

// For returns the delay of slot.
func (iv Intervals) For(slot Slot) time.Duration {
	switch slot {
	case SlotLibrary:
		return iv.Library
	case SlotCursor:
		return iv.Cursor
	case SlotQuery:
		return iv.Query
	case SlotPrevious:
		return iv.Previous
	}
	return 0
}
