package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/mediasync/internal/logging"
)

// Cache is the in-memory mirror of the session slots.
//
// Memory is authoritative: Get never touches the backend and always observes
// the latest Set. Writes reach the backend after a per-slot quiet period
// (debounce with coalescing), or immediately on FlushAll. Backend failures
// are logged and never change what Get returns.
//
// Lock order is writeMu before mu. mu guards memory and the debounce table and
// is never held across backend I/O; writeMu serializes backend writes so they
// land in the order their snapshots were taken.
type Cache struct {
	backend   Backend
	intervals Intervals
	logger    *zap.Logger

	mu          sync.Mutex
	data        Data
	initialized bool
	touched     map[Slot]bool // slots written or cleared before Init finished
	timers      debounceTable

	active int // background writes and deletes in progress, guarded by mu
	idle   *sync.Cond

	writeMu sync.Mutex
	init    singleflight.Group
}

// New creates a cache over backend. A nil logger discards log output.
func New(backend Backend, intervals Intervals, logger *zap.Logger) *Cache {
	c := &Cache{
		backend:   backend,
		intervals: intervals,
		logger:    logging.OrNop(logger).Named("session"),
		touched:   make(map[Slot]bool),
		timers:    newDebounceTable(),
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Init loads the persisted slots once. Concurrent callers share the same
// load. A backend failure leaves the slots empty and is only logged; the cache
// is marked initialized either way. Malformed slots are treated as absent.
// Slots set or cleared while the load was in flight keep their newer state.
func (c *Cache) Init(ctx context.Context) {
	if c.Initialized() {
		return
	}
	_, _, _ = c.init.Do("init", func() (any, error) {
		if c.Initialized() {
			return nil, nil
		}

		loaded := Data{}
		raw, err := c.backend.GetAll(ctx)
		if err != nil {
			c.logger.Warn("session load failed; starting empty", zap.Error(err))
		} else {
			loaded = c.decode(raw)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, s := range AllSlots {
			if c.touched[s] {
				continue
			}
			if rec := loaded.Get(s); rec != nil {
				c.data.put(rec)
			}
		}
		c.touched = make(map[Slot]bool)
		c.initialized = true
		c.logger.Debug("session loaded", zap.Int("slots", len(c.data.Slots())))
		return nil, nil
	})
}

func (c *Cache) decode(raw Raw) Data {
	var out Data
	for _, s := range AllSlots {
		value, ok := raw[s]
		if !ok {
			continue
		}
		rec, err := DecodeRecord(s, value)
		if err != nil {
			c.logger.Warn("discarding malformed session slot", zap.String("slot", string(s)), zap.Error(err))
			continue
		}
		if rec != nil {
			out.put(rec)
		}
	}
	return out
}

// Initialized reports whether Init has completed.
func (c *Cache) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Get returns the record in slot. The record is shared with the cache and
// must not be modified.
func (c *Cache) Get(slot Slot) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.data.Get(slot)
	return rec, rec != nil
}

// Data returns a snapshot of all slots. Records are shared with the cache and
// must not be modified.
func (c *Cache) Data() Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Library returns the library slot, or nil.
func (c *Cache) Library() *LibraryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Library
}

// Cursor returns the cursor slot, or nil.
func (c *Cache) Cursor() *CursorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Cursor
}

// Query returns the query slot, or nil.
func (c *Cache) Query() *QueryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Query
}

// Previous returns the previous slot, or nil.
func (c *Cache) Previous() *PreviousRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Previous
}

// HasPersistedLibrary reports whether a non-empty library snapshot is cached.
func (c *Cache) HasPersistedLibrary() bool {
	lib := c.Library()
	return lib != nil && len(lib.Items) > 0
}

// HasPersistedTextFilter reports whether a text filter is cached.
func (c *Cache) HasPersistedTextFilter() bool {
	q := c.Query()
	return q != nil && q.TextFilter != ""
}

// HasPersistedTags reports whether a tag filter is cached.
func (c *Cache) HasPersistedTags() bool {
	q := c.Query()
	return q != nil && len(q.TagFilter) > 0
}

// Set stores rec in its slot and (re)starts that slot's debounce timer. A
// write already pending for the slot is superseded: only the latest value is
// written. A nil record is ignored.
func (c *Cache) Set(rec Record) {
	rec = cloneRecord(rec)
	if rec == nil {
		return
	}
	slot := rec.Slot()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.put(rec)
	c.markTouched(slot)
	c.timers.schedule(slotKey(slot), c.intervals.For(slot), []Slot{slot}, c.fire)
}

// SetMany stores every non-nil record of partial and schedules one batch
// write after the longest interval among them. Pending per-slot timers for the
// touched slots are canceled in favor of the batch. A batch that is still
// pending keeps its slots and is restarted after the longest interval of the
// merged set.
func (c *Cache) SetMany(partial Data) {
	var recs []Record
	for _, s := range AllSlots {
		if rec := cloneRecord(partial.Get(s)); rec != nil {
			recs = append(recs, rec)
		}
	}
	if len(recs) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	slots := make([]Slot, 0, len(recs))
	delay := c.intervals.For(recs[0].Slot())
	for _, rec := range recs {
		s := rec.Slot()
		c.data.put(rec)
		c.markTouched(s)
		c.timers.cancel(slotKey(s))
		if d := c.intervals.For(s); d > delay {
			delay = d
		}
		slots = append(slots, s)
	}
	// A restarted batch still owes its earlier slots their full interval.
	if pw, ok := c.timers.entries[batchKey]; ok {
		for s := range pw.slots {
			if d := c.intervals.For(s); d > delay {
				delay = d
			}
		}
	}
	c.timers.schedule(batchKey, delay, slots, c.fire)
}

// Clear empties every slot, cancels every pending write and deletes the
// persisted slots in the background.
func (c *Cache) Clear() {
	c.ClearKeys(AllSlots...)
}

// ClearKeys empties the given slots, cancels their pending writes (including
// their share of a pending batch) and deletes them from the backend in the
// background. A failed delete is logged.
func (c *Cache) ClearKeys(slots ...Slot) {
	if len(slots) == 0 {
		return
	}

	c.mu.Lock()
	for _, s := range slots {
		c.data.clear(s)
		c.markTouched(s)
		c.timers.drop(s)
	}
	c.active++
	c.mu.Unlock()

	go func() {
		defer c.done()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		// A slot set again since the clear must not be deleted after the fact.
		c.mu.Lock()
		var still []Slot
		for _, s := range slots {
			if c.data.Get(s) == nil {
				still = append(still, s)
			}
		}
		c.mu.Unlock()
		if len(still) == 0 {
			return
		}

		ctx := context.Background()
		var err error
		if len(still) == len(AllSlots) {
			err = c.backend.Clear(ctx)
		} else {
			err = c.backend.ClearKeys(ctx, still)
		}
		if err != nil {
			c.logger.Warn("session delete failed", zap.Strings("slots", slotNames(still)), zap.Error(err))
		}
	}()
}

// FlushAll cancels every pending write, writes the whole current snapshot
// (empty slots as null) and then waits for the backend's durability barrier.
// It runs synchronously so it is usable during shutdown. The error is also
// logged; memory is unaffected by it.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.timers.cancelAll()
	snapshot := c.data
	c.mu.Unlock()

	values := make(Raw, len(AllSlots))
	var errs []error
	for _, s := range AllSlots {
		rec := snapshot.Get(s)
		if rec == nil {
			values[s] = jsonNull
			continue
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			errs = append(errs, err)
			c.logger.Error("session encode failed", zap.String("slot", string(s)), zap.Error(err))
			continue
		}
		values[s] = encoded
	}

	if err := c.backend.SetMany(ctx, values); err != nil {
		c.logger.Warn("session flush write failed", zap.Error(err))
		errs = append(errs, err)
	}
	if err := c.backend.Flush(ctx); err != nil {
		c.logger.Warn("session flush barrier failed", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Wait blocks until background writes and deletes that have started are done.
func (c *Cache) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.active > 0 {
		c.idle.Wait()
	}
}

func (c *Cache) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
	if c.active == 0 {
		c.idle.Broadcast()
	}
}

// Close flushes everything and waits for background work.
func (c *Cache) Close(ctx context.Context) error {
	err := c.FlushAll(ctx)
	c.Wait()
	return err
}

// Pending reports whether slot has a debounced write scheduled, either on its
// own timer or as part of the pending batch.
func (c *Cache) Pending(slot Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timers.pending(slotKey(slot)) {
		return true
	}
	if pw, ok := c.timers.entries[batchKey]; ok {
		return pw.slots[slot]
	}
	return false
}

func (c *Cache) markTouched(s Slot) {
	if !c.initialized {
		c.touched[s] = true
	}
}

// fire runs on the timer goroutine.
func (c *Cache) fire(key timerKey, gen uint64) {
	c.mu.Lock()
	c.active++
	c.mu.Unlock()
	defer c.done()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	pw, ok := c.timers.take(key, gen)
	if !ok {
		c.mu.Unlock()
		return
	}
	recs := make(map[Slot]Record, len(pw.slots))
	for s := range pw.slots {
		if rec := c.data.Get(s); rec != nil {
			recs[s] = rec
		}
	}
	c.mu.Unlock()

	if len(recs) == 0 {
		return
	}

	values := make(Raw, len(recs))
	for s, rec := range recs {
		encoded, err := json.Marshal(rec)
		if err != nil {
			c.logger.Error("session encode failed", zap.String("slot", string(s)), zap.Error(err))
			continue
		}
		values[s] = encoded
	}
	if len(values) == 0 {
		return
	}

	ctx := context.Background()
	var err error
	if key.kind == slotTimer {
		err = c.backend.Set(ctx, key.slot, values[key.slot])
	} else {
		err = c.backend.SetMany(ctx, values)
	}
	if err != nil {
		c.logger.Warn("session write failed",
			zap.Strings("slots", slotNames(mapKeys(values))),
			zap.Error(err))
		return
	}
	c.logger.Debug("session written", zap.Strings("slots", slotNames(mapKeys(values))))
}

func mapKeys(values Raw) []Slot {
	out := make([]Slot, 0, len(values))
	for _, s := range AllSlots {
		if _, ok := values[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func slotNames(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}
