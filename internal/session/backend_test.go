package session

import (
	"context"
	"encoding/json"
	"sync"
)

// fakeBackend is an in-memory Backend that records every call.
type fakeBackend struct {
	mu     sync.Mutex
	stored Raw
	ops    []backendOp

	getErr   error
	setErr   error
	clearErr error
	flushErr error

	// gate, when non-nil, blocks GetAll until closed.
	gate     chan struct{}
	getCalls int
	flushes  int
}

type backendOp struct {
	kind   string // set, setMany, clear, clearKeys
	values Raw
	slots  []Slot
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stored: Raw{}}
}

func (f *fakeBackend) GetAll(ctx context.Context) (Raw, error) {
	f.mu.Lock()
	f.getCalls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(Raw, len(f.stored))
	for k, v := range f.stored {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

func (f *fakeBackend) Set(_ context.Context, slot Slot, value json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, backendOp{kind: "set", values: Raw{slot: value}})
	if f.setErr != nil {
		return f.setErr
	}
	f.put(slot, value)
	return nil
}

func (f *fakeBackend) SetMany(_ context.Context, values Raw) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, backendOp{kind: "setMany", values: values})
	if f.setErr != nil {
		return f.setErr
	}
	for s, v := range values {
		f.put(s, v)
	}
	return nil
}

func (f *fakeBackend) put(slot Slot, value json.RawMessage) {
	if string(value) == "null" {
		delete(f.stored, slot)
		return
	}
	f.stored[slot] = value
}

func (f *fakeBackend) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, backendOp{kind: "clear"})
	if f.clearErr != nil {
		return f.clearErr
	}
	f.stored = Raw{}
	return nil
}

func (f *fakeBackend) ClearKeys(_ context.Context, slots []Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, backendOp{kind: "clearKeys", slots: slots})
	if f.clearErr != nil {
		return f.clearErr
	}
	for _, s := range slots {
		delete(f.stored, s)
	}
	return nil
}

func (f *fakeBackend) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func (f *fakeBackend) opCount(kinds ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.ops {
		for _, k := range kinds {
			if op.kind == k {
				n++
			}
		}
	}
	return n
}

func (f *fakeBackend) writes() []backendOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backendOp
	for _, op := range f.ops {
		if op.kind == "set" || op.kind == "setMany" {
			out = append(out, op)
		}
	}
	return out
}

func (f *fakeBackend) storedValue(slot Slot) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.stored[slot]
	return v, ok
}
