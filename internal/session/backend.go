package session

import (
	"context"
	"encoding/json"
)

// Raw maps slots to their JSON encoding. A JSON null value means the slot is
// empty and any persisted value should be removed.
type Raw map[Slot]json.RawMessage

// Backend is the durable key/value store the cache writes through to.
// It is read once at startup and written asynchronously afterwards.
type Backend interface {
	// GetAll returns every persisted slot. Missing slots are simply absent.
	GetAll(ctx context.Context) (Raw, error)
	// Set durably writes one slot.
	Set(ctx context.Context, slot Slot, value json.RawMessage) error
	// SetMany durably writes several slots as one unit.
	SetMany(ctx context.Context, values Raw) error
	// Clear removes every slot.
	Clear(ctx context.Context) error
	// ClearKeys removes the given slots.
	ClearKeys(ctx context.Context, slots []Slot) error
	// Flush does not return until every prior write is stable.
	Flush(ctx context.Context) error
}

var jsonNull = json.RawMessage("null")
