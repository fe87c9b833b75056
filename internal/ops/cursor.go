package ops

import (
	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/session"
)

// CursorOutput describes the focused item.
type CursorOutput struct {
	Index          int           `json:"index"`
	Total          int           `json:"total"`
	Item           *library.Item `json:"item,omitempty"`
	ScrollPosition *float64      `json:"scroll_position,omitempty"`
}

// Current resolves the stored cursor against the current projection.
// An empty projection yields no item.
func (b *Browser) Current(view ViewOptions) (*CursorOutput, error) {
	vs, err := view.parse()
	if err != nil {
		return nil, err
	}
	projection := b.project(vs)
	out := &CursorOutput{Total: len(projection)}
	if c := b.cache.Cursor(); c != nil {
		out.ScrollPosition = c.ScrollPosition
	}
	if it, ok := library.Resolve(projection, b.cursorIndex()); ok {
		out.Index = library.Wrap(b.cursorIndex(), len(projection))
		out.Item = itemPtr(it)
	}
	return out, nil
}

// MoveInput contains parameters for Move and Jump.
type MoveInput struct {
	View ViewOptions
	// Delta is added to the cursor by Move; Index is the absolute target of
	// Jump. Both wrap around the projection.
	Delta int
	Index int
	// ScrollPosition, when set, is stored with the cursor.
	ScrollPosition *float64
}

// Move advances the cursor by Delta, wrapping at either end.
func (b *Browser) Move(input MoveInput) (*CursorOutput, error) {
	return b.moveTo(input, func(cur int) int { return cur + input.Delta })
}

// Jump moves the cursor to Index, wrapping out-of-range values.
func (b *Browser) Jump(input MoveInput) (*CursorOutput, error) {
	return b.moveTo(input, func(int) int { return input.Index })
}

func (b *Browser) moveTo(input MoveInput, target func(cur int) int) (*CursorOutput, error) {
	vs, err := input.View.parse()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	projection := b.project(vs)
	if len(projection) == 0 {
		return nil, errors.NewNotFound("item", "empty library")
	}

	// Fold the stored cursor first so a cursor left over from a longer
	// projection moves relative to what is on screen.
	cur := library.Wrap(b.cursorIndex(), len(projection))
	index := library.Wrap(target(cur), len(projection))

	rec := &session.CursorRecord{Index: index, ScrollPosition: input.ScrollPosition}
	if rec.ScrollPosition == nil {
		if c := b.cache.Cursor(); c != nil && index == cur {
			rec.ScrollPosition = c.ScrollPosition
		}
	}
	b.cache.Set(rec)
	b.logger.Debug("cursor moved", zap.Int("from", cur), zap.Int("to", index))

	return &CursorOutput{
		Index:          index,
		Total:          len(projection),
		Item:           itemPtr(projection[index]),
		ScrollPosition: rec.ScrollPosition,
	}, nil
}
