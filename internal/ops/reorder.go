package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/db"
	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/session"
)

// Geometry is the pointer and target box at release time.
type Geometry struct {
	PointerX float64 `json:"pointer_x"`
	BoxLeft  float64 `json:"box_left"`
	BoxWidth float64 `json:"box_width"`
}

// DropInput contains parameters for Drop. The side comes from Side when set,
// otherwise from Geometry.
type DropInput struct {
	View     ViewOptions
	Dragged  library.Key
	Target   library.Key
	Side     string
	Geometry *Geometry
	// RenumberIfExhausted renumbers the library and retries once when the
	// gap at the drop position can no longer be split.
	RenumberIfExhausted bool
}

// DropOutput contains the result of Drop.
type DropOutput struct {
	Weight float64          `json:"weight"`
	Side   library.DropSide `json:"side"`
	// Index is the dragged item's position in the projection after the drop.
	Index int `json:"index"`
	// PrecisionExhausted is set when the new weight could not be placed
	// strictly between its neighbors. Renumber restores room.
	PrecisionExhausted bool `json:"precision_exhausted"`
	Renumbered         bool `json:"renumbered"`
}

// Drop moves the dragged item next to the target by giving it a weight
// between the target and the target's neighbor on the drop side. Only the
// dragged item's weight changes. The projection is derived again at drop
// time, so weights edited since the last view are honored.
func (b *Browser) Drop(ctx context.Context, input DropInput) (*DropOutput, error) {
	vs, err := input.View.parse()
	if err != nil {
		return nil, err
	}
	if vs.sort != library.SortWeight {
		return nil, errors.NewWrongSort(string(vs.sort))
	}
	if input.Dragged.Path == "" || input.Target.Path == "" {
		return nil, errors.NewInvalidRequest("dragged and target are required")
	}
	if input.Dragged == input.Target {
		return nil, errors.NewInvalidRequest("cannot drop an item onto itself")
	}

	var side library.DropSide
	switch {
	case input.Side != "":
		s, ok := library.ParseDropSide(input.Side)
		if !ok {
			return nil, errors.NewInvalidRequest("side must be left or right")
		}
		side = s
	case input.Geometry != nil:
		side = library.DropSideAt(input.Geometry.PointerX, input.Geometry.BoxLeft, input.Geometry.BoxWidth)
	default:
		return nil, errors.NewInvalidRequest("side or geometry is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	lib := b.cache.Library()
	if lib == nil || library.IndexOf(lib.Items, input.Dragged) < 0 {
		return nil, errors.NewNotFound("item", input.Dragged.Path)
	}

	projection := b.project(vs)
	lo, hi, ok := library.ReorderBounds(projection, input.Target, side)
	if !ok {
		return nil, errors.NewNotFound("item", input.Target.Path)
	}

	out := &DropOutput{Side: side}
	if library.GapExhausted(lo, hi) && input.RenumberIfExhausted {
		if _, err := b.renumberLocked(ctx); err != nil {
			return nil, err
		}
		out.Renumbered = true
		projection = b.project(vs)
		lo, hi, _ = library.ReorderBounds(projection, input.Target, side)
	}
	out.Weight = (lo + hi) / 2
	out.PrecisionExhausted = library.GapExhausted(lo, hi)

	if err := b.commitWeight(ctx, input.Dragged, out.Weight); err != nil {
		return nil, err
	}
	lib = b.cache.Library()
	if lib == nil {
		return nil, errors.NewNotFound("item", input.Dragged.Path)
	}
	b.cache.Set(&session.LibraryRecord{
		Items:       library.ApplyWeights(lib.Items, []library.WeightUpdate{{Key: input.Dragged, Weight: out.Weight}}),
		InitialFile: lib.InitialFile,
	})

	after := b.project(vs)
	out.Index = library.IndexOf(after, input.Dragged)
	if out.Index >= 0 {
		b.cache.Set(&session.CursorRecord{Index: out.Index})
	}

	fields := []zap.Field{
		zap.String("dragged", input.Dragged.Path),
		zap.String("target", input.Target.Path),
		zap.String("side", string(side)),
		zap.Float64("weight", out.Weight),
	}
	if out.PrecisionExhausted {
		b.logger.Warn("reorder gap exhausted; renumber to restore spacing", fields...)
	} else {
		b.logger.Debug("item reordered", fields...)
	}
	return out, nil
}

// commitWeight writes a weight to the item store, adding the item if the
// library came from a session that predates the store.
func (b *Browser) commitWeight(ctx context.Context, key library.Key, weight float64) error {
	if b.db == nil {
		return nil
	}
	err := db.UpdateWeight(ctx, b.db, key, weight)
	if errors.Is(err, errors.ErrNotFound) {
		lib := b.cache.Library()
		if lib == nil {
			return err
		}
		idx := library.IndexOf(lib.Items, key)
		if idx < 0 {
			return err
		}
		it := lib.Items[idx].Clone()
		it.Weight = library.Float(weight)
		return db.UpsertItems(ctx, b.db, []library.Item{it})
	}
	return err
}

// RenumberOutput contains the result of Renumber.
type RenumberOutput struct {
	Count int `json:"count"`
	// Stored is the number of item store rows updated.
	Stored int `json:"stored"`
}

// Renumber gives the whole library the weights 1..n in weight order. Relative
// order is unchanged; the gaps between neighbors are restored to 1.
func (b *Browser) Renumber(ctx context.Context) (*RenumberOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renumberLocked(ctx)
}

func (b *Browser) renumberLocked(ctx context.Context) (*RenumberOutput, error) {
	lib := b.cache.Library()
	if lib == nil || len(lib.Items) == 0 {
		return &RenumberOutput{}, nil
	}

	ordered := library.Project(b.loadID.Load(), "", lib.Items, library.FilterConfig{}, library.SortWeight)
	updates := library.Renumber(ordered)

	out := &RenumberOutput{Count: len(updates)}
	if b.db != nil {
		n, err := db.UpdateWeights(ctx, b.db, updates)
		if err != nil {
			return nil, err
		}
		out.Stored = n
	}
	b.cache.Set(&session.LibraryRecord{
		Items:       library.ApplyWeights(lib.Items, updates),
		InitialFile: lib.InitialFile,
	})

	b.logger.Info("library renumbered", zap.Int("items", out.Count), zap.Int("stored", out.Stored))
	return out, nil
}
