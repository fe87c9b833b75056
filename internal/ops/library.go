package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/mediasync/internal/db"
	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/session"
)

// LoadInput contains parameters for LoadLibrary.
type LoadInput struct {
	// Items is the new library. When empty, the library is read from the
	// item store instead, restricted to Prefix.
	Items       []library.Item
	Prefix      string
	InitialFile string
	View        ViewOptions
}

// LoadOutput contains the result of LoadLibrary and Back.
type LoadOutput struct {
	LoadID  uint64        `json:"load_id"`
	Count   int           `json:"count"`
	Cursor  int           `json:"cursor"`
	Current *library.Item `json:"current,omitempty"`
	// HasPrevious reports whether Back can be called.
	HasPrevious bool `json:"has_previous"`
}

// LoadLibrary replaces the cached library. The outgoing library and cursor
// become the back-navigation snapshot, and the cursor moves to InitialFile
// (or the first item). All slots change in one batched write.
//
// Given items are recorded in the item store; stored weights, elo scores and
// tags fill in whatever the given items leave unset.
func (b *Browser) LoadLibrary(ctx context.Context, input LoadInput) (*LoadOutput, error) {
	vs, err := input.View.parse()
	if err != nil {
		return nil, err
	}

	items, err := b.resolveItems(ctx, input)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	update := session.Data{
		Library: &session.LibraryRecord{Items: items, InitialFile: input.InitialFile},
	}
	if old := b.cache.Library(); old != nil && len(old.Items) > 0 {
		update.Previous = &session.PreviousRecord{
			PreviousLibrary: old.Items,
			PreviousCursor:  b.cursorIndex(),
		}
	}

	// The cursor indexes the projection the new library will be shown in.
	loadID := b.nextLoad()
	text := ""
	filter := vs.filter
	if q := b.cache.Query(); q != nil {
		filter.Tags = q.TagFilter
		text = q.TextFilter
	}
	projection := b.projector.Project(loadID, text, items, filter, vs.sort)
	cursor := 0
	if input.InitialFile != "" {
		for i, it := range projection {
			if it.Path == input.InitialFile {
				cursor = i
				break
			}
		}
	}
	update.Cursor = &session.CursorRecord{Index: cursor}
	b.cache.SetMany(update)

	b.logger.Info("library loaded",
		zap.Uint64("load_id", loadID),
		zap.Int("items", len(items)),
		zap.Int("visible", len(projection)),
		zap.Int("cursor", cursor),
	)

	out := &LoadOutput{
		LoadID:      loadID,
		Count:       len(items),
		Cursor:      cursor,
		HasPrevious: b.cache.Previous() != nil,
	}
	if it, ok := library.Resolve(projection, cursor); ok {
		out.Current = itemPtr(it)
	}
	return out, nil
}

func (b *Browser) resolveItems(ctx context.Context, input LoadInput) ([]library.Item, error) {
	if len(input.Items) == 0 {
		if b.db == nil {
			return nil, errors.NewInvalidRequest("items are required")
		}
		return db.ListItems(ctx, b.db, input.Prefix)
	}

	for _, it := range input.Items {
		if it.Path == "" {
			return nil, errors.NewInvalidRequest("item path is required")
		}
	}
	items := library.CloneItems(input.Items)
	for i := range items {
		items[i].Tags = library.NormalizeTags(items[i].Tags)
	}
	if b.db == nil {
		return items, nil
	}

	if err := db.UpsertItems(ctx, b.db, items); err != nil {
		return nil, err
	}
	stored, err := db.ListItems(ctx, b.db, "")
	if err != nil {
		return nil, err
	}
	byKey := make(map[library.Key]library.Item, len(stored))
	for _, it := range stored {
		byKey[it.Key()] = it
	}
	for i, it := range items {
		if s, ok := byKey[it.Key()]; ok {
			items[i] = s
		}
	}
	return items, nil
}

// Back restores the back-navigation snapshot into the library and cursor
// slots and clears it. There is one level of history.
func (b *Browser) Back(view ViewOptions) (*LoadOutput, error) {
	vs, err := view.parse()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.cache.Previous()
	if prev == nil {
		return nil, errors.NewNotFound("previous library", "back")
	}

	b.cache.SetMany(session.Data{
		Library: &session.LibraryRecord{Items: prev.PreviousLibrary},
		Cursor:  &session.CursorRecord{Index: prev.PreviousCursor},
	})
	b.cache.ClearKeys(session.SlotPrevious)
	loadID := b.nextLoad()

	b.logger.Info("library restored",
		zap.Uint64("load_id", loadID),
		zap.Int("items", len(prev.PreviousLibrary)),
		zap.Int("cursor", prev.PreviousCursor),
	)

	out := &LoadOutput{
		LoadID: loadID,
		Count:  len(prev.PreviousLibrary),
		Cursor: prev.PreviousCursor,
	}
	projection := b.project(vs)
	if it, ok := library.Resolve(projection, prev.PreviousCursor); ok {
		out.Cursor = library.Wrap(prev.PreviousCursor, len(projection))
		out.Current = itemPtr(it)
	}
	return out, nil
}

// ViewOutput is one page of the current projection.
type ViewOutput struct {
	LoadID  uint64         `json:"load_id"`
	Items   []library.Item `json:"items"`
	Total   int            `json:"total"`
	Offset  int            `json:"offset"`
	Cursor  int            `json:"cursor"`
	Current *library.Item  `json:"current,omitempty"`
	Sort    string         `json:"sort"`
}

// Page limits for View.
const (
	DefaultViewLimit = 50
	MaxViewLimit     = 500
)

// ViewInput contains parameters for View.
type ViewInput struct {
	View   ViewOptions
	Limit  int
	Offset int
}

// View returns a page of the cached library as currently filtered and sorted.
// The cursor is folded into range.
func (b *Browser) View(input ViewInput) (*ViewOutput, error) {
	vs, err := input.View.parse()
	if err != nil {
		return nil, err
	}
	if input.Offset < 0 {
		return nil, errors.NewInvalidRequest("offset must not be negative")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultViewLimit
	}
	if limit > MaxViewLimit {
		limit = MaxViewLimit
	}

	projection := b.project(vs)
	out := &ViewOutput{
		LoadID: b.loadID.Load(),
		Items:  []library.Item{},
		Total:  len(projection),
		Offset: input.Offset,
		Sort:   string(vs.sort),
	}
	if input.Offset < len(projection) {
		end := min(input.Offset+limit, len(projection))
		out.Items = projection[input.Offset:end]
	}
	if len(projection) > 0 {
		out.Cursor = library.Wrap(b.cursorIndex(), len(projection))
		out.Current = itemPtr(projection[out.Cursor])
	}
	return out, nil
}

// Item returns the stored record of one item. An item the store does not
// know yet, because it came from a session that predates the store, is served
// from the cached library.
func (b *Browser) Item(ctx context.Context, key library.Key) (*library.Item, error) {
	if key.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if b.db != nil {
		it, err := db.GetItem(ctx, b.db, key)
		if !errors.Is(err, errors.ErrNotFound) {
			return it, err
		}
	}
	if lib := b.cache.Library(); lib != nil {
		if idx := library.IndexOf(lib.Items, key); idx >= 0 {
			return itemPtr(lib.Items[idx].Clone()), nil
		}
	}
	return nil, errors.NewNotFound("item", key.Path)
}
