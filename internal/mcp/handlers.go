package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/mediasync/internal/config"
	"github.com/hpungsan/mediasync/internal/errors"
	"github.com/hpungsan/mediasync/internal/library"
	"github.com/hpungsan/mediasync/internal/ops"
	"github.com/hpungsan/mediasync/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	browser *ops.Browser
	cfg     *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(browser *ops.Browser, cfg *config.Config) *Handlers {
	return &Handlers{browser: browser, cfg: cfg}
}

// Request types for each tool

// ViewArgs are the projection settings shared by several tools.
type ViewArgs struct {
	Sort string `json:"sort,omitempty"`
	Mode string `json:"mode,omitempty"`
	Kind string `json:"kind,omitempty"`
	Seed uint64 `json:"seed,omitempty"`
}

func (v ViewArgs) options() ops.ViewOptions {
	return ops.ViewOptions{Sort: v.Sort, Mode: v.Mode, Kind: v.Kind, Seed: v.Seed}
}

// SessionGetRequest represents the arguments for session_get.
type SessionGetRequest struct {
	Slot string `json:"slot,omitempty"`
}

// SessionClearRequest represents the arguments for session_clear.
type SessionClearRequest struct {
	Slots []string `json:"slots,omitempty"`
}

// SessionExportRequest represents the arguments for session_export.
type SessionExportRequest struct {
	Path       string `json:"path,omitempty"`
	FlushFirst bool   `json:"flush_first,omitempty"`
}

// SessionImportRequest represents the arguments for session_import.
type SessionImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// LibraryLoadRequest represents the arguments for library_load.
type LibraryLoadRequest struct {
	ViewArgs
	Items       []library.Item `json:"items,omitempty"`
	Paths       []string       `json:"paths,omitempty"`
	Prefix      string         `json:"prefix,omitempty"`
	InitialFile string         `json:"initial_file,omitempty"`
}

// LibraryItemRequest represents the arguments for library_item.
type LibraryItemRequest struct {
	Path      string   `json:"path"`
	TimeStamp *float64 `json:"time_stamp,omitempty"`
}

// LibraryViewRequest represents the arguments for library_view.
type LibraryViewRequest struct {
	ViewArgs
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// LibraryQueryRequest represents the arguments for library_query.
type LibraryQueryRequest struct {
	Tags     *[]string `json:"tags,omitempty"`
	Text     *string   `json:"text,omitempty"`
	Category *string   `json:"category,omitempty"`
}

// CursorMoveRequest represents the arguments for cursor_move.
type CursorMoveRequest struct {
	ViewArgs
	Delta          *int     `json:"delta,omitempty"`
	Index          *int     `json:"index,omitempty"`
	ScrollPosition *float64 `json:"scroll_position,omitempty"`
}

// OrderDropRequest represents the arguments for order_drop.
type OrderDropRequest struct {
	ViewArgs
	Dragged             string   `json:"dragged"`
	DraggedTimeStamp    *float64 `json:"dragged_time_stamp,omitempty"`
	Target              string   `json:"target"`
	TargetTimeStamp     *float64 `json:"target_time_stamp,omitempty"`
	Side                string   `json:"side,omitempty"`
	PointerX            *float64 `json:"pointer_x,omitempty"`
	BoxLeft             *float64 `json:"box_left,omitempty"`
	BoxWidth            *float64 `json:"box_width,omitempty"`
	RenumberIfExhausted bool     `json:"renumber_if_exhausted,omitempty"`
}

// Handler implementations

// SessionGetOutput is the result of session_get for a single slot.
type SessionGetOutput struct {
	Slot    session.Slot   `json:"slot"`
	Present bool           `json:"present"`
	Value   session.Record `json:"value"`
	// Pending is set while a debounced write of the slot is scheduled.
	Pending bool `json:"pending"`
}

// HandleSessionGet handles the session_get tool call.
func (h *Handlers) HandleSessionGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	cache := h.browser.Cache()
	if input.Slot == "" {
		return successResult(cache.Data())
	}
	slot, ok := session.ParseSlot(input.Slot)
	if !ok {
		return errorResult(errors.NewUnknownSlot(input.Slot)), nil
	}
	rec, present := cache.Get(slot)
	return successResult(SessionGetOutput{Slot: slot, Present: present, Value: rec, Pending: cache.Pending(slot)})
}

// HandleSessionClear handles the session_clear tool call.
func (h *Handlers) HandleSessionClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	slots, err := parseSlots(input.Slots)
	if err != nil {
		return errorResult(err), nil
	}
	h.browser.ClearSession(slots...)

	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = string(s)
	}
	return successResult(map[string]any{"cleared": names})
}

// parseSlots validates slot names. No names means every slot.
func parseSlots(names []string) ([]session.Slot, error) {
	if len(names) == 0 {
		return append([]session.Slot(nil), session.AllSlots...), nil
	}
	slots := make([]session.Slot, 0, len(names))
	for _, name := range names {
		slot, ok := session.ParseSlot(name)
		if !ok {
			return nil, errors.NewUnknownSlot(name)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// HandleSessionFlush handles the session_flush tool call.
func (h *Handlers) HandleSessionFlush(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.browser.Cache().FlushAll(ctx); err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(map[string]any{"flushed": true})
}

// HandleSessionExport handles the session_export tool call.
func (h *Handlers) HandleSessionExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.browser.Export(ctx, ops.ExportInput{Path: input.Path, FlushFirst: input.FlushFirst})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionImport handles the session_import tool call.
func (h *Handlers) HandleSessionImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.browser.Import(ctx, ops.ImportInput{Path: input.Path, Mode: ops.ImportMode(input.Mode)})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryLoad handles the library_load tool call.
func (h *Handlers) HandleLibraryLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LibraryLoadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	items := input.Items
	for _, p := range input.Paths {
		items = append(items, library.Item{Path: p})
	}
	result, err := h.browser.LoadLibrary(ctx, ops.LoadInput{
		Items:       items,
		Prefix:      input.Prefix,
		InitialFile: input.InitialFile,
		View:        input.options(),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryBack handles the library_back tool call.
func (h *Handlers) HandleLibraryBack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ViewArgs](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.browser.Back(input.options())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryItem handles the library_item tool call.
func (h *Handlers) HandleLibraryItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LibraryItemRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.browser.Item(ctx, library.KeyOf(input.Path, input.TimeStamp))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryView handles the library_view tool call.
func (h *Handlers) HandleLibraryView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LibraryViewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.browser.View(ops.ViewInput{
		View:   input.options(),
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryQuery handles the library_query tool call.
func (h *Handlers) HandleLibraryQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LibraryQueryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	q := ops.QueryInput{Text: input.Text, Category: input.Category}
	if input.Tags != nil {
		q.Tags = *input.Tags
		if q.Tags == nil {
			q.Tags = []string{}
		}
	}
	return successResult(h.browser.SetQuery(q))
}

// HandleCursorMove handles the cursor_move tool call.
func (h *Handlers) HandleCursorMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CursorMoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if (input.Delta == nil) == (input.Index == nil) {
		return errorResult(errors.NewInvalidRequest("exactly one of delta or index is required")), nil
	}

	move := ops.MoveInput{View: input.options(), ScrollPosition: input.ScrollPosition}
	var result *ops.CursorOutput
	if input.Index != nil {
		move.Index = *input.Index
		result, err = h.browser.Jump(move)
	} else {
		move.Delta = *input.Delta
		result, err = h.browser.Move(move)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCursorCurrent handles the cursor_current tool call.
func (h *Handlers) HandleCursorCurrent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ViewArgs](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.browser.Current(input.options())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleOrderDrop handles the order_drop tool call.
func (h *Handlers) HandleOrderDrop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OrderDropRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	view := input.options()
	if view.Sort == "" {
		view.Sort = string(library.SortWeight)
	}
	drop := ops.DropInput{
		View:                view,
		Dragged:             library.KeyOf(input.Dragged, input.DraggedTimeStamp),
		Target:              library.KeyOf(input.Target, input.TargetTimeStamp),
		Side:                input.Side,
		RenumberIfExhausted: input.RenumberIfExhausted,
	}
	if input.PointerX != nil && input.BoxLeft != nil && input.BoxWidth != nil {
		drop.Geometry = &ops.Geometry{PointerX: *input.PointerX, BoxLeft: *input.BoxLeft, BoxWidth: *input.BoxWidth}
	}

	result, err := h.browser.Drop(ctx, drop)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleOrderRenumber handles the order_renumber tool call.
func (h *Handlers) HandleOrderRenumber(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.browser.Renumber(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are never exposed. A wrapped MediaError keeps the
// wrapper's context in its message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var mediaErr *errors.MediaError
	if stderrors.As(err, &mediaErr) && mediaErr.Code != errors.ErrInternal {
		message := mediaErr.Message
		if err != error(mediaErr) {
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    mediaErr.Code,
			"message": message,
			"status":  mediaErr.Status,
		}
		if mediaErr.Details != nil {
			errorObj["details"] = mediaErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
