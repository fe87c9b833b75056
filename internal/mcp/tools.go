package mcp

import "github.com/mark3labs/mcp-go/mcp"

// viewOptions are shared by every tool that resolves against the projection.
func viewOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("sort",
			mcp.Description("Sort key: none (library order), name, weight, elo or shuffle"),
			mcp.Enum("none", "name", "weight", "elo", "shuffle"),
		),
		mcp.WithString("mode",
			mcp.Description("How the tag filter combines: and, or, exclusive"),
			mcp.Enum("and", "or", "exclusive"),
		),
		mcp.WithString("kind",
			mcp.Description("Media kind filter: all, image, video, audio"),
			mcp.Enum("all", "image", "video", "audio"),
		),
		mcp.WithNumber("seed", mcp.Description("Seed for the shuffle sort")),
	}
}

func withView(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append(opts, viewOptions()...)...)
}

var sessionGetToolDef = mcp.NewTool("session_get",
	mcp.WithDescription("Read the cached session. Returns one slot when slot is given, otherwise all four."),
	mcp.WithString("slot",
		mcp.Description("Slot to read"),
		mcp.Enum("library", "cursor", "query", "previous"),
	),
)

var sessionClearToolDef = mcp.NewTool("session_clear",
	mcp.WithDescription("Empty session slots and delete them from disk. Clears every slot when slots is omitted."),
	mcp.WithArray("slots",
		mcp.Description("Slots to clear"),
		mcp.Items(map[string]any{"type": "string", "enum": []string{"library", "cursor", "query", "previous"}}),
	),
)

var sessionFlushToolDef = mcp.NewTool("session_flush",
	mcp.WithDescription("Write every pending session change to disk now."),
)

var sessionExportToolDef = mcp.NewTool("session_export",
	mcp.WithDescription("Write the session to a JSON snapshot file."),
	mcp.WithString("path", mcp.Description("Destination (.json). Default: ~/.mediasync/exports/session-<id>.json")),
	mcp.WithBoolean("flush_first", mcp.Description("Flush pending writes before exporting")),
)

var sessionImportToolDef = mcp.NewTool("session_import",
	mcp.WithDescription("Restore the session from a snapshot written by session_export."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Snapshot file (.json)")),
	mcp.WithString("mode",
		mcp.Description("replace clears slots the snapshot lacks; merge keeps them"),
		mcp.Enum("replace", "merge"),
	),
)

var libraryLoadToolDef = withView("library_load",
	mcp.WithDescription("Replace the library. The current library and cursor become the back-navigation snapshot. "+
		"Pass items or paths; with neither, the library is read from the item store (optionally by prefix)."),
	mcp.WithArray("items",
		mcp.Description("Items with path and optional time_stamp, weight, elo, tags"),
		mcp.Items(map[string]any{"type": "object"}),
	),
	mcp.WithArray("paths",
		mcp.Description("Plain file paths"),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithString("prefix", mcp.Description("Path prefix when reading from the item store")),
	mcp.WithString("initial_file", mcp.Description("Path to focus after loading")),
)

var libraryBackToolDef = withView("library_back",
	mcp.WithDescription("Return to the library that was loaded before the current one."),
)

var libraryItemToolDef = mcp.NewTool("library_item",
	mcp.WithDescription("Look up one item's stored weight, elo and tags."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path of the item")),
	mcp.WithNumber("time_stamp", mcp.Description("Time stamp, for time-coded media")),
)

var libraryViewToolDef = withView("library_view",
	mcp.WithDescription("List the library as currently filtered and sorted, with the focused item."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 50, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
)

var libraryQueryToolDef = mcp.NewTool("library_query",
	mcp.WithDescription("Update the search state. Omitted fields keep their value; an empty tags list clears the tag filter."),
	mcp.WithArray("tags",
		mcp.Description("Tag filter; the first tag is the active tag"),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithString("text", mcp.Description("Case-insensitive path filter")),
	mcp.WithString("category", mcp.Description("Most recent tag category")),
)

var cursorMoveToolDef = withView("cursor_move",
	mcp.WithDescription("Move the cursor by delta, or jump to index. Both wrap around the view."),
	mcp.WithNumber("delta", mcp.Description("Relative move, e.g. 1 or -1")),
	mcp.WithNumber("index", mcp.Description("Absolute position")),
	mcp.WithNumber("scroll_position", mcp.Description("Scroll offset to store with the cursor")),
)

var cursorCurrentToolDef = withView("cursor_current",
	mcp.WithDescription("Return the focused item."),
)

var orderDropToolDef = withView("order_drop",
	mcp.WithDescription("Drop an item before or after a target in the weight-sorted view. "+
		"Only the dragged item's weight changes."),
	mcp.WithString("dragged", mcp.Required(), mcp.Description("Path of the dragged item")),
	mcp.WithNumber("dragged_time_stamp", mcp.Description("Time stamp of the dragged item, for time-coded media")),
	mcp.WithString("target", mcp.Required(), mcp.Description("Path of the item dropped on")),
	mcp.WithNumber("target_time_stamp", mcp.Description("Time stamp of the target item")),
	mcp.WithString("side", mcp.Description("left or right of the target"), mcp.Enum("left", "right")),
	mcp.WithNumber("pointer_x", mcp.Description("Pointer x at release, used with box_left and box_width when side is omitted")),
	mcp.WithNumber("box_left", mcp.Description("Target box left edge")),
	mcp.WithNumber("box_width", mcp.Description("Target box width")),
	mcp.WithBoolean("renumber_if_exhausted", mcp.Description("Renumber the library first when the gap cannot be split")),
)

var orderRenumberToolDef = mcp.NewTool("order_renumber",
	mcp.WithDescription("Reassign weights 1..n in weight order, restoring room between neighbors."),
)
