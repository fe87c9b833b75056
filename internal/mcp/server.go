package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/mediasync/internal/config"
	"github.com/hpungsan/mediasync/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"session", "library", "cursor", "order"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"session_get": {
		def:     sessionGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionGet },
	},
	"session_clear": {
		def:     sessionClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionClear },
	},
	"session_flush": {
		def:     sessionFlushToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionFlush },
	},
	"session_export": {
		def:     sessionExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionExport },
	},
	"session_import": {
		def:     sessionImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionImport },
	},
	"library_load": {
		def:     libraryLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryLoad },
	},
	"library_back": {
		def:     libraryBackToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryBack },
	},
	"library_item": {
		def:     libraryItemToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryItem },
	},
	"library_view": {
		def:     libraryViewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryView },
	},
	"library_query": {
		def:     libraryQueryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryQuery },
	},
	"cursor_move": {
		def:     cursorMoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCursorMove },
	},
	"cursor_current": {
		def:     cursorCurrentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCursorCurrent },
	},
	"order_drop": {
		def:     orderDropToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOrderDrop },
	},
	"order_renumber": {
		def:     orderRenumberToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOrderRenumber },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "cursor_move" → "cursor").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the mediasync tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(browser *ops.Browser, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mediasync",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(browser, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(browser *ops.Browser, cfg *config.Config, version string) error {
	s := NewServer(browser, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
