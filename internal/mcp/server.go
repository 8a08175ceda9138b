package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/momentum/internal/config"
	"github.com/hpungsan/momentum/internal/journal"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"entry", "version", "mirror", "journal"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"entry_create": {
		def:     entryCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryCreate },
	},
	"entry_get": {
		def:     entryGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryGet },
	},
	"entry_update": {
		def:     entryUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryUpdate },
	},
	"entry_delete": {
		def:     entryDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryDelete },
	},
	"entry_list": {
		def:     entryListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryList },
	},
	"entry_search": {
		def:     entrySearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntrySearch },
	},
	"entry_title": {
		def:     entryTitleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryTitle },
	},
	"entry_render": {
		def:     entryRenderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntryRender },
	},
	"version_list": {
		def:     versionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVersionList },
	},
	"version_get": {
		def:     versionGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVersionGet },
	},
	"version_changes": {
		def:     versionChangesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVersionChanges },
	},
	"version_restore": {
		def:     versionRestoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleVersionRestore },
	},
	"mirror_repair": {
		def:     mirrorRepairToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMirrorRepair },
	},
	"mirror_verify": {
		def:     mirrorVerifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMirrorVerify },
	},
	"journal_export": {
		def:     journalExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalExport },
	},
	"journal_import": {
		def:     journalImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalImport },
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
// Tool names follow the pattern "type_action" (e.g., "entry_create" → "entry").
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

// NewServer creates a new MCP server with journal tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(c *journal.Coordinator, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"momentum",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(c)

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
func Run(c *journal.Coordinator, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(c, cfg, version))
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
