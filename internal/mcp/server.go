package mcp

import (
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/loom/internal/config"
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"chapter_list": {
		def:     chapterListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChapterList },
	},
	"chapter_fetch": {
		def:     chapterFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChapterFetch },
	},
	"draft_update": {
		def:     draftUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftUpdate },
	},
	"draft_generate": {
		def:     draftGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftGenerate },
	},
	"draft_export": {
		def:     draftExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftExport },
	},
	"job_history": {
		def:     jobHistoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobHistory },
	},
	"job_status": {
		def:     jobStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobStatus },
	},
}

// Deps holds what the tool handlers operate on.
type Deps struct {
	Store        *draft.Store
	Orchestrator *ops.Orchestrator
	Journal      *sql.DB
	Config       *config.Config
	ExportsDir   string
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

// NewServer creates a new MCP server with Loom tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"loom",
		version,
		server.WithToolCapabilities(true),
	)

	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	h := NewHandlers(deps)

	for _, name := range enabledTools(deps.Config.DisabledTools) {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// enabledTools returns the registered tool names minus the disabled ones.
func enabledTools(disabledNames []string) []string {
	disabled := make(map[string]bool, len(disabledNames))
	for _, name := range disabledNames {
		disabled[name] = true
	}

	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		if !disabled[name] {
			names = append(names, name)
		}
	}
	return names
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, version string) error {
	s := NewServer(deps, version)
	return server.ServeStdio(s)
}
