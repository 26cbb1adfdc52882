package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Request types for each tool

// ChapterListRequest represents the arguments for chapter_list.
type ChapterListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ChapterRequest identifies a single chapter.
type ChapterRequest struct {
	Chapter *int `json:"chapter"`
}

// DraftUpdateRequest represents the arguments for draft_update.
type DraftUpdateRequest struct {
	Chapter *int    `json:"chapter"`
	Part    int     `json:"part"`
	Text    *string `json:"text"`
}

// DraftGenerateRequest represents the arguments for draft_generate.
type DraftGenerateRequest struct {
	Chapter *int `json:"chapter"`
	Part    int  `json:"part"`
}

// DraftExportRequest represents the arguments for draft_export.
type DraftExportRequest struct {
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
	Title  string `json:"title,omitempty"`
}

// JobHistoryRequest represents the arguments for job_history.
type JobHistoryRequest struct {
	Chapter *int `json:"chapter,omitempty"`
	Limit   int  `json:"limit,omitempty"`
}

// HandleChapterList handles the chapter_list tool.
func (h *Handlers) HandleChapterList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ChapterListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListChapters(h.deps.Store, ops.ListInput{
		Limit:  r.Limit,
		Offset: r.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChapterFetch handles the chapter_fetch tool.
func (h *Handlers) HandleChapterFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ChapterRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if r.Chapter == nil {
		return errorResult(errors.NewInvalidRequest("chapter is required")), nil
	}

	// Fetch is navigation: out-of-range indexes land on the nearest chapter.
	result, err := ops.Fetch(h.deps.Store, ops.FetchInput{Chapter: h.deps.Store.Clamp(*r.Chapter)})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDraftUpdate handles the draft_update tool.
func (h *Handlers) HandleDraftUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DraftUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if r.Chapter == nil {
		return errorResult(errors.NewInvalidRequest("chapter is required")), nil
	}
	if r.Text == nil {
		return errorResult(errors.NewInvalidRequest("text is required")), nil
	}

	result, err := ops.Update(h.deps.Store, ops.UpdateInput{
		Chapter: *r.Chapter,
		Part:    r.Part,
		Text:    *r.Text,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDraftGenerate handles the draft_generate tool. When the caller sent a
// progress token, elapsed time is streamed as progress notifications.
func (h *Handlers) HandleDraftGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DraftGenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if r.Chapter == nil {
		return errorResult(errors.NewInvalidRequest("chapter is required")), nil
	}
	if h.deps.Orchestrator == nil {
		return errorResult(errors.NewConfigurationMissing("generation backend")), nil
	}

	result, err := h.deps.Orchestrator.Generate(ctx, ops.GenerateInput{
		Chapter:    *r.Chapter,
		Part:       r.Part,
		OnProgress: progressNotifier(ctx, req),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDraftExport handles the draft_export tool.
func (h *Handlers) HandleDraftExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DraftExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.deps.Store, h.deps.Config, h.deps.ExportsDir, ops.ExportInput{
		Path:   r.Path,
		Format: r.Format,
		Title:  r.Title,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJobHistory handles the job_history tool.
func (h *Handlers) HandleJobHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[JobHistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(ctx, h.deps.Journal, ops.HistoryInput{
		Chapter: r.Chapter,
		Limit:   r.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJobStatus handles the job_status tool.
func (h *Handlers) HandleJobStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.deps.Orchestrator == nil {
		return successResult(ops.Status{State: ops.StateIdle})
	}
	return successResult(h.deps.Orchestrator.Status())
}

// progressNotifier returns a callback that forwards job progress to the
// client, or nil when the request carries no progress token or no session.
func progressNotifier(ctx context.Context, req mcp.CallToolRequest) func(ops.Progress) {
	if req.Params.Meta == nil || req.Params.Meta.ProgressToken == nil {
		return nil
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	token := req.Params.Meta.ProgressToken
	return func(p ops.Progress) {
		_ = srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      p.ElapsedMS,
			"message":       string(p.State) + " " + p.JobID,
		})
	}
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var loomErr *errors.LoomError
	if stderrors.As(err, &loomErr) {
		errorObj := map[string]any{
			"code":    loomErr.Code,
			"message": loomErr.Message,
			"status":  loomErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if loomErr.Code != errors.ErrInternal && loomErr.Details != nil {
			errorObj["details"] = loomErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
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
