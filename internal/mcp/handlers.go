package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/momentum/internal/entry"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/journal"
	"github.com/hpungsan/momentum/internal/render"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	journal *journal.Coordinator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(c *journal.Coordinator) *Handlers {
	return &Handlers{journal: c}
}

// ContentRequest carries markdown content.
type ContentRequest struct {
	Content *string `json:"content"`
}

// IDRequest identifies an entry or version.
type IDRequest struct {
	ID string `json:"id"`
}

// UpdateRequest represents the arguments for entry_update.
type UpdateRequest struct {
	ID      string  `json:"id"`
	Content *string `json:"content"`
}

// ListRequest represents the arguments for entry_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SearchRequest represents the arguments for entry_search.
type SearchRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RenderRequest represents the arguments for entry_render.
type RenderRequest struct {
	ID      string  `json:"id,omitempty"`
	Content *string `json:"content,omitempty"`
}

// VersionListRequest represents the arguments for version_list.
type VersionListRequest struct {
	EntryID string `json:"entry_id"`
}

// ExportRequest represents the arguments for journal_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for journal_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// TitleOutput is the result of entry_title.
type TitleOutput struct {
	Title string `json:"title"`
}

// RenderOutput is the result of entry_render.
type RenderOutput struct {
	ID   string `json:"id,omitempty"`
	HTML string `json:"html"`
}

// VersionListOutput is the result of version_list.
type VersionListOutput struct {
	EntryID  string          `json:"entry_id"`
	Versions []entry.Version `json:"versions"`
}

// HandleEntryCreate handles the entry_create tool call.
func (h *Handlers) HandleEntryCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Content == nil {
		return errorResult(errors.NewInvalidRequest("content is required")), nil
	}

	result, err := h.journal.CreateEntry(ctx, *input.Content)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEntryGet handles the entry_get tool call.
func (h *Handlers) HandleEntryGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArg("id", input.ID); err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.OpenEntry(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEntryUpdate handles the entry_update tool call.
func (h *Handlers) HandleEntryUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArg("id", input.ID); err != nil {
		return errorResult(err), nil
	}
	if input.Content == nil {
		return errorResult(errors.NewInvalidRequest("content is required")), nil
	}

	result, err := h.journal.UpdateEntry(ctx, input.ID, *input.Content)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEntryDelete handles the entry_delete tool call.
func (h *Handlers) HandleEntryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArg("id", input.ID); err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.DeleteEntry(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEntryList handles the entry_list tool call.
func (h *Handlers) HandleEntryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.ListEntries(ctx, journal.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEntrySearch handles the entry_search tool call.
func (h *Handlers) HandleEntrySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.SearchEntries(ctx, journal.SearchInput{
		Query:  input.Query,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleEntryTitle handles the entry_title tool call.
func (h *Handlers) HandleEntryTitle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	content := ""
	if input.Content != nil {
		content = *input.Content
	}
	return successResult(TitleOutput{Title: journal.ExtractTitle(content)})
}

// HandleEntryRender handles the entry_render tool call.
func (h *Handlers) HandleEntryRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	var markdown string
	switch {
	case input.ID != "":
		e, err := h.journal.GetEntry(ctx, input.ID)
		if err != nil {
			return errorResult(err), nil
		}
		markdown = e.Content
	case input.Content != nil:
		markdown = *input.Content
	default:
		return errorResult(errors.NewInvalidRequest("id or content is required")), nil
	}

	html, err := render.ToHTML(markdown)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return successResult(RenderOutput{ID: input.ID, HTML: html})
}

// HandleVersionList handles the version_list tool call.
func (h *Handlers) HandleVersionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VersionListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArg("entry_id", input.EntryID); err != nil {
		return errorResult(err), nil
	}

	versions, err := h.journal.GetVersions(ctx, input.EntryID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(VersionListOutput{EntryID: input.EntryID, Versions: versions})
}

// HandleVersionGet handles the version_get tool call.
func (h *Handlers) HandleVersionGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.GetVersion(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleVersionChanges handles the version_changes tool call.
func (h *Handlers) HandleVersionChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	changes, err := h.journal.GetVersionChanges(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"version_id": input.ID, "changes": changes})
}

// HandleVersionRestore handles the version_restore tool call.
func (h *Handlers) HandleVersionRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArg("id", input.ID); err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.RestoreVersion(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMirrorRepair handles the mirror_repair tool call.
func (h *Handlers) HandleMirrorRepair(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.journal.RepairMirrors(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMirrorVerify handles the mirror_verify tool call.
func (h *Handlers) HandleMirrorVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.Verify(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournalExport handles the journal_export tool call.
func (h *Handlers) HandleJournalExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.Export(ctx, journal.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournalImport handles the journal_import tool call.
func (h *Handlers) HandleJournalImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.journal.Import(ctx, journal.ImportInput{
		Path: input.Path,
		Mode: journal.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if jErr, ok := errors.As(err); ok && jErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    jErr.Code,
			"message": jErr.Message,
			"status":  jErr.Status,
		}
		if jErr.Details != nil {
			errorObj["details"] = jErr.Details
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
