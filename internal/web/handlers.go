package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hpungsan/momentum/internal/assist"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/journal"
	"github.com/hpungsan/momentum/internal/logging"
	"github.com/hpungsan/momentum/internal/render"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 20

// promptTimeout bounds one /api/prompt call.
const promptTimeout = 60 * time.Second

// Handlers contains HTTP route handlers for the journal API.
type Handlers struct {
	journal   *journal.Coordinator
	assistant assist.Generator
	log       logging.Logger
}

// contentBody is the request body for create, update and prompt.
type contentBody struct {
	Content *string `json:"content"`
}

// HandleList handles GET /api/entries.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := h.journal.ListEntries(r.Context(), journal.ListInput{
		Limit:  parseIntParam(r, "limit", 0),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleSearch handles GET /api/entries/search?q=.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	result, err := h.journal.SearchEntries(r.Context(), journal.SearchInput{
		Query:  r.URL.Query().Get("q"),
		Limit:  parseIntParam(r, "limit", 0),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleCreate handles POST /api/entries.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := decodeContent(w, r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	result, err := h.journal.CreateEntry(r.Context(), body)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// HandleGet handles GET /api/entries/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	result, err := h.journal.OpenEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleUpdate handles PUT /api/entries/{id}.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := decodeContent(w, r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	result, err := h.journal.UpdateEntry(r.Context(), r.PathValue("id"), body)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDelete handles DELETE /api/entries/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := h.journal.DeleteEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleVersions handles GET /api/entries/{id}/versions.
func (h *Handlers) HandleVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	versions, err := h.journal.GetVersions(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"entry_id": id, "versions": versions})
}

// HandleHTML handles GET /api/entries/{id}/html.
func (h *Handlers) HandleHTML(w http.ResponseWriter, r *http.Request) {
	e, err := h.journal.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	html, err := render.ToHTML(e.Content)
	if err != nil {
		h.renderError(w, r, errors.NewInternal(err))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"id":    e.ID,
		"title": journal.ExtractTitle(e.Content),
		"html":  html,
	})
}

// HandleVersion handles GET /api/versions/{id}.
func (h *Handlers) HandleVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.journal.GetVersion(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, v)
}

// HandleVersionChanges handles GET /api/versions/{id}/changes.
func (h *Handlers) HandleVersionChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changes, err := h.journal.GetVersionChanges(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"version_id": id, "changes": changes})
}

// HandleRestore handles POST /api/versions/{id}/restore.
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	result, err := h.journal.RestoreVersion(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandlePrompt handles POST /api/prompt. Generation failures are logged and
// answered with the fallback prompt.
func (h *Handlers) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	body, err := decodeContent(w, r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if h.assistant == nil {
		renderJSON(w, http.StatusOK, map[string]any{"prompt": assist.Fallback, "fallback": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), promptTimeout)
	defer cancel()

	task := assist.Start(ctx, h.assistant, body)
	res, err := task.Wait(ctx)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		h.log.Warn(r.Context(), "prompt generation failed", "task_id", task.ID(), "error", err)
		renderJSON(w, http.StatusOK, map[string]any{"task_id": task.ID(), "prompt": assist.Fallback, "fallback": true})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"task_id": task.ID(), "prompt": res.Prompt})
}

// decodeContent reads {"content": "..."} from the request body.
func decodeContent(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body contentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", errors.NewInvalidRequest("request body must be JSON: " + err.Error())
	}
	if body.Content == nil {
		return "", errors.NewInvalidRequest("content is required")
	}
	return *body.Content, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
