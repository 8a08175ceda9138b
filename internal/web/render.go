package web

import (
	"encoding/json"
	"net/http"

	"github.com/hpungsan/momentum/internal/errors"
)

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes a JSON error body with the error's HTTP status.
// Internal errors are reported without their message.
func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	jErr, ok := errors.As(err)
	if !ok {
		jErr = errors.NewInternal(err)
	}

	message := jErr.Message
	if jErr.Code == errors.ErrInternal {
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "an internal error occurred"
	}

	errorObj := map[string]any{
		"code":    string(jErr.Code),
		"message": message,
		"status":  jErr.Status,
	}
	if jErr.Code != errors.ErrInternal && jErr.Details != nil {
		errorObj["details"] = jErr.Details
	}
	renderJSON(w, jErr.Status, map[string]any{"error": errorObj})
}
