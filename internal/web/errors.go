package web

// errors.go maps engine failures onto HTTP responses. Technical detail is
// logged server-side with the request id; clients get the classified kind
// and a short message.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/schoolsetu/reconcile/internal/engine"
	"github.com/schoolsetu/reconcile/internal/logging"
)

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError logs err and writes the matching status and JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForErr(err)

	logging.FromContext(r.Context()).Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)

	writeJSON(w, status, ErrorResponse{
		Error: err.Error(),
		Code:  string(engine.KindOf(err)),
	})
}

// statusForErr picks the HTTP status for a classified engine error.
// Unclassified errors are treated as internal.
func statusForErr(err error) int {
	switch engine.KindOf(err) {
	case engine.KindValidation, engine.KindInvalidInput:
		return http.StatusBadRequest
	case engine.KindParentNotFound:
		return http.StatusUnprocessableEntity
	case engine.KindUniqueViolation, engine.KindForeignKeyViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(msg string) error {
	return &engine.Error{Kind: engine.KindValidation, Msg: msg}
}

// writeJSON encodes v with the given status. Encoding errors are logged
// since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
