package web

// errors.go centralizes error responses for the API.
//
// Handlers call respondError with the raw error. The status code is derived
// from the error's type, the technical detail is logged server-side with the
// request ID, and the client receives the mapped user-facing message only.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookwise/catalog-import/internal/catalog"
	"github.com/bookwise/catalog-import/internal/decode"
	"github.com/bookwise/catalog-import/internal/store"
)

// ErrorResponse is the JSON shape of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the sanitized JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := errorStatus(err)
	userMsg := catalog.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// errorStatus maps pipeline errors to HTTP status codes. Anything the client
// can fix by changing the upload is a 400; unknown errors stay 500 so
// infrastructure faults are never blamed on the file.
func errorStatus(err error) int {
	var (
		parseErr  *decode.ParseError
		schemaErr *catalog.SchemaError
		fatalErr  *catalog.StoreFatalError
	)

	switch {
	case errors.As(err, &parseErr),
		errors.As(err, &schemaErr),
		errors.Is(err, catalog.ErrNoData):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case errors.As(err, &fatalErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v and writes it with the given status code.
// Encoding errors are only logged since the headers are already gone.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
