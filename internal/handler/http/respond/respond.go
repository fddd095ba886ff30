// Package respond writes JSON responses for the query API.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"regwatch/internal/domain/entity"
	"regwatch/internal/observability/logging"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent.
		slog.Default().Error("failed to encode JSON response",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// SafeError maps err to a status code and writes a message that is safe to
// show to a client: validation and not-found errors are returned as-is,
// everything else is logged and reported as an internal error.
func SafeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, entity.ErrValidationFailed), errors.Is(err, entity.ErrInvalidInput):
		JSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, entity.ErrNotFound):
		JSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		slog.Default().Error("internal server error", slog.String("error", logging.SanitizeError(err)))
		JSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
