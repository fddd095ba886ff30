// Package requestid tags every HTTP request with an id that is echoed in
// the X-Request-ID header and attached to the request's logger.
package requestid

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"regwatch/internal/observability/logging"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	Header                  = "X-Request-ID"
	maxLength               = 128
)

// FromContext returns the request id, or "" outside a request.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Middleware propagates an incoming X-Request-ID or generates a UUID, and
// stores a logger carrying it in the context (see logging.FromContext).
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if id == "" || len(id) > maxLength {
				id = uuid.NewString()
			}
			w.Header().Set(Header, id)

			ctx := context.WithValue(r.Context(), requestIDKey, id)
			ctx = logging.WithLogger(ctx, logger.With(slog.String("request_id", id)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
