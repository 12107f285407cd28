package middleware

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/payconfirm/internal"
	"github.com/frahmantamala/payconfirm/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID or issues one, and binds it to
// the request context and a request-scoped logger.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = r.Header.Get("X-Trace-ID")
			}
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := internal.ContextWithRequestID(r.Context(), requestID)
			ctx = logger.WithLogger(ctx, base.With("request_id", requestID))

			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
