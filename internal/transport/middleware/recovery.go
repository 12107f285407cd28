package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/frahmantamala/payconfirm/internal"
)

// RecoveryMiddleware turns a panic into a 500 with the standard error envelope.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.Error("panic recovered",
						"error", err,
						"method", r.Method,
						"url", r.URL.String(),
						"request_id", apperrors.RequestIDFromContext(r.Context()),
						"stack", string(debug.Stack()))

					writeAppError(w, apperrors.NewInternalError("internal server error", nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
