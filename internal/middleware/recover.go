package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/logging"
)

// WithRecover turns a handler panic into a 500 instead of killing the connection.
func WithRecover(next http.Handler, logger *zap.Logger) http.Handler {
	logger = logging.OrNop(logger).Named("recover")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic", zap.Any("panic", rec), zap.String("method", r.Method), zap.String("path", r.URL.Path))
				writeJSONError(w, http.StatusInternalServerError, "internal", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
