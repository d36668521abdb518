package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

type SessionLoader interface {
	Load(r *http.Request) (*session.Session, error)
}

// RequireSession puts the caller's session on the request context or answers 401.
func RequireSession(loader SessionLoader, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger).Named("session")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := loader.Load(r)
			switch {
			case errors.Is(err, session.ErrNoSession):
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "login required")
				return
			case err != nil:
				logger.Error("session load failed", zap.String("path", r.URL.Path), zap.Error(err))
				writeJSONError(w, http.StatusServiceUnavailable, "store_unavailable", "session store unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}
