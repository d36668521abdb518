package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

// UpsellMessage is shown with every paywall response.
const UpsellMessage = "Seus créditos gratuitos acabaram. Assine o plano VIP para continuar gerando posts ilimitados."

type UserLookup interface {
	Get(ctx context.Context, email string) (models.User, error)
}

// EntitlementGuard rejects requests from sessions that can no longer generate posts.
type EntitlementGuard struct {
	Users      UserLookup
	PaywallURL string
	PriceLabel string
	Logger     *zap.Logger
}

// Middleware must run after RequireSession.
func (g *EntitlementGuard) Middleware(next http.Handler) http.Handler {
	logger := logging.OrNop(g.Logger).Named("entitlement")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		u, err := g.Users.Get(r.Context(), sess.UserEmail)
		if err != nil {
			// The handler reloads the user and reports the failure properly.
			logger.Warn("entitlement lookup failed", zap.String("email", sess.UserEmail), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		u = sess.Effective(u)
		if !entitlement.CanGenerate(u) {
			g.respondPaywall(w, u)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *EntitlementGuard) respondPaywall(w http.ResponseWriter, u models.User) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       "paywall",
		"message":     UpsellMessage,
		"credits":     u.Credits,
		"price":       g.PriceLabel,
		"paywall_url": g.PaywallURL,
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
