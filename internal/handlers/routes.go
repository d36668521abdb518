package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PortNumber53/techpost-ai/internal/middleware"
)

// RegisterRoutes mounts the public API on r.
func RegisterRoutes(h *Handler, r *mux.Router) {
	auth := middleware.RequireSession(h.sessions, h.logger)
	guard := &middleware.EntitlementGuard{
		Users:      h.accounts,
		PaywallURL: h.opts.PaywallURL,
		PriceLabel: h.opts.PriceLabel,
		Logger:     h.logger,
	}
	withSession := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	r.HandleFunc("/health", h.Health).Methods("GET")

	r.HandleFunc("/api/auth/signup", h.Signup).Methods("POST")
	r.HandleFunc("/api/auth/login", h.Login).Methods("POST")
	r.HandleFunc("/api/auth/logout", h.Logout).Methods("POST")

	r.HandleFunc("/api/options", h.Options).Methods("GET")
	r.HandleFunc("/api/paywall", h.Paywall).Methods("GET")

	r.Handle("/api/session", withSession(h.Session)).Methods("GET")
	r.Handle("/api/access-code", withSession(h.AccessCode)).Methods("POST")
	r.Handle("/api/generate", auth(guard.Middleware(http.HandlerFunc(h.Generate)))).Methods("POST")
	r.Handle("/api/posts", withSession(h.ListPosts)).Methods("GET")
	r.Handle("/api/posts/{id}", withSession(h.GetPost)).Methods("GET")
	r.Handle("/api/events/ws", withSession(h.EventsWebSocket)).Methods("GET")

	r.HandleFunc("/webhook/stripe", h.StripeWebhook).Methods("POST")
}
