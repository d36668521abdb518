package handlers

import (
	"errors"
	"net/http"

	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/history"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, h.posts.Summaries(r.Context(), s.UserEmail))
}

// GetPost returns one post. With LockHistory set, users who can no longer generate only
// get the teaser.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	p, err := h.posts.Get(r.Context(), s.UserEmail, pathVar(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	if h.opts.LockHistory {
		u, err := h.accounts.Get(r.Context(), s.UserEmail)
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		if !entitlement.CanGenerate(s.Effective(u)) {
			writeJSON(w, http.StatusOK, map[string]any{
				"post":        history.Excerpt(p),
				"locked":      true,
				"paywall_url": h.opts.PaywallURL,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": p, "locked": false})
}
