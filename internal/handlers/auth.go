package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/models"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Email     string `json:"email"`
	Credits   int    `json:"credits"`
	IsVIP     bool   `json:"isVip"`
	AccessVIP bool   `json:"accessVip"`
	Paywall   bool   `json:"paywall"`
}

func newSessionResponse(s *session.Session, u models.User) sessionResponse {
	eff := s.Effective(u)
	return sessionResponse{Email: u.Email, Credits: u.Credits, IsVIP: eff.IsVIP, AccessVIP: s.AccessVIP}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := h.accounts.Create(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	s, err := h.sessions.Create(r.Context(), w, u.Email)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s, u))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	s, err := h.sessions.Create(r.Context(), w, u.Email)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.logger.Info("login", zap.String("email", u.Email))
	writeJSON(w, http.StatusOK, newSessionResponse(s, u))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Session returns the current user and consumes the one-shot paywall flag.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	u, err := h.accounts.Get(r.Context(), s.UserEmail)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	resp := newSessionResponse(s, u)
	paywall, err := h.sessions.TakePaywall(r.Context(), s.ID)
	if err != nil {
		h.logger.Warn("paywall flag unreadable", zap.String("session", s.ID), zap.Error(err))
	}
	resp.Paywall = paywall
	writeJSON(w, http.StatusOK, resp)
}

type accessCodeRequest struct {
	Code string `json:"code"`
}

// AccessCode unlocks VIP for the current session when the shared code matches.
func (h *Handler) AccessCode(w http.ResponseWriter, r *http.Request) {
	if h.opts.AccessCode == "" {
		writeError(w, http.StatusNotFound, "access code disabled")
		return
	}
	var req accessCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	code := strings.TrimSpace(req.Code)
	if subtle.ConstantTimeCompare([]byte(code), []byte(h.opts.AccessCode)) != 1 {
		writeError(w, http.StatusForbidden, "Código inválido.")
		return
	}
	s := session.FromContext(r.Context())
	if err := h.sessions.GrantAccess(r.Context(), s.ID); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	s.AccessVIP = true
	h.emitEvent(s.UserEmail, realtimeEvent{Type: eventCreditsUpdated, VIP: true})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "accessVip": true})
}
