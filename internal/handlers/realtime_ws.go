package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/PortNumber53/techpost-ai/internal/session"
)

const (
	eventHello          = "hello"
	eventPostCreated    = "post.created"
	eventCreditsUpdated = "credits.updated"
)

type realtimeHub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func newRealtimeHub() *realtimeHub {
	return &realtimeHub{
		conns: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *realtimeHub) add(email string, c *websocket.Conn) {
	if h == nil || c == nil || strings.TrimSpace(email) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[email]
	if m == nil {
		m = make(map[*websocket.Conn]struct{})
		h.conns[email] = m
	}
	m[c] = struct{}{}
}

func (h *realtimeHub) remove(email string, c *websocket.Conn) {
	if h == nil || c == nil || strings.TrimSpace(email) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[email]
	if m == nil {
		return
	}
	delete(m, c)
	if len(m) == 0 {
		delete(h.conns, email)
	}
}

func (h *realtimeHub) broadcast(email string, msg []byte) {
	if h == nil || strings.TrimSpace(email) == "" || len(msg) == 0 {
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns[email]))
	for c := range h.conns[email] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := websocket.Message.Send(c, string(msg)); err != nil {
			_ = c.Close()
			h.remove(email, c)
		}
	}
}

func (h *realtimeHub) count(email string) int {
	if h == nil || strings.TrimSpace(email) == "" {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[email])
}

type realtimeEvent struct {
	Type string `json:"type"`

	Email   string `json:"email"`
	PostID  string `json:"postId,omitempty"`
	Title   string `json:"title,omitempty"`
	Credits *int   `json:"credits,omitempty"`
	VIP     bool   `json:"vip,omitempty"`
	At      string `json:"at"`
}

// originAllowed accepts same-host origins and the configured CORS origins.
func originAllowed(origin *url.URL, host string, allowed []string) bool {
	if origin == nil || origin.Host == "" {
		return true
	}
	if strings.EqualFold(origin.Host, host) {
		return true
	}
	o := origin.Scheme + "://" + origin.Host
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, o) {
			return true
		}
	}
	return false
}

// EventsWebSocket streams the session user's events.
//
// URL: /api/events/ws (session cookie required)
func (h *Handler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	email := s.UserEmail
	logger := h.logger.Named("realtime")

	wsServer := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			if !originAllowed(cfg.Origin, req.Host, h.opts.AllowedOrigins) {
				logger.Warn("origin rejected", zap.Stringer("origin", cfg.Origin))
				return websocket.ErrBadWebSocketOrigin
			}
			return nil
		},
		Handler: func(c *websocket.Conn) {
			// Drop the server's request deadlines; the socket is long-lived.
			_ = c.SetDeadline(time.Time{})
			logger.Debug("connect", zap.String("email", email), zap.String("remote", r.RemoteAddr))
			h.rt.add(email, c)
			defer h.rt.remove(email, c)
			defer logger.Debug("disconnect", zap.String("email", email), zap.String("remote", r.RemoteAddr))

			hello := realtimeEvent{
				Type:  eventHello,
				Email: email,
				At:    time.Now().UTC().Format(time.RFC3339),
			}
			if b, err := json.Marshal(hello); err == nil {
				_ = websocket.Message.Send(c, string(b))
			}

			// Read loop keeps the connection open and detects disconnects.
			for {
				var ignored string
				if err := websocket.Message.Receive(c, &ignored); err != nil {
					return
				}
			}
		},
	}

	wsServer.ServeHTTP(w, r)
}

func (h *Handler) emitEvent(email string, ev realtimeEvent) {
	if h == nil || h.rt == nil || strings.TrimSpace(email) == "" {
		return
	}
	ev.Email = email
	if strings.TrimSpace(ev.At) == "" {
		ev.At = time.Now().UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("event marshal failed", zap.String("email", email), zap.Error(err))
		return
	}
	h.logger.Debug("emit",
		zap.String("email", email),
		zap.String("type", ev.Type),
		zap.String("post_id", ev.PostID),
		zap.Int("subs", h.rt.count(email)))
	h.rt.broadcast(email, b)
}
