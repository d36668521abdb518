// Package session keeps the per-browser state of a logged-in user: who they are, whether
// the shared access code unlocked VIP for this session, and the one-shot paywall flag.
package session

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/credentials"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
)

const CookieName = "techpost_session"

// ErrNoSession is returned when the request carries no valid, unexpired session.
var ErrNoSession = errors.New("no active session")

type Session struct {
	ID             string    `json:"-"`
	UserEmail      string    `json:"email"`
	AccessVIP      bool      `json:"accessVip"`
	PaywallPending bool      `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Effective applies the session-local VIP flag on top of the stored user.
func (s *Session) Effective(u models.User) models.User {
	if s != nil && s.AccessVIP {
		u.IsVIP = true
	}
	return u
}

type Manager struct {
	db     *sql.DB
	ttl    time.Duration
	secure bool
	logger *zap.Logger
	now    func() time.Time
}

type Options struct {
	TTL          time.Duration
	CookieSecure bool
	Logger       *zap.Logger
}

func NewManager(db *sql.DB, opts Options) *Manager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{
		db:     db,
		ttl:    ttl,
		secure: opts.CookieSecure,
		logger: logging.OrNop(opts.Logger).Named("session"),
		now:    time.Now,
	}
}

// Create starts a session for email and sets the cookie on w.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, email string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserEmail: credentials.NormalizeEmail(email),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO public.sessions (id, user_email, access_vip, paywall_pending, created_at, expires_at)
		VALUES ($1, $2, false, false, $3, $4)
	`, s.ID, s.UserEmail, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return nil, apperr.Unavailable("sessions.insert", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.ExpiresAt,
	})
	return s, nil
}

// Load resolves the session cookie on r.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return nil, ErrNoSession
	}
	var s Session
	err = m.db.QueryRowContext(r.Context(), `
		SELECT id, user_email, access_vip, paywall_pending, created_at, expires_at
		FROM public.sessions
		WHERE id = $1
	`, c.Value).Scan(&s.ID, &s.UserEmail, &s.AccessVIP, &s.PaywallPending, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, apperr.Unavailable("sessions.get", err)
	}
	if m.now().After(s.ExpiresAt) {
		return nil, ErrNoSession
	}
	return &s, nil
}

// Destroy deletes the session behind r (if any) and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if c, _ := r.Cookie(CookieName); c != nil && c.Value != "" {
		if _, err := m.db.ExecContext(r.Context(), `DELETE FROM public.sessions WHERE id = $1`, c.Value); err != nil {
			m.logger.Warn("delete failed", zap.Error(err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// MarkPaywall raises the one-shot flag read by TakePaywall.
func (m *Manager) MarkPaywall(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, `UPDATE public.sessions SET paywall_pending = true WHERE id = $1`, id); err != nil {
		return apperr.Unavailable("sessions.mark_paywall", err)
	}
	return nil
}

// TakePaywall returns the flag and clears it in the same statement, so it is observed once.
func (m *Manager) TakePaywall(ctx context.Context, id string) (bool, error) {
	var pending bool
	err := m.db.QueryRowContext(ctx, `
		UPDATE public.sessions s
		SET paywall_pending = false
		FROM public.sessions old
		WHERE s.id = old.id AND s.id = $1
		RETURNING old.paywall_pending
	`, id).Scan(&pending)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Unavailable("sessions.take_paywall", err)
	}
	return pending, nil
}

// GrantAccess turns on session-local VIP.
func (m *Manager) GrantAccess(ctx context.Context, id string) error {
	res, err := m.db.ExecContext(ctx, `UPDATE public.sessions SET access_vip = true WHERE id = $1`, id)
	if err != nil {
		return apperr.Unavailable("sessions.grant_access", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoSession
	}
	m.logger.Info("access code accepted", zap.String("session", id))
	return nil
}

// DeleteExpired removes every session past its expiry and reports how many went away.
func (m *Manager) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM public.sessions WHERE expires_at < $1`, m.now().UTC())
	if err != nil {
		return 0, apperr.Unavailable("sessions.delete_expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
