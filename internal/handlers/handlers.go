package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/credentials"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/middleware"
	"github.com/PortNumber53/techpost-ai/internal/models"
	"github.com/PortNumber53/techpost-ai/internal/postgen"
	"github.com/PortNumber53/techpost-ai/internal/prompt"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

type Accounts interface {
	Create(ctx context.Context, email, password string) (models.User, error)
	Login(ctx context.Context, email, password string) (models.User, error)
	Get(ctx context.Context, email string) (models.User, error)
	SetVIP(ctx context.Context, email string, vip bool) error
}

type Sessions interface {
	Create(ctx context.Context, w http.ResponseWriter, email string) (*session.Session, error)
	Load(r *http.Request) (*session.Session, error)
	Destroy(w http.ResponseWriter, r *http.Request)
	TakePaywall(ctx context.Context, id string) (bool, error)
	GrantAccess(ctx context.Context, id string) error
}

type Posts interface {
	Summaries(ctx context.Context, email string) []models.PostSummary
	Get(ctx context.Context, email, id string) (models.Post, error)
}

type Pipeline interface {
	Generate(ctx context.Context, sess *session.Session, req models.GenerationRequest) (postgen.Outcome, error)
}

type Deps struct {
	DB       *sql.DB
	Accounts Accounts
	Sessions Sessions
	Posts    Posts
	Pipeline Pipeline
	Logger   *zap.Logger
}

type Options struct {
	AccessCode          string
	PaywallURL          string
	PriceLabel          string
	MaxUploadBytes      int64
	LockHistory         bool
	StripeWebhookSecret string
	AllowedOrigins      []string
}

type Handler struct {
	db       *sql.DB
	accounts Accounts
	sessions Sessions
	posts    Posts
	pipeline Pipeline
	rt       *realtimeHub
	opts     Options
	logger   *zap.Logger
}

func New(d Deps, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	return &Handler{
		db:       d.DB,
		accounts: d.Accounts,
		sessions: d.Sessions,
		posts:    d.Posts,
		pipeline: d.Pipeline,
		rt:       newRealtimeHub(),
		opts:     opts,
		logger:   logging.OrNop(d.Logger).Named("http"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"ok": true}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp["ok"] = false
			resp["db"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["db"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Options returns the channel, audience, goal and tone catalogs.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prompt.Options())
}

func (h *Handler) Paywall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.paywallBody(0))
}

func (h *Handler) paywallBody(credits int) map[string]any {
	return map[string]any{
		"error":       "paywall",
		"message":     middleware.UpsellMessage,
		"credits":     credits,
		"price":       h.opts.PriceLabel,
		"paywall_url": h.opts.PaywallURL,
	}
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "login required")
	case errors.Is(err, credentials.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "Este e-mail já está cadastrado.")
	case errors.Is(err, credentials.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, "Senha incorreta.")
	case errors.Is(err, credentials.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "Usuário não encontrado.")
	case errors.Is(err, credentials.ErrInvalidInput),
		errors.Is(err, credentials.ErrWeakPassword),
		errors.Is(err, credentials.ErrLongPassword),
		errors.Is(err, postgen.ErrEmptyInput),
		errors.Is(err, prompt.ErrUnknownTone):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrPaywall):
		writeJSON(w, http.StatusPaymentRequired, h.paywallBody(0))
	case errors.Is(err, apperr.ErrGeneration):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, apperr.ErrStoreUnavailable):
		h.logger.Error("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
