// Package entitlement decides whether a user may generate a post and keeps the credit
// balance.
package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
)

// CanGenerate is true for VIP users and for users with a positive balance.
func CanGenerate(u models.User) bool {
	return u.IsVIP || u.Credits > 0
}

// Outcome describes a credit consumption attempt.
type Outcome struct {
	Consumed  bool
	Remaining int
	// Paywall is set when this consumption brought the balance to exactly zero.
	Paywall bool
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Tracker struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTracker(db *sql.DB, logger *zap.Logger) *Tracker {
	return &Tracker{db: db, logger: logging.OrNop(logger).Named("entitlement")}
}

// ConsumeCredit takes one credit from a non-VIP user. Store failures are logged and
// reported as a no-op.
func (t *Tracker) ConsumeCredit(ctx context.Context, u models.User) Outcome {
	out, err := t.consume(ctx, t.db, u)
	if err != nil {
		t.logger.Warn("credit decrement skipped", zap.String("email", u.Email), zap.Error(err))
		return Outcome{Remaining: u.Credits}
	}
	return out
}

// ConsumeCreditTx is ConsumeCredit inside a caller-owned transaction; errors are returned
// so the caller can roll back.
func (t *Tracker) ConsumeCreditTx(ctx context.Context, tx *sql.Tx, u models.User) (Outcome, error) {
	return t.consume(ctx, tx, u)
}

func (t *Tracker) consume(ctx context.Context, q execQuerier, u models.User) (Outcome, error) {
	if u.IsVIP {
		return Outcome{Remaining: u.Credits}, nil
	}
	var remaining int
	err := q.QueryRowContext(ctx, `
		UPDATE public.users
		SET credits = credits - 1
		WHERE email = $1 AND credits > 0
		RETURNING credits
	`, u.Email).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		// Balance was already zero (or the user vanished): nothing to take.
		return Outcome{Remaining: 0}, nil
	}
	if err != nil {
		return Outcome{}, apperr.Unavailable("users.decrement_credit", err)
	}
	return Outcome{Consumed: true, Remaining: remaining, Paywall: remaining == 0}, nil
}

// Teaser returns at most n runes of body, cut on a word boundary when possible.
func Teaser(body string, n int) string {
	body = strings.TrimSpace(body)
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	runes := []rune(body)
	cut := string(runes[:n])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
