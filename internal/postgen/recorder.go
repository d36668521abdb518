package postgen

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/history"
	"github.com/PortNumber53/techpost-ai/internal/models"
)

// TxRecorder charges the credit and inserts the post in one transaction.
type TxRecorder struct {
	db      *sql.DB
	tracker *entitlement.Tracker
	posts   *history.Store
}

func NewTxRecorder(db *sql.DB, tracker *entitlement.Tracker, posts *history.Store) *TxRecorder {
	return &TxRecorder{db: db, tracker: tracker, posts: posts}
}

func (r *TxRecorder) Record(ctx context.Context, u models.User, p models.Post) (models.Post, entitlement.Outcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Post{}, entitlement.Outcome{}, apperr.Unavailable("record.begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	charge, err := r.tracker.ConsumeCreditTx(ctx, tx, u)
	if err != nil {
		return models.Post{}, entitlement.Outcome{}, err
	}
	if !u.IsVIP && !charge.Consumed {
		// Another request spent the last credit between the check and now.
		return models.Post{}, entitlement.Outcome{}, fmt.Errorf("record: %w", apperr.ErrPaywall)
	}
	saved, err := r.posts.InsertTx(ctx, tx, p)
	if err != nil {
		return models.Post{}, entitlement.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Post{}, entitlement.Outcome{}, apperr.Unavailable("record.commit", err)
	}
	return saved, charge, nil
}
