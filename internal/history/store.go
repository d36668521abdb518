// Package history persists generated posts per user.
//
// Reads degrade to an empty list and writes to a logged no-op: a broken database must
// never cost the user the post that is already on screen.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/credentials"
	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
)

// TeaserLength is the preview size used by history listings.
const TeaserLength = 150

var ErrNotFound = errors.New("post not found")

type Store struct {
	db     *sql.DB
	logger *zap.Logger
	newID  func() string
}

func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logging.OrNop(logger).Named("history"),
		newID:  func() string { return uuid.NewString() },
	}
}

const postColumns = `id, user_email, platform, title, content, created_at`

func scanPost(row interface{ Scan(...any) error }) (models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.UserEmail, &p.Platform, &p.Title, &p.Content, &p.CreatedAt)
	return p, err
}

// Save appends a post. Failures are logged and swallowed.
func (s *Store) Save(ctx context.Context, email, platform, content, title string) {
	if _, err := s.insert(ctx, s.db, models.Post{UserEmail: email, Platform: platform, Title: title, Content: content}); err != nil {
		s.logger.Warn("save skipped", zap.String("email", email), zap.Error(err))
	}
}

// InsertTx stores p inside tx and returns it with its id and timestamp filled in.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, p models.Post) (models.Post, error) {
	return s.insert(ctx, tx, p)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insert(ctx context.Context, q queryRower, p models.Post) (models.Post, error) {
	p.UserEmail = credentials.NormalizeEmail(p.UserEmail)
	if p.UserEmail == "" {
		return models.Post{}, fmt.Errorf("post owner is required")
	}
	if strings.TrimSpace(p.ID) == "" {
		p.ID = s.newID()
	}
	out, err := scanPost(q.QueryRowContext(ctx, `
		INSERT INTO public.posts (id, user_email, platform, title, content, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING `+postColumns,
		p.ID, p.UserEmail, p.Platform, p.Title, p.Content,
	))
	if err != nil {
		return models.Post{}, apperr.Unavailable("posts.insert", err)
	}
	return out, nil
}

// List returns the user's posts, newest first. On failure it returns an empty list.
func (s *Store) List(ctx context.Context, email string) []models.Post {
	email = credentials.NormalizeEmail(email)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM public.posts
		WHERE user_email = $1
		ORDER BY created_at DESC, id DESC
	`, email)
	if err != nil {
		s.logger.Warn("list failed", zap.String("email", email), zap.Error(err))
		return []models.Post{}
	}
	defer rows.Close()

	out := make([]models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			s.logger.Warn("list scan failed", zap.String("email", email), zap.Error(err))
			return []models.Post{}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("list iteration failed", zap.String("email", email), zap.Error(err))
		return []models.Post{}
	}
	return out
}

// Summaries is List reduced to history rows with a content teaser.
func (s *Store) Summaries(ctx context.Context, email string) []models.PostSummary {
	posts := s.List(ctx, email)
	out := make([]models.PostSummary, 0, len(posts))
	for _, p := range posts {
		out = append(out, Excerpt(p))
	}
	return out
}

// Excerpt builds the listing row for p.
func Excerpt(p models.Post) models.PostSummary {
	return models.PostSummary{
		ID:        p.ID,
		Platform:  p.Platform,
		Title:     p.Title,
		Teaser:    entitlement.Teaser(p.Content, TeaserLength),
		CreatedAt: p.CreatedAt,
	}
}

// Get returns one post owned by email. Other users' posts are reported as not found.
func (s *Store) Get(ctx context.Context, email, id string) (models.Post, error) {
	email = credentials.NormalizeEmail(email)
	if _, err := uuid.Parse(id); err != nil {
		return models.Post{}, ErrNotFound
	}
	p, err := scanPost(s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM public.posts
		WHERE id = $1 AND user_email = $2
	`, id, email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		s.logger.Warn("get failed", zap.String("email", email), zap.String("id", id), zap.Error(err))
		return models.Post{}, apperr.Unavailable("posts.get", err)
	}
	return p, nil
}
