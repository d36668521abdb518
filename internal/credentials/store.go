// Package credentials stores user accounts and verifies e-mail/password logins.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
)

// MinPasswordLength is enforced on signup.
const MinPasswordLength = 6

// MaxPasswordLength is the bcrypt input limit, in bytes.
const MaxPasswordLength = 72

var (
	ErrAlreadyExists = fmt.Errorf("%w: e-mail already registered", apperr.ErrAuth)
	ErrWrongPassword = fmt.Errorf("%w: wrong password", apperr.ErrAuth)
	ErrNotFound      = fmt.Errorf("%w: user not found", apperr.ErrAuth)
	ErrInvalidInput  = errors.New("e-mail and password are required")
	ErrWeakPassword  = fmt.Errorf("password must have at least %d characters", MinPasswordLength)
	ErrLongPassword  = fmt.Errorf("password must have at most %d bytes", MaxPasswordLength)
)

// NormalizeEmail is the key used for every lookup and insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword returns a salted bcrypt hash.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type Store struct {
	db             *sql.DB
	initialCredits int
	cost           int
	logger         *zap.Logger
}

type Options struct {
	InitialCredits int
	// BcryptCost defaults to bcrypt.DefaultCost; tests lower it to bcrypt.MinCost.
	BcryptCost int
	Logger     *zap.Logger
}

func NewStore(db *sql.DB, opts Options) *Store {
	return &Store{
		db:             db,
		initialCredits: opts.InitialCredits,
		cost:           opts.BcryptCost,
		logger:         logging.OrNop(opts.Logger).Named("accounts"),
	}
}

const userColumns = `email, password_hash, credits, is_vip, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.Email, &u.PasswordHash, &u.Credits, &u.IsVIP, &u.CreatedAt)
	return u, err
}

// Create registers a new user with the initial credit balance.
func (s *Store) Create(ctx context.Context, email, password string) (models.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return models.User{}, ErrInvalidInput
	}
	if len(password) < MinPasswordLength {
		return models.User{}, ErrWeakPassword
	}
	if len(password) > MaxPasswordLength {
		return models.User{}, ErrLongPassword
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM public.users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		s.logger.Error("lookup failed", zap.String("email", email), zap.Error(err))
		return models.User{}, apperr.Unavailable("users.exists", err)
	}
	if exists {
		return models.User{}, ErrAlreadyExists
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO public.users (email, password_hash, credits, is_vip, created_at)
		VALUES ($1, $2, $3, false, NOW())
		RETURNING `+userColumns,
		email, hash, s.initialCredits,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.User{}, ErrAlreadyExists
		}
		s.logger.Error("insert failed", zap.String("email", email), zap.Error(err))
		return models.User{}, apperr.Unavailable("users.insert", err)
	}
	s.logger.Info("user created", zap.String("email", email), zap.Int("credits", u.Credits))
	return u, nil
}

// Login verifies the password and returns the stored user.
func (s *Store) Login(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.Get(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return models.User{}, ErrWrongPassword
	}
	return u, nil
}

// Get looks a user up by e-mail.
func (s *Store) Get(ctx context.Context, email string) (models.User, error) {
	email = NormalizeEmail(email)
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM public.users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		s.logger.Error("get failed", zap.String("email", email), zap.Error(err))
		return models.User{}, apperr.Unavailable("users.get", err)
	}
	return u, nil
}

// SetVIP flips the VIP entitlement. It is only called from out-of-band paths
// (admin CLI, payment webhook).
func (s *Store) SetVIP(ctx context.Context, email string, vip bool) error {
	email = NormalizeEmail(email)
	res, err := s.db.ExecContext(ctx, `UPDATE public.users SET is_vip = $2 WHERE email = $1`, email, vip)
	if err != nil {
		return apperr.Unavailable("users.set_vip", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.Info("vip updated", zap.String("email", email), zap.Bool("vip", vip))
	return nil
}

// SetCredits overwrites the credit balance.
func (s *Store) SetCredits(ctx context.Context, email string, credits int) error {
	if credits < 0 {
		return fmt.Errorf("credits must be non-negative, got %d", credits)
	}
	email = NormalizeEmail(email)
	res, err := s.db.ExecContext(ctx, `UPDATE public.users SET credits = $2 WHERE email = $1`, email, credits)
	if err != nil {
		return apperr.Unavailable("users.set_credits", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.Info("credits updated", zap.String("email", email), zap.Int("credits", credits))
	return nil
}
