package credentials

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, Options{InitialCredits: 3, BcryptCost: bcrypt.MinCost}), mock
}

func userRows(email, hash string, credits int, vip bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"email", "password_hash", "credits", "is_vip", "created_at"}).
		AddRow(email, hash, credits, vip, time.Now().UTC())
}

func TestNormalizeEmail(t *testing.T) {
	if NormalizeEmail(" A@B.com ") != NormalizeEmail("a@b.com") {
		t.Fatalf("expected case-insensitive, trimmed keys")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("secret1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, _ := HashPassword("secret1", bcrypt.MinCost)
	if a == b {
		t.Fatalf("expected different hashes for the same password")
	}
	if !CheckPassword(a, "secret1") || CheckPassword(a, "secret2") {
		t.Fatalf("CheckPassword mismatch")
	}
}

func TestCreate_Success(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM public\.users WHERE email = \$1\)`).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO public\.users`).
		WithArgs("a@b.com", sqlmock.AnyArg(), 3).
		WillReturnRows(userRows("a@b.com", "h", 3, false))

	u, err := s.Create(context.Background(), " A@B.com ", "secret1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "a@b.com" || u.Credits != 3 || u.IsVIP {
		t.Fatalf("unexpected user %#v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := s.Create(context.Background(), "a@b.com", "secret1")
	if !errors.Is(err, ErrAlreadyExists) || !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_UniqueViolationRace(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO public\.users`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.Create(context.Background(), "a@b.com", "secret1")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_StoreUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(sql.ErrConnDone)

	_, err := s.Create(context.Background(), "a@b.com", "secret1")
	if !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	s, _ := newMockStore(t)
	if _, err := s.Create(context.Background(), "  ", "secret1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.Create(context.Background(), "a@b.com", "123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := s.Create(context.Background(), "a@b.com", strings.Repeat("x", MaxPasswordLength+8)); !errors.Is(err, ErrLongPassword) {
		t.Fatalf("expected ErrLongPassword, got %v", err)
	}
}

func TestCreate_MaxLengthPasswordAccepted(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO public\.users`).
		WillReturnRows(userRows("a@b.com", "hash", 3, false))

	if _, err := s.Create(context.Background(), "a@b.com", strings.Repeat("x", MaxPasswordLength)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("secret1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	t.Run("case-insensitive e-mail", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT email, password_hash, credits, is_vip, created_at FROM public\.users WHERE email = \$1`).
			WithArgs("a@b.com").
			WillReturnRows(userRows("a@b.com", hash, 2, false))

		u, err := s.Login(context.Background(), " A@B.com ", "secret1")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if u.Credits != 2 {
			t.Fatalf("unexpected user %#v", u)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM public\.users`).
			WithArgs("a@b.com").
			WillReturnRows(userRows("a@b.com", hash, 2, false))

		if _, err := s.Login(context.Background(), "a@b.com", "nope!!"); !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("expected ErrWrongPassword, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM public\.users`).
			WithArgs("x@b.com").
			WillReturnError(sql.ErrNoRows)

		if _, err := s.Login(context.Background(), "x@b.com", "secret1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("store down", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM public\.users`).WillReturnError(sql.ErrConnDone)

		if _, err := s.Login(context.Background(), "x@b.com", "secret1"); !errors.Is(err, apperr.ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}

func TestSetVIP(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE public\.users SET is_vip = \$2 WHERE email = \$1`).
		WithArgs("a@b.com", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE public\.users SET is_vip`).
		WithArgs("missing@b.com", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SetVIP(context.Background(), "A@b.com", true); err != nil {
		t.Fatalf("SetVIP: %v", err)
	}
	if err := s.SetVIP(context.Background(), "missing@b.com", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestSetCredits(t *testing.T) {
	s, mock := newMockStore(t)
	if err := s.SetCredits(context.Background(), "a@b.com", -1); err == nil {
		t.Fatalf("expected error for negative credits")
	}
	mock.ExpectExec(`UPDATE public\.users SET credits = \$2 WHERE email = \$1`).
		WithArgs("a@b.com", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.SetCredits(context.Background(), "a@b.com", 5); err != nil {
		t.Fatalf("SetCredits: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
