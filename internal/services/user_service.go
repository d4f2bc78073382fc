// Package services – UserService
//
// UserService handles accounts: registration, login, profile reads, password
// changes, and account deletion. Passwords are stored as bcrypt hashes and
// sessions are stateless HS256 tokens; deleting a user invalidates its tokens
// because authentication re-checks that the subject still exists.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-transcribe-backend/internal/auth"
	"github.com/tbourn/go-transcribe-backend/internal/domain"
	"github.com/tbourn/go-transcribe-backend/internal/repo"
)

// MinPasswordRunes is the shortest accepted password.
const MinPasswordRunes = 8

// UserService manages accounts and sessions.
type UserService struct {
	DB     *gorm.DB
	Hasher auth.Hasher
	Tokens *auth.Tokens
	Quota  *QuotaService
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// Profile is a user together with the minutes left in the current window.
type Profile struct {
	User             *domain.User
	RemainingMinutes float64
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || !strings.Contains(email, "@") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Register creates an account. A second registration with the same email
// fails with ErrEmailTaken and leaves the first account untouched.
func (s *UserService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	email = NormalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < MinPasswordRunes {
		return nil, ErrWeakPassword
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u, err := repo.CreateUser(ctx, s.DB, email, hash, strings.TrimSpace(name))
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.Hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, exp, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Authenticate resolves a bearer token to a user id that still exists.
func (s *UserService) Authenticate(ctx context.Context, token string) (string, error) {
	userID, err := s.Tokens.Parse(token)
	if err != nil {
		return "", err
	}
	ok, err := repo.UserExists(ctx, s.DB, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUserNotFound
	}
	return userID, nil
}

// Profile returns the user and the remaining minutes.
func (s *UserService) Profile(ctx context.Context, userID string) (*Profile, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Profile",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, RemainingMinutes: s.Quota.RemainingMinutes(ctx, userID)}, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "ChangePassword",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if err := s.Hasher.Compare(u.PasswordHash, current); err != nil {
		return ErrWrongPassword
	}
	if utf8.RuneCountInString(next) < MinPasswordRunes {
		return ErrWeakPassword
	}
	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := repo.UpdatePasswordHash(ctx, s.DB, userID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// Delete permanently removes the user and all owned records in one
// transaction.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.DeleteUser(ctx, tx, userID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
