package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/entity"
	"github.com/onoacademic/campusid/internal/security/auth"
)

// Source names where a login was resolved
type Source string

const (
	SourceBackend Source = "backend"
	SourceDemo    Source = "demo"
)

// Authenticator resolves credentials into a user record
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (domain.User, error)
}

// errPasswordMismatch marks a stored account whose bcrypt hash rejected the password
var errPasswordMismatch = fmt.Errorf("%w: password does not match stored hash", domain.ErrInvalidCredentials)

// StoreAuthenticator checks credentials against the users collection.
// Accounts without a stored password hash cannot log in through it.
type StoreAuthenticator struct {
	users *entity.Accessor
}

func NewStoreAuthenticator(users *entity.Accessor) *StoreAuthenticator {
	return &StoreAuthenticator{users: users}
}

func (a *StoreAuthenticator) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	recs, err := a.users.List(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load users: %w", err)
	}
	for _, rec := range recs {
		if !strings.EqualFold(rec.String("email"), email) {
			continue
		}
		u, err := domain.DecodeRecord[domain.User](rec)
		if err != nil {
			return domain.User{}, fmt.Errorf("malformed user record %s: %w", rec.ID(), err)
		}
		if u.PasswordHash == "" {
			return domain.User{}, domain.ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return domain.User{}, errPasswordMismatch
		}
		return u, nil
	}
	return domain.User{}, domain.ErrInvalidCredentials
}

// FallbackAuthenticator tries the primary authenticator and then the built-in
// demo directory. An account whose own stored password was rejected does not
// fall back, so a changed password retires the shared demo password.
type FallbackAuthenticator struct {
	primary   Authenticator
	directory *auth.Directory
	logger    *slog.Logger
}

func NewFallbackAuthenticator(primary Authenticator, directory *auth.Directory, logger *slog.Logger) *FallbackAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackAuthenticator{primary: primary, directory: directory, logger: logger}
}

// Authenticate returns the user and the source that accepted the credentials
func (a *FallbackAuthenticator) Authenticate(ctx context.Context, email, password string) (domain.User, Source, error) {
	if a.primary != nil {
		u, err := a.primary.Authenticate(ctx, email, password)
		if err == nil {
			return u, SourceBackend, nil
		}
		if errors.Is(err, errPasswordMismatch) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		level := slog.LevelDebug
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			level = slog.LevelWarn
		}
		a.logger.Log(ctx, level, "primary authentication failed, trying demo directory",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}

	u, err := a.directory.Authenticate(email, password)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, SourceDemo, nil
}
