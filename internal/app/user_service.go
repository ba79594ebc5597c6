// Package app contains the application services. Services orchestrate
// repositories through ports, log with the request ctx so every line carries
// the trace id, and return domain errors for adapters to map.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jsamuelsen/tracecontext-service/internal/domain"
	"github.com/jsamuelsen/tracecontext-service/internal/ports"
)

// UserService implements login and user lookup.
type UserService struct {
	users       ports.UserRepository
	logger      *slog.Logger
	tokenSuffix func() string
}

// UserServiceConfig contains the dependencies of UserService.
type UserServiceConfig struct {
	Users  ports.UserRepository
	Logger *slog.Logger

	// TokenSuffix returns the random tail of session tokens. Defaults to the
	// first eight characters of a random UUID.
	TokenSuffix func() string
}

var _ ports.UserService = (*UserService)(nil)

// NewUserService creates a UserService. It panics without a repository.
func NewUserService(cfg UserServiceConfig) *UserService {
	if cfg.Users == nil {
		panic("app: UserServiceConfig.Users is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	suffix := cfg.TokenSuffix
	if suffix == nil {
		suffix = func() string { return uuid.NewString()[:8] }
	}

	return &UserService{
		users:       cfg.Users,
		logger:      logger.With(slog.String("component", "app.UserService")),
		tokenSuffix: suffix,
	}
}

// Authenticate checks username and password and issues a session token.
// Unknown users and wrong passwords both yield domain.ErrUnauthenticated.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.Session, error) {
	s.logger.InfoContext(ctx, "authenticating user", slog.String("username", username))

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if domain.IsNotFound(err) {
			s.logger.WarnContext(ctx, "authentication failed",
				slog.String("username", username),
				slog.String("reason", "unknown user"),
			)
			return nil, domain.NewUnauthenticatedError(username, "unknown user")
		}
		s.logger.ErrorContext(ctx, "user lookup failed",
			slog.String("username", username),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("finding user %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "authentication failed",
			slog.String("username", username),
			slog.String("reason", "password mismatch"),
		)
		return nil, domain.NewUnauthenticatedError(username, "password mismatch")
	}

	session := &domain.Session{
		UserID: user.ID,
		Token:  fmt.Sprintf("TOKEN-%d-%s", user.ID, s.tokenSuffix()),
	}

	s.logger.InfoContext(ctx, "user authenticated", slog.Int64("user_id", user.ID))

	return session, nil
}

// GetUserByID returns the user with id or domain.ErrNotFound.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	s.logger.InfoContext(ctx, "fetching user", slog.Int64("user_id", id))

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			s.logger.WarnContext(ctx, "user not found", slog.Int64("user_id", id))
		} else {
			s.logger.ErrorContext(ctx, "user lookup failed",
				slog.Int64("user_id", id),
				slog.Any("error", err),
			)
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}

	return user, nil
}
