// Package memory provides an in-memory user repository with simulated
// lookup latency.
package memory

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/repository"
	"github.com/jsamuelsen/tracecontext-service/internal/domain"
	"github.com/jsamuelsen/tracecontext-service/internal/ports"
)

// Config configures the in-memory repository.
type Config struct {
	Users  []*domain.User
	Logger *slog.Logger
	Clock  clockz.Clock

	// FindByIDLatency and FindByUsernameLatency are waited out before each
	// lookup returns.
	FindByIDLatency       time.Duration
	FindByUsernameLatency time.Duration
}

// UserRepository stores users in maps keyed by id and username.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[int64]*domain.User
	byUsername map[string]*domain.User

	logger          *slog.Logger
	clock           clockz.Clock
	idLatency       time.Duration
	usernameLatency time.Duration
}

var (
	_ ports.UserRepository = (*UserRepository)(nil)
	_ ports.HealthChecker  = (*UserRepository)(nil)
)

// NewUserRepository creates a repository holding cfg.Users.
func NewUserRepository(cfg Config) *UserRepository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	r := &UserRepository{
		byID:            make(map[int64]*domain.User, len(cfg.Users)),
		byUsername:      make(map[string]*domain.User, len(cfg.Users)),
		logger:          logger.With(slog.String("component", "repository.memory")),
		clock:           clock,
		idLatency:       cfg.FindByIDLatency,
		usernameLatency: cfg.FindByUsernameLatency,
	}
	for _, u := range cfg.Users {
		r.put(u)
	}
	return r
}

// Save inserts or replaces a user.
func (r *UserRepository) Save(_ context.Context, user *domain.User) error {
	if user == nil || user.Username == "" {
		return domain.NewValidationError("username", "is required")
	}
	r.put(user)
	return nil
}

func (r *UserRepository) put(user *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[user.ID]; ok {
		delete(r.byUsername, old.Username)
	}
	stored := *user
	r.byID[user.ID] = &stored
	r.byUsername[user.Username] = &stored
}

// FindByID returns the user with id.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	r.logger.DebugContext(ctx, "finding user by id", slog.Int64("user_id", id))

	if err := r.wait(ctx, r.idLatency); err != nil {
		return nil, err
	}

	r.mu.RLock()
	u, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.DebugContext(ctx, "user not found", slog.Int64("user_id", id))
		return nil, domain.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}

	copied := *u
	return &copied, nil
}

// FindByUsername returns the user with username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.logger.DebugContext(ctx, "finding user by username", slog.String("username", username))

	if err := r.wait(ctx, r.usernameLatency); err != nil {
		return nil, err
	}

	r.mu.RLock()
	u, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		r.logger.DebugContext(ctx, "user not found", slog.String("username", username))
		return nil, domain.NewNotFoundError("user", username)
	}

	copied := *u
	return &copied, nil
}

func (r *UserRepository) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-r.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name implements ports.HealthChecker.
func (r *UserRepository) Name() string { return repository.HealthCheckName }

// Check implements ports.HealthChecker. The in-memory store is always ready.
func (r *UserRepository) Check(_ context.Context) error { return nil }
