// Package redis provides a user repository backed by redis. Users are
// stored as hashes under user:<id> with a user:username:<name> index key.
// Every command is logged through TraceHook and guarded by a Breaker.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/clockz"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/repository"
	"github.com/jsamuelsen/tracecontext-service/internal/domain"
	"github.com/jsamuelsen/tracecontext-service/internal/ports"
)

// ErrHealthcheckFailed is returned by Check when redis does not answer PING.
var ErrHealthcheckFailed = errors.New("redis healthcheck failed")

const (
	serviceName = "redis"

	fieldID           = "id"
	fieldUsername     = "username"
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
)

func userKey(id int64) string { return "user:" + strconv.FormatInt(id, 10) }

func usernameKey(username string) string { return "user:username:" + username }

// ClientConfig contains connection settings.
type ClientConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewClient creates a client with hooks installed. It does not connect.
func NewClient(cfg ClientConfig, hooks ...redis.Hook) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	for _, h := range hooks {
		client.AddHook(h)
	}
	return client
}

// Config contains the repository dependencies.
type Config struct {
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Clock   clockz.Clock
	Breaker BreakerConfig
}

// UserRepository implements ports.UserRepository on redis.
type UserRepository struct {
	client  redis.UniversalClient
	breaker *Breaker
	logger  *slog.Logger
}

var (
	_ ports.UserRepository = (*UserRepository)(nil)
	_ ports.HealthChecker  = (*UserRepository)(nil)
)

// NewUserRepository creates a UserRepository. It panics without a client.
func NewUserRepository(cfg Config) *UserRepository {
	if cfg.Client == nil {
		panic("redis: Config.Client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "repository.redis"))

	return &UserRepository{
		client:  cfg.Client,
		breaker: NewBreaker(cfg.Breaker, cfg.Clock, logger),
		logger:  logger,
	}
}

// Seed writes users and their username index in one transaction.
func (r *UserRepository) Seed(ctx context.Context, users []*domain.User) error {
	err := r.guard(ctx, func() error {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, u := range users {
				pipe.HSet(ctx, userKey(u.ID), map[string]any{
					fieldID:           u.ID,
					fieldUsername:     u.Username,
					fieldEmail:        u.Email,
					fieldPasswordHash: string(u.PasswordHash),
				})
				pipe.Set(ctx, usernameKey(u.Username), u.ID, 0)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("seeding users: %w", err)
	}

	r.logger.InfoContext(ctx, "seeded users", slog.Int("count", len(users)))
	return nil
}

// FindByID returns the user stored under user:<id>.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	r.logger.DebugContext(ctx, "finding user by id", slog.Int64("user_id", id))
	return r.load(ctx, id, strconv.FormatInt(id, 10))
}

// FindByUsername resolves the username index and loads the user.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.logger.DebugContext(ctx, "finding user by username", slog.String("username", username))

	var id int64
	err := r.guard(ctx, func() error {
		var err error
		id, err = r.client.Get(ctx, usernameKey(username)).Int64()
		return err
	})
	if errors.Is(err, redis.Nil) {
		r.logger.DebugContext(ctx, "user not found", slog.String("username", username))
		return nil, domain.NewNotFoundError("user", username)
	}
	if err != nil {
		return nil, err
	}

	return r.load(ctx, id, username)
}

func (r *UserRepository) load(ctx context.Context, id int64, lookup string) (*domain.User, error) {
	var fields map[string]string
	err := r.guard(ctx, func() error {
		var err error
		fields, err = r.client.HGetAll(ctx, userKey(id)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		r.logger.DebugContext(ctx, "user not found", slog.String("lookup", lookup))
		return nil, domain.NewNotFoundError("user", lookup)
	}

	return decodeUser(fields)
}

func decodeUser(fields map[string]string) (*domain.User, error) {
	id, err := strconv.ParseInt(fields[fieldID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding user id %q: %w", fields[fieldID], err)
	}
	return &domain.User{
		ID:           id,
		Username:     fields[fieldUsername],
		Email:        fields[fieldEmail],
		PasswordHash: []byte(fields[fieldPasswordHash]),
	}, nil
}

// guard runs fn behind the breaker. Transport failures come back as
// domain.UnavailableError; redis.Nil passes through untouched.
func (r *UserRepository) guard(ctx context.Context, fn func() error) error {
	if !r.breaker.Allow() {
		return domain.NewUnavailableError(serviceName, ErrCircuitOpen)
	}

	err := fn()
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		r.breaker.RecordSuccess()
		return err
	case ctx.Err() != nil:
		r.breaker.RecordAbandoned()
		return ctx.Err()
	default:
		r.breaker.RecordFailure()
		return domain.NewUnavailableError(serviceName, err)
	}
}

// Name implements ports.HealthChecker.
func (r *UserRepository) Name() string { return repository.HealthCheckName }

// Check implements ports.HealthChecker.
func (r *UserRepository) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	if state := r.breaker.State(); state == StateOpen {
		return errors.Join(ErrHealthcheckFailed, ErrCircuitOpen)
	}
	return nil
}
