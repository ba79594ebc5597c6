// Package main is the entry point for the service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http"
	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/tracecontext-service/internal/adapters/repository"
	"github.com/jsamuelsen/tracecontext-service/internal/adapters/repository/memory"
	redisrepo "github.com/jsamuelsen/tracecontext-service/internal/adapters/repository/redis"
	"github.com/jsamuelsen/tracecontext-service/internal/app"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/config"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/logging"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/telemetry"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/workerpool"
	"github.com/jsamuelsen/tracecontext-service/internal/ports"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the service.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built.
	BuildTime = "unknown"
)

// userStore is what the composition root needs from a repository.
type userStore interface {
	ports.UserRepository
	ports.HealthChecker
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// 1. Determine profile from environment
	profile := os.Getenv("APP_APP__ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	// 2. Load and validate configuration (fail fast)
	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 3. Initialize logging; every record inside a request carries its traceId
	logger := logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		AddSource:   cfg.Log.AddSource,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
		Extractors: []logging.ContextExtractor{tracecontext.LogExtractor},
	})
	logging.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("repository", cfg.Repository.Driver),
	)

	// 4. Initialize telemetry (noop if disabled)
	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(ctx); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	// 5. Metrics registry served on /-/metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 6. Worker pool and the request boundary
	pool, err := workerpool.New(workerpool.Config{
		Size:           cfg.Workers.Size,
		AcquireTimeout: cfg.Workers.AcquireTimeout,
	}, registry)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	boundary := tracecontext.NewBoundary(
		tracecontext.WithLogger(logger),
		tracecontext.WithMetrics(tracecontext.NewMetrics(registry)),
	)

	// 7. User repository
	users, closeUsers, err := newUserStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	// 8. Health registry
	healthRegistry := ports.NewHealthRegistry()
	for _, checker := range []ports.HealthChecker{pool, users} {
		if err := healthRegistry.Register(checker); err != nil {
			return fmt.Errorf("registering %s health check: %w", checker.Name(), err)
		}
	}

	// 9. Application service and handlers
	userService := app.NewUserService(app.UserServiceConfig{
		Users:  users,
		Logger: logger,
	})

	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)
	healthHandler := handlers.NewHealthHandler(healthRegistry, buildInfo, registry)
	userHandler := handlers.NewUserHandler(userService)

	// 10. HTTP server and router
	server := http.New(&cfg.Server, logger)

	http.SetupRouter(server.Engine(), http.RouterConfig{
		Logger:        logger,
		ServiceName:   cfg.App.Name,
		Pool:          pool,
		Boundary:      boundary,
		TraceHeader:   cfg.Trace.Header,
		Timeout:       http.DefaultRequestTimeout,
		HealthHandler: healthHandler,
		UserHandler:   userHandler,
	})

	// 11. Start server (non-blocking)
	serverErr := server.Start()

	// 12. Wait for shutdown signal
	return waitForShutdown(ctx, logger, server, serverErr, cfg.Server.ShutdownTimeout)
}

// newUserStore builds the repository selected by configuration. The
// returned func releases its resources.
func newUserStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (userStore, func(), error) {
	repoCfg := cfg.Repository

	switch repoCfg.Driver {
	case config.DriverRedis:
		client := redisrepo.NewClient(redisrepo.ClientConfig{
			Addr:     repoCfg.Redis.Addr,
			Password: repoCfg.Redis.Password,
			DB:       repoCfg.Redis.DB,
		}, redisrepo.NewTraceHook(logger, nil))

		repo := redisrepo.NewUserRepository(redisrepo.Config{
			Client: client,
			Logger: logger,
			Breaker: redisrepo.BreakerConfig{
				MaxFailures:   repoCfg.Redis.Breaker.MaxFailures,
				Timeout:       repoCfg.Redis.Breaker.Timeout,
				HalfOpenLimit: repoCfg.Redis.Breaker.HalfOpenLimit,
			},
		})
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Error("closing redis client", slog.Any("error", err))
			}
		}

		if repoCfg.Redis.Seed {
			seeds, err := repository.DefaultUsers(repoCfg.BcryptCost)
			if err != nil {
				closeClient()
				return nil, nil, fmt.Errorf("hashing seed users: %w", err)
			}
			if err := repo.Seed(ctx, seeds); err != nil {
				closeClient()
				return nil, nil, fmt.Errorf("seeding redis: %w", err)
			}
			logger.Info("seeded redis users", slog.Int("count", len(seeds)))
		}

		return repo, closeClient, nil

	default:
		seeds, err := repository.DefaultUsers(repoCfg.BcryptCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing seed users: %w", err)
		}

		repo := memory.NewUserRepository(memory.Config{
			Users:                 seeds,
			Logger:                logger,
			FindByIDLatency:       repoCfg.FindByIDLatency,
			FindByUsernameLatency: repoCfg.FindByUsernameLatency,
		})

		return repo, func() {}, nil
	}
}

// waitForShutdown blocks until a shutdown signal is received or server error occurs.
// It then performs graceful shutdown of the HTTP server.
func waitForShutdown(
	ctx context.Context,
	logger *slog.Logger,
	server *http.Server,
	serverErr <-chan error,
	shutdownTimeout time.Duration,
) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)

	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	logger.Info("initiating graceful shutdown",
		slog.Duration("timeout", shutdownTimeout),
	)

	// Stop accepting new requests, drain in-flight
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}
