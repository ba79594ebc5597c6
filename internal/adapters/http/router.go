package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/handlers"
	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/middleware"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/telemetry"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/workerpool"
)

// DefaultRequestTimeout is the default timeout for API requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	// Logger is the structured logger for middleware.
	Logger *slog.Logger

	// ServiceName names the OpenTelemetry server spans.
	ServiceName string

	// Pool and Boundary scope each API request to a worker's context store.
	Pool     *workerpool.Pool
	Boundary *tracecontext.Boundary

	// TraceHeader is the inbound and outbound correlation id header.
	TraceHeader string

	// Timeout is the API request deadline. Zero disables it.
	Timeout time.Duration

	HealthHandler *handlers.HealthHandler
	UserHandler   *handlers.UserHandler
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Recovery - catch panics first
//  2. OpenTelemetry - server spans and HTTP metrics
//  3. TraceContext - worker and correlation id (API routes only)
//  4. Timeout - request deadline (API routes only)
//
// Route groups:
//   - /-/ (internal): health, build info and metrics, no trace context
//   - /api/v1/ (public API): user endpoints
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(middleware.Recovery(cfg.Logger))
	engine.Use(telemetry.Middleware(cfg.ServiceName)...)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	apiV1 := engine.Group("/api/v1")
	apiV1.Use(
		middleware.TraceContext(middleware.TraceContextConfig{
			Pool:     cfg.Pool,
			Boundary: cfg.Boundary,
			Logger:   cfg.Logger,
			Header:   cfg.TraceHeader,
		}),
		middleware.Timeout(cfg.Timeout),
	)

	if cfg.UserHandler != nil {
		cfg.UserHandler.RegisterUserRoutes(apiV1)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrorCodeNotFound, "route not found"))
	})
}
