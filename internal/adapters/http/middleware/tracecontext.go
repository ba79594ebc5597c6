// Package middleware provides HTTP middleware for the Gin framework.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/telemetry"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/workerpool"
)

// DefaultTraceHeader carries an inbound correlation id and echoes the one
// in use on the response.
const DefaultTraceHeader = "X-Trace-Id"

// TraceContextConfig configures TraceContext.
type TraceContextConfig struct {
	Pool     *workerpool.Pool
	Boundary *tracecontext.Boundary
	Logger   *slog.Logger

	// Header defaults to DefaultTraceHeader.
	Header string
}

// TraceContext is the single request boundary for correlation ids. For
// each request it:
//   - acquires a worker, answering 503 without any trace context if none
//     frees up in time
//   - opens a span on the worker's store, reusing the inbound header value
//     verbatim or generating a new id
//   - exposes the id on the response header, the gin context and the
//     OpenTelemetry server span
//   - ends the span and releases the worker when the chain unwinds, also
//     when a handler panics
//
// Handlers and everything they call only read the id through
// tracecontext.FromContext. Nothing downstream may clear the store.
func TraceContext(cfg TraceContextConfig) gin.HandlerFunc {
	if cfg.Pool == nil || cfg.Boundary == nil {
		panic("middleware: TraceContext requires a pool and a boundary")
	}
	header := cfg.Header
	if header == "" {
		header = DefaultTraceHeader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		worker, err := cfg.Pool.Acquire(c.Request.Context())
		if err != nil {
			logger.WarnContext(c.Request.Context(), "no worker available",
				slog.String("method", c.Request.Method),
				slog.String("uri", c.Request.URL.Path),
				slog.Any("error", err),
			)
			dto.AbortWithErrorCode(c, dto.ErrorCodeUnavailable, "server busy, retry later")
			return
		}
		defer cfg.Pool.Release(worker)

		ctx, span := cfg.Boundary.Open(c.Request.Context(), worker.Store(), tracecontext.Inbound{
			TraceID: c.GetHeader(header),
			Method:  c.Request.Method,
			URI:     c.Request.URL.Path,
			Worker:  worker.ID(),
		})
		c.Request = c.Request.WithContext(ctx)

		traceID := span.TraceID()
		c.Set(tracecontext.KeyTraceID, traceID)
		c.Header(header, traceID)
		telemetry.AnnotateTraceID(ctx, traceID)

		defer func() {
			if r := recover(); r != nil {
				span.End(ctx, http.StatusInternalServerError, fmt.Errorf("panic: %v", r))
				panic(r)
			}
			span.End(ctx, c.Writer.Status(), lastError(c))
		}()

		c.Next()
	}
}

func lastError(c *gin.Context) error {
	if last := c.Errors.Last(); last != nil {
		return last.Err
	}
	return nil
}
