package redis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/clockz"

	"github.com/jsamuelsen/tracecontext-service/internal/platform/logging"
)

// TraceHook logs every redis command with the ctx it was issued under, so
// command lines carry the request's trace id. Successful commands log at
// the trace level and failures at warn.
type TraceHook struct {
	logger *slog.Logger
	clock  clockz.Clock
}

var _ redis.Hook = (*TraceHook)(nil)

// NewTraceHook creates a TraceHook.
func NewTraceHook(logger *slog.Logger, clock clockz.Clock) *TraceHook {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	return &TraceHook{logger: logger, clock: clock}
}

// DialHook logs failed dials.
func (h *TraceHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.WarnContext(ctx, "redis dial failed",
				slog.String("addr", addr),
				slog.Any("error", err),
			)
		}
		return conn, err
	}
}

// ProcessHook logs a single command.
func (h *TraceHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := h.clock.Now()
		err := next(ctx, cmd)
		h.log(ctx, cmd.FullName(), 1, h.clock.Since(start), err)
		return err
	}
}

// ProcessPipelineHook logs a pipeline as one line.
func (h *TraceHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := h.clock.Now()
		err := next(ctx, cmds)
		h.log(ctx, "pipeline", len(cmds), h.clock.Since(start), err)
		return err
	}
}

func (h *TraceHook) log(ctx context.Context, name string, n int, elapsed time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("command", name),
		slog.Duration("duration", elapsed),
	}
	if n > 1 {
		attrs = append(attrs, slog.Int("commands", n))
	}

	switch {
	case err == nil:
		h.logger.LogAttrs(ctx, logging.LevelTrace, "redis command", attrs...)
	case errors.Is(err, redis.Nil):
		attrs = append(attrs, slog.Bool("miss", true))
		h.logger.LogAttrs(ctx, logging.LevelTrace, "redis command", attrs...)
	default:
		attrs = append(attrs, slog.Any("error", err))
		h.logger.LogAttrs(ctx, slog.LevelWarn, "redis command failed", attrs...)
	}
}
