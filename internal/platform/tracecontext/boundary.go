package tracecontext

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Span outcomes recorded by Metrics.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Inbound describes the request a span is opened for.
type Inbound struct {
	// TraceID is the caller-supplied id. Empty means generate one.
	TraceID string
	Method  string
	URI     string

	// Worker identifies the pool worker serving the request. It is logged
	// next to the trace id and is not part of the correlation record.
	Worker int
}

// Boundary establishes and tears down the correlation record of each
// request. It is the only writer of a Store while requests are served.
type Boundary struct {
	clock    clockz.Clock
	generate Generator
	logger   *slog.Logger
	metrics  *Metrics
}

// BoundaryOption configures a Boundary.
type BoundaryOption func(*Boundary)

// WithClock sets the clock used to time spans.
func WithClock(clock clockz.Clock) BoundaryOption {
	return func(b *Boundary) { b.clock = clock }
}

// WithGenerator replaces NewTraceID.
func WithGenerator(g Generator) BoundaryOption {
	return func(b *Boundary) { b.generate = g }
}

// WithLogger sets the logger for span start, end and leak records.
func WithLogger(logger *slog.Logger) BoundaryOption {
	return func(b *Boundary) { b.logger = logger }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *Metrics) BoundaryOption {
	return func(b *Boundary) { b.metrics = m }
}

// NewBoundary creates a Boundary using the real clock, NewTraceID and the
// default logger unless overridden.
func NewBoundary(opts ...BoundaryOption) *Boundary {
	b := &Boundary{
		clock:    clockz.RealClock,
		generate: NewTraceID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open establishes the correlation record for in on store and returns a
// context carrying a read-only View of it, plus the Span that must be ended
// when the request unwinds.
//
// If store already has an active span, Open does not start a new one: the
// returned Span joins the existing record and its End is a no-op.
func (b *Boundary) Open(ctx context.Context, store *Store, in Inbound) (context.Context, *Span) {
	gen, owner := store.claim()
	if !owner {
		ctx = withView(ctx, store, gen)
		b.metrics.nestedOpen()
		b.logger.DebugContext(ctx, "trace context already active, joining enclosing span")
		return ctx, &Span{traceID: TraceIDFromContext(ctx)}
	}

	if store.Len() > 0 {
		stale, _ := store.Get(KeyTraceID)
		b.metrics.leakDetected()
		b.logger.WarnContext(ctx, "stale trace context on worker, clearing",
			slog.String("stale_trace_id", stale),
			slog.Int("worker", in.Worker),
		)
		store.Clear()
	}

	traceID := in.TraceID
	if traceID == "" {
		traceID = b.generate()
	}
	store.Set(KeyTraceID, traceID)
	if in.Method != "" {
		store.Set(KeyMethod, in.Method)
	}
	if in.URI != "" {
		store.Set(KeyURI, in.URI)
	}

	ctx = withView(ctx, store, gen)
	span := &Span{
		boundary: b,
		store:    store,
		traceID:  traceID,
		worker:   in.Worker,
		start:    b.clock.Now(),
		owner:    true,
	}

	b.logger.InfoContext(ctx, "request started",
		slog.String(KeyMethod, in.Method),
		slog.String(KeyURI, in.URI),
		slog.Int("worker", in.Worker),
	)

	return ctx, span
}

// Span is the release handle of one request's correlation record.
type Span struct {
	boundary *Boundary
	store    *Store
	traceID  string
	worker   int
	start    time.Time
	owner    bool
	once     sync.Once
}

// TraceID returns the correlation id of the span.
func (s *Span) TraceID() string { return s.traceID }

// Owner reports whether this span tears the record down on End.
func (s *Span) Owner() bool { return s.owner }

// End logs completion and clears the store. It runs once; later calls and
// calls on a joined span do nothing. err is logged, never altered.
func (s *Span) End(ctx context.Context, status int, err error) {
	if !s.owner {
		return
	}

	s.once.Do(func() {
		b := s.boundary
		elapsed := b.clock.Since(s.start)

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.Int("worker", s.worker),
		}
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeError
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		b.logger.LogAttrs(ctx, levelForStatus(status, err), "request completed", attrs...)
		b.metrics.spanEnded(outcome, elapsed)

		s.store.release()
	})
}

func levelForStatus(status int, err error) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest || err != nil:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
