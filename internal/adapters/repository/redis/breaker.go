package redis

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// ErrCircuitOpen is returned without contacting redis while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota

	// StateOpen rejects calls until the timeout has passed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// HalfOpenLimit is both the number of concurrent probes and the number
	// of probe successes needed to close the circuit.
	HalfOpenLimit int
}

// Breaker trips after repeated redis transport failures so a dead redis
// fails requests fast instead of tying up workers.
//
// State transitions:
//   - Closed to Open: after MaxFailures consecutive failures
//   - Open to HalfOpen: after Timeout
//   - HalfOpen to Closed: after HalfOpenLimit successes
//   - HalfOpen to Open: on any failure
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	probes      int
	lastFailure time.Time

	cfg    BreakerConfig
	clock  clockz.Clock
	logger *slog.Logger
}

// NewBreaker creates a closed breaker. Zero config values fall back to
// 5 failures, 30s and 1 probe.
func NewBreaker(cfg BreakerConfig, clock clockz.Clock, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenLimit <= 0 {
		cfg.HalfOpenLimit = 1
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{state: StateClosed, cfg: cfg, clock: clock, logger: logger}
}

// Allow reports whether a call may proceed. It moves an open circuit to
// half-open once the timeout has passed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clock.Since(b.lastFailure) < b.cfg.Timeout {
			return false
		}
		b.transitionTo(StateHalfOpen)
		b.probes = 1
		return true
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenLimit {
			return false
		}
		b.probes++
		return true
	default:
		return false
	}
}

// RecordSuccess records a call that reached redis and succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probes--
		b.successes++
		if b.successes >= b.cfg.HalfOpenLimit {
			b.transitionTo(StateClosed)
		}
	}
}

// RecordFailure records a transport failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.probes--
		b.transitionTo(StateOpen)
	}
}

// RecordAbandoned releases a half-open probe whose caller gave up before
// redis answered. It counts as neither success nor failure.
func (b *Breaker) RecordAbandoned() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionTo must be called with mu held.
func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.failures = 0
	b.successes = 0

	b.logger.Warn("redis circuit breaker state changed",
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
	)
}
