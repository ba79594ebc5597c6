// Package workerpool provides a fixed-size pool of request workers. Each
// worker owns one tracecontext.Store and serves one request at a time, so
// the store of a worker is only ever touched by the request holding it.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"

	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
)

// ErrExhausted is returned when no worker became free in time.
var ErrExhausted = errors.New("worker pool exhausted")

// Worker is a reusable execution slot.
type Worker struct {
	id    int
	store *tracecontext.Store
}

// ID returns the worker's stable index in the pool.
func (w *Worker) ID() int { return w.id }

// Store returns the worker's context store.
func (w *Worker) Store() *tracecontext.Store { return w.store }

// Config configures a Pool.
type Config struct {
	Size           int
	AcquireTimeout time.Duration

	// Clock times acquire waits. Defaults to clockz.RealClock.
	Clock clockz.Clock
}

// Pool hands out workers from a fixed set.
type Pool struct {
	workers chan *Worker
	size    int
	timeout time.Duration
	clock   clockz.Clock

	busy     prometheus.Gauge
	wait     prometheus.Histogram
	rejected prometheus.Counter
}

// New creates a pool of cfg.Size workers and registers its collectors with
// reg when reg is non-nil.
func New(cfg Config, reg prometheus.Registerer) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", cfg.Size)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	p := &Pool{
		workers: make(chan *Worker, cfg.Size),
		size:    cfg.Size,
		timeout: cfg.AcquireTimeout,
		clock:   clock,
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workerpool_busy_workers",
			Help: "Workers currently serving a request.",
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workerpool_acquire_wait_seconds",
			Help:    "Time spent waiting for a free worker.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workerpool_acquire_rejected_total",
			Help: "Requests that gave up waiting for a worker.",
		}),
	}

	if reg != nil {
		if err := registerAll(reg, p.busy, p.wait, p.rejected); err != nil {
			return nil, err
		}
	}

	for i := range cfg.Size {
		p.workers <- &Worker{id: i + 1, store: tracecontext.NewStore()}
	}

	return p, nil
}

func registerAll(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering worker pool metrics: %w", err)
		}
	}
	return nil
}

// Acquire blocks until a worker is free. It fails with ErrExhausted after
// the configured acquire timeout, or with ctx's error if ctx ends first.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	start := p.clock.Now()

	select {
	case w := <-p.workers:
		p.acquired(start)
		return w, nil
	default:
	}

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := p.clock.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C()
	}

	select {
	case w := <-p.workers:
		p.acquired(start)
		return w, nil
	case <-timeout:
		p.rejected.Inc()
		return nil, ErrExhausted
	case <-ctx.Done():
		p.rejected.Inc()
		return nil, fmt.Errorf("waiting for worker: %w", ctx.Err())
	}
}

func (p *Pool) acquired(start time.Time) {
	p.busy.Inc()
	p.wait.Observe(p.clock.Since(start).Seconds())
}

// Release returns w to the pool.
func (p *Pool) Release(w *Worker) {
	p.busy.Dec()
	p.workers <- w
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Idle returns the number of workers currently free.
func (p *Pool) Idle() int { return len(p.workers) }

// Name implements the health checker contract.
func (p *Pool) Name() string { return "worker-pool" }

// Check fails while every worker is busy, so readiness probes shed load
// before requests start timing out in Acquire.
func (p *Pool) Check(_ context.Context) error {
	if p.Idle() == 0 {
		return fmt.Errorf("all %d workers busy", p.size)
	}
	return nil
}
