package tracecontext

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the Boundary. A nil *Metrics records nothing.
type Metrics struct {
	spans    *prometheus.CounterVec
	duration prometheus.Histogram
	leaks    prometheus.Counter
	nested   prometheus.Counter
}

// NewMetrics creates the boundary collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use to avoid collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		spans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecontext_spans_total",
			Help: "Request spans ended, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracecontext_span_duration_seconds",
			Help:    "Time from context establishment to teardown.",
			Buckets: prometheus.DefBuckets,
		}),
		leaks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracecontext_leaks_total",
			Help: "Stale correlation records found on a worker at span start.",
		}),
		nested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracecontext_nested_opens_total",
			Help: "Open calls that joined an already active span.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.spans, m.duration, m.leaks, m.nested)
	}

	return m
}

func (m *Metrics) spanEnded(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.spans.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) leakDetected() {
	if m == nil {
		return
	}
	m.leaks.Inc()
}

func (m *Metrics) nestedOpen() {
	if m == nil {
		return
	}
	m.nested.Inc()
}
