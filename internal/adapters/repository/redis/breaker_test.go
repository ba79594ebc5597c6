package redis

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreaker_InitialState(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenLimit: 3}, nil, quietLogger())

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_ZeroConfigUsesDefaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{}, nil, nil)

	assert.Equal(t, 5, b.cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, b.cfg.Timeout)
	assert.Equal(t, 1, b.cfg.HalfOpenLimit)
}

func TestBreaker_ClosedToOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second, HalfOpenLimit: 2}, nil, quietLogger())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second, HalfOpenLimit: 2}, nil, quietLogger())

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		afterOpen func(*Breaker)
		want      State
	}{
		{
			name:      "probe allowed after timeout",
			afterOpen: func(b *Breaker) { b.Allow() },
			want:      StateHalfOpen,
		},
		{
			name: "enough probe successes close the circuit",
			afterOpen: func(b *Breaker) {
				b.Allow()
				b.RecordSuccess()
				b.Allow()
				b.RecordSuccess()
			},
			want: StateClosed,
		},
		{
			name: "probe failure reopens the circuit",
			afterOpen: func(b *Breaker) {
				b.Allow()
				b.RecordFailure()
			},
			want: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockz.NewFakeClock()
			b := NewBreaker(BreakerConfig{MaxFailures: 1, Timeout: 100 * time.Millisecond, HalfOpenLimit: 2}, clock, quietLogger())

			b.RecordFailure()
			assert.Equal(t, StateOpen, b.State())
			assert.False(t, b.Allow())

			clock.Advance(150 * time.Millisecond)
			tt.afterOpen(b)

			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Timeout: time.Second, HalfOpenLimit: 1}, clock, quietLogger())

	b.RecordFailure()
	clock.Advance(time.Second)

	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBreaker_LogsStateChanges(t *testing.T) {
	var buf bytes.Buffer
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Timeout: time.Second, HalfOpenLimit: 1}, nil,
		slog.New(slog.NewTextHandler(&buf, nil)))

	b.RecordFailure()

	assert.Contains(t, buf.String(), "redis circuit breaker state changed")
	assert.Contains(t, buf.String(), "from=closed")
	assert.Contains(t, buf.String(), "to=open")
}

func TestBreaker_Concurrent(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 100, Timeout: time.Second, HalfOpenLimit: 10}, nil, quietLogger())

	var wg sync.WaitGroup
	for i := range 1000 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !b.Allow() {
				return
			}
			if i%2 == 0 {
				b.RecordSuccess()
			} else {
				b.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.Contains(t, []State{StateClosed, StateOpen, StateHalfOpen}, b.State())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestBreaker_AbandonedProbeFreesSlot(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Timeout: time.Second, HalfOpenLimit: 1}, clock, quietLogger())

	b.RecordFailure()
	clock.Advance(time.Second)
	assert.True(t, b.Allow())

	b.RecordAbandoned()
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow())
}
