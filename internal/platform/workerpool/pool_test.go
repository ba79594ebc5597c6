package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
)

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Size: 0}, nil)
	require.Error(t, err)
}

func TestNew_RegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(Config{Size: 2}, reg)
	require.NoError(t, err)

	_, err = New(Config{Size: 2}, reg)
	require.Error(t, err, "registering twice on one registry must fail")
}

func TestPool_WorkersHaveDistinctStores(t *testing.T) {
	t.Parallel()

	pool, err := New(Config{Size: 3}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	seen := map[int]*tracecontext.Store{}
	var held []*Worker
	for range 3 {
		w, err := pool.Acquire(ctx)
		require.NoError(t, err)
		held = append(held, w)
		seen[w.ID()] = w.Store()
	}

	assert.Len(t, seen, 3)
	assert.Zero(t, pool.Idle())
	assert.InDelta(t, 3, testutil.ToFloat64(pool.busy), 0)

	for _, w := range held {
		pool.Release(w)
	}
	assert.Equal(t, 3, pool.Idle())
}

func TestPool_SingleWorkerIsReused(t *testing.T) {
	t.Parallel()

	pool, err := New(Config{Size: 1}, nil)
	require.NoError(t, err)

	var ids []int
	for range 3 {
		w, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		ids = append(ids, w.ID())
		pool.Release(w)
	}

	assert.Equal(t, []int{1, 1, 1}, ids)
}

func TestPool_AcquireTimesOut(t *testing.T) {
	t.Parallel()

	clock := clockz.NewFakeClock()
	pool, err := New(Config{Size: 1, AcquireTimeout: 5 * time.Second, Clock: clock}, nil)
	require.NoError(t, err)

	w, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(w)

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		errCh <- err
	}()

	require.Eventually(t, clock.HasWaiters, time.Second, time.Millisecond)

	clock.Advance(4 * time.Second)
	clock.BlockUntilReady()
	select {
	case err := <-errCh:
		t.Fatalf("acquire returned before the timeout: %v", err)
	case <-time.After(10 * time.Millisecond):
	}

	clock.Advance(time.Second)
	clock.BlockUntilReady()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrExhausted)
	case <-time.After(time.Second):
		t.Fatal("acquire did not time out")
	}
	assert.InDelta(t, 1, testutil.ToFloat64(pool.rejected), 0)
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	t.Parallel()

	pool, err := New(Config{Size: 1}, nil)
	require.NoError(t, err)

	w, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPool_AcquireWaitsForRelease(t *testing.T) {
	t.Parallel()

	clock := clockz.NewFakeClock()
	pool, err := New(Config{Size: 1, AcquireTimeout: time.Minute, Clock: clock}, nil)
	require.NoError(t, err)

	w, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		for !clock.HasWaiters() {
			time.Sleep(time.Millisecond)
		}
		pool.Release(w)
	}()

	next, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w.ID(), next.ID())
	assert.Zero(t, testutil.ToFloat64(pool.rejected))
	pool.Release(next)
}

func TestPool_NeverHandsOneWorkerToTwoCallers(t *testing.T) {
	t.Parallel()

	pool, err := New(Config{Size: 2, AcquireTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		inUse  = map[int]bool{}
		misuse bool
		wg     sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := pool.Acquire(context.Background())
			if err != nil {
				return
			}
			defer pool.Release(w)

			mu.Lock()
			if inUse[w.ID()] {
				misuse = true
			}
			inUse[w.ID()] = true
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inUse[w.ID()] = false
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.False(t, misuse)
	assert.Equal(t, 2, pool.Idle())
}

func TestPool_Check(t *testing.T) {
	t.Parallel()

	pool, err := New(Config{Size: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "worker-pool", pool.Name())
	require.NoError(t, pool.Check(context.Background()))

	w, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Error(t, pool.Check(context.Background()))

	pool.Release(w)
	require.NoError(t, pool.Check(context.Background()))
}
