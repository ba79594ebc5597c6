package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/tracecontext-service/internal/domain"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/workerpool"
)

type harness struct {
	engine *gin.Engine
	pool   *workerpool.Pool
	logs   *logCapture
}

func newHarness(t *testing.T, size int, register func(*gin.Engine)) *harness {
	t.Helper()
	return newHarnessWithTimeout(t, size, 50*time.Millisecond, register)
}

func newHarnessWithTimeout(t *testing.T, size int, acquire time.Duration, register func(*gin.Engine)) *harness {
	t.Helper()

	pool, err := workerpool.New(workerpool.Config{Size: size, AcquireTimeout: acquire}, nil)
	require.NoError(t, err)

	logs := &logCapture{}
	engine := gin.New()
	engine.Use(
		Recovery(logs.logger()),
		TraceContext(TraceContextConfig{
			Pool:     pool,
			Boundary: tracecontext.NewBoundary(tracecontext.WithLogger(logs.logger())),
			Logger:   logs.logger(),
		}),
	)
	register(engine)

	return &harness{engine: engine, pool: pool, logs: logs}
}

func (h *harness) do(method, path, traceHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if traceHeader != "" {
		req.Header.Set(DefaultTraceHeader, traceHeader)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

// assertAllStoresEmpty drains the pool and checks every worker's store.
func (h *harness) assertAllStoresEmpty(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	workers := make([]*workerpool.Worker, 0, h.pool.Size())
	for range h.pool.Size() {
		w, err := h.pool.Acquire(ctx)
		require.NoError(t, err)
		workers = append(workers, w)
	}
	for _, w := range workers {
		assert.Zero(t, w.Store().Len(), "worker %d store not empty", w.ID())
		h.pool.Release(w)
	}
}

func TestTraceContext_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { TraceContext(TraceContextConfig{}) })
}

func TestTraceContext_GeneratesIDWhenHeaderAbsent(t *testing.T) {
	var seen, ginKey string
	h := newHarness(t, 2, func(e *gin.Engine) {
		e.GET("/ping", func(c *gin.Context) {
			seen = tracecontext.TraceIDFromContext(c.Request.Context())
			ginKey = c.GetString(tracecontext.KeyTraceID)
			c.Status(http.StatusOK)
		})
	})

	w := h.do(http.MethodGet, "/ping", "")

	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(DefaultTraceHeader)
	assert.Len(t, id, tracecontext.TraceIDLength)
	assert.Equal(t, id, seen)
	assert.Equal(t, id, ginKey)
}

func TestTraceContext_ReusesInboundHeaderVerbatim(t *testing.T) {
	var snapshot map[string]string
	h := newHarness(t, 1, func(e *gin.Engine) {
		e.GET("/users/:id", func(c *gin.Context) {
			snapshot = tracecontext.FromContext(c.Request.Context()).Snapshot()
			c.Status(http.StatusOK)
		})
	})

	w := h.do(http.MethodGet, "/users/1?verbose=true", "abc123")

	assert.Equal(t, "abc123", w.Header().Get(DefaultTraceHeader))
	assert.Equal(t, map[string]string{
		tracecontext.KeyTraceID: "abc123",
		tracecontext.KeyMethod:  http.MethodGet,
		tracecontext.KeyURI:     "/users/1",
	}, snapshot)

	for _, e := range h.logs.entries(t) {
		assert.Equal(t, "abc123", e["traceId"], "line %v", e["msg"])
	}
}

func TestTraceContext_RecordsPathWithoutQuery(t *testing.T) {
	var uri string
	h := newHarness(t, 1, func(e *gin.Engine) {
		e.GET("/users/:id", func(c *gin.Context) {
			uri, _ = tracecontext.FromContext(c.Request.Context()).Get(tracecontext.KeyURI)
			c.Status(http.StatusOK)
		})
	})

	w := h.do(http.MethodGet, "/users/7?token=s3cr3t&password=hunter2", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "/users/7", uri)
	started := h.logs.withMessage(t, "request started")
	require.Len(t, started, 1)
	assert.Equal(t, "/users/7", started[0]["uri"])
	for _, e := range h.logs.entries(t) {
		for k, v := range e {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "s3cr3t", "attribute %s of %v", k, e["msg"])
				assert.NotContains(t, s, "hunter2", "attribute %s of %v", k, e["msg"])
			}
		}
	}
}

func TestTraceContext_StoreEmptyAfterEveryOutcome(t *testing.T) {
	tests := []struct {
		name       string
		handler    gin.HandlerFunc
		wantStatus int
		wantLevel  string
		wantError  string
	}{
		{
			name:       "success",
			handler:    func(c *gin.Context) { c.Status(http.StatusOK) },
			wantStatus: http.StatusOK,
			wantLevel:  "INFO",
		},
		{
			name: "handled error",
			handler: func(c *gin.Context) {
				dto.HandleError(c, domain.NewNotFoundError("user", "9"))
			},
			wantStatus: http.StatusNotFound,
			wantLevel:  "WARN",
			wantError:  `user with id "9" not found`,
		},
		{
			name:       "panic",
			handler:    func(*gin.Context) { panic("kaboom") },
			wantStatus: http.StatusInternalServerError,
			wantLevel:  "ERROR",
			wantError:  "panic: kaboom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1, func(e *gin.Engine) { e.GET("/x", tt.handler) })

			w := h.do(http.MethodGet, "/x", "outcome1")

			assert.Equal(t, tt.wantStatus, w.Code)
			h.assertAllStoresEmpty(t)

			completed := h.logs.withMessage(t, "request completed")
			require.Len(t, completed, 1)
			assert.Equal(t, "outcome1", completed[0]["traceId"])
			assert.EqualValues(t, tt.wantStatus, completed[0]["status"])
			assert.Equal(t, tt.wantLevel, completed[0]["level"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, completed[0]["error"])
			}
		})
	}
}

func TestTraceContext_PanicResponseCarriesTraceID(t *testing.T) {
	h := newHarness(t, 1, func(e *gin.Engine) {
		e.GET("/boom", func(*gin.Context) { panic("kaboom") })
	})

	w := h.do(http.MethodGet, "/boom", "boom0001")

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "boom0001", resp.TraceID)

	recovered := h.logs.withMessage(t, "panic recovered")
	require.Len(t, recovered, 1)
	assert.Equal(t, "boom0001", recovered[0]["traceId"])
}

func TestTraceContext_SequentialRequestsOnOneWorkerNeverShareIDs(t *testing.T) {
	const requests = 50

	seen := make([]string, 0, requests)
	h := newHarness(t, 1, func(e *gin.Engine) {
		e.GET("/seq", func(c *gin.Context) {
			seen = append(seen, tracecontext.TraceIDFromContext(c.Request.Context()))
			c.Status(http.StatusOK)
		})
	})

	unique := make(map[string]struct{}, requests)
	for i := range requests {
		w := h.do(http.MethodGet, "/seq", "")
		id := w.Header().Get(DefaultTraceHeader)
		require.Equal(t, id, seen[i])
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, requests)

	// The worker id is the same on every line while the trace id changes.
	workers := map[any]struct{}{}
	for _, e := range h.logs.withMessage(t, "request started") {
		workers[e["worker"]] = struct{}{}
	}
	assert.Len(t, workers, 1)
}

func TestTraceContext_ConcurrentRequestsStayIsolated(t *testing.T) {
	const requests = 32

	h := newHarnessWithTimeout(t, 4, 5*time.Second, func(e *gin.Engine) {
		e.GET("/conc", func(c *gin.Context) {
			ctx := c.Request.Context()
			before := tracecontext.TraceIDFromContext(ctx)
			time.Sleep(2 * time.Millisecond)
			after := tracecontext.TraceIDFromContext(ctx)
			c.String(http.StatusOK, before+"|"+after)
		})
	})
	ids := make([]string, requests)
	var g errgroup.Group
	for i := range requests {
		g.Go(func() error {
			w := h.do(http.MethodGet, "/conc", "")
			if w.Code != http.StatusOK {
				return fmt.Errorf("request %d: status %d", i, w.Code)
			}
			id := w.Header().Get(DefaultTraceHeader)
			if want := id + "|" + id; w.Body.String() != want {
				return fmt.Errorf("request %d: handler saw %q, header %q", i, w.Body.String(), id)
			}
			ids[i] = id
			return nil
		})
	}
	require.NoError(t, g.Wait())

	unique := make(map[string]struct{}, requests)
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, requests)
	h.assertAllStoresEmpty(t)
}

func TestTraceContext_ExhaustedPoolAnswers503WithoutContext(t *testing.T) {
	var handlerRan bool
	h := newHarness(t, 1, func(e *gin.Engine) {
		e.GET("/busy", func(c *gin.Context) {
			handlerRan = true
			c.Status(http.StatusOK)
		})
	})

	held, err := h.pool.Acquire(context.Background())
	require.NoError(t, err)
	defer h.pool.Release(held)

	w := h.do(http.MethodGet, "/busy", "ignored1")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, handlerRan)
	assert.Empty(t, w.Header().Get(DefaultTraceHeader))
	assert.Zero(t, held.Store().Len())

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeUnavailable, resp.Error.Code)
	assert.Empty(t, resp.TraceID)

	rejected := h.logs.withMessage(t, "no worker available")
	require.Len(t, rejected, 1)
	assert.NotContains(t, rejected[0], "traceId")
}

func TestTraceContext_EscapedContextStopsResolving(t *testing.T) {
	var escaped context.Context
	h := newHarness(t, 1, func(e *gin.Engine) {
		e.GET("/leak", func(c *gin.Context) {
			escaped = c.Request.Context()
			c.Status(http.StatusOK)
		})
	})

	h.do(http.MethodGet, "/leak", "first001")
	require.NotNil(t, escaped)
	assert.Empty(t, tracecontext.TraceIDFromContext(escaped))

	first := escaped
	h.do(http.MethodGet, "/leak", "second01")
	assert.Empty(t, tracecontext.TraceIDFromContext(first), "old ctx must not see the next request's id")
}

func TestTraceContext_CustomHeader(t *testing.T) {
	pool, err := workerpool.New(workerpool.Config{Size: 1, AcquireTimeout: time.Second}, nil)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(TraceContext(TraceContextConfig{
		Pool:     pool,
		Boundary: tracecontext.NewBoundary(tracecontext.WithLogger(discardLogger())),
		Logger:   discardLogger(),
		Header:   "X-Correlation-Id",
	}))
	engine.GET("/h", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/h", nil)
	req.Header.Set("X-Correlation-Id", "corr0001")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "corr0001", w.Header().Get("X-Correlation-Id"))
	assert.Empty(t, w.Header().Get(DefaultTraceHeader))
}
