package tracecontext

import (
	"context"
	"log/slog"
)

// View is read-only access to the correlation record of the current request.
type View interface {
	Get(key string) (string, bool)
	TraceID() string
	Snapshot() map[string]string
}

type ctxKey struct{}

// storeView exposes a Store without its mutators. It resolves only while the
// store still serves the span it was created for.
type storeView struct {
	store *Store
	gen   uint64
}

func (v storeView) Get(key string) (string, bool) { return v.store.getAt(v.gen, key) }

func (v storeView) TraceID() string {
	id, _ := v.Get(KeyTraceID)
	return id
}

func (v storeView) Snapshot() map[string]string { return v.store.snapshotAt(v.gen) }

type emptyView struct{}

func (emptyView) Get(string) (string, bool)   { return "", false }
func (emptyView) TraceID() string             { return "" }
func (emptyView) Snapshot() map[string]string { return map[string]string{} }

// FromContext returns the View carried by ctx. Without one it returns a view
// of an empty record, so callers never need a nil check.
func FromContext(ctx context.Context) View {
	if ctx == nil {
		return emptyView{}
	}
	if v, ok := ctx.Value(ctxKey{}).(View); ok {
		return v
	}
	return emptyView{}
}

// TraceIDFromContext is shorthand for FromContext(ctx).TraceID().
func TraceIDFromContext(ctx context.Context) string {
	return FromContext(ctx).TraceID()
}

// withView attaches a read-only view of store, as of generation gen, to ctx.
func withView(ctx context.Context, store *Store, gen uint64) context.Context {
	return context.WithValue(ctx, ctxKey{}, View(storeView{store: store, gen: gen}))
}

// LogExtractor tags log records with the trace id of the request in ctx.
// It matches logging.ContextExtractor.
func LogExtractor(ctx context.Context) (slog.Attr, bool) {
	id := TraceIDFromContext(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String(KeyTraceID, id), true
}
