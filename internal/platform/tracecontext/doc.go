// Package tracecontext propagates a per-request correlation id ("trace id")
// through every layer that handles an HTTP request.
//
// # Model
//
// Each pool worker owns one Store: a flat key/value map that holds the
// correlation record of whichever request the worker is serving. The store
// has no notion of owner or nesting depth. Clear wipes everything.
//
// A Boundary is the only code allowed to write to a Store. It opens a Span
// when a request enters and ends it on unwind:
//
//	ctx, span := boundary.Open(ctx, worker.Store(), tracecontext.Inbound{
//	    TraceID: r.Header.Get("X-Trace-Id"),
//	    Method:  r.Method,
//	    URI:     r.URL.RequestURI(),
//	})
//	defer span.End(ctx, status, err)
//
// Everything downstream reads the record through the View carried in ctx:
//
//	traceID := tracecontext.FromContext(ctx).TraceID()
//
// View has no setters. Code below the boundary cannot clear the record of
// the request it runs in, nor the record of an enclosing call.
//
// # Leaks
//
// A store that is non-empty when no span is active belongs to a request
// that never tore down. Open detects this, logs the stale id, counts it in
// tracecontext_leaks_total and clears the store before the new span starts.
package tracecontext
