package tracecontext

import "github.com/google/uuid"

// TraceIDLength is the length of generated ids.
const TraceIDLength = 8

// Generator produces a new correlation id.
type Generator func() string

// NewTraceID returns the first eight hex characters of a random UUID.
func NewTraceID() string {
	return uuid.NewString()[:TraceIDLength]
}
