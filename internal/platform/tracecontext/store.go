package tracecontext

import (
	"maps"
	"sync"
)

// Keys of the correlation record.
const (
	KeyTraceID = "traceId"
	KeyMethod  = "method"
	KeyURI     = "uri"
)

// Store is the context mapping of a single worker.
//
// It is safe for concurrent use, but a worker serves one request at a time,
// so contention only happens when tests inspect a store from outside.
type Store struct {
	mu     sync.RWMutex
	values map[string]string

	// active is true between an owning Open and its End. gen counts owning
	// spans so views from an ended span stop resolving once the worker moves
	// on to another request.
	active bool
	gen    uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Set writes value under key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value under key and whether it was set.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Clear removes every key. Only the Boundary may call it during a request.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of the mapping.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// claim marks the store as held by an owning span and returns the span's
// generation. It reports false if a span already holds it.
func (s *Store) claim() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return s.gen, false
	}
	s.active = true
	s.gen++
	return s.gen, true
}

func (s *Store) getAt(gen uint64, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gen != gen {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) snapshotAt(gen uint64) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gen != gen {
		return map[string]string{}
	}
	return maps.Clone(s.values)
}

// release clears the mapping and drops the span's hold in one step.
func (s *Store) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
	s.active = false
}
