// Package tlocal implements a per-goroutine state registry used for the
// thread-local current-result slot and per-thread tracing state.
//
// Go has no native thread-local storage, and goroutines are not
// threads, but a goroutine is still a single call stack that is never
// concurrently entered, which is all the rest of the runtime needs from
// a "logical thread". Goroutines are identified by parsing the
// "goroutine NNN" prefix out of runtime.Stack, and state is keyed on
// that id in a sharded map.
package tlocal

import (
	"runtime"
	"sync"
)

// GoroutineID returns the current goroutine's runtime-assigned id. It is
// stable for the life of the goroutine and is the key used to look up
// per-thread state.
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

const shardCount = 32

type shard struct {
	mu sync.Mutex
	m  map[uint64]*Slot
}

// Registry holds one Slot per goroutine that has touched it. Entries
// must be explicitly released via Unregister: unlike native TLS, Go
// gives us no thread-exit hook to drain them automatically.
type Registry struct {
	shards [shardCount]shard
}

// Slot is the per-goroutine state: the current Result plus an arbitrary
// tracing-owned pointer (its bound call stack). Zero value is a valid,
// empty slot.
type Slot struct {
	mu        sync.Mutex
	hasError  bool
	result    any
	CallStack any // *tracing.CallStack, stored as any to avoid an import cycle
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].m = make(map[uint64]*Slot)
	}
	return r
}

func (r *Registry) shardFor(id uint64) *shard {
	return &r.shards[id%shardCount]
}

// Get returns the Slot for the current goroutine, creating it if absent.
func (r *Registry) Get() *Slot {
	return r.GetFor(GoroutineID())
}

// GetFor returns the Slot for an explicit goroutine id, creating it if
// absent. Exposed for tests that simulate multiple "threads" without
// spawning goroutines.
func (r *Registry) GetFor(id uint64) *Slot {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.m[id]
	if !ok {
		s = &Slot{}
		sh.m[id] = s
	}
	return s
}

// Unregister removes the current goroutine's Slot entirely. Callers
// must unregister before the goroutine that registered exits: Go gives
// no thread-exit hook to do this automatically.
func (r *Registry) Unregister() {
	r.UnregisterFor(GoroutineID())
}

// UnregisterFor removes an explicit goroutine id's Slot.
func (r *Registry) UnregisterFor(id uint64) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.m, id)
}

// Count returns the number of registered slots, for tests/diagnostics.
func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.Lock()
		n += len(r.shards[i].m)
		r.shards[i].mu.Unlock()
	}
	return n
}

// HasError reports whether the slot currently holds an err Result.
func (s *Slot) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasError
}

// Take returns and clears the current Result (nil if ok).
func (s *Slot) Take() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.result
	s.result, s.hasError = nil, false
	return old
}

// Set unconditionally installs a new Result, without reporting the old one.
func (s *Slot) Set(newResult any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = newResult
	s.hasError = newResult != nil
}

// Replace installs newResult and returns the previous one. onTransition,
// if non-nil, is invoked with (wasErr, isErr) so callers can maintain an
// error-present resource count alongside the slot.
func (s *Slot) Replace(newResult any, onTransition func(wasErr, isErr bool)) any {
	s.mu.Lock()
	old := s.result
	wasErr := s.hasError
	isErr := newResult != nil
	s.result, s.hasError = newResult, isErr
	s.mu.Unlock()
	if onTransition != nil && wasErr != isErr {
		onTransition(wasErr, isErr)
	}
	return old
}
