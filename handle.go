package fimo

import (
	"errors"
	"sync"

	"github.com/fimoengine/fimo/version"
)

// RuntimeVersion is this runtime's compiled-in version. Callers use
// version.Satisfies(GetVersion(), required) to check compatibility
// with their compile-time expectation.
var RuntimeVersion = version.New(0, 1, 0)

// GetVersion returns the runtime's compiled-in version.
func GetVersion() version.Version { return RuntimeVersion }

var (
	ErrAlreadyInitialized = errors.New("fimo: context already initialized")
	ErrNotInitialized     = errors.New("fimo: no context has been initialized")
)

// Handle is the global registration surrounding code acquires before
// using any subsystem. Double-init is forbidden; a second Init call
// fails until the first Context is Deinit'd.
type Handle struct {
	mu       sync.Mutex
	refcount int
	ctx      *Context
}

var globalHandle Handle

// Init registers the process-wide Context. Fails if a Context is
// already registered, or if options carries an unknown or duplicate
// config tag.
func Init(options Options) (*Context, error) {
	globalHandle.mu.Lock()
	defer globalHandle.mu.Unlock()
	if globalHandle.ctx != nil {
		return nil, ErrAlreadyInitialized
	}
	ctx, err := newContext(options)
	if err != nil {
		return nil, err
	}
	globalHandle.ctx = ctx
	globalHandle.refcount = 1
	return ctx, nil
}

// Acquire increments the global handle's refcount, returning the
// active Context. Fails if nothing is initialized.
func Acquire() (*Context, error) {
	globalHandle.mu.Lock()
	defer globalHandle.mu.Unlock()
	if globalHandle.ctx == nil {
		return nil, ErrNotInitialized
	}
	globalHandle.refcount++
	return globalHandle.ctx, nil
}

// Release decrements the global handle's refcount; at zero it runs
// Deinit on the registered Context.
func Release() error {
	globalHandle.mu.Lock()
	if globalHandle.ctx == nil {
		globalHandle.mu.Unlock()
		return ErrNotInitialized
	}
	globalHandle.refcount--
	if globalHandle.refcount > 0 {
		globalHandle.mu.Unlock()
		return nil
	}
	ctx := globalHandle.ctx
	globalHandle.ctx = nil
	globalHandle.mu.Unlock()
	return ctx.Deinit()
}
