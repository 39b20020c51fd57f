// Package async implements a poll/waker futures contract: refcounted
// Wakers, single-consumer Waiters, the Future[T] poll contract and its
// combinators, and an FSM-derived multi-state future.
//
// There is no language-level coroutine support to lean on, so multi-step
// operations are expressed as explicit state machines whose states are
// polled by an external scheduler and which return control via a Waker
// callback.
package async

import "sync/atomic"

// WakeFunc is invoked when a Waker is woken. It must not block.
type WakeFunc func()

// Waker is a refcounted handle a Future stores across pending polls so
// that whatever resource it is waiting on can reschedule it later.
//
// This collapses a ref/unref/wake/wake_unref vtable to method calls on
// a single concrete type: the wake callback and refcount bookkeeping
// are simply closed-over state, no indirection needed.
type Waker struct {
	refs    atomic.Int64
	wake    WakeFunc
	onZero  func()
	woken   atomic.Bool
}

// NewWaker constructs a Waker with an initial refcount of one. onZero,
// if non-nil, runs exactly once, when the refcount reaches zero, to
// free whatever data the waker closed over.
func NewWaker(wake WakeFunc, onZero func()) *Waker {
	w := &Waker{wake: wake, onZero: onZero}
	w.refs.Store(1)
	return w
}

// Ref returns a new reference to the same Waker, incrementing the
// refcount. The returned pointer is the same Waker; Go doesn't need a
// distinct handle type, since Unref only decrements a shared counter.
func (w *Waker) Ref() *Waker {
	if w.refs.Add(1) <= 1 {
		panic("async: Ref called on a Waker with zero references")
	}
	return w
}

// Unref releases a reference, running the zero-hook exactly once when
// the last reference is released.
func (w *Waker) Unref() {
	if n := w.refs.Add(-1); n == 0 {
		if w.onZero != nil {
			w.onZero()
		}
	} else if n < 0 {
		panic("async: Waker unreferenced too many times")
	}
}

// Wake signals the task without consuming a reference.
func (w *Waker) Wake() {
	w.woken.Store(true)
	if w.wake != nil {
		w.wake()
	}
}

// WakeUnref signals the task and releases a reference, the common case
// for a resource that owns exactly one reference across a single pending
// period.
func (w *Waker) WakeUnref() {
	w.Wake()
	w.Unref()
}

// WasWoken reports whether Wake/WakeUnref has ever been called on this
// Waker. Useful for idempotency checks in adapters: waking a waker
// twice without an intervening poll should cause at most one extra
// poll.
func (w *Waker) WasWoken() bool {
	return w.woken.Load()
}

// noopWake is the shared callback for a Waker that nothing ever observes
// being woken (e.g. a first, unconditional poll of a ReadyFuture).
func noopWake() {}

// NoopWaker returns a Waker whose Wake is a no-op, for polling a future
// that is known to resolve on its first poll.
func NoopWaker() *Waker {
	return NewWaker(noopWake, nil)
}
