package async

import (
	"sync"
	"sync/atomic"
)

// Waiter blocks a single goroutine using a mutex+condvar, exposing a
// Waker that signals it. It is single-consumer: only one goroutine may
// be inside Block at a time; a second concurrent call panics.
type Waiter struct {
	mu        sync.Mutex
	cond      *sync.Cond
	signaled  bool
	blocking  atomic.Bool
	waker     *Waker
}

// NewWaiter constructs a Waiter and its associated Waker.
func NewWaiter() *Waiter {
	w := &Waiter{}
	w.cond = sync.NewCond(&w.mu)
	w.waker = NewWaker(w.signal, nil)
	return w
}

// Waker returns a new reference to the Waiter's waker. Futures polled
// against this Waiter should call Ref if they intend to retain it across
// a pending return.
func (w *Waiter) Waker() *Waker {
	return w.waker.Ref()
}

func (w *Waiter) signal() {
	w.mu.Lock()
	w.signaled = true
	w.cond.Signal()
	w.mu.Unlock()
}

// Block suspends the calling goroutine until the waiter's waker is
// woken, consuming exactly one pending signal. Panics if another
// goroutine is already blocked on this Waiter.
func (w *Waiter) Block() {
	if !w.blocking.CompareAndSwap(false, true) {
		panic("async: concurrent Block on a single-consumer Waiter")
	}
	defer w.blocking.Store(false)

	w.mu.Lock()
	for !w.signaled {
		w.cond.Wait()
	}
	w.signaled = false
	w.mu.Unlock()
}

// AwaitFuture polls f repeatedly, blocking between polls via Block,
// until it returns ready, then returns the value.
func AwaitFuture[T any](w *Waiter, f Future[T]) T {
	for {
		p := f.Poll(w.Waker())
		if p.Ready {
			return p.Value
		}
		w.Block()
	}
}
