package eventloop

import (
	"sync"
	"sync/atomic"

	"github.com/fimoengine/fimo/async"
)

// enqueuedState tracks where an EnqueuedFuture is in its lifecycle.
type enqueuedState int32

const (
	enqueuedPending enqueuedState = iota
	enqueuedReady
	enqueuedAborted
)

// EnqueuedFuture is a future handed to the loop for driving, and polled
// from outside the loop for its result. It owns the inner future until
// the inner future reports ready or the EnqueuedFuture is Deinit'd
// (cancelled).
type EnqueuedFuture[T any] struct {
	loop  *Loop
	inner async.Future[T]

	mu    sync.Mutex
	state atomic.Int32
	value T

	cleanupData   func()
	cleanupResult func(T)

	waker *async.Waker

	readyCh chan struct{}
	once    sync.Once
}

// Enqueue hands inner to the loop and returns a handle for polling its
// progress from outside. If non-nil, cleanupData is invoked when Deinit
// cancels a future that has not completed, and cleanupResult is invoked
// with the stored value when Deinit runs after completion.
func Enqueue[T any](loop *Loop, inner async.Future[T], cleanupData func(), cleanupResult func(T)) *EnqueuedFuture[T] {
	ef := &EnqueuedFuture[T]{
		loop:          loop,
		inner:         inner,
		cleanupData:   cleanupData,
		cleanupResult: cleanupResult,
		readyCh:       make(chan struct{}),
	}
	ef.waker = async.NewWaker(ef.scheduleStep, nil)
	_ = loop.Submit(ef.step)
	return ef
}

func (ef *EnqueuedFuture[T]) scheduleStep() {
	if ef.state.Load() != int32(enqueuedPending) {
		return
	}
	_ = ef.loop.Submit(ef.step)
}

// step runs on the loop goroutine: poll the inner future once.
func (ef *EnqueuedFuture[T]) step() {
	if enqueuedState(ef.state.Load()) != enqueuedPending {
		return
	}
	p := ef.inner.Poll(ef.waker.Ref())
	ef.waker.Unref() // balance the Ref taken for this poll; inner Refs again if it retains the waker
	if !p.Ready {
		return
	}
	ef.mu.Lock()
	ef.value = p.Value
	ef.mu.Unlock()
	if ef.state.CompareAndSwap(int32(enqueuedPending), int32(enqueuedReady)) {
		ef.once.Do(func() { close(ef.readyCh) })
	}
}

// Poll reports the EnqueuedFuture's progress to an outside-the-loop
// caller: pending until the task internally reports ready.
func (ef *EnqueuedFuture[T]) Poll(w *async.Waker) async.Poll[T] {
	switch enqueuedState(ef.state.Load()) {
	case enqueuedReady:
		ef.mu.Lock()
		v := ef.value
		ef.mu.Unlock()
		return async.Ready(v)
	case enqueuedAborted:
		panic("eventloop: EnqueuedFuture polled after cancellation")
	default:
		go ef.notifyOnReady(w)
		return async.Pending[T]()
	}
}

func (ef *EnqueuedFuture[T]) notifyOnReady(w *async.Waker) {
	<-ef.readyCh
	w.Wake()
}

// Deinit cancels the EnqueuedFuture: if it hasn't completed, the task is
// signalled to stop, the inner future is Deinit'd (when it implements
// async.Deiniter) and cleanupData runs; cleanupResult is not called,
// since no result exists yet. If it has already completed, cleanupResult
// runs on the stored value.
func (ef *EnqueuedFuture[T]) Deinit() {
	if !ef.state.CompareAndSwap(int32(enqueuedPending), int32(enqueuedAborted)) {
		// already ready or already aborted
		if enqueuedState(ef.state.Load()) == enqueuedReady && ef.cleanupResult != nil {
			ef.mu.Lock()
			v := ef.value
			ef.mu.Unlock()
			ef.cleanupResult(v)
		}
		return
	}
	if d, ok := ef.inner.(async.Deiniter); ok {
		d.Deinit()
	}
	if ef.cleanupData != nil {
		ef.cleanupData()
	}
}

// BlockingContext bridges an outside-the-loop goroutine onto
// loop-driven progress: it blocks the calling goroutine until the
// future it is awaiting completes.
type BlockingContext struct {
	waiter *async.Waiter
}

// NewBlockingContext constructs a BlockingContext.
func NewBlockingContext() *BlockingContext {
	return &BlockingContext{waiter: async.NewWaiter()}
}

// BlockUntilNotified blocks until the context's waker is signalled.
func (b *BlockingContext) BlockUntilNotified() {
	b.waiter.Block()
}

// AwaitFuture polls f, blocking between polls, until ready — typically
// used against an *EnqueuedFuture[T] so the calling goroutine can wait
// for loop-driven progress without busy-polling.
func AwaitFuture[T any](b *BlockingContext, f async.Future[T]) T {
	return async.AwaitFuture[T](b.waiter, f)
}
