package async

import "github.com/fimoengine/fimo/result"

// Poll is the result of polling a Future: either Ready with a value, or
// pending (Ready == false, Value is the zero value).
type Poll[T any] struct {
	Ready bool
	Value T
}

// Ready constructs a completed Poll.
func Ready[T any](v T) Poll[T] { return Poll[T]{Ready: true, Value: v} }

// Pending constructs an incomplete Poll.
func Pending[T any]() Poll[T] { return Poll[T]{} }

// Future is the core poll contract: poll(waker) returns ready(v) or
// pending. On pending, the future must have arranged for waker to be
// woken later. A Future that has returned ready must not be polled
// again.
type Future[T any] interface {
	Poll(w *Waker) Poll[T]
}

// Deiniter is implemented by futures that hold resources needing
// release when abandoned before completion (cancellation).
type Deiniter interface {
	Deinit()
}

// FutureFunc adapts a plain poll function to the Future interface, for
// simple one-off futures that need no extra state.
type FutureFunc[T any] func(w *Waker) Poll[T]

func (f FutureFunc[T]) Poll(w *Waker) Poll[T] { return f(w) }

// readyFuture returns ready(v) on first (and only valid) poll.
type readyFuture[T any] struct {
	v    T
	done bool
}

// NewReady constructs a Future that resolves immediately with v.
func NewReady[T any](v T) Future[T] {
	return &readyFuture[T]{v: v}
}

func (f *readyFuture[T]) Poll(*Waker) Poll[T] {
	if f.done {
		panic("async: Future polled again after returning ready")
	}
	f.done = true
	return Ready(f.v)
}

// mapFuture polls inner and, once ready, applies fn to produce a value
// of a possibly different type.
type mapFuture[T, U any] struct {
	inner Future[T]
	fn    func(T) U
	done  bool
}

// Map returns a Future that polls inner and transforms its ready value
// with fn.
func Map[T, U any](inner Future[T], fn func(T) U) Future[U] {
	return &mapFuture[T, U]{inner: inner, fn: fn}
}

func (f *mapFuture[T, U]) Poll(w *Waker) Poll[U] {
	if f.done {
		panic("async: Future polled again after returning ready")
	}
	p := f.inner.Poll(w)
	if !p.Ready {
		return Pending[U]()
	}
	f.done = true
	return Ready(f.fn(p.Value))
}

func (f *mapFuture[T, U]) Deinit() {
	if d, ok := f.inner.(Deiniter); ok {
		d.Deinit()
	}
}

// Fallible is {result, value}: a future's ready value paired with an
// optional error. A zero-value Fallible (Err == nil) represents ok.
type Fallible[T any] struct {
	Err   *result.Error
	Value T
}

// Ok wraps a successful value.
func Ok[T any](v T) Fallible[T] { return Fallible[T]{Value: v} }

// Err wraps a failure; Value is the zero value of T.
func Err[T any](err *result.Error) Fallible[T] { return Fallible[T]{Err: err} }

// IsOk reports whether this Fallible carries a value rather than an error.
func (f Fallible[T]) IsOk() bool { return f.Err == nil }

// Unwrap returns (value, true) on success, or installs err into slot's
// current-result (if non-nil) and returns (zero, false) on failure.
func (f Fallible[T]) Unwrap(setResult func(*result.Error)) (T, bool) {
	if f.Err == nil {
		return f.Value, true
	}
	if setResult != nil {
		setResult(f.Err)
	}
	var zero T
	return zero, false
}

// ExternFuture is a C-ABI-shaped future: a data pointer plus a poll
// function and an optional deinit function, for futures that cross an
// extension/module boundary where a Go generic interface isn't
// available to the other side.
type ExternFuture struct {
	Data     any
	PollFn   func(data any, w *Waker) (value any, ready bool)
	DeinitFn func(data any)
}

func (f *ExternFuture) Poll(w *Waker) Poll[any] {
	v, ready := f.PollFn(f.Data, w)
	if ready {
		return Ready(v)
	}
	return Pending[any]()
}

func (f *ExternFuture) Deinit() {
	if f.DeinitFn != nil {
		f.DeinitFn(f.Data)
	}
}

// OpaqueFuture is an ExternFuture with its result type recovered as T
// via a type-asserting wrapper.
type OpaqueFuture[T any] struct {
	inner *ExternFuture
}

// NewOpaqueFuture wraps an ExternFuture, asserting its ready values to T.
func NewOpaqueFuture[T any](inner *ExternFuture) *OpaqueFuture[T] {
	return &OpaqueFuture[T]{inner: inner}
}

func (f *OpaqueFuture[T]) Poll(w *Waker) Poll[T] {
	p := f.inner.Poll(w)
	if !p.Ready {
		return Pending[T]()
	}
	return Ready(p.Value.(T))
}

func (f *OpaqueFuture[T]) Deinit() {
	f.inner.Deinit()
}
