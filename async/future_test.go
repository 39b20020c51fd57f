package async_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/async"
	"github.com/fimoengine/fimo/result"
)

func TestReadyFuture(t *testing.T) {
	f := async.NewReady(42)
	p := f.Poll(async.NoopWaker())
	require.True(t, p.Ready)
	assert.Equal(t, 42, p.Value)
	assert.Panics(t, func() { f.Poll(async.NoopWaker()) })
}

// countingFuture becomes ready only after N polls, waking its waker
// immediately on every pending poll (simulating an external event).
type countingFuture struct {
	remaining int
	value     int
}

func (f *countingFuture) Poll(w *async.Waker) async.Poll[int] {
	if f.remaining <= 0 {
		return async.Ready(f.value)
	}
	f.remaining--
	w.Wake()
	return async.Pending[int]()
}

func TestMapFuture(t *testing.T) {
	inner := &countingFuture{remaining: 3, value: 10}
	mapped := async.Map(inner, func(v int) string {
		return "value"
	})

	waker := async.NoopWaker()
	for i := 0; i < 3; i++ {
		p := mapped.Poll(waker)
		assert.False(t, p.Ready)
	}
	p := mapped.Poll(waker)
	require.True(t, p.Ready)
	assert.Equal(t, "value", p.Value)
}

func TestFallibleUnwrap(t *testing.T) {
	var captured *result.Error
	setResult := func(e *result.Error) { captured = e }

	ok := async.Ok(5)
	v, success := ok.Unwrap(setResult)
	assert.True(t, success)
	assert.Equal(t, 5, v)
	assert.Nil(t, captured)

	errVal := async.Err[int](result.Static("Overflow", "too big"))
	v, success = errVal.Unwrap(setResult)
	assert.False(t, success)
	assert.Equal(t, 0, v)
	require.NotNil(t, captured)
	assert.Equal(t, "Overflow", captured.Name())
}

func TestExternAndOpaqueFuture(t *testing.T) {
	polls := 0
	ext := &async.ExternFuture{
		Data: 7,
		PollFn: func(data any, w *async.Waker) (any, bool) {
			polls++
			if polls < 2 {
				return nil, false
			}
			return data.(int) * 2, true
		},
	}
	opaque := async.NewOpaqueFuture[int](ext)
	waker := async.NoopWaker()

	p := opaque.Poll(waker)
	assert.False(t, p.Ready)
	p = opaque.Poll(waker)
	require.True(t, p.Ready)
	assert.Equal(t, 14, p.Value)
}

func TestWakerRefcounting(t *testing.T) {
	freed := false
	w := async.NewWaker(func() {}, func() { freed = true })
	ref := w.Ref()
	w.Unref()
	assert.False(t, freed)
	ref.Unref()
	assert.True(t, freed)
}

func TestWakerDoubleWakeWithoutPollIsIdempotentObservation(t *testing.T) {
	calls := 0
	w := async.NewWaker(func() { calls++ }, nil)
	w.Wake()
	w.Wake()
	assert.True(t, w.WasWoken())
	assert.Equal(t, 2, calls) // the underlying callback fires each time;
	// neither the Waker nor async/eventloop de-duplicates wakes: each
	// wake of an EnqueuedFuture's waker submits one more poll step.
}
