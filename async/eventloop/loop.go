// Package eventloop implements a single-threaded cooperative futures
// scheduler: a ready queue of tasks polled to completion, enqueueing of
// standalone futures onto the loop (Enqueue/EnqueuedFuture), and a
// BlockingContext bridging outside-the-loop goroutines onto loop-driven
// progress.
//
// The loop's lifecycle is an atomic CAS state machine (State/fastState),
// woken via a buffered channel rather than a real OS poller: this loop
// only ever dispatches futures/wakers, never raw file descriptors, so a
// single-slot wakeup channel is the only signalling path it needs.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/fimoengine/fimo/tlocal"
)

var (
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")
	ErrLoopTerminated     = errors.New("eventloop: loop has been terminated")
	ErrLoopNotRunning     = errors.New("eventloop: loop is not running")
	ErrReentrantRun       = errors.New("eventloop: cannot call Run() from within the loop")
)

// Task is a unit of work submitted to the loop. Tasks run on the loop's
// single goroutine and must not block.
type Task func()

// Loop is the single-threaded cooperative scheduler described in spec
// §4.9 and §5: the loop never preempts a task mid-poll, and suspension
// happens only at a task's own choosing (returning from the function).
type Loop struct {
	state *fastState

	mu    sync.Mutex
	ready []Task

	wakeCh chan struct{}
	wakeMu sync.Mutex

	loopGID    uint64
	loopGIDSet bool
	gidMu      sync.Mutex

	doneCh   chan struct{}
	stopOnce sync.Once
}

// New constructs a Loop in StateAwake.
func New() *Loop {
	return &Loop{
		state:  newFastState(),
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State { return l.state.Load() }

func (l *Loop) markLoopThread(id uint64) {
	l.gidMu.Lock()
	l.loopGID = id
	l.loopGIDSet = true
	l.gidMu.Unlock()
}

func (l *Loop) isLoopThread(id uint64) bool {
	l.gidMu.Lock()
	defer l.gidMu.Unlock()
	return l.loopGIDSet && l.loopGID == id
}

// Submit enqueues a task for execution on the loop, waking it if it is
// currently sleeping. Safe to call from any goroutine, including the
// loop's own.
func (l *Loop) Submit(task Task) error {
	switch l.state.Load() {
	case StateTerminated, StateTerminating:
		return ErrLoopTerminated
	}
	l.mu.Lock()
	l.ready = append(l.ready, task)
	l.mu.Unlock()
	l.wake()
	return nil
}

func (l *Loop) wake() {
	l.wakeMu.Lock()
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
	l.wakeMu.Unlock()
	l.state.TryTransition(StateSleeping, StateRunning)
}

// Run starts the loop and blocks until ctx is cancelled or Shutdown is
// called, draining the ready queue each tick and sleeping between
// wakeups. Only one goroutine may call Run at a time.
func (l *Loop) Run(ctx context.Context) error {
	gid := tlocal.GoroutineID()
	if l.isLoopThread(gid) {
		return ErrReentrantRun
	}
	if !l.state.TryTransition(StateAwake, StateRunning) {
		return ErrLoopAlreadyRunning
	}
	l.markLoopThread(gid)

	defer func() {
		l.state.Store(StateTerminated)
		l.stopOnce.Do(func() { close(l.doneCh) })
	}()

	for {
		l.drainReady()

		if l.state.Load() == StateTerminating {
			return nil
		}

		l.state.TryTransition(StateRunning, StateSleeping)
		select {
		case <-ctx.Done():
			l.state.Store(StateTerminating)
			l.drainReady()
			return ctx.Err()
		case <-l.wakeCh:
			l.state.TryTransition(StateSleeping, StateRunning)
		}

		if l.state.Load() == StateTerminating {
			l.drainReady()
			return nil
		}
	}
}

func (l *Loop) drainReady() {
	for {
		l.mu.Lock()
		if len(l.ready) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.ready
		l.ready = nil
		l.mu.Unlock()

		for _, t := range batch {
			l.safeExecute(t)
		}
	}
}

func (l *Loop) safeExecute(t Task) {
	defer func() { recover() }() //nolint:errcheck // a panicking task must not kill the loop
	t()
}

// RunToCompletion starts the loop and blocks until its ready queue (and
// any enqueued futures) have fully drained — i.e. until Shutdown is
// triggered via ctx cancellation or an explicit call.
func (l *Loop) RunToCompletion(ctx context.Context) error {
	err := l.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Shutdown requests the loop stop, and waits for it to fully terminate
// or for ctx to expire.
func (l *Loop) Shutdown(ctx context.Context) error {
	for {
		switch l.state.Load() {
		case StateTerminated:
			return nil
		case StateTerminating:
			goto wait
		case StateAwake:
			if l.state.TryTransition(StateAwake, StateTerminated) {
				l.stopOnce.Do(func() { close(l.doneCh) })
				return nil
			}
		default:
			if l.state.TryTransition(StateRunning, StateTerminating) ||
				l.state.TryTransition(StateSleeping, StateTerminating) {
				l.wake()
				goto wait
			}
		}
	}
wait:
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the loop has fully terminated.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }
