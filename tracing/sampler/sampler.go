// Package sampler implements the OS sampler tracing subscriber driver:
// a worker that receives raw kernel trace records from a platform
// Source scoped to the hosting process and forwards load/unload-image,
// thread-lifecycle, context-switch, and call-stack-sample events to a
// Tracer. Forwarded events carry the Tracer's own timestamp, taken when
// they are forwarded; RawEvent.Timestamp is not converted or passed on.
// Actual kernel-level capture (perf_event_open, ETW, ptrace) is
// an external collaborator reached through the Source interface; this
// package only owns the worker loop and the platform-appropriate
// Source construction.
package sampler

import (
	"errors"
	"sync"
	"time"

	"github.com/fimoengine/fimo/tracing"
)

// ErrNotSupported is returned by Start on platforms without a Source
// implementation.
var ErrNotSupported = errors.New("sampler: not supported on this platform")

// RawEvent is one kernel trace record, in the Source's native
// monotonic clock.
type RawEvent struct {
	Kind      RawEventKind
	Timestamp time.Duration // since an arbitrary Source-defined epoch
	ThreadID  uint64
	Path      string
	Base      uint64
	Size      uint64
	Frames    []uint64
}

type RawEventKind uint8

const (
	KindStartThread RawEventKind = iota
	KindStopThread
	KindLoadImage
	KindUnloadImage
	KindContextSwitch
	KindThreadWakeup
	KindCallStackSample
)

// Source is the platform-specific raw trace feed, scoped to a single
// process id. Implementations deliver RawEvents on the returned
// channel until Close is called, at which point the channel is closed.
type Source interface {
	Events() <-chan RawEvent
	Close() error
}

// Sampler runs a Source's raw events through a conversion worker and
// forwards them to a Tracer, filtered to events it cares about.
type Sampler struct {
	tracer *tracing.Tracer
	newSrc func() (Source, error)

	mu      sync.Mutex
	src     Source
	stopped chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Sampler bound to tracer. newSource is the
// platform-specific constructor (NewLinuxSource, or a stub that always
// returns ErrNotSupported).
func New(tracer *tracing.Tracer, newSource func() (Source, error)) *Sampler {
	return &Sampler{tracer: tracer, newSrc: newSource}
}

// Start begins sampling. Returns ErrNotSupported if the platform has no
// working Source.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		return nil
	}
	src, err := s.newSrc()
	if err != nil {
		return err
	}
	s.src = src
	s.stopped = make(chan struct{})
	s.wg.Add(1)
	go s.run(src, s.stopped)
	return nil
}

// Stop ends sampling; a no-op if the platform never started (Start
// having returned ErrNotSupported and never been retried).
func (s *Sampler) Stop() {
	s.mu.Lock()
	src := s.src
	s.src = nil
	s.mu.Unlock()
	if src == nil {
		return
	}
	_ = src.Close()
	s.wg.Wait()
}

func (s *Sampler) run(src Source, stopped chan struct{}) {
	defer s.wg.Done()
	defer close(stopped)
	for ev := range src.Events() {
		s.dispatch(ev)
	}
}

func (s *Sampler) dispatch(ev RawEvent) {
	switch ev.Kind {
	case KindStartThread:
		s.tracer.EmitStartThread(ev.ThreadID)
	case KindStopThread:
		s.tracer.EmitStopThread(ev.ThreadID)
	case KindLoadImage:
		s.tracer.EmitLoadImage(ev.Path, ev.Base, ev.Size)
	case KindUnloadImage:
		s.tracer.EmitUnloadImage(ev.Base)
	case KindContextSwitch:
		s.tracer.EmitContextSwitch(ev.ThreadID)
	case KindThreadWakeup:
		s.tracer.EmitThreadWakeup(ev.ThreadID)
	case KindCallStackSample:
		s.tracer.EmitCallStackSample(ev.ThreadID, ev.Frames)
	}
}
