package tracing

import (
	"errors"
	"time"
	"unsafe"

	"github.com/fimoengine/fimo/resource"
	"github.com/fimoengine/fimo/tlocal"
)

// Formatter renders a log/span message from caller-supplied data,
// standing in for the native runtime's printf-into-thread-buffer path.
type Formatter func(data any) string

var (
	ErrThreadAlreadyRegistered = errors.New("tracing: thread already registered")
	ErrThreadNotRegistered     = errors.New("tracing: thread not registered")
	ErrCallStackStillInUse     = errors.New("tracing: call stack must be empty and unblocked to unregister")
	ErrReplaceRequiresSuspended = errors.New("tracing: replace_current_call_stack requires an unbound, suspended stack")
)

// Tracer is the core tracing component: per-thread call stacks, level
// filtering, event-info interning, and fan-out to a fixed subscriber
// set established at construction.
type Tracer struct {
	start       time.Time
	subscribers []Subscriber
	infoCache   *eventInfoCache

	threads        *tlocal.Registry
	ThreadCount    *resource.Count
	CallStackCount *resource.Count

	defaultMaxLevel Level
}

// New constructs a Tracer with a fixed, never-mutated subscriber list.
// Call stacks it creates start with the least restrictive max_level
// (LevelTrace); use SetDefaultMaxLevel before registering any thread
// to start stacks more restricted.
func New(subscribers ...Subscriber) *Tracer {
	t := &Tracer{
		start:           time.Now(),
		subscribers:     append([]Subscriber(nil), subscribers...),
		infoCache:       newEventInfoCache(),
		threads:         tlocal.NewRegistry(),
		ThreadCount:     resource.New(),
		CallStackCount:  resource.New(),
		defaultMaxLevel: LevelTrace,
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnStart(ts) })
	return t
}

// SetDefaultMaxLevel sets the max_level new call stacks start at
// (register_thread, init_call_stack). It does not affect call stacks
// already created. Intended to be called once, right after New, from
// a tracing_config's max_level.
func (t *Tracer) SetDefaultMaxLevel(level Level) {
	t.defaultMaxLevel = level
}

func (t *Tracer) now() uint64 {
	return uint64(time.Since(t.start).Nanoseconds())
}

func (t *Tracer) emit(fn func(s Subscriber, ts uint64)) {
	ts := t.now()
	for _, s := range t.subscribers {
		fn(s, ts)
	}
}

// Finish notifies every subscriber of shutdown. Callers drain and
// deinit their own subscribers afterward.
func (t *Tracer) Finish() {
	t.emit(func(s Subscriber, ts uint64) { s.OnFinish(ts) })
}

// declareIfNew runs declare_event_info fan-out exactly once per
// EventInfo pointer observed (modulo benign cache-slot collisions).
func (t *Tracer) declareIfNew(info *EventInfo) {
	if t.infoCache.cacheInfo(info) {
		for _, s := range t.subscribers {
			s.OnDeclareEventInfo(info)
		}
	}
}

// RegisterThread allocates a fresh, bound call stack for the calling
// goroutine, via the same construction path InitCallStack uses (so
// create_call_stack fans out exactly as it does there), then binds and
// resumes it. Emission order is register_thread, create_call_stack,
// resume_call_stack.
func (t *Tracer) RegisterThread(threadID uint64) (*CallStack, error) {
	slot := t.threads.GetFor(threadID)
	if slot.CallStack != nil {
		return nil, ErrThreadAlreadyRegistered
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnRegisterThread(ts, threadID) })
	cs := t.InitCallStack()
	if err := cs.bind(); err != nil {
		t.DeinitCallStack(cs, false)
		return nil, err
	}
	slot.CallStack = cs
	t.ThreadCount.Increase()
	t.emit(func(s Subscriber, ts uint64) { s.OnResumeCallStack(ts, stackID(cs)) })
	return cs, nil
}

// UnregisterThread releases the calling thread's call stack, requiring
// it be empty and unblocked, tearing it down through DeinitCallStack
// so destroy_call_stack fans out before unregister_thread.
func (t *Tracer) UnregisterThread(threadID uint64) error {
	slot := t.threads.GetFor(threadID)
	cs, _ := slot.CallStack.(*CallStack)
	if cs == nil {
		return ErrThreadNotRegistered
	}
	if !cs.canUnregister() {
		return ErrCallStackStillInUse
	}
	slot.CallStack = nil
	t.threads.UnregisterFor(threadID)
	t.ThreadCount.Decrease()
	t.DeinitCallStack(cs, false)
	t.emit(func(s Subscriber, ts uint64) { s.OnUnregisterThread(ts, threadID) })
	return nil
}

// CurrentCallStack returns the calling thread's bound call stack, or
// nil if unregistered.
func (t *Tracer) CurrentCallStack(threadID uint64) *CallStack {
	slot := t.threads.GetFor(threadID)
	cs, _ := slot.CallStack.(*CallStack)
	return cs
}

// InitCallStack allocates a new suspended, unbound call stack, not yet
// attached to any thread.
func (t *Tracer) InitCallStack() *CallStack {
	cs := NewCallStackWithMaxLevel(t.defaultMaxLevel)
	t.CallStackCount.Increase()
	t.emit(func(s Subscriber, ts uint64) { s.OnCreateCallStack(ts, stackID(cs)) })
	return cs
}

// DeinitCallStack destroys a call stack. If abort is true and frames
// remain, they are unwound (exit events with isUnwinding=true) first.
func (t *Tracer) DeinitCallStack(cs *CallStack, abort bool) {
	if abort {
		cs.unwindAll(func(info *EventInfo, isUnwinding bool) {
			t.declareIfNew(info)
			t.emit(func(s Subscriber, ts uint64) { s.OnExitSpan(ts, info, isUnwinding) })
		})
	}
	t.CallStackCount.Decrease()
	t.emit(func(s Subscriber, ts uint64) { s.OnDestroyCallStack(ts, stackID(cs)) })
}

// ReplaceCurrentCallStack atomically swaps the calling thread's bound
// stack for newStack, returning the old one. newStack must be
// unbound and suspended.
func (t *Tracer) ReplaceCurrentCallStack(threadID uint64, newStack *CallStack) (*CallStack, error) {
	if newStack.State() != UnboundSuspended {
		return nil, ErrReplaceRequiresSuspended
	}
	slot := t.threads.GetFor(threadID)
	old, _ := slot.CallStack.(*CallStack)
	if old == nil {
		return nil, ErrThreadNotRegistered
	}
	if err := old.suspend(false); err != nil && !errors.Is(err, ErrCallStackNotBoundActive) {
		return nil, err
	}
	if err := old.unbind(); err != nil {
		return nil, err
	}
	if err := newStack.bind(); err != nil {
		return nil, err
	}
	slot.CallStack = newStack
	return old, nil
}

// SuspendCurrentCallStack suspends the calling thread's bound stack,
// optionally marking it blocked.
func (t *Tracer) SuspendCurrentCallStack(threadID uint64, markBlocked bool) error {
	cs := t.CurrentCallStack(threadID)
	if cs == nil {
		return ErrThreadNotRegistered
	}
	if err := cs.suspend(markBlocked); err != nil {
		return err
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnSuspendCallStack(ts, stackID(cs), markBlocked) })
	return nil
}

// ResumeCurrentCallStack resumes the calling thread's bound stack.
func (t *Tracer) ResumeCurrentCallStack(threadID uint64) error {
	cs := t.CurrentCallStack(threadID)
	if cs == nil {
		return ErrThreadNotRegistered
	}
	if err := cs.resume(); err != nil {
		return err
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnResumeCallStack(ts, stackID(cs)) })
	return nil
}

// UnblockCallStack transitions an explicit (not necessarily current)
// call stack out of the blocked state.
func (t *Tracer) UnblockCallStack(cs *CallStack) error {
	if err := cs.unblock(); err != nil {
		return err
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnUnblockCallStack(ts, stackID(cs)) })
	return nil
}

// EnterSpan pushes a frame onto the calling thread's bound stack,
// formatting data through formatter for subscriber consumption.
func (t *Tracer) EnterSpan(threadID uint64, info *EventInfo, formatter Formatter, data any) error {
	cs := t.CurrentCallStack(threadID)
	if cs == nil {
		return ErrThreadNotRegistered
	}
	if err := cs.enter(info); err != nil {
		return err
	}
	t.declareIfNew(info)
	msg := ""
	if formatter != nil {
		msg = formatter(data)
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnEnterSpan(ts, info, msg) })
	return nil
}

// ExitSpan pops the top frame, which must match info.
func (t *Tracer) ExitSpan(threadID uint64, info *EventInfo) error {
	cs := t.CurrentCallStack(threadID)
	if cs == nil {
		return ErrThreadNotRegistered
	}
	if err := cs.exit(info); err != nil {
		return err
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnExitSpan(ts, info, false) })
	return nil
}

// LogMessage emits a log event if info.Level is within the calling
// thread's current max_level.
func (t *Tracer) LogMessage(threadID uint64, info *EventInfo, formatter Formatter, data any) error {
	cs := t.CurrentCallStack(threadID)
	if cs == nil {
		return ErrThreadNotRegistered
	}
	if info.Level > cs.MaxLevel() {
		return nil
	}
	t.declareIfNew(info)
	msg := ""
	if formatter != nil {
		msg = formatter(data)
	}
	t.emit(func(s Subscriber, ts uint64) { s.OnLogMessage(ts, info, msg) })
	return nil
}

// stackID derives a stable, non-zero numeric id for wire/diagnostic
// purposes from a CallStack's address.
func stackID(cs *CallStack) uint64 {
	return uint64(uintptr(unsafe.Pointer(cs)))
}

// The Emit* methods fan OS-sampler observations (thread lifecycle,
// image load/unload, scheduling, stack samples) straight out to
// subscribers: these carry no call-stack state of their own, so they
// bypass the per-thread bookkeeping that EnterSpan/LogMessage need.

func (t *Tracer) EmitStartThread(threadID uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnStartThread(ts, threadID) })
}

func (t *Tracer) EmitStopThread(threadID uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnStopThread(ts, threadID) })
}

func (t *Tracer) EmitLoadImage(path string, base, size uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnLoadImage(ts, path, base, size) })
}

func (t *Tracer) EmitUnloadImage(base uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnUnloadImage(ts, base) })
}

func (t *Tracer) EmitContextSwitch(threadID uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnContextSwitch(ts, threadID) })
}

func (t *Tracer) EmitThreadWakeup(threadID uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnThreadWakeup(ts, threadID) })
}

func (t *Tracer) EmitCallStackSample(threadID uint64, frames []uint64) {
	t.emit(func(s Subscriber, ts uint64) { s.OnCallStackSample(ts, threadID, frames) })
}
