package netsub

import (
	"net"
	"sync"
	"time"

	"github.com/fimoengine/fimo/tracing"
)

// Subscriber is a client-side tracing.Subscriber that encodes events
// onto a buffered channel and flushes them as RawBlock frames over conn
// from a single background worker goroutine. A connection failure (or
// a version-mismatched handshake never having succeeded) drops any
// remaining queued events and stops the worker; the tracing subsystem
// itself is never blocked or panicked by a dead network peer.
type Subscriber struct {
	tracing.NopSubscriber

	conn    net.Conn
	events  chan []byte
	flushed chan struct{}

	mu     sync.Mutex
	closed bool
}

// Option configures a Subscriber at construction.
type Option func(*config)

type config struct {
	queueSize     int
	flushInterval time.Duration
}

// WithQueueSize overrides the default buffered-channel depth (1024).
func WithQueueSize(n int) Option {
	return func(c *config) { c.queueSize = n }
}

// WithFlushInterval overrides the default 10ms batching window.
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) { c.flushInterval = d }
}

// New performs the client handshake over conn and starts a Subscriber
// that ships encoded events to the peer. Returns an error if the
// handshake fails or is rejected.
func New(conn net.Conn, opts ...Option) (*Subscriber, error) {
	if err := ClientHandshake(conn); err != nil {
		return nil, err
	}
	c := config{queueSize: 1024, flushInterval: 10 * time.Millisecond}
	for _, o := range opts {
		o(&c)
	}
	s := &Subscriber{
		conn:    conn,
		events:  make(chan []byte, c.queueSize),
		flushed: make(chan struct{}),
	}
	go s.run(c.flushInterval)
	return s, nil
}

func (s *Subscriber) run(flushInterval time.Duration) {
	defer close(s.flushed)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []byte
	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		if err := WriteRawBlock(s.conn, pending); err != nil {
			return false
		}
		pending = pending[:0]
		return true
	}

	for {
		select {
		case b, ok := <-s.events:
			if !ok {
				flush()
				return
			}
			pending = append(pending, b...)
			if len(pending) >= maxBlockSize {
				if !flush() {
					s.drain()
					return
				}
			}
		case <-ticker.C:
			if !flush() {
				s.drain()
				return
			}
		}
	}
}

// drain empties the channel without writing, once the connection has
// failed, so producers calling send() never block forever.
func (s *Subscriber) drain() {
	for range s.events {
	}
}

func (s *Subscriber) send(ev any) {
	b, err := Encode(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.events <- b:
	default:
	}
}

// Close stops accepting new events, flushes what's queued, sends
// Close, and closes the connection.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.events)
	<-s.flushed
	_ = WriteClose(s.conn)
	return s.conn.Close()
}

func (s *Subscriber) OnStart(ts uint64) { s.send(EventStart{Time: ts}) }
func (s *Subscriber) OnFinish(ts uint64) { s.send(EventFinish{Time: ts}) }

func (s *Subscriber) OnRegisterThread(ts, threadID uint64) {
	s.send(EventRegisterThread{Time: ts, ThreadID: threadID})
}
func (s *Subscriber) OnUnregisterThread(ts, threadID uint64) {
	s.send(EventUnregisterThread{Time: ts, ThreadID: threadID})
}

func (s *Subscriber) OnCreateCallStack(ts, stackID uint64) {
	s.send(EventCreateCallStack{Time: ts, StackID: stackID})
}
func (s *Subscriber) OnDestroyCallStack(ts, stackID uint64) {
	s.send(EventDestroyCallStack{Time: ts, StackID: stackID})
}
func (s *Subscriber) OnUnblockCallStack(ts, stackID uint64) {
	s.send(EventUnblockCallStack{Time: ts, StackID: stackID})
}
func (s *Subscriber) OnSuspendCallStack(ts, stackID uint64, markBlocked bool) {
	s.send(EventSuspendCallStack{Time: ts, StackID: stackID, MarkBlocked: markBlocked})
}
func (s *Subscriber) OnResumeCallStack(ts, stackID uint64) {
	s.send(EventResumeCallStack{Time: ts, StackID: stackID})
}

func (s *Subscriber) OnEnterSpan(ts uint64, info *tracing.EventInfo, message string) {
	s.send(EventEnterSpan{
		Time: ts, Name: info.Name, Target: info.Target, Scope: info.Scope,
		FileName: info.FileName, Line: info.LineNumber, Level: int8(info.Level), Message: message,
	})
}
func (s *Subscriber) OnExitSpan(ts uint64, info *tracing.EventInfo, isUnwinding bool) {
	s.send(EventExitSpan{Time: ts, Name: info.Name, IsUnwinding: isUnwinding})
}
func (s *Subscriber) OnLogMessage(ts uint64, info *tracing.EventInfo, message string) {
	s.send(EventLogMessage{Time: ts, Name: info.Name, Level: int8(info.Level), Message: message})
}
func (s *Subscriber) OnDeclareEventInfo(info *tracing.EventInfo) {
	s.send(EventDeclareEventInfo{
		Name: info.Name, Target: info.Target, Scope: info.Scope,
		FileName: info.FileName, Line: info.LineNumber, Level: int8(info.Level),
	})
}

func (s *Subscriber) OnStartThread(ts, threadID uint64) {
	s.send(EventStartThread{Time: ts, ThreadID: threadID})
}
func (s *Subscriber) OnStopThread(ts, threadID uint64) {
	s.send(EventStopThread{Time: ts, ThreadID: threadID})
}
func (s *Subscriber) OnLoadImage(ts uint64, path string, base, size uint64) {
	s.send(EventLoadImage{Time: ts, Path: path, Base: base, Size: size})
}
func (s *Subscriber) OnUnloadImage(ts, base uint64) {
	s.send(EventUnloadImage{Time: ts, Base: base})
}
func (s *Subscriber) OnContextSwitch(ts, threadID uint64) {
	s.send(EventContextSwitch{Time: ts, ThreadID: threadID})
}
func (s *Subscriber) OnThreadWakeup(ts, threadID uint64) {
	s.send(EventThreadWakeup{Time: ts, ThreadID: threadID})
}
func (s *Subscriber) OnCallStackSample(ts, threadID uint64, frames []uint64) {
	s.send(EventCallStackSample{Time: ts, ThreadID: threadID, Frames: frames})
}
