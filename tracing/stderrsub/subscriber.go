// Package stderrsub implements a worker-thread tracing subscriber that
// renders log messages and span backtraces to an io.Writer (stderr by
// default) through a queue of fixed-size blocks (unbounded in total), so a slow or
// blocked writer never stalls the emitting goroutine.
package stderrsub

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fimoengine/fimo/tlocal"
	"github.com/fimoengine/fimo/tracing"
)

// Subscriber is a tracing.Subscriber that formats log_message events
// (with file:line, ANSI color per level, and a backtrace of the
// emitting goroutine's active spans) and hands them to a background
// worker for writing.
type Subscriber struct {
	tracing.NopSubscriber

	q         *queue
	worker    *worker
	appPrefix string
	maxLine   int
	json      *jsonRenderer

	mu     sync.Mutex
	stacks map[uint64][]string
}

// Option configures a Subscriber at construction.
type Option func(*config)

type config struct {
	writer    io.Writer
	blockSize int
	appName   string
	maxLine   int
	json      bool
}

// WithWriter overrides the default os.Stderr destination.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writer = w }
}

// WithBlockSize overrides the queue's per-block capacity (must be a
// power of two per the bounded-block-queue contract; non-power-of-two
// values are rounded up).
func WithBlockSize(n int) Option {
	return func(c *config) { c.blockSize = n }
}

// WithAppName prefixes every rendered line with "[name] ", standing in
// for a tracing_config's app_name — the string tagging each line as
// belonging to this process, for consumers tailing several processes'
// stderr at once. Lines rendered by WithJSON carry no prefix.
func WithAppName(name string) Option {
	return func(c *config) { c.appName = name }
}

// WithMaxLineLen caps a single rendered log line, corresponding to a
// tracing_config's format_buffer_len: the native runtime preallocates
// a fixed per-thread formatting buffer of this size, where this
// Subscriber instead just truncates the rendered line to it. WithJSON
// output is not truncated.
func WithMaxLineLen(n int) Option {
	return func(c *config) { c.maxLine = n }
}

// WithJSON renders log_message events as newline-delimited JSON
// through github.com/joeycumines/stumpy instead of ANSI-colored plain
// text. The backtrace is carried as a single joined "spans" field
// rather than plain text's bracketed trail.
func WithJSON() Option {
	return func(c *config) { c.json = true }
}

// New constructs a Subscriber and starts its worker goroutine. Call
// Close to drain and stop it.
func New(opts ...Option) *Subscriber {
	c := config{writer: os.Stderr, blockSize: 256, maxLine: defaultMaxLineLen}
	for _, o := range opts {
		o(&c)
	}
	c.blockSize = nextPowerOfTwo(c.blockSize)

	s := &Subscriber{
		q:       newQueue(c.blockSize),
		stacks:  make(map[uint64][]string),
		maxLine: c.maxLine,
	}
	if c.appName != "" {
		s.appPrefix = "[" + c.appName + "] "
	}
	if c.json {
		s.json = newJSONRenderer(s.q)
	}
	s.worker = newWorker(s.q, c.writer)
	go s.worker.run()
	return s
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Close signals the worker to stop once the queue drains, and blocks
// until it has.
func (s *Subscriber) Close() {
	s.q.closeQueue()
	s.worker.wait()
}

func (s *Subscriber) pushSpan(name string) {
	gid := tlocal.GoroutineID()
	s.mu.Lock()
	s.stacks[gid] = append(s.stacks[gid], name)
	s.mu.Unlock()
}

func (s *Subscriber) popSpan() {
	gid := tlocal.GoroutineID()
	s.mu.Lock()
	st := s.stacks[gid]
	if len(st) > 0 {
		s.stacks[gid] = st[:len(st)-1]
	}
	s.mu.Unlock()
}

func (s *Subscriber) backtrace() []string {
	gid := tlocal.GoroutineID()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stacks[gid]
	out := make([]string, len(st))
	copy(out, st)
	return out
}

func (s *Subscriber) OnEnterSpan(_ uint64, info *tracing.EventInfo, _ string) {
	s.pushSpan(info.Name)
}

func (s *Subscriber) OnExitSpan(_ uint64, _ *tracing.EventInfo, _ bool) {
	s.popSpan()
}

func (s *Subscriber) OnLogMessage(_ uint64, info *tracing.EventInfo, message string) {
	if s.json != nil {
		s.json.render(info, s.backtrace(), message)
		return
	}

	var b strings.Builder
	b.WriteString(s.appPrefix)
	b.WriteString(colorFor(info.Level))
	fmt.Fprintf(&b, "%-7s", info.Level.String())
	b.WriteString(ansiReset)
	fmt.Fprintf(&b, " %s:%d: %s", info.FileName, info.LineNumber, message)

	if bt := s.backtrace(); len(bt) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(bt, " > "))
		b.WriteByte(']')
	}
	b.WriteByte('\n')

	s.q.push(message{line: truncateSafe(b.String(), s.maxLine)})
}
