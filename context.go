// Package fimo is the root of the runtime: Context construction and
// teardown, the global Handle registration, and the thread-local
// current-result slot. The tracing, async, and modules subsystems live
// in their own subpackages and are wired together here.
package fimo

import (
	"context"
	"sync"

	"github.com/fimoengine/fimo/async/eventloop"
	"github.com/fimoengine/fimo/modules"
	"github.com/fimoengine/fimo/resource"
	"github.com/fimoengine/fimo/result"
	"github.com/fimoengine/fimo/tlocal"
	"github.com/fimoengine/fimo/tracing"
)

// Context is the live runtime instance produced by Init: the tracing
// tracer, the event loop, and the module graph/loader, plus the
// resource counts that gate Deinit and the thread-local slot registry
// backing the per-thread current-result API.
type Context struct {
	Tracer *tracing.Tracer
	Loop   *eventloop.Loop
	Graph  *modules.DependencyGraph
	Loader *modules.Loader

	ErrorCount *resource.Count

	threads *tlocal.Registry

	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	deinitOnce sync.Once
}

func newContext(options Options) (*Context, error) {
	tc, _, err := options.validate()
	if err != nil {
		return nil, err
	}

	var subs []tracing.Subscriber
	registerThread := false
	maxLevel := tracing.LevelTrace
	if tc != nil {
		subs = tc.Subscribers
		registerThread = tc.RegisterThread
		if tc.MaxLevel != 0 {
			maxLevel = tc.MaxLevel
		}
	}

	ctx := &Context{
		Tracer:     tracing.New(subs...),
		Loop:       eventloop.New(),
		Graph:      modules.NewGraph(),
		ErrorCount: resource.New(),
		threads:    tlocal.NewRegistry(),
	}
	ctx.Tracer.SetDefaultMaxLevel(maxLevel)
	ctx.Loader = modules.NewLoader(ctx.Graph)

	ctx.loopCtx, ctx.loopCancel = context.WithCancel(context.Background())
	ctx.loopDone = make(chan struct{})
	go func() {
		defer close(ctx.loopDone)
		_ = ctx.Loop.RunToCompletion(ctx.loopCtx)
	}()

	if registerThread {
		if _, err := ctx.Tracer.RegisterThread(tlocal.GoroutineID()); err != nil {
			ctx.loopCancel()
			return nil, err
		}
	}

	return ctx, nil
}

// Deinit tears down the context: modules, then async, then tracing,
// then thread-local state — blocking until the tracer's thread and
// call-stack resource counts, and this context's error-result count,
// all reach zero. Idempotent per Init.
func (c *Context) Deinit() error {
	c.deinitOnce.Do(func() {
		c.Loader.Deinit()

		c.loopCancel()
		_ = c.Loop.Shutdown(context.Background())
		<-c.loopDone

		c.Tracer.Finish()

		c.Tracer.ThreadCount.WaitUntilZero()
		c.Tracer.CallStackCount.WaitUntilZero()
		c.ErrorCount.WaitUntilZero()

		globalHandle.mu.Lock()
		if globalHandle.ctx == c {
			globalHandle.ctx = nil
			globalHandle.refcount = 0
		}
		globalHandle.mu.Unlock()
	})
	return nil
}

// HasErrorResult reports whether the calling goroutine's thread-local
// slot currently holds an err Result.
func (c *Context) HasErrorResult() bool {
	return c.threads.Get().HasError()
}

// SetResult unconditionally installs newResult in the calling
// goroutine's slot.
func (c *Context) SetResult(newResult *result.Error) {
	c.threads.Get().Set(wrapResult(newResult))
}

// ReplaceResult installs newResult and returns the previous one,
// adjusting ErrorCount on ok<->err transitions.
func (c *Context) ReplaceResult(newResult *result.Error) *result.Error {
	old := c.threads.Get().Replace(wrapResult(newResult), func(wasErr, isErr bool) {
		switch {
		case !wasErr && isErr:
			c.ErrorCount.Increase()
		case wasErr && !isErr:
			c.ErrorCount.Decrease()
		}
	})
	return unwrapResult(old)
}

// TakeResult returns and clears the calling goroutine's current
// Result.
func (c *Context) TakeResult() *result.Error {
	return unwrapResult(c.threads.Get().Take())
}

func wrapResult(e *result.Error) any {
	if e == nil {
		return nil
	}
	return e
}

func unwrapResult(v any) *result.Error {
	if v == nil {
		return nil
	}
	return v.(*result.Error)
}
