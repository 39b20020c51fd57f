package stderrsub_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/tracing"
	"github.com/fimoengine/fimo/tracing/stderrsub"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSubscriberRendersLogMessage(t *testing.T) {
	buf := &syncBuffer{}
	sub := stderrsub.New(stderrsub.WithWriter(buf))
	defer sub.Close()

	tr := tracing.New(sub)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	info := tracing.NewEventInfo("handler", "pkg", "scope", "handler.go", 42, tracing.LevelWarning)
	require.NoError(t, tr.LogMessage(1, info, func(any) string { return "request failed" }, nil))

	require.NoError(t, tr.UnregisterThread(1))
	sub.Close()

	out := buf.String()
	assert.Contains(t, out, "handler.go:42")
	assert.Contains(t, out, "request failed")
	assert.Contains(t, out, "\x1b[")
}

func TestSubscriberIncludesSpanBacktrace(t *testing.T) {
	buf := &syncBuffer{}
	sub := stderrsub.New(stderrsub.WithWriter(buf))
	defer sub.Close()

	tr := tracing.New(sub)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	outer := tracing.NewEventInfo("outer", "pkg", "scope", "f.go", 1, tracing.LevelInformational)
	inner := tracing.NewEventInfo("inner", "pkg", "scope", "f.go", 2, tracing.LevelInformational)
	logInfo := tracing.NewEventInfo("msg", "pkg", "scope", "f.go", 3, tracing.LevelInformational)

	require.NoError(t, tr.EnterSpan(1, outer, nil, nil))
	require.NoError(t, tr.EnterSpan(1, inner, nil, nil))
	require.NoError(t, tr.LogMessage(1, logInfo, func(any) string { return "deep" }, nil))
	require.NoError(t, tr.ExitSpan(1, inner))
	require.NoError(t, tr.ExitSpan(1, outer))

	sub.Close()

	out := buf.String()
	assert.True(t, strings.Contains(out, "outer > inner"))
}

func TestSubscriberDropsSilentlyOnWriteFailure(t *testing.T) {
	sub := stderrsub.New(stderrsub.WithWriter(failingWriter{}))
	tr := tracing.New(sub)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	info := tracing.NewEventInfo("x", "pkg", "scope", "f.go", 1, tracing.LevelError)
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.LogMessage(1, info, func(any) string { return "boom" }, nil))
	}

	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after a run of failing writes")
	}
}

func TestSubscriberAppNamePrefixAndLineCap(t *testing.T) {
	buf := &syncBuffer{}
	sub := stderrsub.New(stderrsub.WithWriter(buf), stderrsub.WithAppName("svc"), stderrsub.WithMaxLineLen(40))
	defer sub.Close()

	tr := tracing.New(sub)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	info := tracing.NewEventInfo("h", "pkg", "scope", "f.go", 1, tracing.LevelWarning)
	require.NoError(t, tr.LogMessage(1, info, func(any) string {
		return "a very long message that should not fit in forty bytes"
	}, nil))

	require.NoError(t, tr.UnregisterThread(1))
	sub.Close()

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[svc] "))
	assert.Contains(t, out, "(truncated)")
}

func TestSubscriberJSONMode(t *testing.T) {
	buf := &syncBuffer{}
	sub := stderrsub.New(stderrsub.WithWriter(buf), stderrsub.WithJSON())
	defer sub.Close()

	tr := tracing.New(sub)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	info := tracing.NewEventInfo("h", "pkg", "scope", "f.go", 7, tracing.LevelError)
	require.NoError(t, tr.LogMessage(1, info, func(any) string { return "boom" }, nil))

	require.NoError(t, tr.UnregisterThread(1))
	sub.Close()

	out := buf.String()
	assert.Contains(t, out, `"target":"pkg"`)
	assert.Contains(t, out, `"msg":"boom"`)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, assert.AnError
}
