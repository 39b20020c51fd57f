package tracing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/tracing"
)

type recordingSubscriber struct {
	tracing.NopSubscriber
	events []string
}

func (r *recordingSubscriber) OnStart(uint64)                          { r.events = append(r.events, "start") }
func (r *recordingSubscriber) OnFinish(uint64)                         { r.events = append(r.events, "finish") }
func (r *recordingSubscriber) OnRegisterThread(uint64, uint64)         { r.events = append(r.events, "register") }
func (r *recordingSubscriber) OnUnregisterThread(uint64, uint64)       { r.events = append(r.events, "unregister") }
func (r *recordingSubscriber) OnCreateCallStack(uint64, uint64)        { r.events = append(r.events, "create") }
func (r *recordingSubscriber) OnDestroyCallStack(uint64, uint64)       { r.events = append(r.events, "destroy") }
func (r *recordingSubscriber) OnResumeCallStack(uint64, uint64)        { r.events = append(r.events, "resume") }
func (r *recordingSubscriber) OnEnterSpan(_ uint64, info *tracing.EventInfo, msg string) {
	r.events = append(r.events, "enter:"+info.Name+":"+msg)
}
func (r *recordingSubscriber) OnExitSpan(_ uint64, info *tracing.EventInfo, unwinding bool) {
	if unwinding {
		r.events = append(r.events, "unwind:"+info.Name)
	} else {
		r.events = append(r.events, "exit:"+info.Name)
	}
}
func (r *recordingSubscriber) OnLogMessage(_ uint64, info *tracing.EventInfo, msg string) {
	r.events = append(r.events, "log:"+info.Name+":"+msg)
}
func (r *recordingSubscriber) OnDeclareEventInfo(info *tracing.EventInfo) {
	r.events = append(r.events, "declare:"+info.Name)
}

func TestTracerSpanAndLogFanOut(t *testing.T) {
	rec := &recordingSubscriber{}
	tr := tracing.New(rec)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	info := tracing.NewEventInfo("work", "pkg", "scope", "f.go", 10, tracing.LevelInformational)
	require.NoError(t, tr.EnterSpan(1, info, func(any) string { return "hello" }, nil))
	require.NoError(t, tr.LogMessage(1, info, func(any) string { return "tick" }, nil))
	require.NoError(t, tr.ExitSpan(1, info))
	require.NoError(t, tr.UnregisterThread(1))

	assert.Equal(t, []string{
		"start",
		"register",
		"create",
		"resume",
		"declare:work",
		"enter:work:hello",
		"log:work:tick",
		"exit:work",
		"destroy",
		"unregister",
	}, rec.events)
}

func TestTracerDeclaresEventInfoOnlyOnce(t *testing.T) {
	rec := &recordingSubscriber{}
	tr := tracing.New(rec)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	info := tracing.NewEventInfo("repeat", "pkg", "scope", "f.go", 1, tracing.LevelDebug)
	require.NoError(t, tr.EnterSpan(1, info, nil, nil))
	require.NoError(t, tr.ExitSpan(1, info))
	require.NoError(t, tr.EnterSpan(1, info, nil, nil))
	require.NoError(t, tr.ExitSpan(1, info))

	declareCount := 0
	for _, e := range rec.events {
		if e == "declare:repeat" {
			declareCount++
		}
	}
	assert.Equal(t, 1, declareCount)
}

func TestTracerLogMessageFilteredByMaxLevel(t *testing.T) {
	rec := &recordingSubscriber{}
	tr := tracing.New(rec)
	_, err := tr.RegisterThread(1)
	require.NoError(t, err)

	spanInfo := tracing.NewEventInfo("span", "pkg", "scope", "f.go", 1, tracing.LevelWarning)
	verboseLog := tracing.NewEventInfo("verbose", "pkg", "scope", "f.go", 2, tracing.LevelDebug)

	require.NoError(t, tr.EnterSpan(1, spanInfo, nil, nil))
	require.NoError(t, tr.LogMessage(1, verboseLog, func(any) string { return "noisy" }, nil))

	for _, e := range rec.events {
		assert.NotContains(t, e, "noisy")
	}
}

func TestDeinitCallStackUnwindsOnAbort(t *testing.T) {
	rec := &recordingSubscriber{}
	tr := tracing.New(rec)

	cs := tr.InitCallStack()
	require.Equal(t, tracing.UnboundSuspended, cs.State())

	_, err := tr.ReplaceCurrentCallStack(2, cs)
	assert.Error(t, err) // thread 2 never registered

	_, err = tr.RegisterThread(2)
	require.NoError(t, err)
	old, err := tr.ReplaceCurrentCallStack(2, cs)
	require.NoError(t, err)
	require.NotNil(t, old)

	info := tracing.NewEventInfo("doomed", "pkg", "scope", "f.go", 1, tracing.LevelInformational)
	require.NoError(t, tr.EnterSpan(2, info, nil, nil))

	tr.DeinitCallStack(cs, true)

	found := false
	for _, e := range rec.events {
		if e == "unwind:doomed" {
			found = true
		}
	}
	assert.True(t, found)
}
