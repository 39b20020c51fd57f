package fimo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo"
	"github.com/fimoengine/fimo/result"
	"github.com/fimoengine/fimo/tlocal"
	"github.com/fimoengine/fimo/tracing"
)

func TestInitRejectsDuplicateTag(t *testing.T) {
	_, err := fimo.Init(fimo.Options{
		fimo.TracingConfig{},
		fimo.TracingConfig{},
	})
	assert.ErrorIs(t, err, fimo.ErrDuplicateConfigTag)
}

func TestInitAndDeinitLifecycle(t *testing.T) {
	ctx, err := fimo.Init(fimo.Options{
		fimo.ModulesConfig{Profile: fimo.ProfileDev},
	})
	require.NoError(t, err)
	require.NotNil(t, ctx)

	require.NoError(t, ctx.Deinit())
}

func TestReplaceResultTracksErrorCount(t *testing.T) {
	ctx, err := fimo.Init(nil)
	require.NoError(t, err)
	defer ctx.Deinit()

	assert.False(t, ctx.HasErrorResult())

	old := ctx.ReplaceResult(result.Static("Test", "boom"))
	assert.Nil(t, old)
	assert.True(t, ctx.HasErrorResult())
	assert.Equal(t, int64(1), ctx.ErrorCount.Load())

	cleared := ctx.ReplaceResult(nil)
	assert.NotNil(t, cleared)
	assert.False(t, ctx.HasErrorResult())
	assert.Equal(t, int64(0), ctx.ErrorCount.Load())
}

type logRecorder struct {
	tracing.NopSubscriber
	messages []string
}

func (r *logRecorder) OnLogMessage(_ uint64, _ *tracing.EventInfo, msg string) {
	r.messages = append(r.messages, msg)
}

func TestTracingConfigMaxLevelFiltersLogMessages(t *testing.T) {
	rec := &logRecorder{}
	ctx, err := fimo.Init(fimo.Options{
		fimo.TracingConfig{
			MaxLevel:       tracing.LevelWarning,
			Subscribers:    []tracing.Subscriber{rec},
			RegisterThread: true,
		},
	})
	require.NoError(t, err)
	defer ctx.Deinit()

	threadID := tlocal.GoroutineID()
	infoSuppressed := tracing.NewEventInfo("x", "pkg", "scope", "f.go", 1, tracing.LevelInformational)
	infoAllowed := tracing.NewEventInfo("y", "pkg", "scope", "f.go", 2, tracing.LevelWarning)

	require.NoError(t, ctx.Tracer.LogMessage(threadID, infoSuppressed, func(any) string { return "suppressed" }, nil))
	require.NoError(t, ctx.Tracer.LogMessage(threadID, infoAllowed, func(any) string { return "allowed" }, nil))

	assert.Equal(t, []string{"allowed"}, rec.messages)
}

func TestDoubleInitRejected(t *testing.T) {
	ctx, err := fimo.Init(nil)
	require.NoError(t, err)
	defer ctx.Deinit()

	_, err = fimo.Init(nil)
	assert.ErrorIs(t, err, fimo.ErrAlreadyInitialized)
}
