package async_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/async"
)

type fsmData struct {
	log []string
}

func TestFSMHappyPath(t *testing.T) {
	def := async.FSMDef[fsmData, string]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step {
				d.log = append(d.log, "s0")
				return async.Next()
			},
			func(d *fsmData, w *async.Waker) async.Step {
				d.log = append(d.log, "s1")
				return async.Next()
			},
		},
		Ret: func(d *fsmData) string { return "done:" + d.log[0] + "," + d.log[1] },
	}
	fsm := async.NewFSM(def)
	p := fsm.Poll(async.NoopWaker())
	require.True(t, p.Ready)
	assert.Equal(t, "done:s0,s1", p.Value)
}

func TestFSMYield(t *testing.T) {
	calls := 0
	def := async.FSMDef[fsmData, int]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step {
				calls++
				if calls < 3 {
					w.Wake()
					return async.Yield()
				}
				return async.Ret()
			},
		},
		Ret: func(d *fsmData) int { return calls },
	}
	fsm := async.NewFSM(def)
	waker := async.NoopWaker()
	for i := 0; i < 2; i++ {
		p := fsm.Poll(waker)
		assert.False(t, p.Ready)
	}
	p := fsm.Poll(waker)
	require.True(t, p.Ready)
	assert.Equal(t, 3, p.Value)
}

func TestFSMTransition(t *testing.T) {
	def := async.FSMDef[fsmData, string]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step {
				d.log = append(d.log, "s0")
				return async.Transition(2)
			},
			func(d *fsmData, w *async.Waker) async.Step {
				d.log = append(d.log, "s1-skipped")
				return async.Next()
			},
			func(d *fsmData, w *async.Waker) async.Step {
				d.log = append(d.log, "s2")
				return async.Ret()
			},
		},
		Ret: func(d *fsmData) string { return d.log[len(d.log)-1] },
	}
	fsm := async.NewFSM(def)
	p := fsm.Poll(async.NoopWaker())
	require.True(t, p.Ready)
	assert.Equal(t, "s2", p.Value)
	assert.Equal(t, []string{"s0", "s2"}, fsm.Data().log)
}

func TestFSMUnwindOnError(t *testing.T) {
	var order []string
	boom := errors.New("boom")

	def := async.FSMDef[fsmData, string]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step { return async.Next() },
			func(d *fsmData, w *async.Waker) async.Step { return async.StateError(boom) },
		},
		Unwinds: []async.UnwindFunc[fsmData]{
			func(d *fsmData, r async.UnwindReason) async.UnwindStep {
				order = append(order, "unwind0")
				return async.UnwindNext()
			},
			func(d *fsmData, r async.UnwindReason) async.UnwindStep {
				require.Equal(t, boom, r.Err)
				order = append(order, "unwind1")
				return async.UnwindNext()
			},
		},
		Ret: func(d *fsmData) string { return "unwound" },
	}
	fsm := async.NewFSM(def)
	p := fsm.Poll(async.NoopWaker())
	require.True(t, p.Ready)
	assert.Equal(t, "unwound", p.Value)
	assert.Equal(t, []string{"unwind1", "unwind0"}, order)
}

func TestFSMDeinitAbortsAndUnwinds(t *testing.T) {
	var unwound bool
	def := async.FSMDef[fsmData, struct{}]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step {
				w.Wake()
				return async.Yield()
			},
		},
		Unwinds: []async.UnwindFunc[fsmData]{
			func(d *fsmData, r async.UnwindReason) async.UnwindStep {
				assert.True(t, r.Abort)
				unwound = true
				return async.UnwindRetNow()
			},
		},
	}
	fsm := async.NewFSM(def)
	p := fsm.Poll(async.NoopWaker())
	require.False(t, p.Ready)

	fsm.Deinit()
	assert.True(t, unwound)

	assert.Panics(t, func() { fsm.Poll(async.NoopWaker()) })
}

func TestFSMNoAbortPanicsMidRun(t *testing.T) {
	def := async.FSMDef[fsmData, struct{}]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step { return async.Next() },
			func(d *fsmData, w *async.Waker) async.Step { return async.Yield() },
		},
		NoAbort: true,
	}
	fsm := async.NewFSM(def)
	fsm.Poll(async.NoopWaker())
	assert.Panics(t, func() { fsm.Deinit() })
}

func TestFSMNoUnwindSkipsUnwindChain(t *testing.T) {
	called := false
	def := async.FSMDef[fsmData, string]{
		States: []async.StateFunc[fsmData]{
			func(d *fsmData, w *async.Waker) async.Step { return async.StateError(errors.New("x")) },
		},
		Unwinds: []async.UnwindFunc[fsmData]{
			func(d *fsmData, r async.UnwindReason) async.UnwindStep {
				called = true
				return async.UnwindNext()
			},
		},
		NoUnwind: true,
		Ret:      func(d *fsmData) string { return "skipped" },
	}
	fsm := async.NewFSM(def)
	p := fsm.Poll(async.NoopWaker())
	require.True(t, p.Ready)
	assert.Equal(t, "skipped", p.Value)
	assert.False(t, called)
}
