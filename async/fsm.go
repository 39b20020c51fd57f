package async

// StepKind is the outcome of polling a single FSM state function:
// advance, suspend, finish, jump, or begin unwinding on error.
type StepKind int

const (
	// StepNext advances to state i+1 (wrapping to the terminal ret after
	// the last state).
	StepNext StepKind = iota
	// StepYield returns pending, leaving the current state unchanged.
	StepYield
	// StepRet jumps straight to the terminal ret.
	StepRet
	// StepTransition jumps to an explicit state index.
	StepTransition
	// StepError begins unwinding from the current state.
	StepError
)

// Step is returned by a state function to drive the FSM.
type Step struct {
	Kind  StepKind
	Goto  int // valid when Kind == StepTransition
	Error error // valid when Kind == StepError
}

func Next() Step                  { return Step{Kind: StepNext} }
func Yield() Step                 { return Step{Kind: StepYield} }
func Ret() Step                   { return Step{Kind: StepRet} }
func Transition(state int) Step   { return Step{Kind: StepTransition, Goto: state} }
func StateError(err error) Step   { return Step{Kind: StepError, Error: err} }

// UnwindReason is passed to an unwind function: either propagating an
// error from a state, or a plain abort (Deinit called mid-run).
type UnwindReason struct {
	Abort bool
	Err   error
}

// UnwindKind is the outcome of an unwind step.
type UnwindKind int

const (
	// UnwindContinue walks to the previous state's unwind function.
	UnwindContinue UnwindKind = iota
	// UnwindRet jumps straight to the terminal ret.
	UnwindRet
	// UnwindTransition jumps to an explicit state index.
	UnwindTransition
)

// UnwindStep is returned by an unwind function.
type UnwindStep struct {
	Kind UnwindKind
	Goto int
}

func UnwindNext() UnwindStep                { return UnwindStep{Kind: UnwindContinue} }
func UnwindRetNow() UnwindStep               { return UnwindStep{Kind: UnwindRet} }
func UnwindTransitionTo(state int) UnwindStep { return UnwindStep{Kind: UnwindTransition, Goto: state} }

// StateFunc is one numbered state of the FSM.
type StateFunc[D any] func(data *D, w *Waker) Step

// UnwindFunc is the optional unwind companion of a state, invoked when
// unwinding passes through it.
type UnwindFunc[D any] func(data *D, reason UnwindReason) UnwindStep

// FSMDef is the compile-time-ish description of an FSMFuture: its
// numbered states, optional unwind functions, and terminal ret.
type FSMDef[D, R any] struct {
	States   []StateFunc[D]
	Unwinds  []UnwindFunc[D] // may be nil, or shorter than States (nil entries skip unwinding for that state)
	Ret      func(data *D) R
	NoUnwind bool // skip unwinding entirely on error/abort
	NoAbort  bool // Deinit panics unless at state 0 or already terminal
}

// phase tracks where an in-progress FSMFuture is.
type phase int

const (
	phaseRunning phase = iota
	phaseUnwinding
	phaseTerminal
)

// FSM is a live, poll-driven instantiation of an FSMDef: a numbered
// table of state functions walked by index, with an unwind chain walked
// on error or abort, in place of compiler-generated per-state code.
type FSM[D, R any] struct {
	def    FSMDef[D, R]
	data   D
	cur    int
	ph     phase
	result R
	err    error
}

// NewFSM constructs an FSM ready to run from state 0.
func NewFSM[D, R any](def FSMDef[D, R]) *FSM[D, R] {
	if len(def.States) == 0 {
		panic("async: FSMDef must declare at least one state")
	}
	return &FSM[D, R]{def: def}
}

// Data returns a pointer to the FSM's owned data record, for
// construction-time initialization before the first Poll.
func (f *FSM[D, R]) Data() *D { return &f.data }

// Poll drives the state machine forward until it yields, completes, or
// finishes unwinding.
func (f *FSM[D, R]) Poll(w *Waker) Poll[R] {
	for {
		switch f.ph {
		case phaseTerminal:
			panic("async: FSM polled again after returning ready")

		case phaseUnwinding:
			if f.advanceUnwind(w) {
				return Ready(f.result)
			}

		default: // phaseRunning
			if f.advanceRunning(w) {
				if f.ph == phaseTerminal {
					return Ready(f.result)
				}
				return Pending[R]()
			}
		}
	}
}

// advanceRunning runs exactly one state step. Returns true if the loop
// in Poll should return control to the caller (either pending, or it
// reached terminal).
func (f *FSM[D, R]) advanceRunning(w *Waker) bool {
	step := f.def.States[f.cur](&f.data, w)
	switch step.Kind {
	case StepNext:
		f.cur++
		if f.cur >= len(f.def.States) {
			f.finish()
			return true
		}
		return false
	case StepYield:
		return true
	case StepRet:
		f.finish()
		return true
	case StepTransition:
		f.checkState(step.Goto)
		f.cur = step.Goto
		return false
	case StepError:
		f.err = step.Error
		f.beginUnwind(false)
		return f.ph == phaseTerminal
	default:
		panic("async: unknown StepKind")
	}
}

// advanceUnwind runs exactly one unwind step; returns true once
// unwinding has completed (result is populated).
func (f *FSM[D, R]) advanceUnwind(w *Waker) bool {
	if f.cur < 0 {
		f.finish()
		return true
	}
	var fn UnwindFunc[D]
	if f.cur < len(f.def.Unwinds) {
		fn = f.def.Unwinds[f.cur]
	}
	if fn == nil {
		f.cur--
		return false
	}
	step := fn(&f.data, UnwindReason{Abort: f.err == nil, Err: f.err})
	switch step.Kind {
	case UnwindContinue:
		f.cur--
		return false
	case UnwindRet:
		f.finish()
		return true
	case UnwindTransition:
		f.checkState(step.Goto)
		f.cur = step.Goto
		f.ph = phaseRunning
		return false
	default:
		panic("async: unknown UnwindKind")
	}
}

func (f *FSM[D, R]) beginUnwind(abort bool) {
	if f.def.NoUnwind {
		f.finish()
		return
	}
	f.ph = phaseUnwinding
	_ = abort
}

func (f *FSM[D, R]) finish() {
	f.ph = phaseTerminal
	if f.def.Ret != nil {
		f.result = f.def.Ret(&f.data)
	}
}

func (f *FSM[D, R]) checkState(i int) {
	if i < 0 || i >= len(f.def.States) {
		panic("async: FSM transition to out-of-range state")
	}
}

// Deinit aborts an in-progress FSM: it always runs the unwind chain
// (reason Abort=true) unless NoUnwind is set, then marks the FSM
// terminal. If NoAbort is set and the FSM isn't at state 0 or already
// terminal, this panics instead.
func (f *FSM[D, R]) Deinit() {
	if f.ph == phaseTerminal {
		return
	}
	if f.def.NoAbort && f.cur != 0 {
		panic("async: Deinit called mid-run on a no_abort FSM")
	}
	if f.ph == phaseRunning {
		f.beginUnwind(true)
	}
	w := NoopWaker()
	for f.ph == phaseUnwinding {
		f.advanceUnwind(w)
	}
	f.ph = phaseTerminal
}
