package eventloop

import "sync/atomic"

// State is the event loop's lifecycle state, held in an atomic CAS
// machine narrowed to what a cooperative single-threaded loop needs.
type State uint32

const (
	// StateAwake: created, not yet started.
	StateAwake State = iota
	// StateRunning: actively draining the ready queue.
	StateRunning
	// StateSleeping: blocked waiting for a wakeup.
	StateSleeping
	// StateTerminating: Shutdown requested, draining in progress.
	StateTerminating
	// StateTerminated: fully shut down; terminal.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free atomic state holder.
type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *fastState) Load() State { return State(s.v.Load()) }

func (s *fastState) Store(state State) { s.v.Store(uint32(state)) }

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

func (s *fastState) IsTerminal() bool { return s.Load() == StateTerminated }
