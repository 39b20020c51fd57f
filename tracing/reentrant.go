package tracing

import (
	"sync"

	"github.com/fimoengine/fimo/tlocal"
)

// reentrantMutex allows the same goroutine to re-acquire a lock it
// already holds, the way a call stack must tolerate a subscriber
// callback re-entering enter_span/exit_span on the same stack.
type reentrantMutex struct {
	gate  sync.Mutex
	meta  sync.Mutex
	owner uint64
	depth int
}

func (m *reentrantMutex) Lock() {
	gid := tlocal.GoroutineID()
	m.meta.Lock()
	if m.depth > 0 && m.owner == gid {
		m.depth++
		m.meta.Unlock()
		return
	}
	m.meta.Unlock()

	m.gate.Lock()
	m.meta.Lock()
	m.owner = gid
	m.depth = 1
	m.meta.Unlock()
}

func (m *reentrantMutex) Unlock() {
	gid := tlocal.GoroutineID()
	m.meta.Lock()
	defer m.meta.Unlock()
	if m.depth == 0 || m.owner != gid {
		panic("tracing: reentrant mutex unlocked by non-owner")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.gate.Unlock()
	}
}
