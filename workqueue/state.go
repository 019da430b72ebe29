package workqueue

import (
	"sync/atomic"
)

// State represents the current state of a worker's background context.
//
// State Machine:
//
//	StateAwake (0) → StateRunning (3)       [Run()]
//	StateRunning (3) → StateWaiting (2)     [nothing due, via CAS, under the queue lock]
//	StateWaiting (2) → StateRunning (3)     [scheduled or woken, via CAS]
//	StateRunning (3) → StateTerminated (1)  [Run() returns]
//	StateWaiting (2) → StateTerminated (1)  [Run() returns]
//	StateTerminated (1) → (terminal)
//
// Use TryTransition (CAS) for the temporary states (Running, Waiting), and
// Store only for the irreversible StateTerminated.
type State uint32

const (
	// StateAwake indicates the background context has not been started.
	StateAwake State = 0
	// StateTerminated indicates the background context has exited.
	StateTerminated State = 1
	// StateWaiting indicates the background context is blocked, with nothing
	// due to run.
	StateWaiting State = 2
	// StateRunning indicates the background context is active.
	StateRunning State = 3
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateWaiting:
		return "Waiting"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// stateMachine is a lock-free state holder.
type stateMachine struct {
	v atomic.Uint32
}

func (s *stateMachine) Load() State {
	return State(s.v.Load())
}

func (s *stateMachine) Store(state State) {
	s.v.Store(uint32(state))
}

func (s *stateMachine) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
