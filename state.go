package taskloop

import (
	"sync/atomic"
)

// LoopState represents the current lifecycle state of the event loop.
//
// State Machine:
//
//	StateStopped (0) → StateRunning (1)    [RunForever()]
//	StateRunning (1) → StateStopping (2)   [Stop() via CAS]
//	StateStopping (2) → StateStopped (0)   [run loop exits]
//	StateStopped (0) → StateClosed (3)     [Close()]
//	StateClosed (3) → (terminal)
//
// A loop alternates between Stopped and Running any number of times
// (asyncio-style run_forever/stop cycles) until it is closed.
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for contended transitions (Stop, RunForever)
//   - Use Store() only where the loop goroutine owns the transition
type LoopState uint64

const (
	// StateStopped indicates the loop exists but is not running.
	// Scheduling calls are accepted and queue up for the next run.
	StateStopped LoopState = 0
	// StateRunning indicates the loop goroutine is executing iterations.
	StateRunning LoopState = 1
	// StateStopping indicates Stop was requested; the loop finishes the
	// current iteration and returns to StateStopped.
	StateStopping LoopState = 2
	// StateClosed indicates the loop has released its resources.
	// All further scheduling calls are rejected.
	StateClosed LoopState = 3
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state machine with cache-line padding.
//
// PERFORMANCE: Uses pure atomic CAS operations with no mutex.
// Cache-line padding prevents false sharing between cores.
type loopState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      // Pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// newLoopState creates a new state machine in the Stopped state.
func newLoopState() *loopState {
	s := &loopState{}
	s.v.Store(uint64(StateStopped))
	return s
}

// Load returns the current state atomically.
func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state.
// PERFORMANCE: No transition validation.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsClosed returns true if the current state is terminal (Closed).
func (s *loopState) IsClosed() bool {
	return s.Load() == StateClosed
}

// IsRunning returns true if the loop is executing iterations, including the
// final iteration after a stop request.
func (s *loopState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateStopping
}

// CanSchedule returns true if the loop can accept new work.
func (s *loopState) CanSchedule() bool {
	return s.Load() != StateClosed
}
