package taskloop

import (
	"errors"
	"slices"
	"strings"
)

// Result represents the value carried by a finished [Future].
// It can be any type. A finished future can legitimately hold a nil result.
type Result = any

// errNilException is returned by [Future.SetException] when given a nil error.
var errNilException = errors.New("taskloop: SetException requires a non-nil error")

// FutureState represents the lifecycle state of a [Future].
// A future starts in [Pending] state and transitions exactly once to either
// [Cancelled] or [Finished]. State transitions are irreversible.
type FutureState int32

const (
	// Pending indicates the result does not exist yet.
	Pending FutureState = iota

	// Cancelled indicates the future was cancelled before a result was set.
	// Reading it yields a [CancelledError].
	Cancelled

	// Finished indicates a result or an error was set.
	Finished
)

// String returns a human-readable representation of the state.
func (s FutureState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Cancelled:
		return "cancelled"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Future is a single-assignment, observable result cell: a value or error
// that will exist later. Futures are created by [Loop.CreateFuture] (or as
// the embedded half of a [Task]) and completed exactly once via SetResult,
// SetException, or Cancel.
//
// Done-callbacks never run synchronously from the completing call; they are
// scheduled onto the loop's ready queue, so code awaiting a future never
// resumes before the code that resolved it has returned.
//
// A Future is bound to its loop goroutine. All methods must be called from
// the loop goroutine while the loop is running (or from the owning goroutine
// during setup, before the loop runs). Other goroutines must go through
// [Loop.CallSoonThreadsafe] or use the [ThreadsafeFuture] proxy.
type Future struct {
	loop   *Loop
	state  FutureState
	result Result
	err    error
	// callbacks holds the done-callbacks as unscheduled handles while the
	// future is pending; completion moves them onto the ready queue.
	callbacks []*Handle
	// retrieved is shared with the unretrieved-exception registry so the
	// diagnostic can be suppressed after the error has been observed, even
	// once the future itself has been collected.
	retrieved *retrievedFlag
	// cancel, when set, intercepts Cancel. A Task installs its cooperative
	// cancellation protocol here so cancelling the task's future requests
	// cancellation rather than forcing the state transition.
	cancel func(msg string) bool
	// label names the owning task, if any. Used in diagnostics.
	label string
	// origin is the creation site, captured only in debug mode.
	origin string
}

// newFuture creates a pending future bound to l.
func newFuture(l *Loop) *Future {
	return &Future{loop: l}
}

// Loop returns the loop this future is bound to.
func (f *Future) Loop() *Loop {
	return f.loop
}

// State returns the current [FutureState].
func (f *Future) State() FutureState {
	return f.state
}

// Done reports whether the future has left the Pending state.
func (f *Future) Done() bool {
	return f.state != Pending
}

// Cancelled reports whether the future was cancelled.
func (f *Future) Cancelled() bool {
	return f.state == Cancelled
}

// SetResult transitions a pending future to Finished with the given value
// and schedules its done-callbacks. Returns an [InvalidStateError] if the
// future is not pending.
func (f *Future) SetResult(value Result) error {
	if f.state != Pending {
		return &InvalidStateError{Op: "SetResult", State: f.state}
	}
	f.state = Finished
	f.result = value
	f.scheduleCallbacks()
	return nil
}

// SetException transitions a pending future to Finished with the given error
// and schedules its done-callbacks. Returns an [InvalidStateError] if the
// future is not pending. The stored error is re-surfaced by [Future.Result];
// if it is never retrieved before the future is collected, the loop emits an
// unretrieved-exception diagnostic.
func (f *Future) SetException(exc error) error {
	if exc == nil {
		return errNilException
	}
	if f.state != Pending {
		return &InvalidStateError{Op: "SetException", State: f.state}
	}
	f.state = Finished
	f.err = exc
	f.retrieved = f.loop.registry.track(f, exc)
	f.scheduleCallbacks()
	return nil
}

// Cancel transitions a pending future to Cancelled and schedules its
// done-callbacks. Returns false if the future is already done.
//
// For a future owned by a [Task], Cancel requests cooperative cancellation
// of the task instead of forcing the transition; see [Task.Cancel].
func (f *Future) Cancel() bool {
	return f.CancelWithMessage("")
}

// CancelWithMessage is [Future.Cancel] with a message carried by the
// resulting [CancelledError].
func (f *Future) CancelWithMessage(msg string) bool {
	if f.cancel != nil {
		return f.cancel(msg)
	}
	return f.cancelDirect(msg)
}

// cancelDirect performs the plain-future cancellation transition, bypassing
// any task cancellation hook.
func (f *Future) cancelDirect(msg string) bool {
	if f.state != Pending {
		return false
	}
	f.state = Cancelled
	f.err = &CancelledError{Message: msg}
	f.scheduleCallbacks()
	return true
}

// Result returns the future's value.
//
// It never blocks: a pending future yields an [InvalidStateError], a
// cancelled one yields its [CancelledError], and a future finished with an
// error re-surfaces that error (marking it retrieved).
func (f *Future) Result() (Result, error) {
	switch f.state {
	case Pending:
		return nil, &InvalidStateError{Op: "Result", State: f.state}
	case Cancelled:
		return nil, f.err
	}
	if f.err != nil {
		f.markRetrieved()
		return nil, f.err
	}
	return f.result, nil
}

// Exception returns the error a finished future holds, or nil if it finished
// with a value. The second return value is an [InvalidStateError] if the
// future is still pending, or the [CancelledError] if it was cancelled.
// A stored error is marked retrieved.
func (f *Future) Exception() (exc error, err error) {
	switch f.state {
	case Pending:
		return nil, &InvalidStateError{Op: "Exception", State: f.state}
	case Cancelled:
		return nil, f.err
	}
	f.markRetrieved()
	return f.err, nil
}

// AddDoneCallback registers cb to run when the future completes. The
// callback runs via the ready queue, never inline: if the future is already
// done the returned handle is scheduled immediately, otherwise it is stored
// until completion. Cancelling the returned handle prevents the callback
// from running.
func (f *Future) AddDoneCallback(cb func(*Future)) *Handle {
	h := f.loop.newHandle(func() { cb(f) })
	if f.state != Pending {
		f.loop.pushReady(h)
	} else {
		f.callbacks = append(f.callbacks, h)
	}
	return h
}

// RemoveDoneCallback removes a callback previously registered with
// AddDoneCallback, identified by the returned handle (Go functions are not
// comparable). Returns true if the handle was still registered. Callbacks
// already scheduled by a completed future are not affected.
func (f *Future) RemoveDoneCallback(h *Handle) bool {
	for i, cb := range f.callbacks {
		if cb == h {
			f.callbacks = slices.Delete(f.callbacks, i, i+1)
			return true
		}
	}
	return false
}

// String returns a debug representation of the future.
func (f *Future) String() string {
	var b strings.Builder
	b.WriteString("future(state=")
	b.WriteString(f.state.String())
	if f.label != "" {
		b.WriteString(", name=")
		b.WriteString(f.label)
	}
	if f.origin != "" {
		b.WriteString(", origin=")
		b.WriteString(f.origin)
	}
	b.WriteByte(')')
	return b.String()
}

// scheduleCallbacks moves the registered done-callbacks onto the ready
// queue. Cancelled handles are dropped here rather than queued.
func (f *Future) scheduleCallbacks() {
	if len(f.callbacks) == 0 {
		return
	}
	cbs := f.callbacks
	f.callbacks = nil
	for _, h := range cbs {
		if h.Cancelled() {
			continue
		}
		f.loop.pushReady(h)
	}
}

// markRetrieved records that the stored error has been observed, which
// suppresses the unretrieved-exception diagnostic.
func (f *Future) markRetrieved() {
	if f.retrieved != nil {
		f.retrieved.retrieved = true
	}
}

// outcome returns the completed future's (value, error) pair for resuming an
// awaiting task. Must only be called once the future is done.
func (f *Future) outcome() (Result, error) {
	if f.state == Cancelled {
		return nil, f.err
	}
	if f.err != nil {
		f.markRetrieved()
		return nil, f.err
	}
	return f.result, nil
}
