// Package taskloop error types with cause chain support.
package taskloop

import (
	"errors"
	"fmt"
)

var (
	// ErrLoopClosed is returned by scheduling entry points after [Loop.Close].
	ErrLoopClosed = errors.New("taskloop: loop is closed")

	// ErrLoopAlreadyRunning is returned by [Loop.RunForever] and
	// [Loop.RunUntilComplete] when the loop is already running.
	ErrLoopAlreadyRunning = errors.New("taskloop: loop is already running")

	// ErrLoopNotRunning is returned by operations that require a running loop.
	ErrLoopNotRunning = errors.New("taskloop: loop is not running")

	// ErrLoopRunning is returned by [Loop.Close] while the loop is running.
	ErrLoopRunning = errors.New("taskloop: cannot close a running loop")

	// ErrNotLoopGoroutine is returned in debug mode when a loop-goroutine-only
	// operation is invoked from another goroutine. Use
	// [Loop.CallSoonThreadsafe] from other goroutines instead.
	ErrNotLoopGoroutine = errors.New("taskloop: non-threadsafe operation invoked outside the loop goroutine")
)

// CancelledError is the canonical outcome of a cancelled [Future] or [Task].
// It propagates through awaiting tasks like any other failure unless the
// awaiting computation handles it explicitly.
type CancelledError struct {
	// Message optionally describes why cancellation was requested.
	// See [Future.CancelWithMessage].
	Message string
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Message == "" {
		return "future was cancelled"
	}
	return e.Message
}

// Is reports a match for any *CancelledError, so that
// errors.Is(err, &CancelledError{}) holds regardless of message.
func (e *CancelledError) Is(target error) bool {
	var t *CancelledError
	return errors.As(target, &t)
}

// IsCancelled reports whether err is, or wraps, a [CancelledError].
func IsCancelled(err error) bool {
	var t *CancelledError
	return errors.As(err, &t)
}

// InvalidStateError reports an operation attempted on a [Future] or [Task]
// in the wrong state, such as SetResult on an already-finished future or
// Result on a still-pending one.
type InvalidStateError struct {
	// Op is the operation that was attempted, e.g. "SetResult".
	Op string
	// State is the future state at the time of the attempt.
	State FutureState
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s on %s future", e.Op, e.State)
}

// IsInvalidState reports whether err is, or wraps, an [InvalidStateError].
func IsInvalidState(err error) bool {
	var t *InvalidStateError
	return errors.As(err, &t)
}

// TimeoutError is produced by timeout combinators such as [WaitFor] when a
// deadline elapses before the awaited future completes.
type TimeoutError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "operation timed out"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is, or wraps, a [TimeoutError].
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// PanicError wraps a value recovered from a panicking callback or task step.
// The panic never escapes the loop; it is routed to the loop's exception
// handler (for plain callbacks) or stored in the task's future (for steps).
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("taskloop: callback panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain. If the panic value is not an error (e.g., a
// string), returns nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// LoopStoppedError is returned by [Loop.RunUntilComplete] when [Loop.Stop]
// takes effect before the awaited future completes. The future may still
// complete during a later run.
type LoopStoppedError struct {
	// Future is the future that had not completed when the loop stopped.
	Future *Future
}

// Error implements the error interface.
func (e *LoopStoppedError) Error() string {
	return "taskloop: loop stopped before future completed"
}

// WrapError wraps an error with a message and optional cause chain.
//
// The result satisfies errors.Is(result, cause) == true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
