package taskloop

import (
	"errors"
	"fmt"
	"strings"
)

// stepOp discriminates the instruction a coroutine step returns.
type stepOp int32

const (
	opAwait stepOp = iota
	opReturn
	opThrow
)

// Step is the instruction a [Coroutine] returns from one resumption: either
// suspend until a future completes ([Await]), finish with a value ([Return]),
// or finish with an error ([Throw]).
type Step struct {
	op     stepOp
	future *Future
	value  Result
	err    error
}

// Await suspends the coroutine until f completes. The next resumption
// receives f's outcome as its input.
func Await(f *Future) Step {
	return Step{op: opAwait, future: f}
}

// Return completes the coroutine with a value. Returning a value after the
// task received a cancellation suppresses the cancellation.
func Return(v Result) Step {
	return Step{op: opReturn, value: v}
}

// Throw completes the coroutine with an error. Throwing a [CancelledError]
// transitions the task to Cancelled rather than Finished.
func Throw(err error) Step {
	return Step{op: opThrow, err: err}
}

// Coroutine is the cooperative unit a [Task] drives. The loop calls Step
// repeatedly: input and inputErr carry the outcome of the previously awaited
// future (both zero on the first step), and the returned [Step] tells the
// task what to do next.
//
// A cancellation request arrives as a [CancelledError] in inputErr. A
// coroutine that does not intend to suppress the cancellation must propagate
// it with [Throw].
type Coroutine interface {
	Step(input Result, inputErr error) Step
}

// CoroutineFunc adapts a plain function to the [Coroutine] interface.
type CoroutineFunc func(input Result, inputErr error) Step

// Step calls fn.
func (fn CoroutineFunc) Step(input Result, inputErr error) Step {
	return fn(input, inputErr)
}

// Task drives a [Coroutine] to completion on its loop, one step per
// resumption. A task is a future: it completes with the coroutine's result,
// error, or cancellation, and supports the full [Future] API through its
// embedded future.
//
// The first step is scheduled when the task is created. Between steps the
// task is either suspended on an awaited future or has exactly one wake
// queued; it never has more than one pending resumption.
type Task struct {
	*Future
	coro Coroutine
	name string

	// awaiting is the future the task is suspended on, with awaitHandle the
	// done-callback registered there. Both are nil while a wake is queued or
	// a step is executing.
	awaiting    *Future
	awaitHandle *Handle

	// wakeValue and wakeErr carry the input for a queued step.
	wakeValue Result
	wakeErr   error

	// wakePending guards the one-pending-wake invariant.
	wakePending bool
	// stepping is set while the coroutine is executing a step.
	stepping bool
	// cancelRequested arranges for the next step to receive a
	// CancelledError in place of its input.
	cancelRequested bool
	cancelMessage   string
}

// newTask creates a task and schedules its first step.
func newTask(l *Loop, coro Coroutine, name string) *Task {
	t := &Task{
		Future: newFuture(l),
		coro:   coro,
		name:   name,
	}
	t.Future.cancel = t.requestCancel
	t.Future.label = name
	t.scheduleStep(nil, nil)
	return t
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// Cancel requests cooperative cancellation of the task. If the task is
// suspended on a future it alone is waiting on, that future is cancelled and
// the cancellation is delivered when the task resumes. Otherwise the task's
// next step receives a [CancelledError] as its input.
//
// Returns false if the task is already done. A true return means the
// cancellation was requested, not that the task will end up Cancelled: the
// coroutine may suppress it by returning a value.
func (t *Task) Cancel() bool {
	return t.CancelWithMessage("")
}

// CancelWithMessage is [Task.Cancel] with a message carried by the
// resulting [CancelledError].
func (t *Task) CancelWithMessage(msg string) bool {
	return t.requestCancel(msg)
}

func (t *Task) requestCancel(msg string) bool {
	if t.Future.Done() {
		return false
	}
	t.cancelMessage = msg
	if f := t.awaiting; f != nil {
		h := t.awaitHandle
		if f.state == Pending && len(f.callbacks) == 1 && f.callbacks[0] == h {
			// Sole waiter: cancel the awaited future and let its completion
			// deliver the CancelledError through the normal wake path.
			f.CancelWithMessage(msg)
			return true
		}
		// The future is shared with other waiters, or already completed with
		// our wake in flight. Detach and deliver the cancellation directly.
		f.RemoveDoneCallback(h)
		h.Cancel()
		t.awaiting, t.awaitHandle = nil, nil
		t.cancelRequested = true
		t.scheduleStep(nil, nil)
		return true
	}
	// A wake is already queued, or the task is mid-step. The flag replaces
	// the input of the next step delivery.
	t.cancelRequested = true
	return true
}

// scheduleStep queues one resumption carrying (v, e) as the step input.
func (t *Task) scheduleStep(v Result, e error) {
	if t.wakePending || t.Future.Done() {
		return
	}
	t.wakePending = true
	t.wakeValue, t.wakeErr = v, e
	t.loop.pushReady(t.loop.newHandle(t.runStep))
}

// runStep is the queued wake: it collects the step input, applies any
// pending cancellation request, and executes the step.
func (t *Task) runStep() {
	t.wakePending = false
	v, e := t.wakeValue, t.wakeErr
	t.wakeValue, t.wakeErr = nil, nil
	if t.Future.Done() {
		return
	}
	if t.cancelRequested {
		t.cancelRequested = false
		v, e = nil, &CancelledError{Message: t.cancelMessage}
	}
	t.step(v, e)
}

// wakeFromFuture is the done-callback registered on an awaited future. It
// runs from the ready queue, so executing the step inline here preserves the
// never-synchronous completion guarantee.
func (t *Task) wakeFromFuture(f *Future) {
	if t.awaiting != f {
		return
	}
	t.awaiting, t.awaitHandle = nil, nil
	if t.Future.Done() {
		return
	}
	v, e := f.outcome()
	if t.cancelRequested {
		t.cancelRequested = false
		v, e = nil, &CancelledError{Message: t.cancelMessage}
	}
	t.step(v, e)
}

// step executes one coroutine step and applies the returned instruction.
func (t *Task) step(v Result, e error) {
	t.stepping = true
	next := t.invoke(v, e)
	t.stepping = false

	switch next.op {
	case opReturn:
		if t.cancelRequested {
			// Cancelled during the step without the coroutine observing it.
			t.cancelRequested = false
			t.Future.cancelDirect(t.cancelMessage)
			return
		}
		if err := t.Future.SetResult(next.value); err != nil {
			t.loop.handleException(ExceptionContext{
				Message: "task completion failed",
				Err:     err,
				Task:    t,
			})
		}

	case opThrow:
		t.cancelRequested = false
		var ce *CancelledError
		if errors.As(next.err, &ce) {
			t.Future.cancelDirect(ce.Message)
			return
		}
		if err := t.Future.SetException(next.err); err != nil {
			t.loop.handleException(ExceptionContext{
				Message: "task completion failed",
				Err:     err,
				Task:    t,
			})
		}

	case opAwait:
		t.suspend(next.future)
	}
}

// invoke runs the coroutine step with panic recovery. A panicking step is
// treated as Throw with a [PanicError].
func (t *Task) invoke(v Result, e error) (next Step) {
	defer func() {
		if r := recover(); r != nil {
			t.loop.logPanic("task step panicked", r)
			next = Throw(&PanicError{Value: r})
		}
	}()
	return t.coro.Step(v, e)
}

// suspend attaches the task to f, or fails the task if f is not awaitable
// from this task.
func (t *Task) suspend(f *Future) {
	switch {
	case f == nil:
		t.failAwait(errors.New("taskloop: task awaited a nil future"))
		return
	case f == t.Future:
		t.failAwait(errors.New("taskloop: task cannot await itself"))
		return
	case f.loop != t.loop:
		t.failAwait(errors.New("taskloop: task awaited a future from a different loop"))
		return
	}

	if f.Done() {
		// Resume via the ready queue, never synchronously.
		if t.cancelRequested {
			t.scheduleStep(nil, nil)
			return
		}
		ov, oe := f.outcome()
		t.scheduleStep(ov, oe)
		return
	}

	t.awaiting = f
	t.awaitHandle = f.AddDoneCallback(t.wakeFromFuture)
	if t.cancelRequested {
		// The task cancelled itself mid-step. Cancelling the awaited future
		// delivers it at the next wake; if that is refused the flag stays
		// set for the eventual resumption.
		t.cancelRequested = false
		if !f.CancelWithMessage(t.cancelMessage) {
			t.cancelRequested = true
		}
	}
}

// failAwait completes the task with an await protocol error, surfacing it to
// the exception handler as well since the coroutine never sees it.
func (t *Task) failAwait(err error) {
	if setErr := t.Future.SetException(err); setErr != nil {
		err = setErr
	}
	t.loop.handleException(ExceptionContext{
		Message: "invalid await",
		Err:     err,
		Task:    t,
	})
}

// String returns a debug representation of the task.
func (t *Task) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "task(name=%s, state=%s", t.name, t.Future.state)
	switch {
	case t.awaiting != nil:
		b.WriteString(", awaiting")
	case t.wakePending:
		b.WriteString(", wake pending")
	case t.stepping:
		b.WriteString(", stepping")
	}
	if t.Future.origin != "" {
		b.WriteString(", origin=")
		b.WriteString(t.Future.origin)
	}
	b.WriteByte(')')
	return b.String()
}
