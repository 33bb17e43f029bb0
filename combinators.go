package taskloop

import (
	"errors"
	"time"
)

var errNilInput = errors.New("taskloop: nil future argument")

// completeFrom resolves out with src's outcome: cancellation propagates as
// cancellation, everything else as result or error.
func completeFrom(out, src *Future) {
	v, err := src.outcome()
	if err == nil {
		_ = out.SetResult(v)
		return
	}
	var ce *CancelledError
	if errors.As(err, &ce) {
		out.cancelDirect(ce.Message)
		return
	}
	_ = out.SetException(err)
}

// Gather aggregates futures into one future resolving to a []Result parallel
// to the inputs.
//
// With cancelRemainingOnError, the first input to fail or be cancelled
// settles the gather immediately with that outcome and cancels the remaining
// pending inputs. Without it, the gather always finishes with the full
// result slice, where a failed or cancelled input's slot holds its error as
// a value.
//
// Cancelling the gather future cancels all pending inputs.
func Gather(l *Loop, futures []*Future, cancelRemainingOnError bool) (*Future, error) {
	out, err := l.CreateFuture()
	if err != nil {
		return nil, err
	}
	for _, f := range futures {
		if f == nil {
			return nil, errNilInput
		}
		if f.loop != l {
			return nil, errForeignFuture
		}
	}

	if len(futures) == 0 {
		_ = out.SetResult([]Result{})
		return out, nil
	}

	g := &gatherState{
		out:       out,
		futures:   futures,
		results:   make([]Result, len(futures)),
		remaining: len(futures),
		failFast:  cancelRemainingOnError,
	}
	out.cancel = g.cancel

	for i, f := range futures {
		f.AddDoneCallback(func(*Future) { g.childDone(i, f) })
	}
	return out, nil
}

type gatherState struct {
	out       *Future
	futures   []*Future
	results   []Result
	remaining int
	failFast  bool
}

func (g *gatherState) childDone(i int, f *Future) {
	if g.out.Done() {
		// Settled by an earlier failure or an outer cancel; late children
		// are ignored.
		return
	}

	v, err := f.outcome()

	if err != nil && g.failFast {
		g.cancelPending()
		var ce *CancelledError
		if errors.As(err, &ce) {
			g.out.cancelDirect(ce.Message)
		} else {
			_ = g.out.SetException(err)
		}
		return
	}

	if err != nil {
		g.results[i] = err
	} else {
		g.results[i] = v
	}

	g.remaining--
	if g.remaining == 0 {
		_ = g.out.SetResult(g.results)
	}
}

// cancelPending cancels every input that has not completed yet.
func (g *gatherState) cancelPending() {
	for _, f := range g.futures {
		if !f.Done() {
			f.Cancel()
		}
	}
}

// cancel is installed as the gather future's cancellation hook.
func (g *gatherState) cancel(msg string) bool {
	if g.out.Done() {
		return false
	}
	g.cancelPending()
	return g.out.cancelDirect(msg)
}

// WaitFirst resolves with the subset of futures already complete when the
// first of them completes, or when the timeout elapses, whichever comes
// first. The result is a []*Future; the inputs themselves are never
// cancelled or consumed, so their results remain retrievable by the caller.
//
// A non-positive timeout means no deadline. Cancelling the returned future
// detaches from the inputs without cancelling them.
func WaitFirst(l *Loop, futures []*Future, timeout time.Duration) (*Future, error) {
	out, err := l.CreateFuture()
	if err != nil {
		return nil, err
	}
	for _, f := range futures {
		if f == nil {
			return nil, errNilInput
		}
		if f.loop != l {
			return nil, errForeignFuture
		}
	}

	if len(futures) == 0 {
		_ = out.SetResult([]*Future{})
		return out, nil
	}

	w := &waitFirstState{
		out:     out,
		futures: futures,
		handles: make([]*Handle, len(futures)),
	}

	if timeout > 0 {
		th, err := l.CallLater(timeout, w.timerFired)
		if err != nil {
			return nil, err
		}
		w.timer = th
	}
	out.cancel = w.cancel

	for i, f := range futures {
		w.handles[i] = f.AddDoneCallback(func(*Future) { w.childDone() })
	}
	return out, nil
}

type waitFirstState struct {
	out     *Future
	futures []*Future
	handles []*Handle
	timer   *TimerHandle
}

// doneSubset snapshots the inputs that have completed.
func (w *waitFirstState) doneSubset() []*Future {
	done := make([]*Future, 0, len(w.futures))
	for _, f := range w.futures {
		if f.Done() {
			done = append(done, f)
		}
	}
	return done
}

// detach cancels the timer and all per-input callbacks.
func (w *waitFirstState) detach() {
	if w.timer != nil {
		w.timer.Cancel()
	}
	for i, f := range w.futures {
		if h := w.handles[i]; h != nil {
			f.RemoveDoneCallback(h)
			h.Cancel()
		}
	}
}

func (w *waitFirstState) childDone() {
	if w.out.Done() {
		return
	}
	w.detach()
	_ = w.out.SetResult(w.doneSubset())
}

// timerFired resolves with whatever completed before the deadline, possibly
// an empty slice.
func (w *waitFirstState) timerFired() {
	if w.out.Done() {
		return
	}
	w.detach()
	_ = w.out.SetResult(w.doneSubset())
}

func (w *waitFirstState) cancel(msg string) bool {
	if w.out.Done() {
		return false
	}
	w.detach()
	return w.out.cancelDirect(msg)
}

// WaitFor mirrors f's outcome, bounded by a deadline: if the timeout elapses
// before f completes, f is cancelled and the returned future fails with a
// [TimeoutError]. An already-completed f wins over a zero timeout.
//
// Cancelling the returned future cancels f as well.
func WaitFor(l *Loop, f *Future, timeout time.Duration) (*Future, error) {
	if f == nil {
		return nil, errNilInput
	}
	if f.loop != l {
		return nil, errForeignFuture
	}
	out, err := l.CreateFuture()
	if err != nil {
		return nil, err
	}

	var th *TimerHandle
	h := f.AddDoneCallback(func(f *Future) {
		if th != nil {
			th.Cancel()
		}
		if out.Done() {
			return
		}
		completeFrom(out, f)
	})

	th, err = l.CallLater(timeout, func() {
		if out.Done() {
			return
		}
		f.Cancel()
		_ = out.SetException(&TimeoutError{Message: "deadline elapsed before completion"})
	})
	if err != nil {
		f.RemoveDoneCallback(h)
		h.Cancel()
		return nil, err
	}

	out.cancel = func(msg string) bool {
		if out.Done() {
			return false
		}
		th.Cancel()
		f.Cancel()
		return out.cancelDirect(msg)
	}
	return out, nil
}

// Sleep resolves with a nil result after d elapses on the loop's clock.
// Cancelling it cancels the underlying timer.
func Sleep(l *Loop, d time.Duration) (*Future, error) {
	out, err := l.CreateFuture()
	if err != nil {
		return nil, err
	}
	th, err := l.CallLater(d, func() {
		if !out.Done() {
			_ = out.SetResult(nil)
		}
	})
	if err != nil {
		return nil, err
	}
	out.cancel = func(msg string) bool {
		if out.Done() {
			return false
		}
		th.Cancel()
		return out.cancelDirect(msg)
	}
	return out, nil
}

// Shield mirrors f's outcome while insulating f from cancellation:
// cancelling the returned future detaches it, leaving f running. Cancelling
// f directly still cancels the shield.
func Shield(l *Loop, f *Future) (*Future, error) {
	if f == nil {
		return nil, errNilInput
	}
	if f.loop != l {
		return nil, errForeignFuture
	}
	out, err := l.CreateFuture()
	if err != nil {
		return nil, err
	}

	h := f.AddDoneCallback(func(f *Future) {
		if out.Done() {
			return
		}
		completeFrom(out, f)
	})

	out.cancel = func(msg string) bool {
		if out.Done() {
			return false
		}
		f.RemoveDoneCallback(h)
		h.Cancel()
		return out.cancelDirect(msg)
	}
	return out, nil
}
