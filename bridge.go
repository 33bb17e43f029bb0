package taskloop

import (
	"context"
	"errors"
	"sync"
)

var errNilCoroutine = errors.New("taskloop: nil coroutine")

// CallSoonThreadsafe schedules cb onto the loop from any goroutine. It is
// the only scheduling method that may be called while another goroutine owns
// the loop; everything else must run on the loop goroutine.
//
// The handle is appended to the cross-goroutine ingress queue under a short
// lock, then the loop is woken through its wake fd, so a poll blocked on an
// idle loop returns immediately. The callback runs on the loop goroutine in
// submission order relative to other threadsafe submissions.
func (l *Loop) CallSoonThreadsafe(cb func()) (*Handle, error) {
	if l.state.IsClosed() {
		return nil, ErrLoopClosed
	}

	h := &Handle{callback: cb, seq: l.seq.Add(1)}
	if l.debug.Load() {
		h.origin = captureOrigin(2)
	}

	l.ingressMu.Lock()
	// Re-check under the lock: Close drains the ingress queue under this
	// same lock after transitioning the state, so a submission that loses
	// the race is either rejected here or dropped by the drain.
	if l.state.IsClosed() {
		l.ingressMu.Unlock()
		return nil, ErrLoopClosed
	}
	l.ingress.push(h)
	l.ingressMu.Unlock()

	l.wake()
	return h, nil
}

// ThreadsafeFuture is a cross-goroutine view of a loop-bound future. It is
// returned by [Loop.RunCoroutineThreadsafe] and, unlike [Future], may be used
// from any goroutine.
//
// The proxy completes when the underlying task does. If the loop is stopped
// or closed before then, the proxy never completes; bound waits should pass a
// context with a deadline.
type ThreadsafeFuture struct {
	loop *Loop

	mu        sync.Mutex
	inner     *Future
	result    Result
	err       error
	completed bool
	// cancelRequested records a Cancel that arrived before the task was
	// created on the loop goroutine.
	cancelRequested bool

	done chan struct{}
}

// RunCoroutineThreadsafe submits coro to the loop from any goroutine and
// returns a proxy that completes with the resulting task's outcome.
func (l *Loop) RunCoroutineThreadsafe(coro Coroutine) (*ThreadsafeFuture, error) {
	if coro == nil {
		return nil, errNilCoroutine
	}

	p := &ThreadsafeFuture{loop: l, done: make(chan struct{})}

	if _, err := l.CallSoonThreadsafe(func() {
		t, err := l.CreateTask(coro)
		if err != nil {
			p.complete(nil, err)
			return
		}
		p.bind(t.Future)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// bind attaches the proxy to the task's future. Loop goroutine only.
func (p *ThreadsafeFuture) bind(f *Future) {
	p.mu.Lock()
	p.inner = f
	cancelled := p.cancelRequested
	p.mu.Unlock()

	f.AddDoneCallback(func(f *Future) {
		v, err := f.outcome()
		p.complete(v, err)
	})

	if cancelled {
		f.Cancel()
	}
}

// complete publishes the outcome exactly once.
func (p *ThreadsafeFuture) complete(v Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		return
	}
	p.completed = true
	p.result, p.err = v, err
	close(p.done)
}

// Done returns a channel closed when the proxy completes.
func (p *ThreadsafeFuture) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the proxy completes or ctx is done, returning the task's
// outcome or ctx.Err.
func (p *ThreadsafeFuture) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. A proxy that has not
// completed yields an [InvalidStateError].
func (p *ThreadsafeFuture) Result() (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.completed {
		return nil, &InvalidStateError{Op: "Result", State: Pending}
	}
	return p.result, p.err
}

// Cancel requests cooperative cancellation of the underlying task from any
// goroutine. It returns false if the proxy already completed or the loop
// rejected the request; true means the request was delivered, not that the
// task will end up cancelled. Observe the outcome via Wait.
func (p *ThreadsafeFuture) Cancel() bool {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return false
	}
	inner := p.inner
	if inner == nil {
		// The task has not been created yet; cancel it at bind time.
		p.cancelRequested = true
		p.mu.Unlock()
		return true
	}
	p.mu.Unlock()

	_, err := p.loop.CallSoonThreadsafe(func() { inner.Cancel() })
	return err == nil
}
