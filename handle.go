package taskloop

import (
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Handle is a cancellable, one-shot record of a scheduled callback.
// Handles are returned by [Loop.CallSoon], [Loop.CallSoonThreadsafe], and
// [Future.AddDoneCallback], and are the unit stored in the ready queue.
//
// A Handle is owned by whichever container currently holds it (the ready
// queue, the timer heap, or a future's done-callback list). Cancellation is
// lazy: Cancel marks the handle and the loop skips it when popped; the
// handle is never removed from its container eagerly.
type Handle struct {
	callback  func()
	cancelled atomic.Bool
	// seq is assigned from the loop's monotone counter at creation and
	// breaks scheduling ties deterministically (FIFO for equal deadlines).
	seq uint64
	// origin is the caller file:line, captured only in debug mode.
	origin string
}

// Cancel marks the handle so its callback will not run. Safe to call from
// any goroutine, and idempotent: calls after the first have no effect.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// String returns a debug representation of the handle.
func (h *Handle) String() string {
	if h.origin != "" {
		return fmt.Sprintf("handle(seq=%d, origin=%s, cancelled=%t)", h.seq, h.origin, h.Cancelled())
	}
	return fmt.Sprintf("handle(seq=%d, cancelled=%t)", h.seq, h.Cancelled())
}

// captureOrigin records the file:line of a scheduling call site, trimmed to
// the final two path segments. Only used in debug mode; runtime.Caller is
// too expensive for the default hot path.
func captureOrigin(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	short := file
	for i, slashes := len(file)-1, 0; i >= 0; i-- {
		if file[i] == '/' {
			slashes++
			if slashes == 2 {
				short = file[i+1:]
				break
			}
		}
	}
	return short + ":" + strconv.Itoa(line)
}

// TimerHandle is a [Handle] with an absolute deadline on the loop's
// monotonic clock. Returned by [Loop.CallLater] and [Loop.CallAt].
type TimerHandle struct {
	Handle
	when time.Time
}

// When returns the absolute deadline the callback is scheduled for.
// The returned time carries Go's monotonic clock reading.
func (t *TimerHandle) When() time.Time {
	return t.when
}

// String returns a debug representation of the timer handle.
func (t *TimerHandle) String() string {
	if t.origin != "" {
		return fmt.Sprintf("timer(seq=%d, when=%s, origin=%s, cancelled=%t)", t.seq, t.when.Format(time.RFC3339Nano), t.origin, t.Cancelled())
	}
	return fmt.Sprintf("timer(seq=%d, when=%s, cancelled=%t)", t.seq, t.when.Format(time.RFC3339Nano), t.Cancelled())
}
