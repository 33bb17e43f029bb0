// Package taskloop provides a cooperative, single-goroutine event loop for
// Go, in the style of asyncio: callbacks, timers, futures, and coroutine
// tasks interleave on one goroutine, with I/O readiness multiplexed through
// platform-native polling.
//
// # Architecture
//
// The [Loop] core owns a ready queue of [Handle] callbacks, a binary heap of
// [TimerHandle] deadlines, and an I/O poller. One call to the internal
// iteration drains the callbacks that were ready when it started, polls for
// I/O with a timeout bounded by the next timer deadline, then promotes due
// timers. Work scheduled while callbacks run always waits for the next
// iteration, so a callback that reschedules itself cannot starve I/O or
// timers.
//
// [Future] is a single-assignment result cell whose done-callbacks are never
// invoked synchronously by completion. [Task] drives a [Coroutine] state
// machine over futures: each step either awaits a future, returns a value,
// or throws an error, and cancellation is a cooperative request delivered at
// the next suspension point rather than an interrupt.
//
// # Platform Support
//
// I/O polling is implemented using platform-native mechanisms:
//   - Linux: epoll
//   - macOS: kqueue
//   - Windows: IOCP (I/O Completion Ports, best effort)
//
// [Loop.AddReader] and [Loop.AddWriter] provide readiness callbacks per file
// descriptor; readiness is always delivered via the ready queue, one
// iteration removed from the poll that observed it.
//
// # Thread Safety
//
// The loop is deliberately not thread-safe: queues, timers, futures, and
// tasks belong to the loop goroutine. The sanctioned cross-goroutine entry
// points are [Loop.CallSoonThreadsafe] and [Loop.RunCoroutineThreadsafe],
// which append through a short-lock ingress queue and wake a blocked poll
// through the loop's wake descriptor. [Handle.Cancel] is additionally safe
// from any goroutine.
//
// # Usage
//
//	loop, err := taskloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	future, _ := loop.CreateFuture()
//	loop.CallLater(100*time.Millisecond, func() {
//	    future.SetResult("hello after 100ms")
//	})
//
//	v, err := loop.RunUntilComplete(future)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v)
//
// # Error Types
//
// Failure modes map to a small taxonomy:
//   - [InvalidStateError]: an operation attempted in the wrong future state
//   - [CancelledError]: the canonical outcome of cancellation
//   - [TimeoutError]: a deadline elapsed in [WaitFor]
//   - [PanicError]: wraps panics recovered from callbacks and task steps
//   - [LoopStoppedError]: the loop stopped before a run-until-complete target
//
// All error types implement the standard [error] interface and support
// [errors.Is] and [errors.As] matching; loop misuse surfaces as sentinel
// errors such as [ErrLoopClosed] and [ErrLoopRunning].
package taskloop
