package taskloop

import (
	"container/heap"
	"errors"
	"log"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/logiface"
)

// DefaultSlowCallbackThreshold is the execution duration above which a
// callback is reported as slow when debug mode is enabled.
const DefaultSlowCallbackThreshold = 100 * time.Millisecond

// idlePollCap bounds how long a single poll may block when the loop has no
// due timers. It keeps the loop responsive to external state changes that
// bypass the wake fd.
const idlePollCap = 10 * time.Second

var (
	errNilFuture     = errors.New("taskloop: RunUntilComplete requires a non-nil future")
	errForeignFuture = errors.New("taskloop: future belongs to a different loop")
)

// ExceptionContext carries the details of a failure surfaced to the loop's
// exception handler. Err is always set; Handle, Future, and Task identify
// the failing component when known.
type ExceptionContext struct {
	Message string
	Err     error
	Handle  *Handle
	Future  *Future
	Task    *Task
}

// ExceptionHandler processes failures the loop cannot deliver anywhere else:
// panics in callbacks, task completion conflicts, and unretrieved future
// errors. Handlers run on the loop goroutine and must not block.
type ExceptionHandler func(ExceptionContext)

// fdHandlers holds the per-direction callback handles for a registered fd.
// The same handle object is pushed onto the ready queue each time the fd
// reports readiness; cancelling it stops delivery.
type fdHandlers struct {
	reader *Handle
	writer *Handle
}

// Loop is a cooperative single-goroutine scheduler: callbacks, timers, and
// coroutine tasks interleave on one goroutine, with I/O readiness multiplexed
// through a platform poller.
//
// All scheduling methods (CallSoon, CallLater, CreateTask, AddReader and
// friends) belong to the loop goroutine while the loop runs; before the loop
// starts they may be used from the owning goroutine. Other goroutines must
// use CallSoonThreadsafe or RunCoroutineThreadsafe, which are safe from any
// goroutine at any time.
//
// PERFORMANCE: Hot-path design follows the poller:
//   - Single-goroutine queues, no locks on the ready path
//   - eventfd/pipe wakeup with atomic deduplication for cross-goroutine wakes
//   - Cache-line padded state machine
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	// Unretrieved-error diagnostics
	registry *futureRegistry

	// State machine (cache-line padded internally)
	state *loopState

	// Ready callbacks and pending timers. Loop goroutine only.
	ready  readyQueue
	timers timerHeap

	// I/O poller
	poller fastPoller

	// Per-fd reader/writer dispatch. Loop goroutine only.
	io map[int]*fdHandlers

	// Cross-goroutine ingress, protected by ingressMu.
	ingressMu sync.Mutex
	ingress   ingressQueue

	// Wake-up mechanism
	wakeFD      int
	wakeWriteFD int
	wakeBuf     [8]byte
	wakePending atomic.Uint32

	// Timing
	tickAnchor  time.Time    // Reference time for monotonicity (initialized once)
	tickElapsed atomic.Int64 // Nanoseconds offset from anchor

	// Goroutine tracking
	loopGoroutineID atomic.Uint64

	// Scheduling sequence, breaks FIFO ties
	seq atomic.Uint64

	id uint64

	stopRequested atomic.Bool

	// Diagnostics
	debug            atomic.Bool
	slowCallbackNs   atomic.Int64
	exceptionHandler ExceptionHandler
	logger           *logiface.Logger[logiface.Event]
	metrics          *Metrics
}

var loopIDCounter atomic.Uint64

// New creates a stopped loop ready for scheduling. Run it with RunForever or
// RunUntilComplete, and release its resources with Close.
func New(options ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(options)
	if err != nil {
		return nil, err
	}

	wakeFD, wakeWriteFD, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:               loopIDCounter.Add(1),
		state:            newLoopState(),
		timers:           make(timerHeap, 0),
		io:               make(map[int]*fdHandlers),
		wakeFD:           wakeFD,
		wakeWriteFD:      wakeWriteFD,
		logger:           cfg.logger,
		exceptionHandler: cfg.exceptionHandler,
	}
	l.debug.Store(cfg.debug)
	l.slowCallbackNs.Store(int64(cfg.slowCallbackThreshold))
	l.registry = newFutureRegistry(l.reportUnretrieved)
	if cfg.metricsEnabled {
		l.metrics = newMetrics()
	}

	closeWakeFDs := func() {
		if wakeFD >= 0 {
			_ = closeFD(wakeFD)
		}
		if wakeWriteFD >= 0 && wakeWriteFD != wakeFD {
			_ = closeFD(wakeWriteFD)
		}
	}

	if err := l.poller.init(); err != nil {
		closeWakeFDs()
		return nil, err
	}

	// Register the wake fd. Draining it is the one callback dispatched
	// inline from the poller; it carries no user code.
	if wakeFD >= 0 {
		if err := l.poller.registerFD(wakeFD, EventRead, func(IOEvents) {
			l.drainWake()
		}); err != nil {
			_ = l.poller.close()
			closeWakeFDs()
			return nil, err
		}
	}

	return l, nil
}

// ID returns the loop's process-unique identifier.
func (l *Loop) ID() uint64 {
	return l.id
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// IsRunning reports whether the loop goroutine is active (running or
// stopping).
func (l *Loop) IsRunning() bool {
	return l.state.IsRunning()
}

// IsClosed reports whether Close has completed.
func (l *Loop) IsClosed() bool {
	return l.state.IsClosed()
}

// Debug reports whether debug instrumentation is enabled.
func (l *Loop) Debug() bool {
	return l.debug.Load()
}

// SetDebug toggles debug instrumentation: origin capture on handles and
// futures, slow-callback reporting, and goroutine identity checks on
// scheduling calls.
func (l *Loop) SetDebug(enabled bool) {
	l.debug.Store(enabled)
}

// SlowCallbackThreshold returns the duration above which a callback is
// reported as slow in debug mode.
func (l *Loop) SlowCallbackThreshold() time.Duration {
	return time.Duration(l.slowCallbackNs.Load())
}

// SetSlowCallbackThreshold adjusts the slow-callback reporting threshold.
func (l *Loop) SetSlowCallbackThreshold(d time.Duration) {
	l.slowCallbackNs.Store(int64(d))
}

// SetExceptionHandler replaces the loop's exception handler. A nil handler
// restores the default, which logs and continues. Must be called before the
// loop runs or from the loop goroutine.
func (l *Loop) SetExceptionHandler(h ExceptionHandler) {
	l.exceptionHandler = h
}

// Metrics returns a snapshot of the loop's runtime statistics, or nil if
// metrics collection was not enabled via WithMetrics.
func (l *Loop) Metrics() *MetricsSnapshot {
	if l.metrics == nil {
		return nil
	}
	s := l.metrics.snapshot()
	return &s
}

// Time returns the loop's notion of the current time. It is anchored to a
// monotonic reference on first run and cached per iteration, so timers are
// immune to wall-clock adjustments. Before the loop first runs it falls back
// to time.Now.
func (l *Loop) Time() time.Time {
	if l.tickAnchor.IsZero() {
		return time.Now()
	}
	return l.tickAnchor.Add(time.Duration(l.tickElapsed.Load()))
}

// RunForever runs the loop on the calling goroutine until Stop is called.
// The calling goroutine becomes the loop goroutine and is locked to its OS
// thread for the duration.
func (l *Loop) RunForever() error {
	if l.state.IsClosed() {
		return ErrLoopClosed
	}
	if !l.state.TryTransition(StateStopped, StateRunning) {
		if l.state.IsClosed() {
			return ErrLoopClosed
		}
		return ErrLoopAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	if l.tickAnchor.IsZero() {
		l.tickAnchor = time.Now()
		l.tickElapsed.Store(0)
	}

	defer func() {
		l.stopRequested.Store(false)
		l.state.Store(StateStopped)
	}()

	for {
		l.runOnce()
		if l.stopRequested.Load() || l.state.Load() == StateStopping {
			return nil
		}
	}
}

// RunUntilComplete runs the loop until f completes, then returns f's
// outcome. If the loop is stopped before f completes, it returns a
// [LoopStoppedError] carrying the still-pending future.
func (l *Loop) RunUntilComplete(f *Future) (Result, error) {
	if f == nil {
		return nil, errNilFuture
	}
	if f.loop != l {
		return nil, errForeignFuture
	}
	if l.state.IsClosed() {
		return nil, ErrLoopClosed
	}

	h := f.AddDoneCallback(func(*Future) { l.Stop() })

	if err := l.RunForever(); err != nil {
		f.RemoveDoneCallback(h)
		h.Cancel()
		return nil, err
	}

	if !f.Done() {
		f.RemoveDoneCallback(h)
		h.Cancel()
		return nil, &LoopStoppedError{Future: f}
	}
	return f.Result()
}

// Stop requests the loop to exit after the current iteration completes. It
// may be called from a callback or from any other goroutine, and is a no-op
// on a closed loop. Calling Stop before the loop runs makes the next
// RunForever perform a single iteration.
func (l *Loop) Stop() {
	for {
		switch s := l.state.Load(); s {
		case StateRunning:
			if l.state.TryTransition(StateRunning, StateStopping) {
				l.wake()
				return
			}
		case StateStopped:
			l.stopRequested.Store(true)
			return
		default: // Stopping or Closed
			return
		}
	}
}

// Close releases the loop's resources: the poller, the wake fd, and all
// pending work. Pending callbacks are dropped without running and pending
// timers are cancelled. Close fails with [ErrLoopRunning] if the loop is
// running and is a no-op if already closed.
func (l *Loop) Close() error {
	for {
		switch s := l.state.Load(); s {
		case StateClosed:
			return nil
		case StateRunning, StateStopping:
			return ErrLoopRunning
		default:
		}
		if l.state.TryTransition(StateStopped, StateClosed) {
			break
		}
	}

	l.ingressMu.Lock()
	for {
		if _, ok := l.ingress.pop(); !ok {
			break
		}
	}
	l.ingressMu.Unlock()

	for {
		h := l.ready.pop()
		if h == nil {
			break
		}
		h.Cancel()
	}

	for _, th := range l.timers {
		th.Cancel()
	}
	l.timers = nil

	// Surface any unretrieved errors before the registry is discarded.
	l.registry.sweep()

	l.closeFDs()
	return nil
}

// closeFDs closes file descriptors.
func (l *Loop) closeFDs() {
	_ = l.poller.close()
	if l.wakeFD >= 0 {
		_ = closeFD(l.wakeFD)
	}
	if l.wakeWriteFD >= 0 && l.wakeWriteFD != l.wakeFD {
		_ = closeFD(l.wakeWriteFD)
	}
}

// runOnce is a single iteration of the loop: transfer cross-goroutine
// submissions, run the callbacks that were ready at the start of the
// iteration, poll for I/O, then promote due timers. Work queued while
// callbacks execute waits for the next iteration, so a callback that
// reschedules itself cannot starve I/O or timers.
func (l *Loop) runOnce() {
	l.tickElapsed.Store(int64(time.Since(l.tickAnchor)))

	l.transferIngress()

	n := l.ready.len()
	for i := 0; i < n; i++ {
		h := l.ready.pop()
		if h == nil {
			break
		}
		l.runHandle(h)
	}

	l.poll()

	l.popDueTimers()

	l.registry.scavenge(20)

	if m := l.metrics; m != nil {
		m.Queue.UpdateReady(l.ready.len())
		m.Queue.UpdateTimers(len(l.timers))
	}
}

// transferIngress moves cross-goroutine submissions onto the ready queue.
func (l *Loop) transferIngress() {
	l.ingressMu.Lock()
	depth := l.ingress.len()
	for {
		h, ok := l.ingress.pop()
		if !ok {
			break
		}
		l.ready.push(h)
	}
	l.ingressMu.Unlock()

	if m := l.metrics; m != nil {
		m.Queue.UpdateIngress(depth)
	}
}

// poll blocks for I/O readiness, bounded by the next timer deadline. Skipped
// entirely once a stop has been requested so the final iteration ends
// promptly.
func (l *Loop) poll() {
	if l.state.Load() != StateRunning || l.stopRequested.Load() {
		return
	}

	timeout := l.calculateTimeout()

	if _, err := l.poller.pollIO(timeout); err != nil {
		l.logCritical("poll failed, stopping loop", err)
		l.Stop()
		return
	}

	// Callbacks may have consumed real time while the cached view stood
	// still; refresh so due-timer promotion sees the post-poll clock.
	l.tickElapsed.Store(int64(time.Since(l.tickAnchor)))
}

// calculateTimeout determines how long the poll may block, in milliseconds.
func (l *Loop) calculateTimeout() int {
	if l.ready.len() > 0 {
		return 0
	}

	maxDelay := idlePollCap
	if th := l.timers.peek(); th != nil {
		delay := time.Until(th.when)
		if delay <= 0 {
			return 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}

	// Ceiling rounding: if 0 < delta < 1ms, round up to 1ms so the timer
	// cannot fire early on a truncated wait.
	if maxDelay < time.Millisecond {
		return 1
	}
	return int(maxDelay.Milliseconds())
}

// popDueTimers promotes expired timers onto the ready queue. Their callbacks
// run in the next iteration's drain. Cancelled timers are discarded here,
// lazily, rather than being removed from the heap at cancel time.
func (l *Loop) popDueTimers() {
	if len(l.timers) == 0 {
		return
	}
	now := l.Time()
	for len(l.timers) > 0 {
		th := l.timers.peek()
		if th.when.After(now) {
			break
		}
		heap.Pop(&l.timers)
		if th.Cancelled() {
			continue
		}
		l.ready.push(&th.Handle)
		if m := l.metrics; m != nil {
			m.timersFired.Add(1)
		}
	}
}

// runHandle executes a single callback with panic recovery, slow-callback
// reporting, and latency metrics.
func (l *Loop) runHandle(h *Handle) {
	if h.Cancelled() {
		return
	}

	debug := l.debug.Load()
	m := l.metrics
	var start time.Time
	if debug || m != nil {
		start = time.Now()
	}

	l.invokeHandle(h)

	if debug || m != nil {
		elapsed := time.Since(start)
		if m != nil {
			m.recordCallback(elapsed)
		}
		if debug && elapsed >= time.Duration(l.slowCallbackNs.Load()) {
			if b := l.logger.Warning(); b != nil {
				b.Dur("elapsed", elapsed).
					Str("handle", h.String()).
					Log("slow callback")
			}
		}
	}
}

// invokeHandle runs the callback, converting a panic into an exception
// handler invocation. The loop always continues.
func (l *Loop) invokeHandle(h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			l.handleException(ExceptionContext{
				Message: "callback panicked",
				Err:     &PanicError{Value: r},
				Handle:  h,
			})
		}
	}()
	h.callback()
}

// handleException routes a failure to the configured handler, falling back
// to the default when none is set or the handler itself panics.
func (l *Loop) handleException(c ExceptionContext) {
	if h := l.exceptionHandler; h != nil {
		defer func() {
			if r := recover(); r != nil {
				l.logCritical("exception handler panicked", &PanicError{Value: r})
				l.defaultExceptionHandler(c)
			}
		}()
		h(c)
		return
	}
	l.defaultExceptionHandler(c)
}

// defaultExceptionHandler logs the failure and continues.
func (l *Loop) defaultExceptionHandler(c ExceptionContext) {
	if b := l.logger.Err(); b != nil {
		b = b.Err(c.Err).Int64("loop", int64(l.id))
		if c.Handle != nil {
			b = b.Str("handle", c.Handle.String())
		}
		if c.Task != nil {
			b = b.Str("task", c.Task.Name())
		}
		if c.Future != nil {
			b = b.Str("future", c.Future.String())
		}
		b.Log(c.Message)
		return
	}
	log.Printf("taskloop: %s: %v", c.Message, c.Err)
}

// reportUnretrieved is the registry's diagnostic sink for futures that were
// collected while holding an unobserved error. Detail beyond the error
// itself is only available when the future was created in debug mode.
func (l *Loop) reportUnretrieved(e *futureEntry) {
	msg := "future error was never retrieved"
	if e.label != "" {
		msg += " (task " + e.label + ")"
	}
	if e.origin != "" {
		msg += " (created at " + e.origin + ")"
	}
	l.handleException(ExceptionContext{Message: msg, Err: e.err})
}

// scheduling ---------------------------------------------------------------

// checkSchedule validates a scheduling call: the loop must not be closed,
// and in debug mode the caller must be the loop goroutine while the loop is
// running.
func (l *Loop) checkSchedule() error {
	if l.state.IsClosed() {
		return ErrLoopClosed
	}
	if l.debug.Load() && l.state.IsRunning() && !l.isLoopGoroutine() {
		return ErrNotLoopGoroutine
	}
	return nil
}

// newHandle wraps cb in a schedulable handle.
func (l *Loop) newHandle(cb func()) *Handle {
	h := &Handle{callback: cb, seq: l.seq.Add(1)}
	if l.debug.Load() {
		h.origin = captureOrigin(3)
	}
	return h
}

// pushReady appends a handle to the ready queue. Loop goroutine only.
func (l *Loop) pushReady(h *Handle) {
	l.ready.push(h)
}

// CallSoon schedules cb to run on the next loop iteration, after all
// callbacks already queued. Returns the handle, which may be cancelled up
// until the callback runs.
func (l *Loop) CallSoon(cb func()) (*Handle, error) {
	if err := l.checkSchedule(); err != nil {
		return nil, err
	}
	h := l.newHandle(cb)
	l.ready.push(h)
	return h, nil
}

// CallLater schedules cb after the given delay, measured against
// [Loop.Time]. A non-positive delay schedules for the current instant; the
// callback still runs via the timer path, after anything already ready.
func (l *Loop) CallLater(delay time.Duration, cb func()) (*TimerHandle, error) {
	if err := l.checkSchedule(); err != nil {
		return nil, err
	}
	if delay < 0 {
		delay = 0
	}
	return l.scheduleAt(l.Time().Add(delay), cb), nil
}

// CallAt schedules cb at an absolute deadline on the [Loop.Time] clock.
func (l *Loop) CallAt(when time.Time, cb func()) (*TimerHandle, error) {
	if err := l.checkSchedule(); err != nil {
		return nil, err
	}
	return l.scheduleAt(when, cb), nil
}

func (l *Loop) scheduleAt(when time.Time, cb func()) *TimerHandle {
	th := &TimerHandle{
		Handle: Handle{callback: cb, seq: l.seq.Add(1)},
		when:   when,
	}
	if l.debug.Load() {
		th.origin = captureOrigin(3)
	}
	heap.Push(&l.timers, th)
	if m := l.metrics; m != nil {
		m.timersScheduled.Add(1)
	}
	return th
}

// CreateFuture creates a pending future bound to this loop.
func (l *Loop) CreateFuture() (*Future, error) {
	if err := l.checkSchedule(); err != nil {
		return nil, err
	}
	f := newFuture(l)
	if l.debug.Load() {
		f.origin = captureOrigin(2)
	}
	return f, nil
}

// CreateTask starts driving coro as a task, scheduling its first step
// immediately. The task completes with the coroutine's result.
func (l *Loop) CreateTask(coro Coroutine) (*Task, error) {
	return l.createTask(coro, "")
}

// CreateNamedTask is CreateTask with an explicit name for diagnostics.
func (l *Loop) CreateNamedTask(name string, coro Coroutine) (*Task, error) {
	return l.createTask(coro, name)
}

func (l *Loop) createTask(coro Coroutine, name string) (*Task, error) {
	if err := l.checkSchedule(); err != nil {
		return nil, err
	}
	if coro == nil {
		return nil, errNilCoroutine
	}
	if name == "" {
		name = "task-" + strconv.FormatUint(l.seq.Add(1), 10)
	}
	t := newTask(l, coro, name)
	if l.debug.Load() {
		t.Future.origin = captureOrigin(3)
	}
	if m := l.metrics; m != nil {
		m.tasksStarted.Add(1)
	}
	return t, nil
}

// I/O readiness -------------------------------------------------------------

// AddReader registers cb to run whenever fd is readable. The callback runs
// from the ready queue on the iteration after readiness is observed, never
// inline from the poller. Registering a second reader for the same fd
// replaces the first.
func (l *Loop) AddReader(fd int, cb func()) error {
	if err := l.checkSchedule(); err != nil {
		return err
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}

	e := l.io[fd]
	if e == nil {
		e = &fdHandlers{}
		if err := l.poller.registerFD(fd, EventRead, func(ev IOEvents) {
			l.dispatchIO(fd, ev)
		}); err != nil {
			return err
		}
		l.io[fd] = e
	} else if e.reader == nil {
		if err := l.poller.modifyFD(fd, EventRead|EventWrite); err != nil {
			return err
		}
	}

	if e.reader != nil {
		e.reader.Cancel()
	}
	e.reader = l.newHandle(cb)
	return nil
}

// RemoveReader stops read-readiness delivery for fd. Returns false if no
// reader was registered.
func (l *Loop) RemoveReader(fd int) bool {
	if l.state.IsClosed() {
		return false
	}
	e := l.io[fd]
	if e == nil || e.reader == nil {
		return false
	}
	e.reader.Cancel()
	e.reader = nil
	if e.writer == nil {
		delete(l.io, fd)
		_ = l.poller.unregisterFD(fd)
	} else {
		_ = l.poller.modifyFD(fd, EventWrite)
	}
	return true
}

// AddWriter registers cb to run whenever fd is writable. Semantics mirror
// [Loop.AddReader].
func (l *Loop) AddWriter(fd int, cb func()) error {
	if err := l.checkSchedule(); err != nil {
		return err
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}

	e := l.io[fd]
	if e == nil {
		e = &fdHandlers{}
		if err := l.poller.registerFD(fd, EventWrite, func(ev IOEvents) {
			l.dispatchIO(fd, ev)
		}); err != nil {
			return err
		}
		l.io[fd] = e
	} else if e.writer == nil {
		if err := l.poller.modifyFD(fd, EventRead|EventWrite); err != nil {
			return err
		}
	}

	if e.writer != nil {
		e.writer.Cancel()
	}
	e.writer = l.newHandle(cb)
	return nil
}

// RemoveWriter stops write-readiness delivery for fd. Returns false if no
// writer was registered.
func (l *Loop) RemoveWriter(fd int) bool {
	if l.state.IsClosed() {
		return false
	}
	e := l.io[fd]
	if e == nil || e.writer == nil {
		return false
	}
	e.writer.Cancel()
	e.writer = nil
	if e.reader == nil {
		delete(l.io, fd)
		_ = l.poller.unregisterFD(fd)
	} else {
		_ = l.poller.modifyFD(fd, EventRead)
	}
	return true
}

// dispatchIO runs inline from the poller on the loop goroutine. It defers
// the user callbacks by pushing their handles onto the ready queue; they run
// in the next iteration's drain.
func (l *Loop) dispatchIO(fd int, ev IOEvents) {
	e := l.io[fd]
	if e == nil {
		return
	}
	if ev&(EventRead|EventError|EventHangup) != 0 && e.reader != nil && !e.reader.Cancelled() {
		l.ready.push(e.reader)
	}
	if ev&(EventWrite|EventError|EventHangup) != 0 && e.writer != nil && !e.writer.Cancelled() {
		l.ready.push(e.writer)
	}
}

// wake-up -------------------------------------------------------------------

// wake nudges a potentially-blocked poll, deduplicating concurrent requests
// so at most one wake byte is in flight at a time.
func (l *Loop) wake() {
	if l.wakePending.CompareAndSwap(0, 1) {
		if err := l.submitWakeup(); err != nil {
			// Expected when the loop is concurrently closed (EBADF/EPIPE);
			// reset so a later wake can retry.
			l.wakePending.Store(0)
		}
	}
}

// submitWakeup writes one token to the wake fd, or posts a completion packet
// on platforms without one.
func (l *Loop) submitWakeup() error {
	if l.state.IsClosed() {
		return ErrLoopClosed
	}

	if l.wakeWriteFD < 0 {
		return l.poller.wakeup()
	}

	// PERFORMANCE: Native endianness; the value is only ever drained.
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := writeFD(l.wakeWriteFD, buf)
	return err
}

// drainWake empties the wake fd and re-arms the dedup flag. Runs inline from
// the poller.
func (l *Loop) drainWake() {
	for {
		if _, err := readFD(l.wakeFD, l.wakeBuf[:]); err != nil {
			break
		}
	}
	l.wakePending.Store(0)
}

// goroutine identity --------------------------------------------------------

// isLoopGoroutine checks if we're on the loop goroutine.
func (l *Loop) isLoopGoroutine() bool {
	id := l.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return goroutineID() == id
}

// goroutineID returns the current goroutine's ID.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

