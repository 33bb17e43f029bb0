package taskloop

// The I/O readiness multiplexer is implemented per platform:
//   - poller_linux.go (epoll)
//   - poller_darwin.go (kqueue)
//   - poller_windows.go (IOCP, best effort)
//
// Each provides the same unexported surface: init, close, wakeup,
// registerFD, unregisterFD, modifyFD, and pollIO. Readiness callbacks are
// dispatched inline from pollIO on the loop goroutine; the loop layer wraps
// user callbacks so their execution is deferred to the next iteration's
// ready queue drain.
//
// Always unregister a file descriptor before closing it: FD numbers are
// recycled by the kernel, and a stale registration would misroute events
// for an unrelated descriptor.
