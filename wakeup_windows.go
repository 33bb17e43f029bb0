//go:build windows

package taskloop

// EFD_CLOEXEC and EFD_NONBLOCK are Unix eventfd flags. On Windows these are
// unused (createWakeFd ignores flags) but must be defined so that the
// createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK) call site compiles on all
// platforms.
const (
	EFD_CLOEXEC  = 0
	EFD_NONBLOCK = 0
)

// createWakeFd returns -1 for both ends on Windows: IOCP wakes via
// PostQueuedCompletionStatus rather than a pipe or eventfd. The loop checks
// for a negative wake fd, skips the poller registration, and routes
// cross-thread wakeups through the poller's wakeup method instead.
func createWakeFd(initval uint, flags int) (int, int, error) {
	return -1, -1, nil
}
