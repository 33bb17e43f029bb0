//go:build windows

package taskloop

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/windows"
)

// Initial size of the fd-indexed table; grows on demand.
const initialFDs = 1024

// maxFDLimit is the maximum FD value supported by the fd-indexed table.
const maxFDLimit = 100000000

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// Standard errors.
var (
	ErrFDOutOfRange        = errors.New("taskloop: fd out of range")
	ErrFDAlreadyRegistered = errors.New("taskloop: fd already registered")
	ErrFDNotRegistered     = errors.New("taskloop: fd not registered")
	ErrPollerClosed        = errors.New("taskloop: poller closed")
)

// ioCallback is the callback type for I/O events.
type ioCallback func(IOEvents)

// fdInfo stores per-FD callback information.
type fdInfo struct {
	callback ioCallback
	events   IOEvents
	active   bool
}

// fastPoller manages I/O event registration using an I/O completion port
// (Windows).
//
// IOCP is completion-based rather than readiness-based, so this poller is a
// best-effort port: handles are associated with the completion port keyed by
// fd, and a completion packet for a registered handle is surfaced to its
// callback as a combined read/write readiness event. Cross-thread wakeups
// use PostQueuedCompletionStatus with a nil overlapped.
type fastPoller struct { // betteralign:ignore
	_      [64]byte       // Cache line padding //nolint:unused
	iocp   windows.Handle // IOCP handle
	_      [56]byte       // Pad to cache line //nolint:unused
	fds    []fdInfo       // Dynamic slice, grows on demand
	fdMu   sync.RWMutex   // Protects fds array access
	closed atomic.Bool
}

// init initializes the IOCP instance.
func (p *fastPoller) init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}

	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return err
	}
	p.iocp = iocp

	p.fds = make([]fdInfo, initialFDs)

	return nil
}

// close closes the IOCP instance.
func (p *fastPoller) close() error {
	p.closed.Store(true)
	if p.iocp != 0 {
		_ = windows.CloseHandle(p.iocp)
	}
	return nil
}

// wakeup wakes up a blocked pollIO from another thread.
func (p *fastPoller) wakeup() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return windows.PostQueuedCompletionStatus(p.iocp, 0, 0, nil)
}

// registerFD registers a file descriptor (handle) for I/O event monitoring.
func (p *fastPoller) registerFD(fd int, events IOEvents, cb ioCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) {
		newSize := fd*2 + 1
		if newSize > maxFDLimit {
			newSize = maxFDLimit + 1
		}
		newFds := make([]fdInfo, newSize)
		copy(newFds, p.fds)
		p.fds = newFds
	}

	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}

	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	// Associate the handle with the completion port, keyed by fd so
	// completion packets can be routed back to the callback.
	handle := windows.Handle(fd)
	_, err := windows.CreateIoCompletionPort(handle, p.iocp, uintptr(fd), 0)
	if err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{} // Rollback
		p.fdMu.Unlock()
		return err
	}

	return nil
}

// unregisterFD removes a file descriptor from monitoring. The IOCP
// association itself persists until the handle is closed; completion packets
// arriving afterwards are dropped.
func (p *fastPoller) unregisterFD(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}

	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	return nil
}

// modifyFD updates the events being monitored for a file descriptor. With
// IOCP the event set only affects how completions are reported back.
func (p *fastPoller) modifyFD(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}

	p.fds[fd].events = events
	p.fdMu.Unlock()

	return nil
}

// pollIO waits for a completion packet and dispatches it.
// Returns the number of events processed. A timeout of -1 blocks.
func (p *fastPoller) pollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}

	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped

	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &overlapped, timeout)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == syscall.Errno(windows.WAIT_TIMEOUT) {
				return 0, nil
			}
			if errno == windows.ERROR_ABANDONED_WAIT_0 || errno == windows.ERROR_INVALID_HANDLE {
				return 0, ErrPollerClosed
			}
		}
		return 0, err
	}

	if overlapped == nil {
		// Wake-up packet posted via PostQueuedCompletionStatus.
		return 0, nil
	}

	p.dispatchCompletion(int(key))

	return 1, nil
}

// dispatchCompletion routes a completion packet for the handle keyed by fd.
// RACE SAFETY: the callback is copied under RLock and called outside it.
func (p *fastPoller) dispatchCompletion(fd int) {
	if fd < 0 {
		return
	}

	p.fdMu.RLock()
	var info fdInfo
	if fd < len(p.fds) {
		info = p.fds[fd]
	}
	p.fdMu.RUnlock()

	if info.active && info.callback != nil {
		// A completion cannot be classified as read or write readiness
		// here, so report the monitored set.
		info.callback(info.events)
	}
}
