//go:build linux

package taskloop

import (
	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd creates an eventfd for wake-up notifications (Linux). An
// eventfd is a single descriptor, so it is returned as both the read and
// the write end.
func createWakeFd(initval uint, flags int) (int, int, error) {
	fd, err := unix.Eventfd(initval, flags)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}
