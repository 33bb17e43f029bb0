//go:build windows

package taskloop

import (
	"errors"
)

// closeFD is a no-op on Windows since wake FDs don't exist. The IOCP
// implementation cleans up through the poller's close method.
func closeFD(fd int) error {
	if fd >= 0 {
		return errors.New("taskloop: closeFD not supported on windows")
	}
	return nil
}

// readFD is a no-op on Windows since wake FDs don't exist.
func readFD(fd int, buf []byte) (int, error) {
	return 0, nil
}

// writeFD is a no-op on Windows since wake FDs don't exist.
func writeFD(fd int, buf []byte) (int, error) {
	return 0, nil
}
