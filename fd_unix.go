//go:build linux || darwin

package taskloop

import (
	"golang.org/x/sys/unix"
)

// Raw fd helpers for the wake descriptor. These never retry on EINTR; the
// callers treat any error as "try again next iteration".

func closeFD(fd int) error {
	return unix.Close(fd)
}

func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}
