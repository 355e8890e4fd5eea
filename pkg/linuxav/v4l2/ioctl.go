//go:build linux

package v4l2

import (
	"errors"
	"math"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// driver is the kernel surface a Device talks to. fdDriver is the real
// implementation; tests substitute an in-process driver.
type driver interface {
	ioctl(req uint, arg unsafe.Pointer) error
	mmap(offset int64, length int) ([]byte, error)
	munmap(b []byte) error
	// poll waits until the device signals events or the timeout expires.
	// A negative timeout blocks indefinitely.
	poll(events int16, timeout time.Duration) (bool, error)
	close() error
}

type fdDriver struct {
	fd int
}

func openFD(path string, nonblock bool) (*fdDriver, error) {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if nonblock {
		flags |= unix.O_NONBLOCK
	}
	for {
		fd, err := unix.Open(path, flags, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &fdDriver{fd: fd}, nil
	}
}

func (d *fdDriver) ioctl(req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func (d *fdDriver) mmap(offset int64, length int) ([]byte, error) {
	return unix.Mmap(d.fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *fdDriver) munmap(b []byte) error {
	return unix.Munmap(b)
}

func (d *fdDriver) poll(events int16, timeout time.Duration) (bool, error) {
	ms := pollMillis(timeout)
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: events}}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 && fds[0].Revents&events == 0 {
			return false, unix.EIO
		}
		return true, nil
	}
}

// pollMillis converts a poll timeout to milliseconds. Positive timeouts
// round up so they never become a non-blocking poll, and are clamped to
// the int32 range poll(2) takes.
func pollMillis(timeout time.Duration) int {
	switch {
	case timeout < 0:
		return -1
	case timeout == 0:
		return 0
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

func (d *fdDriver) close() error {
	return unix.Close(d.fd)
}
