//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrorCode classifies a failure reported by this package.
type ErrorCode string

// ErrorCode constants.
const (
	// ErrCodeDevice: open, format or streaming command rejected by the driver or OS.
	ErrCodeDevice ErrorCode = "DEVICE_ERROR"
	// ErrCodeResource: buffer allocation or mapping failure.
	ErrCodeResource ErrorCode = "RESOURCE_ERROR"
	// ErrCodeProtocol: the caller misused the streaming state machine.
	ErrCodeProtocol ErrorCode = "PROTOCOL_VIOLATION"
	// ErrCodeIO: a per-buffer I/O failure, recoverable by calling again.
	ErrCodeIO ErrorCode = "IO_ERROR"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its code.
var (
	ErrDevice   = &Error{Code: ErrCodeDevice}
	ErrResource = &Error{Code: ErrCodeResource}
	ErrProtocol = &Error{Code: ErrCodeProtocol}
	ErrIO       = &Error{Code: ErrCodeIO}
)

// ErrNoFrame is returned by Stream.Wait (and by dequeues on a non-blocking
// device) when no buffer completed in time. It is an outcome, not a failure.
var ErrNoFrame = errors.New("v4l2: no frame ready")

// Error is the error type returned by every operation in this package.
type Error struct {
	Code    ErrorCode
	Op      string // ioctl or syscall name, e.g. "VIDIOC_S_FMT"
	Path    string // device node
	Message string
	Cause   error // usually a syscall.Errno
}

func (e *Error) Error() string {
	msg := "v4l2"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code and, when
// target carries an Op, the same operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, path, op, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}

func deviceError(path, op string, cause error) *Error {
	return newError(ErrCodeDevice, path, op, describeErrno(cause), cause)
}

func resourceError(path, op, message string, cause error) *Error {
	return newError(ErrCodeResource, path, op, message, cause)
}

func protocolError(path, op, message string) *Error {
	return newError(ErrCodeProtocol, path, op, message, nil)
}

func ioError(path, op, message string, cause error) *Error {
	return newError(ErrCodeIO, path, op, message, cause)
}

// describeErrno gives the V4L2-specific meaning of common errno values.
func describeErrno(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	switch errno {
	case syscall.EBUSY:
		return "device busy (streaming or buffers allocated)"
	case syscall.EINVAL:
		return "request rejected by driver"
	case syscall.ENOTTY:
		return "operation not supported by device"
	case syscall.ENODEV, syscall.ENXIO:
		return "device disconnected"
	case syscall.ENOENT:
		return "no such device node"
	case syscall.EACCES, syscall.EPERM:
		return "permission denied"
	case syscall.EIO:
		return "I/O error"
	case syscall.EPIPE:
		return "driver reported broken pipe"
	default:
		return ""
	}
}
