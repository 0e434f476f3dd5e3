// This is a compatibility shim for POSIX-defined errno codes across platforms.
// The syscall package doesn't define all the values we need on all systems,
// and the numbering differs between them.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK Errno = iota
	EPERM
	ENOENT
	EINTR
	EIO
	EBADF
	EAGAIN
	ENOMEM
	EACCES
	EFAULT
	EBUSY
	ENODEV
	EINVAL
	ENOSPC
	ESPIPE
	ERANGE
	ENOSYS
	ENOTTY
	EOVERFLOW
	ENOTSUP
)

// Initialized inline so that the sentinel errors below, which read it through
// New, see the messages.
var errorMessagesByCode = map[Errno]string{
	EPERM:     "Operation not permitted",
	ENOENT:    "No such file or directory",
	EINTR:     "Interrupted system call",
	EIO:       "Input/output error",
	EBADF:     "Bad file descriptor",
	EAGAIN:    "Resource temporarily unavailable",
	ENOMEM:    "Cannot allocate memory",
	EACCES:    "Permission denied",
	EFAULT:    "Bad address",
	EBUSY:     "Device or resource busy",
	ENODEV:    "No such device",
	EINVAL:    "Invalid argument",
	ENOSPC:    "No space left on device",
	ESPIPE:    "Illegal seek",
	ERANGE:    "Numerical result out of range",
	ENOSYS:    "Function not implemented",
	ENOTTY:    "Inappropriate ioctl for device",
	EOVERFLOW: "Value too large for defined data type",
	ENOTSUP:   "Operation not supported",
}

var ErrNotPermitted = New(EPERM)
var ErrInterrupted = New(EINTR)
var ErrIOFailed = New(EIO)
var ErrInvalidFileDescriptor = New(EBADF)
var ErrOutOfMemory = New(ENOMEM)
var ErrBadAddress = New(EFAULT)
var ErrNoDevice = New(ENODEV)
var ErrInvalidArgument = New(EINVAL)
var ErrOverflow = New(EOVERFLOW)
var ErrNotSupported = New(ENOTSUP)

func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
