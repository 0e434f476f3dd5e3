package devfs

import (
	stderrors "errors"
	"log/slog"
	"syscall"

	"github.com/dargueta/scull/errors"
)

var syscallErrnos = map[errors.Errno]syscall.Errno{
	errors.EPERM:     syscall.EPERM,
	errors.ENOENT:    syscall.ENOENT,
	errors.EINTR:     syscall.EINTR,
	errors.EIO:       syscall.EIO,
	errors.EBADF:     syscall.EBADF,
	errors.EAGAIN:    syscall.EAGAIN,
	errors.ENOMEM:    syscall.ENOMEM,
	errors.EACCES:    syscall.EACCES,
	errors.EFAULT:    syscall.EFAULT,
	errors.EBUSY:     syscall.EBUSY,
	errors.ENODEV:    syscall.ENODEV,
	errors.EINVAL:    syscall.EINVAL,
	errors.ENOSPC:    syscall.ENOSPC,
	errors.ESPIPE:    syscall.ESPIPE,
	errors.ERANGE:    syscall.ERANGE,
	errors.ENOSYS:    syscall.ENOSYS,
	errors.ENOTTY:    syscall.ENOTTY,
	errors.EOVERFLOW: syscall.EOVERFLOW,
	errors.ENOTSUP:   syscall.ENOTSUP,
}

// toErrno converts an error from a device into the code returned to the
// kernel. Anything that doesn't carry a known errno code becomes EIO.
func toErrno(err error, logger *slog.Logger) syscall.Errno {
	if err == nil {
		return 0
	}

	var driverErr errors.DriverError
	if stderrors.As(err, &driverErr) {
		if code, ok := syscallErrnos[driverErr.Errno()]; ok {
			return code
		}
	}

	logger.Error("unmapped device error", "error", err)
	return syscall.EIO
}
