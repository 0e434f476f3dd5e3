package errors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is a wrapper around system errno codes, with a customizable error message.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is makes [errors.Is] match any DriverError carrying the same errno code,
// regardless of the message attached to it.
func (e driverError) Is(target error) bool {
	other, ok := target.(DriverError)
	return ok && other.Errno() == e.errno
}

// WithMessage returns a copy of the error with `message` appended to the
// existing message. The errno code is preserved.
func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e.originalError,
	}
}

// Wrap returns a new error with the same errno code whose chain contains both
// this error and `err`, so [errors.Is] matches either of them.
func (e driverError) Wrap(err error) DriverError {
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// New creates a new [DriverError] with a default message derived from the
// system's error code.
func New(errnoCode Errno) DriverError {
	return driverError{
		errno:   errnoCode,
		message: StrError(errnoCode),
	}
}

func NewFromError(errnoCode Errno, originalError error) DriverError {
	return driverError{
		errno:         errnoCode,
		message:       fmt.Sprintf("%s: %s", StrError(errnoCode), originalError.Error()),
		originalError: originalError,
	}
}

// NewWithMessage creates a new DriverError from a system error code with a
// custom message.
func NewWithMessage(errnoCode Errno, message string) DriverError {
	return driverError{
		errno:   errnoCode,
		message: fmt.Sprintf("%s: %s", StrError(errnoCode), message),
	}
}

// CastToDriverError returns `err` unchanged if it's already a [DriverError],
// nil if it's nil, and otherwise wraps it with the errno code EIO.
func CastToDriverError(err error) DriverError {
	if err == nil {
		return nil
	}
	if driverErr, ok := err.(DriverError); ok {
		return driverErr
	}
	return NewFromError(EIO, err)
}
