package scull

import (
	"context"
)

// Defaults for a freshly created set of devices.
const (
	DefaultDeviceCount = 4
	DefaultQuantum     = 4000
	DefaultQSet        = 1000
)

// ReadingDevice is the interface for devices supporting positional reads.
type ReadingDevice interface {
	// Read copies at most len(buffer) bytes starting at *pos into buffer and
	// advances *pos by the number of bytes copied. It never crosses a quantum
	// boundary, so callers wanting more data must call it again.
	//
	// Reading at or past the end of the device returns 0 bytes and no error.
	Read(ctx context.Context, buffer []byte, pos *int64) (int, error)
}

// WritingDevice is the interface for devices supporting positional writes.
type WritingDevice interface {
	// Write copies data into the device starting at *pos and advances *pos by
	// the number of bytes written. Writes are truncated at the end of the
	// current quantum; the caller must reissue the remainder.
	Write(ctx context.Context, data []byte, pos *int64) (int, error)
	// Trim discards all data stored on the device.
	Trim(ctx context.Context) error
}

// Device is the callback set a host layer binds to one device instance, minus
// open and release, which return implementation-specific handles.
type Device interface {
	ReadingDevice
	WritingDevice

	// Seek computes a new position from a handle's current position. It
	// never touches the device's storage.
	Seek(current, offset int64, whence int) (int64, error)
	// Ioctl is a hook for control commands. No commands are defined.
	Ioctl(cmd uint, arg uintptr) (int, error)
	// Size returns the number of bytes logically written to the device.
	Size() int64
}
