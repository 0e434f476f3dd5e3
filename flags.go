package scull

import (
	"io"
	"os"
)

// IOFlags holds the flags a device was opened with. Only the access mode is
// observed by the devices; the remaining bits are carried through untouched so
// that callers can pass os.OpenFile-style flags directly.
type IOFlags int

const (
	O_RDONLY IOFlags = IOFlags(os.O_RDONLY)
	O_WRONLY IOFlags = IOFlags(os.O_WRONLY)
	O_RDWR   IOFlags = IOFlags(os.O_RDWR)
	O_APPEND IOFlags = IOFlags(os.O_APPEND)
	O_TRUNC  IOFlags = IOFlags(os.O_TRUNC)
)

// O_ACCMODE masks the access mode bits out of a set of flags.
const O_ACCMODE IOFlags = O_RDONLY | O_WRONLY | O_RDWR

// AccessMode returns only the access mode bits of the flags.
func (flags IOFlags) AccessMode() IOFlags {
	return flags & O_ACCMODE
}

// Read returns true if the flags permit reading.
func (flags IOFlags) Read() bool {
	return flags.AccessMode() != O_WRONLY
}

// Write returns true if the flags permit writing.
func (flags IOFlags) Write() bool {
	mode := flags.AccessMode()
	return mode == O_WRONLY || mode == O_RDWR
}

// WriteOnly returns true if the device was opened write-only. Opening a device
// this way discards its contents.
func (flags IOFlags) WriteOnly() bool {
	return flags.AccessMode() == O_WRONLY
}

// Whence values accepted by Seek. These are identical to the ones in the io
// package.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)
