package device

import (
	"context"
	"fmt"
	"io"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
)

// File is a handle to an open device. It holds the position and access mode
// for one open; the device itself doesn't track either. A File is not safe for
// concurrent use, but any number of Files may share a device.
type File struct {
	// Interfaces
	io.Closer
	io.ReaderAt
	io.ReaderFrom
	io.ReadWriteSeeker
	io.StringWriter
	io.WriterAt
	io.WriterTo

	// Fields
	device   *Device
	position int64
	ioFlags  scull.IOFlags
	closed   bool
}

func newFile(device *Device, flags scull.IOFlags) *File {
	return &File{
		device:  device,
		ioFlags: flags,
	}
}

// Device returns the device the handle was opened on.
func (file *File) Device() *Device {
	return file.device
}

// Flags returns the flags the handle was opened with.
func (file *File) Flags() scull.IOFlags {
	return file.ioFlags
}

// Tell returns the current position. It's a more concise way of calling
// `Seek(0, io.SeekCurrent)`.
func (file *File) Tell() int64 {
	return file.position
}

// Size returns the size of the device, in bytes.
func (file *File) Size() int64 {
	return file.device.Size()
}

func (file *File) checkReadable() error {
	if file.closed {
		return errors.NewWithMessage(errors.EBADF, "handle is closed")
	}
	if !file.ioFlags.Read() {
		return errors.NewWithMessage(errors.EBADF, "handle not opened for reading")
	}
	return nil
}

func (file *File) checkWritable() error {
	if file.closed {
		return errors.NewWithMessage(errors.EBADF, "handle is closed")
	}
	if !file.ioFlags.Write() {
		return errors.NewWithMessage(errors.EBADF, "handle not opened for writing")
	}
	return nil
}

// Close releases the handle. It must not be used afterwards.
func (file *File) Close() error {
	if file.closed {
		return errors.NewWithMessage(errors.EBADF, "handle is already closed")
	}
	file.closed = true
	return file.device.Release(file)
}

func (file *File) Read(buffer []byte) (int, error) {
	return file.ReadContext(context.Background(), buffer)
}

// ReadContext reads from the current position and advances it. Like the device
// it reads from, it returns at most one quantum's worth of data per call. If
// nothing could be read, either because the position is at the end of the
// data or because it's in a part of the device that was never written, it
// returns [io.EOF].
func (file *File) ReadContext(ctx context.Context, buffer []byte) (int, error) {
	err := file.checkReadable()
	if err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	n, err := file.device.Read(ctx, buffer, &file.position)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt fills `buffer` starting at `offset`, crossing quantum boundaries as
// needed. It doesn't move the handle's position. If fewer than len(buffer)
// bytes could be read, the error is [io.EOF].
func (file *File) ReadAt(buffer []byte, offset int64) (int, error) {
	err := file.checkReadable()
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	position := offset
	total := 0

	for total < len(buffer) {
		n, err := file.device.Read(ctx, buffer[total:], &position)
		total += n
		if err != nil {
			return total, err
		} else if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

func (file *File) Write(buffer []byte) (int, error) {
	return file.WriteContext(context.Background(), buffer)
}

// WriteContext writes all of `buffer` at the current position and advances it,
// splitting the write at quantum boundaries. If the handle was opened with
// [scull.O_APPEND], the position is moved to the end of the data first.
func (file *File) WriteContext(ctx context.Context, buffer []byte) (int, error) {
	err := file.checkWritable()
	if err != nil {
		return 0, err
	}

	if file.ioFlags&scull.O_APPEND != 0 {
		file.position = file.device.Size()
	}
	return file.writeAll(ctx, buffer, &file.position)
}

// WriteAt writes all of `buffer` starting at `offset` without moving the
// handle's position. It fails with EPERM on handles opened with
// [scull.O_APPEND].
func (file *File) WriteAt(buffer []byte, offset int64) (int, error) {
	err := file.checkWritable()
	if err != nil {
		return 0, err
	}
	if file.ioFlags&scull.O_APPEND != 0 {
		return 0, errors.NewWithMessage(errors.EPERM, "WriteAt on a handle opened with O_APPEND")
	}

	position := offset
	return file.writeAll(context.Background(), buffer, &position)
}

func (file *File) writeAll(ctx context.Context, buffer []byte, position *int64) (int, error) {
	total := 0
	for total < len(buffer) {
		n, err := file.device.Write(ctx, buffer[total:], position)
		total += n
		if err != nil {
			return total, err
		} else if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// WriteString writes a string at the current position.
func (file *File) WriteString(s string) (int, error) {
	return file.Write([]byte(s))
}

// Seek moves the handle's position. See [Device.Seek] for the rules. On
// failure the position doesn't change.
func (file *File) Seek(offset int64, whence int) (int64, error) {
	if file.closed {
		return file.position, errors.NewWithMessage(errors.EBADF, "handle is closed")
	}

	newPosition, err := file.device.Seek(file.position, offset, whence)
	if err != nil {
		return file.position, err
	}
	file.position = newPosition
	return newPosition, nil
}

// Truncate discards the device's contents. Only truncating to 0 bytes is
// supported; any other size fails with ENOTSUP. The position doesn't move.
func (file *File) Truncate(size int64) error {
	err := file.checkWritable()
	if err != nil {
		return err
	}

	if size < 0 {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("truncate failed: %d is not a valid size", size))
	} else if size != 0 {
		return errors.NewWithMessage(
			errors.ENOTSUP, "devices can only be truncated to 0 bytes")
	}
	return file.device.Trim(context.Background())
}

// WriteTo copies the device's data from the current position to `w` until a
// read returns no data, advancing the position as it goes.
func (file *File) WriteTo(w io.Writer) (int64, error) {
	err := file.checkReadable()
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	totalWritten := int64(0)

	for {
		n, err := file.device.ReadTo(ctx, w, file.device.Geometry().ItemSize(), &file.position)
		totalWritten += n
		if err != nil {
			return totalWritten, err
		} else if n == 0 {
			return totalWritten, nil
		}
	}
}

// ReadFrom copies everything from `r` into the device at the current position
// until `r` returns [io.EOF].
func (file *File) ReadFrom(r io.Reader) (int64, error) {
	err := file.checkWritable()
	if err != nil {
		return 0, err
	}

	buffer := make([]byte, file.device.Geometry().Quantum)
	totalWritten := int64(0)

	for {
		lastReadSize, readErr := r.Read(buffer)

		written, writeErr := file.WriteContext(context.Background(), buffer[:lastReadSize])
		totalWritten += int64(written)
		if writeErr != nil {
			return totalWritten, writeErr
		} else if readErr == io.EOF {
			return totalWritten, nil
		} else if readErr != nil {
			return totalWritten, readErr
		}
	}
}
