// Package device implements a single scull device: a sparse store, its
// logical size, and the lock that serializes access to both.
package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/noxer/bytewriter"
	"golang.org/x/sync/semaphore"
)

// Options configures a new [Device].
type Options struct {
	// Minor is the number the host layer uses to refer to this device.
	Minor int
	// Geometry sets the size of the device's quanta and quantum sets.
	Geometry quantumset.Geometry
	// Allocator accounts for the device's memory. If nil, memory use is not
	// limited.
	Allocator quantumset.Allocator
	// Logger defaults to the module's shared logger.
	Logger *slog.Logger
}

// Stats is a snapshot of a device's state.
type Stats struct {
	Minor       int   `csv:"minor"`
	Quantum     int   `csv:"quantum"`
	QSet        int   `csv:"qset"`
	Size        int64 `csv:"size"`
	Nodes       int   `csv:"nodes"`
	Quanta      int   `csv:"quanta"`
	MemoryInUse int64 `csv:"memory_in_use"`
}

// Device is one scull device.
//
// Read, Write, Trim, and Stats hold the device lock for their entire duration.
// Waiting for the lock can be cancelled through the context; a cancelled call
// fails with EINTR and changes nothing. Seek and Size don't take the lock.
type Device struct {
	minor int
	sem   *semaphore.Weighted
	store *quantumset.Store
	// size is only written with the lock held, but is published atomically
	// so that Seek and Size can read it without the lock.
	size   atomic.Int64
	logger *slog.Logger
}

var _ scull.Device = (*Device)(nil)

// New creates an empty device.
func New(options Options) (*Device, error) {
	store, err := quantumset.New(options.Geometry, options.Allocator)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = scull.ComponentLogger(scull.ComponentDevice)
	}

	return &Device{
		minor:  options.Minor,
		sem:    semaphore.NewWeighted(1),
		store:  store,
		logger: logger.With("minor", options.Minor),
	}, nil
}

// Minor returns the device's minor number.
func (d *Device) Minor() int {
	return d.minor
}

// Geometry returns the geometry the device was created with.
func (d *Device) Geometry() quantumset.Geometry {
	return d.store.Geometry()
}

// Size returns the number of bytes logically written to the device, i.e. the
// largest end offset of any successful write since the last trim.
func (d *Device) Size() int64 {
	return d.size.Load()
}

func (d *Device) lock(ctx context.Context) error {
	err := d.sem.Acquire(ctx, 1)
	if err != nil {
		return errors.NewFromError(errors.EINTR, err)
	}
	return nil
}

func (d *Device) unlock() {
	d.sem.Release(1)
}

// Open creates a handle for the device. Opening the device write-only trims it
// first, which requires the device lock.
func (d *Device) Open(ctx context.Context, flags scull.IOFlags) (*File, error) {
	if flags.WriteOnly() {
		err := d.Trim(ctx)
		if err != nil {
			return nil, err
		}
	}
	return newFile(d, flags), nil
}

// Release is called when a handle is closed. It does nothing to the device.
func (d *Device) Release(file *File) error {
	d.logger.Debug("handle released", "position", file.Tell())
	return nil
}

// Seek computes a new position relative to the start of the device
// ([scull.SeekSet]), the caller's current position ([scull.SeekCur]), or the
// end of the data ([scull.SeekEnd]). An unknown `whence`, a negative result,
// or a result past the largest int64 fails with EINVAL.
//
// Seeking past the end is allowed; storage is allocated on the next write.
func (d *Device) Seek(current, offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case scull.SeekSet:
		base = 0
	case scull.SeekCur:
		base = current
	case scull.SeekEnd:
		base = d.size.Load()
	default:
		return current, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid seek origin: %d", whence))
	}

	if offset > 0 && base > math.MaxInt64-offset {
		return current, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("Seek(offset=%d, whence=%d) overflows from %d", offset, whence, base),
		)
	}

	newPosition := base + offset
	if newPosition < 0 {
		return current, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("result of Seek(offset=%d, whence=%d) is negative", offset, whence),
		)
	}
	return newPosition, nil
}

// Read implements [scull.ReadingDevice].
func (d *Device) Read(ctx context.Context, buffer []byte, pos *int64) (int, error) {
	n, err := d.ReadTo(ctx, bytewriter.New(buffer), int64(len(buffer)), pos)
	return int(n), err
}

// ReadTo writes at most `count` bytes of the device starting at *pos to `w`,
// and advances *pos by the number of bytes written.
//
// A read never crosses a quantum boundary, never goes past the end of the data,
// and stops at the first quantum that was never written to. All of these cases
// return fewer bytes than requested and no error; reading at or past the end
// returns 0 bytes.
//
// If `w` fails, the error has the errno code EFAULT and *pos is unchanged.
func (d *Device) ReadTo(ctx context.Context, w io.Writer, count int64, pos *int64) (int64, error) {
	err := checkTransferArgs(*pos, count)
	if err != nil {
		return 0, err
	}

	err = d.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer d.unlock()

	size := d.size.Load()
	if *pos >= size {
		return 0, nil
	}
	if count > size-*pos {
		count = size - *pos
	}

	cursor, ok, err := d.store.Locate(*pos, false)
	if err != nil {
		return 0, err
	} else if !ok {
		return 0, nil
	}

	quantum := d.store.ReadSlot(cursor.Node, cursor.Slot)
	if quantum == nil {
		return 0, nil
	}

	remaining := int64(d.store.Geometry().Remaining(cursor.Position))
	if count > remaining {
		count = remaining
	}

	source := quantum[cursor.Offset : int64(cursor.Offset)+count]
	written, err := w.Write(source)
	if err != nil {
		return 0, errors.ErrBadAddress.Wrap(err)
	} else if int64(written) != count {
		return 0, errors.ErrBadAddress.Wrap(io.ErrShortWrite)
	}

	*pos += count
	return count, nil
}

// Write implements [scull.WritingDevice].
func (d *Device) Write(ctx context.Context, data []byte, pos *int64) (int, error) {
	n, err := d.WriteFrom(ctx, bytes.NewReader(data), int64(len(data)), pos)
	return int(n), err
}

// WriteFrom reads at most `count` bytes from `r` into the device starting at
// *pos, advances *pos by the number of bytes stored, and extends the size of
// the device if the write ended past it.
//
// A write never crosses a quantum boundary; the caller must issue another
// write for whatever didn't fit. Nodes, slot tables, and quanta are allocated
// as needed, and an allocation failure returns an error with the errno code
// ENOMEM. If `r` fails, the error has the errno code EFAULT, *pos and the size
// are unchanged, and whatever was allocated stays allocated.
func (d *Device) WriteFrom(ctx context.Context, r io.Reader, count int64, pos *int64) (int64, error) {
	err := checkTransferArgs(*pos, count)
	if err != nil {
		return 0, err
	}

	err = d.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer d.unlock()

	if count == 0 {
		return 0, nil
	}

	cursor, _, err := d.store.Locate(*pos, true)
	if err != nil {
		return 0, err
	}

	quantum, err := d.store.Quantum(cursor.Node, cursor.Slot, true)
	if err != nil {
		return 0, err
	}

	remaining := int64(d.store.Geometry().Remaining(cursor.Position))
	if count > remaining {
		count = remaining
	}

	target := quantum[cursor.Offset : int64(cursor.Offset)+count]
	_, err = io.ReadFull(r, target)
	if err != nil {
		return 0, errors.ErrBadAddress.Wrap(err)
	}

	*pos += count
	if *pos > d.size.Load() {
		d.size.Store(*pos)
	}
	return count, nil
}

func checkTransferArgs(pos, count int64) error {
	if pos < 0 {
		return errors.NewWithMessage(errors.EINVAL, fmt.Sprintf("negative position %d", pos))
	}
	if count < 0 {
		return errors.NewWithMessage(errors.EINVAL, fmt.Sprintf("negative length %d", count))
	}
	return nil
}

// Trim discards all data on the device and sets its size to 0.
func (d *Device) Trim(ctx context.Context) error {
	err := d.lock(ctx)
	if err != nil {
		return err
	}
	defer d.unlock()

	d.trimLocked()
	return nil
}

func (d *Device) trimLocked() {
	nodes := d.store.Nodes()
	d.store.Reset()
	d.size.Store(0)
	d.logger.Debug("device trimmed", "released_nodes", nodes)
}

// Ioctl accepts any command and does nothing.
func (d *Device) Ioctl(cmd uint, arg uintptr) (int, error) {
	return 0, nil
}

// Stats returns a snapshot of the device's state.
func (d *Device) Stats(ctx context.Context) (Stats, error) {
	err := d.lock(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer d.unlock()

	geometry := d.store.Geometry()
	return Stats{
		Minor:       d.minor,
		Quantum:     geometry.Quantum,
		QSet:        geometry.QSet,
		Size:        d.size.Load(),
		Nodes:       d.store.Nodes(),
		Quanta:      d.store.Quanta(),
		MemoryInUse: d.store.MemoryInUse(),
	}, nil
}
