// Package testing contains helpers shared by the tests of the other packages.
// It's conventionally imported as `sculltest`.
package testing

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/dargueta/scull/device"
	"github.com/dargueta/scull/quantumset"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// ErrInjected is returned by the failing readers and writers in this package.
var ErrInjected = errors.New("injected I/O failure")

// RandomPayload returns `size` random bytes. It's guaranteed to either return a
// valid slice or fail the test and abort.
func RandomPayload(size int, t *testing.T) []byte {
	data := make([]byte, size)

	_, err := rand.Read(data)
	require.NoErrorf(t, err, "failed to generate %d random bytes", size)
	return data
}

// NewDevice creates a device with the given geometry and an allocator limited
// to `memoryLimit` bytes (0 for no limit). The allocator is returned so tests
// can inspect it.
func NewDevice(
	geometry quantumset.Geometry,
	memoryLimit int64,
	t *testing.T,
) (*device.Device, *quantumset.LimitAllocator) {
	allocator := quantumset.NewLimitAllocator(memoryLimit)
	dev, err := device.New(
		device.Options{
			Minor:     0,
			Geometry:  geometry,
			Allocator: allocator,
		},
	)
	require.NoError(t, err, "failed to create device")
	return dev, allocator
}

// WriteAll writes all of `data` to the device starting at `offset`, reissuing
// the write after every quantum boundary the way a host would. It returns the
// number of device writes it took.
func WriteAll(dev *device.Device, data []byte, offset int64, t *testing.T) int {
	ctx := context.Background()
	position := offset
	calls := 0

	for written := 0; written < len(data); {
		n, err := dev.Write(ctx, data[written:], &position)
		require.NoErrorf(t, err, "write failed at offset %d", position)
		require.Greaterf(t, n, 0, "write at offset %d made no progress", position)
		written += n
		calls++
	}
	require.EqualValues(t, offset+int64(len(data)), position, "position is wrong after writes")
	return calls
}

// ReadAll reads `length` bytes from the device starting at `offset`, reissuing
// the read after every quantum boundary. It stops early if a read returns no
// data.
func ReadAll(dev *device.Device, offset int64, length int, t *testing.T) []byte {
	ctx := context.Background()
	buffer := make([]byte, length)
	position := offset
	total := 0

	for total < length {
		n, err := dev.Read(ctx, buffer[total:], &position)
		require.NoErrorf(t, err, "read failed at offset %d", position)
		if n == 0 {
			break
		}
		total += n
	}
	return buffer[:total]
}

// NewReferenceImage returns a zeroed in-memory stream of `size` bytes that
// tests can mirror device writes into and compare against.
func NewReferenceImage(size int) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(make([]byte, size))
}

// FailingReader returns ErrInjected after handing out `limit` bytes.
type FailingReader struct {
	limit int
	read  int
}

func NewFailingReader(limit int) *FailingReader {
	return &FailingReader{limit: limit}
}

func (r *FailingReader) Read(buffer []byte) (int, error) {
	available := r.limit - r.read
	if available <= 0 {
		return 0, ErrInjected
	}
	if len(buffer) > available {
		buffer = buffer[:available]
	}
	for i := range buffer {
		buffer[i] = 0xa5
	}
	r.read += len(buffer)
	return len(buffer), nil
}

// FailingWriter rejects every write.
type FailingWriter struct{}

func (FailingWriter) Write([]byte) (int, error) {
	return 0, ErrInjected
}
