package device_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
	sculltest "github.com/dargueta/scull/testing"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile__WriteCrossesQuanta(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	file, err := dev.Open(context.Background(), scull.O_RDWR)
	require.NoError(t, err)
	defer file.Close()

	payload := sculltest.RandomPayload(150, t)
	n, err := file.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 150, n, "io.Writer must write everything or fail")
	assert.EqualValues(t, 150, file.Tell())
	assert.EqualValues(t, 150, file.Size())

	buffer := make([]byte, 150)
	n, err = file.ReadAt(buffer, 0)
	require.NoError(t, err)
	assert.Equal(t, 150, n)
	assert.Equal(t, payload, buffer)
	assert.EqualValues(t, 150, file.Tell(), "ReadAt moved the position")
}

func TestFile__ReadReturnsOneQuantumAtATime(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	payload := sculltest.RandomPayload(40, t)
	sculltest.WriteAll(dev, payload, 0, t)

	file, err := dev.Open(context.Background(), scull.O_RDONLY)
	require.NoError(t, err)
	defer file.Close()

	buffer := make([]byte, 100)
	expectedSizes := []int{16, 16, 8}
	position := 0
	for _, expected := range expectedSizes {
		n, err := file.Read(buffer)
		require.NoError(t, err)
		require.Equal(t, expected, n)
		assert.Equal(t, payload[position:position+n], buffer[:n])
		position += n
	}

	n, err := file.Read(buffer)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = file.Read(nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err, "empty read should succeed")
}

func TestFile__ReadAtPastEnd(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	sculltest.WriteAll(dev, []byte("0123456789"), 0, t)

	file, err := dev.Open(context.Background(), scull.O_RDONLY)
	require.NoError(t, err)

	buffer := make([]byte, 8)
	n, err := file.ReadAt(buffer, 6)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("6789"), buffer[:n])
}

func TestFile__Seek(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	sculltest.WriteAll(dev, []byte("0123456789"), 0, t)
	file, err := dev.Open(context.Background(), scull.O_RDONLY)
	require.NoError(t, err)

	position, err := file.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 4, position)

	position, err = file.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 6, position)

	buffer := make([]byte, 2)
	_, err = io.ReadFull(file, buffer)
	require.NoError(t, err)
	assert.Equal(t, []byte("67"), buffer)

	position, err = file.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 7, position)

	position, err = file.Seek(-100, io.SeekCurrent)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.EqualValues(t, 7, position)
	assert.EqualValues(t, 7, file.Tell(), "failed seek moved the position")
}

func TestFile__AccessModeEnforced(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	ctx := context.Background()

	reader, err := dev.Open(ctx, scull.O_RDONLY)
	require.NoError(t, err)
	_, err = reader.Write([]byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	assert.ErrorIs(t, reader.Truncate(0), errors.ErrInvalidFileDescriptor)

	writer, err := dev.Open(ctx, scull.O_WRONLY)
	require.NoError(t, err)
	_, err = writer.Read(make([]byte, 1))
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	_, err = writer.WriteTo(io.Discard)
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
}

func TestFile__Close(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	file, err := dev.Open(context.Background(), scull.O_RDWR)
	require.NoError(t, err)

	require.NoError(t, file.Close())
	assert.ErrorIs(t, file.Close(), errors.ErrInvalidFileDescriptor)

	_, err = file.Write([]byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	_, err = file.Read(make([]byte, 1))
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	_, err = file.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
}

func TestFile__Append(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	sculltest.WriteAll(dev, []byte("start"), 0, t)

	file, err := dev.Open(context.Background(), scull.O_RDWR|scull.O_APPEND)
	require.NoError(t, err)

	_, err = file.WriteString("-end")
	require.NoError(t, err)
	assert.EqualValues(t, 9, dev.Size())
	assert.Equal(t, []byte("start-end"), sculltest.ReadAll(dev, 0, 9, t))

	_, err = file.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, errors.ErrNotPermitted)
}

func TestFile__Truncate(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	sculltest.WriteAll(dev, []byte("contents"), 0, t)

	file, err := dev.Open(context.Background(), scull.O_RDWR)
	require.NoError(t, err)
	_, err = file.Seek(3, io.SeekStart)
	require.NoError(t, err)

	assert.ErrorIs(t, file.Truncate(5), errors.ErrNotSupported)
	assert.ErrorIs(t, file.Truncate(-1), errors.ErrInvalidArgument)
	assert.EqualValues(t, 8, dev.Size())

	require.NoError(t, file.Truncate(0))
	assert.EqualValues(t, 0, dev.Size())
	assert.EqualValues(t, 3, file.Tell(), "truncate moved the position")
}

func TestFile__WriteToAndReadFrom(t *testing.T) {
	source, _ := sculltest.NewDevice(smallGeometry, 0, t)
	payload := sculltest.RandomPayload(333, t)
	sculltest.WriteAll(source, payload, 0, t)

	sourceFile, err := source.Open(context.Background(), scull.O_RDONLY)
	require.NoError(t, err)

	outputBuffer := make([]byte, len(payload))
	n, err := sourceFile.WriteTo(bytewriter.New(outputBuffer))
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, outputBuffer)

	destination, _ := sculltest.NewDevice(smallGeometry, 0, t)
	destinationFile, err := destination.Open(context.Background(), scull.O_WRONLY)
	require.NoError(t, err)

	n, err = destinationFile.ReadFrom(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.True(t, bytes.Equal(payload, sculltest.ReadAll(destination, 0, len(payload), t)))
}

// Two handles on the same device have independent positions but share data.
func TestFile__HandlesShareDevice(t *testing.T) {
	dev, _ := sculltest.NewDevice(smallGeometry, 0, t)
	ctx := context.Background()

	writer, err := dev.Open(ctx, scull.O_RDWR)
	require.NoError(t, err)
	reader, err := dev.Open(ctx, scull.O_RDONLY)
	require.NoError(t, err)

	_, err = writer.WriteString("shared")
	require.NoError(t, err)
	assert.EqualValues(t, 6, writer.Tell())
	assert.EqualValues(t, 0, reader.Tell())

	buffer := make([]byte, 6)
	_, err = io.ReadFull(reader, buffer)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), buffer)
}

// When the device runs out of memory partway through, ReadFrom reports only
// the bytes that were stored.
func TestFile__ReadFromOutOfMemory(t *testing.T) {
	// One node, its slot table, and three 16-byte quanta.
	dev, _ := sculltest.NewDevice(smallGeometry, 64+97+3*16, t)
	file, err := dev.Open(context.Background(), scull.O_WRONLY)
	require.NoError(t, err)

	payload := sculltest.RandomPayload(100, t)
	n, err := file.ReadFrom(bytes.NewReader(payload))
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.EqualValues(t, 48, n)
	assert.EqualValues(t, 48, dev.Size())
	assert.EqualValues(t, 48, file.Tell())
	assert.Equal(t, payload[:48], sculltest.ReadAll(dev, 0, 48, t))
}
