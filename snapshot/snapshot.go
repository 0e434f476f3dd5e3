package snapshot

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"math"

	"github.com/dargueta/scull/device"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/klauspost/compress/gzip"
)

// Magic identifies a snapshot image.
var Magic = [8]byte{'S', 'C', 'U', 'L', 'L', 'S', 'N', 'P'}

// Version is the only image format version this package reads and writes.
const Version = 1

// Header is the fixed-size header at the start of every image.
type Header struct {
	Magic   [8]byte
	Version uint16
	Quantum uint32
	QSet    uint32
	Size    int64
}

// Geometry returns the geometry of the device the image was taken from.
func (h Header) Geometry() quantumset.Geometry {
	return quantumset.Geometry{Quantum: int(h.Quantum), QSet: int(h.QSet)}
}

func (h Header) validate() error {
	if h.Magic != Magic {
		return errors.NewWithMessage(errors.EINVAL, "not a scull snapshot image")
	}
	if h.Version != Version {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("unsupported snapshot version %d, expected %d", h.Version, Version),
		)
	}
	if h.Size < 0 {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid device size %d in snapshot", h.Size))
	}
	return h.Geometry().Validate()
}

// Save writes an image of the device's current contents to `w`.
func Save(ctx context.Context, dev *device.Device, w io.Writer) (Header, error) {
	stats, err := dev.Stats(ctx)
	if err != nil {
		return Header{}, err
	}

	if uint64(stats.Quantum) > math.MaxUint32 || uint64(stats.QSet) > math.MaxUint32 {
		return Header{}, errors.ErrOverflow.WithMessage(
			fmt.Sprintf(
				"geometry %dx%d doesn't fit in a snapshot header", stats.Quantum, stats.QSet),
		)
	}

	header := Header{
		Magic:   Magic,
		Version: Version,
		Quantum: uint32(stats.Quantum),
		QSet:    uint32(stats.QSet),
		Size:    stats.Size,
	}

	gzWriter, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return Header{}, err
	}

	err = binary.Write(gzWriter, binary.LittleEndian, &header)
	if err != nil {
		return Header{}, errors.ErrIOFailed.Wrap(err)
	}

	encoder := NewEncoder(gzWriter)
	err = copyContents(ctx, dev, header, encoder)
	if err != nil {
		return Header{}, err
	}

	err = encoder.Close()
	if err == nil {
		err = gzWriter.Close()
	}
	if err != nil {
		return Header{}, errors.ErrIOFailed.Wrap(err)
	}
	return header, nil
}

// copyContents writes the first header.Size bytes of the device to `w`, filling
// holes with null bytes.
func copyContents(ctx context.Context, dev *device.Device, header Header, w io.Writer) error {
	geometry := header.Geometry()
	zeros := make([]byte, geometry.Quantum)
	position := int64(0)

	for position < header.Size {
		n, err := dev.ReadTo(ctx, w, header.Size-position, &position)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}

		// Nothing stored here. Either this is a hole or the device was trimmed
		// since we started; either way the rest of this quantum reads as zeros.
		gap := min(
			int64(geometry.Remaining(geometry.Translate(position))),
			header.Size-position,
		)
		_, err = w.Write(zeros[:gap])
		if err != nil {
			return errors.ErrIOFailed.Wrap(err)
		}
		position += gap
	}
	return nil
}

// Restore trims the device and loads the image from `r` into it. The device's
// geometry must match the image's; if it doesn't, the device is left untouched
// and an error with the errno code EINVAL is returned.
func Restore(ctx context.Context, dev *device.Device, r io.Reader) (Header, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return Header{}, errors.ErrInvalidArgument.Wrap(err)
	}
	defer gzReader.Close()

	var header Header
	err = binary.Read(gzReader, binary.LittleEndian, &header)
	if err != nil {
		return Header{}, errors.ErrInvalidArgument.Wrap(err)
	}
	err = header.validate()
	if err != nil {
		return Header{}, err
	}

	geometry := header.Geometry()
	if geometry != dev.Geometry() {
		return Header{}, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"snapshot geometry %s doesn't match device geometry %s",
				geometry,
				dev.Geometry(),
			),
		)
	}

	err = dev.Trim(ctx)
	if err != nil {
		return Header{}, err
	}

	decoder := NewDecoder(gzReader)
	buffer := make([]byte, geometry.Quantum)
	position := int64(0)

	for position < header.Size {
		chunk := buffer[:min(
			int64(geometry.Remaining(geometry.Translate(position))),
			header.Size-position,
		)]

		_, err = io.ReadFull(decoder, chunk)
		if err != nil {
			if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
				return Header{}, errors.NewWithMessage(
					errors.EINVAL,
					fmt.Sprintf("snapshot truncated at offset %d of %d", position, header.Size),
				)
			}
			return Header{}, errors.ErrIOFailed.Wrap(err)
		}

		isLast := position+int64(len(chunk)) == header.Size
		if !isLast && allZero(chunk) {
			position += int64(len(chunk))
			continue
		}

		// The chunk never crosses a quantum boundary, so one write stores all
		// of it.
		_, err = dev.Write(ctx, chunk, &position)
		if err != nil {
			return Header{}, err
		}
	}
	return header, nil
}

func allZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Copy replaces the contents of `dst` with those of `src` by streaming an image
// from one to the other. Holes in `src` stay holes in `dst`. Both devices must
// have the same geometry, and must not be the same device.
func Copy(ctx context.Context, dst, src *device.Device) (Header, error) {
	if dst == src {
		return Header{}, errors.NewWithMessage(errors.EINVAL, "can't copy a device onto itself")
	}

	reader, writer := io.Pipe()

	go func() {
		_, err := Save(ctx, src, writer)
		writer.CloseWithError(err)
	}()

	header, err := Restore(ctx, dst, reader)
	// Unblocks Save if Restore gave up early.
	reader.CloseWithError(err)
	return header, err
}
