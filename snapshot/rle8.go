package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// maxRun is the longest run a single RLE8 group can hold: the byte twice,
// followed by up to 255 more repetitions.
const maxRun = 257

// Encoder run-length encodes everything written to it using RLE8 and writes
// the result to the underlying writer. A byte occurring N >= 2 times in a row
// is written twice, followed by a byte giving N-2. Runs longer than 257 are
// split.
//
// The last run is only written out by Close.
type Encoder struct {
	w       *bufio.Writer
	current byte
	run     int
	written int64
	err     error
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) Write(data []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	for i, b := range data {
		if e.run > 0 && b == e.current {
			e.run++
			if e.run == maxRun {
				e.emit()
			}
		} else {
			e.emit()
			e.current = b
			e.run = 1
		}

		if e.err != nil {
			return i, e.err
		}
	}
	return len(data), nil
}

// emit writes out the pending run, if any.
func (e *Encoder) emit() {
	if e.err != nil || e.run == 0 {
		return
	}

	var group []byte
	if e.run == 1 {
		group = []byte{e.current}
	} else {
		group = []byte{e.current, e.current, byte(e.run - 2)}
	}

	n, err := e.w.Write(group)
	e.written += int64(n)
	e.err = err
	e.run = 0
}

// Written returns the number of encoded bytes produced so far.
func (e *Encoder) Written() int64 {
	return e.written
}

// Close writes out the last run and flushes the encoder. It doesn't close the
// underlying writer.
func (e *Encoder) Close() error {
	e.emit()
	if e.err != nil {
		return e.err
	}
	e.err = e.w.Flush()
	return e.err
}

// Decoder reads RLE8-encoded data from the underlying reader and returns the
// decoded bytes.
type Decoder struct {
	r           *bufio.Reader
	last        int
	pending     int
	pendingByte byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), last: -1}
}

func (d *Decoder) Read(buffer []byte) (int, error) {
	n := 0
	for n < len(buffer) {
		if d.pending > 0 {
			count := min(d.pending, len(buffer)-n)
			for i := 0; i < count; i++ {
				buffer[n+i] = d.pendingByte
			}
			n += count
			d.pending -= count
			continue
		}

		b, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, nil
			}
			return n, err
		}

		if int(b) != d.last {
			d.last = int(b)
			buffer[n] = b
			n++
			continue
		}

		// Second occurrence of the same byte. The next byte is the number of
		// additional repetitions.
		repeats, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf(
					"%w: missing repeat count after two %02x bytes", io.ErrUnexpectedEOF, b)
			}
			return n, err
		}

		d.pending = int(repeats) + 1
		d.pendingByte = b
		// A new group starts after this one, even if it's the same byte.
		d.last = -1
	}
	return n, nil
}
