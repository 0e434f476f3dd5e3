package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/registry"
	"github.com/dargueta/scull/snapshot"
	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

type scenario struct {
	name string
	run  func(ctx context.Context, reg *registry.Registry) error
}

var scenarios = []scenario{
	{"large-write", checkLargeWrite},
	{"write-only-open-trims", checkWriteOnlyOpenTrims},
	{"seek", checkSeek},
	{"independent-devices", checkIndependentDevices},
	{"snapshot-round-trip", checkSnapshotRoundTrip},
	{"device-copy", checkDeviceCopy},
	{"unknown-minor", checkUnknownMinor},
}

func selftest(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	options, err := cfg.RegistryOptions()
	if err != nil {
		return err
	}

	reg, err := registry.New(options)
	if err != nil {
		return err
	}
	defer reg.Destroy(context.Background())

	return runSelftest(c.Context, reg, c.App.Writer, c.App.ErrWriter)
}

// runSelftest runs every scenario against the registry, reporting progress to
// `log`, then writes the statistics of every device to `out` as CSV. All
// failed scenarios are returned together.
func runSelftest(
	ctx context.Context,
	reg *registry.Registry,
	out io.Writer,
	log io.Writer,
) error {
	var result *multierror.Error
	for _, s := range scenarios {
		err := s.run(ctx, reg)
		if err != nil {
			fmt.Fprintf(log, "FAIL %s: %s\n", s.name, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.name, err))
		} else {
			fmt.Fprintf(log, "ok   %s\n", s.name)
		}
	}

	stats, err := reg.Stats(ctx)
	if err != nil {
		return multierror.Append(result, err)
	}
	for _, s := range stats {
		fmt.Fprintf(
			log,
			"scull%d: %s stored in %d quanta, %s allocated\n",
			s.Minor,
			humanize.IBytes(uint64(s.Size)),
			s.Quanta,
			humanize.IBytes(uint64(s.MemoryInUse)),
		)
	}

	err = gocsv.Marshal(stats, out)
	if err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) ^ seed
	}
	return data
}

// targetMinor is the device the single-device scenarios use: the second one if
// there is one.
func targetMinor(reg *registry.Registry) int {
	return min(1, reg.Count()-1)
}

// checkLargeWrite writes 5000 bytes through a handle, which takes one device
// write per quantum crossed, and reads them back.
func checkLargeWrite(ctx context.Context, reg *registry.Registry) error {
	minor := targetMinor(reg)
	payload := pattern(5000, 0x5a)

	writer, err := reg.Open(ctx, minor, scull.O_WRONLY)
	if err != nil {
		return err
	}
	n, err := writer.WriteContext(ctx, payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("wrote %d bytes, expected %d", n, len(payload))
	}
	err = writer.Close()
	if err != nil {
		return err
	}

	if size := reg.Lookup(minor).Size(); size != 5000 {
		return fmt.Errorf("device size is %d after writing 5000 bytes", size)
	}

	reader, err := reg.Open(ctx, minor, scull.O_RDONLY)
	if err != nil {
		return err
	}
	defer reader.Close()

	readBack := bytes.Buffer{}
	_, err = io.Copy(&readBack, reader)
	if err != nil {
		return err
	}
	if !bytes.Equal(readBack.Bytes(), payload) {
		return fmt.Errorf("read back %d bytes that don't match what was written", readBack.Len())
	}
	return nil
}

func checkWriteOnlyOpenTrims(ctx context.Context, reg *registry.Registry) error {
	minor := targetMinor(reg)
	dev := reg.Lookup(minor)

	position := int64(0)
	_, err := dev.Write(ctx, []byte("data"), &position)
	if err != nil {
		return err
	}

	file, err := reg.Open(ctx, minor, scull.O_WRONLY)
	if err != nil {
		return err
	}
	defer file.Close()

	if dev.Size() != 0 {
		return fmt.Errorf("device size is %d after opening write-only", dev.Size())
	}
	return nil
}

func checkSeek(ctx context.Context, reg *registry.Registry) error {
	file, err := reg.Open(ctx, 0, scull.O_RDWR)
	if err != nil {
		return err
	}
	defer file.Close()

	err = file.Truncate(0)
	if err != nil {
		return err
	}
	_, err = file.WriteString("0123456789")
	if err != nil {
		return err
	}

	steps := []struct {
		offset   int64
		whence   int
		expected int64
	}{
		{2, scull.SeekSet, 2},
		{3, scull.SeekCur, 5},
		{-4, scull.SeekEnd, 6},
	}
	for _, step := range steps {
		position, err := file.Seek(step.offset, step.whence)
		if err != nil {
			return err
		}
		if position != step.expected {
			return fmt.Errorf(
				"seek(%d, %d) gave position %d, expected %d",
				step.offset, step.whence, position, step.expected)
		}
	}

	_, err = file.Seek(-100, scull.SeekSet)
	if !stderrors.Is(err, errors.ErrInvalidArgument) {
		return fmt.Errorf("seeking to a negative position gave %v, expected EINVAL", err)
	}

	buffer := make([]byte, 4)
	n, err := file.ReadContext(ctx, buffer)
	if err != nil {
		return err
	}
	if string(buffer[:n]) != "6789" {
		return fmt.Errorf("read %q after seeking, expected \"6789\"", buffer[:n])
	}
	return nil
}

func checkIndependentDevices(ctx context.Context, reg *registry.Registry) error {
	for _, dev := range reg.Devices() {
		err := dev.Trim(ctx)
		if err != nil {
			return err
		}
		position := int64(0)
		_, err = dev.Write(ctx, []byte(fmt.Sprintf("scull%d", dev.Minor())), &position)
		if err != nil {
			return err
		}
	}

	for _, dev := range reg.Devices() {
		expected := fmt.Sprintf("scull%d", dev.Minor())
		buffer := make([]byte, len(expected)+10)
		position := int64(0)

		n, err := dev.Read(ctx, buffer, &position)
		if err != nil {
			return err
		}
		if string(buffer[:n]) != expected {
			return fmt.Errorf("device %d holds %q, expected %q", dev.Minor(), buffer[:n], expected)
		}
	}
	return nil
}

func checkSnapshotRoundTrip(ctx context.Context, reg *registry.Registry) error {
	dev := reg.Lookup(targetMinor(reg))
	payload := pattern(3000, 0xc3)

	err := dev.Trim(ctx)
	if err != nil {
		return err
	}
	// Leave a hole in front of the data.
	position := int64(10000)
	for written := 0; written < len(payload); {
		n, err := dev.Write(ctx, payload[written:], &position)
		if err != nil {
			return err
		}
		written += n
	}

	image := bytes.Buffer{}
	_, err = snapshot.Save(ctx, dev, &image)
	if err != nil {
		return err
	}
	err = dev.Trim(ctx)
	if err != nil {
		return err
	}
	_, err = snapshot.Restore(ctx, dev, &image)
	if err != nil {
		return err
	}

	if dev.Size() != 13000 {
		return fmt.Errorf("restored device size is %d, expected 13000", dev.Size())
	}

	readBack := make([]byte, len(payload))
	position = 10000
	for total := 0; total < len(readBack); {
		n, err := dev.Read(ctx, readBack[total:], &position)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("restored device ends early at offset %d", position)
		}
		total += n
	}
	if !bytes.Equal(readBack, payload) {
		return fmt.Errorf("restored data doesn't match")
	}
	return nil
}

// checkDeviceCopy copies the target device onto the first one. It's skipped if
// there's only one device.
func checkDeviceCopy(ctx context.Context, reg *registry.Registry) error {
	minor := targetMinor(reg)
	if minor == 0 {
		return nil
	}
	src := reg.Lookup(minor)
	dst := reg.Lookup(0)

	_, err := snapshot.Copy(ctx, dst, src)
	if err != nil {
		return err
	}

	expected := bytes.Buffer{}
	_, err = snapshot.Save(ctx, src, &expected)
	if err != nil {
		return err
	}
	actual := bytes.Buffer{}
	_, err = snapshot.Save(ctx, dst, &actual)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected.Bytes(), actual.Bytes()) {
		return fmt.Errorf("image of device 0 differs from image of device %d", minor)
	}
	return nil
}

func checkUnknownMinor(ctx context.Context, reg *registry.Registry) error {
	_, err := reg.Get(reg.Count())
	if !stderrors.Is(err, errors.ErrNoDevice) {
		return fmt.Errorf("looking up minor %d gave %v, expected ENODEV", reg.Count(), err)
	}
	return nil
}
