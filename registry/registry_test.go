package registry_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/dargueta/scull/registry"
	sculltest "github.com/dargueta/scull/testing"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(count int, t *testing.T) *registry.Registry {
	options := registry.DefaultOptions()
	options.Count = count

	reg, err := registry.New(options)
	require.NoError(t, err, "failed to create registry")
	t.Cleanup(func() { _ = reg.Destroy(context.Background()) })
	return reg
}

func TestNew__Defaults(t *testing.T) {
	reg := newRegistry(scull.DefaultDeviceCount, t)

	require.Equal(t, 4, reg.Count())
	for minor := 0; minor < reg.Count(); minor++ {
		dev := reg.Lookup(minor)
		assert.Equal(t, minor, dev.Minor())
		assert.EqualValues(t, 0, dev.Size())
		assert.Equal(t, 4000, dev.Geometry().Quantum)
		assert.Equal(t, 1000, dev.Geometry().QSet)
	}
}

func TestNew__InvalidArguments(t *testing.T) {
	testCases := []struct {
		name    string
		options registry.Options
	}{
		{"zero count", registry.Options{Count: 0, Geometry: quantumset.Geometry{Quantum: 8, QSet: 4}}},
		{"negative count", registry.Options{Count: -1, Geometry: quantumset.Geometry{Quantum: 8, QSet: 4}}},
		{"zero quantum", registry.Options{Count: 1, Geometry: quantumset.Geometry{Quantum: 0, QSet: 4}}},
		{"zero qset", registry.Options{Count: 1, Geometry: quantumset.Geometry{Quantum: 8, QSet: 0}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg, err := registry.New(tc.options)
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}
}

func TestNew__RollsBackOnFailure(t *testing.T) {
	built := []*quantumset.LimitAllocator{}

	options := registry.DefaultOptions()
	options.NewAllocator = func(minor int) (quantumset.Allocator, error) {
		if minor == 2 {
			return nil, sculltest.ErrInjected
		}
		allocator := quantumset.NewLimitAllocator(0)
		built = append(built, allocator)
		return allocator, nil
	}

	reg, err := registry.New(options)
	assert.Nil(t, reg)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.ErrorIs(t, err, sculltest.ErrInjected)

	require.Len(t, built, 2, "allocators for minors 0 and 1 should have been built")
	for i, allocator := range built {
		assert.EqualValuesf(t, 0, allocator.InUse(), "device %d still holds memory", i)
	}
}

func TestLookup__OutOfRangePanics(t *testing.T) {
	reg := newRegistry(2, t)

	assert.NotPanics(t, func() { reg.Lookup(1) })
	assert.Panics(t, func() { reg.Lookup(2) })
	assert.Panics(t, func() { reg.Lookup(-1) })
}

func TestGet__OutOfRange(t *testing.T) {
	reg := newRegistry(2, t)

	dev, err := reg.Get(1)
	require.NoError(t, err)
	assert.Same(t, reg.Lookup(1), dev)

	dev, err = reg.Get(2)
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, errors.ErrNoDevice)
}

func TestRegistry__DevicesAreIndependent(t *testing.T) {
	reg := newRegistry(scull.DefaultDeviceCount, t)
	ctx := context.Background()

	for minor := 0; minor < reg.Count(); minor++ {
		payload := []byte(fmt.Sprintf("device %d", minor))
		var position int64

		n, err := reg.Lookup(minor).Write(ctx, payload, &position)
		require.NoError(t, err)
		require.Equal(t, len(payload), n)
	}

	for minor := 0; minor < reg.Count(); minor++ {
		expected := []byte(fmt.Sprintf("device %d", minor))
		actual := sculltest.ReadAll(reg.Lookup(minor), 0, len(expected), t)
		assert.Equal(t, expected, actual, "device %d has the wrong contents", minor)
	}
}

// Four devices, quantum 4000, qset 1000: write 5000 bytes to the second device
// and leave the others alone.
func TestRegistry__DefaultScenario(t *testing.T) {
	reg := newRegistry(scull.DefaultDeviceCount, t)
	ctx := context.Background()
	payload := sculltest.RandomPayload(5000, t)

	calls := sculltest.WriteAll(reg.Lookup(1), payload, 0, t)
	assert.Equal(t, 2, calls, "a 5000-byte write should take two device writes")

	stats, err := reg.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 4)

	for _, s := range stats {
		if s.Minor == 1 {
			assert.EqualValues(t, 5000, s.Size)
			assert.Equal(t, 1, s.Nodes)
			assert.Equal(t, 2, s.Quanta)
		} else {
			assert.EqualValuesf(t, 0, s.Size, "device %d was written", s.Minor)
			assert.Equalf(t, 0, s.Nodes, "device %d has storage", s.Minor)
		}
	}

	assert.Equal(t, payload, sculltest.ReadAll(reg.Lookup(1), 0, 5000, t))
}

func TestRegistry__Open(t *testing.T) {
	reg := newRegistry(2, t)
	ctx := context.Background()

	file, err := reg.Open(ctx, 1, scull.O_RDWR)
	require.NoError(t, err)
	assert.Same(t, reg.Lookup(1), file.Device())
	require.NoError(t, file.Close())

	_, err = reg.Open(ctx, 5, scull.O_RDONLY)
	assert.ErrorIs(t, err, errors.ErrNoDevice)
}

func TestDestroy__ReleasesMemory(t *testing.T) {
	allocators := []*quantumset.LimitAllocator{}
	options := registry.DefaultOptions()
	options.NewAllocator = func(int) (quantumset.Allocator, error) {
		allocator := quantumset.NewLimitAllocator(0)
		allocators = append(allocators, allocator)
		return allocator, nil
	}

	reg, err := registry.New(options)
	require.NoError(t, err)

	for minor := 0; minor < reg.Count(); minor++ {
		sculltest.WriteAll(reg.Lookup(minor), sculltest.RandomPayload(100, t), 0, t)
	}

	require.NoError(t, reg.Destroy(context.Background()))
	assert.Equal(t, 0, reg.Count())
	for i, allocator := range allocators {
		assert.EqualValuesf(t, 0, allocator.InUse(), "device %d still holds memory", i)
	}
}

func TestDestroy__Repeated(t *testing.T) {
	reg := newRegistry(2, t)

	require.NoError(t, reg.Destroy(context.Background()))
	require.NoError(t, reg.Destroy(context.Background()))
	assert.Panics(t, func() { reg.Lookup(0) })
}

func TestDestroy__Nil(t *testing.T) {
	var reg *registry.Registry
	assert.NoError(t, reg.Destroy(context.Background()))
	assert.Equal(t, 0, reg.Count())
}

func TestDestroy__CancelledCollectsErrors(t *testing.T) {
	options := registry.DefaultOptions()
	options.Count = 3
	reg, err := registry.New(options)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = reg.Destroy(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInterrupted)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)

	// The table is dropped even though the devices couldn't be trimmed.
	assert.Equal(t, 0, reg.Count())
}
