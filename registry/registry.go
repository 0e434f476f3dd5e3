// Package registry owns the fixed set of devices a host exposes, indexed by
// minor number.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/device"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/hashicorp/go-multierror"
)

// AllocatorFactory creates the allocator for the device with the given minor
// number. Returning an error aborts creation of the whole registry.
type AllocatorFactory func(minor int) (quantumset.Allocator, error)

// Options configures a new [Registry].
type Options struct {
	// Count is the number of devices.
	Count int
	// Geometry is the default geometry of every device.
	Geometry quantumset.Geometry
	// NewAllocator creates each device's allocator. If nil, every device gets
	// its own allocator limited to MemoryLimit bytes.
	NewAllocator AllocatorFactory
	// MemoryLimit is the per-device memory limit used when NewAllocator is
	// nil. 0 means no limit.
	MemoryLimit int64
	// Logger defaults to the module's shared logger.
	Logger *slog.Logger
}

// DefaultOptions returns the options for the stock configuration: four devices
// with 4000-byte quanta and 1000 quanta per node.
func DefaultOptions() Options {
	return Options{
		Count: scull.DefaultDeviceCount,
		Geometry: quantumset.Geometry{
			Quantum: scull.DefaultQuantum,
			QSet:    scull.DefaultQSet,
		},
	}
}

// Registry is a fixed-size table of devices. The table itself never changes
// after creation, so lookups need no locking.
type Registry struct {
	devices []*device.Device
	logger  *slog.Logger
}

// New creates all the devices at once. Either every device is created or, on
// failure, every device that was created is destroyed again and an error is
// returned.
func New(options Options) (*Registry, error) {
	if options.Count <= 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("device count must be positive, got %d", options.Count),
		)
	}
	err := options.Geometry.Validate()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = scull.ComponentLogger(scull.ComponentRegistry)
	}

	newAllocator := options.NewAllocator
	if newAllocator == nil {
		newAllocator = func(int) (quantumset.Allocator, error) {
			return quantumset.NewLimitAllocator(options.MemoryLimit), nil
		}
	}

	registry := &Registry{
		devices: make([]*device.Device, 0, options.Count),
		logger:  logger,
	}

	for minor := 0; minor < options.Count; minor++ {
		dev, err := newDevice(minor, options, newAllocator)
		if err != nil {
			logger.Error("failed to create device", "minor", minor, "error", err)
			// Nothing else holds a reference to these devices yet, so this
			// can't block.
			registry.Destroy(context.Background())
			return nil, err
		}
		registry.devices = append(registry.devices, dev)
	}

	logger.Info(
		"devices created",
		"count", options.Count,
		"quantum", options.Geometry.Quantum,
		"qset", options.Geometry.QSet,
	)
	return registry, nil
}

func newDevice(minor int, options Options, newAllocator AllocatorFactory) (*device.Device, error) {
	allocator, err := newAllocator(minor)
	if err != nil {
		return nil, errors.ErrOutOfMemory.Wrap(
			fmt.Errorf("creating allocator for device %d: %w", minor, err))
	}

	return device.New(
		device.Options{
			Minor:     minor,
			Geometry:  options.Geometry,
			Allocator: allocator,
			Logger:    options.Logger,
		},
	)
}

// Count returns the number of devices, or 0 once the registry is destroyed.
func (registry *Registry) Count() int {
	if registry == nil {
		return 0
	}
	return len(registry.devices)
}

// Lookup returns the device with the given minor number. Minor numbers are
// assigned by the host from the range the registry was created with, so
// asking for one outside [0, Count()) is a bug and panics.
func (registry *Registry) Lookup(minor int) *device.Device {
	if minor < 0 || minor >= registry.Count() {
		panic(fmt.Sprintf("minor %d not in range [0, %d)", minor, registry.Count()))
	}
	return registry.devices[minor]
}

// Get is like Lookup but returns an error with the errno code ENODEV instead of
// panicking.
func (registry *Registry) Get(minor int) (*device.Device, error) {
	if minor < 0 || minor >= registry.Count() {
		return nil, errors.NewWithMessage(
			errors.ENODEV,
			fmt.Sprintf("minor %d not in range [0, %d)", minor, registry.Count()),
		)
	}
	return registry.devices[minor], nil
}

// Devices returns the devices in minor number order.
func (registry *Registry) Devices() []*device.Device {
	if registry == nil {
		return nil
	}
	return append([]*device.Device(nil), registry.devices...)
}

// Stats returns a snapshot of every device, in minor number order.
func (registry *Registry) Stats(ctx context.Context) ([]device.Stats, error) {
	allStats := make([]device.Stats, 0, registry.Count())
	for _, dev := range registry.Devices() {
		stats, err := dev.Stats(ctx)
		if err != nil {
			return nil, err
		}
		allStats = append(allStats, stats)
	}
	return allStats, nil
}

// Destroy trims every device and empties the registry. Devices that couldn't
// be trimmed (because `ctx` was cancelled while waiting for them) are still
// dropped; the errors are combined and returned. It's safe to call Destroy
// more than once, and on a nil registry.
func (registry *Registry) Destroy(ctx context.Context) error {
	if registry == nil || registry.devices == nil {
		return nil
	}

	var result *multierror.Error
	for _, dev := range registry.devices {
		err := dev.Trim(ctx)
		if err != nil {
			result = multierror.Append(
				result, fmt.Errorf("trimming device %d: %w", dev.Minor(), err))
		}
	}

	count := len(registry.devices)
	registry.devices = nil
	registry.logger.Info("devices destroyed", "count", count)
	return result.ErrorOrNil()
}

// Open opens the device with the given minor number, for hosts that dispatch
// by minor number.
func (registry *Registry) Open(
	ctx context.Context,
	minor int,
	flags scull.IOFlags,
) (*device.File, error) {
	dev, err := registry.Get(minor)
	if err != nil {
		return nil, err
	}
	return dev.Open(ctx, flags)
}
