// Package config loads the settings used to build a device registry.
//
// Settings come from an optional YAML file. Anything the file leaves out keeps
// the value from [Default]. Command-line flags are applied on top of that by
// the caller.
package config

import (
	"fmt"
	"os"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/dargueta/scull/registry"
	"gopkg.in/yaml.v3"
)

// Config holds the settings for a set of devices.
type Config struct {
	// Devices is the number of devices to create.
	Devices int `yaml:"devices"`

	// Quantum is the size of one quantum, in bytes. Ignored if Preset is set.
	Quantum int `yaml:"quantum"`

	// QSet is the number of quanta per node. Ignored if Preset is set.
	QSet int `yaml:"qset"`

	// MemoryLimit is the maximum number of bytes each device may allocate.
	// 0 means no limit.
	MemoryLimit int64 `yaml:"memory_limit"`

	// LogLevel is one of debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	// Preset is the slug of a predefined geometry. See [Presets].
	Preset string `yaml:"preset,omitempty"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Devices:   scull.DefaultDeviceCount,
		Quantum:   scull.DefaultQuantum,
		QSet:      scull.DefaultQSet,
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// Load reads a YAML configuration file on top of the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.ErrInvalidArgument.Wrap(
			fmt.Errorf("parsing config file %q: %w", path, err))
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency. All failures have the
// errno code EINVAL.
func (c *Config) Validate() error {
	if c.Devices <= 0 {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("devices must be positive, got %d", c.Devices))
	}
	if c.MemoryLimit < 0 {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("memory_limit can't be negative, got %d", c.MemoryLimit))
	}

	_, err := c.Geometry()
	if err != nil {
		return err
	}

	_, err = scull.ParseLogLevel(c.LogLevel)
	if err != nil {
		return errors.ErrInvalidArgument.Wrap(err)
	}
	_, err = scull.ParseLogFormat(c.LogFormat)
	if err != nil {
		return errors.ErrInvalidArgument.Wrap(err)
	}
	return nil
}

// Geometry returns the device geometry, taken from the preset if one is set.
func (c *Config) Geometry() (quantumset.Geometry, error) {
	geometry := quantumset.Geometry{Quantum: c.Quantum, QSet: c.QSet}
	if c.Preset != "" {
		preset, err := LookupPreset(c.Preset)
		if err != nil {
			return quantumset.Geometry{}, err
		}
		geometry = preset.Geometry()
	}
	return geometry, geometry.Validate()
}

// RegistryOptions converts the configuration into options for creating a
// device registry.
func (c *Config) RegistryOptions() (registry.Options, error) {
	err := c.Validate()
	if err != nil {
		return registry.Options{}, err
	}

	// Validate already checked this.
	geometry, _ := c.Geometry()
	return registry.Options{
		Count:       c.Devices,
		Geometry:    geometry,
		MemoryLimit: c.MemoryLimit,
	}, nil
}

// ConfigureLogging applies the log level and format to the module's shared
// logger.
func (c *Config) ConfigureLogging() error {
	level, err := scull.ParseLogLevel(c.LogLevel)
	if err != nil {
		return errors.ErrInvalidArgument.Wrap(err)
	}
	format, err := scull.ParseLogFormat(c.LogFormat)
	if err != nil {
		return errors.ErrInvalidArgument.Wrap(err)
	}

	scull.SetLogLevel(level)
	scull.SetLogFormat(format)
	return nil
}
