package main

import (
	"log"
	"os"

	"github.com/dargueta/scull/config"
	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "scullctl",
		Usage: "Run and exercise a set of in-memory scull devices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "load settings from a YAML `FILE`",
				EnvVars: []string{"SCULL_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "devices",
				Usage:   "number of devices to create",
				EnvVars: []string{"SCULL_DEVICES"},
			},
			&cli.IntFlag{
				Name:    "quantum",
				Usage:   "size of one quantum, in bytes",
				EnvVars: []string{"SCULL_QUANTUM"},
			},
			&cli.IntFlag{
				Name:    "qset",
				Usage:   "number of quanta per node",
				EnvVars: []string{"SCULL_QSET"},
			},
			&cli.StringFlag{
				Name:    "preset",
				Usage:   "use the predefined geometry `SLUG` instead of --quantum and --qset",
				EnvVars: []string{"SCULL_PRESET"},
			},
			&cli.Int64Flag{
				Name:    "memory-limit",
				Usage:   "maximum bytes each device may allocate, 0 for no limit",
				EnvVars: []string{"SCULL_MEMORY_LIMIT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "one of debug, info, warn, error",
				EnvVars: []string{"SCULL_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "text or json",
				EnvVars: []string{"SCULL_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "mount",
				Usage:     "Expose the devices as files in a FUSE filesystem until interrupted",
				Action:    mountDevices,
				ArgsUsage: "MOUNTPOINT",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "allow-other",
						Usage: "let other users access the mount",
					},
				},
			},
			{
				Name:   "selftest",
				Usage:  "Exercise a fresh set of devices and print their statistics as CSV",
				Action: selftest,
			},
			{
				Name:   "presets",
				Usage:  "List the predefined device geometries as CSV",
				Action: listPresets,
			},
		},
	}
}

// loadConfig builds the configuration from the config file, if any, with the
// command-line flags applied on top. It also configures logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	if c.IsSet("devices") {
		cfg.Devices = c.Int("devices")
	}
	if c.IsSet("quantum") {
		cfg.Quantum = c.Int("quantum")
	}
	if c.IsSet("qset") {
		cfg.QSet = c.Int("qset")
	}
	if c.IsSet("preset") {
		cfg.Preset = c.String("preset")
	}
	if c.IsSet("memory-limit") {
		cfg.MemoryLimit = c.Int64("memory-limit")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.ConfigureLogging()
}

func listPresets(c *cli.Context) error {
	return gocsv.Marshal(config.Presets(), c.App.Writer)
}
