package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/devfs"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/registry"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

// mountDevices exposes a fresh registry through FUSE until SIGINT or SIGTERM
// arrives or the filesystem is unmounted from outside, then tears it down. The
// devices' contents are lost.
func mountDevices(c *cli.Context) error {
	mountpoint := c.Args().First()
	if mountpoint == "" {
		return errors.NewWithMessage(errors.EINVAL, "missing MOUNTPOINT argument")
	}

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
	// Only matters for the early returns; Destroy can be called again below.
	defer reg.Destroy(context.Background())

	server, err := devfs.Mount(
		devfs.Options{
			Mountpoint: mountpoint,
			Registry:   reg,
			AllowOther: c.Bool("allow-other"),
		},
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	unmounted := make(chan struct{})
	go func() {
		server.Wait()
		close(unmounted)
	}()

	logger := scull.ComponentLogger(scull.ComponentDevFS)
	var result *multierror.Error

	select {
	case <-ctx.Done():
		logger.Info("unmounting", "mountpoint", mountpoint)
		err = server.Unmount()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("unmounting %s: %w", mountpoint, err))
		} else {
			<-unmounted
		}
	case <-unmounted:
		logger.Info("unmounted externally", "mountpoint", mountpoint)
	}

	err = reg.Destroy(context.Background())
	if err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
