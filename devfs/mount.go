// Package devfs exposes the devices of a registry as regular files in a FUSE
// filesystem, one file per device, named scull0 through scullN-1.
//
// Reads and writes go straight to the devices with the kernel-supplied offset.
// Opening a file write-only empties the device, and so does truncating it to
// length 0.
package devfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/dargueta/scull"
	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/registry"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted. It's
	// created if it doesn't exist.
	Mountpoint string

	// Registry holds the devices to expose.
	Registry *registry.Registry

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger defaults to the module's shared logger.
	Logger *slog.Logger
}

// DeviceName returns the file name of the device with the given minor number.
func DeviceName(minor int) string {
	return fmt.Sprintf("scull%d", minor)
}

// Mount mounts the filesystem at the configured mountpoint. The caller must
// call Unmount on the returned server when done, and must not destroy the
// registry before that.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, errors.NewWithMessage(errors.EINVAL, "mountpoint is required")
	}
	if options.Registry == nil {
		return nil, errors.NewWithMessage(errors.EINVAL, "registry is required")
	}
	if options.Logger == nil {
		options.Logger = scull.ComponentLogger(scull.ComponentDevFS)
	}

	err := os.MkdirAll(options.Mountpoint, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	// Device sizes change underneath the kernel, so attributes aren't cached.
	entryTimeout := 1 * time.Second
	attrTimeout := time.Duration(0)
	negativeTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, newRoot(&options), &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "scull",
			Name:       "scull",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info(
		"scull filesystem mounted",
		"mountpoint", options.Mountpoint,
		"devices", options.Registry.Count(),
	)
	return server, nil
}

// rootNode is the filesystem root. Its children are the devices; the set never
// changes while mounted.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func newRoot(options *Options) *rootNode {
	return &rootNode{options: options}
}

func (r *rootNode) OnAdd(ctx context.Context) {
	for _, dev := range r.options.Registry.Devices() {
		node := &deviceNode{device: dev, logger: r.options.Logger}
		child := r.NewPersistentInode(
			ctx,
			node,
			gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: uint64(dev.Minor()) + 2},
		)
		r.AddChild(DeviceName(dev.Minor()), child, true)
	}
}
