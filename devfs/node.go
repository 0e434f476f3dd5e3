package devfs

import (
	"context"
	"log/slog"
	"syscall"

	"github.com/dargueta/scull/device"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const deviceFileMode = syscall.S_IFREG | 0o666

// deviceNode is the file for a single device.
type deviceNode struct {
	gofuse.Inode
	device *device.Device
	logger *slog.Logger
}

var _ gofuse.InodeEmbedder = (*deviceNode)(nil)
var _ gofuse.NodeGetattrer = (*deviceNode)(nil)
var _ gofuse.NodeSetattrer = (*deviceNode)(nil)
var _ gofuse.NodeOpener = (*deviceNode)(nil)

func (n *deviceNode) fillAttr(out *fuse.AttrOut) {
	out.Mode = deviceFileMode
	out.Size = uint64(n.device.Size())
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = uint32(n.device.Geometry().Quantum)
}

func (n *deviceNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(out)
	return 0
}

// Setattr only supports truncating the device to length 0. Changes to any
// other attribute are accepted and ignored.
func (n *deviceNode) Setattr(
	ctx context.Context,
	f gofuse.FileHandle,
	in *fuse.SetAttrIn,
	out *fuse.AttrOut,
) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if size != 0 {
			return syscall.ENOTSUP
		}
		err := n.device.Trim(ctx)
		if err != nil {
			return toErrno(err, n.logger)
		}
	}
	n.fillAttr(out)
	return 0
}

func (n *deviceNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_ACCMODE == syscall.O_WRONLY {
		err := n.device.Trim(ctx)
		if err != nil {
			return nil, 0, toErrno(err, n.logger)
		}
	}

	// The kernel page cache would hide concurrent changes and trims.
	return &deviceHandle{node: n}, fuse.FOPEN_DIRECT_IO, 0
}

// deviceHandle is an open device file. It carries no state of its own; the
// kernel tracks the file position and passes it in with every call.
type deviceHandle struct {
	node *deviceNode
}

var _ gofuse.FileReader = (*deviceHandle)(nil)
var _ gofuse.FileWriter = (*deviceHandle)(nil)
var _ gofuse.FileReleaser = (*deviceHandle)(nil)
var _ gofuse.FileGetattrer = (*deviceHandle)(nil)

// Read fills `dest` as far as the device allows, reissuing the device read at
// each quantum boundary. It stops at end of data or the first hole.
func (h *deviceHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	position := off
	total := 0

	for total < len(dest) {
		n, err := h.node.device.Read(ctx, dest[total:], &position)
		if err != nil {
			if total > 0 {
				break
			}
			return nil, toErrno(err, h.node.logger)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return fuse.ReadResultData(dest[:total]), 0
}

// Write stores all of `data` at `off`, reissuing the device write at each
// quantum boundary. A failure after some data was written reports the partial
// count.
func (h *deviceHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	position := off
	total := 0

	for total < len(data) {
		n, err := h.node.device.Write(ctx, data[total:], &position)
		if err != nil {
			if total > 0 {
				break
			}
			return 0, toErrno(err, h.node.logger)
		}
		total += n
	}
	return uint32(total), 0
}

func (h *deviceHandle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	h.node.fillAttr(out)
	return 0
}

func (h *deviceHandle) Release(ctx context.Context) syscall.Errno {
	return 0
}
