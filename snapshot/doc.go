// Package snapshot saves the contents of a device to a compact image and loads
// them back.
//
// Devices are sparse: a device written at offset 0 and at offset 1 GiB only
// holds two quanta, but reads back as a gigabyte of mostly null bytes. An image
// stores the full logical contents, so holes are written out as runs of zeros.
// These are squeezed out by run-length encoding the contents with RLE8 and then
// compressing the result with gzip.
//
// An image is a gzip stream containing a fixed-size [Header] followed by the
// RLE8-encoded contents, exactly Header.Size bytes once decoded.
//
// When an image is loaded, quanta that are entirely null are skipped rather
// than written, so holes stay holes. The exception is the last one, which is
// always written so that the device ends up with the right size.
//
// Images are a stream format for copying and comparing device contents; this
// package never touches the filesystem itself.
//
// Neither saving nor loading is atomic with respect to other users of the
// device. Each individual read or write holds the device lock, but others can
// interleave between them.
package snapshot
