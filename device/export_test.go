package device

import "context"

// HoldLock takes the device lock the same way Read and Write do, so tests can
// create contention.
func (d *Device) HoldLock(ctx context.Context) error {
	return d.lock(ctx)
}

// DropLock releases a lock taken with HoldLock.
func (d *Device) DropLock() {
	d.unlock()
}
