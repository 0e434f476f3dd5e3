package quantumset

import (
	"fmt"
	"sync"

	"github.com/dargueta/scull/errors"
)

// AllocationKind tells an [Allocator] what a reservation is for.
type AllocationKind int

const (
	// KindNode is the fixed header of one chain node.
	KindNode AllocationKind = iota
	// KindSlotTable is the table of quantum slots owned by one node.
	KindSlotTable
	// KindQuantum is a single quantum.
	KindQuantum
)

func (kind AllocationKind) String() string {
	switch kind {
	case KindNode:
		return "node"
	case KindSlotTable:
		return "slot table"
	case KindQuantum:
		return "quantum"
	}
	return fmt.Sprintf("AllocationKind(%d)", int(kind))
}

// nodeHeaderSize is what a node header is charged regardless of its contents.
const nodeHeaderSize = 64

// slotTableSize gives the number of bytes charged for a slot table of `qset`
// entries: one slice header per slot plus the presence bitmap.
func slotTableSize(qset int) int64 {
	return int64(qset)*24 + int64((qset+7)/8)
}

// Allocator accounts for the memory a [Store] acquires. Reserve is called
// before every allocation; if it fails, the allocation doesn't happen.
// Release is called exactly once for every successful reservation when the
// memory is dropped.
type Allocator interface {
	Reserve(kind AllocationKind, size int64) error
	Release(kind AllocationKind, size int64)
	// InUse returns the number of bytes currently reserved.
	InUse() int64
}

// LimitAllocator is an [Allocator] that refuses reservations that would push
// the total number of reserved bytes past a fixed limit. A limit of 0 or less
// means there is no limit. It's safe for concurrent use.
type LimitAllocator struct {
	mu    sync.Mutex
	limit int64
	inUse int64
	peak  int64
}

// NewLimitAllocator creates an allocator that fails with the errno code ENOMEM
// once more than `limit` bytes would be reserved.
func NewLimitAllocator(limit int64) *LimitAllocator {
	return &LimitAllocator{limit: limit}
}

// Unlimited creates an allocator that never refuses a reservation.
func Unlimited() *LimitAllocator {
	return NewLimitAllocator(0)
}

func (alloc *LimitAllocator) Reserve(kind AllocationKind, size int64) error {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()

	if alloc.limit > 0 && alloc.inUse+size > alloc.limit {
		return errors.NewWithMessage(
			errors.ENOMEM,
			fmt.Sprintf(
				"can't reserve %d bytes for a %s: %d of %d bytes in use",
				size,
				kind,
				alloc.inUse,
				alloc.limit,
			),
		)
	}

	alloc.inUse += size
	if alloc.inUse > alloc.peak {
		alloc.peak = alloc.inUse
	}
	return nil
}

func (alloc *LimitAllocator) Release(kind AllocationKind, size int64) {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()

	alloc.inUse -= size
	if alloc.inUse < 0 {
		panic(fmt.Sprintf("released more memory than reserved (%s, %d bytes)", kind, size))
	}
}

func (alloc *LimitAllocator) InUse() int64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	return alloc.inUse
}

// Peak returns the largest number of bytes that were ever reserved at once.
func (alloc *LimitAllocator) Peak() int64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	return alloc.peak
}

// Limit returns the configured limit, or 0 if there is none.
func (alloc *LimitAllocator) Limit() int64 {
	return alloc.limit
}
