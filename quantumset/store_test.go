package quantumset_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A small geometry keeps the chain arithmetic easy to follow: 8-byte quanta,
// 4 quanta per node, so each node covers 32 bytes.
var smallGeometry = quantumset.Geometry{Quantum: 8, QSet: 4}

// Sizes charged by the allocator for the small geometry.
const (
	nodeCost    = 64
	tableCost   = 4*24 + 1
	quantumCost = 8
)

func newSmallStore(t *testing.T, limit int64) (*quantumset.Store, *quantumset.LimitAllocator) {
	allocator := quantumset.NewLimitAllocator(limit)
	store, err := quantumset.New(smallGeometry, allocator)
	require.NoError(t, err, "failed to create store")
	return store, allocator
}

func TestStore__New__InvalidGeometry(t *testing.T) {
	store, err := quantumset.New(quantumset.Geometry{Quantum: 0, QSet: 4}, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Nil(t, store)
}

func TestStore__Locate__EmptyWithoutCreate(t *testing.T) {
	store, _ := newSmallStore(t, 0)

	cursor, ok, err := store.Locate(100, false)
	require.NoError(t, err)
	assert.False(t, ok, "located a node in an empty store")
	assert.Equal(t, quantumset.NoNode, cursor.Node)
	assert.True(t, store.Empty())
	assert.Equal(t, quantumset.NoNode, store.Head())
}

func TestStore__Locate__CreateGrowsChain(t *testing.T) {
	store, allocator := newSmallStore(t, 0)

	// Offset 100 is in node 3 (100 / 32), slot 0 (4 / 8), byte 4.
	cursor, ok, err := store.Locate(100, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, quantumset.NodeID(3), cursor.Node)
	assert.Equal(t, quantumset.Position{Item: 3, Slot: 0, Offset: 4}, cursor.Position)
	assert.Equal(t, 4, store.Nodes(), "chain should cover nodes 0 through 3")
	assert.EqualValues(t, 4*nodeCost, allocator.InUse())

	// The chain is walkable from the head to the tail.
	walked := 0
	for id := store.Head(); id != quantumset.NoNode; id = store.Next(id) {
		walked++
	}
	assert.Equal(t, 4, walked)

	// Locating an earlier offset doesn't grow anything.
	cursor, ok, err = store.Locate(33, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, quantumset.NodeID(1), cursor.Node)
	assert.Equal(t, 4, store.Nodes())

	// Nor does looking past the end without `create`.
	_, ok, err = store.Locate(1000, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, store.Nodes())
}

// If an allocation fails partway through growing the chain, the nodes that
// were already linked stay linked.
func TestStore__Locate__PartialGrowthIsKept(t *testing.T) {
	store, allocator := newSmallStore(t, 2*nodeCost)

	_, ok, err := store.Locate(5*32, true)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.False(t, ok)
	assert.Equal(t, 2, store.Nodes(), "nodes linked before the failure were dropped")
	assert.EqualValues(t, 2*nodeCost, allocator.InUse())

	// Both existing nodes are still usable.
	cursor, ok, err := store.Locate(40, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, quantumset.NodeID(1), cursor.Node)
}

func TestStore__Locate__NegativeOffset(t *testing.T) {
	store, _ := newSmallStore(t, 0)
	_, ok, err := store.Locate(-1, true)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.False(t, ok)
	assert.True(t, store.Empty())
}

func TestStore__Locate__ChainLengthLimited(t *testing.T) {
	store, _ := newSmallStore(t, 0)
	_, ok, err := store.Locate(int64(quantumset.MaxNodes)*32, true)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.False(t, ok)
	assert.True(t, store.Empty(), "nothing should be allocated for an impossible offset")
}

func TestStore__WriteSlot__AllocatesOnFirstTouch(t *testing.T) {
	store, allocator := newSmallStore(t, 0)
	cursor, _, err := store.Locate(10, true)
	require.NoError(t, err)

	assert.Nil(t, store.ReadSlot(cursor.Node, cursor.Slot), "slot allocated before write")

	n, err := store.WriteSlot(cursor.Node, cursor.Slot, cursor.Offset, []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.Quanta())
	assert.EqualValues(t, nodeCost+tableCost+quantumCost, allocator.InUse())

	quantum := store.ReadSlot(cursor.Node, cursor.Slot)
	require.Len(t, quantum, 8, "quantum must be exactly one quantum long")
	assert.Equal(t, []byte{0, 0, 'a', 'b', 0, 0, 0, 0}, quantum)

	// Other slots in the same node are still holes.
	assert.Nil(t, store.ReadSlot(cursor.Node, 0))
	assert.Nil(t, store.ReadSlot(cursor.Node, 3))
}

func TestStore__WriteSlot__ClampedToQuantum(t *testing.T) {
	store, _ := newSmallStore(t, 0)
	cursor, _, err := store.Locate(5, true)
	require.NoError(t, err)

	n, err := store.WriteSlot(cursor.Node, cursor.Slot, cursor.Offset, []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "write should stop at the quantum boundary")
	assert.True(
		t,
		bytes.Equal([]byte{0, 0, 0, 0, 0, '0', '1', '2'}, store.ReadSlot(cursor.Node, cursor.Slot)),
	)
	assert.Nil(t, store.ReadSlot(cursor.Node, 1), "write spilled into the next quantum")
}

func TestStore__WriteSlot__InvalidArguments(t *testing.T) {
	store, _ := newSmallStore(t, 0)
	_, err := store.WriteSlot(0, 0, 0, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "node 0 doesn't exist yet")

	_, _, err = store.Locate(0, true)
	require.NoError(t, err)

	_, err = store.WriteSlot(0, 4, 0, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "slot out of range")
	_, err = store.WriteSlot(0, 0, 8, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "offset out of range")
	assert.Nil(t, store.ReadSlot(0, 4))
	assert.Nil(t, store.ReadSlot(7, 0))
}

// When the slot table fits but the quantum doesn't, the table is kept.
func TestStore__Quantum__TableKeptOnQuantumFailure(t *testing.T) {
	store, allocator := newSmallStore(t, nodeCost+tableCost)
	_, _, err := store.Locate(0, true)
	require.NoError(t, err)

	quantum, err := store.Quantum(0, 0, true)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.Nil(t, quantum)
	assert.EqualValues(t, nodeCost+tableCost, allocator.InUse())
	assert.Equal(t, 0, store.Quanta())
}

func TestStore__Quantum__NoCreate(t *testing.T) {
	store, allocator := newSmallStore(t, 0)
	_, _, err := store.Locate(0, true)
	require.NoError(t, err)

	quantum, err := store.Quantum(0, 2, false)
	require.NoError(t, err)
	assert.Nil(t, quantum)
	assert.EqualValues(t, nodeCost, allocator.InUse(), "lookup must not allocate")
}

func TestStore__Reset(t *testing.T) {
	store, allocator := newSmallStore(t, 0)

	for _, offset := range []int64{0, 9, 31, 64, 200} {
		cursor, _, err := store.Locate(offset, true)
		require.NoError(t, err)
		_, err = store.WriteSlot(cursor.Node, cursor.Slot, cursor.Offset, []byte{0xff})
		require.NoError(t, err)
	}
	assert.Equal(t, 7, store.Nodes())
	assert.Equal(t, 5, store.Quanta())
	assert.Greater(t, allocator.InUse(), int64(0))

	store.Reset()
	assert.True(t, store.Empty())
	assert.Equal(t, 0, store.Nodes())
	assert.Equal(t, 0, store.Quanta())
	assert.EqualValues(t, 0, allocator.InUse(), "reset leaked reservations")
	assert.EqualValues(
		t, 7*nodeCost+3*tableCost+5*quantumCost, allocator.Peak(), "wrong peak usage")

	// Resetting an empty store is a no-op.
	store.Reset()
	assert.True(t, store.Empty())
	assert.EqualValues(t, 0, allocator.InUse())

	_, ok, err := store.Locate(0, false)
	require.NoError(t, err)
	assert.False(t, ok)
}
