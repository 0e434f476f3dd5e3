package quantumset

import (
	"fmt"

	"github.com/dargueta/scull/errors"
)

// MaxNodes bounds the length of a single chain. Addressing an item past it
// fails as if memory had run out.
const MaxNodes = 1 << 24

// Cursor is a translated position together with the node it falls in.
type Cursor struct {
	Position
	Node NodeID
}

// Store is the sparse storage for one device. It is not safe for concurrent
// use; the owning device serializes access to it.
type Store struct {
	geometry  Geometry
	nodes     []node
	allocator Allocator
}

// New creates an empty store. If `allocator` is nil, the store's memory is not
// limited.
func New(geometry Geometry, allocator Allocator) (*Store, error) {
	err := geometry.Validate()
	if err != nil {
		return nil, err
	}
	if allocator == nil {
		allocator = Unlimited()
	}

	return &Store{
		geometry:  geometry,
		allocator: allocator,
	}, nil
}

// Geometry returns the store's current geometry.
func (store *Store) Geometry() Geometry {
	return store.geometry
}

// Empty returns true if the chain has no head.
func (store *Store) Empty() bool {
	return len(store.nodes) == 0
}

// Head returns the first node of the chain, or [NoNode] if the store is empty.
func (store *Store) Head() NodeID {
	if len(store.nodes) == 0 {
		return NoNode
	}
	return 0
}

// Next returns the node following `id` in the chain, or [NoNode] if `id` is
// the tail.
func (store *Store) Next(id NodeID) NodeID {
	if id < 0 || int(id)+1 >= len(store.nodes) {
		return NoNode
	}
	return id + 1
}

// Nodes returns the length of the chain.
func (store *Store) Nodes() int {
	return len(store.nodes)
}

// Quanta returns the number of quanta currently allocated.
func (store *Store) Quanta() int {
	total := 0
	for id := store.Head(); id != NoNode; id = store.Next(id) {
		total += store.nodes[id].quantaInUse()
	}
	return total
}

// grow appends one empty node to the tail of the chain.
func (store *Store) grow() error {
	err := store.allocator.Reserve(KindNode, nodeHeaderSize)
	if err != nil {
		return err
	}
	store.nodes = append(store.nodes, node{})
	return nil
}

// Locate translates `offset` and finds the node covering it.
//
// If `create` is false and the node doesn't exist, the returned bool is false
// and the error is nil. If `create` is true, every missing node between the
// tail and the target is appended, including the head. If an allocation fails
// partway through, the nodes already appended stay in the chain and an error
// with the errno code ENOMEM is returned.
func (store *Store) Locate(offset int64, create bool) (Cursor, bool, error) {
	if offset < 0 {
		return Cursor{Node: NoNode}, false, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("negative offset %d", offset))
	}

	pos := store.geometry.Translate(offset)
	cursor := Cursor{Position: pos, Node: NoNode}

	if pos.Item < int64(len(store.nodes)) {
		cursor.Node = NodeID(pos.Item)
		return cursor, true, nil
	}
	if !create {
		return cursor, false, nil
	}

	if pos.Item >= MaxNodes {
		return cursor, false, errors.NewWithMessage(
			errors.ENOMEM,
			fmt.Sprintf(
				"offset %d needs node %d, but a chain is limited to %d nodes",
				offset,
				pos.Item,
				MaxNodes,
			),
		)
	}

	for int64(len(store.nodes)) <= pos.Item {
		err := store.grow()
		if err != nil {
			return cursor, false, err
		}
	}

	cursor.Node = NodeID(pos.Item)
	return cursor, true, nil
}

func (store *Store) checkSlot(id NodeID, slot int) error {
	if id < 0 || int(id) >= len(store.nodes) {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid node %d: not in range [0, %d)", id, len(store.nodes)),
		)
	}
	if slot < 0 || slot >= store.geometry.QSet {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid slot %d: not in range [0, %d)", slot, store.geometry.QSet),
		)
	}
	return nil
}

// ReadSlot returns the quantum in the given slot, or nil if the node has no
// slot table or the slot has never been written to. Invalid arguments also
// return nil.
func (store *Store) ReadSlot(id NodeID, slot int) []byte {
	if store.checkSlot(id, slot) != nil {
		return nil
	}

	n := &store.nodes[id]
	if !n.hasQuantum(slot) {
		return nil
	}
	return n.slots[slot]
}

// Quantum returns the quantum in the given slot. If `create` is true, the
// node's slot table and the quantum itself are allocated (zeroed) if they
// don't exist yet; an allocation failure returns an error with the errno code
// ENOMEM and keeps whatever was allocated before it. If `create` is false, a
// missing quantum returns nil and no error.
//
// The returned slice is always exactly one quantum long and aliases the
// store's memory.
func (store *Store) Quantum(id NodeID, slot int, create bool) ([]byte, error) {
	err := store.checkSlot(id, slot)
	if err != nil {
		return nil, err
	}

	n := &store.nodes[id]
	if n.hasQuantum(slot) {
		return n.slots[slot], nil
	} else if !create {
		return nil, nil
	}

	if !n.hasTable() {
		err = store.allocator.Reserve(KindSlotTable, slotTableSize(store.geometry.QSet))
		if err != nil {
			return nil, err
		}
		n.allocateTable(store.geometry.QSet)
	}

	err = store.allocator.Reserve(KindQuantum, int64(store.geometry.Quantum))
	if err != nil {
		return nil, err
	}
	quantum := make([]byte, store.geometry.Quantum)
	n.setQuantum(slot, quantum)
	return quantum, nil
}

// WriteSlot copies `data` into the given slot starting at byte `offset` of the
// quantum, allocating it first if necessary. At most Quantum-offset bytes are
// copied; the number of bytes copied is returned.
func (store *Store) WriteSlot(id NodeID, slot int, offset int, data []byte) (int, error) {
	if offset < 0 || offset >= store.geometry.Quantum {
		return 0, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"invalid quantum offset %d: not in range [0, %d)",
				offset,
				store.geometry.Quantum,
			),
		)
	}

	quantum, err := store.Quantum(id, slot, true)
	if err != nil {
		return 0, err
	}
	return copy(quantum[offset:], data), nil
}

// Reset releases every quantum, slot table, and node, leaving the store empty.
// Calling it on an empty store does nothing.
func (store *Store) Reset() {
	quantumSize := int64(store.geometry.Quantum)
	tableSize := slotTableSize(store.geometry.QSet)

	for id := store.Head(); id != NoNode; id = store.Next(id) {
		n := &store.nodes[id]
		if n.hasTable() {
			for i := range n.slots {
				if n.present.Get(i) {
					store.allocator.Release(KindQuantum, quantumSize)
				}
				n.slots[i] = nil
			}
			store.allocator.Release(KindSlotTable, tableSize)
			n.slots = nil
			n.present = nil
		}
		store.allocator.Release(KindNode, nodeHeaderSize)
	}
	store.nodes = nil
}

// MemoryInUse returns the number of bytes reserved for this store, assuming
// its allocator isn't shared.
func (store *Store) MemoryInUse() int64 {
	return store.allocator.InUse()
}
