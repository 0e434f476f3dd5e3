package quantumset

import (
	"github.com/boljen/go-bitmap"
)

// NodeID identifies a node in a store's chain. Because the chain only ever
// grows at its tail and is only ever released as a whole, a node's ID is also
// its distance from the head.
type NodeID int

// NoNode is returned where a node doesn't exist.
const NoNode = NodeID(-1)

// node is one link of the chain. Its slot table is allocated on the first
// write to any of its slots; until then `slots` is nil.
type node struct {
	slots   [][]byte
	present bitmap.Bitmap
}

func (n *node) hasTable() bool {
	return n.slots != nil
}

func (n *node) hasQuantum(slot int) bool {
	return n.slots != nil && n.present.Get(slot)
}

// quantaInUse counts the slots holding a quantum.
func (n *node) quantaInUse() int {
	if n.slots == nil {
		return 0
	}

	total := 0
	for i := range n.slots {
		if n.present.Get(i) {
			total++
		}
	}
	return total
}

func (n *node) allocateTable(qset int) {
	n.slots = make([][]byte, qset)
	n.present = bitmap.New(qset)
}

func (n *node) setQuantum(slot int, quantum []byte) {
	n.slots[slot] = quantum
	n.present.Set(slot, true)
}
