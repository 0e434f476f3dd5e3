// Package quantumset implements the sparse storage behind a scull device: a
// chain of nodes, each holding a fixed-width table of lazily allocated
// fixed-size byte buffers ("quanta").
//
// A linear byte offset maps onto the chain as follows, where itemsize is
// quantum*qset:
//
//	item   = offset / itemsize        (which node)
//	rest   = offset % itemsize
//	slot   = rest / quantum           (which quantum in that node)
//	offset = rest % quantum           (where in that quantum)
//
// Memory is only allocated for the nodes along the path to an addressed item
// and for the quanta that have actually been written to.
package quantumset

import (
	"fmt"

	"github.com/dargueta/scull/errors"
)

// Geometry gives the shape of a store: the size of one quantum in bytes, and
// the number of quanta held by one node.
type Geometry struct {
	Quantum int
	QSet    int
}

// ItemSize is the number of bytes covered by a single node.
func (g Geometry) ItemSize() int64 {
	return int64(g.Quantum) * int64(g.QSet)
}

// Validate returns an error with the errno code EINVAL if either dimension is
// not positive.
func (g Geometry) Validate() error {
	if g.Quantum <= 0 || g.QSet <= 0 {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"quantum and qset must be positive, got quantum=%d qset=%d",
				g.Quantum,
				g.QSet,
			),
		)
	}
	return nil
}

// Position is a linear offset translated into chain coordinates.
type Position struct {
	// Item is the index of the node in the chain, starting from the head.
	Item int64
	// Slot is the index of the quantum within the node.
	Slot int
	// Offset is the byte offset within the quantum.
	Offset int
}

// Translate converts a non-negative linear offset into chain coordinates.
func (g Geometry) Translate(offset int64) Position {
	itemSize := g.ItemSize()
	rest := offset % itemSize
	return Position{
		Item:   offset / itemSize,
		Slot:   int(rest / int64(g.Quantum)),
		Offset: int(rest % int64(g.Quantum)),
	}
}

// Remaining gives the number of bytes from `pos` to the end of its quantum.
func (g Geometry) Remaining(pos Position) int {
	return g.Quantum - pos.Offset
}

func (g Geometry) String() string {
	return fmt.Sprintf("quantum=%d qset=%d", g.Quantum, g.QSet)
}
