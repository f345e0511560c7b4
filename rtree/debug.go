package rtree

import (
	"fmt"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Stats is a summary of the tree shape.
type Stats struct {
	Len       int `json:"len"`
	Cap       int `json:"cap"`
	LeafCount int `json:"leaf_count"`
	NodeCount int `json:"node_count"`
	MaxNodes  int `json:"max_nodes"`
	Height    int `json:"height"`

	// The box containing every point, nil when the tree is empty.
	Bounds *Box `json:"bounds,omitempty"`
}

// Stats returns a summary of the tree shape.
func (t *Tree[T]) Stats() Stats {
	s := Stats{
		Len:       t.Len(),
		Cap:       t.Cap(),
		LeafCount: t.LeafCount(),
		NodeCount: int(2*t.leafCount - 1),
		MaxNodes:  len(t.nodes),
		Height:    t.Height(),
	}

	if bounds := t.Bounds(); !bounds.IsEmpty() {
		s.Bounds = &bounds
	}
	return s
}

// String prints the live nodes of the tree, one per line.
func (t *Tree[T]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rtree len=%d leaves=%d\n", t.count, t.leafCount)

	for i := uint32(0); i < 2*t.leafCount-1; i++ {
		n := &t.nodes[i]

		parent := "-"
		if n.parent != rootParent {
			parent = fmt.Sprint(n.parent)
		}

		if !n.isLeaf() {
			fmt.Fprintf(&b, "%d: internal parent=%s box=%v children=%d,%d\n",
				i, parent, n.box, n.leftOrFirst, n.leftOrFirst+1)
			continue
		}

		fmt.Fprintf(&b, "%d: leaf parent=%s box=%v points=", i, parent, n.box)
		for k, slot := range t.leafIndices[n.leftOrFirst : n.leftOrFirst+n.countOrInternal] {
			if k != 0 {
				b.WriteByte(' ')
			}
			p := t.points[slot]
			fmt.Fprintf(&b, "(%g,%g)", p.X, p.Y)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Check walks the tree and returns an error describing the first broken
// structural invariant, if any.
func (t *Tree[T]) Check() error {
	if t.nodes[0].parent != rootParent {
		return invariantError("root has a parent",
			"parent", t.nodes[0].parent)
	}

	nodeCount := 2*t.leafCount - 1
	seenSlots := make([]bool, t.count)
	seenBlocks := make(map[uint32]bool, t.leafCount)
	var leaves, nodes uint32

	var walk func(i uint32) (int, error)
	walk = func(i uint32) (int, error) {
		if i >= nodeCount {
			return 0, invariantError("node outside of the live node range",
				"node", i,
				"node_count", nodeCount)
		}
		nodes++

		n := &t.nodes[i]
		if n.isLeaf() {
			leaves++
			return 0, t.checkLeaf(i, seenSlots, seenBlocks)
		}

		left := n.leftOrFirst
		if left%2 != 1 || left+1 >= nodeCount {
			return 0, invariantError("children are not a node pair",
				"node", i,
				"left", left)
		}

		for _, c := range []uint32{left, left + 1} {
			if t.nodes[c].parent != i {
				return 0, invariantError("child does not point to its parent",
					"node", i,
					"child", c,
					"child_parent", t.nodes[c].parent)
			}
		}

		if n.box != t.nodes[left].box.Union(t.nodes[left+1].box) {
			return 0, invariantError("internal box is not the union of its children",
				"node", i,
				"box", n.box.String())
		}

		hl, err := walk(left)
		if err != nil {
			return 0, err
		}
		hr, err := walk(left + 1)
		if err != nil {
			return 0, err
		}

		if hl-hr > 1 || hr-hl > 1 {
			return 0, invariantError("unbalanced node",
				"node", i,
				"left_height", hl,
				"right_height", hr)
		}
		return max(hl, hr) + 1, nil
	}

	if _, err := walk(0); err != nil {
		return err
	}

	if leaves != t.leafCount || nodes != nodeCount {
		return invariantError("reachable nodes do not match the leaf count",
			"leaves", leaves,
			"leaf_count", t.leafCount,
			"nodes", nodes)
	}

	for slot, seen := range seenSlots {
		if !seen {
			return invariantError("stored point is not referenced by any leaf",
				"slot", slot)
		}
	}
	return nil
}

func (t *Tree[T]) checkLeaf(i uint32, seenSlots []bool, seenBlocks map[uint32]bool) error {
	n := &t.nodes[i]

	if n.countOrInternal >= t.maxPerNode {
		return invariantError("leaf is full",
			"node", i,
			"count", n.countOrInternal)
	}

	if n.countOrInternal == 0 && i != 0 {
		return invariantError("empty leaf is not the root",
			"node", i)
	}

	first := n.leftOrFirst
	if first%t.maxPerNode != 0 || first/t.maxPerNode >= t.leafCount || seenBlocks[first] {
		return invariantError("leaf storage block is invalid",
			"node", i,
			"first", first)
	}
	seenBlocks[first] = true

	box := EmptyBox()
	for _, slot := range t.leafIndices[first : first+n.countOrInternal] {
		if slot >= t.count || seenSlots[slot] {
			return invariantError("leaf references an invalid slot",
				"node", i,
				"slot", slot)
		}
		seenSlots[slot] = true
		box = box.Extend(t.points[slot])
	}

	if n.box != box {
		return invariantError("leaf box is not the union of its points",
			"node", i,
			"box", n.box.String(),
			"expected", box.String())
	}
	return nil
}

// invariantError builds an error of type ErrTypeInvariant tagged with the
// given key-value pairs.
func invariantError(msg string, tags ...any) error {
	err := errors.New(msg).WithType(ErrTypeInvariant)
	for i := 0; i+1 < len(tags); i += 2 {
		err = err.WithTag(fmt.Sprint(tags[i]), tags[i+1])
	}
	return err
}
