// Package rtree implements a fixed-capacity 2D point index stored as a
// binary tree of bounding boxes laid out in a flat node array.
//
// Leaves hold runs of point slots. Internal nodes reference two adjacent
// children. The tree stays height balanced through rotations and never
// allocates after New.
//
// A Tree is not safe for concurrent use.
package rtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// ErrTypeCapacityExceeded is the error type returned when an insertion
	// would overflow one of the tree arrays.
	ErrTypeCapacityExceeded = "rtree_capacity_exceeded"

	// ErrTypeInvariant is the error type of panics and Check errors raised
	// when the tree structure is inconsistent.
	ErrTypeInvariant = "rtree_invariant_violation"

	// ErrTypeInvalidConfig is the error type returned by Config.Validate.
	ErrTypeInvalidConfig = "rtree_invalid_config"
)

const (
	internalNode = math.MaxUint32
	rootParent   = math.MaxUint32

	// Maximum depth of the traversal stack. A balanced tree holding
	// math.MaxUint32 leaves stays far below it.
	stackSize = 64
)

// Config describes the capacities of a tree.
type Config struct {
	// The number of points a leaf must hold before splitting it is
	// considered.
	MinElementsPerNode uint32 `json:"min_elements_per_node"`

	// The number of points that forces a leaf to split.
	MaxElementsPerNode uint32 `json:"max_elements_per_node"`

	// The maximum number of points stored in the tree.
	MaxElements uint32 `json:"max_elements"`
}

// Validate returns an error when the tree described by the config cannot be
// created.
func (c Config) Validate() error {
	if c.MinElementsPerNode < 1 {
		return errors.New("min elements per node must be at least 1").
			WithType(ErrTypeInvalidConfig).
			WithTag("min_elements_per_node", c.MinElementsPerNode)
	}

	if c.MaxElementsPerNode < 2 {
		return errors.New("max elements per node must be at least 2").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_elements_per_node", c.MaxElementsPerNode)
	}

	if c.MaxElements < 1 {
		return errors.New("max elements must be at least 1").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_elements", c.MaxElements)
	}
	return nil
}

type node struct {
	box Box

	// Offset in leafIndices for a leaf, index of the left child for an
	// internal node.
	leftOrFirst uint32

	// Member count for a leaf, internalNode otherwise.
	countOrInternal uint32

	parent uint32
}

func (n *node) isLeaf() bool {
	return n.countOrInternal != internalNode
}

// Tree is a 2D point index holding payloads of type T. Payloads are stored
// as given: the tree never closes or frees them.
type Tree[T any] struct {
	minPerNode uint32
	maxPerNode uint32

	nodes       []node
	points      []Point
	payloads    []T
	leafIndices []uint32

	// Scratch buffers reused by partition and rebalance.
	splitIndices []uint32
	heights      []uint8

	leafCount uint32
	count     uint32
}

// New creates a tree with all of its storage allocated up front. It panics
// when MinElementsPerNode is lower than 1 or MaxElementsPerNode is lower
// than 2.
func New[T any](c Config) *Tree[T] {
	assert(c.MinElementsPerNode >= 1, "min elements per node must be at least 1")
	assert(c.MaxElementsPerNode >= 2, "max elements per node must be at least 2")

	minPerNode := min(c.MinElementsPerNode, c.MaxElementsPerNode)
	maxNodes := c.MaxElements / minPerNode * 2
	if maxNodes == 0 {
		maxNodes = 1
	}

	t := &Tree[T]{
		minPerNode:   minPerNode,
		maxPerNode:   c.MaxElementsPerNode,
		nodes:        make([]node, maxNodes),
		points:       make([]Point, c.MaxElements),
		payloads:     make([]T, c.MaxElements),
		leafIndices:  make([]uint32, uint64(c.MaxElements)*uint64(c.MaxElementsPerNode)),
		splitIndices: make([]uint32, 2*c.MaxElementsPerNode),
		heights:      make([]uint8, maxNodes),
	}
	t.reset()
	return t
}

func (t *Tree[T]) reset() {
	t.nodes[0] = node{
		box:    EmptyBox(),
		parent: rootParent,
	}
	t.leafCount = 1
	t.count = 0
}

// Close releases the tree storage. Payloads are dropped without any cleanup.
// The tree must not be used afterwards.
func (t *Tree[T]) Close() {
	t.nodes = nil
	t.points = nil
	t.payloads = nil
	t.leafIndices = nil
	t.splitIndices = nil
	t.heights = nil
	t.leafCount = 0
	t.count = 0
}

// Len returns the number of stored points.
func (t *Tree[T]) Len() int {
	return int(t.count)
}

// Cap returns the maximum number of points the tree can store.
func (t *Tree[T]) Cap() int {
	return len(t.points)
}

// LeafCount returns the number of leaf nodes.
func (t *Tree[T]) LeafCount() int {
	return int(t.leafCount)
}

// Bounds returns the box containing every stored point.
func (t *Tree[T]) Bounds() Box {
	return t.nodes[0].box
}

// Height returns the number of edges between the root and its deepest leaf.
func (t *Tree[T]) Height() int {
	return t.height(0)
}

func (t *Tree[T]) height(i uint32) int {
	n := &t.nodes[i]
	if n.isLeaf() {
		return 0
	}
	return max(t.height(n.leftOrFirst), t.height(n.leftOrFirst+1)) + 1
}

// sibling returns the other child of i's parent.
func (t *Tree[T]) sibling(i uint32) uint32 {
	first := t.nodes[t.nodes[i].parent].leftOrFirst
	return 2*first + 1 - i
}

// adopt points the parent links of i's children back to i.
func (t *Tree[T]) adopt(i uint32) {
	n := &t.nodes[i]
	if n.isLeaf() {
		return
	}
	t.nodes[n.leftOrFirst].parent = i
	t.nodes[n.leftOrFirst+1].parent = i
}

// refit recomputes the box of node i from its members or children.
func (t *Tree[T]) refit(i uint32) {
	n := &t.nodes[i]
	if !n.isLeaf() {
		n.box = t.nodes[n.leftOrFirst].box.Union(t.nodes[n.leftOrFirst+1].box)
		return
	}

	box := EmptyBox()
	for _, slot := range t.leafIndices[n.leftOrFirst : n.leftOrFirst+n.countOrInternal] {
		box = box.Extend(t.points[slot])
	}
	n.box = box
}

// refitUp recomputes the boxes of i and all of its ancestors.
func (t *Tree[T]) refitUp(i uint32) {
	for i != rootParent {
		t.refit(i)
		i = t.nodes[i].parent
	}
}

func assert(cond bool, msg string) {
	if !cond {
		panic(errors.New(msg).WithType(ErrTypeInvariant))
	}
}
