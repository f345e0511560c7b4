package rtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// partition is a two-way split of a leaf. Left members are stored at the
// start of splitIndices, right members at splitIndices[maxPerNode:].
type partition struct {
	left       Box
	right      Box
	leftCount  uint32
	rightCount uint32
	cost       float32
}

// Insert adds a point and its payload. It panics when the tree is full; use
// TryInsert to get an error instead.
func (t *Tree[T]) Insert(p Point, payload T) {
	if err := t.checkCapacity(p); err != nil {
		panic(err)
	}
	t.insert(p, payload)
}

// TryInsert adds a point and its payload. It returns an error of type
// ErrTypeCapacityExceeded and leaves the tree unchanged when the insertion
// would overflow the tree storage.
func (t *Tree[T]) TryInsert(p Point, payload T) error {
	if err := t.checkCapacity(p); err != nil {
		return err
	}
	t.insert(p, payload)
	return nil
}

func (t *Tree[T]) checkCapacity(p Point) error {
	if int(t.count) >= len(t.points) {
		return errors.New("tree is full").
			WithType(ErrTypeCapacityExceeded).
			WithTag("max_elements", len(t.points))
	}

	leaf := t.route(p)
	if t.nodes[leaf].countOrInternal+1 == t.maxPerNode && !t.canSplit() {
		return errors.New("no node left to split a full leaf").
			WithType(ErrTypeCapacityExceeded).
			WithTag("leaf_count", t.leafCount).
			WithTag("max_nodes", len(t.nodes))
	}
	return nil
}

func (t *Tree[T]) canSplit() bool {
	return uint64(t.leafCount)*2+2 <= uint64(len(t.nodes))
}

func (t *Tree[T]) insert(p Point, payload T) {
	slot := t.count
	t.points[slot] = p
	t.payloads[slot] = payload
	t.count++

	i := uint32(0)
	for {
		n := &t.nodes[i]
		n.box = n.box.Extend(p)
		if n.isLeaf() {
			break
		}
		i = t.chooseChild(i, p)
	}

	leaf := &t.nodes[i]
	t.leafIndices[leaf.leftOrFirst+leaf.countOrInternal] = slot
	leaf.countOrInternal++
	count := leaf.countOrInternal

	if count == t.maxPerNode {
		part, ok := t.partition(i)
		assert(ok, "full leaf cannot be partitioned")
		t.split(i, part)
		t.rebalance(0)
		return
	}

	if count < t.minPerNode || count < 2 || !t.canSplit() {
		return
	}

	part, ok := t.partition(i)
	if ok && part.cost < t.nodes[i].box.Area()*float32(count) {
		t.split(i, part)
		t.rebalance(0)
	}
}

// route returns the leaf where p would be inserted.
func (t *Tree[T]) route(p Point) uint32 {
	i := uint32(0)
	for !t.nodes[i].isLeaf() {
		i = t.chooseChild(i, p)
	}
	return i
}

// chooseChild picks the child of internal node i that receives p: the one
// containing it, otherwise the one that grows the least. Ties go left.
func (t *Tree[T]) chooseChild(i uint32, p Point) uint32 {
	left := t.nodes[i].leftOrFirst
	right := left + 1

	lbox := t.nodes[left].box
	rbox := t.nodes[right].box

	switch {
	case lbox.ContainsPoint(p):
		return left
	case rbox.ContainsPoint(p):
		return right
	case rbox.EnlargementCost(p) < lbox.EnlargementCost(p):
		return right
	default:
		return left
	}
}

// partition finds the cheapest way to split the members of leaf i in two.
// Members whose coordinate is lower than the split value go left. When all
// members share the same position no axis separates them and the run is cut
// in half.
func (t *Tree[T]) partition(i uint32) (partition, bool) {
	n := &t.nodes[i]
	members := t.leafIndices[n.leftOrFirst : n.leftOrFirst+n.countOrInternal]
	if len(members) < 2 {
		return partition{}, false
	}

	best := partition{}
	bestAxis := -1
	var bestValue float32

	for axis := 0; axis < 2; axis++ {
		for _, candidate := range members {
			value := coord(t.points[candidate], axis)

			left, right := EmptyBox(), EmptyBox()
			var leftCount, rightCount uint32
			for _, slot := range members {
				p := t.points[slot]
				if coord(p, axis) < value {
					left = left.Extend(p)
					leftCount++
				} else {
					right = right.Extend(p)
					rightCount++
				}
			}

			if leftCount == 0 || rightCount == 0 {
				continue
			}

			cost := left.Area()*float32(leftCount) + right.Area()*float32(rightCount)
			if bestAxis == -1 || cost < best.cost {
				best = partition{
					left:       left,
					right:      right,
					leftCount:  leftCount,
					rightCount: rightCount,
					cost:       cost,
				}
				bestAxis = axis
				bestValue = value
			}
		}
	}

	lefts := t.splitIndices[:0]
	rights := t.splitIndices[t.maxPerNode:t.maxPerNode]

	if bestAxis == -1 {
		half := uint32(len(members)) / 2
		best = partition{
			left:       EmptyBox(),
			right:      EmptyBox(),
			leftCount:  half,
			rightCount: uint32(len(members)) - half,
		}
		for k, slot := range members {
			if uint32(k) < half {
				lefts = append(lefts, slot)
				best.left = best.left.Extend(t.points[slot])
			} else {
				rights = append(rights, slot)
				best.right = best.right.Extend(t.points[slot])
			}
		}
		best.cost = best.left.Area()*float32(best.leftCount) + best.right.Area()*float32(best.rightCount)
		return best, true
	}

	for _, slot := range members {
		if coord(t.points[slot], bestAxis) < bestValue {
			lefts = append(lefts, slot)
		} else {
			rights = append(rights, slot)
		}
	}
	return best, true
}

// split turns leaf i into an internal node whose children are the two
// sides of part. The left child keeps the leaf storage block, the right
// child takes the next free one.
func (t *Tree[T]) split(i uint32, part partition) {
	if !t.canSplit() {
		panic(errors.New("no node left to split a full leaf").
			WithType(ErrTypeCapacityExceeded).
			WithTag("leaf_count", t.leafCount).
			WithTag("max_nodes", len(t.nodes)))
	}

	n := &t.nodes[i]
	assert(n.isLeaf(), "only a leaf can be split")

	left := 2*t.leafCount - 1
	right := left + 1
	leftFirst := n.leftOrFirst
	rightFirst := t.leafCount * t.maxPerNode

	copy(t.leafIndices[leftFirst:], t.splitIndices[:part.leftCount])
	copy(t.leafIndices[rightFirst:], t.splitIndices[t.maxPerNode:t.maxPerNode+part.rightCount])

	t.nodes[left] = node{
		box:             part.left,
		leftOrFirst:     leftFirst,
		countOrInternal: part.leftCount,
		parent:          i,
	}
	t.nodes[right] = node{
		box:             part.right,
		leftOrFirst:     rightFirst,
		countOrInternal: part.rightCount,
		parent:          i,
	}

	n.leftOrFirst = left
	n.countOrInternal = internalNode
	t.leafCount++
}

func coord(p Point, axis int) float32 {
	if axis == 0 {
		return p.X
	}
	return p.Y
}
