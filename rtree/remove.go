package rtree

// Remove deletes the first stored point equal to p whose payload satisfies
// match. It reports whether a point was removed. The tree is left unchanged
// when nothing matches.
func (t *Tree[T]) Remove(p Point, match func(T) bool) bool {
	var stack [stackSize]uint32
	stack[0] = 0
	size := 1

	for size > 0 {
		size--
		i := stack[size]
		n := &t.nodes[i]

		if !n.box.ContainsPoint(p) {
			continue
		}

		if !n.isLeaf() {
			assert(size+2 <= stackSize, "remove stack overflow")
			stack[size] = n.leftOrFirst
			stack[size+1] = n.leftOrFirst + 1
			size += 2
			continue
		}

		for k := uint32(0); k < n.countOrInternal; k++ {
			slot := t.leafIndices[n.leftOrFirst+k]
			if t.points[slot] == p && match(t.payloads[slot]) {
				t.removeAt(i, k)
				return true
			}
		}
	}
	return false
}

// removeAt deletes the k-th member of leaf i.
func (t *Tree[T]) removeAt(i, k uint32) {
	n := &t.nodes[i]
	assert(n.isLeaf(), "points are only removed from leaves")

	slot := t.leafIndices[n.leftOrFirst+k]
	last := t.count - 1
	if slot != last {
		t.points[slot] = t.points[last]
		t.payloads[slot] = t.payloads[last]
		t.retarget(last, slot)
	}

	var zero T
	t.points[last] = Point{}
	t.payloads[last] = zero
	t.count--

	n.countOrInternal--
	t.leafIndices[n.leftOrFirst+k] = t.leafIndices[n.leftOrFirst+n.countOrInternal]

	if n.countOrInternal == 0 && i != 0 {
		t.merge(i)
		t.rebalance(0)
		return
	}
	t.refitUp(i)
}

// retarget replaces the leaf entry referencing slot from by to. No reverse
// index is kept so the whole tree is walked.
func (t *Tree[T]) retarget(from, to uint32) {
	var stack [stackSize]uint32
	stack[0] = 0
	size := 1

	for size > 0 {
		size--
		n := &t.nodes[stack[size]]

		if !n.isLeaf() {
			assert(size+2 <= stackSize, "retarget stack overflow")
			stack[size] = n.leftOrFirst
			stack[size+1] = n.leftOrFirst + 1
			size += 2
			continue
		}

		members := t.leafIndices[n.leftOrFirst : n.leftOrFirst+n.countOrInternal]
		for k, slot := range members {
			if slot == from {
				members[k] = to
				return
			}
		}
	}
	panic(invariantError("stored slot is not referenced by any leaf", "slot", from))
}

// leafOwning returns the leaf whose storage block starts at first.
func (t *Tree[T]) leafOwning(first uint32) uint32 {
	var stack [stackSize]uint32
	stack[0] = 0
	size := 1

	for size > 0 {
		size--
		i := stack[size]
		n := &t.nodes[i]

		if n.isLeaf() {
			if n.leftOrFirst == first {
				return i
			}
			continue
		}

		assert(size+2 <= stackSize, "leaf lookup stack overflow")
		stack[size] = n.leftOrFirst
		stack[size+1] = n.leftOrFirst + 1
		size += 2
	}
	panic(invariantError("storage block is not owned by any leaf", "first", first))
}

// merge removes the empty leaf i from the tree. Its sibling takes the place
// of their parent, the last storage block moves into the block freed by i
// and the topmost node pair moves into the pair freed by i and its sibling.
func (t *Tree[T]) merge(i uint32) {
	p := t.nodes[i].parent
	assert(p != rootParent, "the root leaf is never merged")
	assert(t.nodes[i].countOrInternal == 0, "only empty leaves are merged")

	pair := t.nodes[p].leftOrFirst
	s := 2*pair + 1 - i

	freed := t.nodes[i].leftOrFirst
	lastBlock := (t.leafCount - 1) * t.maxPerNode
	if freed != lastBlock {
		owner := t.leafOwning(lastBlock)
		count := t.nodes[owner].countOrInternal
		copy(t.leafIndices[freed:freed+count], t.leafIndices[lastBlock:lastBlock+count])
		t.nodes[owner].leftOrFirst = freed
	}

	sibling := t.nodes[s]
	sibling.parent = t.nodes[p].parent
	t.nodes[p] = sibling
	t.adopt(p)

	top := 2*t.leafCount - 3
	if pair != top {
		t.nodes[pair] = t.nodes[top]
		t.nodes[pair+1] = t.nodes[top+1]
		t.nodes[t.nodes[pair].parent].leftOrFirst = pair
		t.adopt(pair)
		t.adopt(pair + 1)

		switch p {
		case top:
			p = pair
		case top + 1:
			p = pair + 1
		}
	}

	t.nodes[top] = node{}
	t.nodes[top+1] = node{}
	t.leafCount--

	t.refitUp(t.nodes[p].parent)
}
