package rtree

// rebalance restores the height balance of the subtree rooted at i and
// returns its height. Leaves have a height of 0.
func (t *Tree[T]) rebalance(i uint32) uint8 {
	n := &t.nodes[i]
	if n.isLeaf() {
		t.heights[i] = 0
		return 0
	}

	left := n.leftOrFirst
	hl := t.rebalance(left)
	hr := t.rebalance(left + 1)
	return t.balance(i, hl, hr)
}

// balance rotates internal node i until the heights of its children, hl and
// hr, differ by at most one. Child heights must be up to date in t.heights.
func (t *Tree[T]) balance(i uint32, hl, hr uint8) uint8 {
	for hl > hr+1 || hr > hl+1 {
		left := t.nodes[i].leftOrFirst

		tall := left
		if hr > hl {
			tall = left + 1
		}

		pivot := t.nodes[tall].leftOrFirst
		if t.heights[pivot+1] > t.heights[pivot] {
			pivot++
		}

		t.rotate(pivot)
		hl, hr = t.heights[left], t.heights[left+1]
	}

	h := max(hl, hr) + 1
	t.heights[i] = h
	return h
}

// rotate lifts pivot one level up. With c the parent of pivot, r the parent
// of c and o the sibling of c, the contents of pivot and o are exchanged:
// pivot becomes a child of r and o moves below c. Only the four nodes pivot,
// o, c and r are modified, plus the parent links of the moved children.
//
// Lifting the taller grandchild covers both the single and the double
// rotation cases of an AVL tree since children order does not matter in a
// bounding box hierarchy.
func (t *Tree[T]) rotate(pivot uint32) {
	c := t.nodes[pivot].parent
	assert(c != rootParent, "rotation pivot must have a parent")
	r := t.nodes[c].parent
	assert(r != rootParent, "rotation pivot must have a grandparent")

	o := t.sibling(c)
	h := t.sibling(pivot)

	t.nodes[o], t.nodes[pivot] = t.nodes[pivot], t.nodes[o]
	t.nodes[o].parent = r
	t.nodes[pivot].parent = c
	t.adopt(o)
	t.adopt(pivot)
	t.heights[o], t.heights[pivot] = t.heights[pivot], t.heights[o]

	t.refit(c)
	t.balance(c, t.heights[min(pivot, h)], t.heights[max(pivot, h)])
	t.refit(r)
}
