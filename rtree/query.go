package rtree

// Query calls visit with the payload of every point lying within b. Results
// come in no particular order. visit must not modify the tree.
func (t *Tree[T]) Query(b Box, visit func(T)) {
	var stack [stackSize]uint32
	stack[0] = 0
	size := 1

	for size > 0 {
		size--
		n := &t.nodes[stack[size]]

		if !n.box.Overlaps(b) {
			continue
		}

		if !n.isLeaf() {
			assert(size+2 <= stackSize, "query stack overflow")
			stack[size] = n.leftOrFirst
			stack[size+1] = n.leftOrFirst + 1
			size += 2
			continue
		}

		for _, slot := range t.leafIndices[n.leftOrFirst : n.leftOrFirst+n.countOrInternal] {
			if b.ContainsPoint(t.points[slot]) {
				visit(t.payloads[slot])
			}
		}
	}
}

// Collect returns the payloads of every point lying within b.
func (t *Tree[T]) Collect(b Box) []T {
	var res []T
	t.Query(b, func(v T) {
		res = append(res, v)
	})
	return res
}
