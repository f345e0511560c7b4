package rtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyBox(t *testing.T) {
	b := EmptyBox()
	require.True(t, b.IsEmpty())
	require.Zero(t, b.Area())
	require.False(t, b.ContainsPoint(Point{}))
	require.False(t, b.Overlaps(Box{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1}))
	require.Equal(t, "[empty]", b.String())

	b = b.Extend(Point{X: 2, Y: 3})
	require.False(t, b.IsEmpty())
	require.Equal(t, Box{MinX: 2, MinY: 3, MaxX: 2, MaxY: 3}, b)
}

func TestBoxContainsPoint(t *testing.T) {
	b := Box{MinX: 0, MinY: 0, MaxX: 2, MaxY: 1}

	tests := []struct {
		name     string
		point    Point
		expected bool
	}{
		{name: "inside", point: Point{X: 1, Y: 0.5}, expected: true},
		{name: "on min corner", point: Point{X: 0, Y: 0}, expected: true},
		{name: "on max edge", point: Point{X: 2, Y: 0.5}, expected: true},
		{name: "left", point: Point{X: -0.1, Y: 0.5}},
		{name: "above", point: Point{X: 1, Y: 1.1}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, b.ContainsPoint(test.point))
		})
	}
}

func TestBoxOverlaps(t *testing.T) {
	b := Box{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}

	require.True(t, b.Overlaps(Box{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3}))
	require.True(t, b.Overlaps(Box{MinX: 2, MinY: 2, MaxX: 3, MaxY: 3}))
	require.True(t, b.Overlaps(Box{MinX: -1, MinY: -1, MaxX: 5, MaxY: 5}))
	require.False(t, b.Overlaps(Box{MinX: 2.5, MinY: 0, MaxX: 3, MaxY: 2}))
	require.False(t, b.Overlaps(Box{MinX: 0, MinY: -3, MaxX: 2, MaxY: -1}))
}

func TestBoxEnlargementCost(t *testing.T) {
	b := Box{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}
	require.Equal(t, float32(4), b.Area())
	require.Zero(t, b.EnlargementCost(Point{X: 1, Y: 1}))
	require.Equal(t, float32(2), b.EnlargementCost(Point{X: 3, Y: 1}))
	require.Equal(t, float32(5), b.EnlargementCost(Point{X: 3, Y: 3}))
}

func TestBoxUnion(t *testing.T) {
	a := Box{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	b := Box{MinX: -1, MinY: 0.5, MaxX: 0.5, MaxY: 3}
	require.Equal(t, Box{MinX: -1, MinY: 0, MaxX: 1, MaxY: 3}, a.Union(b))
	require.Equal(t, a, a.Union(EmptyBox()))
}
