package rtree

import (
	"math/rand"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

type entry struct {
	point Point
	id    int
}

func TestTreeRandomOperations(t *testing.T) {
	configs := []Config{
		{MinElementsPerNode: 1, MaxElementsPerNode: 2, MaxElements: 256},
		{MinElementsPerNode: 2, MaxElementsPerNode: 4, MaxElements: 256},
		{MinElementsPerNode: 3, MaxElementsPerNode: 8, MaxElements: 512},
		{MinElementsPerNode: 16, MaxElementsPerNode: 16, MaxElements: 512},
	}

	for _, c := range configs {
		c := c
		t.Run("", func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(c.MaxElementsPerNode)*31 + int64(c.MinElementsPerNode)))
			tree := New[int](c)
			var live []entry
			nextID := 0

			randomPoint := func() Point {
				// A coarse grid produces duplicate coordinates.
				if rnd.Intn(4) == 0 {
					return Point{X: float32(rnd.Intn(8)), Y: float32(rnd.Intn(8))}
				}
				return Point{X: rnd.Float32() * 100, Y: rnd.Float32() * 100}
			}

			for op := 0; op < 3000; op++ {
				if len(live) == 0 || rnd.Intn(100) < 55 {
					e := entry{point: randomPoint(), id: nextID}
					nextID++

					err := tree.TryInsert(e.point, e.id)
					if err != nil {
						require.True(t, errors.IsType(err, ErrTypeCapacityExceeded))
						continue
					}
					live = append(live, e)
				} else {
					k := rnd.Intn(len(live))
					e := live[k]
					removed := tree.Remove(e.point, func(id int) bool {
						return id == e.id
					})
					require.True(t, removed)
					live[k] = live[len(live)-1]
					live = live[:len(live)-1]
				}

				require.NoError(t, tree.Check(), tree.String())
				require.Equal(t, len(live), tree.Len())

				if op%50 == 0 {
					requireQueriesMatch(t, rnd, tree, live)
				}
			}

			for len(live) != 0 {
				e := live[len(live)-1]
				live = live[:len(live)-1]
				require.True(t, tree.Remove(e.point, func(id int) bool {
					return id == e.id
				}))
				require.NoError(t, tree.Check(), tree.String())
			}
			require.Equal(t, 1, tree.LeafCount())
			require.Zero(t, tree.Len())
		})
	}
}

func requireQueriesMatch(t *testing.T, rnd *rand.Rand, tree *Tree[int], live []entry) {
	t.Helper()

	all := tree.Collect(Box{MinX: -1, MinY: -1, MaxX: 101, MaxY: 101})
	require.Len(t, all, len(live))
	requireUnique(t, all)

	for i := 0; i < 10; i++ {
		x, y := rnd.Float32()*100, rnd.Float32()*100
		box := Box{
			MinX: x,
			MinY: y,
			MaxX: x + rnd.Float32()*40,
			MaxY: y + rnd.Float32()*40,
		}

		var expected []int
		for _, e := range live {
			if box.ContainsPoint(e.point) {
				expected = append(expected, e.id)
			}
		}

		res := tree.Collect(box)
		requireUnique(t, res)
		require.ElementsMatch(t, expected, res)
	}
}

func BenchmarkTreeInsertRemove(b *testing.B) {
	const size = 4096

	tree := New[int](Config{
		MinElementsPerNode: 4,
		MaxElementsPerNode: 16,
		MaxElements:        4 * size,
	})

	rnd := rand.New(rand.NewSource(42))
	points := make([]Point, size)
	for i := range points {
		points[i] = Point{X: rnd.Float32() * 1000, Y: rnd.Float32() * 1000}
		tree.Insert(points[i], i)
	}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		i := n % size
		tree.Remove(points[i], func(v int) bool { return v == i })
		tree.Insert(points[i], i)
	}
}

func BenchmarkTreeQuery(b *testing.B) {
	const size = 4096

	tree := New[int](Config{
		MinElementsPerNode: 4,
		MaxElementsPerNode: 16,
		MaxElements:        4 * size,
	})

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < size; i++ {
		tree.Insert(Point{X: rnd.Float32() * 1000, Y: rnd.Float32() * 1000}, i)
	}

	var count int
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		x, y := float32(n%900), float32((n*7)%900)
		tree.Query(Box{MinX: x, MinY: y, MaxX: x + 100, MaxY: y + 100}, func(int) {
			count++
		})
	}
	b.ReportMetric(float64(count)/float64(b.N), "results/op")
}
