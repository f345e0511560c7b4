package rtree

import (
	"fmt"
	"math"
)

// Point is a 2D coordinate.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Box is an axis-aligned bounding box. Bounds are inclusive.
type Box struct {
	MinX float32 `json:"min_x"`
	MinY float32 `json:"min_y"`
	MaxX float32 `json:"max_x"`
	MaxY float32 `json:"max_y"`
}

// EmptyBox returns an inverted box that any call to Extend replaces with
// the extending point.
func EmptyBox() Box {
	inf := float32(math.Inf(1))
	return Box{
		MinX: inf,
		MinY: inf,
		MaxX: -inf,
		MaxY: -inf,
	}
}

// IsEmpty reports whether the box contains no point at all.
func (b Box) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

func (b Box) ContainsPoint(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX &&
		p.Y >= b.MinY && p.Y <= b.MaxY
}

func (b Box) Overlaps(o Box) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

// Extend returns the smallest box containing both b and p.
func (b Box) Extend(p Point) Box {
	return Box{
		MinX: min(b.MinX, p.X),
		MinY: min(b.MinY, p.Y),
		MaxX: max(b.MaxX, p.X),
		MaxY: max(b.MaxY, p.Y),
	}
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		MinX: min(b.MinX, o.MinX),
		MinY: min(b.MinY, o.MinY),
		MaxX: max(b.MaxX, o.MaxX),
		MaxY: max(b.MaxY, o.MaxY),
	}
}

// Area returns the area of the box. An empty box has no area.
func (b Box) Area() float32 {
	if b.IsEmpty() {
		return 0
	}
	return (b.MaxX - b.MinX) * (b.MaxY - b.MinY)
}

// EnlargementCost is the area the box gains when extended by p.
func (b Box) EnlargementCost(p Point) float32 {
	return b.Extend(p).Area() - b.Area()
}

func (b Box) String() string {
	if b.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%g %g, %g %g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
