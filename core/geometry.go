package core

import "math"

// Point is a position on the 2D deployment plane.
type Point struct {
	X, Y float64
}

// DistanceTo returns the Euclidean distance between two points.
func (p Point) DistanceTo(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Clamp restricts the point to the rectangle [0,width] x [0,height].
func (p Point) Clamp(width, height float64) Point {
	return Point{
		X: math.Min(math.Max(p.X, 0), width),
		Y: math.Min(math.Max(p.Y, 0), height),
	}
}
