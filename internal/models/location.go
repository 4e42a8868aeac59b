package models

import "math"

// Point is a position on the delivery map in km, relative to the kitchen.
type Point struct {
	X float64 `json:"x" parquet:"name=x,type=DOUBLE"`
	Y float64 `json:"y" parquet:"name=y,type=DOUBLE"`
}

// Origin is where the kitchen and the drone pad are.
var Origin = Point{}

// DistanceTo returns the straight-line distance between two points.
func (p Point) DistanceTo(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// IsValid reports whether both coordinates are finite numbers.
func (p Point) IsValid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
