package domain

import (
	"fmt"
	"math"
)

// Position is a three-dimensional cartesian coordinate in millimeters.
// Unassigned components are NaN; a Position is only usable for motion when
// all three components are finite.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewPosition returns a position with all components assigned.
func NewPosition(x, y, z float64) Position {
	return Position{X: x, Y: y, Z: z}
}

// UnassignedPosition returns a position with no assigned components.
func UnassignedPosition() Position {
	nan := math.NaN()
	return Position{X: nan, Y: nan, Z: nan}
}

// IsValid reports whether all three components are finite.
func (p Position) IsValid() bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Add returns the component-wise sum of p and rhs.
func (p Position) Add(rhs Position) Position {
	return Position{X: p.X + rhs.X, Y: p.Y + rhs.Y, Z: p.Z + rhs.Z}
}

// Sub returns the component-wise difference of p and rhs.
func (p Position) Sub(rhs Position) Position {
	return Position{X: p.X - rhs.X, Y: p.Y - rhs.Y, Z: p.Z - rhs.Z}
}

func (p Position) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}

// Caldone holds the table firmware's per-axis calibration status bits.
type Caldone struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// validCaldone is the firmware value reported by a fully calibrated and
// range-measured axis.
const validCaldone = 3

// Valid reports whether every axis is calibrated and range measured.
func (c Caldone) Valid() bool {
	return c.X == validCaldone && c.Y == validCaldone && c.Z == validCaldone
}
