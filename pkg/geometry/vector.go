// Package geometry provides the photogrammetric kernel used to geolocate image detections:
// camera intrinsics, attitude rotation, ray casting, flat-ground intersection, and the local
// tangent-plane projection back to geodetic coordinates. Everything here is pure.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a 3-vector. Camera-frame vectors are (right, down, forward);
// world-frame vectors are local East, North, Up in metres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Unit returns v scaled to unit length. The zero vector is returned unchanged.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Scale returns v multiplied by f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Distance returns the Euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float64 {
	return v.Sub(o).Norm()
}

// Finite reports whether every component is a finite number.
func (v Vec3) Finite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func (v Vec3) dense() *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

func fromDense(d mat.Vector) Vec3 {
	return Vec3{X: d.AtVec(0), Y: d.AtVec(1), Z: d.AtVec(2)}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
