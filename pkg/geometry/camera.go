package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const deg2rad = math.Pi / 180

// cameraToBody maps camera axes (right, down, forward) into a level,
// north-looking body frame expressed as East, North, Up.
var cameraToBody = mat.NewDense(3, 3, []float64{
	1, 0, 0,
	0, 0, 1,
	0, -1, 0,
})

// Intrinsics builds the 3x3 pinhole intrinsic matrix.
func Intrinsics(fx, fy, cx, cy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
}

// InvertIntrinsics returns K⁻¹ for use with PixelRay.
func InvertIntrinsics(k mat.Matrix) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(k); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSingularIntrinsics, err)
	}
	return &inv, nil
}

// PixelRay returns the unit camera-frame direction through pixel (px, py)
// given the inverted intrinsic matrix.
func PixelRay(kinv mat.Matrix, px, py float64) Vec3 {
	var d mat.VecDense
	d.MulVec(kinv, mat.NewVecDense(3, []float64{px, py, 1}))
	return fromDense(&d).Unit()
}

// Orientation composes the camera-to-ENU rotation from heading (clockwise
// from north), pitch (positive up), and roll (positive right side down).
// Yaw is applied first, then pitch, then roll, each about the axes produced
// by the previous rotation.
func Orientation(headingDeg, pitchDeg, rollDeg float64) *mat.Dense {
	h := headingDeg * deg2rad
	p := pitchDeg * deg2rad
	r := rollDeg * deg2rad

	yaw := mat.NewDense(3, 3, []float64{
		math.Cos(h), math.Sin(h), 0,
		-math.Sin(h), math.Cos(h), 0,
		0, 0, 1,
	})
	pitch := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(p), -math.Sin(p),
		0, math.Sin(p), math.Cos(p),
	})
	roll := mat.NewDense(3, 3, []float64{
		math.Cos(r), 0, math.Sin(r),
		0, 1, 0,
		-math.Sin(r), 0, math.Cos(r),
	})

	var out mat.Dense
	out.Product(yaw, pitch, roll, cameraToBody)
	return &out
}

// Rotate applies r to v.
func Rotate(r mat.Matrix, v Vec3) Vec3 {
	var d mat.VecDense
	d.MulVec(r, v.dense())
	return fromDense(&d)
}
