package geometry

import "errors"

var (
	// ErrSingularIntrinsics indicates the intrinsic matrix cannot be inverted.
	ErrSingularIntrinsics = errors.New("intrinsic matrix is singular")
	// ErrAboveHorizon indicates the ray is level with or above the horizon.
	ErrAboveHorizon = errors.New("ray does not descend toward the ground plane")
	// ErrBehindCamera indicates the intersection lies behind the ray origin.
	ErrBehindCamera = errors.New("ground intersection lies behind the camera")
	// ErrOutOfRange indicates the slant range exceeds the configured ceiling.
	ErrOutOfRange = errors.New("ground intersection exceeds maximum slant range")
	// ErrPolarAnchor indicates the tangent-plane projection is undefined at the anchor.
	ErrPolarAnchor = errors.New("tangent-plane projection undefined near the poles")
)
