package detections

import "errors"

// Validation errors for inbound detections. A detection failing validation is
// still processed; the error text becomes the reason on its RED result.
var (
	ErrInvalidConfidence = errors.New("invalid ai confidence")
	ErrInvalidPixel      = errors.New("pixel outside image bounds")
	ErrInvalidPose       = errors.New("invalid camera pose")
	ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")
)
