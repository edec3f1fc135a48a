package detections

import "fmt"

// CameraPose is the camera position, attitude, and intrinsics at capture time.
// ElevationM is height above the flat ground plane assumed at elevation 0.
type CameraPose struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ElevationM float64 `json:"elevation_m"`
	HeadingDeg float64 `json:"heading_deg"`
	PitchDeg   float64 `json:"pitch_deg"`
	RollDeg    float64 `json:"roll_deg"`

	FocalLengthPx float64  `json:"focal_length_px,omitempty"`
	FocalLengthMM float64  `json:"focal_length_mm,omitempty"`
	SensorWidthMM float64  `json:"sensor_width_mm,omitempty"`
	ImageWidth    int      `json:"image_width"`
	ImageHeight   int      `json:"image_height"`
	PrincipalX    *float64 `json:"principal_x,omitempty"`
	PrincipalY    *float64 `json:"principal_y,omitempty"`
}

// FocalPx returns the focal length in pixels, converting from millimetres
// against the sensor width when no pixel value is supplied.
func (p CameraPose) FocalPx() float64 {
	if p.FocalLengthPx != 0 {
		return p.FocalLengthPx
	}
	if p.FocalLengthMM > 0 && p.SensorWidthMM > 0 {
		return p.FocalLengthMM * float64(p.ImageWidth) / p.SensorWidthMM
	}
	return 0
}

// Principal returns the principal point, defaulting to the image centre.
func (p CameraPose) Principal() (float64, float64) {
	cx := float64(p.ImageWidth) / 2
	cy := float64(p.ImageHeight) / 2
	if p.PrincipalX != nil {
		cx = *p.PrincipalX
	}
	if p.PrincipalY != nil {
		cy = *p.PrincipalY
	}
	return cx, cy
}

// HasValidPosition reports whether the camera coordinates are finite and in range,
// and so can anchor a result that failed geolocation.
func (p CameraPose) HasValidPosition() bool {
	return finite(p.Latitude) && finite(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Validate checks the pose invariants.
func (p CameraPose) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"latitude", p.Latitude},
		{"longitude", p.Longitude},
		{"elevation_m", p.ElevationM},
		{"heading_deg", p.HeadingDeg},
		{"pitch_deg", p.PitchDeg},
		{"roll_deg", p.RollDeg},
		{"focal_length_px", p.FocalLengthPx},
		{"focal_length_mm", p.FocalLengthMM},
		{"sensor_width_mm", p.SensorWidthMM},
	}
	for _, f := range fields {
		if !finite(f.value) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidPose, f.name)
		}
	}

	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90,90]", ErrInvalidPose, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180,180]", ErrInvalidPose, p.Longitude)
	}
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		return fmt.Errorf("%w: image %dx%d", ErrInvalidIntrinsics, p.ImageWidth, p.ImageHeight)
	}
	if f := p.FocalPx(); !(f > 0) {
		return fmt.Errorf("%w: focal length %v px", ErrInvalidIntrinsics, f)
	}
	if p.PrincipalX != nil && !finite(*p.PrincipalX) || p.PrincipalY != nil && !finite(*p.PrincipalY) {
		return fmt.Errorf("%w: principal point is not finite", ErrInvalidIntrinsics)
	}

	return nil
}
