// Package detections defines the normalized detection event accepted from sensors and the
// checks every detection must pass before it can be geolocated.
package detections

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Source types recognized on inbound detections. The value is informational.
const (
	SourceUAV       = "uav"
	SourceSatellite = "satellite"
	SourceFixed     = "fixed"
)

// Detection is a single AI object detection with the camera state at capture time.
// A Detection is immutable once received.
type Detection struct {
	ID           string     `json:"detection_id"`
	PixelX       float64    `json:"pixel_x"`
	PixelY       float64    `json:"pixel_y"`
	ObjectClass  string     `json:"object_class"`
	AIConfidence float64    `json:"ai_confidence"`
	SourceID     string     `json:"source_id"`
	SourceType   string     `json:"source_type,omitempty"`
	ReceivedAt   time.Time  `json:"received_at"`
	Pose         CameraPose `json:"camera"`
}

// Stamp returns a copy of d with an ID and receive time assigned when absent.
func (d Detection) Stamp(now time.Time) Detection {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = now.UTC()
	}
	return d
}

// Validate reports the first reason d cannot be geolocated.
func (d Detection) Validate() error {
	if math.IsNaN(d.AIConfidence) || d.AIConfidence < 0 || d.AIConfidence > 1 {
		return fmt.Errorf("%w: %v not in [0,1]", ErrInvalidConfidence, d.AIConfidence)
	}

	if err := d.Pose.Validate(); err != nil {
		return err
	}

	if !finite(d.PixelX) || !finite(d.PixelY) {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidPixel)
	}
	w, h := float64(d.Pose.ImageWidth), float64(d.Pose.ImageHeight)
	if d.PixelX < 0 || d.PixelX >= w || d.PixelY < 0 || d.PixelY >= h {
		return fmt.Errorf(
			"%w: (%v, %v) outside %dx%d image",
			ErrInvalidPixel, d.PixelX, d.PixelY, d.Pose.ImageWidth, d.Pose.ImageHeight,
		)
	}

	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
