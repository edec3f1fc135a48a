package geolocation

import (
	"math"

	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/pkg/geometry"
)

const pixelStep = 1.0

type sample struct {
	px, py, heading, pitch float64
}

// uncertainty propagates a one-pixel detection error and the configured
// attitude error through the ray chain. Each parameter contributes the larger
// of its two one-sided ground displacements; contributions combine in
// quadrature. The radius is capped at the maximum slant range, and any
// perturbation that misses the ground pins it there.
func (e *Engine) uncertainty(s solver, d detections.Detection, nominal geometry.Vec3) float64 {
	px, py := d.PixelX, d.PixelY
	h, p := d.Pose.HeadingDeg, d.Pose.PitchDeg
	a := e.attitude

	params := [][2]sample{
		{{px - pixelStep, py, h, p}, {px + pixelStep, py, h, p}},
		{{px, py - pixelStep, h, p}, {px, py + pixelStep, h, p}},
		{{px, py, h, p - a}, {px, py, h, p + a}},
		{{px, py, h - a, p}, {px, py, h + a, p}},
	}

	var sum float64
	for _, pair := range params {
		var worst float64
		for _, q := range pair {
			point, _, err := s.solve(q.px, q.py, q.heading, q.pitch)
			if err != nil {
				return e.maxRange
			}
			worst = max(worst, point.Distance(nominal))
		}
		sum += worst * worst
	}

	return min(math.Sqrt(sum), e.maxRange)
}
