// Package geolocation turns a detection into a ground coordinate with an uncertainty radius and
// a trust flag. The engine is stateless and safe for concurrent use; identical inputs always
// produce identical coordinates and uncertainty.
package geolocation

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/pkg/geometry"
)

// Engine geolocates detections against a flat ground plane.
type Engine struct {
	thresholds Thresholds
	attitude   float64
	maxRange   float64
	now        func() time.Time
}

// New creates an Engine from a finalized Config. A nil clock uses time.Now.
func New(cfg Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		thresholds: cfg.Thresholds(),
		attitude:   cfg.AttitudeUncertaintyDeg,
		maxRange:   cfg.MaxSlantRangeM,
		now:        now,
	}
}

// Thresholds returns the trust thresholds the engine classifies against.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Geolocate computes the Result for d. It never fails: invalid input and
// geometry that cannot reach the ground are reported as RED results.
func (e *Engine) Geolocate(d detections.Detection) Result {
	now := e.now().UTC()

	if err := d.Validate(); err != nil {
		return e.reject(d, MethodInvalidInput, err, now)
	}

	s, err := newSolver(d.Pose, e.maxRange)
	if err != nil {
		return e.reject(d, MethodInvalidInput, err, now)
	}

	point, slant, err := s.solve(d.PixelX, d.PixelY, d.Pose.HeadingDeg, d.Pose.PitchDeg)
	if err != nil {
		return e.reject(d, MethodImpossible, err, now)
	}

	lat, lon, err := geometry.Offset(d.Pose.Latitude, d.Pose.Longitude, point.X, point.Y)
	if err != nil {
		return e.reject(d, MethodImpossible, err, now)
	}

	uncertainty := e.uncertainty(s, d, point)

	return Result{
		Latitude:           lat,
		Longitude:          lon,
		UncertaintyRadiusM: uncertainty,
		SlantRangeM:        slant,
		TrustFlag:          e.thresholds.Classify(d.AIConfidence, uncertainty),
		Method:             MethodGroundPlane,
		ComputedAt:         now,
	}
}

func (e *Engine) reject(d detections.Detection, method Method, err error, now time.Time) Result {
	r := Result{
		TrustFlag:  TrustRed,
		Method:     method,
		Reason:     err.Error(),
		ComputedAt: now,
	}
	if d.Pose.HasValidPosition() {
		r.Latitude = d.Pose.Latitude
		r.Longitude = d.Pose.Longitude
	}
	return r
}

// solver casts rays for one camera. Heading and pitch are passed per call so
// the uncertainty model can perturb them.
type solver struct {
	kinv      *mat.Dense
	roll      float64
	elevation float64
	maxRange  float64
}

func newSolver(pose detections.CameraPose, maxRange float64) (solver, error) {
	f := pose.FocalPx()
	cx, cy := pose.Principal()

	kinv, err := geometry.InvertIntrinsics(geometry.Intrinsics(f, f, cx, cy))
	if err != nil {
		return solver{}, err
	}

	return solver{
		kinv:      kinv,
		roll:      pose.RollDeg,
		elevation: pose.ElevationM,
		maxRange:  maxRange,
	}, nil
}

func (s solver) solve(px, py, heading, pitch float64) (geometry.Vec3, float64, error) {
	ray := geometry.PixelRay(s.kinv, px, py)
	dir := geometry.Rotate(geometry.Orientation(heading, pitch, s.roll), ray).Unit()
	return geometry.IntersectGround(dir, s.elevation, s.maxRange)
}
