package geolocation

import "time"

// Method identifies the calculation path that produced a Result.
type Method string

const (
	MethodGroundPlane  Method = "ground-plane-intersection"
	MethodImpossible   Method = "impossible"
	MethodInvalidInput Method = "invalid-input"
)

// Result is the computed position, uncertainty, and trust of a detection.
// Results that did not come from a ground intersection are always RED, carry
// the camera position when it is usable, and have zero uncertainty.
type Result struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	UncertaintyRadiusM float64   `json:"uncertainty_radius_m"`
	SlantRangeM        float64   `json:"slant_range_m"`
	TrustFlag          TrustFlag `json:"trust_flag"`
	Method             Method    `json:"method"`
	Reason             string    `json:"reason,omitempty"`
	ComputedAt         time.Time `json:"computed_at"`
}

// Located reports whether the result came from a ground intersection.
func (r Result) Located() bool {
	return r.Method == MethodGroundPlane
}
