package features

import (
	"time"

	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/internal/geolocation"
)

// Builder assembles Features. It holds no mutable state.
type Builder struct {
	validity time.Duration
	now      func() time.Time
}

// NewBuilder creates a Builder whose features expire validity after they are built.
// A nil clock uses time.Now.
func NewBuilder(validity time.Duration, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{validity: validity, now: now}
}

// Build packages d and r into a Feature keyed by the detection ID.
func (b *Builder) Build(d detections.Detection, r geolocation.Result) Feature {
	built := b.now().UTC()

	return Feature{
		FeatureID:   d.ID,
		Detection:   d,
		Geolocation: r,
		Provenance: Provenance{
			SourceID:           d.SourceID,
			SourceType:         d.SourceType,
			ObjectClass:        d.ObjectClass,
			AIConfidence:       d.AIConfidence,
			TrustFlag:          r.TrustFlag,
			UncertaintyRadiusM: r.UncertaintyRadiusM,
			Method:             r.Method,
			Reason:             r.Reason,
		},
		BuiltAt:   built,
		ExpiresAt: built.Add(b.validity),
	}
}
