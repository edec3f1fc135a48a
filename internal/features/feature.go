// Package features packages a detection and its geolocation into the unit that is queued and
// delivered downstream.
package features

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/internal/geolocation"
)

// Provenance summarizes where a feature came from and how far it can be trusted.
type Provenance struct {
	SourceID           string                `json:"source_id"`
	SourceType         string                `json:"source_type,omitempty"`
	ObjectClass        string                `json:"object_class"`
	AIConfidence       float64               `json:"ai_confidence"`
	TrustFlag          geolocation.TrustFlag `json:"trust_flag"`
	UncertaintyRadiusM float64               `json:"uncertainty_radius_m"`
	Method             geolocation.Method    `json:"method"`
	Reason             string                `json:"reason,omitempty"`
}

// Feature is a geolocated detection ready for delivery. FeatureID equals the
// detection ID and is the idempotency key for every delivery attempt.
type Feature struct {
	FeatureID   string               `json:"feature_id"`
	Detection   detections.Detection `json:"detection"`
	Geolocation geolocation.Result   `json:"geolocation"`
	Provenance  Provenance           `json:"provenance"`
	BuiltAt     time.Time            `json:"built_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

// Expired reports whether the validity window has elapsed at now.
func (f Feature) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// Marshal encodes the feature as its queue payload.
func (f Feature) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal feature %s: %w", f.FeatureID, err)
	}
	return data, nil
}

// Unmarshal decodes a queue payload back into a Feature.
func Unmarshal(payload []byte) (Feature, error) {
	var f Feature
	if err := json.Unmarshal(payload, &f); err != nil {
		return Feature{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if f.FeatureID == "" {
		return Feature{}, fmt.Errorf("%w: missing feature_id", ErrMalformedPayload)
	}
	return f, nil
}
