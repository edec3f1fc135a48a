package features

import (
	"time"

	"github.com/JaimeStill/geofeed/internal/geolocation"
)

// GeoJSON is the downstream wire form of a Feature (RFC 7946 Feature object).
type GeoJSON struct {
	Type       string     `json:"type" msgpack:"type"`
	ID         string     `json:"id" msgpack:"id"`
	Geometry   Point      `json:"geometry" msgpack:"geometry"`
	Properties Properties `json:"properties" msgpack:"properties"`
}

// Point is a GeoJSON Point geometry with [longitude, latitude] coordinates.
type Point struct {
	Type        string     `json:"type" msgpack:"type"`
	Coordinates [2]float64 `json:"coordinates" msgpack:"coordinates"`
}

// Properties carries provenance and timing alongside the geometry.
type Properties struct {
	FeatureID          string                `json:"feature_id" msgpack:"feature_id"`
	ObjectClass        string                `json:"object_class" msgpack:"object_class"`
	AIConfidence       float64               `json:"ai_confidence" msgpack:"ai_confidence"`
	TrustFlag          geolocation.TrustFlag `json:"trust_flag" msgpack:"trust_flag"`
	UncertaintyRadiusM float64               `json:"uncertainty_radius_m" msgpack:"uncertainty_radius_m"`
	Method             geolocation.Method    `json:"method" msgpack:"method"`
	Reason             string                `json:"reason,omitempty" msgpack:"reason,omitempty"`
	SourceID           string                `json:"source_id" msgpack:"source_id"`
	SourceType         string                `json:"source_type,omitempty" msgpack:"source_type,omitempty"`
	DetectedAt         time.Time             `json:"detected_at" msgpack:"detected_at"`
	BuiltAt            time.Time             `json:"built_at" msgpack:"built_at"`
	ExpiresAt          time.Time             `json:"expires_at" msgpack:"expires_at"`
	Stale              bool                  `json:"stale" msgpack:"stale"`
}

// GeoJSON renders f for delivery at now. Stale is set once the validity
// window has elapsed so the map can dim the feature.
func (f Feature) GeoJSON(now time.Time) GeoJSON {
	return GeoJSON{
		Type: "Feature",
		ID:   f.FeatureID,
		Geometry: Point{
			Type:        "Point",
			Coordinates: [2]float64{f.Geolocation.Longitude, f.Geolocation.Latitude},
		},
		Properties: Properties{
			FeatureID:          f.FeatureID,
			ObjectClass:        f.Provenance.ObjectClass,
			AIConfidence:       f.Provenance.AIConfidence,
			TrustFlag:          f.Provenance.TrustFlag,
			UncertaintyRadiusM: f.Provenance.UncertaintyRadiusM,
			Method:             f.Provenance.Method,
			Reason:             f.Provenance.Reason,
			SourceID:           f.Provenance.SourceID,
			SourceType:         f.Provenance.SourceType,
			DetectedAt:         f.Detection.ReceivedAt,
			BuiltAt:            f.BuiltAt,
			ExpiresAt:          f.ExpiresAt,
			Stale:              f.Expired(now),
		},
	}
}
