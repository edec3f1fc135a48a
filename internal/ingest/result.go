package ingest

import (
	"time"

	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/geolocation"
)

// Outcome is how an ingested feature left the pipeline.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
)

// Result summarizes one ingested detection.
type Result struct {
	FeatureID   string             `json:"feature_id"`
	Outcome     Outcome            `json:"outcome"`
	Geolocation geolocation.Result `json:"geolocation"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Expired     bool               `json:"expired"`
}

// BatchItem is the per-detection outcome of a batch. Exactly one of Result and Error is set.
type BatchItem struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

func newResult(f features.Feature, now time.Time) *Result {
	return &Result{
		FeatureID:   f.FeatureID,
		Geolocation: f.Geolocation,
		ExpiresAt:   f.ExpiresAt,
		Expired:     f.Expired(now),
	}
}
