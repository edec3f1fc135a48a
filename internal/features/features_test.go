package features_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/geolocation"
)

var builtAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleInputs() (detections.Detection, geolocation.Result) {
	d := detections.Detection{
		ID:           "det-42",
		PixelX:       512,
		PixelY:       384,
		ObjectClass:  "truck",
		AIConfidence: 0.92,
		SourceID:     "uav-3",
		SourceType:   detections.SourceUAV,
		ReceivedAt:   builtAt.Add(-time.Second),
	}
	r := geolocation.Result{
		Latitude:           40.7153,
		Longitude:          -74.0036,
		UncertaintyRadiusM: 8.9,
		SlantRangeM:        378.6,
		TrustFlag:          geolocation.TrustGreen,
		Method:             geolocation.MethodGroundPlane,
		ComputedAt:         builtAt,
	}
	return d, r
}

func TestBuild(t *testing.T) {
	d, r := sampleInputs()
	b := features.NewBuilder(5*time.Minute, func() time.Time { return builtAt })

	f := b.Build(d, r)

	if f.FeatureID != d.ID {
		t.Errorf("feature id: got %s, want %s", f.FeatureID, d.ID)
	}
	if !f.BuiltAt.Equal(builtAt) {
		t.Errorf("built_at: got %v, want %v", f.BuiltAt, builtAt)
	}
	if !f.ExpiresAt.Equal(builtAt.Add(5 * time.Minute)) {
		t.Errorf("expires_at: got %v", f.ExpiresAt)
	}
	if f.Provenance.TrustFlag != geolocation.TrustGreen || f.Provenance.ObjectClass != "truck" {
		t.Errorf("provenance: got %+v", f.Provenance)
	}
	if f.Provenance.UncertaintyRadiusM != r.UncertaintyRadiusM {
		t.Errorf("provenance uncertainty: got %v, want %v", f.Provenance.UncertaintyRadiusM, r.UncertaintyRadiusM)
	}
}

func TestBuildKeepsFeatureIDAcrossRebuilds(t *testing.T) {
	d, r := sampleInputs()
	now := builtAt
	b := features.NewBuilder(time.Minute, func() time.Time { return now })

	first := b.Build(d, r)
	now = now.Add(time.Hour)
	second := b.Build(d, r)

	if first.FeatureID != second.FeatureID {
		t.Errorf("feature id regenerated: %s != %s", first.FeatureID, second.FeatureID)
	}
}

func TestExpired(t *testing.T) {
	d, r := sampleInputs()
	f := features.NewBuilder(5*time.Minute, func() time.Time { return builtAt }).Build(d, r)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"fresh", builtAt.Add(time.Minute), false},
		{"at expiry", builtAt.Add(5 * time.Minute), true},
		{"after expiry", builtAt.Add(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Expired(tt.at); got != tt.want {
				t.Errorf("Expired(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	d, r := sampleInputs()
	f := features.NewBuilder(5*time.Minute, func() time.Time { return builtAt }).Build(d, r)

	payload, err := f.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := features.Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.FeatureID != f.FeatureID || !got.ExpiresAt.Equal(f.ExpiresAt) {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Geolocation.Latitude != r.Latitude || got.Geolocation.TrustFlag != r.TrustFlag {
		t.Errorf("geolocation mismatch: got %+v", got.Geolocation)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "{"},
		{"wrong shape", `[1,2,3]`},
		{"missing id", `{"provenance":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := features.Unmarshal([]byte(tt.payload)); !errors.Is(err, features.ErrMalformedPayload) {
				t.Errorf("got %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestGeoJSON(t *testing.T) {
	d, r := sampleInputs()
	f := features.NewBuilder(5*time.Minute, func() time.Time { return builtAt }).Build(d, r)

	data, err := json.Marshal(f.GeoJSON(builtAt.Add(time.Minute)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if doc.Type != "Feature" || doc.Geometry.Type != "Point" {
		t.Errorf("types: got %s/%s", doc.Type, doc.Geometry.Type)
	}
	if doc.ID != "det-42" {
		t.Errorf("id: got %s", doc.ID)
	}
	if len(doc.Geometry.Coordinates) != 2 || doc.Geometry.Coordinates[0] != -74.0036 || doc.Geometry.Coordinates[1] != 40.7153 {
		t.Errorf("coordinates must be [lon, lat], got %v", doc.Geometry.Coordinates)
	}
	if doc.Properties["trust_flag"] != "GREEN" {
		t.Errorf("trust_flag: got %v", doc.Properties["trust_flag"])
	}
	if doc.Properties["stale"] != false {
		t.Errorf("stale: got %v, want false", doc.Properties["stale"])
	}

	if !f.GeoJSON(builtAt.Add(time.Hour)).Properties.Stale {
		t.Error("expected stale after validity window")
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		var cfg features.Config
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if cfg.ValidityDuration() != 5*time.Minute {
			t.Errorf("validity: got %v, want 5m", cfg.ValidityDuration())
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("TEST_FEATURES_VALIDITY", "90s")
		var cfg features.Config
		if err := cfg.Finalize(&features.Env{Validity: "TEST_FEATURES_VALIDITY"}); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if cfg.ValidityDuration() != 90*time.Second {
			t.Errorf("validity: got %v, want 90s", cfg.ValidityDuration())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := features.Config{Validity: "soon"}
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected error")
		}
	})
}
