package geolocation_test

import (
	"testing"

	"github.com/JaimeStill/geofeed/internal/geolocation"
)

var testEnv = &geolocation.Env{
	Profile:                "TEST_GEO_PROFILE",
	HighConfidence:         "TEST_GEO_HIGH_CONFIDENCE",
	LowConfidence:          "TEST_GEO_LOW_CONFIDENCE",
	TightDistanceM:         "TEST_GEO_TIGHT_DISTANCE_M",
	LooseDistanceM:         "TEST_GEO_LOOSE_DISTANCE_M",
	AttitudeUncertaintyDeg: "TEST_GEO_ATTITUDE_UNCERTAINTY_DEG",
	MaxSlantRangeM:         "TEST_GEO_MAX_SLANT_RANGE_M",
}

func TestConfigDefaults(t *testing.T) {
	var cfg geolocation.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if cfg.Profile != geolocation.ProfileMilitary {
		t.Errorf("profile: got %s, want military", cfg.Profile)
	}
	if got, want := cfg.Thresholds(), geolocation.Profiles[geolocation.ProfileMilitary]; got != want {
		t.Errorf("thresholds: got %+v, want %+v", got, want)
	}
	if cfg.AttitudeUncertaintyDeg != 0.5 {
		t.Errorf("attitude uncertainty: got %v, want 0.5", cfg.AttitudeUncertaintyDeg)
	}
	if cfg.MaxSlantRangeM != 20000 {
		t.Errorf("max slant range: got %v, want 20000", cfg.MaxSlantRangeM)
	}
}

func TestConfigProfileWithOverride(t *testing.T) {
	cfg := geolocation.Config{
		Profile:        "Emergency",
		TightDistanceM: 40,
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	want := geolocation.Profiles[geolocation.ProfileEmergency]
	want.TightDistanceM = 40
	if got := cfg.Thresholds(); got != want {
		t.Errorf("thresholds: got %+v, want %+v", got, want)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("TEST_GEO_PROFILE", "law_enforcement")
	t.Setenv("TEST_GEO_HIGH_CONFIDENCE", "0.9")
	t.Setenv("TEST_GEO_MAX_SLANT_RANGE_M", "5000")

	cfg := geolocation.Config{Profile: geolocation.ProfileMilitary}
	if err := cfg.Finalize(testEnv); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if cfg.Profile != geolocation.ProfileLawEnforcement {
		t.Errorf("profile: got %s, want law_enforcement", cfg.Profile)
	}
	if cfg.HighConfidence != 0.9 {
		t.Errorf("high confidence: got %v, want 0.9", cfg.HighConfidence)
	}
	if cfg.LooseDistanceM != 75 {
		t.Errorf("loose distance: got %v, want 75 from profile", cfg.LooseDistanceM)
	}
	if cfg.MaxSlantRangeM != 5000 {
		t.Errorf("max slant range: got %v, want 5000", cfg.MaxSlantRangeM)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  geolocation.Config
	}{
		{"unknown profile", geolocation.Config{Profile: "coast_guard"}},
		{"low above high", geolocation.Config{HighConfidence: 0.6, LowConfidence: 0.7}},
		{"high above one", geolocation.Config{HighConfidence: 1.5}},
		{"tight above loose", geolocation.Config{TightDistanceM: 500}},
		{"negative attitude", geolocation.Config{AttitudeUncertaintyDeg: -1}},
		{"negative range", geolocation.Config{MaxSlantRangeM: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfigMerge(t *testing.T) {
	base := geolocation.Config{Profile: "military", MaxSlantRangeM: 10000}
	overlay := geolocation.Config{Profile: "emergency", LooseDistanceM: 250}

	base.Merge(&overlay)

	if base.Profile != "emergency" {
		t.Errorf("profile: got %s, want emergency", base.Profile)
	}
	if base.LooseDistanceM != 250 {
		t.Errorf("loose distance: got %v, want 250", base.LooseDistanceM)
	}
	if base.MaxSlantRangeM != 10000 {
		t.Errorf("max slant range: got %v, want 10000 (preserved)", base.MaxSlantRangeM)
	}
}

func TestClassify(t *testing.T) {
	th := geolocation.Profiles[geolocation.ProfileMilitary]

	tests := []struct {
		name        string
		confidence  float64
		uncertainty float64
		want        geolocation.TrustFlag
	}{
		{"both strong", 0.9, 10, geolocation.TrustGreen},
		{"at high and tight boundary", 0.85, 30, geolocation.TrustGreen},
		{"confidence between", 0.7, 10, geolocation.TrustYellow},
		{"distance between", 0.9, 60, geolocation.TrustYellow},
		{"at loose boundary", 0.9, 100, geolocation.TrustYellow},
		{"at low boundary", 0.5, 10, geolocation.TrustYellow},
		{"low confidence", 0.49, 10, geolocation.TrustRed},
		{"loose distance exceeded", 0.99, 100.1, geolocation.TrustRed},
		{"both weak", 0.1, 5000, geolocation.TrustRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.Classify(tt.confidence, tt.uncertainty); got != tt.want {
				t.Errorf("Classify(%v, %v) = %s, want %s", tt.confidence, tt.uncertainty, got, tt.want)
			}
		})
	}
}

func TestProfilesDifferOverSameResult(t *testing.T) {
	conf, unc := 0.82, 28.0

	tests := []struct {
		profile string
		want    geolocation.TrustFlag
	}{
		{geolocation.ProfileMilitary, geolocation.TrustYellow},
		{geolocation.ProfileEmergency, geolocation.TrustGreen},
		{geolocation.ProfileLawEnforcement, geolocation.TrustYellow},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			if got := geolocation.Profiles[tt.profile].Classify(conf, unc); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
