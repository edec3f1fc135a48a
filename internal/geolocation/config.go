package geolocation

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the trust profile, per-field threshold overrides, and the
// error model used to estimate uncertainty.
type Config struct {
	Profile                string  `toml:"profile"`
	HighConfidence         float64 `toml:"high_confidence"`
	LowConfidence          float64 `toml:"low_confidence"`
	TightDistanceM         float64 `toml:"tight_distance_m"`
	LooseDistanceM         float64 `toml:"loose_distance_m"`
	AttitudeUncertaintyDeg float64 `toml:"attitude_uncertainty_deg"`
	MaxSlantRangeM         float64 `toml:"max_slant_range_m"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Profile                string
	HighConfidence         string
	LowConfidence          string
	TightDistanceM         string
	LooseDistanceM         string
	AttitudeUncertaintyDeg string
	MaxSlantRangeM         string
}

// Thresholds returns the effective trust thresholds.
func (c *Config) Thresholds() Thresholds {
	return Thresholds{
		HighConfidence: c.HighConfidence,
		LowConfidence:  c.LowConfidence,
		TightDistanceM: c.TightDistanceM,
		LooseDistanceM: c.LooseDistanceM,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
// Threshold fields left unset after overrides are filled from the named profile.
func (c *Config) Finalize(env *Env) error {
	if env != nil {
		c.loadEnv(env)
	}
	if err := c.loadDefaults(); err != nil {
		return err
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Profile != "" {
		c.Profile = overlay.Profile
	}
	if overlay.HighConfidence != 0 {
		c.HighConfidence = overlay.HighConfidence
	}
	if overlay.LowConfidence != 0 {
		c.LowConfidence = overlay.LowConfidence
	}
	if overlay.TightDistanceM != 0 {
		c.TightDistanceM = overlay.TightDistanceM
	}
	if overlay.LooseDistanceM != 0 {
		c.LooseDistanceM = overlay.LooseDistanceM
	}
	if overlay.AttitudeUncertaintyDeg != 0 {
		c.AttitudeUncertaintyDeg = overlay.AttitudeUncertaintyDeg
	}
	if overlay.MaxSlantRangeM != 0 {
		c.MaxSlantRangeM = overlay.MaxSlantRangeM
	}
}

func (c *Config) loadDefaults() error {
	if c.Profile == "" {
		c.Profile = ProfileMilitary
	}
	c.Profile = strings.ToLower(c.Profile)

	p, ok := Profiles[c.Profile]
	if !ok {
		return fmt.Errorf("unknown profile %q", c.Profile)
	}
	if c.HighConfidence == 0 {
		c.HighConfidence = p.HighConfidence
	}
	if c.LowConfidence == 0 {
		c.LowConfidence = p.LowConfidence
	}
	if c.TightDistanceM == 0 {
		c.TightDistanceM = p.TightDistanceM
	}
	if c.LooseDistanceM == 0 {
		c.LooseDistanceM = p.LooseDistanceM
	}
	if c.AttitudeUncertaintyDeg == 0 {
		c.AttitudeUncertaintyDeg = 0.5
	}
	if c.MaxSlantRangeM == 0 {
		c.MaxSlantRangeM = 20000
	}
	return nil
}

func (c *Config) loadEnv(env *Env) {
	if env.Profile != "" {
		if v := os.Getenv(env.Profile); v != "" {
			c.Profile = v
		}
	}
	setFloat(env.HighConfidence, &c.HighConfidence)
	setFloat(env.LowConfidence, &c.LowConfidence)
	setFloat(env.TightDistanceM, &c.TightDistanceM)
	setFloat(env.LooseDistanceM, &c.LooseDistanceM)
	setFloat(env.AttitudeUncertaintyDeg, &c.AttitudeUncertaintyDeg)
	setFloat(env.MaxSlantRangeM, &c.MaxSlantRangeM)
}

func (c *Config) validate() error {
	if c.LowConfidence < 0 || c.HighConfidence > 1 || c.LowConfidence > c.HighConfidence {
		return fmt.Errorf("confidence thresholds must satisfy 0 <= low <= high <= 1")
	}
	if c.TightDistanceM <= 0 || c.TightDistanceM > c.LooseDistanceM {
		return fmt.Errorf("distance thresholds must satisfy 0 < tight <= loose")
	}
	if c.AttitudeUncertaintyDeg < 0 {
		return fmt.Errorf("attitude_uncertainty_deg must not be negative")
	}
	if c.MaxSlantRangeM <= 0 {
		return fmt.Errorf("max_slant_range_m must be positive")
	}
	return nil
}

func setFloat(name string, dst *float64) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
