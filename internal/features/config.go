package features

import (
	"fmt"
	"os"
	"time"
)

// Config holds feature building parameters.
type Config struct {
	Validity string `toml:"validity"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Validity string
}

// ValidityDuration returns Validity as a time.Duration.
func (c *Config) ValidityDuration() time.Duration {
	d, _ := time.ParseDuration(c.Validity)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	if c.Validity == "" {
		c.Validity = "5m"
	}
	if env != nil && env.Validity != "" {
		if v := os.Getenv(env.Validity); v != "" {
			c.Validity = v
		}
	}

	d, err := time.ParseDuration(c.Validity)
	if err != nil {
		return fmt.Errorf("invalid validity: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("validity must be positive")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Validity != "" {
		c.Validity = overlay.Validity
	}
}
