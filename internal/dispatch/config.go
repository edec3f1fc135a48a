package dispatch

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds sync engine and connectivity monitor parameters.
type Config struct {
	RetryCeiling      int     `toml:"retry_ceiling"`
	BackoffBase       string  `toml:"backoff_base"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffMax        string  `toml:"backoff_max"`
	BackoffJitter     float64 `toml:"backoff_jitter"`
	BatchSize         int     `toml:"batch_size"`
	Concurrency       int     `toml:"concurrency"`
	DeliveryTimeout   string  `toml:"delivery_timeout"`
	DirectTimeout     string  `toml:"direct_timeout"`
	ProbeInterval     string  `toml:"probe_interval"`
	ProbeTimeout      string  `toml:"probe_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	RetryCeiling    string
	BatchSize       string
	Concurrency     string
	DeliveryTimeout string
	DirectTimeout   string
	ProbeInterval   string
	ProbeTimeout    string
}

// Backoff returns the retry schedule described by the backoff fields.
func (c *Config) Backoff() Backoff {
	return Backoff{
		Base:       parse(c.BackoffBase),
		Multiplier: c.BackoffMultiplier,
		Max:        parse(c.BackoffMax),
		Jitter:     c.BackoffJitter,
	}
}

// DeliveryTimeoutDuration bounds each queued delivery attempt.
func (c *Config) DeliveryTimeoutDuration() time.Duration { return parse(c.DeliveryTimeout) }

// DirectTimeoutDuration bounds the direct delivery attempt made at ingest.
func (c *Config) DirectTimeoutDuration() time.Duration { return parse(c.DirectTimeout) }

func (c *Config) ProbeIntervalDuration() time.Duration { return parse(c.ProbeInterval) }

func (c *Config) ProbeTimeoutDuration() time.Duration { return parse(c.ProbeTimeout) }

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.RetryCeiling != 0 {
		c.RetryCeiling = overlay.RetryCeiling
	}
	if overlay.BackoffBase != "" {
		c.BackoffBase = overlay.BackoffBase
	}
	if overlay.BackoffMultiplier != 0 {
		c.BackoffMultiplier = overlay.BackoffMultiplier
	}
	if overlay.BackoffMax != "" {
		c.BackoffMax = overlay.BackoffMax
	}
	if overlay.BackoffJitter != 0 {
		c.BackoffJitter = overlay.BackoffJitter
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.DeliveryTimeout != "" {
		c.DeliveryTimeout = overlay.DeliveryTimeout
	}
	if overlay.DirectTimeout != "" {
		c.DirectTimeout = overlay.DirectTimeout
	}
	if overlay.ProbeInterval != "" {
		c.ProbeInterval = overlay.ProbeInterval
	}
	if overlay.ProbeTimeout != "" {
		c.ProbeTimeout = overlay.ProbeTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.RetryCeiling == 0 {
		c.RetryCeiling = 3
	}
	if c.BackoffBase == "" {
		c.BackoffBase = "2s"
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2
	}
	if c.BackoffMax == "" {
		c.BackoffMax = "5m"
	}
	if c.BackoffJitter == 0 {
		c.BackoffJitter = 0.2
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.Concurrency == 0 {
		c.Concurrency = 8
	}
	if c.DeliveryTimeout == "" {
		c.DeliveryTimeout = "10s"
	}
	if c.DirectTimeout == "" {
		c.DirectTimeout = "2s"
	}
	if c.ProbeInterval == "" {
		c.ProbeInterval = "15s"
	}
	if c.ProbeTimeout == "" {
		c.ProbeTimeout = "3s"
	}
}

func (c *Config) loadEnv(env *Env) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{env.RetryCeiling, &c.RetryCeiling},
		{env.BatchSize, &c.BatchSize},
		{env.Concurrency, &c.Concurrency},
	}
	for _, i := range ints {
		if i.name == "" {
			continue
		}
		if v := os.Getenv(i.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", i.name, err)
			}
			*i.dst = n
		}
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{env.DeliveryTimeout, &c.DeliveryTimeout},
		{env.DirectTimeout, &c.DirectTimeout},
		{env.ProbeInterval, &c.ProbeInterval},
		{env.ProbeTimeout, &c.ProbeTimeout},
	}
	for _, s := range strs {
		if s.name == "" {
			continue
		}
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.RetryCeiling < 1 {
		return fmt.Errorf("retry_ceiling must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1")
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		return fmt.Errorf("backoff_jitter must be in [0, 1)")
	}

	durations := []struct {
		name  string
		value string
	}{
		{"backoff_base", c.BackoffBase},
		{"backoff_max", c.BackoffMax},
		{"delivery_timeout", c.DeliveryTimeout},
		{"direct_timeout", c.DirectTimeout},
		{"probe_interval", c.ProbeInterval},
		{"probe_timeout", c.ProbeTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if parse(c.BackoffMax) < parse(c.BackoffBase) {
		return fmt.Errorf("backoff_max must not be less than backoff_base")
	}
	return nil
}

func parse(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
