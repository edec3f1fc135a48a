package audit

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// Sink names accepted in Config.Sinks.
const (
	SinkLog      = "log"
	SinkDatabase = "database"
	SinkBlob     = "blob"
)

// Config selects the audit sinks and the blob archive layout.
type Config struct {
	Sinks      []string `toml:"sinks"`
	BlobPrefix string   `toml:"blob_prefix"`
}

// Env maps config fields to environment variable names for override injection.
// Sinks is read as a comma-separated list.
type Env struct {
	Sinks      string
	BlobPrefix string
}

// Enabled reports whether the named sink is configured.
func (c *Config) Enabled(sink string) bool {
	return slices.Contains(c.Sinks, sink)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if len(overlay.Sinks) > 0 {
		c.Sinks = overlay.Sinks
	}
	if overlay.BlobPrefix != "" {
		c.BlobPrefix = overlay.BlobPrefix
	}
}

func (c *Config) loadDefaults() {
	if len(c.Sinks) == 0 {
		c.Sinks = []string{SinkLog, SinkDatabase}
	}
	if c.BlobPrefix == "" {
		c.BlobPrefix = "audit"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Sinks != "" {
		if v := os.Getenv(env.Sinks); v != "" {
			c.Sinks = splitList(v)
		}
	}
	if env.BlobPrefix != "" {
		if v := os.Getenv(env.BlobPrefix); v != "" {
			c.BlobPrefix = v
		}
	}
}

func (c *Config) validate() error {
	for _, s := range c.Sinks {
		switch s {
		case SinkLog, SinkDatabase, SinkBlob:
		default:
			return fmt.Errorf("unknown sink %q", s)
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
