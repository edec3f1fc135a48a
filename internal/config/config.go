package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/geofeed/internal/audit"
	"github.com/JaimeStill/geofeed/internal/dispatch"
	"github.com/JaimeStill/geofeed/internal/downstream"
	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/geolocation"
	"github.com/JaimeStill/geofeed/internal/queue"
	"github.com/JaimeStill/geofeed/pkg/database"
	"github.com/JaimeStill/geofeed/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvGeofeedEnv             = "GEOFEED_ENV"
	EnvGeofeedShutdownTimeout = "GEOFEED_SHUTDOWN_TIMEOUT"
	EnvGeofeedVersion         = "GEOFEED_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "GEOFEED_DB_HOST",
	Port:            "GEOFEED_DB_PORT",
	Name:            "GEOFEED_DB_NAME",
	User:            "GEOFEED_DB_USER",
	Password:        "GEOFEED_DB_PASSWORD",
	SSLMode:         "GEOFEED_DB_SSL_MODE",
	MaxOpenConns:    "GEOFEED_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "GEOFEED_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "GEOFEED_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "GEOFEED_DB_CONN_TIMEOUT",
	AutoMigrate:     "GEOFEED_DB_AUTO_MIGRATE",
}

var storageEnv = &storage.Env{
	ContainerName:    "GEOFEED_STORAGE_CONTAINER_NAME",
	ConnectionString: "GEOFEED_STORAGE_CONNECTION_STRING",
	ServiceURL:       "GEOFEED_STORAGE_SERVICE_URL",
}

var geolocationEnv = &geolocation.Env{
	Profile:                "GEOFEED_GEOLOCATION_PROFILE",
	HighConfidence:         "GEOFEED_GEOLOCATION_HIGH_CONFIDENCE",
	LowConfidence:          "GEOFEED_GEOLOCATION_LOW_CONFIDENCE",
	TightDistanceM:         "GEOFEED_GEOLOCATION_TIGHT_DISTANCE_M",
	LooseDistanceM:         "GEOFEED_GEOLOCATION_LOOSE_DISTANCE_M",
	AttitudeUncertaintyDeg: "GEOFEED_GEOLOCATION_ATTITUDE_UNCERTAINTY_DEG",
	MaxSlantRangeM:         "GEOFEED_GEOLOCATION_MAX_SLANT_RANGE_M",
}

var featuresEnv = &features.Env{
	Validity: "GEOFEED_FEATURES_VALIDITY",
}

var syncEnv = &dispatch.Env{
	RetryCeiling:    "GEOFEED_SYNC_RETRY_CEILING",
	BatchSize:       "GEOFEED_SYNC_BATCH_SIZE",
	Concurrency:     "GEOFEED_SYNC_CONCURRENCY",
	DeliveryTimeout: "GEOFEED_SYNC_DELIVERY_TIMEOUT",
	DirectTimeout:   "GEOFEED_SYNC_DIRECT_TIMEOUT",
	ProbeInterval:   "GEOFEED_SYNC_PROBE_INTERVAL",
	ProbeTimeout:    "GEOFEED_SYNC_PROBE_TIMEOUT",
}

var queueEnv = &queue.Env{
	Driver: "GEOFEED_QUEUE_DRIVER",
}

var downstreamEnv = &downstream.Env{
	Driver:                "GEOFEED_DOWNSTREAM_DRIVER",
	HTTPURL:               "GEOFEED_DOWNSTREAM_HTTP_URL",
	HTTPHealthURL:         "GEOFEED_DOWNSTREAM_HTTP_HEALTH_URL",
	MQTTBroker:            "GEOFEED_DOWNSTREAM_MQTT_BROKER",
	MQTTClientID:          "GEOFEED_DOWNSTREAM_MQTT_CLIENT_ID",
	MQTTTopicPrefix:       "GEOFEED_DOWNSTREAM_MQTT_TOPIC_PREFIX",
	MQTTQoS:               "GEOFEED_DOWNSTREAM_MQTT_QOS",
	MQTTEncoding:          "GEOFEED_DOWNSTREAM_MQTT_ENCODING",
	KafkaBootstrapServers: "GEOFEED_DOWNSTREAM_KAFKA_BOOTSTRAP_SERVERS",
	KafkaTopic:            "GEOFEED_DOWNSTREAM_KAFKA_TOPIC",
}

var auditEnv = &audit.Env{
	Sinks:      "GEOFEED_AUDIT_SINKS",
	BlobPrefix: "GEOFEED_AUDIT_BLOB_PREFIX",
}

// Config is the root configuration for the geofeed service.
type Config struct {
	Server          ServerConfig       `toml:"server"`
	Database        database.Config    `toml:"database"`
	Storage         storage.Config     `toml:"storage"`
	API             APIConfig          `toml:"api"`
	Geolocation     geolocation.Config `toml:"geolocation"`
	Features        features.Config    `toml:"features"`
	Sync            dispatch.Config    `toml:"sync"`
	Queue           queue.Config       `toml:"queue"`
	Downstream      downstream.Config  `toml:"downstream"`
	Audit           audit.Config       `toml:"audit"`
	ShutdownTimeout string             `toml:"shutdown_timeout"`
	Version         string             `toml:"version"`
}

// Env returns the GEOFEED_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvGeofeedEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// NeedsDatabase reports whether any configured component persists to PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Queue.Driver == queue.DriverPostgres || c.Audit.Enabled(audit.SinkDatabase)
}

// NeedsStorage reports whether any configured component writes to blob storage.
func (c *Config) NeedsStorage() bool {
	return c.Audit.Enabled(audit.SinkBlob)
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Geolocation.Merge(&overlay.Geolocation)
	c.Features.Merge(&overlay.Features)
	c.Sync.Merge(&overlay.Sync)
	c.Queue.Merge(&overlay.Queue)
	c.Downstream.Merge(&overlay.Downstream)
	c.Audit.Merge(&overlay.Audit)
}

// finalize runs every section. Database and storage are only validated when a
// configured queue driver or audit sink uses them.
func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Geolocation.Finalize(geolocationEnv); err != nil {
		return fmt.Errorf("geolocation: %w", err)
	}
	if err := c.Features.Finalize(featuresEnv); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := c.Sync.Finalize(syncEnv); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Queue.Finalize(queueEnv); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if err := c.Downstream.Finalize(downstreamEnv); err != nil {
		return fmt.Errorf("downstream: %w", err)
	}
	if err := c.Audit.Finalize(auditEnv); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if c.NeedsDatabase() {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.NeedsStorage() {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvGeofeedShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvGeofeedVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvGeofeedEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
