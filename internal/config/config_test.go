package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/geofeed/internal/config"
	"github.com/JaimeStill/geofeed/internal/downstream"
	"github.com/JaimeStill/geofeed/internal/queue"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "1m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "geofeed"
user = "geofeed"
password = "geofeed"
ssl_mode = "disable"

[api]
base_path = "/api"
max_body_size = "2MB"

[api.pagination]
default_page_size = 25
max_page_size = 50

[sync]
retry_ceiling = 4
batch_size = 20
probe_interval = "5s"

[downstream]
driver = "http"

[downstream.http]
url = "http://c2.local/features"

[audit]
sinks = ["log", "database"]
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[downstream]
driver = "kafka"

[downstream.kafka]
bootstrap_servers = "broker-1:9092,broker-2:9092"
`

// minimalConfig provides the minimum fields required for validation to pass
// with the default postgres queue and database audit sink.
const minimalConfig = `
[database]
name = "geofeed"
user = "geofeed"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"server port", cfg.Server.Port, 8080},
		{"db host", cfg.Database.Host, "localhost"},
		{"api base_path", cfg.API.BasePath, "/api"},
		{"max body size", cfg.API.MaxBodySizeBytes(), int64(2 * 1024 * 1024)},
		{"pagination default", cfg.API.Pagination.DefaultPageSize, 25},
		{"pagination max", cfg.API.Pagination.MaxPageSize, 50},
		{"retry ceiling", cfg.Sync.RetryCeiling, 4},
		{"batch size", cfg.Sync.BatchSize, 20},
		{"probe interval", cfg.Sync.ProbeIntervalDuration(), 5 * time.Second},
		{"sync default concurrency", cfg.Sync.Concurrency, 8},
		{"queue default driver", cfg.Queue.Driver, queue.DriverPostgres},
		{"downstream driver", cfg.Downstream.Driver, downstream.DriverHTTP},
		{"downstream url", cfg.Downstream.HTTP.URL, "http://c2.local/features"},
		{"features default validity", cfg.Features.Validity, "5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv("GEOFEED_ENV", "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Downstream.Driver != downstream.DriverKafka {
		t.Errorf("downstream driver: got %s, want kafka (from overlay)", cfg.Downstream.Driver)
	}
	if cfg.Downstream.Kafka.BootstrapServers != "broker-1:9092,broker-2:9092" {
		t.Errorf("bootstrap servers: got %s", cfg.Downstream.Kafka.BootstrapServers)
	}
	if cfg.Sync.RetryCeiling != 4 {
		t.Errorf("retry ceiling: got %d, want 4 (from base)", cfg.Sync.RetryCeiling)
	}
}

func TestLoadOverlayMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	t.Setenv("GEOFEED_ENV", "production")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	t.Setenv("GEOFEED_VERSION", "2.0.0")
	t.Setenv("GEOFEED_SERVER_PORT", "3000")
	t.Setenv("GEOFEED_SYNC_RETRY_CEILING", "6")
	t.Setenv("GEOFEED_SYNC_DIRECT_TIMEOUT", "750ms")
	t.Setenv("GEOFEED_DOWNSTREAM_DRIVER", "MQTT")
	t.Setenv("GEOFEED_DOWNSTREAM_MQTT_BROKER", "tcp://edge:1883")
	t.Setenv("GEOFEED_GEOLOCATION_PROFILE", "emergency")
	t.Setenv("GEOFEED_API_MAX_BODY_SIZE", "512KB")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"version", cfg.Version, "2.0.0"},
		{"server port", cfg.Server.Port, 3000},
		{"retry ceiling", cfg.Sync.RetryCeiling, 6},
		{"direct timeout", cfg.Sync.DirectTimeoutDuration(), 750 * time.Millisecond},
		{"downstream driver", cfg.Downstream.Driver, downstream.DriverMQTT},
		{"mqtt broker", cfg.Downstream.MQTT.Broker, "tcp://edge:1883"},
		{"geolocation profile", cfg.Geolocation.Profile, "emergency"},
		{"max body size", cfg.API.MaxBodySizeBytes(), int64(512 * 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("GEOFEED_DB_NAME", "testdb")
	t.Setenv("GEOFEED_DB_USER", "testuser")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name: got %s, want testdb", cfg.Database.Name)
	}
	if cfg.API.BasePath != "/api" {
		t.Errorf("api base_path default: got %s, want /api", cfg.API.BasePath)
	}
	if cfg.Sync.RetryCeiling != 3 {
		t.Errorf("retry ceiling default: got %d, want 3", cfg.Sync.RetryCeiling)
	}
}

func TestLoadDatabaseOnlyWhenUsed(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("GEOFEED_QUEUE_DRIVER", "memory")
	t.Setenv("GEOFEED_AUDIT_SINKS", "log")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.NeedsDatabase() {
		t.Error("memory queue with log audit should not need a database")
	}
	if cfg.NeedsStorage() {
		t.Error("log audit should not need storage")
	}
}

func TestLoadBlobSinkRequiresStorage(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)
	chdir(t, dir)

	t.Setenv("GEOFEED_AUDIT_SINKS", "log,blob")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error without storage connection")
	}
	if !strings.Contains(err.Error(), "storage") {
		t.Errorf("error %q does not mention storage", err.Error())
	}

	t.Setenv("GEOFEED_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.NeedsStorage() {
		t.Error("blob audit sink should need storage")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "malformed toml",
			config:  "[server\nport = 80",
			wantErr: "parse config",
		},
		{
			name:    "invalid shutdown timeout",
			config:  "shutdown_timeout = \"soon\"\n" + minimalConfig,
			wantErr: "invalid shutdown_timeout",
		},
		{
			name:    "invalid server port",
			config:  minimalConfig + "\n[server]\nport = 70000\n",
			wantErr: "invalid port",
		},
		{
			name:    "invalid max body size",
			config:  minimalConfig + "\n[api]\nmax_body_size = \"lots\"\n",
			wantErr: "invalid max_body_size",
		},
		{
			name:    "unsupported queue driver",
			config:  minimalConfig,
			env:     map[string]string{"GEOFEED_QUEUE_DRIVER": "sqlite"},
			wantErr: "queue:",
		},
		{
			name:    "unsupported downstream driver",
			config:  minimalConfig,
			env:     map[string]string{"GEOFEED_DOWNSTREAM_DRIVER": "smtp"},
			wantErr: "downstream:",
		},
		{
			name:    "non-numeric retry ceiling",
			config:  minimalConfig,
			env:     map[string]string{"GEOFEED_SYNC_RETRY_CEILING": "many"},
			wantErr: "sync:",
		},
		{
			name:    "missing database name",
			config:  "[database]\nuser = \"geofeed\"\n",
			wantErr: "database:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", tt.config)
			chdir(t, dir)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnv(t *testing.T) {
	var cfg config.Config

	if got := cfg.Env(); got != "local" {
		t.Errorf("default env: got %s, want local", got)
	}

	t.Setenv("GEOFEED_ENV", "staging")
	if got := cfg.Env(); got != "staging" {
		t.Errorf("env: got %s, want staging", got)
	}
}

func TestShutdownTimeoutDuration(t *testing.T) {
	cfg := config.Config{ShutdownTimeout: "45s"}
	if d := cfg.ShutdownTimeoutDuration(); d != 45*time.Second {
		t.Errorf("shutdown timeout: got %v, want 45s", d)
	}
}

func TestServerAddr(t *testing.T) {
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 8080}
	if addr := cfg.Addr(); addr != "127.0.0.1:8080" {
		t.Errorf("addr: got %s, want 127.0.0.1:8080", addr)
	}
}

func TestMaxBodySizeBytesFallback(t *testing.T) {
	cfg := config.APIConfig{MaxBodySize: "not-a-size"}
	if got := cfg.MaxBodySizeBytes(); got != 1024*1024 {
		t.Errorf("fallback: got %d, want %d", got, 1024*1024)
	}
}

func TestMerge(t *testing.T) {
	base := config.Config{
		ShutdownTimeout: "30s",
		Version:         "0.1.0",
		Server:          config.ServerConfig{Port: 8080, Host: "0.0.0.0"},
	}
	base.Queue.Driver = queue.DriverPostgres

	overlay := config.Config{Version: "0.2.0"}
	overlay.Server.Port = 9000
	overlay.Queue.Driver = queue.DriverMemory

	base.Merge(&overlay)

	if base.Version != "0.2.0" {
		t.Errorf("version: got %s, want 0.2.0", base.Version)
	}
	if base.ShutdownTimeout != "30s" {
		t.Errorf("zero overlay field overwrote shutdown_timeout: %s", base.ShutdownTimeout)
	}
	if base.Server.Port != 9000 || base.Server.Host != "0.0.0.0" {
		t.Errorf("server: got %+v", base.Server)
	}
	if base.Queue.Driver != queue.DriverMemory {
		t.Errorf("queue driver: got %s, want memory", base.Queue.Driver)
	}
}
