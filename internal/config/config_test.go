package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
fetch:
  concurrency: 6
  timeout_seconds: 45
  max_redirects: 5
  user_agent: real-agent
  per_host_rps: 2.5
  per_host_burst: 3
runs:
  queue_depth: 128
  workers: 4
storage:
  backend: local
  base_dir: /tmp/exports
  format: csv
db:
  dsn: postgres://localhost/scrapes
  max_conns: 8
pubsub:
  project_id: proj
  topic: done
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Fetch.Concurrency != 6 || cfg.Fetch.MaxRedirects != 5 || cfg.Fetch.PerHostRPS != 2.5 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Runs.QueueDepth != 128 || cfg.Runs.Workers != 4 {
		t.Fatalf("expected runs overrides to apply: %+v", cfg.Runs)
	}
	if cfg.Storage.Backend != BackendLocal || cfg.Storage.Format != "csv" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if cfg.DB.MaxConns != 8 || cfg.DB.Table != "scrape_results" {
		t.Fatalf("expected db overrides with default table: %+v", cfg.DB)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Concurrency != 3 || cfg.FetchTimeout() != 30*time.Second || cfg.Fetch.MaxRedirects != 10 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.Storage.Format != "json" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Telemetry.ServiceName != "urlscraper" {
		t.Fatalf("unexpected service name %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("URLSCRAPER_FETCH_CONCURRENCY", "9")
	t.Setenv("URLSCRAPER_STORAGE_FORMAT", "csv")

	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Concurrency != 9 || cfg.Storage.Format != "csv" {
		t.Fatalf("expected env overrides, got %+v / %+v", cfg.Fetch, cfg.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Fetch:   FetchConfig{Concurrency: 1, TimeoutSeconds: 10, MaxRedirects: 10},
		Runs:    RunsConfig{QueueDepth: 1, Workers: 1},
		Storage: StorageConfig{Backend: BackendMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Fetch.Concurrency = 0 }, want: "fetch.concurrency"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, want: "fetch.timeout_seconds"},
		{name: "invalid redirects", mutate: func(c *Config) { c.Fetch.MaxRedirects = 0 }, want: "fetch.max_redirects"},
		{name: "negative body cap", mutate: func(c *Config) { c.Fetch.MaxBodyBytes = -1 }, want: "fetch.max_body_bytes"},
		{name: "rps without burst", mutate: func(c *Config) { c.Fetch.PerHostRPS = 1 }, want: "fetch.per_host_burst"},
		{name: "no workers", mutate: func(c *Config) { c.Runs.Workers = 0 }, want: "runs.workers"},
		{name: "no queue", mutate: func(c *Config) { c.Runs.QueueDepth = 0 }, want: "runs.queue_depth"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = BackendGCS }, want: "storage.gcs_bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = BackendLocal }, want: "storage.base_dir"},
		{name: "unknown format", mutate: func(c *Config) { c.Storage.Format = "xml" }, want: "storage.format"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.PubSub.ProjectID = "p" }, want: "pubsub.topic"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
