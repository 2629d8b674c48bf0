package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/meshsync/pkg/crypto/adaptive"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify(Default()) error = %v", err)
	}
	if cfg.Backend.HealthAttempts != DefaultHealthAttempts {
		t.Errorf("HealthAttempts = %d, want %d", cfg.Backend.HealthAttempts, DefaultHealthAttempts)
	}
	if cfg.Backend.HealthRetryDelay != 400*time.Millisecond {
		t.Errorf("HealthRetryDelay = %v", cfg.Backend.HealthRetryDelay)
	}
	if cfg.Storage.Engine != "badger" {
		t.Errorf("Engine = %q", cfg.Storage.Engine)
	}
	if cfg.Telemetry.ExportCount != 20 {
		t.Errorf("ExportCount = %d", cfg.Telemetry.ExportCount)
	}
	if cfg.Metrics.Addr != "" {
		t.Error("metrics endpoint should be off by default")
	}
}

func TestStatePath(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/var/lib/meshsync"
	if got := cfg.StatePath(); got != filepath.Join("/var/lib/meshsync", "state.json") {
		t.Errorf("StatePath() = %q", got)
	}
	cfg.Storage.StateFile = "/tmp/app.json"
	if got := cfg.StatePath(); got != "/tmp/app.json" {
		t.Errorf("StatePath() = %q", got)
	}
}

func TestLoad_FileEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshsync.yaml")
	content := `
backend:
  endpoints: [sync.example.com, "https://backup.example.com/"]
  auth_token: file-token
  health_attempts: 4
sync:
  interval: 1m
  cipher: chacha20-poly1305
storage:
  engine: memory
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MESHSYNC_BACKEND__AUTH_TOKEN", "env-token")
	t.Setenv("MESHSYNC_TELEMETRY__EXPORT_COUNT", "5")

	cfg, err := Load(path, map[string]any{
		"storage.data_dir": dir,
		"log.level":        nil,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Backend.Endpoints) != 2 {
		t.Errorf("Endpoints = %v", cfg.Backend.Endpoints)
	}
	if cfg.Backend.AuthToken != "env-token" {
		t.Errorf("AuthToken = %q, env should override file", cfg.Backend.AuthToken)
	}
	if cfg.Backend.HealthAttempts != 4 {
		t.Errorf("HealthAttempts = %d", cfg.Backend.HealthAttempts)
	}
	if cfg.Backend.HealthPath != DefaultHealthPath {
		t.Errorf("HealthPath = %q, default should survive", cfg.Backend.HealthPath)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Interval = %v", cfg.Sync.Interval)
	}
	if cfg.CipherType() != adaptive.CipherChaCha20 {
		t.Errorf("CipherType() = %v", cfg.CipherType())
	}
	if cfg.Storage.DataDir != dir || cfg.Storage.Engine != "memory" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, nil override must not clear it", cfg.Log.Level)
	}
	if cfg.Telemetry.ExportCount != 5 {
		t.Errorf("ExportCount = %d", cfg.Telemetry.ExportCount)
	}
}

func TestLoad_EnvListsAndFlagOverrides(t *testing.T) {
	t.Setenv("MESHSYNC_BACKEND__ENDPOINTS", "https://a.example,https://b.example")

	cfg, err := Load("", map[string]any{
		"storage.data_dir": "/srv/meshsync",
		"log.level":        "error",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Backend.Endpoints) != 2 || cfg.Backend.Endpoints[0] != want[0] || cfg.Backend.Endpoints[1] != want[1] {
		t.Errorf("Endpoints = %q, want %q", cfg.Backend.Endpoints, want)
	}
	if cfg.Storage.DataDir != "/srv/meshsync" {
		t.Errorf("DataDir = %q, flag override dropped", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Level = %q, flag override dropped", cfg.Log.Level)
	}

	cfg, err = Load("", map[string]any{"backend.endpoints": []string{"https://flag.example"}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Backend.Endpoints) != 1 || cfg.Backend.Endpoints[0] != "https://flag.example" {
		t.Errorf("Endpoints = %q, flag list should replace env list", cfg.Backend.Endpoints)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("", map[string]any{"storage.data_dir": t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.RetryMax != DefaultRetryMax {
		t.Errorf("RetryMax = %d", cfg.Backend.RetryMax)
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load("", map[string]any{"storage.engine": "bolt"})
	if err == nil || !strings.Contains(err.Error(), "storage.engine") {
		t.Errorf("Load() error = %v, want storage.engine error", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bare host endpoint", func(c *Config) { c.Backend.Endpoints = []string{"sync.example.com"} }, ""},
		{"ftp endpoint", func(c *Config) { c.Backend.Endpoints = []string{"ftp://x.example"} }, "unsupported scheme"},
		{"empty endpoint", func(c *Config) { c.Backend.Endpoints = []string{" "} }, "empty entry"},
		{"health path", func(c *Config) { c.Backend.HealthPath = "health" }, "health_path"},
		{"zero attempts", func(c *Config) { c.Backend.HealthAttempts = 0 }, "health_attempts"},
		{"negative retries", func(c *Config) { c.Backend.RetryMax = -1 }, "retry_max"},
		{"burst without rate", func(c *Config) { c.Backend.RateBurst = 0 }, "rate_burst"},
		{"no rate limit", func(c *Config) { c.Backend.RateLimit = 0; c.Backend.RateBurst = 0 }, ""},
		{"probe disabled", func(c *Config) { c.Network.ProbeURL = "" }, ""},
		{"bad cipher", func(c *Config) { c.Sync.Cipher = "rot13" }, "sync.cipher"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }, "data_dir"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"tiny journal", func(c *Config) { c.Telemetry.JournalCapacity = 0 }, "journal_capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Backend.AuthToken = "super-secret-token-123"
	cfg.Backend.Endpoints = []string{"https://a.example"}

	s := Sanitize(cfg)
	if cfg.Backend.AuthToken != "super-secret-token-123" {
		t.Error("original config modified")
	}
	if s.Backend.AuthToken == cfg.Backend.AuthToken || !strings.HasPrefix(s.Backend.AuthToken, "su") {
		t.Errorf("masked token = %q", s.Backend.AuthToken)
	}
	s.Backend.Endpoints[0] = "changed"
	if cfg.Backend.Endpoints[0] != "https://a.example" {
		t.Error("Sanitize shares the endpoints slice")
	}

	cfg.Backend.AuthToken = "abc"
	if got := Sanitize(cfg).Backend.AuthToken; got != "****" {
		t.Errorf("short token masked as %q", got)
	}
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.Backend.Endpoints = []string{"https://a.example"}
	cfg.Network.ProbeURL = ""
	cfg.Storage.DataDir = "/data"
	cfg.Telemetry.JournalFile = "/data/journal.log"

	tc := cfg.TransportConfig()
	if len(tc.Endpoints) != 1 || tc.HealthAttempts != cfg.Backend.HealthAttempts || tc.ProbeURL != "" {
		t.Errorf("TransportConfig() = %+v", tc)
	}
	if kc := cfg.KVConfig(); kc.Engine != "badger" || kc.Dir != filepath.Join("/data", "kv") {
		t.Errorf("KVConfig() = %+v", kc)
	}
	if jc := cfg.JournalConfig(); jc.Capacity != DefaultJournalCapacity || jc.File != "/data/journal.log" {
		t.Errorf("JournalConfig() = %+v", jc)
	}
	if lc := cfg.LoggerConfig(); lc.Level != "info" || lc.Format != "text" {
		t.Errorf("LoggerConfig() = %+v", lc)
	}
}
