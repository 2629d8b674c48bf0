package config

import "time"

// Config is the root configuration of a meshsync install.
type Config struct {
	Backend   BackendSection   `koanf:"backend" json:"backend" yaml:"backend"`
	Network   NetworkSection   `koanf:"network" json:"network" yaml:"network"`
	Sync      SyncSection      `koanf:"sync" json:"sync" yaml:"sync"`
	Storage   StorageSection   `koanf:"storage" json:"storage" yaml:"storage"`
	Log       LogSection       `koanf:"log" json:"log" yaml:"log"`
	Telemetry TelemetrySection `koanf:"telemetry" json:"telemetry" yaml:"telemetry"`
	Metrics   MetricsSection   `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// BackendSection configures the remote record store.
type BackendSection struct {
	// Endpoints are candidate base URLs in preference order.
	Endpoints []string `koanf:"endpoints" json:"endpoints" yaml:"endpoints"`

	AuthToken string `koanf:"auth_token" json:"auth_token,omitempty" yaml:"auth_token,omitempty"`

	// CAFile and CADir add trusted roots for self-hosted backends with a
	// private CA. System roots stay trusted.
	CAFile string `koanf:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	CADir  string `koanf:"ca_dir" json:"ca_dir,omitempty" yaml:"ca_dir,omitempty"`

	HealthPath       string        `koanf:"health_path" json:"health_path" yaml:"health_path"`
	HealthTimeout    time.Duration `koanf:"health_timeout" json:"health_timeout" yaml:"health_timeout"`
	HealthAttempts   int           `koanf:"health_attempts" json:"health_attempts" yaml:"health_attempts"`
	HealthRetryDelay time.Duration `koanf:"health_retry_delay" json:"health_retry_delay" yaml:"health_retry_delay"`

	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	RetryMax       int           `koanf:"retry_max" json:"retry_max" yaml:"retry_max"`

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `koanf:"rate_burst" json:"rate_burst" yaml:"rate_burst"`
}

// NetworkSection configures the connectivity pre-flight.
type NetworkSection struct {
	// ProbeURL is a well-known host; empty disables the probe.
	ProbeURL     string        `koanf:"probe_url" json:"probe_url" yaml:"probe_url"`
	ProbeTimeout time.Duration `koanf:"probe_timeout" json:"probe_timeout" yaml:"probe_timeout"`
}

// SyncSection configures the orchestrator.
type SyncSection struct {
	OperationTimeout time.Duration `koanf:"operation_timeout" json:"operation_timeout" yaml:"operation_timeout"`

	// Interval is the daemon tick.
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval"`

	// Cipher is "auto", "aes-gcm" or "chacha20-poly1305". It only affects
	// encoding; decoding follows the snapshot header.
	Cipher string `koanf:"cipher" json:"cipher" yaml:"cipher"`
}

// StorageSection configures local state.
type StorageSection struct {
	// Engine is "badger" or "memory".
	Engine  string `koanf:"engine" json:"engine" yaml:"engine"`
	DataDir string `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`

	// StateFile is the application state document. Empty means
	// <data_dir>/state.json.
	StateFile string `koanf:"state_file" json:"state_file" yaml:"state_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
	File   string `koanf:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

// TelemetrySection configures the user-facing journal.
type TelemetrySection struct {
	JournalCapacity   int    `koanf:"journal_capacity" json:"journal_capacity" yaml:"journal_capacity"`
	JournalFile       string `koanf:"journal_file" json:"journal_file,omitempty" yaml:"journal_file,omitempty"`
	JournalMaxSizeMB  int    `koanf:"journal_max_size_mb" json:"journal_max_size_mb" yaml:"journal_max_size_mb"`
	JournalMaxBackups int    `koanf:"journal_max_backups" json:"journal_max_backups" yaml:"journal_max_backups"`

	// ExportCount is how many journal entries ride along with a premium check.
	ExportCount int `koanf:"export_count" json:"export_count" yaml:"export_count"`
}

// MetricsSection configures the daemon's Prometheus endpoint.
type MetricsSection struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
}
