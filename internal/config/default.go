package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values.
const (
	DefaultHealthPath       = "/api/health"
	DefaultHealthTimeout    = 3 * time.Second
	DefaultHealthAttempts   = 2
	DefaultHealthRetryDelay = 400 * time.Millisecond
	DefaultRequestTimeout   = 30 * time.Second
	DefaultRetryMax         = 2
	DefaultRateLimit        = 10
	DefaultRateBurst        = 20

	DefaultProbeURL     = "https://www.google.com"
	DefaultProbeTimeout = 3 * time.Second

	DefaultOperationTimeout = 30 * time.Second
	DefaultSyncInterval     = 5 * time.Minute
	DefaultCipher           = "auto"

	DefaultEngine        = "badger"
	DefaultStateFileName = "state.json"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultJournalCapacity   = 500
	DefaultJournalMaxSizeMB  = 10
	DefaultJournalMaxBackups = 3
	DefaultExportCount       = 20
)

// DefaultDataDir returns ~/.meshsync, or .meshsync in the working directory
// when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".meshsync"
	}
	return filepath.Join(home, ".meshsync")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendSection{
			HealthPath:       DefaultHealthPath,
			HealthTimeout:    DefaultHealthTimeout,
			HealthAttempts:   DefaultHealthAttempts,
			HealthRetryDelay: DefaultHealthRetryDelay,
			RequestTimeout:   DefaultRequestTimeout,
			RetryMax:         DefaultRetryMax,
			RateLimit:        DefaultRateLimit,
			RateBurst:        DefaultRateBurst,
		},
		Network: NetworkSection{
			ProbeURL:     DefaultProbeURL,
			ProbeTimeout: DefaultProbeTimeout,
		},
		Sync: SyncSection{
			OperationTimeout: DefaultOperationTimeout,
			Interval:         DefaultSyncInterval,
			Cipher:           DefaultCipher,
		},
		Storage: StorageSection{
			Engine:  DefaultEngine,
			DataDir: DefaultDataDir(),
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			JournalCapacity:   DefaultJournalCapacity,
			JournalMaxSizeMB:  DefaultJournalMaxSizeMB,
			JournalMaxBackups: DefaultJournalMaxBackups,
			ExportCount:       DefaultExportCount,
		},
	}
}

// StatePath returns the state document path.
func (c *Config) StatePath() string {
	if c.Storage.StateFile != "" {
		return c.Storage.StateFile
	}
	return filepath.Join(c.Storage.DataDir, DefaultStateFileName)
}
