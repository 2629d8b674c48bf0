package config

import (
	"path/filepath"

	"github.com/yndnr/meshsync/internal/storage"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
	"github.com/yndnr/meshsync/internal/telemetry/logger"
	"github.com/yndnr/meshsync/internal/transport"
	"github.com/yndnr/meshsync/pkg/crypto/adaptive"
)

// TransportConfig returns the backend client settings.
func (c *Config) TransportConfig() transport.Config {
	tc := transport.DefaultConfig()
	tc.Endpoints = append([]string(nil), c.Backend.Endpoints...)
	tc.AuthToken = c.Backend.AuthToken
	tc.HealthPath = c.Backend.HealthPath
	tc.HealthTimeout = c.Backend.HealthTimeout
	tc.HealthAttempts = c.Backend.HealthAttempts
	tc.HealthRetryDelay = c.Backend.HealthRetryDelay
	tc.RequestTimeout = c.Backend.RequestTimeout
	tc.RetryMax = c.Backend.RetryMax
	tc.RateLimit = c.Backend.RateLimit
	tc.RateBurst = c.Backend.RateBurst
	tc.ProbeURL = c.Network.ProbeURL
	tc.ProbeTimeout = c.Network.ProbeTimeout
	return tc
}

// LoggerConfig returns the structured logger settings.
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	lc.File = c.Log.File
	return lc
}

// JournalConfig returns the journal settings.
func (c *Config) JournalConfig() journal.Config {
	return journal.Config{
		Capacity:   c.Telemetry.JournalCapacity,
		File:       c.Telemetry.JournalFile,
		MaxSizeMB:  c.Telemetry.JournalMaxSizeMB,
		MaxBackups: c.Telemetry.JournalMaxBackups,
	}
}

// KVConfig returns the embedded KV settings. The Badger files live in
// <data_dir>/kv.
func (c *Config) KVConfig() storage.KVConfig {
	kc := storage.DefaultKVConfig(filepath.Join(c.Storage.DataDir, "kv"))
	kc.Engine = c.Storage.Engine
	return kc
}

// CipherType returns the snapshot cipher. Verify has already rejected
// unknown names.
func (c *Config) CipherType() adaptive.CipherType {
	t, err := adaptive.ParseCipherType(c.Sync.Cipher)
	if err != nil {
		return adaptive.Preferred()
	}
	return t
}
