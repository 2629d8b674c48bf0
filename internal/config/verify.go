package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yndnr/meshsync/pkg/crypto/adaptive"
)

// Verify validates the configuration. It does not touch the filesystem.
func Verify(cfg *Config) error {
	return errors.Join(
		verifyBackend(&cfg.Backend),
		verifyNetwork(&cfg.Network),
		verifySync(&cfg.Sync),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
		verifyTelemetry(&cfg.Telemetry),
	)
}

func verifyBackend(cfg *BackendSection) error {
	var errs []error
	for _, ep := range cfg.Endpoints {
		raw := strings.TrimSpace(ep)
		if raw == "" {
			errs = append(errs, errors.New("backend.endpoints: empty entry"))
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend.endpoints: invalid URL %q", ep))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("backend.endpoints: unsupported scheme %q", u.Scheme))
		}
	}
	if !strings.HasPrefix(cfg.HealthPath, "/") {
		errs = append(errs, errors.New("backend.health_path must start with /"))
	}
	if cfg.HealthTimeout <= 0 {
		errs = append(errs, errors.New("backend.health_timeout must be positive"))
	}
	if cfg.HealthAttempts < 1 {
		errs = append(errs, errors.New("backend.health_attempts must be at least 1"))
	}
	if cfg.HealthRetryDelay < 0 {
		errs = append(errs, errors.New("backend.health_retry_delay must not be negative"))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, errors.New("backend.request_timeout must be positive"))
	}
	if cfg.RetryMax < 0 {
		errs = append(errs, errors.New("backend.retry_max must not be negative"))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, errors.New("backend.rate_limit must not be negative"))
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		errs = append(errs, errors.New("backend.rate_burst must be at least 1 when rate_limit is set"))
	}
	return errors.Join(errs...)
}

func verifyNetwork(cfg *NetworkSection) error {
	if cfg.ProbeURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.ProbeURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("network.probe_url: invalid URL %q", cfg.ProbeURL)
	}
	if cfg.ProbeTimeout <= 0 {
		return errors.New("network.probe_timeout must be positive")
	}
	return nil
}

func verifySync(cfg *SyncSection) error {
	var errs []error
	if cfg.OperationTimeout <= 0 {
		errs = append(errs, errors.New("sync.operation_timeout must be positive"))
	}
	if cfg.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if _, err := adaptive.ParseCipherType(cfg.Cipher); err != nil {
		errs = append(errs, fmt.Errorf("sync.cipher: %w", err))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	var errs []error
	switch cfg.Engine {
	case "badger", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.engine: unknown engine %q", cfg.Engine))
	}
	if cfg.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", cfg.Format))
	}
	return errors.Join(errs...)
}

func verifyTelemetry(cfg *TelemetrySection) error {
	var errs []error
	if cfg.JournalCapacity < 1 {
		errs = append(errs, errors.New("telemetry.journal_capacity must be at least 1"))
	}
	if cfg.ExportCount < 0 {
		errs = append(errs, errors.New("telemetry.export_count must not be negative"))
	}
	return errors.Join(errs...)
}
