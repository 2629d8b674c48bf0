// Package storage provides the local durable state of a meshsync install.
package storage

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// KVEngine defines the interface for embedded key-value storage.
//
// It holds the device identity, cached sync keys and preferences. Engines
// must be safe for concurrent use.
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan iterates over keys with a given prefix in key order.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Stats returns storage statistics.
	Stats(ctx context.Context) (*KVStats, error)

	// Close gracefully shuts down the KV engine.
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalKeys is the approximate number of keys (0 when unknown).
	TotalKeys uint64

	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size (Badger).
	LSMSize uint64

	// ValueLogSize is the value log size (Badger).
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCRuns counts value log rewrites performed by GC.
	GCRuns uint64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Engine specifies the KV engine type ("badger" or "memory").
	// Default: "badger"
	Engine string

	// Dir is the storage directory.
	Dir string

	// Badger-specific configuration
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters. The defaults are
// sized for a small single-user store rather than a server.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 8MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// SyncWrites enables fsync after each write.
	// Default: true (keys must survive a crash right after minting)
	SyncWrites bool
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Engine: "badger",
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        8 << 20,  // 8MB
		ValueLogFileSize: 64 << 20, // 64MB
		SyncWrites:       true,
	}
}
