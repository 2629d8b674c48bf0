// Package memory provides an in-memory KV engine for meshsync.
package memory

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/yndnr/meshsync/internal/storage"
	"github.com/yndnr/meshsync/pkg/cmap"
)

// Store implements storage.KVEngine on a sharded concurrent map. Values are
// copied on the way in and out, so callers may reuse their buffers.
type Store struct {
	items  *cmap.Map[[]byte]
	closed atomic.Bool

	// Counters for tests that need to assert on write traffic.
	sets    atomic.Int64
	deletes atomic.Int64
}

var _ storage.KVEngine = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{items: cmap.New[[]byte]()}
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	v, ok := s.items.Get(string(key))
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Set stores a key-value pair.
func (s *Store) Set(_ context.Context, key, value []byte) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	s.items.Set(string(key), bytes.Clone(value))
	s.sets.Add(1)
	return nil
}

// Delete removes a key.
func (s *Store) Delete(_ context.Context, key []byte) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	s.items.Delete(string(key))
	s.deletes.Add(1)
	return nil
}

// Scan iterates over keys with a given prefix in key order.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	for _, k := range s.items.KeysWithPrefix(string(prefix)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, ok := s.items.Get(k)
		if !ok {
			continue
		}
		if !fn([]byte(k), bytes.Clone(v)) {
			break
		}
	}
	return nil
}

// Stats returns the key count and the summed size of keys and values.
func (s *Store) Stats(_ context.Context) (*storage.KVStats, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	var size uint64
	s.items.Range(func(k string, v []byte) bool {
		size += uint64(len(k) + len(v))
		return true
	})
	return &storage.KVStats{
		TotalKeys: uint64(s.items.Count()),
		TotalSize: size,
	}, nil
}

// Close marks the store closed. Data is discarded.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.items.Clear()
	return nil
}

// Writes returns the number of Set and Delete calls seen so far.
func (s *Store) Writes() (sets, deletes int64) {
	return s.sets.Load(), s.deletes.Load()
}
