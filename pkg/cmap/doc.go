// Package cmap provides a concurrent map with string keys.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard has its own RWMutex.
//
// Usage:
//
//	m := cmap.New[[]byte]()
//	m.Set("prefs/premium", []byte("true"))
//	val, ok := m.Get("prefs/premium")
//
// Range and KeysWithPrefix lock one shard at a time, so concurrent writers
// may or may not be observed.
package cmap
