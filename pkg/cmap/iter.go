package cmap

import (
	"sort"
	"strings"
)

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration.
// Locks are taken shard by shard, so the view may not be consistent.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys in unspecified order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// KeysWithPrefix returns the keys that start with prefix, sorted.
func (m *Map[V]) KeysWithPrefix(prefix string) []string {
	var keys []string
	m.Range(func(key string, _ V) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

// Update atomically replaces the value for key with fn's result.
func (m *Map[V]) Update(key string, fn func(value V, exists bool) V) V {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.items[key]
	newValue := fn(existing, exists)
	s.items[key] = newValue
	return newValue
}

// SetIfAbsent sets the value only if the key does not exist.
// Returns true if the value was set.
func (m *Map[V]) SetIfAbsent(key string, value V) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value
	return true
}

// Pop removes a key and returns its value.
func (m *Map[V]) Pop(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return val, ok
}
