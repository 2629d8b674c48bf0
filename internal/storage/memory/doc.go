// Package memory provides an in-memory KV engine for meshsync.
//
// It implements storage.KVEngine on top of pkg/cmap and is used by tests and
// by the `storage.engine: memory` setting for throwaway installs.
//
// Thread Safety:
//
// All operations are thread-safe through per-shard locking.
package memory
