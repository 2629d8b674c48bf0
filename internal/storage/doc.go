// Package storage provides the local durable state of a meshsync install.
//
// Everything lives in an embedded KV engine (Badger on disk, or the
// in-memory engine in package memory):
//
//   - device/identity, device/salt: install identity, minted once
//   - synckey/workspace/<id>, synckey/device: cached sync keys
//   - prefs/*: premium flag, onboarding flag, username
//
// Files that other tools may want to read (the workspace id, the pending
// snapshot) live on the filesystem instead; see packages localfile and
// snapshot.
package storage
