// Package domain defines the core domain models for meshsync.
//
// Domain models are pure value objects without any IO dependencies.
// This package contains:
//
//   - Workspace: shared sync group, invite code and shared key
//   - SnapshotRecord: one encrypted snapshot as stored remotely
//   - SyncIdentity: the resolved key scope of a sync operation
//   - SyncStatus: orchestrator state and its change tracker
//   - Errors: coded domain errors and their propagation helpers
package domain
