// Package service holds the meshsync domain services.
//
//   - KeyManager: device identity, workspace and device sync keys
//   - WorkspaceManager: create, join and leave workspaces
//   - PremiumVerifier: entitlement checks and diagnostic export
//   - Orchestrator: push, pull and retry of encrypted snapshots
//
// Services depend only on the interfaces in interfaces.go. The transport
// package satisfies the remote ones; the storage packages satisfy the local
// ones.
package service
