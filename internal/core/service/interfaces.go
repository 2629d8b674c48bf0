package service

import (
	"context"
	"time"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
)

// WorkspaceBackend is the remote workspace collection.
type WorkspaceBackend interface {
	CreateWorkspace(ctx context.Context, ws domain.Workspace) (*domain.Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error)
	UpdateWorkspace(ctx context.Context, id string, upd domain.WorkspaceUpdate) (*domain.Workspace, error)
}

// SnapshotBackend is the remote append-only snapshot collection.
type SnapshotBackend interface {
	PushSnapshotRecord(ctx context.Context, workspaceID, deviceID, blob string) (*domain.SnapshotRecord, error)

	// PullLatestSnapshotRecord returns nil, nil when the workspace has no snapshot.
	PullLatestSnapshotRecord(ctx context.Context, workspaceID string) (*domain.SnapshotRecord, error)
}

// PremiumBackend is the remote entitlement and diagnostics surface.
type PremiumBackend interface {
	FindActivePremium(ctx context.Context, username, deviceID string) (*domain.PremiumRecord, error)
	ExportDebugLogs(ctx context.Context, deviceID, username string, entries any) error
}

// Connectivity answers the cheap network pre-flight.
type Connectivity interface {
	CheckNetworkConnectivity(ctx context.Context) bool
}

// KeyStore is the local key cache (storage.KeyCache).
type KeyStore interface {
	WorkspaceKey(ctx context.Context, workspaceID string) (domain.SyncKey, bool, error)
	SetWorkspaceKey(ctx context.Context, workspaceID string, key domain.SyncKey) error
	DeviceKey(ctx context.Context) (domain.SyncKey, bool, error)
	SetDeviceKey(ctx context.Context, key domain.SyncKey) error
	DeviceIdentity(ctx context.Context) (string, bool, error)
	SetDeviceIdentity(ctx context.Context, identity string) error
	DeviceSalt(ctx context.Context) ([]byte, bool, error)
	SetDeviceSalt(ctx context.Context, salt []byte) error
}

// PrefStore is the local preference store (storage.Prefs).
type PrefStore interface {
	Premium(ctx context.Context) (bool, error)
	SetPremium(ctx context.Context, v bool) error
	OnboardingComplete(ctx context.Context) (bool, error)
	Username(ctx context.Context) (string, error)
	SetUsername(ctx context.Context, username string) error
}

// WorkspaceIDStore persists the paired workspace id (localfile.WorkspaceFile).
type WorkspaceIDStore interface {
	Read() (id string, ok bool, err error)
	Write(id string) error
	Clear() error
}

// PendingStore holds the last encoded snapshot awaiting push
// (snapshot.PendingCache). Load returns snapshot.ErrNoPending when empty.
type PendingStore interface {
	Save(p snapshot.Pending) error
	Load() (*snapshot.Pending, error)
	Clear() error
}

// SnapshotCodec encodes and decodes snapshot blobs (snapshot.Codec).
type SnapshotCodec interface {
	Encode(state any, key domain.SyncKey) (string, error)
	Decode(blob string, key domain.SyncKey) (any, error)
}

// StateAggregator is the collaborator that owns the application's local
// stores. Both calls must succeed for any previously encoded snapshot.
type StateAggregator interface {
	GetAllStoreStates() (any, error)
	HydrateAll(state any) error
}

// Journal is the user-visible activity log (journal.Journal).
type Journal interface {
	Add(message string, status journal.Status, details any) journal.Entry
	Recent(n int) []journal.Entry
}

// Metrics receives sync measurements (metric.Registry). May be nil.
type Metrics interface {
	ObserveSync(op, outcome string, d time.Duration)
	ObserveSnapshot(direction string, size int)
	SetPending(pending bool)
}
