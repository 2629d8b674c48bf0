package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/pkg/keygen"
)

// deviceSaltSize is the size of the per-install HKDF salt.
const deviceSaltSize = 32

// KeyManager resolves sync keys. The remote workspace record is the
// authoritative copy of a workspace key; the local cache only saves round
// trips.
type KeyManager struct {
	keys   KeyStore
	remote WorkspaceBackend
	prefs  PrefStore
	logger *slog.Logger

	// mintKey returns a fresh 64-hex key; replaced in tests.
	mintKey func() (string, error)

	// mu serializes first-run minting of the device identity and salt.
	mu sync.Mutex
}

// NewKeyManager creates a KeyManager.
func NewKeyManager(keys KeyStore, remote WorkspaceBackend, prefs PrefStore, logger *slog.Logger) *KeyManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyManager{
		keys:    keys,
		remote:  remote,
		prefs:   prefs,
		logger:  logger,
		mintKey: keygen.GenerateHexKey,
	}
}

// WorkspaceKey returns the sync key of a workspace.
//
// A valid cached key is returned as is. Otherwise the workspace record is
// fetched and its shared key used; if that is missing or malformed a fresh
// key is minted and written to the record first. Every path that fetched
// remotely refreshes the cache.
func (m *KeyManager) WorkspaceKey(ctx context.Context, workspaceID string) (domain.SyncKey, error) {
	if workspaceID == "" {
		return "", domain.ErrInvalidArgument.WithDetails("workspace id is required")
	}

	cached, ok, err := m.keys.WorkspaceKey(ctx, workspaceID)
	if err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	if ok && cached.Valid() {
		return cached, nil
	}
	if ok {
		m.logger.Warn("cached workspace key is malformed, refetching", "workspace_id", workspaceID)
	}

	ws, err := m.remote.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	key := ws.SharedKey
	if !key.Valid() {
		key, err = m.mintWorkspaceKey(ctx, workspaceID)
		if err != nil {
			return "", err
		}
	}

	if err := m.keys.SetWorkspaceKey(ctx, workspaceID, key); err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	return key, nil
}

// mintWorkspaceKey writes a fresh key to the workspace record. If the record
// comes back with a different valid key (another device won the race) that
// key is used instead.
func (m *KeyManager) mintWorkspaceKey(ctx context.Context, workspaceID string) (domain.SyncKey, error) {
	raw, err := m.mintKey()
	if err != nil {
		return "", fmt.Errorf("mint workspace key: %w", err)
	}
	key := domain.SyncKey(raw)

	updated, err := m.remote.UpdateWorkspace(ctx, workspaceID, domain.WorkspaceUpdate{SharedKey: &key})
	if err != nil {
		return "", err
	}
	m.logger.Info("minted workspace key", "workspace_id", workspaceID, "key_fingerprint", keygen.Fingerprint(raw))

	if updated != nil && updated.SharedKey.Valid() {
		return updated.SharedKey, nil
	}
	return key, nil
}

// DeviceID returns this install's identity, minting and persisting it on
// first use. It is not gated on premium: workspace membership needs it.
func (m *KeyManager) DeviceID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceIDLocked(ctx)
}

func (m *KeyManager) deviceIDLocked(ctx context.Context) (string, error) {
	id, ok, err := m.keys.DeviceIdentity(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = keygen.NewDeviceIdentity()
	if err := m.keys.SetDeviceIdentity(ctx, id); err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	m.logger.Info("created device identity", "device_id", id)
	return id, nil
}

// GenerateDeviceKey returns the device-scoped key used when no workspace is
// configured. It fails with ErrPremiumRequired when the entitlement flag is
// off.
func (m *KeyManager) GenerateDeviceKey(ctx context.Context) (domain.SyncKey, error) {
	premium, err := m.prefs.Premium(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	if !premium {
		return "", domain.ErrPremiumRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok, err := m.keys.DeviceKey(ctx); err != nil {
		return "", domain.ErrStorage.WithCause(err)
	} else if ok && key.Valid() {
		return key, nil
	}

	identity, err := m.deviceIDLocked(ctx)
	if err != nil {
		return "", err
	}
	salt, err := m.deviceSaltLocked(ctx)
	if err != nil {
		return "", err
	}

	key, err := snapshot.DeriveDeviceKey(identity, salt)
	if err != nil {
		return "", fmt.Errorf("derive device key: %w", err)
	}
	if err := m.keys.SetDeviceKey(ctx, key); err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	return key, nil
}

func (m *KeyManager) deviceSaltLocked(ctx context.Context) ([]byte, error) {
	salt, ok, err := m.keys.DeviceSalt(ctx)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if ok && len(salt) == deviceSaltSize {
		return salt, nil
	}
	salt, err = keygen.GenerateBytes(deviceSaltSize)
	if err != nil {
		return nil, fmt.Errorf("generate device salt: %w", err)
	}
	if err := m.keys.SetDeviceSalt(ctx, salt); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return salt, nil
}

// CheckKeySync compares the cached workspace key with the remote one and
// reports whether they matched. On mismatch the remote key always wins and
// is written into the cache; the local key is never pushed. A remote record
// without a valid key reports false and leaves the cache alone.
func (m *KeyManager) CheckKeySync(ctx context.Context, workspaceID string) (bool, error) {
	ws, err := m.remote.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	cached, ok, err := m.keys.WorkspaceKey(ctx, workspaceID)
	if err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}

	if !ws.SharedKey.Valid() {
		return false, nil
	}
	if ok && keygen.Equal(string(cached), string(ws.SharedKey)) {
		return true, nil
	}

	m.logger.Warn("local workspace key out of sync, adopting remote key",
		"workspace_id", workspaceID, "key_fingerprint", keygen.Fingerprint(string(ws.SharedKey)))
	if err := m.keys.SetWorkspaceKey(ctx, workspaceID, ws.SharedKey); err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}
	return false, nil
}

// ResolveIdentity picks the key scope for one sync operation: the workspace
// key when workspaceID is set, the device key otherwise.
func (m *KeyManager) ResolveIdentity(ctx context.Context, workspaceID string) (domain.SyncIdentity, error) {
	deviceID, err := m.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	if workspaceID == "" {
		key, err := m.GenerateDeviceKey(ctx)
		if err != nil {
			return nil, err
		}
		return domain.DeviceIdentity{DeviceID: deviceID, Key: key}, nil
	}
	key, err := m.WorkspaceKey(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return domain.WorkspaceIdentity{WorkspaceID: workspaceID, DeviceID: deviceID, Key: key}, nil
}
