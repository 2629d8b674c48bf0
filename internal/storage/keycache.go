package storage

import (
	"context"
	"errors"

	"github.com/yndnr/meshsync/internal/core/domain"
)

// Key namespaces.
const (
	workspaceKeyPrefix = "synckey/workspace/"
	deviceKeyName      = "synckey/device"
	deviceIdentityName = "device/identity"
	deviceSaltName     = "device/salt"
)

// KeyCache is the local cache of sync keys and the device identity.
// Cached keys are returned as stored; validating them is the caller's job.
type KeyCache struct {
	kv KVEngine
}

// NewKeyCache creates a key cache on kv.
func NewKeyCache(kv KVEngine) *KeyCache {
	return &KeyCache{kv: kv}
}

// WorkspaceKey returns the cached key for a workspace. ok is false when no
// entry exists.
func (c *KeyCache) WorkspaceKey(ctx context.Context, workspaceID string) (key domain.SyncKey, ok bool, err error) {
	v, ok, err := c.get(ctx, workspaceKeyPrefix+workspaceID)
	return domain.SyncKey(v), ok, err
}

// SetWorkspaceKey caches the key for a workspace.
func (c *KeyCache) SetWorkspaceKey(ctx context.Context, workspaceID string, key domain.SyncKey) error {
	return c.kv.Set(ctx, []byte(workspaceKeyPrefix+workspaceID), []byte(key))
}

// DeleteWorkspaceKey drops the cached key for a workspace.
func (c *KeyCache) DeleteWorkspaceKey(ctx context.Context, workspaceID string) error {
	return c.kv.Delete(ctx, []byte(workspaceKeyPrefix+workspaceID))
}

// WorkspaceIDs lists workspaces that have a cached key.
func (c *KeyCache) WorkspaceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.kv.Scan(ctx, []byte(workspaceKeyPrefix), func(k, _ []byte) bool {
		ids = append(ids, string(k[len(workspaceKeyPrefix):]))
		return true
	})
	return ids, err
}

// DeviceKey returns the cached device-scoped key.
func (c *KeyCache) DeviceKey(ctx context.Context) (domain.SyncKey, bool, error) {
	v, ok, err := c.get(ctx, deviceKeyName)
	return domain.SyncKey(v), ok, err
}

// SetDeviceKey caches the device-scoped key.
func (c *KeyCache) SetDeviceKey(ctx context.Context, key domain.SyncKey) error {
	return c.kv.Set(ctx, []byte(deviceKeyName), []byte(key))
}

// DeviceIdentity returns the persisted install identity.
func (c *KeyCache) DeviceIdentity(ctx context.Context) (string, bool, error) {
	return c.get(ctx, deviceIdentityName)
}

// SetDeviceIdentity persists the install identity.
func (c *KeyCache) SetDeviceIdentity(ctx context.Context, identity string) error {
	return c.kv.Set(ctx, []byte(deviceIdentityName), []byte(identity))
}

// DeviceSalt returns the per-install salt used for device key derivation.
func (c *KeyCache) DeviceSalt(ctx context.Context) ([]byte, bool, error) {
	v, err := c.kv.Get(ctx, []byte(deviceSaltName))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// SetDeviceSalt persists the per-install salt.
func (c *KeyCache) SetDeviceSalt(ctx context.Context, salt []byte) error {
	return c.kv.Set(ctx, []byte(deviceSaltName), salt)
}

func (c *KeyCache) get(ctx context.Context, name string) (string, bool, error) {
	v, err := c.kv.Get(ctx, []byte(name))
	if errors.Is(err, ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}
