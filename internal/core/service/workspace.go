package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/pkg/keygen"
)

// JoinResult is returned by CreateOrJoin.
type JoinResult struct {
	ID         string `json:"id"`
	InviteCode string `json:"invite_code"`
	Created    bool   `json:"created"`
}

// WorkspaceManager creates, joins and tracks the workspace this device is
// paired with.
type WorkspaceManager struct {
	remote  WorkspaceBackend
	local   WorkspaceIDStore
	pending PendingStore
	keys    *KeyManager
	logger  *slog.Logger

	// mintCode returns a fresh invite code; replaced in tests.
	mintCode func() (string, error)
}

// NewWorkspaceManager creates a WorkspaceManager. pending may be nil.
func NewWorkspaceManager(remote WorkspaceBackend, local WorkspaceIDStore, pending PendingStore, keys *KeyManager, logger *slog.Logger) *WorkspaceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkspaceManager{
		remote:   remote,
		local:    local,
		pending:  pending,
		keys:     keys,
		logger:   logger,
		mintCode: keygen.GenerateInviteCode,
	}
}

// CreateOrJoin joins workspaceID when both arguments are given, or creates a
// new workspace owned by this device when neither is. A wrong invite code
// fails with ErrInvalidInviteCode before anything is written.
func (w *WorkspaceManager) CreateOrJoin(ctx context.Context, workspaceID, inviteCode string) (JoinResult, error) {
	switch {
	case workspaceID != "" && inviteCode != "":
		return w.join(ctx, workspaceID, inviteCode)
	case workspaceID == "" && inviteCode == "":
		return w.create(ctx)
	default:
		return JoinResult{}, domain.ErrInvalidArgument.WithDetails("workspace id and invite code must be given together")
	}
}

func (w *WorkspaceManager) join(ctx context.Context, workspaceID, inviteCode string) (JoinResult, error) {
	ws, err := w.remote.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return JoinResult{}, err
	}
	if !ws.MatchInviteCode(inviteCode) {
		w.logger.Warn("join rejected: invite code mismatch", "workspace_id", workspaceID)
		return JoinResult{}, domain.ErrInvalidInviteCode
	}

	deviceID, err := w.keys.DeviceID(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if _, err := w.register(ctx, ws, deviceID); err != nil {
		return JoinResult{}, err
	}
	if err := w.local.Write(ws.ID); err != nil {
		return JoinResult{}, domain.ErrStorage.WithCause(err)
	}

	w.logger.Info("joined workspace", "workspace_id", ws.ID, "device_id", deviceID)
	return JoinResult{ID: ws.ID, InviteCode: ws.InviteCode}, nil
}

func (w *WorkspaceManager) create(ctx context.Context) (JoinResult, error) {
	deviceID, err := w.keys.DeviceID(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	code, err := w.mintCode()
	if err != nil {
		return JoinResult{}, fmt.Errorf("mint invite code: %w", err)
	}

	ws, err := w.remote.CreateWorkspace(ctx, domain.Workspace{
		OwnerDeviceID: deviceID,
		DeviceIDs:     []string{deviceID},
		InviteCode:    code,
	})
	if err != nil {
		return JoinResult{}, err
	}
	if err := w.local.Write(ws.ID); err != nil {
		return JoinResult{}, domain.ErrStorage.WithCause(err)
	}

	w.logger.Info("created workspace", "workspace_id", ws.ID, "device_id", deviceID)
	return JoinResult{ID: ws.ID, InviteCode: code, Created: true}, nil
}

// CurrentWorkspaceID returns the paired workspace id. Not being paired is a
// normal state: ok is false and err is nil.
func (w *WorkspaceManager) CurrentWorkspaceID(ctx context.Context) (string, bool, error) {
	id, ok, err := w.local.Read()
	if err != nil {
		return "", false, domain.ErrStorage.WithCause(err)
	}
	return id, ok, nil
}

// RegisterDevice adds deviceID to the workspace's member list. The list is
// normalized first and written back only if it changed.
func (w *WorkspaceManager) RegisterDevice(ctx context.Context, workspaceID, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, domain.ErrInvalidArgument.WithDetails("device id is required")
	}
	ws, err := w.remote.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	return w.register(ctx, ws, deviceID)
}

func (w *WorkspaceManager) register(ctx context.Context, ws *domain.Workspace, deviceID string) (bool, error) {
	ids := domain.NormalizeDeviceIDs(ws.DeviceIDs)
	present := false
	for _, id := range ids {
		if id == deviceID {
			present = true
			break
		}
	}
	if !present {
		ids = append(ids, deviceID)
	}
	if !sliceChanged(ws.DeviceIDs, ids) {
		return false, nil
	}

	if _, err := w.remote.UpdateWorkspace(ctx, ws.ID, domain.WorkspaceUpdate{DeviceIDs: &ids}); err != nil {
		return false, err
	}
	w.logger.Debug("workspace device list updated", "workspace_id", ws.ID, "devices", len(ids))
	return true, nil
}

// Leave unpairs this device locally: the workspace id and any pending
// snapshot are removed. The remote member list is left alone.
func (w *WorkspaceManager) Leave(ctx context.Context) error {
	id, ok, err := w.CurrentWorkspaceID(ctx)
	if err != nil {
		return err
	}
	if w.pending != nil {
		if err := w.pending.Clear(); err != nil && !errors.Is(err, snapshot.ErrNoPending) {
			return domain.ErrStorage.WithCause(err)
		}
	}
	if err := w.local.Clear(); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	if ok {
		w.logger.Info("left workspace", "workspace_id", id)
	}
	return nil
}

// Workspace fetches the paired workspace record.
func (w *WorkspaceManager) Workspace(ctx context.Context) (*domain.Workspace, error) {
	id, ok, err := w.CurrentWorkspaceID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoWorkspaceConfigured
	}
	return w.remote.GetWorkspace(ctx, id)
}

func sliceChanged(a, b []string) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}
