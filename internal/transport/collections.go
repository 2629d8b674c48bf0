package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/meshsync/internal/core/domain"
)

// Backend collections.
const (
	CollectionWorkspaces = "sync_workspaces"
	CollectionSnapshots  = "registry_snapshots"
	CollectionPremium    = "premium_users"
	CollectionDebugLogs  = "debug_logs"
)

func recordsPath(collection string) string {
	return "/api/collections/" + collection + "/records"
}

func recordPath(collection, id string) string {
	return recordsPath(collection) + "/" + url.PathEscape(id)
}

// listResponse is the paginated list envelope.
type listResponse[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	Items      []T `json:"items"`
}

// quote renders a filter string literal.
func quote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Timestamps come back as "2006-01-02 15:04:05.000Z"; RFC 3339 is accepted too.
var timeLayouts = []string{
	"2006-01-02 15:04:05.000Z",
	"2006-01-02 15:04:05Z",
	time.RFC3339Nano,
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// snapshotWire is the snapshot record as the backend stores it.
type snapshotWire struct {
	ID          string `json:"id,omitempty"`
	WorkspaceID string `json:"workspace_id"`
	DeviceID    string `json:"device_id"`
	Blob        string `json:"snapshot_blob"`
	Created     string `json:"created,omitempty"`
}

func (w snapshotWire) record() *domain.SnapshotRecord {
	return &domain.SnapshotRecord{
		ID:          w.ID,
		WorkspaceID: w.WorkspaceID,
		DeviceID:    w.DeviceID,
		Blob:        w.Blob,
		CreatedAt:   parseTime(w.Created),
	}
}

// PushSnapshotRecord appends a snapshot. The backend assigns id and created.
func (c *Client) PushSnapshotRecord(ctx context.Context, workspaceID, deviceID, blob string) (*domain.SnapshotRecord, error) {
	in := snapshotWire{WorkspaceID: workspaceID, DeviceID: deviceID, Blob: blob}
	var out snapshotWire
	if err := c.do(ctx, http.MethodPost, CollectionSnapshots, recordsPath(CollectionSnapshots), nil, in, &out); err != nil {
		return nil, fmt.Errorf("push snapshot: %w", err)
	}
	return out.record(), nil
}

// PullLatestSnapshotRecord returns the newest snapshot of a workspace, or nil
// when the workspace has none.
func (c *Client) PullLatestSnapshotRecord(ctx context.Context, workspaceID string) (*domain.SnapshotRecord, error) {
	q := url.Values{}
	q.Set("filter", "(workspace_id="+quote(workspaceID)+")")
	q.Set("sort", "-created")
	q.Set("perPage", "1")
	q.Set("skipTotal", "1")

	var list listResponse[snapshotWire]
	if err := c.do(ctx, http.MethodGet, CollectionSnapshots, recordsPath(CollectionSnapshots), q, nil, &list); err != nil {
		return nil, fmt.Errorf("pull snapshot: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	return list.Items[0].record(), nil
}

// CreateWorkspace creates a workspace record and returns it with its id.
func (c *Client) CreateWorkspace(ctx context.Context, ws domain.Workspace) (*domain.Workspace, error) {
	ws.ID = ""
	ws.DeviceIDs = domain.NormalizeDeviceIDs(ws.DeviceIDs)
	var out domain.Workspace
	if err := c.do(ctx, http.MethodPost, CollectionWorkspaces, recordsPath(CollectionWorkspaces), nil, ws, &out); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &out, nil
}

// GetWorkspace fetches a workspace. A missing workspace is ErrWorkspaceNotFound.
func (c *Client) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	var out domain.Workspace
	if err := c.do(ctx, http.MethodGet, CollectionWorkspaces, recordPath(CollectionWorkspaces, id), nil, nil, &out); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrWorkspaceNotFound.WithDetails(id).WithCause(err)
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &out, nil
}

// UpdateWorkspace patches the given fields and returns the stored record.
func (c *Client) UpdateWorkspace(ctx context.Context, id string, upd domain.WorkspaceUpdate) (*domain.Workspace, error) {
	var out domain.Workspace
	if err := c.do(ctx, http.MethodPatch, CollectionWorkspaces, recordPath(CollectionWorkspaces, id), nil, upd, &out); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrWorkspaceNotFound.WithDetails(id).WithCause(err)
		}
		return nil, fmt.Errorf("update workspace: %w", err)
	}
	return &out, nil
}

// FindActivePremium returns the active premium record for username (and
// deviceID when non-empty). No match is ErrRecordNotFound.
func (c *Client) FindActivePremium(ctx context.Context, username, deviceID string) (*domain.PremiumRecord, error) {
	filter := "username=" + quote(username) + " && is_active=true"
	if deviceID != "" {
		filter += " && device_id=" + quote(deviceID)
	}
	q := url.Values{}
	q.Set("filter", "("+filter+")")
	q.Set("perPage", "1")
	q.Set("skipTotal", "1")

	var list listResponse[domain.PremiumRecord]
	if err := c.do(ctx, http.MethodGet, CollectionPremium, recordsPath(CollectionPremium), q, nil, &list); err != nil {
		return nil, fmt.Errorf("find premium: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, domain.ErrRecordNotFound.WithDetails("no active premium record")
	}
	return &list.Items[0], nil
}

// ExportDebugLogs uploads journal entries for remote diagnosis. entries is
// JSON-encoded into the record's logs field.
func (c *Client) ExportDebugLogs(ctx context.Context, deviceID, username string, entries any) error {
	logs, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	rec := domain.DebugLogExport{
		DeviceID:  deviceID,
		Username:  username,
		Timestamp: time.Now().UTC(),
		Logs:      string(logs),
	}
	if err := c.do(ctx, http.MethodPost, CollectionDebugLogs, recordsPath(CollectionDebugLogs), nil, rec, nil); err != nil {
		return fmt.Errorf("export logs: %w", err)
	}
	return nil
}

// BestEffortExport calls ExportDebugLogs and only logs a failure.
func (c *Client) BestEffortExport(ctx context.Context, deviceID, username string, entries any) {
	if err := c.ExportDebugLogs(ctx, deviceID, username, entries); err != nil {
		c.logger.Debug("debug log export failed", "error", err)
	}
}
