package domain

import "time"

// SnapshotRecord is one encrypted snapshot pushed by a device. Records are
// append-only: pull reads the newest by CreatedAt and nothing is ever updated.
type SnapshotRecord struct {
	ID          string    `json:"id,omitempty"`
	WorkspaceID string    `json:"workspace_id"`
	DeviceID    string    `json:"device_id"`
	Blob        string    `json:"snapshot_blob"`
	CreatedAt   time.Time `json:"created,omitempty"`
}

// PremiumRecord is a row of the premium entitlement collection.
type PremiumRecord struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	DeviceID  string `json:"device_id"`
	IsActive  bool   `json:"is_active"`
	PlanID    string `json:"plan_id"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// PremiumStatus is the result of an entitlement check. Record is nil unless
// IsPremium is true.
type PremiumStatus struct {
	IsPremium bool           `json:"is_premium"`
	Record    *PremiumRecord `json:"record,omitempty"`
}

// DebugLogExport is one diagnostic upload. Logs is the JSON encoding of the
// exported journal entries.
type DebugLogExport struct {
	DeviceID  string    `json:"device_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Logs      string    `json:"logs"`
}
