package domain

// IdentityKind distinguishes the two ways a snapshot key can be scoped.
type IdentityKind int

const (
	// IdentityDevice is used when no workspace is configured.
	IdentityDevice IdentityKind = iota + 1

	// IdentityWorkspace is used by every member of a workspace.
	IdentityWorkspace
)

// String implements fmt.Stringer.
func (k IdentityKind) String() string {
	switch k {
	case IdentityDevice:
		return "device"
	case IdentityWorkspace:
		return "workspace"
	default:
		return "unknown"
	}
}

// SyncIdentity is the resolved key scope of a single sync operation. It is
// either a DeviceIdentity or a WorkspaceIdentity.
type SyncIdentity interface {
	Kind() IdentityKind
	SyncKey() SyncKey
	Device() string
}

// DeviceIdentity scopes the key to this install.
type DeviceIdentity struct {
	DeviceID string
	Key      SyncKey
}

// Kind implements SyncIdentity.
func (d DeviceIdentity) Kind() IdentityKind { return IdentityDevice }

// SyncKey implements SyncIdentity.
func (d DeviceIdentity) SyncKey() SyncKey { return d.Key }

// Device implements SyncIdentity.
func (d DeviceIdentity) Device() string { return d.DeviceID }

// WorkspaceIdentity scopes the key to a shared workspace.
type WorkspaceIdentity struct {
	WorkspaceID string
	DeviceID    string
	Key         SyncKey
}

// Kind implements SyncIdentity.
func (w WorkspaceIdentity) Kind() IdentityKind { return IdentityWorkspace }

// SyncKey implements SyncIdentity.
func (w WorkspaceIdentity) SyncKey() SyncKey { return w.Key }

// Device implements SyncIdentity.
func (w WorkspaceIdentity) Device() string { return w.DeviceID }
