package domain

import (
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Workspace constraints.
const (
	// SyncKeyLength is the length of a hex-encoded sync key (32 bytes).
	SyncKeyLength = 64

	// InviteCodeLength is the length of a workspace invite code.
	InviteCodeLength = 8

	// InviteCodeAlphabet lists the characters an invite code is drawn from.
	InviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SyncKey is hex-encoded 32-byte symmetric key material.
type SyncKey string

// Valid reports whether the key is exactly 64 lowercase hex characters.
func (k SyncKey) Valid() bool {
	if len(k) != SyncKeyLength {
		return false
	}
	for i := 0; i < len(k); i++ {
		if !isLowerHex(k[i]) {
			return false
		}
	}
	return true
}

// Bytes decodes the key into its 32 raw bytes.
func (k SyncKey) Bytes() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrInvalidKey
	}
	b, err := hex.DecodeString(string(k))
	if err != nil {
		return nil, ErrInvalidKey.WithCause(err)
	}
	return b, nil
}

// String masks the key so it never lands in logs by accident.
func (k SyncKey) String() string {
	if len(k) <= 8 {
		return "****"
	}
	return string(k[:4]) + "****" + string(k[len(k)-4:])
}

// LogValue implements slog.LogValuer with the masked form.
func (k SyncKey) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

func isLowerHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// Workspace is a shared sync group: a growing set of authorized devices, an
// invite code that gates joining, and the shared snapshot key.
type Workspace struct {
	// ID is assigned by the backend.
	ID string `json:"id"`

	// OwnerDeviceID is the device that created the workspace.
	OwnerDeviceID string `json:"owner_device_id"`

	// DeviceIDs lists member devices. Only ever grows.
	DeviceIDs []string `json:"device_ids"`

	// InviteCode is 8 uppercase alphanumeric characters.
	InviteCode string `json:"invite_code"`

	// SharedKey is empty until first minted.
	SharedKey SyncKey `json:"shared_key,omitempty"`
}

// HasDevice reports whether deviceID is a member.
func (w *Workspace) HasDevice(deviceID string) bool {
	for _, id := range w.DeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}

// MatchInviteCode compares code against the stored invite code. The comparison
// is exact: no trimming, no case folding.
func (w *Workspace) MatchInviteCode(code string) bool {
	if len(code) != len(w.InviteCode) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(w.InviteCode)) == 1
}

// WorkspaceUpdate is a partial workspace update. Nil fields are left untouched.
type WorkspaceUpdate struct {
	DeviceIDs *[]string `json:"device_ids,omitempty"`
	SharedKey *SyncKey  `json:"shared_key,omitempty"`
}

// NormalizeDeviceIDs drops empty entries and duplicates, keeping the order of
// first appearance.
func NormalizeDeviceIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ValidInviteCode reports whether code has the shape of an invite code.
func ValidInviteCode(code string) bool {
	if len(code) != InviteCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(InviteCodeAlphabet, c) {
			return false
		}
	}
	return true
}
