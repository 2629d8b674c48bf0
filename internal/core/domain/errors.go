// Package domain defines the core domain models for meshsync.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a sync domain error with a structured error code.
// Codes follow the format MS-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "MS-WS-4030")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsSilentSkip reports whether err means the sync attempt should end as a
// quiet no-op: the device is offline or no backend endpoint answered.
func IsSilentSkip(err error) bool {
	return errors.Is(err, ErrNoEndpointReachable) || errors.Is(err, ErrNetworkUnavailable)
}

// IsRetryable reports whether a later attempt of the same operation may succeed
// without any caller action.
func IsRetryable(err error) bool {
	return IsSilentSkip(err) || errors.Is(err, ErrOperationTimeout)
}

// ============================================================================
// Network Errors (NET)
// ============================================================================

var (
	// ErrNoEndpointReachable indicates every candidate backend failed its health checks.
	ErrNoEndpointReachable = NewDomainError("MS-NET-5030", "no sync endpoint reachable")

	// ErrNetworkUnavailable indicates the device has no network connectivity.
	ErrNetworkUnavailable = NewDomainError("MS-NET-5031", "network unavailable")

	// ErrOperationTimeout indicates a sync operation exceeded its deadline.
	ErrOperationTimeout = NewDomainError("MS-NET-5040", "sync operation timed out")
)

// ============================================================================
// Workspace Errors (WS)
// ============================================================================

var (
	// ErrInvalidInviteCode indicates the invite code does not match the workspace.
	ErrInvalidInviteCode = NewDomainError("MS-WS-4030", "invalid invite code")

	// ErrWorkspaceNotFound indicates the workspace record does not exist.
	ErrWorkspaceNotFound = NewDomainError("MS-WS-4040", "workspace not found")

	// ErrNoWorkspaceConfigured indicates this device has not joined or created a workspace.
	ErrNoWorkspaceConfigured = NewDomainError("MS-WS-4280", "no workspace configured")
)

// ============================================================================
// Snapshot and Key Errors (SNAP, KEY)
// ============================================================================

var (
	// ErrCorruptSnapshot indicates neither the current nor the legacy decoding path
	// could read the snapshot.
	ErrCorruptSnapshot = NewDomainError("MS-SNAP-4220", "sync data unreadable, re-pair device")

	// ErrInvalidKey indicates key material is not a 64-character hex string.
	ErrInvalidKey = NewDomainError("MS-KEY-4000", "invalid sync key")
)

// ============================================================================
// Premium Errors (PREM)
// ============================================================================

var (
	// ErrPremiumRequired indicates a gated operation was attempted without entitlement.
	ErrPremiumRequired = NewDomainError("MS-PREM-4020", "premium required")
)

// ============================================================================
// Remote Errors (REM)
// ============================================================================

var (
	// ErrRecordNotFound indicates the backend answered 404.
	ErrRecordNotFound = NewDomainError("MS-REM-4040", "remote record not found")

	// ErrUnauthorized indicates the backend rejected our credentials.
	ErrUnauthorized = NewDomainError("MS-REM-4010", "remote request unauthorized")

	// ErrRemote indicates any other backend failure (malformed response, 5xx).
	ErrRemote = NewDomainError("MS-REM-5000", "remote request failed")
)

// ============================================================================
// Argument and System Errors (ARG, SYS)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("MS-ARG-1001", "invalid argument")

	// ErrStorage indicates a local persistence failure.
	ErrStorage = NewDomainError("MS-SYS-5001", "local storage error")
)
