// Package keygen provides the random material used by meshsync.
//
// Formats:
//
//   - Sync key: 64 lowercase hex characters (32 CSPRNG bytes)
//   - Invite code: 8 characters from [A-Z0-9]
//   - Device identity: <GOOS>-<unix millis>-<12 hex chars>
//
// Security:
//
//   - Keys and invite codes use crypto/rand
//   - Fingerprints are truncated SHA-256 and never reveal the key
package keygen
