package keygen

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Fingerprint returns a short, non-reversible identifier for key material,
// suitable for display and logs: the first 8 bytes of SHA-256, hex encoded.
func Fingerprint(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:8])
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
