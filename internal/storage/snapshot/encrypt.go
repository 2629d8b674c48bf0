package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/pkg/crypto/adaptive"
)

// ErrKeyTooShort is returned when key material is below MinKeyLength.
var ErrKeyTooShort = errors.New("snapshot: key material too short (minimum 16 bytes)")

const (
	// MinKeyLength is the minimum input key material length for derivation.
	MinKeyLength = 16

	// SnapshotKeyInfo is the HKDF info string for the envelope AEAD key.
	SnapshotKeyInfo = "meshsync/snapshot/v1"

	// DeviceKeyInfo is the HKDF info string for device-scoped sync keys.
	DeviceKeyInfo = "meshsync/device-key/v1"
)

// DeriveSubkey derives a subkey from a master key using HKDF-SHA256.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	return deriveSubkey(masterKey, nil, info, length)
}

func deriveSubkey(secret, salt []byte, info string, length int) ([]byte, error) {
	if len(secret) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	reader := hkdf.New(sha256.New, secret, salt, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("snapshot: derive subkey: %w", err)
	}
	return key, nil
}

// DeriveDeviceKey derives the device-scoped sync key from the persisted
// device identity and the per-install salt. The result is stable for the
// life of the install.
func DeriveDeviceKey(identity string, salt []byte) (domain.SyncKey, error) {
	raw, err := deriveSubkey([]byte(identity), salt, DeviceKeyInfo, adaptive.KeySize)
	if err != nil {
		return "", err
	}
	defer ZeroKey(raw)
	return domain.SyncKey(hex.EncodeToString(raw)), nil
}

// envelopeCipher builds the AEAD for tagged envelopes: the sync key is never
// used directly, only its HKDF subkey.
func envelopeCipher(key domain.SyncKey, t adaptive.CipherType) (adaptive.Cipher, error) {
	master, err := key.Bytes()
	if err != nil {
		return nil, err
	}
	defer ZeroKey(master)

	sub, err := DeriveSubkey(master, SnapshotKeyInfo, adaptive.KeySize)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(sub)

	return adaptive.NewWithType(sub, t)
}

// legacyCipher builds the AES-GCM cipher used by untagged payloads, keyed by
// the raw sync key.
func legacyCipher(key domain.SyncKey) (adaptive.Cipher, error) {
	master, err := key.Bytes()
	if err != nil {
		return nil, err
	}
	defer ZeroKey(master)

	return adaptive.NewWithType(master, adaptive.CipherAESGCM)
}

// ZeroKey securely zeros a key in memory.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
