// Package keygen provides key, invite code and identity generation utilities.
package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/meshsync/internal/core/domain"
)

// KeyBytes is the raw length of a generated key.
const KeyBytes = 32

// GenerateHexKey returns 32 CSPRNG bytes as 64 lowercase hex characters.
func GenerateHexKey() (string, error) {
	b, err := GenerateBytes(KeyBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateInviteCode returns domain.InviteCodeLength characters drawn
// uniformly from domain.InviteCodeAlphabet.
func GenerateInviteCode() (string, error) {
	var sb strings.Builder
	sb.Grow(domain.InviteCodeLength)
	limit := big.NewInt(int64(len(domain.InviteCodeAlphabet)))
	for i := 0; i < domain.InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		sb.WriteByte(domain.InviteCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NewDeviceIdentity mints an install identity of the form
// <platform>-<unix millis>-<random suffix>.
func NewDeviceIdentity() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return runtime.GOOS + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + suffix
}
