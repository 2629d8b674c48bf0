package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the only key size accepted: both algorithms run with 256-bit keys.
const KeySize = 32

// CipherType identifies the AEAD algorithm. Its numeric value is written into
// envelope headers, so existing values must never be renumbered.
type CipherType byte

const (
	CipherAESGCM   CipherType = 1
	CipherChaCha20 CipherType = 2
)

var (
	// ErrInvalidKeySize is returned for keys that are not KeySize bytes.
	ErrInvalidKeySize = errors.New("adaptive: key must be 32 bytes")

	// ErrCiphertextTooShort is returned when input cannot hold a nonce.
	ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")
)

// String implements fmt.Stringer.
func (t CipherType) String() string {
	switch t {
	case CipherAESGCM:
		return "aes-gcm"
	case CipherChaCha20:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", byte(t))
	}
}

// ParseCipherType maps a configuration name to a CipherType. "auto" and the
// empty string select by hardware.
func ParseCipherType(name string) (CipherType, error) {
	switch name {
	case "", "auto":
		return Preferred(), nil
	case "aes-gcm":
		return CipherAESGCM, nil
	case "chacha20-poly1305":
		return CipherChaCha20, nil
	default:
		return 0, fmt.Errorf("adaptive: unknown cipher %q", name)
	}
}

// Preferred returns AES-GCM where Go uses hardware AES and ChaCha20 elsewhere.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// Cipher provides authenticated encryption. Sealed output is nonce||ciphertext.
type Cipher interface {
	Type() CipherType
	Seal(plaintext, additionalData []byte) ([]byte, error)
	Open(sealed, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// New creates a cipher of the preferred type.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType creates a cipher of the given type.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	var (
		a   cipher.AEAD
		err error
	)
	switch t {
	case CipherAESGCM:
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			a, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		a, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("adaptive: unknown cipher type %d", byte(t))
	}
	if err != nil {
		return nil, err
	}
	return &aead{typ: t, aead: a}, nil
}

type aead struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aead) Type() CipherType { return c.typ }
func (c *aead) NonceSize() int   { return c.aead.NonceSize() }
func (c *aead) Overhead() int    { return c.aead.Overhead() }

// Seal encrypts plaintext under a fresh random nonce.
func (c *aead) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open splits the nonce off sealed and decrypts the rest.
func (c *aead) Open(sealed, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
}
