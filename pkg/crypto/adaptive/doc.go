// Package adaptive provides AEAD encryption with hardware-aware algorithm
// selection.
//
// Supported Algorithms:
//
//   - AES-256-GCM: preferred where hardware AES support is available
//   - ChaCha20-Poly1305: used elsewhere, or when configured explicitly
//
// Every sealed message carries its own random nonce as a prefix, so a Cipher
// is safe for concurrent use and a single key may seal many messages.
//
// Usage:
//
//	c, err := adaptive.NewWithType(key, adaptive.CipherChaCha20)
//	sealed, err := c.Seal(plaintext, aad)
//	plaintext, err := c.Open(sealed, aad)
package adaptive
