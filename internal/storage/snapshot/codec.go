package snapshot

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/pkg/crypto/adaptive"
)

// Envelope layout (before the outer base64):
//
//	[magic:4 "MSNP"][version:1][format:1][cipher:1][nonce||ciphertext]
//
// The 7 header bytes are bound to the ciphertext as additional data.
var magicBytes = []byte("MSNP")

const (
	envelopeVersion = 1
	headerSize      = 7

	// maxInflatedSize bounds decompression of untrusted payloads.
	maxInflatedSize = 64 << 20
)

// Format identifies how the plaintext inside an envelope is encoded.
type Format byte

const (
	// FormatCompressed is base64(deflate(json)).
	FormatCompressed Format = 1

	// FormatPlainJSON is uncompressed JSON text.
	FormatPlainJSON Format = 2
)

// Codec turns application state into snapshot blobs and back.
// A Codec is safe for concurrent use.
type Codec struct {
	cipher adaptive.CipherType
	format Format
	level  int
}

// Option configures a Codec.
type Option func(*Codec)

// WithCipher selects the AEAD used for new envelopes. Decoding always honours
// the cipher recorded in the envelope.
func WithCipher(t adaptive.CipherType) Option {
	return func(c *Codec) { c.cipher = t }
}

// WithFormat selects the payload format used for new envelopes.
func WithFormat(f Format) Option {
	return func(c *Codec) { c.format = f }
}

// WithCompressionLevel sets the deflate level (flate.BestSpeed .. flate.BestCompression).
func WithCompressionLevel(level int) Option {
	return func(c *Codec) { c.level = level }
}

// NewCodec creates a codec. Defaults: preferred cipher, compressed payload,
// default deflate level.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		cipher: adaptive.Preferred(),
		format: FormatCompressed,
		level:  flate.DefaultCompression,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode serializes state to JSON, compresses and base64-encodes it, seals it
// under key and returns the base64 envelope.
func (c *Codec) Encode(state any, key domain.SyncKey) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("snapshot: marshal state: %w", err)
	}

	plaintext := raw
	if c.format == FormatCompressed {
		if plaintext, err = c.compress(raw); err != nil {
			return "", err
		}
	}

	aead, err := envelopeCipher(key, c.cipher)
	if err != nil {
		return "", err
	}

	header := []byte{magicBytes[0], magicBytes[1], magicBytes[2], magicBytes[3],
		envelopeVersion, byte(c.format), byte(c.cipher)}
	sealed, err := aead.Seal(plaintext, header)
	if err != nil {
		return "", fmt.Errorf("snapshot: seal: %w", err)
	}

	out := make([]byte, 0, headerSize+len(sealed))
	out = append(out, header...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode reverses Encode and returns the state as generic JSON values
// (map[string]any, []any, json.Number, string, bool, nil). Numbers stay
// json.Number so integers beyond 2^53 survive the round trip.
func (c *Codec) Decode(blob string, key domain.SyncKey) (any, error) {
	var v any
	if err := c.DecodeInto(blob, key, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto reverses Encode into dst. Blobs without the envelope header are
// treated as legacy payloads: raw-key AES-GCM holding either compressed or
// plain JSON. Every undecodable blob yields domain.ErrCorruptSnapshot.
func (c *Codec) DecodeInto(blob string, key domain.SyncKey, dst any) error {
	if !key.Valid() {
		return domain.ErrInvalidKey
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return domain.ErrCorruptSnapshot.WithDetails("outer encoding").WithCause(err)
	}

	var raw []byte
	if bytes.HasPrefix(data, magicBytes) {
		raw, err = c.openEnvelope(data, key)
	} else {
		raw, err = c.openLegacy(data, key)
	}
	if err != nil {
		return err
	}

	if err := UnmarshalState(raw, dst); err != nil {
		return domain.ErrCorruptSnapshot.WithDetails("state json").WithCause(err)
	}
	return nil
}

// UnmarshalState decodes a single JSON document into dst, keeping numbers as
// json.Number when dst holds generic values. Trailing data is an error.
func UnmarshalState(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON document")
	}
	return nil
}

// openEnvelope decrypts a tagged envelope. Once the magic matched there is no
// fallback to the legacy path.
func (c *Codec) openEnvelope(data []byte, key domain.SyncKey) ([]byte, error) {
	if len(data) < headerSize {
		return nil, domain.ErrCorruptSnapshot.WithDetails("truncated header")
	}
	header := data[:headerSize]
	if header[4] != envelopeVersion {
		return nil, domain.ErrCorruptSnapshot.WithDetails(fmt.Sprintf("unsupported version %d", header[4]))
	}

	aead, err := envelopeCipher(key, adaptive.CipherType(header[6]))
	if err != nil {
		return nil, domain.ErrCorruptSnapshot.WithDetails("cipher").WithCause(err)
	}
	plaintext, err := aead.Open(data[headerSize:], header)
	if err != nil {
		return nil, domain.ErrCorruptSnapshot.WithDetails("decrypt").WithCause(err)
	}

	switch Format(header[5]) {
	case FormatCompressed:
		raw, err := c.decompress(plaintext)
		if err != nil {
			return nil, domain.ErrCorruptSnapshot.WithDetails("payload").WithCause(err)
		}
		return raw, nil
	case FormatPlainJSON:
		return plaintext, nil
	default:
		return nil, domain.ErrCorruptSnapshot.WithDetails(fmt.Sprintf("unknown format %d", header[5]))
	}
}

// openLegacy handles untagged payloads written before the envelope existed.
func (c *Codec) openLegacy(data []byte, key domain.SyncKey) ([]byte, error) {
	aead, err := legacyCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(data, nil)
	if err != nil {
		return nil, domain.ErrCorruptSnapshot.WithDetails("decrypt").WithCause(err)
	}

	if raw, err := c.decompress(plaintext); err == nil && json.Valid(raw) {
		return raw, nil
	}
	if json.Valid(plaintext) {
		return plaintext, nil
	}
	return nil, domain.ErrCorruptSnapshot.WithDetails("legacy payload")
}

// compress returns base64(deflate(raw)).
func (c *Codec) compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("snapshot: deflate: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("snapshot: deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: deflate: %w", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

// decompress reverses compress.
func (c *Codec) decompress(payload []byte) ([]byte, error) {
	deflated := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(deflated, payload)
	if err != nil {
		return nil, err
	}

	r := flate.NewReader(bytes.NewReader(deflated[:n]))
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxInflatedSize {
		return nil, fmt.Errorf("snapshot: inflated payload exceeds %d bytes", maxInflatedSize)
	}
	return raw, nil
}
