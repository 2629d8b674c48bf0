package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Cache file layout:
//
//	[magic:8 "MSPEND01"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[BlobLen:4][Blob:BlobLen]
//	[checksum:32 SHA-256 of all bytes above]
var cacheMagic = []byte("MSPEND01")

const (
	// PendingFileName is the fixed name of the pending-push cache file.
	PendingFileName = "pending.snap"

	checksumSize       = 32
	cacheHeaderVersion = 1
)

var (
	ErrNoPending        = errors.New("snapshot: no pending snapshot")
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
)

type cacheHeader struct {
	Version     int    `json:"version"`
	WorkspaceID string `json:"workspace_id"`
	DeviceID    string `json:"device_id"`
	CreatedAt   int64  `json:"created_at"`
}

// Pending is an encoded snapshot that was written locally before its push.
type Pending struct {
	WorkspaceID string
	DeviceID    string
	Blob        string
	CreatedAt   time.Time
	Checksum    string
}

// PendingCache keeps the last encoded snapshot on disk so a failed push can be
// retried without re-aggregating state. It holds at most one entry.
type PendingCache struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewPendingCache creates the cache under dir.
func NewPendingCache(fs afero.Fs, dir string) (*PendingCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	return &PendingCache{fs: fs, path: filepath.Join(dir, PendingFileName)}, nil
}

// Path returns the cache file path.
func (c *PendingCache) Path() string { return c.path }

// Save replaces the cached entry. The file is written to a temp path and
// renamed, so readers never observe a partial entry.
func (c *PendingCache) Save(p Pending) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	hdrJSON, err := json.Marshal(cacheHeader{
		Version:     cacheHeaderVersion,
		WorkspaceID: p.WorkspaceID,
		DeviceID:    p.DeviceID,
		CreatedAt:   p.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("snapshot: marshal header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(cacheMagic)
	writeFrame(&buf, hdrJSON)
	writeFrame(&buf, []byte(p.Blob))
	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])

	tempPath := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tempPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := c.fs.Rename(tempPath, c.path); err != nil {
		_ = c.fs.Remove(tempPath)
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load returns the cached entry, or ErrNoPending when there is none.
func (c *PendingCache) Load() (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoPending
		}
		return nil, err
	}
	if len(data) < len(cacheMagic)+checksumSize {
		return nil, ErrChecksumMismatch
	}

	body, expected := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], expected) {
		return nil, ErrChecksumMismatch
	}

	r := bytes.NewReader(body)
	magic := make([]byte, len(cacheMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, cacheMagic) {
		return nil, ErrInvalidMagic
	}

	hdrJSON, err := readFrame(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	var hdr cacheHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	blob, err := readFrame(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read blob: %w", err)
	}

	return &Pending{
		WorkspaceID: hdr.WorkspaceID,
		DeviceID:    hdr.DeviceID,
		Blob:        string(blob),
		CreatedAt:   time.UnixMilli(hdr.CreatedAt),
		Checksum:    hex.EncodeToString(expected),
	}, nil
}

// Clear removes the cached entry. Clearing an empty cache is not an error.
func (c *PendingCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fs.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeFrame(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

func readFrame(r *bytes.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(n[:])
	if int64(size) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
