package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingCache_SaveLoadClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := NewPendingCache(fs, "/data")
	require.NoError(t, err)

	_, err = c.Load()
	assert.ErrorIs(t, err, ErrNoPending)

	created := time.UnixMilli(1700000000123)
	require.NoError(t, c.Save(Pending{WorkspaceID: "ws1", DeviceID: "d1", Blob: "blob-1", CreatedAt: created}))

	got, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "ws1", got.WorkspaceID)
	assert.Equal(t, "d1", got.DeviceID)
	assert.Equal(t, "blob-1", got.Blob)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Len(t, got.Checksum, 64)

	// Save replaces.
	require.NoError(t, c.Save(Pending{WorkspaceID: "ws1", DeviceID: "d1", Blob: "blob-2"}))
	got, err = c.Load()
	require.NoError(t, err)
	assert.Equal(t, "blob-2", got.Blob)

	exists, _ := afero.Exists(fs, c.Path()+".tmp")
	assert.False(t, exists, "temp file should not survive")

	require.NoError(t, c.Clear())
	_, err = c.Load()
	assert.ErrorIs(t, err, ErrNoPending)

	assert.NoError(t, c.Clear(), "clearing an empty cache")
}

func TestPendingCache_DetectsCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := NewPendingCache(fs, "/data")
	require.NoError(t, err)
	require.NoError(t, c.Save(Pending{WorkspaceID: "ws1", Blob: "payload"}))

	data, err := afero.ReadFile(fs, c.Path())
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(cacheMagic)+6] ^= 0xff
	require.NoError(t, afero.WriteFile(fs, c.Path(), flipped, 0o600))
	_, err = c.Load()
	assert.True(t, errors.Is(err, ErrChecksumMismatch), "got %v", err)

	require.NoError(t, afero.WriteFile(fs, c.Path(), []byte("tiny"), 0o600))
	_, err = c.Load()
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestNewPendingCache_RequiresDir(t *testing.T) {
	_, err := NewPendingCache(afero.NewMemMapFs(), "")
	assert.Error(t, err)
}
