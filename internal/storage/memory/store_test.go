package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/meshsync/internal/storage"
)

func TestStore_BasicOperations(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, []byte("missing"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	buf := []byte("value")
	require.NoError(t, s.Set(ctx, []byte("k"), buf))
	buf[0] = 'X' // caller reuses its buffer

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))

	got[0] = 'Y'
	again, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(again), "stored value mutated through returned slice")

	require.NoError(t, s.Delete(ctx, []byte("k")))
	_, err = s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	sets, deletes := s.Writes()
	assert.Equal(t, int64(1), sets)
	assert.Equal(t, int64(1), deletes)
}

func TestStore_ScanOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"p/c", "p/a", "q/z", "p/b"} {
		require.NoError(t, s.Set(ctx, []byte(k), []byte(k)))
	}

	var keys []string
	err := s.Scan(ctx, []byte("p/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a", "p/b", "p/c"}, keys)

	n := 0
	require.NoError(t, s.Scan(ctx, []byte("p/"), func(k, v []byte) bool {
		n++
		return false
	}))
	assert.Equal(t, 1, n, "Scan stops after the callback returns false")
}

func TestStore_Stats(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, []byte("ab"), []byte("cde")))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalKeys)
	assert.EqualValues(t, 5, stats.TotalSize)
}

func TestStore_Closed(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set(ctx, []byte("k"), nil), storage.ErrClosed)
	_, err := s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, storage.ErrClosed)
}
