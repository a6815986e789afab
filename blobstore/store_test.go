package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ckpt_epoch_2.ckpt", strings.NewReader("alpha"), 5))
	require.NoError(t, store.Put(ctx, "ckpt_epoch_4.ckpt", strings.NewReader("beta"), 4))
	require.NoError(t, store.Put(ctx, "other.bin", strings.NewReader("x"), 1))

	rc, err := store.Open(ctx, "ckpt_epoch_2.ckpt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "alpha", string(data))

	names, err := store.List(ctx, "ckpt_epoch_")
	require.NoError(t, err)
	assert.Equal(t, []string{"ckpt_epoch_2.ckpt", "ckpt_epoch_4.ckpt"}, names)

	// Overwrite replaces content.
	require.NoError(t, store.Put(ctx, "ckpt_epoch_2.ckpt", strings.NewReader("gamma"), 5))
	rc, err = store.Open(ctx, "ckpt_epoch_2.ckpt")
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "gamma", string(data))

	require.NoError(t, store.Delete(ctx, "ckpt_epoch_2.ckpt"))
	require.NoError(t, store.Delete(ctx, "ckpt_epoch_2.ckpt"))

	_, err = store.Open(ctx, "ckpt_epoch_2.ckpt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, store)
}

func TestLocalStoreRejectsEscapingNames(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside", strings.NewReader("x"), 1)
	assert.Error(t, err)
}
