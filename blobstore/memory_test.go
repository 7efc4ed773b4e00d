package blobstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := t.Context()
	store := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "a/1", data))
	require.NoError(t, store.Put(ctx, "a/2", []byte("def")))
	require.NoError(t, store.Put(ctx, "b/1", []byte("ghi")))
	data[0] = 'x'

	got, err := ReadAll(ctx, store, "a/1")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got), "Put copies its input")

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, []string{"a/1", "a/2"}, names)

	require.NoError(t, store.Delete(ctx, "a/1"))
	_, err = store.Open(ctx, "a/1")
	require.ErrorIs(t, err, ErrNotFound)
}
