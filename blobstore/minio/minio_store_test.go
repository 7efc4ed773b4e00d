package minio

import (
	"testing"

	"github.com/hupe1980/brepq/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	bucket := "test-brepq"

	store, err := Dial("localhost:9000", "minioadmin", "minioadmin", false, bucket, "test-prefix/")
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := t.Context()

	if _, err := store.client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := store.client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, store.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.bgm", data))

	blob, err := store.Open(ctx, "test.bgm")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	assert.Equal(t, "minio", string(buf))
	require.NoError(t, blob.Close())

	got, err := blobstore.ReadAll(ctx, store, "test.bgm")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.bgm")

	require.NoError(t, store.Delete(ctx, "test.bgm"))
	require.NoError(t, store.Delete(ctx, "test.bgm"), "already gone")

	_, err = store.Open(ctx, "test.bgm")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Key(t *testing.T) {
	s := NewStore(nil, "models", "reactors/")
	assert.Equal(t, "reactors/core.bgm", s.key("core.bgm"))

	s = NewStore(nil, "models", "")
	assert.Equal(t, "core.bgm", s.key("core.bgm"))
}

func TestDial_InvalidEndpoint(t *testing.T) {
	_, err := Dial("localhost:9000/with/path", "k", "s", false, "models", "")
	require.ErrorContains(t, err, "minio: connect")
}
