package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hupe1980/brepq/blobstore"
	miniostore "github.com/hupe1980/brepq/blobstore/minio"
	s3store "github.com/hupe1980/brepq/blobstore/s3"
	"github.com/hupe1980/brepq/internal/config"
)

// openSource resolves a source or target to a blob store and a blob name.
//
//	s3://bucket/key              AWS S3 with the default credential chain
//	minio://host[:port]/bucket/key  MinIO with keys from the config or env
//	anything else                a local path
func openSource(ctx context.Context, cfg *config.Config, source string) (blobstore.BlobStore, string, error) {
	switch {
	case strings.HasPrefix(source, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(source, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid s3 source %q: want s3://bucket/key", source)
		}
		store, err := s3store.New(ctx, bucket, "")
		if err != nil {
			return nil, "", err
		}
		return store, key, nil

	case strings.HasPrefix(source, "minio://"):
		host, rest, ok := strings.Cut(strings.TrimPrefix(source, "minio://"), "/")
		if !ok || host == "" {
			return nil, "", fmt.Errorf("invalid minio source %q: want minio://host/bucket/key", source)
		}
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid minio source %q: want minio://host/bucket/key", source)
		}
		access, secret := cfg.MinIOCredentials()
		store, err := miniostore.Dial(host, access, secret, cfg.MinIO.Secure, bucket, "")
		if err != nil {
			return nil, "", err
		}
		return store, key, nil

	default:
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, "", err
		}
		return blobstore.NewLocalStore(filepath.Dir(abs)), filepath.Base(abs), nil
	}
}
