// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "models/")
//
//	sess, err := brepq.NewSession()
//	err = sess.LoadFrom(ctx, store, "reactor.bgm")
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large models
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
