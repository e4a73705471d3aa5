// Package s3 provides an Amazon S3 implementation of the blobstore.Store
// interface, plus a DynamoDB-backed publish store for promoting snapshot
// versions atomically.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "embeddings/"
//	    o.Region = "us-east-1"
//	})
//
// # Features
//
//   - Ranged reads for partial fetches
//   - Multipart uploads with CRC32C validation for streamed snapshots
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - Optional compare-and-swap publishing through DynamoDB (PublishStore)
package s3
