// Package blobstore provides storage abstraction for quantized matrix
// snapshots. A Store holds immutable blobs addressed by name; snapshots are
// written once and read whole.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads and atomic renames
//   - MemoryStore: in-memory store for tests
//   - s3.Store: Amazon S3 with ranged reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible object stores
//
// # Custom Implementations
//
// Implement the Store interface to plug in another backend:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for streaming writes
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Blobs only need io.ReaderAt, io.Closer and Size; stores backed by memory
// maps may additionally implement Mappable for zero-copy access.
package blobstore
