package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for keeping immutable snapshot blobs. All
// implementations must be safe for concurrent use.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create opens a blob for streaming writes. The blob becomes visible
	// under its name only when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.ReaderAt
	io.Closer

	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a write handle returned by Create.
type WritableBlob interface {
	io.Writer
	io.Closer

	// Sync flushes written data to stable storage where the backend
	// supports it; object stores treat it as a no-op.
	Sync() error

	// Abort discards everything written so far. The target name is left
	// untouched. Abort after Close is a no-op.
	Abort() error
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice. The slice is valid until
	// the Blob is closed. This is a zero-copy operation if supported.
	Bytes() ([]byte, error)
}
