package quantmat

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/hupe1980/quantmat/blobstore"
	"github.com/hupe1980/quantmat/persistence"
	"github.com/hupe1980/quantmat/resource"
)

// SaveSnapshot writes q to the store under name, framed with a checksum
// and compressed with the configured codec. The bytes stream through the
// store's Create handle; on failure the handle is aborted, so a crashed
// save never leaves a partial snapshot visible under name.
func SaveSnapshot(ctx context.Context, store blobstore.Store, name string, q *QuantizedMatrix, optFns ...Option) error {
	opts := applyOptions(optFns)

	start := time.Now()
	written, err := saveSnapshot(ctx, store, name, q, opts)

	opts.metricsCollector.RecordSnapshotSave(written, time.Since(start), err)
	opts.logger.LogSnapshotSave(ctx, name, written, err)

	return err
}

func saveSnapshot(ctx context.Context, store blobstore.Store, name string, q *QuantizedMatrix, opts options) (int64, error) {
	wb, err := store.Create(ctx, name)
	if err != nil {
		return 0, err
	}

	cw := &countingWriter{w: resource.NewThrottledWriter(ctx, wb, opts.controller)}
	if err := persistence.WriteSnapshot(cw, opts.codec, q.Save); err != nil {
		_ = wb.Abort()
		return cw.n, err
	}

	if err := wb.Close(); err != nil {
		return cw.n, err
	}

	return cw.n, nil
}

// LoadSnapshot reads a snapshot previously written by SaveSnapshot. The
// blob's size is charged against the resource controller's memory budget
// for the duration of the decode, and reads obey its I/O limit. Blobs that
// expose their bytes directly (local files served from a memory map) are
// decoded in place without an extra copy.
func LoadSnapshot(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*QuantizedMatrix, error) {
	opts := applyOptions(optFns)

	start := time.Now()
	q, read, err := loadSnapshot(ctx, store, name, opts)

	opts.metricsCollector.RecordSnapshotLoad(read, time.Since(start), err)
	opts.logger.LogSnapshotLoad(ctx, name, err)

	return q, err
}

func loadSnapshot(ctx context.Context, store blobstore.Store, name string, opts options) (*QuantizedMatrix, int64, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = blob.Close() }()

	size := blob.Size()

	if err := opts.controller.AcquireMemory(ctx, size); err != nil {
		return nil, 0, err
	}
	defer opts.controller.ReleaseMemory(size)

	var r io.Reader
	if mb, ok := blob.(blobstore.Mappable); ok {
		if data, err := mb.Bytes(); err == nil {
			r = bytes.NewReader(data)
		}
	}
	if r == nil {
		r = io.NewSectionReader(blob, 0, size)
	}
	r = resource.NewThrottledReader(ctx, r, opts.controller)

	var q *QuantizedMatrix
	if err := persistence.ReadSnapshot(r, func(pr io.Reader) error {
		var err error
		q, err = Load(pr)
		return err
	}); err != nil {
		return nil, size, err
	}

	return q, size, nil
}

// SaveFile writes q to a snapshot file. The write goes to a temp file that
// is fsynced and renamed into place, so a crash never corrupts an existing
// snapshot at path.
func SaveFile(path string, q *QuantizedMatrix, optFns ...Option) error {
	opts := applyOptions(optFns)

	return persistence.SaveToFile(path, func(w io.Writer) error {
		return persistence.WriteSnapshot(w, opts.codec, q.Save)
	})
}

// LoadFile reads a snapshot file previously written by SaveFile.
func LoadFile(path string) (*QuantizedMatrix, error) {
	var q *QuantizedMatrix

	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		return persistence.ReadSnapshot(r, func(pr io.Reader) error {
			var err error
			q, err = Load(pr)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

// countingWriter tracks how many bytes reached the store.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
