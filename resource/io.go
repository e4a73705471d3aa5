package resource

import (
	"context"
	"io"
)

// ThrottledWriter wraps an io.Writer so snapshot writes respect the
// controller's I/O limit.
type ThrottledWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// NewThrottledWriter creates a writer throttled by c. A nil controller
// passes writes through unchanged.
func NewThrottledWriter(ctx context.Context, w io.Writer, c *Controller) *ThrottledWriter {
	return &ThrottledWriter{ctx: ctx, w: w, c: c}
}

func (t *ThrottledWriter) Write(p []byte) (int, error) {
	if err := t.c.AcquireIO(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

// ThrottledReader wraps an io.Reader so snapshot reads respect the
// controller's I/O limit.
type ThrottledReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewThrottledReader creates a reader throttled by c. A nil controller
// passes reads through unchanged.
func NewThrottledReader(ctx context.Context, r io.Reader, c *Controller) *ThrottledReader {
	return &ThrottledReader{ctx: ctx, r: r, c: c}
}

// Read reserves tokens after the fact, so short reads only pay for the
// bytes they actually returned.
func (t *ThrottledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.c.AcquireIO(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
