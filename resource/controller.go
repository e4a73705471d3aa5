// Package resource provides shared limits for the expensive parts of
// building and persisting quantized matrices: codebook training
// concurrency, managed buffer memory, and snapshot I/O throughput.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits. The zero value tracks memory without
// enforcing a limit, allows one training worker and leaves I/O unthrottled.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed buffer memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxTrainingWorkers is the maximum number of codebook segments
	// trained concurrently. If 0, defaults to 1.
	MaxTrainingWorkers int64

	// IOLimitBytesPerSec is the maximum snapshot I/O throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages global resources (memory, training concurrency,
// snapshot I/O). A nil *Controller is valid and enforces nothing.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Training concurrency
	trainSem *semaphore.Weighted

	// Snapshot I/O
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxTrainingWorkers <= 0 {
		cfg.MaxTrainingWorkers = 1
	}

	c := &Controller{
		cfg:      cfg,
		trainSem: semaphore.NewWeighted(cfg.MaxTrainingWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// TrainingWorkers returns the configured training concurrency, or 0 when
// the controller is nil and the caller should pick its own default.
func (c *Controller) TrainingWorkers() int {
	if c == nil {
		return 0
	}
	return int(c.cfg.MaxTrainingWorkers)
}

// AcquireMemory attempts to reserve memory for a managed buffer.
// If a hard limit is configured and usage would exceed it, this blocks
// until memory is available or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current managed memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireTraining reserves a training worker slot, blocking while all
// slots are busy.
func (c *Controller) AcquireTraining(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.trainSem.Acquire(ctx, 1)
}

// TryAcquireTraining attempts to reserve a training worker slot without
// blocking.
func (c *Controller) TryAcquireTraining() bool {
	if c == nil {
		return true
	}
	return c.trainSem.TryAcquire(1)
}

// ReleaseTraining releases a training worker slot.
func (c *Controller) ReleaseTraining() {
	if c == nil {
		return
	}
	c.trainSem.Release(1)
}

// AcquireIO waits until the I/O limit allows the specified number of bytes.
// Requests larger than the limiter's burst are admitted in burst-sized
// chunks, so a whole-snapshot write or read is paced rather than rejected.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}

	return nil
}
