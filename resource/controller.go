// Package resource gates the background work that runs beside training, so
// checkpoint uploads never starve the training loop of IO or pile up
// unbounded.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the background resource limits.
type Config struct {
	// MaxUploads is the maximum number of concurrent mirror uploads.
	// If 0, defaults to 1.
	MaxUploads int64

	// IOLimitBytesPerSec caps the upload throughput. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller bounds concurrent uploads with a weighted semaphore and their
// throughput with a token-bucket limiter. A nil Controller imposes no
// limits.
type Controller struct {
	uploadSem *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a controller from the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxUploads <= 0 {
		cfg.MaxUploads = 1
	}

	c := &Controller{
		uploadSem: semaphore.NewWeighted(cfg.MaxUploads),
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireUpload reserves an upload slot, blocking until one is free or ctx
// is canceled.
func (c *Controller) AcquireUpload(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.uploadSem.Acquire(ctx, 1)
}

// TryAcquireUpload reserves an upload slot without blocking.
func (c *Controller) TryAcquireUpload() bool {
	if c == nil {
		return true
	}
	return c.uploadSem.TryAcquire(1)
}

// ReleaseUpload returns an upload slot.
func (c *Controller) ReleaseUpload() {
	if c == nil {
		return
	}
	c.uploadSem.Release(1)
}

// AcquireIO waits until the throughput limit admits the given number of
// bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
