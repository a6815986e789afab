package isdgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting training metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordStep is called after each training step with the step duration
	// and the step loss.
	RecordStep(duration time.Duration, loss float64)

	// RecordEpoch is called after each epoch with the running loss average.
	RecordEpoch(epoch int, lossAvg float64, duration time.Duration)

	// RecordCheckpoint is called after each checkpoint save attempt.
	RecordCheckpoint(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStep(time.Duration, float64)       {}
func (NoopMetricsCollector) RecordEpoch(int, float64, time.Duration) {}
func (NoopMetricsCollector) RecordCheckpoint(time.Duration, error)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	StepCount        atomic.Int64
	StepTotalNanos   atomic.Int64
	EpochCount       atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
}

// RecordStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStep(duration time.Duration, _ float64) {
	b.StepCount.Add(1)
	b.StepTotalNanos.Add(duration.Nanoseconds())
}

// RecordEpoch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEpoch(int, float64, time.Duration) {
	b.EpochCount.Add(1)
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(_ time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}
