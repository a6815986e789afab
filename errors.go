package isdgo

import (
	"errors"
	"fmt"
)

var (
	// ErrNonFiniteLoss is returned when the distillation loss is NaN or Inf.
	// The run is expected to abort; the last checkpoint is the recovery
	// point.
	ErrNonFiniteLoss = errors.New("non-finite loss")
)

// ErrQueueBatchMismatch indicates the queue size is not divisible by the
// batch size. This is a fatal configuration error surfaced at startup.
type ErrQueueBatchMismatch struct {
	QueueSize int
	BatchSize int
}

func (e *ErrQueueBatchMismatch) Error() string {
	return fmt.Sprintf("queue size %d is not divisible by batch size %d", e.QueueSize, e.BatchSize)
}

// ErrDimensionMismatch indicates an input batch whose length does not match
// the expected dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
