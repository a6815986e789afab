// Package dataset provides the training data sources: a zero-copy reader for
// the CIFAR-10 binary batch files and a synthetic in-memory dataset for tests
// and smoke runs, plus the per-epoch shuffling sampler.
package dataset

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when a data directory contains no batch files.
var ErrNoData = errors.New("dataset: no batch files found")

// ErrIndexOutOfRange wraps an out-of-bounds sample access.
type ErrIndexOutOfRange struct {
	Index int
	Len   int
}

func (e *ErrIndexOutOfRange) Error() string {
	return fmt.Sprintf("dataset: index %d out of range [0,%d)", e.Index, e.Len)
}

// Sample is one record: raw channel-major uint8 pixels and a class label.
// Raw may alias memory-mapped storage; callers must not mutate or retain it
// past the dataset's Close.
type Sample struct {
	Raw   []byte
	Label int
}

// Dataset is a finite, randomly accessible collection of samples.
type Dataset interface {
	// Len returns the number of samples.
	Len() int

	// At returns the sample at index i.
	At(i int) (Sample, error)

	// Channels, Height, Width describe the image shape of every sample.
	Channels() int
	Height() int
	Width() int

	// Close releases underlying resources.
	Close() error
}
