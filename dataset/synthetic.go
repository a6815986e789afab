package dataset

import (
	"math/rand"
)

// Synthetic is a deterministic in-memory dataset of pseudo-random images.
// It serves tests and smoke runs that must not depend on downloaded data.
type Synthetic struct {
	data     [][]byte
	labels   []int
	channels int
	side     int
}

// NewSynthetic generates n random samples with the given image shape.
// The same seed always produces the same samples.
func NewSynthetic(n, channels, side int, seed int64) *Synthetic {
	rng := rand.New(rand.NewSource(seed)) // nolint gosec

	ds := &Synthetic{
		data:     make([][]byte, n),
		labels:   make([]int, n),
		channels: channels,
		side:     side,
	}

	for i := range ds.data {
		raw := make([]byte, channels*side*side)
		rng.Read(raw)
		ds.data[i] = raw
		ds.labels[i] = rng.Intn(10)
	}

	return ds
}

func (ds *Synthetic) Len() int { return len(ds.data) }

func (ds *Synthetic) At(i int) (Sample, error) {
	if i < 0 || i >= len(ds.data) {
		return Sample{}, &ErrIndexOutOfRange{Index: i, Len: len(ds.data)}
	}
	return Sample{Raw: ds.data[i], Label: ds.labels[i]}, nil
}

func (ds *Synthetic) Channels() int { return ds.channels }
func (ds *Synthetic) Height() int   { return ds.side }
func (ds *Synthetic) Width() int    { return ds.side }

func (ds *Synthetic) Close() error { return nil }
