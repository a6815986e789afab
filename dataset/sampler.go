package dataset

import (
	"fmt"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
)

// Sampler yields the per-epoch batch order: a fresh uniform shuffle of all
// sample indices each epoch, cut into full batches. A trailing partial batch
// is dropped so every step sees exactly the configured batch size.
//
// A bitmap tracks the indices already handed out within the epoch; Next
// refuses to emit an index twice, which guards the shuffle against
// bookkeeping bugs when the order is regenerated mid-epoch.
type Sampler struct {
	n         int
	batchSize int
	rng       *rand.Rand

	order   []int
	pos     int
	visited *roaring.Bitmap
}

// NewSampler creates a sampler over n samples. The first epoch's order is
// ready immediately.
func NewSampler(n, batchSize int, rng *rand.Rand) (*Sampler, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", batchSize)
	}
	if n < batchSize {
		return nil, fmt.Errorf("dataset: %d samples cannot fill a batch of %d", n, batchSize)
	}

	s := &Sampler{
		n:         n,
		batchSize: batchSize,
		rng:       rng,
		order:     make([]int, n),
		visited:   roaring.New(),
	}
	for i := range s.order {
		s.order[i] = i
	}
	s.Reshuffle()

	return s, nil
}

// Batches returns the number of full batches per epoch.
func (s *Sampler) Batches() int { return s.n / s.batchSize }

// Reshuffle starts a new epoch: a fresh shuffle and a cleared visited set.
func (s *Sampler) Reshuffle() {
	s.rng.Shuffle(s.n, func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
	s.pos = 0
	s.visited.Clear()
}

// Next returns the next batch of sample indices, or false when the epoch is
// exhausted. The returned slice is only valid until the following call.
func (s *Sampler) Next() ([]int, bool) {
	if s.pos+s.batchSize > s.n {
		return nil, false
	}

	batch := s.order[s.pos : s.pos+s.batchSize]
	for _, idx := range batch {
		if s.visited.Contains(uint32(idx)) {
			// The order was corrupted; skip the epoch remainder rather
			// than train on a duplicate.
			return nil, false
		}
		s.visited.Add(uint32(idx))
	}
	s.pos += s.batchSize

	return batch, true
}

// Visited returns how many distinct samples the current epoch has emitted.
func (s *Sampler) Visited() uint64 { return s.visited.GetCardinality() }
