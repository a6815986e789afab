// Package shuffle generates batch permutations for shuffled batch
// normalization.
//
// Encoding the key view in a shuffled order prevents the query and key
// branches from sharing batch statistics, which would let the network
// distinguish paired views without learning useful representations. The
// inverse permutation restores the original order so key embeddings stay
// aligned with their query counterparts before scoring and enqueueing.
package shuffle

import (
	"fmt"
	"math/rand"
)

// Permutation holds a random permutation of [0,n) and its exact inverse,
// such that Inverse[Forward[i]] == i for all i.
type Permutation struct {
	Forward []int
	Inverse []int
}

// New draws a uniformly random permutation of size n from rng.
func New(n int, rng *rand.Rand) (Permutation, error) {
	if n < 1 {
		return Permutation{}, fmt.Errorf("shuffle: batch size must be at least 1, got %d", n)
	}

	forward := rng.Perm(n)
	inverse := make([]int, n)
	for i, j := range forward {
		inverse[j] = i
	}

	return Permutation{Forward: forward, Inverse: inverse}, nil
}

// Len returns the permutation size.
func (p Permutation) Len() int { return len(p.Forward) }

// Apply gathers rows of a flattened n x dim batch into shuffled order:
// out[i] = src[Forward[i]]. It returns a new slice.
func (p Permutation) Apply(src []float32, dim int) ([]float32, error) {
	return gather(src, p.Forward, dim)
}

// Invert gathers rows of a flattened n x dim batch back into original
// order: out[i] = src[Inverse[i]]. It returns a new slice.
func (p Permutation) Invert(src []float32, dim int) ([]float32, error) {
	return gather(src, p.Inverse, dim)
}

func gather(src []float32, indices []int, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("shuffle: dimension must be positive, got %d", dim)
	}
	if len(src) != len(indices)*dim {
		return nil, fmt.Errorf("shuffle: batch length %d, want %d rows of dim %d", len(src), len(indices), dim)
	}

	out := make([]float32, len(src))
	for i, j := range indices {
		copy(out[i*dim:(i+1)*dim], src[j*dim:(j+1)*dim])
	}
	return out, nil
}
