// Package queue implements the rolling memory bank of key embeddings.
//
// The bank is a fixed-capacity ring of L2-normalized vectors. Each training
// step overwrites one batch-sized contiguous slice and advances the write
// cursor modulo the capacity. Capacity must be evenly divisible by the batch
// size so a full batch never wraps around the end of the ring.
package queue

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/hupe1980/isdgo/distance"
)

// ErrInvalidBatch is returned when an enqueued batch cannot be placed in the
// ring (empty, not a whole number of vectors, or capacity not divisible by
// the batch size).
type ErrInvalidBatch struct {
	Capacity  int
	BatchSize int
}

func (e *ErrInvalidBatch) Error() string {
	return fmt.Sprintf("queue capacity %d is not divisible by batch size %d", e.Capacity, e.BatchSize)
}

// MemoryQueue is a fixed-capacity ring of embedding vectors.
//
// Not safe for concurrent use. The training loop mutates it from a single
// goroutine in a fixed per-step order.
type MemoryQueue struct {
	dim      int
	capacity int
	data     []float32 // capacity * dim, flattened row-major
	ptr      int       // next write position, in vectors
}

// New creates a MemoryQueue holding capacity vectors of the given dimension,
// initialized with random L2-normalized vectors drawn from rng.
func New(capacity, dim int, rng *rand.Rand) (*MemoryQueue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue: capacity must be positive, got %d", capacity)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("queue: dimension must be positive, got %d", dim)
	}

	q := &MemoryQueue{
		dim:      dim,
		capacity: capacity,
		data:     make([]float32, capacity*dim),
	}

	for off := 0; off < len(q.data); off += dim {
		row := q.data[off : off+dim]
		for {
			for i := range row {
				row[i] = float32(rng.NormFloat64())
			}
			if distance.NormalizeL2InPlace(row) {
				break
			}
		}
	}

	return q, nil
}

// Enqueue overwrites the next batch-sized slice of the ring with the given
// flattened batch of already-normalized vectors and advances the cursor.
// The batch must contain a whole number of vectors, and the queue capacity
// must be divisible by the batch size.
func (q *MemoryQueue) Enqueue(batch []float32) error {
	if len(batch) == 0 || len(batch)%q.dim != 0 {
		return fmt.Errorf("queue: batch length %d is not a multiple of dimension %d", len(batch), q.dim)
	}

	batchSize := len(batch) / q.dim
	if q.capacity%batchSize != 0 {
		return &ErrInvalidBatch{Capacity: q.capacity, BatchSize: batchSize}
	}

	off := q.ptr * q.dim
	copy(q.data[off:off+len(batch)], batch)
	q.ptr = (q.ptr + batchSize) % q.capacity

	return nil
}

// Snapshot returns a point-in-time copy of the bank contents. Scoring must
// run against a snapshot taken before the current batch is enqueued, so a
// sample never scores against its own key.
func (q *MemoryQueue) Snapshot() []float32 {
	return slices.Clone(q.data)
}

// Bank returns the live backing slice. Callers must not mutate it and must
// not hold it across an Enqueue; use Snapshot for scoring.
func (q *MemoryQueue) Bank() []float32 { return q.data }

// Ptr returns the current write cursor, in vectors.
func (q *MemoryQueue) Ptr() int { return q.ptr }

// Capacity returns the number of vectors the ring holds.
func (q *MemoryQueue) Capacity() int { return q.capacity }

// Dim returns the embedding dimension.
func (q *MemoryQueue) Dim() int { return q.dim }

// State is the serializable queue state carried in checkpoints.
type State struct {
	Capacity int
	Dim      int
	Ptr      int
	Data     []float32
}

// State exports a copy of the queue state.
func (q *MemoryQueue) State() State {
	return State{
		Capacity: q.capacity,
		Dim:      q.dim,
		Ptr:      q.ptr,
		Data:     slices.Clone(q.data),
	}
}

// Restore replaces the queue contents with a previously exported state.
// The shape must match exactly.
func (q *MemoryQueue) Restore(s State) error {
	if s.Capacity != q.capacity || s.Dim != q.dim {
		return fmt.Errorf("queue: state shape %dx%d does not match queue %dx%d",
			s.Capacity, s.Dim, q.capacity, q.dim)
	}
	if len(s.Data) != q.capacity*q.dim {
		return fmt.Errorf("queue: state data length %d, want %d", len(s.Data), q.capacity*q.dim)
	}
	if s.Ptr < 0 || s.Ptr >= q.capacity {
		return fmt.Errorf("queue: state pointer %d out of range [0,%d)", s.Ptr, q.capacity)
	}

	copy(q.data, s.Data)
	q.ptr = s.Ptr
	return nil
}
