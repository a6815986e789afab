package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markerBatch(batchSize, dim int, val float32) []float32 {
	batch := make([]float32, batchSize*dim)
	for i := 0; i < batchSize; i++ {
		// Unit vectors with a distinct marker in the first component sign
		// pattern; only the first component carries val for identification.
		batch[i*dim] = val
	}
	return batch
}

func TestNew(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	q, err := New(8, 4, rng)
	require.NoError(t, err)
	assert.Equal(t, 8, q.Capacity())
	assert.Equal(t, 4, q.Dim())
	assert.Equal(t, 0, q.Ptr())

	// Initial contents are unit-norm.
	bank := q.Bank()
	for off := 0; off < len(bank); off += 4 {
		var norm2 float32
		for _, v := range bank[off : off+4] {
			norm2 += v * v
		}
		assert.InDelta(t, float32(1), norm2, 1e-5)
	}

	_, err = New(0, 4, rng)
	assert.Error(t, err)
	_, err = New(8, 0, rng)
	assert.Error(t, err)
}

func TestEnqueueScenario(t *testing.T) {
	// K=8, batch 4: insert B1, B2 -> queue == [B1, B2], ptr back to 0;
	// insert B3 -> queue == [B3, B2], ptr == 4.
	rng := rand.New(rand.NewSource(7))
	q, err := New(8, 2, rng)
	require.NoError(t, err)

	b1 := markerBatch(4, 2, 1)
	b2 := markerBatch(4, 2, 2)
	b3 := markerBatch(4, 2, 3)

	require.NoError(t, q.Enqueue(b1))
	assert.Equal(t, 4, q.Ptr())
	require.NoError(t, q.Enqueue(b2))
	assert.Equal(t, 0, q.Ptr())

	bank := q.Bank()
	assert.Equal(t, b1, bank[:len(b1)])
	assert.Equal(t, b2, bank[len(b1):])

	require.NoError(t, q.Enqueue(b3))
	assert.Equal(t, 4, q.Ptr())
	bank = q.Bank()
	assert.Equal(t, b3, bank[:len(b3)])
	assert.Equal(t, b2, bank[len(b3):])
}

func TestEnqueueWraparound(t *testing.T) {
	// After K/batchSize batches the pointer returns to 0 and the contents
	// equal the inserted batches in insertion order.
	const (
		capacity  = 12
		dim       = 3
		batchSize = 4
	)

	rng := rand.New(rand.NewSource(42))
	q, err := New(capacity, dim, rng)
	require.NoError(t, err)

	var want []float32
	for i := 0; i < capacity/batchSize; i++ {
		b := markerBatch(batchSize, dim, float32(i+1))
		require.NoError(t, q.Enqueue(b))
		want = append(want, b...)
	}

	assert.Equal(t, 0, q.Ptr())
	assert.Equal(t, want, q.Bank())
}

func TestEnqueueInvalidBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	q, err := New(8, 2, rng)
	require.NoError(t, err)

	// Capacity 8 not divisible by batch size 3.
	err = q.Enqueue(make([]float32, 3*2))
	var ib *ErrInvalidBatch
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, 8, ib.Capacity)
	assert.Equal(t, 3, ib.BatchSize)

	// Not a whole number of vectors.
	assert.Error(t, q.Enqueue(make([]float32, 5)))
	// Empty.
	assert.Error(t, q.Enqueue(nil))
}

func TestSnapshotIsValueCopy(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	q, err := New(4, 2, rng)
	require.NoError(t, err)

	snap := q.Snapshot()
	before := append([]float32(nil), snap...)

	require.NoError(t, q.Enqueue(markerBatch(2, 2, 5)))

	// The snapshot must reflect the pre-enqueue state.
	assert.Equal(t, before, snap)
	assert.NotEqual(t, snap, q.Bank())
}

func TestStateRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	q, err := New(6, 2, rng)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(markerBatch(2, 2, 1)))

	s := q.State()
	assert.Equal(t, 2, s.Ptr)

	q2, err := New(6, 2, rand.New(rand.NewSource(12)))
	require.NoError(t, err)
	require.NoError(t, q2.Restore(s))
	assert.Equal(t, q.Bank(), q2.Bank())
	assert.Equal(t, q.Ptr(), q2.Ptr())

	// Shape mismatch is rejected.
	q3, err := New(4, 2, rng)
	require.NoError(t, err)
	assert.Error(t, q3.Restore(s))

	// Corrupt pointer is rejected.
	s.Ptr = 99
	assert.Error(t, q2.Restore(s))
}
