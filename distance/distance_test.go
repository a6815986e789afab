package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Single", []float32{2}, []float32{3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dot(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}
}

func TestDotBatch(t *testing.T) {
	query := []float32{1, 0, -1}
	bank := []float32{
		1, 0, 0,
		0, 1, 0,
		1, 1, 1,
	}
	out := make([]float32, 3)

	DotBatch(query, bank, 3, out)

	assert.InDelta(t, float32(1), out[0], 1e-5)
	assert.InDelta(t, float32(0), out[1], 1e-5)
	assert.InDelta(t, float32(0), out[2], 1e-5)
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		ok := NormalizeL2InPlace(v)
		assert.True(t, ok)
		assert.InDelta(t, float32(0.6), v[0], 1e-5)
		assert.InDelta(t, float32(0.8), v[1], 1e-5)
		assert.InDelta(t, float32(1.0), float32(math.Sqrt(float64(v[0]*v[0]+v[1]*v[1]))), 1e-5)

		vZero := []float32{0, 0}
		assert.False(t, NormalizeL2InPlace(vZero))

		vEmpty := []float32{}
		assert.False(t, NormalizeL2InPlace(vEmpty))
	})

	t.Run("Copy", func(t *testing.T) {
		v := []float32{1, 0}
		dst, ok := NormalizeL2Copy(v)
		assert.True(t, ok)
		assert.Equal(t, float32(1), dst[0])
		assert.NotSame(t, &v[0], &dst[0])

		dst, ok = NormalizeL2Copy([]float32{0, 0})
		assert.False(t, ok)
		assert.Nil(t, dst)
	})

	t.Run("Rows", func(t *testing.T) {
		batch := []float32{
			3, 4,
			0, 2,
		}
		ok := NormalizeL2Rows(batch, 2)
		assert.True(t, ok)

		for off := 0; off < len(batch); off += 2 {
			norm := math.Sqrt(float64(batch[off]*batch[off] + batch[off+1]*batch[off+1]))
			assert.InDelta(t, 1.0, norm, 1e-5)
		}

		// Dim mismatch is rejected.
		assert.False(t, NormalizeL2Rows([]float32{1, 2, 3}, 2))
	})
}
