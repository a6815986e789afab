package isdgo

import (
	"github.com/hupe1980/isdgo/distance"
	"github.com/hupe1980/isdgo/internal/math32"
)

// similarities computes the temperature-scaled dot products of every
// embedding row against the full bank snapshot, producing an n x K
// flattened score matrix. Embeddings and bank rows are unit-norm, so the
// scores are cosine similarities divided by T.
func (m *ISD) similarities(embeddings, mem []float32, n int) []float32 {
	k := len(mem) / m.dim
	out := make([]float32, n*k)
	invT := 1 / m.temperature

	for i := 0; i < n; i++ {
		row := out[i*k : (i+1)*k]
		distance.DotBatch(embeddings[i*m.dim:(i+1)*m.dim], mem, m.dim, row)
		for j := range row {
			row[j] *= invT
		}
	}

	return out
}

// backwardSimilarities maps a gradient over the n x K score matrix back to
// embedding space: since sim[i][j] = (q_i . mem_j) / T, the embedding
// gradient is dq_i = (1/T) * sum_j g[i][j] * mem_j. The snapshot must be
// the one the scores were computed from.
func (m *ISD) backwardSimilarities(gradSim, mem []float32, n int) []float32 {
	k := len(mem) / m.dim
	dq := make([]float32, n*m.dim)
	invT := 1 / m.temperature

	for i := 0; i < n; i++ {
		row := gradSim[i*k : (i+1)*k]
		dqRow := dq[i*m.dim : (i+1)*m.dim]
		for j := 0; j < k; j++ {
			math32.Axpy(row[j]*invT, mem[j*m.dim:(j+1)*m.dim], dqRow)
		}
	}

	return dq
}
