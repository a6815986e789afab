package isdgo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKLDivLossZeroWhenIdentical(t *testing.T) {
	criterion := NewKLDivLoss()

	sim := []float32{0.5, -1.2, 3.0, 0.0, 2.2, -0.7}
	loss, grad, err := criterion.Forward(sim, sim, 2, 3)
	require.NoError(t, err)

	assert.InDelta(t, 0, loss, 1e-6)
	for _, g := range grad {
		assert.InDelta(t, 0, g, 1e-6)
	}
}

func TestKLDivLossGradient(t *testing.T) {
	criterion := NewKLDivLoss()

	simQ := []float32{1, 0}
	simK := []float32{0, 1}

	loss, grad, err := criterion.Forward(simQ, simK, 1, 2)
	require.NoError(t, err)

	// softmax([1,0]) = [e/(e+1), 1/(e+1)], softmax([0,1]) mirrored.
	e := math.E
	p := e / (e + 1)
	assert.InDelta(t, float32(p-(1-p)), grad[0], 1e-5)
	assert.InDelta(t, float32((1-p)-p), grad[1], 1e-5)

	// KL(target || pred) = sum t * (log t - log p).
	want := (1-p)*(math.Log(1-p)-math.Log(p)) + p*(math.Log(p)-math.Log(1-p))
	assert.InDelta(t, want, loss, 1e-5)
}

func TestKLDivLossGradientSumsToZeroPerRow(t *testing.T) {
	criterion := NewKLDivLoss()
	const n, k = 3, 5

	simQ := randBatch(n, k, 10)
	simK := randBatch(n, k, 11)

	_, grad, err := criterion.Forward(simQ, simK, n, k)
	require.NoError(t, err)

	// Both softmax rows sum to one, so each gradient row sums to zero.
	for i := 0; i < n; i++ {
		var sum float32
		for _, g := range grad[i*k : (i+1)*k] {
			sum += g
		}
		assert.InDelta(t, 0, sum, 1e-5)
	}
}

func TestKLDivLossBatchMean(t *testing.T) {
	criterion := NewKLDivLoss()

	row := []float32{0.3, -0.8, 1.5}
	target := []float32{-0.2, 0.9, 0.1}

	single, _, err := criterion.Forward(row, target, 1, 3)
	require.NoError(t, err)

	both := append(append([]float32{}, row...), row...)
	targets := append(append([]float32{}, target...), target...)
	double, grad, err := criterion.Forward(both, targets, 2, 3)
	require.NoError(t, err)

	// Duplicating the row leaves the batch-mean loss unchanged and halves
	// each per-row gradient.
	assert.InDelta(t, single, double, 1e-6)

	singleGrad := make([]float32, 3)
	_, singleGradFull, err := criterion.Forward(row, target, 1, 3)
	require.NoError(t, err)
	copy(singleGrad, singleGradFull)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, singleGrad[j]/2, grad[j], 1e-6)
	}
}

func TestKLDivLossNonFinite(t *testing.T) {
	criterion := NewKLDivLoss()

	inf := float32(math.Inf(1))
	simQ := []float32{inf, inf}
	simK := []float32{0, 0}

	_, _, err := criterion.Forward(simQ, simK, 1, 2)
	assert.ErrorIs(t, err, ErrNonFiniteLoss)
}

func TestKLDivLossShapeCheck(t *testing.T) {
	criterion := NewKLDivLoss()

	_, _, err := criterion.Forward(make([]float32, 5), make([]float32, 6), 2, 3)
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}
