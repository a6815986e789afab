package nn

import (
	"github.com/hupe1980/isdgo/internal/math32"
)

// BatchNorm1d normalizes each feature over the batch dimension using batch
// statistics, then applies a learned affine transform. Running statistics
// are tracked as buffers for checkpointing; they never receive gradients.
//
// The layer always operates in training mode: the surrounding algorithm
// keeps both encoders in training mode, which is why key-view inputs are
// shuffled before encoding (see the shuffle package).
type BatchNorm1d struct {
	dim      int
	eps      float32
	momentum float32 // running-stat blend factor

	gamma *Param
	beta  *Param

	runningMean *Buffer
	runningVar  *Buffer

	// backward caches
	xhat   []float32
	invStd []float32
}

// NewBatchNorm1d creates a batch-norm layer over dim features.
// gamma starts at 1, beta at 0, running variance at 1.
func NewBatchNorm1d(name string, dim int) *BatchNorm1d {
	bn := &BatchNorm1d{
		dim:         dim,
		eps:         1e-5,
		momentum:    0.1,
		gamma:       NewParam(name+".weight", dim),
		beta:        NewParam(name+".bias", dim),
		runningMean: &Buffer{Name: name + ".running_mean", Data: make([]float32, dim)},
		runningVar:  &Buffer{Name: name + ".running_var", Data: make([]float32, dim)},
	}

	for i := 0; i < dim; i++ {
		bn.gamma.Data[i] = 1
		bn.runningVar.Data[i] = 1
	}

	return bn
}

// OutDim returns the feature dimension.
func (bn *BatchNorm1d) OutDim() int { return bn.dim }

// Forward normalizes x with batch statistics and updates running stats.
func (bn *BatchNorm1d) Forward(x []float32, n int) []float32 {
	d := bn.dim
	y := make([]float32, n*d)
	bn.xhat = make([]float32, n*d)
	bn.invStd = make([]float32, d)

	for j := 0; j < d; j++ {
		var mean float32
		for i := 0; i < n; i++ {
			mean += x[i*d+j]
		}
		mean /= float32(n)

		var variance float32
		for i := 0; i < n; i++ {
			diff := x[i*d+j] - mean
			variance += diff * diff
		}
		variance /= float32(n)

		invStd := 1 / math32.Sqrt(variance+bn.eps)
		bn.invStd[j] = invStd

		for i := 0; i < n; i++ {
			xh := (x[i*d+j] - mean) * invStd
			bn.xhat[i*d+j] = xh
			y[i*d+j] = bn.gamma.Data[j]*xh + bn.beta.Data[j]
		}

		// Running stats use the unbiased variance, matching the usual
		// framework convention.
		unbiased := variance
		if n > 1 {
			unbiased = variance * float32(n) / float32(n-1)
		}
		bn.runningMean.Data[j] = (1-bn.momentum)*bn.runningMean.Data[j] + bn.momentum*mean
		bn.runningVar.Data[j] = (1-bn.momentum)*bn.runningVar.Data[j] + bn.momentum*unbiased
	}

	return y
}

// Backward accumulates dGamma and dBeta and returns dx.
func (bn *BatchNorm1d) Backward(dy []float32, n int) []float32 {
	d := bn.dim
	dx := make([]float32, n*d)

	for j := 0; j < d; j++ {
		var sumDxhat, sumDxhatXhat float32
		for i := 0; i < n; i++ {
			dyv := dy[i*d+j]
			xh := bn.xhat[i*d+j]
			bn.gamma.Grad[j] += dyv * xh
			bn.beta.Grad[j] += dyv

			dxhat := dyv * bn.gamma.Data[j]
			sumDxhat += dxhat
			sumDxhatXhat += dxhat * xh
		}

		scale := bn.invStd[j] / float32(n)
		for i := 0; i < n; i++ {
			dxhat := dy[i*d+j] * bn.gamma.Data[j]
			dx[i*d+j] = scale * (float32(n)*dxhat - sumDxhat - bn.xhat[i*d+j]*sumDxhatXhat)
		}
	}

	return dx
}

// Params returns gamma and beta.
func (bn *BatchNorm1d) Params() []*Param { return []*Param{bn.gamma, bn.beta} }

// Buffers returns the running statistics.
func (bn *BatchNorm1d) Buffers() []*Buffer { return []*Buffer{bn.runningMean, bn.runningVar} }
