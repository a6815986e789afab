package isdgo

import (
	"math"
	"slices"

	"github.com/hupe1980/isdgo/internal/math32"
)

// KLDivLoss is the distillation criterion: the key-side similarity scores
// form a soft target distribution (softmax over the bank axis), the
// query-side scores a predicted distribution (log-softmax), and the loss is
// the batch-mean KL divergence of predicted from target.
//
// Gradients flow only through the query scores; the key path is detached by
// construction.
type KLDivLoss struct{}

// NewKLDivLoss creates the distillation criterion.
func NewKLDivLoss() *KLDivLoss { return &KLDivLoss{} }

// Forward computes the batch-mean KL divergence between the distributions
// induced by simQ and simK (both n x k, flattened) and the gradient with
// respect to simQ: (softmax(simQ) - softmax(simK)) / n.
//
// Returns ErrNonFiniteLoss when the result is NaN or Inf; the caller is
// expected to abort the run.
func (l *KLDivLoss) Forward(simQ, simK []float32, n, k int) (float64, []float32, error) {
	if len(simQ) != n*k || len(simK) != n*k {
		return 0, nil, &ErrDimensionMismatch{Expected: n * k, Actual: len(simQ)}
	}

	grad := make([]float32, n*k)
	var total float64

	for i := 0; i < n; i++ {
		logPredRow := slices.Clone(simQ[i*k : (i+1)*k])
		math32.LogSoftmaxInPlace(logPredRow)

		predRow := slices.Clone(simQ[i*k : (i+1)*k])
		math32.SoftmaxInPlace(predRow)

		targetRow := slices.Clone(simK[i*k : (i+1)*k])
		math32.SoftmaxInPlace(targetRow)

		gradRow := grad[i*k : (i+1)*k]
		invN := 1 / float32(n)
		for j := 0; j < k; j++ {
			t := targetRow[j]
			if t > 0 {
				total += float64(t) * (math.Log(float64(t)) - float64(logPredRow[j]))
			}
			gradRow[j] = (predRow[j] - t) * invN
		}
	}

	loss := total / float64(n)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, nil, ErrNonFiniteLoss
	}

	return loss, grad, nil
}
