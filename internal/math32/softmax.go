package math32

import "math"

// SoftmaxInPlace converts logits to probabilities in place.
// Uses the max-subtraction trick for numerical stability.
func SoftmaxInPlace(logits []float32) {
	if len(logits) == 0 {
		return
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxVal)))
		logits[i] = e
		sum += e
	}

	inv := 1 / sum
	for i := range logits {
		logits[i] *= inv
	}
}

// LogSoftmaxInPlace converts logits to log-probabilities in place.
func LogSoftmaxInPlace(logits []float32) {
	if len(logits) == 0 {
		return
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxVal))
	}
	logSum := float32(math.Log(sum)) + maxVal

	for i := range logits {
		logits[i] -= logSum
	}
}
