// Package math32 provides generic float32 vector kernels.
// This is an internal package - external users should use the distance package.
package math32

import "math"

// Dot calculates the dot product of two vectors.
// Public for use by the distance and nn packages.
//
// SAFETY: This function assumes len(a) == len(b).
// It does NOT perform bounds checks for performance reasons.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// DotBatch calculates dot products of query against a batch of vectors.
// targets is a flattened array of N vectors, each of dimension dim.
// out must have length N (len(targets) / dim).
func DotBatch(query []float32, targets []float32, dim int, out []float32) {
	if dim <= 0 || len(out) == 0 {
		return
	}
	if len(query) < dim {
		return
	}

	q := query[:dim]
	n := min(len(out), len(targets)/dim)

	for i := 0; i < n; i++ {
		offset := i * dim
		out[i] = Dot(q, targets[offset:offset+dim])
	}
}

// ScaleInPlace multiplies all elements of a by scalar.
//
// This is primarily used by distance normalization.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Axpy computes y += alpha * x.
//
// SAFETY: assumes len(x) == len(y).
func Axpy(alpha float32, x, y []float32) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// Sqrt returns the square root of x as float32.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
