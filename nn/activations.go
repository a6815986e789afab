package nn

import (
	"github.com/hupe1980/isdgo/internal/math32"
)

// ReLU zeroes negative activations.
type ReLU struct {
	dim  int
	mask []bool
}

// NewReLU creates a ReLU over dim features.
func NewReLU(dim int) *ReLU {
	return &ReLU{dim: dim}
}

// OutDim returns the feature dimension.
func (r *ReLU) OutDim() int { return r.dim }

// Forward computes max(0, x) and caches the active mask.
func (r *ReLU) Forward(x []float32, n int) []float32 {
	y := make([]float32, len(x))
	r.mask = make([]bool, len(x))
	for i, v := range x {
		if v > 0 {
			y[i] = v
			r.mask[i] = true
		}
	}
	return y
}

// Backward zeroes gradients where the input was negative.
func (r *ReLU) Backward(dy []float32, n int) []float32 {
	dx := make([]float32, len(dy))
	for i, active := range r.mask {
		if active {
			dx[i] = dy[i]
		}
	}
	return dx
}

// Params returns nil; ReLU has no parameters.
func (r *ReLU) Params() []*Param { return nil }

// Buffers returns nil.
func (r *ReLU) Buffers() []*Buffer { return nil }

// L2Norm normalizes each row of the batch to unit length. The backward pass
// projects the incoming gradient onto the tangent space of the unit sphere:
// dx = (dy - y*(y·dy)) / ‖x‖.
type L2Norm struct {
	dim     int
	y       []float32
	invNorm []float32
}

// NewL2Norm creates a row-wise L2 normalization layer over dim features.
func NewL2Norm(dim int) *L2Norm {
	return &L2Norm{dim: dim}
}

// OutDim returns the feature dimension.
func (l *L2Norm) OutDim() int { return l.dim }

// Forward normalizes every row to unit L2 norm.
func (l *L2Norm) Forward(x []float32, n int) []float32 {
	d := l.dim
	y := make([]float32, len(x))
	l.invNorm = make([]float32, n)

	for i := 0; i < n; i++ {
		row := x[i*d : (i+1)*d]
		norm2 := math32.Dot(row, row)
		inv := float32(0)
		if norm2 > 0 {
			inv = 1 / math32.Sqrt(norm2)
		}
		l.invNorm[i] = inv
		for j, v := range row {
			y[i*d+j] = v * inv
		}
	}

	l.y = y
	return y
}

// Backward returns the gradient with respect to the unnormalized input.
func (l *L2Norm) Backward(dy []float32, n int) []float32 {
	d := l.dim
	dx := make([]float32, len(dy))

	for i := 0; i < n; i++ {
		yi := l.y[i*d : (i+1)*d]
		dyi := dy[i*d : (i+1)*d]
		dot := math32.Dot(yi, dyi)
		inv := l.invNorm[i]
		for j := range yi {
			dx[i*d+j] = (dyi[j] - yi[j]*dot) * inv
		}
	}

	return dx
}

// Params returns nil; normalization has no parameters.
func (l *L2Norm) Params() []*Param { return nil }

// Buffers returns nil.
func (l *L2Norm) Buffers() []*Buffer { return nil }
