package nn

import (
	"math/rand"
)

// Linear is a fully connected layer mapping n x in batches to n x out.
// Weight layout is out x in, row-major.
type Linear struct {
	in, out int
	weight  *Param
	bias    *Param // nil when constructed without bias

	x []float32 // cached input for backward
}

// NewLinear creates a linear layer. Weights use scaled normal init; the bias
// (if any) starts at zero. name prefixes the parameter names.
func NewLinear(name string, in, out int, withBias bool, rng *rand.Rand) *Linear {
	l := &Linear{
		in:     in,
		out:    out,
		weight: NewParam(name+".weight", out*in),
	}
	initLinearWeight(l.weight.Data, in, rng)

	if withBias {
		l.bias = NewParam(name+".bias", out)
	}

	return l
}

// OutDim returns the output dimension.
func (l *Linear) OutDim() int { return l.out }

// Forward computes y = x Wᵀ + b and caches x.
func (l *Linear) Forward(x []float32, n int) []float32 {
	l.x = x
	y := make([]float32, n*l.out)

	for i := 0; i < n; i++ {
		xi := x[i*l.in : (i+1)*l.in]
		yi := y[i*l.out : (i+1)*l.out]
		for o := 0; o < l.out; o++ {
			w := l.weight.Data[o*l.in : (o+1)*l.in]
			var sum float32
			for j := range xi {
				sum += w[j] * xi[j]
			}
			if l.bias != nil {
				sum += l.bias.Data[o]
			}
			yi[o] = sum
		}
	}

	return y
}

// Backward accumulates dW and dB and returns dx.
func (l *Linear) Backward(dy []float32, n int) []float32 {
	dx := make([]float32, n*l.in)

	for i := 0; i < n; i++ {
		xi := l.x[i*l.in : (i+1)*l.in]
		dyi := dy[i*l.out : (i+1)*l.out]
		dxi := dx[i*l.in : (i+1)*l.in]

		for o := 0; o < l.out; o++ {
			g := dyi[o]
			if g == 0 {
				continue
			}
			w := l.weight.Data[o*l.in : (o+1)*l.in]
			dw := l.weight.Grad[o*l.in : (o+1)*l.in]
			for j := range xi {
				dw[j] += g * xi[j]
				dxi[j] += g * w[j]
			}
			if l.bias != nil {
				l.bias.Grad[o] += g
			}
		}
	}

	return dx
}

// Params returns the trainable parameters.
func (l *Linear) Params() []*Param {
	if l.bias == nil {
		return []*Param{l.weight}
	}
	return []*Param{l.weight, l.bias}
}

// Buffers returns nil; linear layers carry no non-trainable state.
func (l *Linear) Buffers() []*Buffer { return nil }
