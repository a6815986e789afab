package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numericalGrad estimates dL/dtheta for L = sum(Forward(x) * c) by central
// differences.
func numericalGrad(forward func() []float32, c []float32, theta []float32, idx int) float32 {
	const eps = 1e-3

	loss := func() float32 {
		y := forward()
		var sum float32
		for i := range y {
			sum += y[i] * c[i]
		}
		return sum
	}

	orig := theta[idx]
	theta[idx] = orig + eps
	lp := loss()
	theta[idx] = orig - eps
	lm := loss()
	theta[idx] = orig

	return (lp - lm) / (2 * eps)
}

func randSlice(n int, rng *rand.Rand) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}

func TestLinearGradCheck(t *testing.T) {
	const (
		n   = 4
		in  = 3
		out = 2
	)

	rng := rand.New(rand.NewSource(1))
	l := NewLinear("fc", in, out, true, rng)
	x := randSlice(n*in, rng)
	c := randSlice(n*out, rng)

	y := l.Forward(x, n)
	require.Len(t, y, n*out)
	dx := l.Backward(c, n)

	forward := func() []float32 { return l.Forward(x, n) }

	for idx := 0; idx < in*out; idx++ {
		want := numericalGrad(forward, c, l.weight.Data, idx)
		assert.InDelta(t, want, l.weight.Grad[idx], 2e-2, "weight grad %d", idx)
	}
	for idx := 0; idx < out; idx++ {
		want := numericalGrad(forward, c, l.bias.Data, idx)
		assert.InDelta(t, want, l.bias.Grad[idx], 2e-2, "bias grad %d", idx)
	}
	for idx := range x {
		want := numericalGrad(forward, c, x, idx)
		assert.InDelta(t, want, dx[idx], 2e-2, "input grad %d", idx)
	}
}

func TestBatchNormGradCheck(t *testing.T) {
	const (
		n   = 6
		dim = 3
	)

	rng := rand.New(rand.NewSource(2))
	bn := NewBatchNorm1d("bn", dim)
	// Non-trivial affine params.
	for i := 0; i < dim; i++ {
		bn.gamma.Data[i] = 0.5 + rng.Float32()
		bn.beta.Data[i] = float32(rng.NormFloat64())
	}

	x := randSlice(n*dim, rng)
	c := randSlice(n*dim, rng)

	bn.Forward(x, n)
	dx := bn.Backward(c, n)

	forward := func() []float32 { return bn.Forward(x, n) }

	for idx := range x {
		want := numericalGrad(forward, c, x, idx)
		assert.InDelta(t, want, dx[idx], 5e-2, "input grad %d", idx)
	}
	for idx := 0; idx < dim; idx++ {
		want := numericalGrad(forward, c, bn.gamma.Data, idx)
		assert.InDelta(t, want, bn.gamma.Grad[idx], 5e-2, "gamma grad %d", idx)
		want = numericalGrad(forward, c, bn.beta.Data, idx)
		assert.InDelta(t, want, bn.beta.Grad[idx], 5e-2, "beta grad %d", idx)
	}
}

func TestL2NormGradCheck(t *testing.T) {
	const (
		n   = 3
		dim = 4
	)

	rng := rand.New(rand.NewSource(3))
	l := NewL2Norm(dim)
	x := randSlice(n*dim, rng)
	c := randSlice(n*dim, rng)

	l.Forward(x, n)
	dx := l.Backward(c, n)

	forward := func() []float32 { return l.Forward(x, n) }
	for idx := range x {
		want := numericalGrad(forward, c, x, idx)
		assert.InDelta(t, want, dx[idx], 2e-2, "input grad %d", idx)
	}
}

func TestL2NormUnitRows(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	l := NewL2Norm(5)
	x := randSlice(4*5, rng)

	y := l.Forward(x, 4)
	for i := 0; i < 4; i++ {
		var norm2 float32
		for j := 0; j < 5; j++ {
			norm2 += y[i*5+j] * y[i*5+j]
		}
		assert.InDelta(t, float32(1), norm2, 1e-5)
	}
}

func TestReLU(t *testing.T) {
	r := NewReLU(2)
	y := r.Forward([]float32{-1, 2, 0, 3}, 2)
	assert.Equal(t, []float32{0, 2, 0, 3}, y)

	dx := r.Backward([]float32{1, 1, 1, 1}, 2)
	assert.Equal(t, []float32{0, 1, 0, 1}, dx)
}

func TestEMAUpdate(t *testing.T) {
	key := []*Param{{Name: "w", Data: []float32{1, 2}, Grad: make([]float32, 2)}}
	query := []*Param{{Name: "w", Data: []float32{3, 4}, Grad: make([]float32, 2)}}

	// After one update: m*k + (1-m)*q.
	require.NoError(t, EMAUpdate(key, query, 0.9))
	assert.InDelta(t, float32(0.9*1+0.1*3), key[0].Data[0], 1e-6)
	assert.InDelta(t, float32(0.9*2+0.1*4), key[0].Data[1], 1e-6)

	// With identical parameter sets there is no drift.
	k2 := []*Param{{Name: "w", Data: []float32{5, 6}, Grad: make([]float32, 2)}}
	q2 := []*Param{{Name: "w", Data: []float32{5, 6}, Grad: make([]float32, 2)}}
	require.NoError(t, EMAUpdate(k2, q2, 0.999))
	assert.InDelta(t, float32(5), k2[0].Data[0], 1e-6)
	assert.InDelta(t, float32(6), k2[0].Data[1], 1e-6)

	// Shape mismatch rejected.
	bad := []*Param{{Name: "w", Data: []float32{1}, Grad: make([]float32, 1)}}
	assert.Error(t, EMAUpdate(key, bad, 0.9))
}

func TestEncoderArchs(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	enc, err := NewEncoder("mlp-small", "encoder_q", 12, rng)
	require.NoError(t, err)
	assert.Equal(t, 128, enc.OutDim())

	y := enc.Forward(randSlice(2*12, rng), 2)
	assert.Len(t, y, 2*128)

	_, err = NewEncoder("resnet50", "encoder_q", 12, rng)
	var ua *ErrUnknownArch
	require.ErrorAs(t, err, &ua)
	assert.Equal(t, "resnet50", ua.Arch)

	dim, err := EncoderOutDim("mlp")
	require.NoError(t, err)
	assert.Equal(t, 512, dim)
}

func TestStateRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(6))

	enc, err := NewEncoder("mlp-small", "encoder_q", 8, rng)
	require.NoError(t, err)
	state := enc.State()

	enc2, err := NewEncoder("mlp-small", "encoder_q", 8, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.NoError(t, enc2.LoadState(state))

	x := randSlice(4*8, rng)
	assert.Equal(t, enc.Forward(x, 4), enc2.Forward(x, 4))

	// Strictness: missing tensor.
	assert.Error(t, enc2.LoadState(state[1:]))

	// Strictness: unexpected tensor.
	extra := append(append([]NamedTensor(nil), state...), NamedTensor{Name: "ghost", Data: []float32{1}})
	assert.Error(t, enc2.LoadState(extra))

	// Strictness: shape mismatch.
	bad := append([]NamedTensor(nil), state...)
	bad[0] = NamedTensor{Name: bad[0].Name, Data: []float32{1, 2}}
	assert.Error(t, enc2.LoadState(bad))
}

func TestCopyParams(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	a, err := NewEncoder("mlp-small", "encoder_q", 6, rng)
	require.NoError(t, err)
	b, err := NewEncoder("mlp-small", "encoder_k", 6, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	require.NoError(t, CopyParams(b.Params(), a.Params()))
	for i, p := range a.Params() {
		assert.Equal(t, p.Data, b.Params()[i].Data)
	}
}
