package isdgo

import (
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/isdgo/nn"
)

const testInDim = 12

func newTestModel(t *testing.T, optFns ...Option) *ISD {
	t.Helper()
	opts := append([]Option{
		WithQueueSize(16),
		WithSeed(1),
	}, optFns...)
	m, err := New("mlp-small", testInDim, opts...)
	require.NoError(t, err)
	return m
}

func randBatch(n, dim int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n*dim)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}

func TestNewValidation(t *testing.T) {
	_, err := New("resnet50", testInDim)
	assert.Error(t, err)

	_, err = New("mlp-small", testInDim, WithTemperature(0))
	assert.Error(t, err)

	_, err = New("mlp-small", testInDim, WithKeyMomentum(1))
	assert.Error(t, err)

	_, err = New("mlp-small", testInDim, WithQueueSize(0))
	assert.Error(t, err)
}

func TestEncodersStartIdentical(t *testing.T) {
	m := newTestModel(t)

	qParams := m.encQ.Params()
	kParams := m.encK.Params()
	require.Equal(t, len(qParams), len(kParams))
	for i := range qParams {
		assert.Equal(t, qParams[i].Data, kParams[i].Data)
	}
}

func TestMomentumUpdateNoDriftAtInit(t *testing.T) {
	m := newTestModel(t)

	require.NoError(t, m.MomentumUpdate())

	qParams := m.encQ.Params()
	kParams := m.encK.Params()
	for i := range qParams {
		assert.Equal(t, qParams[i].Data, kParams[i].Data)
	}
}

func TestMomentumUpdateBlend(t *testing.T) {
	m := newTestModel(t, WithKeyMomentum(0.9))

	// Perturb one query parameter and check the blend.
	p := m.encQ.Params()[0]
	k := m.encK.Params()[0]
	k0 := k.Data[0]
	p.Data[0] = k0 + 10

	require.NoError(t, m.MomentumUpdate())
	assert.InDelta(t, 0.9*k0+0.1*(k0+10), k.Data[0], 1e-4)
}

func TestEmbeddingsAreUnitNorm(t *testing.T) {
	m := newTestModel(t)
	const n = 4

	q, err := m.EncodeQuery(randBatch(n, testInDim, 2), n)
	require.NoError(t, err)
	k, err := m.EncodeKey(randBatch(n, testInDim, 3), n)
	require.NoError(t, err)

	d := m.EmbedDim()
	for _, batch := range [][]float32{q, k} {
		require.Len(t, batch, n*d)
		for i := 0; i < n; i++ {
			var norm2 float32
			for _, v := range batch[i*d : (i+1)*d] {
				norm2 += v * v
			}
			assert.InDelta(t, float32(1), norm2, 1e-4)
		}
	}
}

func TestEncodeKeyShuffleRestoresOrder(t *testing.T) {
	// Batch statistics are permutation invariant, so encoding with and
	// without shuffle must agree row by row once the inverse permutation
	// has been applied.
	const n = 8
	imK := randBatch(n, testInDim, 4)

	plain := newTestModel(t, WithShuffleBN(false))
	shuffled := newTestModel(t, WithShuffleBN(true))
	require.NoError(t, shuffled.LoadState(plain.State()))

	want, err := plain.EncodeKey(imK, n)
	require.NoError(t, err)
	got, err := shuffled.EncodeKey(imK, n)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-3)
	}
}

func TestEncodeDimensionChecks(t *testing.T) {
	m := newTestModel(t)

	_, err := m.EncodeQuery(make([]float32, 5), 4)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)

	_, err = m.EncodeKey(make([]float32, 5), 4)
	require.ErrorAs(t, err, &dm)
}

func TestTrainableParamsExcludeKeyEncoder(t *testing.T) {
	m := newTestModel(t)

	params := m.TrainableParams()
	require.NotEmpty(t, params)
	for _, p := range params {
		assert.False(t, strings.HasPrefix(p.Name, "encoder_k."), "key encoder must not be trainable: %s", p.Name)
	}
}

func TestForwardScoresAgainstPreEnqueueBank(t *testing.T) {
	const n = 4
	m := newTestModel(t, WithShuffleBN(false))
	kSize := m.QueueSize()
	d := m.EmbedDim()

	memPre := m.queue.Snapshot()

	imQ := randBatch(n, testInDim, 5)
	imK := randBatch(n, testInDim, 6)

	out, err := m.Forward(imQ, imK, n)
	require.NoError(t, err)
	require.Len(t, out.SimQ, n*kSize)
	require.Len(t, out.SimK, n*kSize)

	// Pointer advanced by the batch size.
	assert.Equal(t, n, m.QueuePtr())

	// The model parameters were untouched (no optimizer step, momentum
	// update was a no-op), so re-encoding yields this step's keys.
	keys, err := m.EncodeKey(imK, n)
	require.NoError(t, err)

	// simK rows must match scores against the pre-enqueue snapshot.
	invT := 1 / m.Temperature()
	for i := 0; i < n; i++ {
		for j := 0; j < kSize; j++ {
			var dot float32
			for x := 0; x < d; x++ {
				dot += keys[i*d+x] * memPre[j*d+x]
			}
			assert.InDelta(t, dot*invT, out.SimK[i*kSize+j], 1e-2)
		}
	}

	// Had scoring happened after the enqueue, key i would have scored
	// against itself at bank position i with the maximum score 1/T.
	for i := 0; i < n; i++ {
		assert.Less(t, out.SimK[i*kSize+i]+1, invT)
	}
}

func TestBackwardSimilaritiesProjection(t *testing.T) {
	m := newTestModel(t)
	d := m.EmbedDim()
	const n, k = 2, 3

	mem := randBatch(k, d, 12)
	gradSim := randBatch(n, k, 13)

	dq := m.backwardSimilarities(gradSim, mem, n)
	require.Len(t, dq, n*d)

	invT := 1 / m.Temperature()
	for i := 0; i < n; i++ {
		for x := 0; x < d; x++ {
			var want float32
			for j := 0; j < k; j++ {
				want += gradSim[i*k+j] * mem[j*d+x] * invT
			}
			assert.InDelta(t, want, dq[i*d+x], 1e-4)
		}
	}
}

func TestBackwardRejectsWrongGradientShape(t *testing.T) {
	const n = 4
	m := newTestModel(t, WithShuffleBN(false))

	out, err := m.Forward(randBatch(n, testInDim, 14), randBatch(n, testInDim, 15), n)
	require.NoError(t, err)

	var dm *ErrDimensionMismatch
	require.ErrorAs(t, m.Backward(out, make([]float32, 5), n), &dm)
}

func TestBackwardMatchesNumericalGradient(t *testing.T) {
	const n = 4
	m := newTestModel(t, WithShuffleBN(false), WithTemperature(0.2))
	criterion := NewKLDivLoss()

	imQ := randBatch(n, testInDim, 10)
	imK := randBatch(n, testInDim, 11)
	base := m.State()

	// Analytic gradients from one full forward/backward pass.
	out, err := m.Forward(imQ, imK, n)
	require.NoError(t, err)
	_, grad, err := criterion.Forward(out.SimQ, out.SimK, n, m.QueueSize())
	require.NoError(t, err)
	for _, p := range m.TrainableParams() {
		p.ZeroGrad()
	}
	require.NoError(t, m.Backward(out, grad, n))

	analytic := make(map[string][]float32)
	for _, p := range m.TrainableParams() {
		analytic[p.Name] = slices.Clone(p.Grad)
	}

	// Central finite differences on sampled weights. Every probe restores
	// the saved state first, so each evaluation scores against the same
	// bank the analytic pass did.
	lossAt := func(p *nn.Param, j int, delta float32) float64 {
		require.NoError(t, m.LoadState(base))
		p.Data[j] += delta
		out, err := m.Forward(imQ, imK, n)
		require.NoError(t, err)
		loss, _, err := criterion.Forward(out.SimQ, out.SimK, n, m.QueueSize())
		require.NoError(t, err)
		return loss
	}

	const eps = 1e-2
	params := m.TrainableParams()
	for _, p := range []*nn.Param{params[0], params[1], params[len(params)-1]} {
		for _, j := range []int{0, len(p.Data) / 2, len(p.Data) - 1} {
			num := (lossAt(p, j, eps) - lossAt(p, j, -eps)) / (2 * eps)
			assert.InDelta(t, num, float64(analytic[p.Name][j]), 1e-2, "%s[%d]", p.Name, j)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	const n = 4
	m := newTestModel(t)

	_, err := m.Forward(randBatch(n, testInDim, 7), randBatch(n, testInDim, 8), n)
	require.NoError(t, err)

	state := m.State()

	m2 := newTestModel(t, WithSeed(99))
	require.NoError(t, m2.LoadState(state))

	imQ := randBatch(n, testInDim, 9)
	q1, err := m.EncodeQuery(imQ, n)
	require.NoError(t, err)
	q2, err := m2.EncodeQuery(imQ, n)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, m.QueuePtr(), m2.QueuePtr())

	// Strict load: wrong arch.
	other, err := New("mlp", testInDim, WithQueueSize(16))
	require.NoError(t, err)
	assert.Error(t, other.LoadState(state))

	// Strict load: foreign tensor name.
	bad := state
	bad.Tensors = append(append([]nn.NamedTensor{}, state.Tensors...), nn.NamedTensor{
		Name: "encoder_x.fc1.weight",
		Data: []float32{1},
	})
	assert.Error(t, m2.LoadState(bad))
}
