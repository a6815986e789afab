package nn

import (
	"fmt"
	"math/rand"
)

// ErrUnknownArch is returned for an unrecognized architecture name.
type ErrUnknownArch struct {
	Arch string
}

func (e *ErrUnknownArch) Error() string {
	return fmt.Sprintf("unknown architecture: %q", e.Arch)
}

// Sequential chains layers, applying them in order on forward and in reverse
// on backward.
type Sequential struct {
	layers []Layer
	inDim  int
}

// NewSequential creates a sequential module over the given layers.
func NewSequential(inDim int, layers ...Layer) *Sequential {
	return &Sequential{layers: layers, inDim: inDim}
}

// InDim returns the expected input dimension.
func (s *Sequential) InDim() int { return s.inDim }

// OutDim returns the output dimension of the last layer.
func (s *Sequential) OutDim() int {
	if len(s.layers) == 0 {
		return s.inDim
	}
	return s.layers[len(s.layers)-1].OutDim()
}

// Forward runs the batch through all layers.
func (s *Sequential) Forward(x []float32, n int) []float32 {
	for _, l := range s.layers {
		x = l.Forward(x, n)
	}
	return x
}

// Backward propagates dy through the layers in reverse order.
func (s *Sequential) Backward(dy []float32, n int) []float32 {
	for i := len(s.layers) - 1; i >= 0; i-- {
		dy = s.layers[i].Backward(dy, n)
	}
	return dy
}

// Params returns all trainable parameters in layer order.
func (s *Sequential) Params() []*Param {
	var out []*Param
	for _, l := range s.layers {
		out = append(out, l.Params()...)
	}
	return out
}

// Buffers returns all non-trainable buffers in layer order.
func (s *Sequential) Buffers() []*Buffer {
	var out []*Buffer
	for _, l := range s.layers {
		out = append(out, l.Buffers()...)
	}
	return out
}

// State exports an ordered copy of all parameters and buffers.
func (s *Sequential) State() []NamedTensor {
	return cloneNamed(s.Params(), s.Buffers())
}

// LoadState restores parameters and buffers from an exported state.
// Loading is strict: names and shapes must match exactly.
func (s *Sequential) LoadState(state []NamedTensor) error {
	return loadNamed(s.Params(), s.Buffers(), state)
}

// archSpec fixes hidden and output dimensions per architecture name.
type archSpec struct {
	hidden int
	out    int
}

var archs = map[string]archSpec{
	"mlp-small": {hidden: 256, out: 128},
	"mlp":       {hidden: 1024, out: 512},
}

// NewEncoder builds the backbone for the named architecture: a two-layer MLP
// with batch normalization, producing un-normalized features of the
// architecture's output dimension. Parameter names are prefixed with name.
func NewEncoder(arch, name string, inDim int, rng *rand.Rand) (*Sequential, error) {
	spec, ok := archs[arch]
	if !ok {
		return nil, &ErrUnknownArch{Arch: arch}
	}
	if inDim <= 0 {
		return nil, fmt.Errorf("nn: input dimension must be positive, got %d", inDim)
	}

	return NewSequential(inDim,
		NewLinear(name+".fc1", inDim, spec.hidden, false, rng),
		NewBatchNorm1d(name+".bn1", spec.hidden),
		NewReLU(spec.hidden),
		NewLinear(name+".fc2", spec.hidden, spec.out, true, rng),
	), nil
}

// NewProjectionHead builds the prediction head attached to the query branch:
// linear (no bias) -> batch norm -> ReLU -> linear (bias), feature dimension
// preserved.
func NewProjectionHead(name string, featDim int, rng *rand.Rand) *Sequential {
	return NewSequential(featDim,
		NewLinear(name+".fc1", featDim, featDim, false, rng),
		NewBatchNorm1d(name+".bn1", featDim),
		NewReLU(featDim),
		NewLinear(name+".fc2", featDim, featDim, true, rng),
	)
}

// EncoderOutDim reports the embedding dimension of an architecture without
// constructing it.
func EncoderOutDim(arch string) (int, error) {
	spec, ok := archs[arch]
	if !ok {
		return 0, &ErrUnknownArch{Arch: arch}
	}
	return spec.out, nil
}
