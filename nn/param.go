// Package nn implements the small neural-network toolkit the training core
// needs: linear layers, batch normalization, ReLU and row-wise L2
// normalization over flattened float32 batches, with manual forward and
// backward passes and named parameter state for checkpointing.
package nn

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/hupe1980/isdgo/internal/math32"
)

// Param is a named trainable tensor. Data and Grad always have equal length.
type Param struct {
	Name string
	Data []float32
	Grad []float32
}

// NewParam allocates a zero-initialized parameter of the given size.
func NewParam(name string, size int) *Param {
	return &Param{
		Name: name,
		Data: make([]float32, size),
		Grad: make([]float32, size),
	}
}

// ZeroGrad resets the gradient accumulator.
func (p *Param) ZeroGrad() {
	clear(p.Grad)
}

// Buffer is a named non-trainable tensor (e.g. batch-norm running stats).
// Buffers are part of checkpoint state but never receive gradients and are
// excluded from both the optimizer and the momentum blend.
type Buffer struct {
	Name string
	Data []float32
}

// Layer is a differentiable module operating on flattened n x dim batches.
// Forward caches whatever Backward needs; Backward returns the gradient with
// respect to the layer input and accumulates parameter gradients.
type Layer interface {
	Forward(x []float32, n int) []float32
	Backward(dy []float32, n int) []float32
	Params() []*Param
	Buffers() []*Buffer
	OutDim() int
}

// initLinearWeight fills w (out x in) with Kaiming-style scaled normal
// values.
func initLinearWeight(w []float32, fanIn int, rng *rand.Rand) {
	std := Sqrt2OverN(fanIn)
	for i := range w {
		w[i] = float32(rng.NormFloat64()) * std
	}
}

// Sqrt2OverN returns sqrt(2/n), the He-init standard deviation.
func Sqrt2OverN(n int) float32 {
	if n <= 0 {
		return 0
	}
	return math32.Sqrt(2 / float32(n))
}

// CopyParams copies parameter data from src to dst by position.
// Shapes must match exactly.
func CopyParams(dst, src []*Param) error {
	if len(dst) != len(src) {
		return fmt.Errorf("nn: parameter count mismatch: %d vs %d", len(dst), len(src))
	}
	for i := range dst {
		if len(dst[i].Data) != len(src[i].Data) {
			return fmt.Errorf("nn: parameter %q size mismatch: %d vs %d",
				dst[i].Name, len(dst[i].Data), len(src[i].Data))
		}
		copy(dst[i].Data, src[i].Data)
	}
	return nil
}

// EMAUpdate blends dst toward src in place: dst = m*dst + (1-m)*src.
// This is the momentum update linking the key encoder to the query encoder;
// it never touches gradients.
func EMAUpdate(dst, src []*Param, m float32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("nn: parameter count mismatch: %d vs %d", len(dst), len(src))
	}
	for i := range dst {
		d, s := dst[i].Data, src[i].Data
		if len(d) != len(s) {
			return fmt.Errorf("nn: parameter %q size mismatch: %d vs %d", dst[i].Name, len(d), len(s))
		}
		for j := range d {
			// Incremental form of d = m*d + (1-m)*s; exactly a no-op
			// while both encoders still hold identical weights.
			d[j] += (1 - m) * (s[j] - d[j])
		}
	}
	return nil
}

// NamedTensor is a single entry of an exported state dict.
type NamedTensor struct {
	Name string
	Data []float32
}

// cloneNamed copies params and buffers into an ordered state dict.
func cloneNamed(params []*Param, buffers []*Buffer) []NamedTensor {
	out := make([]NamedTensor, 0, len(params)+len(buffers))
	for _, p := range params {
		out = append(out, NamedTensor{Name: p.Name, Data: slices.Clone(p.Data)})
	}
	for _, b := range buffers {
		out = append(out, NamedTensor{Name: b.Name, Data: slices.Clone(b.Data)})
	}
	return out
}

// loadNamed restores params and buffers from a state dict. Loading is
// strict: every tensor must be present with a matching shape, and unknown
// names are rejected.
func loadNamed(params []*Param, buffers []*Buffer, state []NamedTensor) error {
	byName := make(map[string][]float32, len(state))
	for _, nt := range state {
		if _, ok := byName[nt.Name]; ok {
			return fmt.Errorf("nn: duplicate tensor %q in state", nt.Name)
		}
		byName[nt.Name] = nt.Data
	}

	restore := func(name string, dst []float32) error {
		data, ok := byName[name]
		if !ok {
			return fmt.Errorf("nn: missing tensor %q in state", name)
		}
		if len(data) != len(dst) {
			return fmt.Errorf("nn: tensor %q size mismatch: %d vs %d", name, len(data), len(dst))
		}
		copy(dst, data)
		delete(byName, name)
		return nil
	}

	for _, p := range params {
		if err := restore(p.Name, p.Data); err != nil {
			return err
		}
	}
	for _, b := range buffers {
		if err := restore(b.Name, b.Data); err != nil {
			return err
		}
	}

	for name := range byName {
		return fmt.Errorf("nn: unexpected tensor %q in state", name)
	}
	return nil
}
