// Package optim implements the gradient-descent optimizer for the trainable
// branch (query encoder + projection head). The key encoder is never
// registered here; it is updated only by the momentum blend in nn.EMAUpdate.
package optim

import (
	"fmt"
	"slices"

	"github.com/hupe1980/isdgo/nn"
)

// Options configures the SGD optimizer.
type Options struct {
	// LR is the initial learning rate for the parameter group.
	LR float32

	// Momentum is the classical momentum coefficient.
	Momentum float32

	// WeightDecay is the L2 penalty added to gradients before the momentum
	// accumulation.
	WeightDecay float32
}

// DefaultOptions mirror the usual SGD settings for this training recipe.
var DefaultOptions = Options{
	LR:          0.01,
	Momentum:    0.9,
	WeightDecay: 1e-4,
}

// Group is a parameter group with its own learning rate.
type Group struct {
	Params []*nn.Param
	LR     float32
}

// SGD is stochastic gradient descent with momentum and weight decay.
// Not safe for concurrent use.
type SGD struct {
	opts    Options
	groups  []*Group
	momBufs map[*nn.Param][]float32
}

// New creates an SGD optimizer over a single parameter group.
func New(params []*nn.Param, optFns ...func(o *Options)) (*SGD, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("optim: no trainable parameters")
	}
	if opts.LR <= 0 {
		return nil, fmt.Errorf("optim: learning rate must be positive, got %g", opts.LR)
	}
	if opts.Momentum < 0 || opts.Momentum >= 1 {
		return nil, fmt.Errorf("optim: momentum must be in [0,1), got %g", opts.Momentum)
	}

	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("optim: duplicate parameter name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	return &SGD{
		opts:    opts,
		groups:  []*Group{{Params: params, LR: opts.LR}},
		momBufs: make(map[*nn.Param][]float32, len(params)),
	}, nil
}

// Groups returns the parameter groups.
func (s *SGD) Groups() []*Group { return s.groups }

// SetLR overwrites the learning rate of every parameter group.
// No other optimizer state is touched.
func (s *SGD) SetLR(lr float32) {
	for _, g := range s.groups {
		g.LR = lr
	}
}

// LR returns the learning rate of the first group.
func (s *SGD) LR() float32 { return s.groups[0].LR }

// ZeroGrad resets all gradient accumulators.
func (s *SGD) ZeroGrad() {
	for _, g := range s.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// Step applies one update: buf = momentum*buf + (grad + wd*param),
// param -= lr*buf. Momentum buffers are allocated lazily on first use.
func (s *SGD) Step() {
	for _, g := range s.groups {
		for _, p := range g.Params {
			buf, ok := s.momBufs[p]
			if !ok {
				buf = make([]float32, len(p.Data))
				s.momBufs[p] = buf
			}

			for i := range p.Data {
				grad := p.Grad[i] + s.opts.WeightDecay*p.Data[i]
				if s.opts.Momentum != 0 {
					buf[i] = s.opts.Momentum*buf[i] + grad
					grad = buf[i]
				}
				p.Data[i] -= g.LR * grad
			}
		}
	}
}

// State is the serializable optimizer state carried in checkpoints.
type State struct {
	LR      float32
	Buffers []nn.NamedTensor
}

// State exports the learning rate and momentum buffers.
func (s *SGD) State() State {
	st := State{LR: s.groups[0].LR}
	for _, g := range s.groups {
		for _, p := range g.Params {
			if buf, ok := s.momBufs[p]; ok {
				st.Buffers = append(st.Buffers, nn.NamedTensor{Name: p.Name, Data: slices.Clone(buf)})
			}
		}
	}
	return st
}

// LoadState restores the learning rate and momentum buffers. Buffer names
// must refer to registered parameters with matching shapes.
func (s *SGD) LoadState(st State) error {
	byName := make(map[string]*nn.Param)
	for _, g := range s.groups {
		for _, p := range g.Params {
			byName[p.Name] = p
		}
	}

	for _, nt := range st.Buffers {
		p, ok := byName[nt.Name]
		if !ok {
			return fmt.Errorf("optim: momentum buffer for unknown parameter %q", nt.Name)
		}
		if len(nt.Data) != len(p.Data) {
			return fmt.Errorf("optim: momentum buffer %q size mismatch: %d vs %d", nt.Name, len(nt.Data), len(p.Data))
		}
		s.momBufs[p] = slices.Clone(nt.Data)
	}

	if st.LR > 0 {
		s.SetLR(st.LR)
	}
	return nil
}
