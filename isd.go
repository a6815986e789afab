package isdgo

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/hupe1980/isdgo/distance"
	"github.com/hupe1980/isdgo/nn"
	"github.com/hupe1980/isdgo/queue"
	"github.com/hupe1980/isdgo/shuffle"
)

// ISD couples the trainable query branch (encoder + projection head) with a
// momentum-updated key encoder and the rolling memory bank.
//
// Not safe for concurrent use: all mutation happens sequentially within a
// training step, in the fixed order implemented by Forward.
type ISD struct {
	arch  string
	inDim int
	dim   int

	keyMomentum float32
	temperature float32
	shuffleBN   bool

	encQ  *nn.Sequential // trainable backbone
	predQ *nn.Sequential // trainable projection head, query branch only
	normQ *nn.L2Norm     // differentiable output normalization
	encK  *nn.Sequential // momentum copy, never in the optimizer

	queue *queue.MemoryQueue
	rng   *rand.Rand
}

// New constructs an ISD model for the named encoder architecture and input
// dimension. The key encoder starts as an exact copy of the query encoder.
// The memory bank is initialized with random unit vectors.
func New(arch string, inDim int, optFns ...Option) (*ISD, error) {
	opts := applyOptions(optFns)

	if opts.temperature <= 0 {
		return nil, fmt.Errorf("isdgo: temperature must be positive, got %g", opts.temperature)
	}
	if opts.keyMomentum < 0 || opts.keyMomentum >= 1 {
		return nil, fmt.Errorf("isdgo: key momentum must be in [0,1), got %g", opts.keyMomentum)
	}

	rng := opts.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.seed)) // nolint gosec
	}

	encQ, err := nn.NewEncoder(arch, "encoder_q", inDim, rng)
	if err != nil {
		return nil, err
	}
	encK, err := nn.NewEncoder(arch, "encoder_k", inDim, rng)
	if err != nil {
		return nil, err
	}
	dim := encQ.OutDim()
	predQ := nn.NewProjectionHead("predict_q", dim, rng)

	// Both encoders start from identical weights.
	if err := nn.CopyParams(encK.Params(), encQ.Params()); err != nil {
		return nil, err
	}

	q, err := queue.New(opts.queueSize, dim, rng)
	if err != nil {
		return nil, err
	}

	return &ISD{
		arch:        arch,
		inDim:       inDim,
		dim:         dim,
		keyMomentum: opts.keyMomentum,
		temperature: opts.temperature,
		shuffleBN:   opts.shuffleBN,
		encQ:        encQ,
		predQ:       predQ,
		normQ:       nn.NewL2Norm(dim),
		encK:        encK,
		queue:       q,
		rng:         rng,
	}, nil
}

// Arch returns the encoder architecture name.
func (m *ISD) Arch() string { return m.arch }

// InDim returns the flattened input dimension.
func (m *ISD) InDim() int { return m.inDim }

// EmbedDim returns the embedding dimension.
func (m *ISD) EmbedDim() int { return m.dim }

// QueueSize returns the memory bank capacity K.
func (m *ISD) QueueSize() int { return m.queue.Capacity() }

// QueuePtr returns the memory bank write cursor.
func (m *ISD) QueuePtr() int { return m.queue.Ptr() }

// Temperature returns the similarity temperature T.
func (m *ISD) Temperature() float32 { return m.temperature }

// TrainableParams returns the parameters the optimizer updates: the query
// encoder and the projection head. The key encoder is deliberately absent.
func (m *ISD) TrainableParams() []*nn.Param {
	return append(m.encQ.Params(), m.predQ.Params()...)
}

// MomentumUpdate blends the key encoder toward the query encoder:
// key = m*key + (1-m)*query. Called once per step, before the key view is
// encoded, so this step's key output already reflects the updated weights.
func (m *ISD) MomentumUpdate() error {
	return nn.EMAUpdate(m.encK.Params(), m.encQ.Params(), m.keyMomentum)
}

// EncodeQuery runs the query view through the trainable branch and returns
// L2-normalized embeddings. Gradients flow; call BackwardQuery with the
// loss gradient before the next forward pass.
func (m *ISD) EncodeQuery(imQ []float32, n int) ([]float32, error) {
	if len(imQ) != n*m.inDim {
		return nil, &ErrDimensionMismatch{Expected: n * m.inDim, Actual: len(imQ)}
	}

	feat := m.encQ.Forward(imQ, n)
	pred := m.predQ.Forward(feat, n)
	return m.normQ.Forward(pred, n), nil
}

// BackwardQuery propagates the loss gradient with respect to the query
// embeddings back through the trainable branch, accumulating parameter
// gradients.
func (m *ISD) BackwardQuery(dq []float32, n int) {
	d := m.normQ.Backward(dq, n)
	d = m.predQ.Backward(d, n)
	m.encQ.Backward(d, n)
}

// EncodeKey runs the key view through the momentum encoder and returns
// L2-normalized embeddings in original batch order. No gradients are
// tracked. When shuffle-BN is enabled the batch is encoded in a random
// permutation and un-permuted afterwards, so batch-norm statistics cannot
// leak pairing information between the branches.
func (m *ISD) EncodeKey(imK []float32, n int) ([]float32, error) {
	if len(imK) != n*m.inDim {
		return nil, &ErrDimensionMismatch{Expected: n * m.inDim, Actual: len(imK)}
	}

	if !m.shuffleBN || n < 2 {
		k := m.encK.Forward(imK, n)
		distance.NormalizeL2Rows(k, m.dim)
		return k, nil
	}

	perm, err := shuffle.New(n, m.rng)
	if err != nil {
		return nil, err
	}

	shuffled, err := perm.Apply(imK, m.inDim)
	if err != nil {
		return nil, err
	}

	k := m.encK.Forward(shuffled, n)
	distance.NormalizeL2Rows(k, m.dim)

	return perm.Invert(k, m.dim)
}

// ForwardOutput carries the two similarity batches of one training step.
type ForwardOutput struct {
	// SimQ are the temperature-scaled query-vs-bank similarities, n x K,
	// flattened. Differentiable via Backward.
	SimQ []float32

	// SimK are the temperature-scaled key-vs-bank similarities, n x K,
	// flattened. Already detached; no gradients flow through this path.
	SimK []float32

	// mem is the bank snapshot the similarities were scored against,
	// retained so Backward projects the score gradient through the same
	// bank state, not the post-enqueue one.
	mem []float32
}

// Forward executes one model step in the required order: momentum update,
// query encoding, key encoding, bank snapshot, similarity scoring, and
// finally enqueueing this step's keys. Scoring always happens against the
// pre-enqueue bank state so a sample never scores against its own key.
func (m *ISD) Forward(imQ, imK []float32, n int) (*ForwardOutput, error) {
	if err := m.MomentumUpdate(); err != nil {
		return nil, err
	}

	q, err := m.EncodeQuery(imQ, n)
	if err != nil {
		return nil, err
	}

	k, err := m.EncodeKey(imK, n)
	if err != nil {
		return nil, err
	}

	// Point-in-time copy of the bank, taken before this batch is inserted.
	mem := m.queue.Snapshot()

	simQ := m.similarities(q, mem, n)
	simK := m.similarities(k, mem, n)

	if err := m.queue.Enqueue(k); err != nil {
		return nil, err
	}

	return &ForwardOutput{SimQ: simQ, SimK: simK, mem: mem}, nil
}

// Backward completes the step started by Forward: the loss gradient with
// respect to SimQ (n x K, flattened) is projected back to embedding space
// against the snapshot the scores were computed from and then propagated
// through the trainable branch, accumulating parameter gradients.
func (m *ISD) Backward(out *ForwardOutput, gradSim []float32, n int) error {
	if len(gradSim) != len(out.SimQ) {
		return &ErrDimensionMismatch{Expected: len(out.SimQ), Actual: len(gradSim)}
	}

	dq := m.backwardSimilarities(gradSim, out.mem, n)
	m.BackwardQuery(dq, n)
	return nil
}

// QueueState exports the memory bank state for checkpointing.
func (m *ISD) QueueState() queue.State { return m.queue.State() }

// State exports the full model state: all parameters and buffers of both
// encoders and the projection head, plus the memory bank.
func (m *ISD) State() ModelState {
	var tensors []nn.NamedTensor
	tensors = append(tensors, m.encQ.State()...)
	tensors = append(tensors, m.predQ.State()...)
	tensors = append(tensors, m.encK.State()...)

	return ModelState{
		Arch:    m.arch,
		InDim:   m.inDim,
		Tensors: tensors,
		Queue:   m.queue.State(),
	}
}

// ModelState is the serializable model portion of a checkpoint.
type ModelState struct {
	Arch    string
	InDim   int
	Tensors []nn.NamedTensor
	Queue   queue.State
}

// LoadState restores a previously exported state. Loading is strict: the
// architecture, every tensor name and shape, and the queue geometry must
// match exactly.
func (m *ISD) LoadState(s ModelState) error {
	if s.Arch != m.arch {
		return fmt.Errorf("isdgo: checkpoint architecture %q does not match model %q", s.Arch, m.arch)
	}
	if s.InDim != m.inDim {
		return fmt.Errorf("isdgo: checkpoint input dim %d does not match model %d", s.InDim, m.inDim)
	}

	var encQ, predQ, encK []nn.NamedTensor
	for _, nt := range s.Tensors {
		switch {
		case strings.HasPrefix(nt.Name, "encoder_q."):
			encQ = append(encQ, nt)
		case strings.HasPrefix(nt.Name, "predict_q."):
			predQ = append(predQ, nt)
		case strings.HasPrefix(nt.Name, "encoder_k."):
			encK = append(encK, nt)
		default:
			return fmt.Errorf("isdgo: unexpected tensor %q in checkpoint", nt.Name)
		}
	}

	if err := m.encQ.LoadState(encQ); err != nil {
		return err
	}
	if err := m.predQ.LoadState(predQ); err != nil {
		return err
	}
	if err := m.encK.LoadState(encK); err != nil {
		return err
	}
	return m.queue.Restore(s.Queue)
}
