// Package loader turns a dataset into a stream of augmented view-pair
// batches. A pool of workers decodes and augments samples concurrently and
// feeds a bounded channel, so the training loop never waits on augmentation
// unless it outruns every worker.
package loader

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/isdgo/augment"
	"github.com/hupe1980/isdgo/dataset"
)

// Batch is one training step's worth of augmented pairs, flattened row-major.
type Batch struct {
	// Query holds the query views, size * dim.
	Query []float32

	// Key holds the key views, size * dim, row-aligned with Query.
	Key []float32

	// Size is the number of pairs.
	Size int
}

type options struct {
	batchSize int
	workers   int
	prefetch  int
	seed      int64
}

// Option configures the loader.
type Option func(*options)

// WithBatchSize sets the number of pairs per batch.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithWorkers sets the number of augmentation workers.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithPrefetch sets how many finished batches may queue ahead of the
// consumer.
func WithPrefetch(n int) Option {
	return func(o *options) { o.prefetch = n }
}

// WithSeed seeds the shuffle order and the per-worker augmentation RNGs.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// Loader produces one batch stream per epoch. Batches within an epoch cover
// distinct samples (drop-last), but arrive in completion order, not shuffle
// order; every batch is an independent random draw either way.
type Loader struct {
	ds      dataset.Dataset
	pairs   *augment.TwoCrops
	sampler *dataset.Sampler

	batchSize int
	workers   int
	prefetch  int
	seed      int64
	epoch     int

	dim int
}

// New creates a loader over the dataset using the given view-pair builder.
func New(ds dataset.Dataset, pairs *augment.TwoCrops, optFns ...Option) (*Loader, error) {
	o := options{
		batchSize: 256,
		workers:   4,
		prefetch:  2,
		seed:      1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.workers <= 0 {
		return nil, fmt.Errorf("loader: workers must be positive, got %d", o.workers)
	}
	if o.prefetch <= 0 {
		return nil, fmt.Errorf("loader: prefetch must be positive, got %d", o.prefetch)
	}

	sampler, err := dataset.NewSampler(ds.Len(), o.batchSize, rand.New(rand.NewSource(o.seed))) // nolint gosec
	if err != nil {
		return nil, err
	}

	return &Loader{
		ds:        ds,
		pairs:     pairs,
		sampler:   sampler,
		batchSize: o.batchSize,
		workers:   o.workers,
		prefetch:  o.prefetch,
		seed:      o.seed,
		dim:       ds.Channels() * ds.Height() * ds.Width(),
	}, nil
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// Steps returns the number of batches each epoch yields.
func (l *Loader) Steps() int { return l.sampler.Batches() }

// Dim returns the flattened per-view dimension.
func (l *Loader) Dim() int { return l.dim }

// Stream is one epoch's batch sequence.
type Stream struct {
	ch     chan *Batch
	g      *errgroup.Group
	cancel context.CancelFunc
}

// Next returns the next batch. ok is false when the epoch is exhausted or
// the context was canceled; check Err afterwards.
func (s *Stream) Next(ctx context.Context) (*Batch, bool) {
	select {
	case b, open := <-s.ch:
		if !open {
			return nil, false
		}
		return b, true
	case <-ctx.Done():
		return nil, false
	}
}

// Err blocks until all workers have finished and reports the first failure.
func (s *Stream) Err() error {
	err := s.g.Wait()
	// Drain so blocked workers observed the failure and exited.
	for range s.ch {
	}
	return err
}

// Close cancels the epoch's workers and waits for them to exit. Abandoning
// a stream without closing it leaves workers blocked on the output channel.
// Safe to call more than once, and after the stream is exhausted.
func (s *Stream) Close() {
	s.cancel()
	s.g.Wait() // nolint errcheck
	for range s.ch {
	}
}

// Epoch reshuffles the sample order (except before the very first epoch,
// whose order is fixed at construction) and starts the worker pool for one
// pass over the data.
func (l *Loader) Epoch(ctx context.Context) *Stream {
	if l.epoch > 0 {
		l.sampler.Reshuffle()
	}
	l.epoch++

	// Materialize the batch index lists up front; the sampler is not safe
	// for concurrent use.
	var jobs [][]int
	for {
		batch, ok := l.sampler.Next()
		if !ok {
			break
		}
		jobs = append(jobs, append([]int{}, batch...))
	}

	jobCh := make(chan []int, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	out := make(chan *Batch, l.prefetch)
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < l.workers; w++ {
		rng := rand.New(rand.NewSource(l.seed + int64(l.epoch)*1000003 + int64(w))) // nolint gosec
		g.Go(func() error {
			for indices := range jobCh {
				batch, err := l.buildBatch(indices, rng)
				if err != nil {
					return err
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		g.Wait() // nolint errcheck
		cancel()
		close(out)
	}()

	return &Stream{ch: out, g: g, cancel: cancel}
}

func (l *Loader) buildBatch(indices []int, rng *rand.Rand) (*Batch, error) {
	n := len(indices)
	batch := &Batch{
		Query: make([]float32, n*l.dim),
		Key:   make([]float32, n*l.dim),
		Size:  n,
	}

	for row, idx := range indices {
		sample, err := l.ds.At(idx)
		if err != nil {
			return nil, err
		}

		img, err := augment.FromBytes(sample.Raw, l.ds.Channels(), l.ds.Height(), l.ds.Width())
		if err != nil {
			return nil, err
		}

		q, k := l.pairs.Apply(img, rng)
		if len(q.Pixels) != l.dim || len(k.Pixels) != l.dim {
			return nil, fmt.Errorf("loader: augmented view has %d values, want %d", len(q.Pixels), l.dim)
		}
		copy(batch.Query[row*l.dim:(row+1)*l.dim], q.Pixels)
		copy(batch.Key[row*l.dim:(row+1)*l.dim], k.Pixels)
	}

	return batch, nil
}
