package isdgo

import (
	"math/rand"
)

type options struct {
	queueSize   int
	keyMomentum float32
	temperature float32
	shuffleBN   bool
	seed        int64
	rng         *rand.Rand
}

// Option configures model construction.
type Option func(*options)

// WithQueueSize sets the memory bank capacity K. K must be divisible by the
// training batch size; that invariant is checked at trainer startup.
func WithQueueSize(k int) Option {
	return func(o *options) {
		o.queueSize = k
	}
}

// WithKeyMomentum sets the EMA coefficient m linking the key encoder to the
// query encoder: key = m*key + (1-m)*query, applied once per step.
func WithKeyMomentum(m float32) Option {
	return func(o *options) {
		o.keyMomentum = m
	}
}

// WithTemperature sets the similarity temperature T. Smaller values sharpen
// the similarity distributions.
func WithTemperature(t float32) Option {
	return func(o *options) {
		o.temperature = t
	}
}

// WithShuffleBN toggles batch shuffling around the key encoder. Disabling it
// is only useful in tests; with batch-norm layers enabled training quality
// degrades without it.
func WithShuffleBN(enabled bool) Option {
	return func(o *options) {
		o.shuffleBN = enabled
	}
}

// WithSeed seeds the model's private RNG (parameter init, queue init,
// shuffle permutations).
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithRNG supplies an explicit RNG, overriding WithSeed.
func WithRNG(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		queueSize:   128000,
		keyMomentum: 0.999,
		temperature: 0.02,
		shuffleBN:   true,
		seed:        1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
