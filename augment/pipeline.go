package augment

import (
	"fmt"
	"math/rand"
	"strings"
)

// CIFAR-10 per-channel statistics used for normalization.
var (
	DefaultMean = []float32{0.4914, 0.4822, 0.4465}
	DefaultStd  = []float32{0.2023, 0.1994, 0.2010}
)

// Strength names a pipeline variant.
type Strength string

const (
	// Weak is crop + flip + normalize.
	Weak Strength = "weak"

	// Strong adds color jitter, grayscale and blur on top of Weak.
	Strong Strength = "strong"
)

// Mode selects the pipeline pair for the two views, written "key/query"
// (e.g. "weak/strong" feeds the key encoder weak views and the query encoder
// strong views).
type Mode struct {
	Key   Strength
	Query Strength
}

// ParseMode parses a "key/query" mode string.
func ParseMode(s string) (Mode, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Mode{}, fmt.Errorf("augment: invalid mode %q, want key/query", s)
	}

	var m Mode
	for i, p := range parts {
		st := Strength(p)
		if st != Weak && st != Strong {
			return Mode{}, fmt.Errorf("augment: unknown strength %q in mode %q", p, s)
		}
		if i == 0 {
			m.Key = st
		} else {
			m.Query = st
		}
	}
	return m, nil
}

func (m Mode) String() string { return string(m.Key) + "/" + string(m.Query) }

// NewPipeline builds the transform chain for one view.
func NewPipeline(strength Strength, size int, mean, std []float32) Transform {
	crop := RandomResizedCrop{Size: size, ScaleMin: 0.2, ScaleMax: 1.0}
	flip := RandomHorizontalFlip{P: 0.5}
	norm := Normalize{Mean: mean, Std: std}

	if strength == Weak {
		return Compose{crop, flip, norm}
	}

	return Compose{
		crop,
		RandomApply{Transform: ColorJitter{Brightness: 0.4, Contrast: 0.4, Saturation: 0.4, Hue: 0.1}, P: 0.8},
		RandomGrayscale{P: 0.2},
		RandomApply{Transform: GaussianBlur{SigmaMin: 0.1, SigmaMax: 2.0}, P: 0.5},
		flip,
		norm,
	}
}

// TwoCrops produces the query and key views of a sample with independent
// randomness per view.
type TwoCrops struct {
	Query Transform
	Key   Transform
}

// NewTwoCrops builds the view pair builder for a mode.
func NewTwoCrops(mode Mode, size int, mean, std []float32) *TwoCrops {
	return &TwoCrops{
		Query: NewPipeline(mode.Query, size, mean, std),
		Key:   NewPipeline(mode.Key, size, mean, std),
	}
}

// Apply augments one source image into its two views.
func (t *TwoCrops) Apply(img Image, rng *rand.Rand) (query, key Image) {
	return t.Query.Apply(img, rng), t.Key.Apply(img, rng)
}
