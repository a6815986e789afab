// Package sched implements epoch-indexed learning-rate schedules.
//
// Epochs are 1-indexed: the first epoch of a run trains at the base rate
// under the cosine schedule.
package sched

import (
	"fmt"
	"math"

	"github.com/hupe1980/isdgo/optim"
)

// Config selects and parameterizes a schedule.
type Config struct {
	// BaseLR is the learning rate at epoch 1.
	BaseLR float32

	// Epochs is the total number of training epochs (cosine mode).
	Epochs int

	// Cosine selects cosine decay; otherwise milestone step decay is used.
	Cosine bool

	// Milestones are the epochs after which the step schedule decays.
	Milestones []int

	// DecayRate is the multiplicative decay per passed milestone.
	DecayRate float32
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.BaseLR <= 0 {
		return fmt.Errorf("sched: base learning rate must be positive, got %g", c.BaseLR)
	}
	if c.Cosine && c.Epochs <= 0 {
		return fmt.Errorf("sched: cosine schedule needs a positive epoch count, got %d", c.Epochs)
	}
	if !c.Cosine && c.DecayRate <= 0 {
		return fmt.Errorf("sched: decay rate must be positive, got %g", c.DecayRate)
	}
	return nil
}

// LR returns the learning rate for the given 1-indexed epoch.
//
// Cosine mode: base * 0.5 * (1 + cos(pi * (epoch-1) / epochs)).
// Step mode: base * rate^k where k is the number of milestones strictly
// less than epoch.
func LR(epoch int, c Config) float32 {
	if c.Cosine {
		return c.BaseLR * 0.5 * float32(1+math.Cos(math.Pi*float64(epoch-1)/float64(c.Epochs)))
	}

	steps := 0
	for _, m := range c.Milestones {
		if epoch > m {
			steps++
		}
	}
	lr := c.BaseLR
	for i := 0; i < steps; i++ {
		lr *= c.DecayRate
	}
	return lr
}

// Adjust overwrites the learning rate of every optimizer parameter group
// for the given epoch and returns the applied rate. No other optimizer
// state is touched.
func Adjust(opt *optim.SGD, epoch int, c Config) float32 {
	lr := LR(epoch, c)
	opt.SetLR(lr)
	return lr
}
