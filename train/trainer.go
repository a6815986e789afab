// Package train runs the self-supervised training loop: it drives the data
// loader, the model's per-step pipeline, the optimizer and the learning rate
// schedule, and snapshots the full run state at a configurable cadence.
package train

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/isdgo"
	"github.com/hupe1980/isdgo/checkpoint"
	"github.com/hupe1980/isdgo/loader"
	"github.com/hupe1980/isdgo/optim"
	"github.com/hupe1980/isdgo/sched"
)

type trainerOptions struct {
	epochs    int
	printFreq int
	saveFreq  int
	schedule  sched.Config
	manager   *checkpoint.Manager
	logger    *isdgo.Logger
	metrics   isdgo.MetricsCollector
}

// TrainerOption configures a Trainer.
type TrainerOption func(*trainerOptions)

// WithEpochs sets the total number of epochs (1-indexed).
func WithEpochs(n int) TrainerOption {
	return func(o *trainerOptions) { o.epochs = n }
}

// WithPrintFreq emits a progress line every n steps. Zero disables them.
func WithPrintFreq(n int) TrainerOption {
	return func(o *trainerOptions) { o.printFreq = n }
}

// WithSaveFreq checkpoints every n epochs. Zero disables periodic saves;
// the final epoch is always saved when a manager is configured.
func WithSaveFreq(n int) TrainerOption {
	return func(o *trainerOptions) { o.saveFreq = n }
}

// WithSchedule sets the learning rate schedule.
func WithSchedule(c sched.Config) TrainerOption {
	return func(o *trainerOptions) { o.schedule = c }
}

// WithCheckpointManager enables checkpointing through the manager.
func WithCheckpointManager(m *checkpoint.Manager) TrainerOption {
	return func(o *trainerOptions) { o.manager = m }
}

// WithLogger configures structured run logging.
func WithLogger(l *isdgo.Logger) TrainerOption {
	return func(o *trainerOptions) {
		if l == nil {
			l = isdgo.NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures run metrics.
func WithMetricsCollector(mc isdgo.MetricsCollector) TrainerOption {
	return func(o *trainerOptions) {
		if mc == nil {
			mc = isdgo.NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// Trainer owns one training run.
type Trainer struct {
	model     *isdgo.ISD
	opt       *optim.SGD
	criterion *isdgo.KLDivLoss
	loader    *loader.Loader

	epochs    int
	printFreq int
	saveFreq  int
	schedule  sched.Config
	manager   *checkpoint.Manager
	logger    *isdgo.Logger
	metrics   isdgo.MetricsCollector

	startEpoch int
}

// NewTrainer wires a run together. The memory bank capacity must be an exact
// multiple of the loader's batch size; anything else is a fatal
// configuration error.
func NewTrainer(model *isdgo.ISD, opt *optim.SGD, ldr *loader.Loader, optFns ...TrainerOption) (*Trainer, error) {
	o := trainerOptions{
		epochs:    150,
		printFreq: 100,
		saveFreq:  2,
		logger:    isdgo.NoopLogger(),
		metrics:   isdgo.NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if model.QueueSize()%ldr.BatchSize() != 0 {
		return nil, &isdgo.ErrQueueBatchMismatch{QueueSize: model.QueueSize(), BatchSize: ldr.BatchSize()}
	}
	if o.schedule.BaseLR == 0 {
		o.schedule.BaseLR = opt.LR()
	}
	if o.schedule.Epochs == 0 {
		o.schedule.Epochs = o.epochs
	}
	if !o.schedule.Cosine && o.schedule.DecayRate == 0 {
		o.schedule.DecayRate = 0.2
		if o.schedule.Milestones == nil {
			o.schedule.Milestones = []int{90, 120}
		}
	}
	if err := o.schedule.Validate(); err != nil {
		return nil, err
	}

	return &Trainer{
		model:      model,
		opt:        opt,
		criterion:  isdgo.NewKLDivLoss(),
		loader:     ldr,
		epochs:     o.epochs,
		printFreq:  o.printFreq,
		saveFreq:   o.saveFreq,
		schedule:   o.schedule,
		manager:    o.manager,
		logger:     o.logger,
		metrics:    o.metrics,
		startEpoch: 1,
	}, nil
}

// Resume restores model and optimizer state from the checkpoint at path and
// continues with the following epoch.
func (t *Trainer) Resume(ctx context.Context, path string) error {
	if t.manager == nil {
		return fmt.Errorf("train: resume requires a checkpoint manager")
	}

	state, err := t.manager.Load(path)
	if err != nil {
		t.logger.LogResume(ctx, path, 0, err)
		return err
	}

	if err := t.model.LoadState(state.Model); err != nil {
		return err
	}
	if err := t.opt.LoadState(state.Optim); err != nil {
		return err
	}

	t.startEpoch = state.Epoch + 1
	t.logger.LogResume(ctx, path, state.Epoch, nil)
	return nil
}

// StartEpoch returns the first epoch Run will execute.
func (t *Trainer) StartEpoch() int { return t.startEpoch }

// Run executes the training loop from the start epoch through the final
// one. It stops early on context cancellation or a non-finite loss.
func (t *Trainer) Run(ctx context.Context) error {
	for epoch := t.startEpoch; epoch <= t.epochs; epoch++ {
		lr := sched.Adjust(t.opt, epoch, t.schedule)

		epochStart := time.Now()
		lossAvg, err := t.trainEpoch(ctx, epoch)
		if err != nil {
			return err
		}

		duration := time.Since(epochStart)
		t.logger.LogEpoch(ctx, epoch, lr, lossAvg, duration)
		t.metrics.RecordEpoch(epoch, lossAvg, duration)

		if t.shouldSave(epoch) {
			if err := t.save(ctx, epoch); err != nil {
				return err
			}
		}
	}

	return nil
}

func (t *Trainer) shouldSave(epoch int) bool {
	if t.manager == nil {
		return false
	}
	if epoch == t.epochs {
		return true
	}
	return t.saveFreq > 0 && epoch%t.saveFreq == 0
}

func (t *Trainer) save(ctx context.Context, epoch int) error {
	start := time.Now()
	state := &checkpoint.TrainingState{
		Epoch: epoch,
		Model: t.model.State(),
		Optim: t.opt.State(),
	}

	err := t.manager.Save(ctx, state)
	t.logger.LogCheckpoint(ctx, t.manager.Path(epoch), epoch, err)
	t.metrics.RecordCheckpoint(time.Since(start), err)
	return err
}

// trainEpoch runs one pass over the data and returns the mean loss.
func (t *Trainer) trainEpoch(ctx context.Context, epoch int) (float64, error) {
	stream := t.loader.Epoch(ctx)
	// Early returns must not strand workers blocked on the batch channel.
	defer stream.Close()
	totalSteps := t.loader.Steps()

	var batchTime, dataTime, losses AverageMeter

	step := 0
	end := time.Now()
	for {
		batch, ok := stream.Next(ctx)
		if !ok {
			break
		}
		dataTime.Update(time.Since(end).Seconds())
		step++

		out, err := t.model.Forward(batch.Query, batch.Key, batch.Size)
		if err != nil {
			return losses.Avg, err
		}

		loss, grad, err := t.criterion.Forward(out.SimQ, out.SimK, batch.Size, t.model.QueueSize())
		if err != nil {
			// A NaN or Inf loss poisons every parameter on the next
			// step; abort instead of saving a broken run.
			return losses.Avg, err
		}

		t.opt.ZeroGrad()
		if err := t.model.Backward(out, grad, batch.Size); err != nil {
			return losses.Avg, err
		}
		t.opt.Step()

		losses.Update(loss)
		batchTime.Update(time.Since(end).Seconds())
		t.metrics.RecordStep(time.Since(end), loss)
		end = time.Now()

		if t.printFreq > 0 && step%t.printFreq == 0 {
			t.logger.LogStep(ctx, epoch, step, totalSteps,
				losses.Val, losses.Avg,
				time.Duration(batchTime.Avg*float64(time.Second)),
				time.Duration(dataTime.Avg*float64(time.Second)))
		}
	}

	if err := stream.Err(); err != nil {
		return losses.Avg, err
	}
	if err := ctx.Err(); err != nil {
		return losses.Avg, err
	}

	return losses.Avg, nil
}
