package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/isdgo"
	"github.com/hupe1980/isdgo/augment"
	"github.com/hupe1980/isdgo/blobstore/s3"
	"github.com/hupe1980/isdgo/checkpoint"
	"github.com/hupe1980/isdgo/dataset"
	"github.com/hupe1980/isdgo/loader"
	"github.com/hupe1980/isdgo/optim"
	"github.com/hupe1980/isdgo/resource"
	"github.com/hupe1980/isdgo/sched"
	"github.com/hupe1980/isdgo/train"
)

type flags struct {
	configPath string

	dataPath     string
	synthetic    int
	batchSize    int
	workers      int
	augmentation string
	seed         int64

	arch        string
	queueSize   int
	temperature float32
	keyMomentum float32

	learningRate float32
	sgdMomentum  float32
	weightDecay  float32
	cosine       bool
	decayEpochs  string
	decayRate    float32

	epochs    int
	printFreq int

	checkpointPath string
	resumePath     string
	saveFreq       int
	keep           int
	compression    string

	mirrorBucket string
	mirrorPrefix string
	maxUploads   int64
	uploadLimit  int64

	logJSON bool
}

// NewRootCmd builds the training CLI.
func NewRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "isd-train",
		Short:         "Self-supervised similarity distillation training",
		SilenceErrors: false,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd, &f)
			if err != nil {
				return err
			}
			return run(cmd, cfg, &f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "yaml config file; flags override its values")

	cmd.Flags().StringVar(&f.dataPath, "data-path", "", "directory with CIFAR-10 binary batches")
	cmd.Flags().IntVar(&f.synthetic, "synthetic", 0, "train on N synthetic samples instead of real data")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 256, "samples per step")
	cmd.Flags().IntVar(&f.workers, "workers", 4, "augmentation workers")
	cmd.Flags().StringVar(&f.augmentation, "augmentation", "weak/strong", "view pair mode: weak/strong, weak/weak, strong/weak, strong/strong")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "run seed")

	cmd.Flags().StringVar(&f.arch, "arch", "mlp-small", "encoder architecture: mlp-small or mlp")
	cmd.Flags().IntVar(&f.queueSize, "queue-size", 128000, "memory bank capacity (must divide by batch size)")
	cmd.Flags().Float32Var(&f.temperature, "temp", 0.02, "similarity temperature")
	cmd.Flags().Float32Var(&f.keyMomentum, "momentum", 0.999, "key encoder EMA momentum")

	cmd.Flags().Float32Var(&f.learningRate, "learning-rate", 0.01, "base learning rate")
	cmd.Flags().Float32Var(&f.sgdMomentum, "sgd-momentum", 0.9, "SGD momentum")
	cmd.Flags().Float32Var(&f.weightDecay, "weight-decay", 1e-4, "weight decay")
	cmd.Flags().BoolVar(&f.cosine, "cosine", false, "use cosine learning rate schedule")
	cmd.Flags().StringVar(&f.decayEpochs, "lr-decay-epochs", "90,120", "step schedule milestones")
	cmd.Flags().Float32Var(&f.decayRate, "lr-decay-rate", 0.2, "step schedule decay per milestone")

	cmd.Flags().IntVar(&f.epochs, "epochs", 150, "total training epochs")
	cmd.Flags().IntVar(&f.printFreq, "print-freq", 100, "log every N steps (0 disables)")

	cmd.Flags().StringVar(&f.checkpointPath, "checkpoint-path", "output/", "checkpoint directory")
	cmd.Flags().StringVar(&f.resumePath, "resume-path", "", "checkpoint to resume from (or 'latest')")
	cmd.Flags().IntVar(&f.saveFreq, "save-freq", 2, "checkpoint every N epochs")
	cmd.Flags().IntVar(&f.keep, "keep", 0, "retain only the newest N checkpoints (0 keeps all)")
	cmd.Flags().StringVar(&f.compression, "compression", "none", "checkpoint codec: none, lz4, zstd")

	cmd.Flags().StringVar(&f.mirrorBucket, "mirror-s3-bucket", "", "mirror checkpoints to this S3 bucket")
	cmd.Flags().StringVar(&f.mirrorPrefix, "mirror-prefix", "checkpoints/", "key prefix for mirrored checkpoints")
	cmd.Flags().Int64Var(&f.maxUploads, "max-uploads", 1, "concurrent mirror uploads")
	cmd.Flags().Int64Var(&f.uploadLimit, "upload-limit", 0, "mirror upload throughput in bytes/sec (0 unlimited)")

	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "emit JSON logs")

	return cmd
}

// buildConfig starts from the yaml config (or defaults) and overlays every
// flag the user set explicitly.
func buildConfig(cmd *cobra.Command, f *flags) (train.Config, error) {
	cfg := train.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = train.LoadConfig(f.configPath); err != nil {
			return cfg, err
		}
	}

	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	set("data-path", func() { cfg.Data.Path = f.dataPath })
	set("batch-size", func() { cfg.Data.BatchSize = f.batchSize })
	set("workers", func() { cfg.Data.Workers = f.workers })
	set("augmentation", func() { cfg.Data.Augmentation = f.augmentation })
	set("seed", func() { cfg.Data.Seed = f.seed })
	set("arch", func() { cfg.Model.Arch = f.arch })
	set("queue-size", func() { cfg.Model.QueueSize = f.queueSize })
	set("temp", func() { cfg.Model.Temperature = f.temperature })
	set("momentum", func() { cfg.Model.KeyMomentum = f.keyMomentum })
	set("learning-rate", func() { cfg.Optim.LearningRate = f.learningRate })
	set("sgd-momentum", func() { cfg.Optim.Momentum = f.sgdMomentum })
	set("weight-decay", func() { cfg.Optim.WeightDecay = f.weightDecay })
	set("cosine", func() { cfg.Optim.Cosine = f.cosine })
	set("lr-decay-rate", func() { cfg.Optim.DecayRate = f.decayRate })
	set("epochs", func() { cfg.Run.Epochs = f.epochs })
	set("print-freq", func() { cfg.Run.PrintFreq = f.printFreq })
	set("checkpoint-path", func() { cfg.Checkpoint.Path = f.checkpointPath })
	set("resume-path", func() { cfg.Checkpoint.ResumePath = f.resumePath })
	set("save-freq", func() { cfg.Checkpoint.SaveFreq = f.saveFreq })
	set("keep", func() { cfg.Checkpoint.Keep = f.keep })
	set("compression", func() { cfg.Checkpoint.Compression = f.compression })

	if cmd.Flags().Changed("lr-decay-epochs") {
		milestones, err := parseMilestones(f.decayEpochs)
		if err != nil {
			return cfg, err
		}
		cfg.Optim.DecayEpochs = milestones
	}

	return cfg, cfg.Validate()
}

func parseMilestones(s string) ([]int, error) {
	var milestones []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid milestone %q: %w", part, err)
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}

func run(cmd *cobra.Command, cfg train.Config, f *flags) error {
	ctx := cmd.Context()

	logger := isdgo.NewTextLogger(slog.LevelInfo)
	if f.logJSON {
		logger = isdgo.NewJSONLogger(slog.LevelInfo)
	}

	// Data source.
	var ds dataset.Dataset
	switch {
	case f.synthetic > 0:
		ds = dataset.NewSynthetic(f.synthetic, 3, 32, cfg.Data.Seed)
	case cfg.Data.Path != "":
		var err error
		if ds, err = dataset.OpenCIFAR10(cfg.Data.Path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --data-path or --synthetic is required")
	}
	defer ds.Close() // nolint errcheck

	mode, err := augment.ParseMode(cfg.Data.Augmentation)
	if err != nil {
		return err
	}
	pairs := augment.NewTwoCrops(mode, ds.Height(), augment.DefaultMean, augment.DefaultStd)

	ldr, err := loader.New(ds, pairs,
		loader.WithBatchSize(cfg.Data.BatchSize),
		loader.WithWorkers(cfg.Data.Workers),
		loader.WithSeed(cfg.Data.Seed),
	)
	if err != nil {
		return err
	}

	// Model and optimizer.
	model, err := isdgo.New(cfg.Model.Arch, ldr.Dim(),
		isdgo.WithQueueSize(cfg.Model.QueueSize),
		isdgo.WithTemperature(cfg.Model.Temperature),
		isdgo.WithKeyMomentum(cfg.Model.KeyMomentum),
		isdgo.WithSeed(cfg.Data.Seed),
	)
	if err != nil {
		return err
	}

	opt, err := optim.New(model.TrainableParams(), func(o *optim.Options) {
		o.LR = cfg.Optim.LearningRate
		o.Momentum = cfg.Optim.Momentum
		o.WeightDecay = cfg.Optim.WeightDecay
	})
	if err != nil {
		return err
	}

	// Checkpointing.
	compression, err := checkpoint.ParseCompression(cfg.Checkpoint.Compression)
	if err != nil {
		return err
	}

	mgrOpts := []checkpoint.ManagerOption{
		checkpoint.WithCompression(compression),
		checkpoint.WithKeep(cfg.Checkpoint.Keep),
	}
	if f.mirrorBucket != "" {
		store, err := s3.NewStoreFromEnv(ctx, f.mirrorBucket, f.mirrorPrefix)
		if err != nil {
			return err
		}
		ctrl := resource.NewController(resource.Config{
			MaxUploads:         f.maxUploads,
			IOLimitBytesPerSec: f.uploadLimit,
		})
		mgrOpts = append(mgrOpts, checkpoint.WithMirror(store, ctrl))
	}

	mgr, err := checkpoint.NewManager(cfg.Checkpoint.Path, mgrOpts...)
	if err != nil {
		return err
	}

	trainer, err := train.NewTrainer(model, opt, ldr,
		train.WithEpochs(cfg.Run.Epochs),
		train.WithPrintFreq(cfg.Run.PrintFreq),
		train.WithSaveFreq(cfg.Checkpoint.SaveFreq),
		train.WithSchedule(sched.Config{
			BaseLR:     cfg.Optim.LearningRate,
			Epochs:     cfg.Run.Epochs,
			Cosine:     cfg.Optim.Cosine,
			Milestones: cfg.Optim.DecayEpochs,
			DecayRate:  cfg.Optim.DecayRate,
		}),
		train.WithCheckpointManager(mgr),
		train.WithLogger(logger),
		train.WithMetricsCollector(&isdgo.BasicMetricsCollector{}),
	)
	if err != nil {
		return err
	}

	if cfg.Checkpoint.ResumePath != "" {
		path := cfg.Checkpoint.ResumePath
		if path == "latest" {
			if path, _, err = mgr.Latest(); err != nil {
				return err
			}
		}
		if err := trainer.Resume(ctx, path); err != nil {
			return err
		}
	}

	return trainer.Run(ctx)
}
