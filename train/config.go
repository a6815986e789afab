package train

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/isdgo/augment"
)

// Config holds the full configuration surface of a training run.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Model      ModelConfig      `yaml:"model"`
	Optim      OptimConfig      `yaml:"optim"`
	Run        RunConfig        `yaml:"run"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// DataConfig holds dataset and loader settings.
type DataConfig struct {
	Path         string `yaml:"path"`
	BatchSize    int    `yaml:"batch_size"`
	Workers      int    `yaml:"workers"`
	Augmentation string `yaml:"augmentation"` // key/query, e.g. "weak/strong"
	Seed         int64  `yaml:"seed"`
}

// ModelConfig holds encoder and bank settings.
type ModelConfig struct {
	Arch        string  `yaml:"arch"`
	QueueSize   int     `yaml:"queue_size"`
	Temperature float32 `yaml:"temperature"`
	KeyMomentum float32 `yaml:"key_momentum"`
}

// OptimConfig holds optimizer and schedule settings.
type OptimConfig struct {
	LearningRate float32 `yaml:"learning_rate"`
	Momentum     float32 `yaml:"momentum"`
	WeightDecay  float32 `yaml:"weight_decay"`
	Cosine       bool    `yaml:"cosine"`
	DecayEpochs  []int   `yaml:"lr_decay_epochs"`
	DecayRate    float32 `yaml:"lr_decay_rate"`
}

// RunConfig holds loop-level settings.
type RunConfig struct {
	Epochs    int `yaml:"epochs"`
	PrintFreq int `yaml:"print_freq"`
}

// CheckpointConfig holds snapshot settings.
type CheckpointConfig struct {
	Path        string `yaml:"path"`
	ResumePath  string `yaml:"resume_path"`
	SaveFreq    int    `yaml:"save_freq"`
	Keep        int    `yaml:"keep"`
	Compression string `yaml:"compression"` // none, lz4, zstd
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		Data: DataConfig{
			BatchSize:    256,
			Workers:      4,
			Augmentation: "weak/strong",
			Seed:         1,
		},
		Model: ModelConfig{
			Arch:        "mlp-small",
			QueueSize:   128000,
			Temperature: 0.02,
			KeyMomentum: 0.999,
		},
		Optim: OptimConfig{
			LearningRate: 0.01,
			Momentum:     0.9,
			WeightDecay:  1e-4,
			DecayEpochs:  []int{90, 120},
			DecayRate:    0.2,
		},
		Run: RunConfig{
			Epochs:    150,
			PrintFreq: 100,
		},
		Checkpoint: CheckpointConfig{
			Path:        "output/",
			SaveFreq:    2,
			Compression: "none",
		},
	}
}

// LoadConfig reads a yaml config file and fills unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("train: failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("train: failed to parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Data.BatchSize <= 0 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.Data.BatchSize)
	}
	if c.Model.QueueSize%c.Data.BatchSize != 0 {
		return fmt.Errorf("train: queue size %d is not divisible by batch size %d", c.Model.QueueSize, c.Data.BatchSize)
	}
	if c.Run.Epochs <= 0 {
		return fmt.Errorf("train: epochs must be positive, got %d", c.Run.Epochs)
	}
	if _, err := augment.ParseMode(c.Data.Augmentation); err != nil {
		return err
	}
	return nil
}
