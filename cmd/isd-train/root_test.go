package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMilestones(t *testing.T) {
	got, err := parseMilestones("90,120")
	require.NoError(t, err)
	assert.Equal(t, []int{90, 120}, got)

	got, err = parseMilestones(" 10 , 20 ,30 ")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, got)

	_, err = parseMilestones("90,abc")
	assert.Error(t, err)
}

func TestBuildConfigFlagOverrides(t *testing.T) {
	cmd := NewRootCmd()
	require.NoError(t, cmd.Flags().Set("batch-size", "128"))
	require.NoError(t, cmd.Flags().Set("queue-size", "1280"))
	require.NoError(t, cmd.Flags().Set("cosine", "true"))
	require.NoError(t, cmd.Flags().Set("lr-decay-epochs", "60,80"))

	var f flags
	f.batchSize = 128
	f.queueSize = 1280
	f.cosine = true
	f.decayEpochs = "60,80"

	cfg, err := buildConfig(cmd, &f)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Data.BatchSize)
	assert.Equal(t, 1280, cfg.Model.QueueSize)
	assert.True(t, cfg.Optim.Cosine)
	assert.Equal(t, []int{60, 80}, cfg.Optim.DecayEpochs)
	// Untouched values stay at defaults.
	assert.Equal(t, float32(0.02), cfg.Model.Temperature)
}

func TestBuildConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  batch_size: 64
model:
  queue_size: 640
`), 0o600))

	cmd := NewRootCmd()
	f := flags{configPath: path}

	cfg, err := buildConfig(cmd, &f)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Data.BatchSize)
	assert.Equal(t, 640, cfg.Model.QueueSize)
}

func TestBuildConfigRejectsInvalid(t *testing.T) {
	cmd := NewRootCmd()
	require.NoError(t, cmd.Flags().Set("batch-size", "300"))

	var f flags
	f.batchSize = 300 // 128000 % 300 != 0

	_, err := buildConfig(cmd, &f)
	assert.Error(t, err)
}
