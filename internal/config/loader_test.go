package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semjoin "github.com/kneelinghorse/semantic-ds-toolkit-sub001"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
join:
  how: left
  confidence_threshold: 0.5
  fuzzy_matching: false
cache:
  size: 42
contexts: ctx.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "semjoin.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "left", cfg.Join.How)
	assert.InDelta(t, 0.5, cfg.Join.ConfidenceThreshold, 1e-9)
	assert.False(t, cfg.Join.FuzzyMatching)
	assert.Equal(t, 42, cfg.Cache.Size)
	assert.Equal(t, "ctx.yaml", cfg.Contexts)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultConfig().Join.FuzzyThreshold, cfg.Join.FuzzyThreshold)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SEMJOIN_JOIN_HOW", "outer")
	t.Setenv("SEMJOIN_CACHE_SIZE", "7")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "outer", cfg.Join.How)
	assert.Equal(t, 7, cfg.Cache.Size)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Join.How = "sideways"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Join.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Cache.Size = -1
	assert.Error(t, cfg.Validate())
}

func TestJoinOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Join.How = "right"
	cfg.Join.FuzzyMatching = false

	opts, err := cfg.JoinOptions([]string{"email"}, []string{"mail"})
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, opts.LeftColumns)
	assert.Equal(t, []string{"mail"}, opts.RightColumns)
	assert.Equal(t, semjoin.RightJoin, opts.How)
	assert.False(t, opts.EnableFuzzyMatching)
	assert.Equal(t, semjoin.DefaultBatchSize, opts.BatchSize)
}

func TestParallelConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parallel.MaxWorkers = 3
	pc := cfg.ParallelConfig()
	assert.Equal(t, 3, pc.MaxWorkers)
	assert.Equal(t, semjoin.DefaultParallelConfig().MorselSize, pc.MorselSize)
}
