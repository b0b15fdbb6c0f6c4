// Package config loads semjoin CLI settings from semjoin.yaml and
// SEMJOIN_* environment variables.
package config

import (
	"fmt"

	semjoin "github.com/kneelinghorse/semantic-ds-toolkit-sub001"
)

// Config is the full CLI configuration.
type Config struct {
	Join     JoinConfig     `mapstructure:"join"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Parallel ParallelConfig `mapstructure:"parallel"`
	Log      LogConfig      `mapstructure:"log"`

	// Contexts and Concepts are optional YAML files of semantic contexts
	// and concept definitions.
	Contexts string `mapstructure:"contexts"`
	Concepts string `mapstructure:"concepts"`
}

// JoinConfig holds the default join options.
type JoinConfig struct {
	How                   string  `mapstructure:"how"`
	ConfidenceThreshold   float64 `mapstructure:"confidence_threshold"`
	FuzzyMatching         bool    `mapstructure:"fuzzy_matching"`
	FuzzyThreshold        float64 `mapstructure:"fuzzy_threshold"`
	BatchSize             int     `mapstructure:"batch_size"`
	AutoSelectNormalizers bool    `mapstructure:"auto_select_normalizers"`
	Suffix                string  `mapstructure:"suffix"`
}

// CacheConfig sizes the normalization cache.
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// ParallelConfig mirrors semjoin.ParallelConfig.
type ParallelConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxWorkers int  `mapstructure:"max_workers"`
	MinRows    int  `mapstructure:"min_rows"`
	MorselSize int  `mapstructure:"morsel_size"`
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	jo := semjoin.DefaultJoinOptions()
	pc := semjoin.DefaultParallelConfig()
	return Config{
		Join: JoinConfig{
			How:                   jo.How.String(),
			ConfidenceThreshold:   jo.ConfidenceThreshold,
			FuzzyMatching:         jo.EnableFuzzyMatching,
			FuzzyThreshold:        jo.FuzzyThreshold,
			BatchSize:             jo.BatchSize,
			AutoSelectNormalizers: jo.AutoSelectNormalizers,
			Suffix:                jo.Suffix,
		},
		Cache: CacheConfig{Size: semjoin.DefaultCacheSize},
		Parallel: ParallelConfig{
			Enabled:    pc.Enabled,
			MaxWorkers: pc.MaxWorkers,
			MinRows:    pc.MinRowsForParallel,
			MorselSize: pc.MorselSize,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := semjoin.ParseJoinType(c.Join.How); err != nil {
		return err
	}
	if c.Join.ConfidenceThreshold < 0 || c.Join.ConfidenceThreshold > 1 {
		return fmt.Errorf("join.confidence_threshold must be within [0, 1], got %v", c.Join.ConfidenceThreshold)
	}
	if c.Join.FuzzyThreshold < 0 || c.Join.FuzzyThreshold > 1 {
		return fmt.Errorf("join.fuzzy_threshold must be within [0, 1], got %v", c.Join.FuzzyThreshold)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative, got %d", c.Cache.Size)
	}
	return nil
}

// JoinOptions converts the join section into semjoin options for the given
// key columns.
func (c Config) JoinOptions(leftOn, rightOn []string) (semjoin.JoinOptions, error) {
	how, err := semjoin.ParseJoinType(c.Join.How)
	if err != nil {
		return semjoin.JoinOptions{}, err
	}
	opts := semjoin.LeftOn(leftOn...).
		RightOn(rightOn...).
		WithHow(how).
		WithConfidenceThreshold(c.Join.ConfidenceThreshold).
		WithFuzzy(c.Join.FuzzyMatching, c.Join.FuzzyThreshold).
		WithBatchSize(c.Join.BatchSize)
	opts.AutoSelectNormalizers = c.Join.AutoSelectNormalizers
	if c.Join.Suffix != "" {
		opts = opts.WithSuffix(c.Join.Suffix)
	}
	return opts, nil
}

// ParallelConfig converts the parallel section.
func (c Config) ParallelConfig() semjoin.ParallelConfig {
	pc := semjoin.DefaultParallelConfig()
	pc.Enabled = c.Parallel.Enabled
	pc.MaxWorkers = c.Parallel.MaxWorkers
	if c.Parallel.MinRows > 0 {
		pc.MinRowsForParallel = c.Parallel.MinRows
	}
	if c.Parallel.MorselSize > 0 {
		pc.MorselSize = c.Parallel.MorselSize
	}
	return pc
}
