package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SEMJOIN_JOIN_HOW.
const EnvPrefix = "SEMJOIN"

var keys = []string{
	"join.how",
	"join.confidence_threshold",
	"join.fuzzy_matching",
	"join.fuzzy_threshold",
	"join.batch_size",
	"join.auto_select_normalizers",
	"join.suffix",
	"cache.size",
	"parallel.enabled",
	"parallel.max_workers",
	"parallel.min_rows",
	"parallel.morsel_size",
	"log.level",
	"contexts",
	"concepts",
}

// Load reads semjoin.yaml from configDir (when present) and applies
// environment overrides on top of DefaultConfig. A missing file is not an
// error.
func Load(configDir string) (Config, error) {
	v := newViper()
	v.SetConfigName("semjoin")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads an explicit config file; unlike Load the file must exist.
func LoadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	defaults := map[string]any{
		"join.how":                     def.Join.How,
		"join.confidence_threshold":    def.Join.ConfidenceThreshold,
		"join.fuzzy_matching":          def.Join.FuzzyMatching,
		"join.fuzzy_threshold":         def.Join.FuzzyThreshold,
		"join.batch_size":              def.Join.BatchSize,
		"join.auto_select_normalizers": def.Join.AutoSelectNormalizers,
		"join.suffix":                  def.Join.Suffix,
		"cache.size":                   def.Cache.Size,
		"parallel.enabled":             def.Parallel.Enabled,
		"parallel.max_workers":         def.Parallel.MaxWorkers,
		"parallel.min_rows":            def.Parallel.MinRows,
		"parallel.morsel_size":         def.Parallel.MorselSize,
		"log.level":                    def.Log.Level,
		"contexts":                     def.Contexts,
		"concepts":                     def.Concepts,
	}
	for _, k := range keys {
		v.SetDefault(k, defaults[k])
		_ = v.BindEnv(k)
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
