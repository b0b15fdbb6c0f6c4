// Command semjoin joins tabular files on semantically equivalent columns.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	semjoin "github.com/kneelinghorse/semantic-ds-toolkit-sub001"
	"github.com/kneelinghorse/semantic-ds-toolkit-sub001/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds state shared by the subcommands.
type app struct {
	verbose    bool
	configPath string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "semjoin",
		Short: "Join datasets on semantically equivalent columns",
		Long: `semjoin joins two datasets whose key columns hold the same entities in
different representations (emails in mixed case, phone numbers with
punctuation, names with accents). Every output row carries the match
confidence and match type.

Inputs are CSV, TSV, JSON, Parquet or XLSX files, or SQL sources given as
sqlite:PATH or postgres:// DSNs together with --left-query/--right-query.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a.configPath != "" {
				a.cfg, err = config.LoadFile(a.configPath)
			} else {
				a.cfg, err = config.Load("")
			}
			if err != nil {
				return err
			}

			zc := zap.NewProductionConfig()
			if a.verbose {
				zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			} else if lvl, err := zapcore.ParseLevel(a.cfg.Log.Level); err == nil {
				zc.Level = zap.NewAtomicLevelAt(lvl)
			}
			a.logger, err = zc.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ./semjoin.yaml when present)")

	root.AddCommand(newJoinCmd(a), newPlanCmd(a), newVersionCmd())
	return root
}

// engine builds an engine from the loaded configuration and the optional
// context and concept files.
func (a *app) engine(contexts, concepts string) (*semjoin.Engine, error) {
	opts := []semjoin.EngineOption{
		semjoin.WithLogger(a.logger),
		semjoin.WithCacheSize(a.cfg.Cache.Size),
		semjoin.WithParallelConfig(a.cfg.ParallelConfig()),
	}

	if contexts == "" {
		contexts = a.cfg.Contexts
	}
	if contexts != "" {
		p, err := semjoin.LoadContextsFile(contexts)
		if err != nil {
			return nil, err
		}
		opts = append(opts, semjoin.WithContextProvider(p))
	}

	if concepts == "" {
		concepts = a.cfg.Concepts
	}
	if concepts != "" {
		r, err := semjoin.LoadConceptsFile(concepts)
		if err != nil {
			return nil, err
		}
		opts = append(opts, semjoin.WithConceptRegistry(r))
	}
	return semjoin.NewEngine(opts...), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the semjoin version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "semjoin %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
