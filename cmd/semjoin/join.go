package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	semjoin "github.com/kneelinghorse/semantic-ds-toolkit-sub001"
)

// joinFlags are shared by join and plan.
type joinFlags struct {
	leftOn, rightOn       []string
	leftQuery, rightQuery string
	how                   string
	threshold             float64
	fuzzy                 bool
	fuzzyThreshold        float64
	contexts, concepts    string
}

func (f *joinFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.leftOn, "left-on", nil, "Left join columns (comma separated)")
	fs.StringSliceVar(&f.rightOn, "right-on", nil, "Right join columns (default: --left-on)")
	fs.StringVar(&f.leftQuery, "left-query", "", "Query for a SQL left source")
	fs.StringVar(&f.rightQuery, "right-query", "", "Query for a SQL right source")
	fs.StringVar(&f.how, "how", "", "Join type: inner, left, right or outer")
	fs.Float64Var(&f.threshold, "threshold", 0, "Minimum match confidence")
	fs.BoolVar(&f.fuzzy, "fuzzy", true, "Enable fuzzy matching")
	fs.Float64Var(&f.fuzzyThreshold, "fuzzy-threshold", 0, "Minimum similarity for fuzzy matches")
	fs.StringVar(&f.contexts, "contexts", "", "YAML file of semantic contexts")
	fs.StringVar(&f.concepts, "concepts", "", "YAML file of concepts")
	_ = cmd.MarkFlagRequired("left-on")
}

// options merges explicitly set flags over the configured defaults.
func (f *joinFlags) options(cmd *cobra.Command, a *app) (semjoin.JoinOptions, error) {
	cfg := a.cfg
	fs := cmd.Flags()
	if fs.Changed("how") {
		cfg.Join.How = f.how
	}
	if fs.Changed("threshold") {
		cfg.Join.ConfidenceThreshold = f.threshold
	}
	if fs.Changed("fuzzy") {
		cfg.Join.FuzzyMatching = f.fuzzy
	}
	if fs.Changed("fuzzy-threshold") {
		cfg.Join.FuzzyThreshold = f.fuzzyThreshold
	}
	if err := cfg.Validate(); err != nil {
		return semjoin.JoinOptions{}, err
	}
	return cfg.JoinOptions(f.leftOn, f.rightOn)
}

func newJoinCmd(a *app) *cobra.Command {
	var (
		flags joinFlags
		out   string
		rows  int
	)

	cmd := &cobra.Command{
		Use:   "join LEFT RIGHT",
		Short: "Join two datasets and print or write the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := flags.options(cmd, a)
			if err != nil {
				return err
			}
			left, err := loadDataset(ctx, args[0], flags.leftQuery)
			if err != nil {
				return err
			}
			right, err := loadDataset(ctx, args[1], flags.rightQuery)
			if err != nil {
				return err
			}
			engine, err := a.engine(flags.contexts, flags.concepts)
			if err != nil {
				return err
			}

			res, err := engine.SemanticJoin(ctx, left, right, opts)
			if err != nil {
				return err
			}
			a.logger.Debug("normalizers selected", zap.Any("normalizers", res.Normalizers))

			w := cmd.OutOrStdout()
			cfg := semjoin.DefaultDisplayConfig()
			cfg.MaxRows = rows
			fmt.Fprintln(w, res.Preview(cfg))
			for _, n := range res.Normalizers {
				fmt.Fprintf(w, "  %s ~ %s: %s (%.2f, %s)\n", n.LeftColumn, n.RightColumn, n.Normalizer, n.Confidence, n.Source)
			}

			if out != "" {
				if err := writeDataset(res.Data, out); err != nil {
					return err
				}
				fmt.Fprintf(w, "wrote %d rows to %s\n", res.Data.Height(), out)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the joined rows to a .csv, .json, .parquet or .xlsx file")
	cmd.Flags().IntVar(&rows, "rows", 10, "Rows to preview")
	return cmd
}

// columnsArg formats a column list for display.
func columnsArg(cols []string) string {
	return strings.Join(cols, ",")
}
