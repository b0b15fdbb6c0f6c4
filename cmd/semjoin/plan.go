package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		flags joinFlags
		dump  bool
	)

	cmd := &cobra.Command{
		Use:   "plan LEFT RIGHT",
		Short: "Show the join plan and normalizer choice without joining",
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

			ex, err := engine.Explain(left, right, opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if dump {
				cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
				cfg.Fdump(w, ex)
				return nil
			}

			p := ex.Plan
			rightCols := opts.RightColumns
			if len(rightCols) == 0 {
				rightCols = opts.LeftColumns
			}
			fmt.Fprintf(w, "join %s [%s] x %s [%s] (%s)\n",
				args[0], columnsArg(opts.LeftColumns), args[1], columnsArg(rightCols), opts.How)
			fmt.Fprintf(w, "strategy:      %s\n", p.Strategy)
			fmt.Fprintf(w, "indexing:      %s\n", p.IndexingStrategy)
			fmt.Fprintf(w, "cost:          %.1f\n", p.EstimatedCost)
			fmt.Fprintf(w, "est. rows:     %d (selectivity %.3f)\n", p.EstimatedRows, p.Selectivity)
			fmt.Fprintf(w, "batching:      %v (size %d, parallelism %d)\n", p.Batching.Enabled, p.Batching.BatchSize, p.Batching.Parallelism)
			fmt.Fprintf(w, "caching:       value=%v index=%v size=%d\n", p.Caching.EnableValueCache, p.Caching.EnableIndexCache, p.Caching.CacheSize)
			for _, n := range ex.Normalizers {
				fmt.Fprintf(w, "normalizer:    %s ~ %s: %s (%.2f, %s)\n", n.LeftColumn, n.RightColumn, n.Normalizer, n.Confidence, n.Source)
			}
			for _, o := range p.Optimizations {
				fmt.Fprintf(w, "optimization:  %s\n", o)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the full plan structure")
	return cmd
}
