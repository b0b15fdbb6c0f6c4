package semjoin

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Parallel Execution Configuration
// ============================================================================

// ParallelConfig controls parallelization behavior
type ParallelConfig struct {
	// MinRowsForParallel is the minimum rows to justify parallel overhead
	MinRowsForParallel int

	// MorselSize is the number of rows per work unit when normalizing
	// join columns (default 4096)
	MorselSize int

	// MaxWorkers limits the number of worker goroutines (0 = GOMAXPROCS)
	MaxWorkers int

	// Enabled controls whether parallelism is used at all
	Enabled bool
}

// DefaultParallelConfig returns sensible defaults
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MinRowsForParallel: 8192,
		MorselSize:         4096,
		MaxWorkers:         0,
		Enabled:            true,
	}
}

// numWorkers returns the number of workers to use
func (cfg ParallelConfig) numWorkers() int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// shouldParallelize determines if an operation should be parallelized
func (cfg ParallelConfig) shouldParallelize(rows int) bool {
	return cfg.Enabled && rows >= cfg.MinRowsForParallel
}

// ============================================================================
// Morsel-Based Work Distribution
// ============================================================================

// Morsel represents a range of rows to process
type Morsel struct {
	Index int // position of the morsel in scan order
	Start int
	End   int
}

// MorselIterator hands out consecutive row ranges. Next is safe for
// concurrent use.
type MorselIterator struct {
	totalRows  int
	morselSize int
	nextStart  atomic.Int64
}

// NewMorselIterator creates a new morsel iterator
func NewMorselIterator(totalRows, morselSize int) *MorselIterator {
	if morselSize <= 0 {
		morselSize = DefaultParallelConfig().MorselSize
	}
	return &MorselIterator{totalRows: totalRows, morselSize: morselSize}
}

// Count returns the number of morsels the iterator produces in total.
func (mi *MorselIterator) Count() int {
	return (mi.totalRows + mi.morselSize - 1) / mi.morselSize
}

// Next returns the next morsel, or false when exhausted
func (mi *MorselIterator) Next() (Morsel, bool) {
	for {
		start := mi.nextStart.Load()
		if int(start) >= mi.totalRows {
			return Morsel{}, false
		}
		end := int(start) + mi.morselSize
		if end > mi.totalRows {
			end = mi.totalRows
		}
		if mi.nextStart.CompareAndSwap(start, int64(end)) {
			return Morsel{Index: int(start) / mi.morselSize, Start: int(start), End: end}, true
		}
	}
}

// ============================================================================
// Parallel Execution Helpers
// ============================================================================

// parallelFor runs fn over morsels of [0, totalRows) on up to workers
// goroutines. The context is checked before each morsel.
func parallelFor(ctx context.Context, cfg ParallelConfig, totalRows int, fn func(m Morsel)) error {
	if !cfg.shouldParallelize(totalRows) {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(Morsel{Start: 0, End: totalRows})
		return nil
	}

	iter := NewMorselIterator(totalRows, cfg.MorselSize)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.numWorkers(); w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, ok := iter.Next()
				if !ok {
					return nil
				}
				fn(m)
			}
		})
	}
	return g.Wait()
}

// collectBatches runs fn over batches of [0, totalRows) and returns the
// per-batch results in scan order. With workers <= 1 batches run on the
// calling goroutine. The context is checked between batches and the first
// error cancels the remaining work.
func collectBatches[T any](ctx context.Context, totalRows, batchSize, workers int, fn func(ctx context.Context, m Morsel) ([]T, error)) ([]T, int, error) {
	if totalRows == 0 {
		return nil, 0, ctx.Err()
	}
	iter := NewMorselIterator(totalRows, batchSize)
	results := make([][]T, iter.Count())

	if workers <= 1 {
		for {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			m, ok := iter.Next()
			if !ok {
				break
			}
			out, err := fn(ctx, m)
			if err != nil {
				return nil, 0, err
			}
			results[m.Index] = out
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				for {
					if err := gctx.Err(); err != nil {
						return err
					}
					m, ok := iter.Next()
					if !ok {
						return nil
					}
					out, err := fn(gctx, m)
					if err != nil {
						return err
					}
					results[m.Index] = out
				}
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]T, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, len(results), nil
}
