package semjoin

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ============================================================================
// Adapters
// ============================================================================

// PerformanceHints describe how a native data type behaves under a join.
type PerformanceHints struct {
	PreferredBatchSize int
	SupportsParallel   bool
	ZeroCopy           bool
	MemoryEfficient    bool
}

// Adapter converts a native tabular object to a DatasetView and a join
// result back to the native type.
type Adapter interface {
	Name() string
	CanHandle(obj any) bool
	ToView(obj any) (DatasetView, error)
	FromJoinResult(res *JoinResult, left, right any, opts JoinOptions) (any, error)
	OptimizeForType(opts JoinOptions) JoinOptions
	PerformanceHints() PerformanceHints
}

// FrameAdapter handles *DataFrame values.
type FrameAdapter struct{}

func (FrameAdapter) Name() string { return "dataframe" }

func (FrameAdapter) CanHandle(obj any) bool {
	_, ok := obj.(*DataFrame)
	return ok
}

func (FrameAdapter) ToView(obj any) (DatasetView, error) {
	df, ok := obj.(*DataFrame)
	if !ok || df == nil {
		return nil, fmt.Errorf("dataframe adapter: unsupported type %T", obj)
	}
	return df, nil
}

func (FrameAdapter) FromJoinResult(res *JoinResult, _, _ any, _ JoinOptions) (any, error) {
	return res.Data, nil
}

func (FrameAdapter) OptimizeForType(opts JoinOptions) JoinOptions { return opts }

func (FrameAdapter) PerformanceHints() PerformanceHints {
	return PerformanceHints{PreferredBatchSize: DefaultBatchSize, SupportsParallel: true, ZeroCopy: true}
}

// ArrowAdapter handles arrow.Record values. Records are copied into a
// DataFrame; results are exported with the adapter's allocator.
type ArrowAdapter struct {
	Mem memory.Allocator
}

func (ArrowAdapter) Name() string { return "arrow" }

func (ArrowAdapter) CanHandle(obj any) bool {
	_, ok := obj.(arrow.Record)
	return ok
}

func (ArrowAdapter) ToView(obj any) (DatasetView, error) {
	rec, ok := obj.(arrow.Record)
	if !ok {
		return nil, fmt.Errorf("arrow adapter: unsupported type %T", obj)
	}
	df, err := NewDataFrameFromArrow(rec)
	if err != nil {
		return nil, fmt.Errorf("arrow adapter: %w", err)
	}
	return df, nil
}

// FromJoinResult returns an arrow.Record the caller must release.
func (a ArrowAdapter) FromJoinResult(res *JoinResult, _, _ any, _ JoinOptions) (any, error) {
	return res.Data.ToArrow(a.Mem)
}

// OptimizeForType raises the batch size; columnar sources probe well in
// large batches.
func (ArrowAdapter) OptimizeForType(opts JoinOptions) JoinOptions {
	if opts.BatchSize < 4*DefaultBatchSize {
		opts.BatchSize = 4 * DefaultBatchSize
	}
	return opts
}

func (ArrowAdapter) PerformanceHints() PerformanceHints {
	return PerformanceHints{PreferredBatchSize: 4 * DefaultBatchSize, SupportsParallel: true, MemoryEfficient: true}
}

// RecordsAdapter handles []map[string]any rows.
type RecordsAdapter struct{}

func (RecordsAdapter) Name() string { return "records" }

func (RecordsAdapter) CanHandle(obj any) bool {
	_, ok := obj.([]map[string]any)
	return ok
}

func (RecordsAdapter) ToView(obj any) (DatasetView, error) {
	records, ok := obj.([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("records adapter: unsupported type %T", obj)
	}
	df, err := FromRecords(records)
	if err != nil {
		return nil, fmt.Errorf("records adapter: %w", err)
	}
	return df, nil
}

func (RecordsAdapter) FromJoinResult(res *JoinResult, _, _ any, _ JoinOptions) (any, error) {
	out := make([]map[string]any, res.Data.Height())
	for i := range out {
		out[i] = res.Data.Row(i)
	}
	return out, nil
}

// OptimizeForType keeps batches small; row maps are boxed per cell.
func (RecordsAdapter) OptimizeForType(opts JoinOptions) JoinOptions {
	if opts.BatchSize > DefaultBatchSize/4 {
		opts.BatchSize = DefaultBatchSize / 4
	}
	return opts
}

func (RecordsAdapter) PerformanceHints() PerformanceHints {
	return PerformanceHints{PreferredBatchSize: DefaultBatchSize / 4}
}

// ============================================================================
// Registry
// ============================================================================

// AdapterRegistry dispatches native objects to the first adapter that can
// handle them. It is safe for concurrent use.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewAdapterRegistry returns a registry holding the built-in adapters.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: []Adapter{FrameAdapter{}, ArrowAdapter{}, RecordsAdapter{}}}
}

// Register adds an adapter ahead of the existing ones.
func (r *AdapterRegistry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append([]Adapter{a}, r.adapters...)
}

// AdapterFor returns the adapter for obj.
func (r *AdapterRegistry) AdapterFor(obj any) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.CanHandle(obj) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no adapter for type %T", obj)
}

// ToView converts obj with the matching adapter. DatasetViews pass through.
func (r *AdapterRegistry) ToView(obj any) (DatasetView, error) {
	if v, ok := obj.(DatasetView); ok {
		return v, nil
	}
	a, err := r.AdapterFor(obj)
	if err != nil {
		return nil, err
	}
	return a.ToView(obj)
}

// JoinNative joins two native objects and converts the result to the left
// object's native type.
func (e *Engine) JoinNative(ctx context.Context, reg *AdapterRegistry, left, right any, opts JoinOptions) (any, *JoinResult, error) {
	la, err := reg.AdapterFor(left)
	if err != nil {
		return nil, nil, err
	}
	lv, err := la.ToView(left)
	if err != nil {
		return nil, nil, err
	}
	rv, err := reg.ToView(right)
	if err != nil {
		return nil, nil, err
	}

	res, err := e.SemanticJoin(ctx, lv, rv, la.OptimizeForType(opts))
	if err != nil {
		return nil, nil, err
	}
	out, err := la.FromJoinResult(res, left, right, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s adapter: %w", la.Name(), err)
	}
	return out, res, nil
}
