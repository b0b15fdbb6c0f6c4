package semjoin

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// planFor plans a single-column join over synthetic statistics.
func planFor(p *Planner, leftRows, rightRows, leftUnique, rightUnique int, lctx, rctx *SemanticContext) JoinPlan {
	opts := LeftOn("a").RightOn("b")
	return p.PlanOptimalJoin(PlanInput{
		LeftContexts:  map[string]*SemanticContext{"a": lctx},
		RightContexts: map[string]*SemanticContext{"b": rctx},
		Options:       opts,
		LeftStats: &TableStats{Rows: leftRows, Cols: 1, Columns: map[string]ColumnStats{
			"a": {Count: leftRows, UniqueCount: leftUnique, DataType: DataTypeString, AvgLength: 10},
		}},
		RightStats: &TableStats{Rows: rightRows, Cols: 1, Columns: map[string]ColumnStats{
			"b": {Count: rightRows, UniqueCount: rightUnique, DataType: DataTypeString, AvgLength: 10},
		}},
	})
}

func TestPlanSmallInputsUseNestedLoop(t *testing.T) {
	plan := planFor(NewPlanner(), 500, 500, 500, 500, nil, nil)

	if plan.Strategy != StrategyNestedLoop {
		t.Errorf("expected nested_loop, got %s", plan.Strategy)
	}
	if plan.IndexingStrategy != IndexNone {
		t.Errorf("expected no index, got %s", plan.IndexingStrategy)
	}
	if plan.Batching.Enabled {
		t.Errorf("expected batching disabled, got %+v", plan.Batching)
	}
	if plan.EstimatedCost <= 0 {
		t.Errorf("expected a positive cost, got %v", plan.EstimatedCost)
	}
}

func TestPlanStrategies(t *testing.T) {
	p := NewPlanner()
	tests := []struct {
		name                   string
		left, right            int
		leftUniq, rightUniq    int
		wantStrategy           JoinStrategy
		wantIndexing           IndexingStrategy
		wantBatching           bool
		wantBatchSize, wantPar int
	}{
		{"broadcast small side", 5_000, 50_000, 5_000, 50_000, StrategyBroadcast, IndexBuildOnSmaller, false, 10_000, 1},
		{"sort merge on selective keys", 200_000, 200_000, 200_000, 200_000, StrategySortMerge, IndexDual, true, 40_000, 4},
		{"hash on low selectivity", 200_000, 200_000, 10, 10, StrategyHash, IndexBuildOnSmaller, true, 40_000, 4},
		{"large batches capped", 1_000_000, 1_000_000, 10, 10, StrategyHash, IndexBuildOnSmaller, true, 50_000, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planFor(p, tt.left, tt.right, tt.leftUniq, tt.rightUniq, nil, nil)
			if plan.Strategy != tt.wantStrategy {
				t.Errorf("strategy = %s, want %s", plan.Strategy, tt.wantStrategy)
			}
			if plan.IndexingStrategy != tt.wantIndexing {
				t.Errorf("indexing = %s, want %s", plan.IndexingStrategy, tt.wantIndexing)
			}
			want := BatchingStrategy{Enabled: tt.wantBatching, BatchSize: tt.wantBatchSize, Parallelism: tt.wantPar}
			if diff := cmp.Diff(want, plan.Batching); diff != "" {
				t.Errorf("batching mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChooseBatching(t *testing.T) {
	tests := []struct {
		total int
		want  BatchingStrategy
	}{
		{0, BatchingStrategy{BatchSize: 10_000, Parallelism: 1}},
		{100_000, BatchingStrategy{BatchSize: 10_000, Parallelism: 1}},
		{150_000, BatchingStrategy{Enabled: true, BatchSize: 15_000, Parallelism: 4}},
		{2_000_000, BatchingStrategy{Enabled: true, BatchSize: 50_000, Parallelism: 4}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, chooseBatching(tt.total)); diff != "" {
			t.Errorf("chooseBatching(%d) mismatch (-want +got):\n%s", tt.total, diff)
		}
	}
}

func TestPlanSelectivityBounds(t *testing.T) {
	p := NewPlanner()
	for _, uniq := range []int{0, 1, 10, 500} {
		plan := planFor(p, 500, 500, uniq, uniq, nil, nil)
		if plan.Selectivity < minSelectivity || plan.Selectivity > 1 {
			t.Errorf("unique=%d: selectivity %v outside [%v, 1]", uniq, plan.Selectivity, minSelectivity)
		}
	}

	empty := planFor(p, 0, 0, 0, 0, nil, nil)
	if empty.Selectivity != minSelectivity || empty.EstimatedRows != 0 {
		t.Errorf("unexpected plan for empty inputs: %+v", empty)
	}
	if empty.Strategy != StrategyNestedLoop {
		t.Errorf("expected nested_loop for empty inputs, got %s", empty.Strategy)
	}
}

func TestPlanNormalizationFromContexts(t *testing.T) {
	p := NewPlanner()
	email := func(conf float64) *SemanticContext {
		return &SemanticContext{SemanticType: "email", Confidence: conf}
	}

	plan := planFor(p, 10, 10, 10, 10, email(0.9), email(0.8))
	if len(plan.Normalization) != 1 {
		t.Fatalf("expected one normalization step, got %d", len(plan.Normalization))
	}
	step := plan.Normalization[0]
	if step.Normalizer != NormalizerEmail {
		t.Errorf("expected email normalizer, got %s", step.Normalizer)
	}
	if step.Confidence < 0.849 || step.Confidence > 0.851 {
		t.Errorf("expected confidence 0.85, got %v", step.Confidence)
	}

	// compatible types scale the mean confidence
	plan = planFor(p, 10, 10, 10, 10,
		&SemanticContext{SemanticType: "phone", Confidence: 0.8},
		&SemanticContext{SemanticType: "mobile", Confidence: 0.8})
	if got := plan.Normalization[0]; got.Normalizer != NormalizerPhone || got.Confidence > 0.8 {
		t.Errorf("expected scaled phone normalizer, got %+v", got)
	}

	// nothing known falls back to the default normalizer
	plan = planFor(p, 10, 10, 10, 10, nil, nil)
	if got := plan.Normalization[0]; got.Normalizer != NormalizerDefault || got.Confidence != fallbackNormalizerConfidence {
		t.Errorf("expected default fallback, got %+v", got)
	}

	// one-sided knowledge is discounted
	plan = planFor(p, 10, 10, 10, 10, email(0.8), nil)
	if got := plan.Normalization[0]; got.Normalizer != NormalizerEmail || got.Confidence != 0.4 {
		t.Errorf("expected discounted email normalizer, got %+v", got)
	}
}

func TestPlanAdvice(t *testing.T) {
	p := NewPlanner()
	plan := planFor(p, 200_000, 200_000, 10, 10,
		&SemanticContext{SemanticType: "email", Confidence: 0.9},
		&SemanticContext{SemanticType: "amount", Confidence: 0.9})

	var low, incompatible bool
	for _, o := range plan.Optimizations {
		low = low || strings.HasPrefix(o, "low selectivity")
		incompatible = incompatible || strings.Contains(o, "incompatible")
	}
	if !low {
		t.Errorf("expected low selectivity advice in %q", plan.Optimizations)
	}
	if !incompatible {
		t.Errorf("expected incompatible type advice in %q", plan.Optimizations)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	p := NewPlanner()
	ctx := &SemanticContext{SemanticType: "email", Confidence: 0.9}
	a := planFor(p, 20_000, 30_000, 15_000, 25_000, ctx, ctx)
	b := planFor(p, 20_000, 30_000, 15_000, 25_000, ctx, ctx)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("planning twice differs (-a +b):\n%s", diff)
	}
}

func TestCustomCostModel(t *testing.T) {
	cheap := DefaultCostModel()
	expensive := DefaultCostModel()
	expensive.NormalizerCost = map[string]float64{NormalizerDefault: 50}

	a := planFor(NewPlannerWithCosts(cheap), 5_000, 50_000, 5_000, 50_000, nil, nil)
	b := planFor(NewPlannerWithCosts(expensive), 5_000, 50_000, 5_000, 50_000, nil, nil)
	if b.EstimatedCost <= a.EstimatedCost {
		t.Errorf("expected a higher cost with expensive normalizers: %v vs %v", a.EstimatedCost, b.EstimatedCost)
	}
	if !b.Caching.EnableValueCache {
		t.Errorf("expected the value cache for expensive normalization, got %+v", b.Caching)
	}
}

func TestComputeTableStats(t *testing.T) {
	df := mustFrame(t,
		NewSeriesString("email", []string{"a@x.com", "b@x.com", "a@x.com"}),
		NewSeriesInt64("n", []int64{1, 2, 3}),
	)
	ts := ComputeTableStats(df, []string{"email", "missing"})
	if ts.Rows != 3 || ts.Cols != 2 {
		t.Errorf("unexpected shape %d x %d", ts.Rows, ts.Cols)
	}
	if _, ok := ts.Columns["missing"]; ok {
		t.Error("unknown columns should be skipped")
	}
	if got := ts.Columns["email"].UniqueCount; got != 2 {
		t.Errorf("expected 2 distinct emails, got %d", got)
	}
}
