package semjoin

import (
	"fmt"
	"math"
	"strings"
)

// ============================================================================
// Plan types
// ============================================================================

// JoinStrategy names a physical join algorithm.
type JoinStrategy string

const (
	StrategyNestedLoop JoinStrategy = "nested_loop"
	StrategyBroadcast  JoinStrategy = "broadcast_join"
	StrategySortMerge  JoinStrategy = "sort_merge"
	StrategyHash       JoinStrategy = "hash_join"
)

// IndexingStrategy names how the join index is built.
type IndexingStrategy string

const (
	IndexNone           IndexingStrategy = "none"
	IndexBuildOnSmaller IndexingStrategy = "build_on_smaller"
	IndexDual           IndexingStrategy = "dual_index"
)

// BatchingStrategy describes how the probe side is scanned.
type BatchingStrategy struct {
	Enabled     bool
	BatchSize   int
	Parallelism int
}

// CacheStrategy describes which caches the join should use.
type CacheStrategy struct {
	EnableValueCache bool
	EnableIndexCache bool
	CacheSize        int
}

// NormalizationStep is the planner's choice for one join-column pair.
type NormalizationStep struct {
	LeftColumn    string
	RightColumn   string
	Normalizer    string
	Confidence    float64 // how well the normalizer fits the pair
	Selectivity   float64
	Cardinality   int
	EstimatedCost float64
}

// JoinPlan is the planner's output for one join call. Strategy and
// IndexingStrategy are advisory: execution always uses the hash index with
// fuzzy fallback. Batching and Caching are honored by the engine.
type JoinPlan struct {
	Strategy         JoinStrategy
	EstimatedCost    float64
	EstimatedRows    int
	Selectivity      float64
	IndexingStrategy IndexingStrategy
	Batching         BatchingStrategy
	Caching          CacheStrategy
	Normalization    []NormalizationStep
	Optimizations    []string
}

// TableStats holds statistics about one side of a join.
type TableStats struct {
	Rows    int
	Cols    int
	Columns map[string]ColumnStats
}

// PlanInput carries everything the planner looks at.
type PlanInput struct {
	Left, Right   DatasetView
	LeftContexts  map[string]*SemanticContext
	RightContexts map[string]*SemanticContext
	Options       JoinOptions

	// Precomputed statistics; computed from the views when nil.
	LeftStats, RightStats *TableStats
}

// ============================================================================
// Cost model
// ============================================================================

// CostModel holds the per-row weights of the planner.
type CostModel struct {
	BuildCost         float64
	ProbeCost         float64
	MergeCost         float64
	BroadcastOverhead float64
	NormalizerCost    map[string]float64
}

// DefaultCostModel returns the default weights.
func DefaultCostModel() CostModel {
	return CostModel{
		BuildCost:         1.5,
		ProbeCost:         1.0,
		MergeCost:         0.5,
		BroadcastOverhead: 100,
		NormalizerCost: map[string]float64{
			NormalizerEmail:       2,
			NormalizerPhone:       3,
			NormalizerName:        4,
			NormalizerAddress:     5,
			NormalizerNumeric:     2,
			NormalizerDate:        3,
			NormalizerCategorical: 1,
			NormalizerUUID:        1,
			NormalizerDefault:     1,
		},
	}
}

func (m CostModel) normalizerCost(name string) float64 {
	if c, ok := m.NormalizerCost[name]; ok {
		return c
	}
	return 1
}

// Planner thresholds.
const (
	nestedLoopMaxRows      = 1000
	broadcastMaxRows       = 10_000
	sortMergeMinSelect     = 0.1
	sortMergeMinMatches    = 100_000
	batchingMinRows        = 100_000
	indexCacheMinRows      = 50_000
	maxBatchSize           = 50_000
	minBatchSize           = 10_000
	maxParallelism         = 4
	maxCacheSize           = 100_000
	minCacheSize           = 10_000
	minSelectivity         = 0.001
	parallelCostDiscount   = 0.8
	lowSelectivityAdvice   = 0.01
	largeMemoryBytes       = 512 << 20
	largeFuzzyCrossProduct = 1e8
)

// Planner computes join plans. It is stateless and safe for concurrent use.
type Planner struct {
	costs CostModel
}

// NewPlanner creates a planner with the default cost model.
func NewPlanner() *Planner {
	return &Planner{costs: DefaultCostModel()}
}

// NewPlannerWithCosts creates a planner with a custom cost model.
func NewPlannerWithCosts(m CostModel) *Planner {
	return &Planner{costs: m}
}

// ============================================================================
// Planning
// ============================================================================

// PlanOptimalJoin produces a plan for joining in.Left and in.Right.
// It is a pure function of its input.
func (p *Planner) PlanOptimalJoin(in PlanInput) JoinPlan {
	opts := in.Options.normalized()

	ls := in.LeftStats
	if ls == nil {
		s := ComputeTableStats(in.Left, opts.LeftColumns)
		ls = &s
	}
	rs := in.RightStats
	if rs == nil {
		s := ComputeTableStats(in.Right, opts.RightColumns)
		rs = &s
	}

	selectivity := p.estimateSelectivity(ls, rs, in, opts)
	expected := float64(ls.Rows) * float64(rs.Rows) * selectivity

	steps, normCost := p.planNormalization(ls, rs, in, opts)

	plan := JoinPlan{
		Selectivity:   selectivity,
		EstimatedRows: int(math.Round(expected)),
		Normalization: steps,
	}
	plan.Strategy = chooseStrategy(ls.Rows, rs.Rows, selectivity, expected)
	plan.IndexingStrategy = chooseIndexing(plan.Strategy)
	plan.Batching = chooseBatching(ls.Rows + rs.Rows)
	plan.Caching = chooseCaching(ls.Rows+rs.Rows, normCost)
	plan.EstimatedCost = p.estimateCost(plan.Strategy, ls.Rows, rs.Rows, normCost, plan.Batching)
	plan.Optimizations = p.advise(plan, ls, rs, normCost, opts, in)
	return plan
}

// ComputeTableStats profiles the given columns of a view.
func ComputeTableStats(v DatasetView, columns []string) TableStats {
	rows, cols := v.Shape()
	ts := TableStats{Rows: rows, Cols: cols, Columns: make(map[string]ColumnStats, len(columns))}
	for _, c := range columns {
		values, err := v.GetColumn(c)
		if err != nil {
			continue
		}
		ts.Columns[c] = AnalyzeColumn(values)
	}
	return ts
}

func (p *Planner) estimateSelectivity(ls, rs *TableStats, in PlanInput, opts JoinOptions) float64 {
	maxRows := ls.Rows
	if rs.Rows > maxRows {
		maxRows = rs.Rows
	}
	if maxRows == 0 || len(opts.LeftColumns) == 0 {
		return minSelectivity
	}

	sel := 1.0
	for i := range opts.LeftColumns {
		if i >= len(opts.RightColumns) {
			break
		}
		l := ls.Columns[opts.LeftColumns[i]]
		r := rs.Columns[opts.RightColumns[i]]

		uniq := l.UniqueCount
		if r.UniqueCount < uniq {
			uniq = r.UniqueCount
		}
		factor := float64(uniq) / float64(maxRows)

		switch relateContexts(in.LeftContexts[opts.LeftColumns[i]], in.RightContexts[opts.RightColumns[i]]) {
		case RelationSame:
			factor *= 1.2
		case RelationCompatible:
			factor *= 0.8
		case RelationIncompatible:
			factor *= 0.3
		}
		if opts.EnableFuzzyMatching {
			factor *= 1.5
		}
		factor *= 1 - (l.NullRatio+r.NullRatio)/2
		sel *= factor
	}
	return clamp(sel, minSelectivity, 1.0)
}

// semanticNormalizers maps semantic types to the normalizer that fits them.
var semanticNormalizers = map[string]string{
	"email":                      NormalizerEmail,
	"username":                   NormalizerEmail,
	"phone":                      NormalizerPhone,
	"mobile":                     NormalizerPhone,
	"person_name":                NormalizerName,
	"full_name":                  NormalizerName,
	"first_name":                 NormalizerName,
	"last_name":                  NormalizerName,
	"address":                    NormalizerAddress,
	"street_address":             NormalizerAddress,
	"amount":                     NormalizerNumeric,
	"currency_amount":            NormalizerNumeric,
	"quantity":                   NormalizerNumeric,
	"date":                       NormalizerDate,
	"timestamp":                  NormalizerDate,
	"category":                   NormalizerCategorical,
	"status":                     NormalizerCategorical,
	"country":                    NormalizerCategorical,
	"country_code":               NormalizerCategorical,
	"postal_code":                NormalizerCategorical,
	"zip":                        NormalizerCategorical,
	"uuid":                       NormalizerUUID,
	"identifier":                 NormalizerDefault,
	"customer_id":                NormalizerDefault,
	"high_cardinality_attribute": NormalizerDefault,
}

// normalizerForType returns the normalizer suited to a semantic type.
func normalizerForType(semanticType string) (string, bool) {
	n, ok := semanticNormalizers[strings.ToLower(semanticType)]
	return n, ok
}

// planner confidence for a pair with no usable context
const fallbackNormalizerConfidence = 0.3

// suggestNormalizer picks a normalizer for a column pair from its contexts.
func suggestNormalizer(l, r *SemanticContext) (string, float64) {
	switch relateContexts(l, r) {
	case RelationSame:
		if n, ok := normalizerForType(l.SemanticType); ok {
			return n, clamp01((l.Confidence + r.Confidence) / 2)
		}
	case RelationCompatible:
		scale := typeCompatibility(l.SemanticType, r.SemanticType)
		// prefer the side whose type maps to a specific normalizer
		for _, c := range []*SemanticContext{l, r} {
			if n, ok := normalizerForType(c.SemanticType); ok && n != NormalizerDefault {
				return n, clamp01((l.Confidence + r.Confidence) / 2 * scale)
			}
		}
	}
	// single-sided knowledge
	for _, c := range []*SemanticContext{l, r} {
		if c == nil {
			continue
		}
		if n, ok := normalizerForType(c.SemanticType); ok {
			return n, clamp01(c.Confidence * 0.5)
		}
	}
	return NormalizerDefault, fallbackNormalizerConfidence
}

func (p *Planner) planNormalization(ls, rs *TableStats, in PlanInput, opts JoinOptions) ([]NormalizationStep, float64) {
	steps := make([]NormalizationStep, 0, len(opts.LeftColumns))
	total := 0.0
	for i := range opts.LeftColumns {
		if i >= len(opts.RightColumns) {
			break
		}
		lc, rc := opts.LeftColumns[i], opts.RightColumns[i]
		name, conf := suggestNormalizer(in.LeftContexts[lc], in.RightContexts[rc])

		l, r := ls.Columns[lc], rs.Columns[rc]
		card := l.UniqueCount
		if r.UniqueCount > card {
			card = r.UniqueCount
		}
		colSel := 0.0
		if maxRows := maxInt(ls.Rows, rs.Rows); maxRows > 0 {
			colSel = float64(minInt(l.UniqueCount, r.UniqueCount)) / float64(maxRows)
		}
		cost := float64(ls.Rows+rs.Rows) * p.costs.normalizerCost(name)
		total += cost

		steps = append(steps, NormalizationStep{
			LeftColumn:    lc,
			RightColumn:   rc,
			Normalizer:    name,
			Confidence:    conf,
			Selectivity:   clamp01(colSel),
			Cardinality:   card,
			EstimatedCost: cost,
		})
	}
	return steps, total
}

func chooseStrategy(l, r int, selectivity, expected float64) JoinStrategy {
	switch {
	case l < nestedLoopMaxRows && r < nestedLoopMaxRows:
		return StrategyNestedLoop
	case l < broadcastMaxRows || r < broadcastMaxRows:
		return StrategyBroadcast
	case selectivity > sortMergeMinSelect && expected > sortMergeMinMatches:
		return StrategySortMerge
	default:
		return StrategyHash
	}
}

func chooseIndexing(s JoinStrategy) IndexingStrategy {
	switch s {
	case StrategyNestedLoop:
		return IndexNone
	case StrategySortMerge:
		return IndexDual
	default:
		return IndexBuildOnSmaller
	}
}

func chooseBatching(total int) BatchingStrategy {
	size := total / 10
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > maxBatchSize {
		size = maxBatchSize
	}
	b := BatchingStrategy{BatchSize: size, Parallelism: 1}
	if total > batchingMinRows {
		b.Enabled = true
		b.Parallelism = minInt(maxParallelism, int(math.Ceil(float64(total)/float64(size))))
	}
	return b
}

func chooseCaching(total int, normCost float64) CacheStrategy {
	size := total / 5
	if size < minCacheSize {
		size = minCacheSize
	}
	if size > maxCacheSize {
		size = maxCacheSize
	}
	return CacheStrategy{
		EnableValueCache: normCost > 2*float64(total),
		EnableIndexCache: total > indexCacheMinRows,
		CacheSize:        size,
	}
}

func nlogn(n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(n) * math.Log2(float64(n))
}

func (p *Planner) estimateCost(s JoinStrategy, l, r int, normCost float64, b BatchingStrategy) float64 {
	small, large := float64(minInt(l, r)), float64(maxInt(l, r))
	var cost float64
	switch s {
	case StrategyNestedLoop:
		cost = float64(l) * float64(r)
	case StrategyHash:
		cost = p.costs.BuildCost*small + p.costs.ProbeCost*large
	case StrategySortMerge:
		cost = nlogn(l) + nlogn(r) + p.costs.MergeCost*float64(l+r)
	case StrategyBroadcast:
		cost = p.costs.BroadcastOverhead + 0.1*small + p.costs.ProbeCost*large
	}
	cost += normCost
	if b.Parallelism > 1 {
		cost *= parallelCostDiscount
	}
	return cost
}

func (p *Planner) advise(plan JoinPlan, ls, rs *TableStats, normCost float64, opts JoinOptions, in PlanInput) []string {
	var out []string
	total := ls.Rows + rs.Rows
	if plan.Selectivity < lowSelectivityAdvice {
		out = append(out, "low selectivity: consider pre-filtering rows that cannot match")
	}
	if total > 0 && normCost > 5*float64(total) {
		out = append(out, "high normalization cost: keep the value cache enabled and reuse the engine across joins")
	}
	var mem float64
	for _, c := range opts.LeftColumns {
		mem += float64(ls.Rows) * (ls.Columns[c].AvgLength + 16)
	}
	for _, c := range opts.RightColumns {
		mem += float64(rs.Rows) * (rs.Columns[c].AvgLength + 16)
	}
	if mem > largeMemoryBytes {
		out = append(out, fmt.Sprintf("large memory footprint: join keys need about %.0f MiB; consider batching or projecting columns", mem/(1<<20)))
	}
	if opts.EnableFuzzyMatching && float64(ls.Rows)*float64(rs.Rows) > largeFuzzyCrossProduct {
		out = append(out, "fuzzy fallback over a large cross product: raise the fuzzy threshold or disable fuzzy matching")
	}
	for i := range opts.LeftColumns {
		if i >= len(opts.RightColumns) {
			break
		}
		if relateContexts(in.LeftContexts[opts.LeftColumns[i]], in.RightContexts[opts.RightColumns[i]]) == RelationIncompatible {
			out = append(out, fmt.Sprintf("semantic types of %s and %s look incompatible", opts.LeftColumns[i], opts.RightColumns[i]))
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
