package semjoin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// Engine
// ============================================================================

// Engine executes semantic joins. It owns a normalizer registry, a
// normalization cache, a planner and a confidence calculator. An Engine is
// safe for concurrent use; the cache is its only state shared across calls.
type Engine struct {
	logger   *zap.Logger
	registry *NormalizerRegistry
	contexts ContextProvider
	concepts ConceptRegistry
	cache    *NormalizationCache
	planner  *Planner
	calc     *ConfidenceCalculator
	parallel ParallelConfig

	weights   ConfidenceWeights
	costs     CostModel
	cacheSize int

	// fixedCache is set by WithCacheSize; the plan may not grow the cache.
	fixedCache bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. The default discards output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNormalizer registers an additional normalizer, or replaces a built-in
// one of the same name, in this engine's registry.
func WithNormalizer(n Normalizer) EngineOption {
	return func(e *Engine) {
		if err := e.registry.Register(n); err != nil {
			e.logger.Warn("ignoring normalizer", zap.Error(err))
		}
	}
}

// WithContextProvider sets the source of semantic contexts. Columns it does
// not know are inferred from their names and statistics.
func WithContextProvider(p ContextProvider) EngineOption {
	return func(e *Engine) { e.contexts = p }
}

// WithConceptRegistry enables concept-based normalizer selection and
// domain scoring.
func WithConceptRegistry(r ConceptRegistry) EngineOption {
	return func(e *Engine) { e.concepts = r }
}

// WithCacheSize sets the normalization cache capacity. Without it the
// planner may grow the cache for joins with expensive normalization.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.cacheSize = n
		e.fixedCache = true
	}
}

// WithParallelConfig sets how normalization and probing are parallelized.
func WithParallelConfig(cfg ParallelConfig) EngineOption {
	return func(e *Engine) { e.parallel = cfg }
}

// WithWeights sets the confidence component weights.
func WithWeights(w ConfidenceWeights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithCostModel sets the planner cost model.
func WithCostModel(m CostModel) EngineOption {
	return func(e *Engine) { e.costs = m }
}

// NewEngine creates an engine with its own normalizer registry and cache.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:    zap.NewNop(),
		registry:  NewNormalizerRegistry(),
		parallel:  DefaultParallelConfig(),
		weights:   DefaultConfidenceWeights(),
		costs:     DefaultCostModel(),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = NewNormalizationCache(e.cacheSize)
	e.planner = NewPlannerWithCosts(e.costs)
	e.calc = NewConfidenceCalculator(e.weights, e.logger)
	if h, ok := e.concepts.(ConceptHierarchy); ok {
		e.calc.hierarchy = h
	}
	return e
}

// Normalizers returns the engine's normalizer registry.
func (e *Engine) Normalizers() *NormalizerRegistry { return e.registry }

// Planner returns the engine's planner.
func (e *Engine) Planner() *Planner { return e.planner }

// Calculator returns the engine's confidence calculator, which also holds
// the online calibration state.
func (e *Engine) Calculator() *ConfidenceCalculator { return e.calc }

// ClearCache empties the normalization cache and resets its counters.
func (e *Engine) ClearCache() { e.cache.Clear() }

// CacheStats returns the normalization cache counters.
func (e *Engine) CacheStats() CacheStats { return e.cache.Stats() }

// ============================================================================
// Semantic join
// ============================================================================

// NormalizerSelection records which normalizer a column pair was joined with.
type NormalizerSelection struct {
	LeftColumn  string  `json:"left_column"`
	RightColumn string  `json:"right_column"`
	Normalizer  string  `json:"normalizer"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"` // planner, concept or auto
}

// joinState carries everything computed for one SemanticJoin call.
type joinState struct {
	opts        JoinOptions
	leftCols    []string
	rightCols   []string
	leftValues  [][]any
	rightValues [][]any
	leftStats   TableStats
	rightStats  TableStats
	leftCtx     map[string]*SemanticContext
	rightCtx    map[string]*SemanticContext
	leftConc    [][]ConceptMatch
	rightConc   [][]ConceptMatch
	selections  []NormalizerSelection
	normalizers []Normalizer
	leftNorm    [][]string
	rightNorm   [][]string
	scorers     []*Scorer
	comparisons atomic.Int64
}

// SemanticJoin joins left and right on semantically equivalent columns.
// Structural problems (unknown columns, mismatched column counts) fail
// before any work is done; per-value problems only lower confidence.
func (e *Engine) SemanticJoin(ctx context.Context, left, right DatasetView, opts JoinOptions) (*JoinResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID))
	cacheBefore := e.cache.Stats()

	st, plan, err := e.prepare(left, right, opts, log)
	if err != nil {
		return nil, err
	}
	leftRows, rightRows := viewRows(left), viewRows(right)

	// Normalization
	normStart := time.Now()
	useCache := st.opts.CacheNormalizedValues
	if useCache && !e.fixedCache && plan.Caching.EnableValueCache && plan.Caching.CacheSize > e.cache.Stats().Capacity {
		e.cache.Resize(plan.Caching.CacheSize)
	}
	if st.leftNorm, err = e.normalizeColumns(ctx, st.normalizers, st.leftValues, leftRows, useCache); err != nil {
		return nil, fmt.Errorf("semantic join canceled: %w", err)
	}
	if st.rightNorm, err = e.normalizeColumns(ctx, st.normalizers, st.rightValues, rightRows, useCache); err != nil {
		return nil, fmt.Errorf("semantic join canceled: %w", err)
	}
	normTime := time.Since(normStart)

	// Index the left side, then probe with the right side in batches
	joinStart := time.Now()
	leftKeys := compositeKeys(st.leftNorm, leftRows)
	rightKeys := compositeKeys(st.rightNorm, rightRows)
	index := buildKeyIndex(leftKeys)
	e.buildScorers(st)

	batchSize, workers := st.opts.BatchSize, 1
	if plan.Batching.Enabled {
		batchSize, workers = plan.Batching.BatchSize, plan.Batching.Parallelism
	}
	matches, batches, err := collectBatches(ctx, rightRows, batchSize, workers,
		func(ctx context.Context, m Morsel) ([]JoinMatch, error) {
			out := e.probeBatch(st, index, rightKeys, m)
			log.Debug("probed batch",
				zap.Int("batch", m.Index), zap.Int("start", m.Start), zap.Int("end", m.End),
				zap.Int("matches", len(out)))
			return out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("semantic join canceled: %w", err)
	}

	data, all, err := assembleOutput(left, right, st, matches, leftRows, rightRows)
	if err != nil {
		return nil, err
	}
	joinTime := time.Since(joinStart)

	cacheAfter := e.cache.Stats()
	res := &JoinResult{
		Data:        data,
		Matches:     all,
		Plan:        plan,
		Normalizers: st.selections,
		Performance: Performance{
			RunID:             runID,
			TotalTime:         time.Since(start),
			NormalizationTime: normTime,
			JoinTime:          joinTime,
			CacheHits:         cacheAfter.Hits - cacheBefore.Hits,
			CacheMisses:       cacheAfter.Misses - cacheBefore.Misses,
			TotalOperations:   int64((leftRows+rightRows)*len(st.leftCols)) + st.comparisons.Load(),
			PlannedStrategy:   plan.Strategy,
			BatchesProcessed:  batches,
		},
		Statistics: computeStatistics(all, leftRows, rightRows),
	}

	log.Info("semantic join completed",
		zap.String("how", st.opts.How.String()),
		zap.Int("left_rows", leftRows),
		zap.Int("right_rows", rightRows),
		zap.Int("matched_rows", res.Statistics.MatchedRows),
		zap.Int("output_rows", res.Statistics.OutputRows),
		zap.Float64("avg_confidence", res.Statistics.Confidence.Average),
		zap.Duration("elapsed", res.Performance.TotalTime))
	return res, nil
}

// prepare resolves the join columns, gathers statistics and contexts, plans
// the join and selects one normalizer per column pair.
func (e *Engine) prepare(left, right DatasetView, opts JoinOptions, log *zap.Logger) (*joinState, JoinPlan, error) {
	st := &joinState{opts: opts.normalized()}
	var err error
	st.leftCols, st.rightCols, err = resolveJoinColumns(left, right, st.opts)
	if err != nil {
		return nil, JoinPlan{}, err
	}
	st.opts.LeftColumns, st.opts.RightColumns = st.leftCols, st.rightCols
	if st.leftValues, err = readColumns(left, st.leftCols); err != nil {
		return nil, JoinPlan{}, fmt.Errorf("failed to read left join columns: %w", err)
	}
	if st.rightValues, err = readColumns(right, st.rightCols); err != nil {
		return nil, JoinPlan{}, fmt.Errorf("failed to read right join columns: %w", err)
	}

	// Statistics and contexts
	st.leftStats = tableStatsFrom(left, st.leftCols, st.leftValues)
	st.rightStats = tableStatsFrom(right, st.rightCols, st.rightValues)
	e.fetchContexts(st)

	plan := e.planner.PlanOptimalJoin(PlanInput{
		Left:          left,
		Right:         right,
		LeftContexts:  st.leftCtx,
		RightContexts: st.rightCtx,
		Options:       st.opts,
		LeftStats:     &st.leftStats,
		RightStats:    &st.rightStats,
	})
	log.Debug("join plan",
		zap.String("strategy", string(plan.Strategy)),
		zap.String("indexing", string(plan.IndexingStrategy)),
		zap.Float64("selectivity", plan.Selectivity),
		zap.Int("estimated_rows", plan.EstimatedRows),
		zap.Bool("batching", plan.Batching.Enabled),
		zap.Int("parallelism", plan.Batching.Parallelism),
		zap.Strings("optimizations", plan.Optimizations))

	e.selectNormalizers(st, plan, log)
	return st, plan, nil
}

// Explanation is the plan and normalizer choice for a join, without
// executing it.
type Explanation struct {
	Plan        JoinPlan
	Normalizers []NormalizerSelection
	LeftStats   TableStats
	RightStats  TableStats
}

// Explain plans a join the way SemanticJoin would and returns the plan
// and the chosen normalizers.
func (e *Engine) Explain(left, right DatasetView, opts JoinOptions) (*Explanation, error) {
	st, plan, err := e.prepare(left, right, opts, e.logger)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		Plan:        plan,
		Normalizers: st.selections,
		LeftStats:   st.leftStats,
		RightStats:  st.rightStats,
	}, nil
}

func resolveJoinColumns(left, right DatasetView, opts JoinOptions) ([]string, []string, error) {
	leftCols, rightCols := opts.LeftColumns, opts.RightColumns
	if len(leftCols) == 0 {
		return nil, nil, ErrNoJoinColumns
	}
	if len(rightCols) == 0 {
		rightCols = leftCols
	}
	if len(leftCols) != len(rightCols) {
		return nil, nil, &JoinColumnCountMismatchError{Left: len(leftCols), Right: len(rightCols)}
	}
	for _, col := range leftCols {
		if !hasColumn(left, col) {
			return nil, nil, &ColumnNotFoundError{Side: "left", Column: col, Available: left.Columns()}
		}
	}
	for _, col := range rightCols {
		if !hasColumn(right, col) {
			return nil, nil, &ColumnNotFoundError{Side: "right", Column: col, Available: right.Columns()}
		}
	}
	return leftCols, rightCols, nil
}

func readColumns(v DatasetView, cols []string) ([][]any, error) {
	rows := viewRows(v)
	out := make([][]any, len(cols))
	for i, c := range cols {
		values, err := v.GetColumn(c)
		if err != nil {
			return nil, err
		}
		if len(values) != rows {
			return nil, fmt.Errorf("column '%s' has %d values, expected %d", c, len(values), rows)
		}
		out[i] = values
	}
	return out, nil
}

func tableStatsFrom(v DatasetView, cols []string, values [][]any) TableStats {
	rows, width := v.Shape()
	ts := TableStats{Rows: rows, Cols: width, Columns: make(map[string]ColumnStats, len(cols))}
	for i, c := range cols {
		ts.Columns[c] = AnalyzeColumn(values[i])
	}
	return ts
}

// fetchContexts resolves a context per join column. Inference reads the
// statistics of the column's own side, so LeftID and RightID may be equal.
func (e *Engine) fetchContexts(st *joinState) {
	st.leftCtx = contextsFor(e.contexts, st.opts.LeftID, st.leftCols, st.leftStats)
	st.rightCtx = contextsFor(e.contexts, st.opts.RightID, st.rightCols, st.rightStats)
}

func contextsFor(base ContextProvider, viewID string, cols []string, stats TableStats) map[string]*SemanticContext {
	provider := &InferringContextProvider{
		Base: base,
		Stats: func(_, column string) (ColumnStats, bool) {
			s, ok := stats.Columns[column]
			return s, ok
		},
	}
	out := make(map[string]*SemanticContext, len(cols))
	for _, c := range cols {
		out[c] = provider.SemanticContext(viewID, c)
	}
	return out
}

// ============================================================================
// Normalizer selection
// ============================================================================

// selectNormalizers picks one normalizer per column pair: the planner's
// suggestion, replaced by a concept-registry hit or a type heuristic only
// when that candidate is strictly more confident.
func (e *Engine) selectNormalizers(st *joinState, plan JoinPlan, log *zap.Logger) {
	n := len(st.leftCols)
	st.selections = make([]NormalizerSelection, n)
	st.normalizers = make([]Normalizer, n)
	st.leftConc = make([][]ConceptMatch, n)
	st.rightConc = make([][]ConceptMatch, n)

	for i := 0; i < n; i++ {
		lc, rc := st.leftCols[i], st.rightCols[i]
		best := NormalizerSelection{LeftColumn: lc, RightColumn: rc, Normalizer: NormalizerDefault,
			Confidence: fallbackNormalizerConfidence, Source: "planner"}
		if i < len(plan.Normalization) {
			best.Normalizer = plan.Normalization[i].Normalizer
			best.Confidence = plan.Normalization[i].Confidence
		}

		if e.concepts != nil {
			st.leftConc[i] = e.concepts.LookupByLabel(lc)
			st.rightConc[i] = e.concepts.LookupByLabel(rc)
		}

		if st.opts.AutoSelectNormalizers {
			if name, conf, ok := e.conceptNormalizer(st.leftConc[i], st.rightConc[i]); ok && conf > best.Confidence {
				best.Normalizer, best.Confidence, best.Source = name, conf, "concept"
			}
			ls, rs := st.leftStats.Columns[lc], st.rightStats.Columns[rc]
			if name, conf, ok := autoSelectNormalizer(st.leftCtx[lc], st.rightCtx[rc], ls, rs); ok && conf > best.Confidence {
				best.Normalizer, best.Confidence, best.Source = name, conf, "auto"
			}
		}

		norm, ok := e.registry.Lookup(best.Normalizer)
		if !ok {
			log.Warn("normalizer not registered, using default",
				zap.String("normalizer", best.Normalizer), zap.String("left_column", lc))
			norm = e.registry.MustLookup(NormalizerDefault)
			best.Normalizer = norm.Name()
		}
		st.selections[i] = best
		st.normalizers[i] = norm
		log.Debug("selected normalizer",
			zap.String("left_column", lc), zap.String("right_column", rc),
			zap.String("normalizer", best.Normalizer), zap.Float64("confidence", best.Confidence),
			zap.String("source", best.Source))
	}
}

// conceptNormalizer returns the normalizer named by the most confident
// concept carrying a normalizer facet. Concepts seen on both sides score the
// mean of their two confidences; one-sided concepts are discounted.
func (e *Engine) conceptNormalizer(left, right []ConceptMatch) (string, float64, bool) {
	rightConf := make(map[string]float64, len(right))
	for _, m := range right {
		rightConf[m.Concept.CID] = m.Confidence
	}
	leftConf := make(map[string]float64, len(left))
	for _, m := range left {
		leftConf[m.Concept.CID] = m.Confidence
	}

	bestName, bestConf := "", 0.0
	consider := func(m ConceptMatch, other map[string]float64) {
		name := m.Concept.Facets[FacetNormalizer]
		if name == "" {
			return
		}
		if _, ok := e.registry.Lookup(name); !ok {
			return
		}
		conf := m.Confidence * 0.8
		if oc, ok := other[m.Concept.CID]; ok {
			conf = (m.Confidence + oc) / 2
		}
		if conf > bestConf {
			bestName, bestConf = name, conf
		}
	}
	for _, m := range left {
		consider(m, rightConf)
	}
	for _, m := range right {
		consider(m, leftConf)
	}
	return bestName, clamp01(bestConf), bestName != ""
}

// statisticalNormalizers maps an inferred data type shared by both sides to
// a normalizer and the confidence of that choice.
var statisticalNormalizers = map[DataType]struct {
	name string
	conf float64
}{
	DataTypeEmail:   {NormalizerEmail, 0.8},
	DataTypePhone:   {NormalizerPhone, 0.75},
	DataTypeUUID:    {NormalizerUUID, 0.85},
	DataTypeDate:    {NormalizerDate, 0.75},
	DataTypeInteger: {NormalizerNumeric, 0.7},
	DataTypeFloat:   {NormalizerNumeric, 0.7},
}

func autoSelectNormalizer(l, r *SemanticContext, ls, rs ColumnStats) (string, float64, bool) {
	if rel := relateContexts(l, r); rel == RelationSame || rel == RelationCompatible {
		name, conf := suggestNormalizer(l, r)
		if name != NormalizerDefault {
			return name, conf, true
		}
	}
	if ls.DataType == rs.DataType {
		if s, ok := statisticalNormalizers[ls.DataType]; ok {
			return s.name, s.conf, true
		}
	}
	if ls.DataType.IsNumeric() && rs.DataType.IsNumeric() {
		return NormalizerNumeric, 0.65, true
	}
	return "", 0, false
}

// ============================================================================
// Normalization and probing
// ============================================================================

func (e *Engine) normalizeColumns(ctx context.Context, normalizers []Normalizer, values [][]any, rows int, useCache bool) ([][]string, error) {
	out := make([][]string, len(values))
	for c := range values {
		n := normalizers[c]
		col := values[c]
		canon := make([]string, rows)
		err := parallelFor(ctx, e.parallel, rows, func(m Morsel) {
			for r := m.Start; r < m.End; r++ {
				if useCache {
					canon[r] = e.cache.Normalize(n, col[r])
				} else {
					canon[r] = safeNormalize(n, col[r])
				}
			}
		})
		if err != nil {
			return nil, err
		}
		out[c] = canon
	}
	return out, nil
}

func (e *Engine) buildScorers(st *joinState) {
	key := st.opts.CalibrationKey
	if key == "" {
		names := make([]string, len(st.selections))
		for i, s := range st.selections {
			names[i] = s.Normalizer
		}
		key = strings.Join(names, "+")
	}
	st.scorers = make([]*Scorer, len(st.leftCols))
	for i := range st.leftCols {
		lc, rc := st.leftCols[i], st.rightCols[i]
		st.scorers[i] = e.calc.NewScorer(ConfidenceInput{
			LeftContext:    st.leftCtx[lc],
			RightContext:   st.rightCtx[rc],
			LeftValues:     st.leftValues[i],
			RightValues:    st.rightValues[i],
			LeftStats:      st.leftStats.Columns[lc],
			RightStats:     st.rightStats.Columns[rc],
			LeftConcepts:   st.leftConc[i],
			RightConcepts:  st.rightConc[i],
			CalibrationKey: key,
		})
	}
}

// probeBatch matches right rows [m.Start, m.End) against the left index.
// Matches come out in right-scan order, then ascending left row.
func (e *Engine) probeBatch(st *joinState, index *keyIndex, rightKeys []string, m Morsel) []JoinMatch {
	var out []JoinMatch
	var comparisons int64
	for r := m.Start; r < m.End; r++ {
		key := rightKeys[r]
		if key == "" {
			continue
		}
		comparisons++
		if rows := index.lookup(key); rows != nil {
			for _, l := range rows {
				if jm, ok := e.scoreMatch(st, l, r, false, 1); ok {
					out = append(out, jm)
				}
			}
			continue
		}
		if !st.opts.EnableFuzzyMatching {
			continue
		}

		type candidate struct {
			row int
			sim float64
		}
		var cands []candidate
		for _, b := range index.order {
			comparisons++
			sim := stringSimilarity(key, b.key)
			if sim < st.opts.FuzzyThreshold {
				continue
			}
			for _, l := range b.rows {
				cands = append(cands, candidate{l, sim})
			}
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].row < cands[j].row })
		for _, c := range cands {
			if jm, ok := e.scoreMatch(st, c.row, r, true, c.sim); ok {
				out = append(out, jm)
			}
		}
	}
	st.comparisons.Add(comparisons)
	return out
}

// scoreMatch builds the evidence for one candidate pair, rescores it and
// applies the confidence threshold.
func (e *Engine) scoreMatch(st *joinState, l, r int, fuzzy bool, similarity float64) (JoinMatch, bool) {
	n := len(st.leftCols)
	evidence := make([]MatchEvidence, n)
	scores := make([]ConfidenceScore, n)
	minConf := 1.0
	allExact := true
	names := make([]string, n)

	for c := 0; c < n; c++ {
		norm := st.normalizers[c]
		names[c] = norm.Name()
		if d := norm.DefaultConfidence(); d < minConf {
			minConf = d
		}
		lv, rv := st.leftValues[c][l], st.rightValues[c][r]
		ln, rn := st.leftNorm[c][l], st.rightNorm[c][r]

		ev := MatchEvidence{
			LeftValue:           lv,
			RightValue:          rv,
			LeftNormalized:      ln,
			RightNormalized:     rn,
			NormalizerUsed:      norm.Name(),
			SemanticAlignment:   st.scorers[c].components.SemanticTypeMatch,
			ContextualAlignment: st.selections[c].Confidence,
		}
		switch {
		case ln == rn && formatValue(lv) == formatValue(rv) && norm.Name() == NormalizerDefault:
			ev.MatchType, ev.Similarity = MatchExact, 1
		case ln == rn:
			ev.MatchType, ev.Similarity = MatchNormalized, 1
			allExact = false
		default:
			ev.MatchType, ev.Similarity = MatchFuzzy, stringSimilarity(ln, rn)
			allExact = false
		}
		evidence[c] = ev
		scores[c] = st.scorers[c].Score(evidence[c : c+1])
	}

	jm := JoinMatch{
		LeftIndex:      l,
		RightIndex:     r,
		NormalizerUsed: strings.Join(names, "+"),
		Evidence:       evidence,
	}
	switch {
	case fuzzy:
		jm.MatchType = MatchFuzzy
		jm.RawConfidence = clamp01(similarity * minConf)
	case allExact:
		jm.MatchType = MatchExact
		jm.RawConfidence = minConf
	default:
		jm.MatchType = MatchNormalized
		jm.RawConfidence = minConf
	}

	score := mergeScores(scores)
	jm.Confidence = score.Overall
	jm.Metadata = map[string]any{
		"raw_confidence":   jm.RawConfidence,
		"confidence_score": score,
		"confidence_level": string(score.Level),
	}
	if jm.Confidence < st.opts.ConfidenceThreshold {
		return JoinMatch{}, false
	}
	return jm, true
}
