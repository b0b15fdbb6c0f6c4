package semjoin

import (
	"fmt"
	"sort"
	"time"
)

// ============================================================================
// Result types
// ============================================================================

// Output column names added to every join result.
const (
	ConfidenceColumn = "_confidence"
	MatchTypeColumn  = "_match_type"
)

// JoinMatch pairs a left row with a right row. Unmatched rows of left,
// right and outer joins appear with the other index set to -1, MatchType
// MatchNone and confidence 0.
type JoinMatch struct {
	LeftIndex  int
	RightIndex int

	// Confidence is the calculator's overall score.
	Confidence float64
	// RawConfidence is the score before rescoring: the lowest declared
	// confidence of the normalizers used, times the similarity for fuzzy
	// matches.
	RawConfidence float64

	MatchType      MatchType
	NormalizerUsed string
	Evidence       []MatchEvidence
	Metadata       map[string]any
}

// Score returns the full confidence score attached to a match.
func (m JoinMatch) Score() (ConfidenceScore, bool) {
	s, ok := m.Metadata["confidence_score"].(ConfidenceScore)
	return s, ok
}

// Performance holds timing and counters of one join call.
type Performance struct {
	RunID             string        `json:"run_id"`
	TotalTime         time.Duration `json:"total_time"`
	NormalizationTime time.Duration `json:"normalization_time"`
	JoinTime          time.Duration `json:"join_time"`
	CacheHits         int64         `json:"cache_hits"`
	CacheMisses       int64         `json:"cache_misses"`
	TotalOperations   int64         `json:"total_operations"`
	PlannedStrategy   JoinStrategy  `json:"planned_strategy"`
	BatchesProcessed  int           `json:"batches_processed"`
}

// ConfidenceDistribution counts matches per confidence band.
type ConfidenceDistribution struct {
	VeryHigh int `json:"very_high"` // >= 0.9
	High     int `json:"high"`      // [0.7, 0.9)
	Medium   int `json:"medium"`    // [0.5, 0.7)
	Low      int `json:"low"`       // < 0.5
}

// ConfidenceStats summarizes match confidences.
type ConfidenceStats struct {
	Average      float64                `json:"average"`
	Median       float64                `json:"median"`
	Distribution ConfidenceDistribution `json:"distribution"`
}

// Statistics describes the shape of a join result.
type Statistics struct {
	InputRowsLeft  int             `json:"input_rows_left"`
	InputRowsRight int             `json:"input_rows_right"`
	OutputRows     int             `json:"output_rows"`
	MatchedRows    int             `json:"matched_rows"`
	UnmatchedLeft  int             `json:"unmatched_left"`
	UnmatchedRight int             `json:"unmatched_right"`
	Confidence     ConfidenceStats `json:"confidence"`
}

// JoinResult is the output of SemanticJoin. Data row i corresponds to
// Matches[i].
type JoinResult struct {
	Data        *DataFrame
	Matches     []JoinMatch
	Plan        JoinPlan
	Normalizers []NormalizerSelection
	Performance Performance
	Statistics  Statistics
}

// Summary returns a one-line description of the result.
func (r *JoinResult) Summary() string {
	s := r.Statistics
	return fmt.Sprintf("%d matched rows from %d x %d input rows -> %d output rows; avg confidence %.3f, median %.3f; planned %s in %s",
		s.MatchedRows, s.InputRowsLeft, s.InputRowsRight, s.OutputRows,
		s.Confidence.Average, s.Confidence.Median,
		r.Performance.PlannedStrategy, r.Performance.TotalTime.Round(time.Microsecond))
}

// ============================================================================
// Assembly
// ============================================================================

// assembleOutput appends unmatched rows per join type and gathers the
// output columns.
func assembleOutput(left, right DatasetView, st *joinState, matches []JoinMatch, leftRows, rightRows int) (*DataFrame, []JoinMatch, error) {
	all := matches
	how := st.opts.How

	if how == LeftJoin || how == OuterJoin {
		seen := make([]bool, leftRows)
		for _, m := range matches {
			seen[m.LeftIndex] = true
		}
		for l := 0; l < leftRows; l++ {
			if !seen[l] {
				all = append(all, unmatched(l, -1, "left"))
			}
		}
	}
	if how == RightJoin || how == OuterJoin {
		seen := make([]bool, rightRows)
		for _, m := range matches {
			seen[m.RightIndex] = true
		}
		for r := 0; r < rightRows; r++ {
			if !seen[r] {
				all = append(all, unmatched(-1, r, "right"))
			}
		}
	}

	lf, err := frameOf(left)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to materialize left dataset: %w", err)
	}
	rf, err := frameOf(right)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to materialize right dataset: %w", err)
	}

	leftIdx := make([]int, len(all))
	rightIdx := make([]int, len(all))
	conf := make([]float64, len(all))
	types := make([]string, len(all))
	for i, m := range all {
		leftIdx[i], rightIdx[i] = m.LeftIndex, m.RightIndex
		conf[i] = m.Confidence
		types[i] = string(m.MatchType)
	}

	mapping := resolveOutputColumns(lf, rf, st.rightCols, st.opts)
	cols := make([]*Series, 0, len(mapping)+2)
	for _, m := range mapping {
		if m.fromLeft {
			cols = append(cols, lf.Column(m.srcCol).Take(m.name, leftIdx))
		} else {
			cols = append(cols, rf.Column(m.srcCol).Take(m.name, rightIdx))
		}
	}
	cols = append(cols,
		NewSeriesFloat64(uniqueName(ConfidenceColumn, mapping), conf),
		NewSeriesString(uniqueName(MatchTypeColumn, mapping), types))

	data, err := NewDataFrame(cols...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build join output: %w", err)
	}
	return data, all, nil
}

func unmatched(l, r int, side string) JoinMatch {
	return JoinMatch{
		LeftIndex:  l,
		RightIndex: r,
		MatchType:  MatchNone,
		Metadata:   map[string]any{"no_match": true, "side": side},
	}
}

// frameOf returns v as a DataFrame, materializing foreign views.
func frameOf(v DatasetView) (*DataFrame, error) {
	if df, ok := v.(*DataFrame); ok {
		return df, nil
	}
	names := v.Columns()
	series := make([]*Series, len(names))
	for i, name := range names {
		values, err := v.GetColumn(name)
		if err != nil {
			return nil, err
		}
		series[i] = NewSeriesFromValues(name, values)
	}
	return NewDataFrame(series...)
}

// colMapping tracks how to build output columns
type colMapping struct {
	name     string
	fromLeft bool
	srcCol   int
}

func resolveOutputColumns(left, right *DataFrame, rightKeys []string, opts JoinOptions) []colMapping {
	used := make(map[string]bool)
	var mapping []colMapping

	for i, name := range left.Columns() {
		out := opts.LeftPrefix + name
		used[out] = true
		mapping = append(mapping, colMapping{name: out, fromLeft: true, srcCol: i})
	}

	for i, name := range right.Columns() {
		if !opts.PreserveOriginalColumns && containsString(rightKeys, name) {
			continue
		}
		out := opts.RightPrefix + name
		for used[out] {
			out += opts.Suffix
		}
		used[out] = true
		mapping = append(mapping, colMapping{name: out, fromLeft: false, srcCol: i})
	}
	return mapping
}

func uniqueName(name string, mapping []colMapping) string {
	for {
		clash := false
		for _, m := range mapping {
			if m.name == name {
				clash = true
				break
			}
		}
		if !clash {
			return name
		}
		name = "_" + name
	}
}

// ============================================================================
// Statistics
// ============================================================================

func computeStatistics(all []JoinMatch, leftRows, rightRows int) Statistics {
	s := Statistics{InputRowsLeft: leftRows, InputRowsRight: rightRows, OutputRows: len(all)}
	var confs []float64
	for _, m := range all {
		switch {
		case m.MatchType != MatchNone:
			s.MatchedRows++
			confs = append(confs, m.Confidence)
		case m.RightIndex < 0:
			s.UnmatchedLeft++
		default:
			s.UnmatchedRight++
		}
	}
	s.Confidence = confidenceStats(confs)
	return s
}

func confidenceStats(confs []float64) ConfidenceStats {
	var cs ConfidenceStats
	if len(confs) == 0 {
		return cs
	}
	sum := 0.0
	for _, c := range confs {
		sum += c
		switch {
		case c >= 0.9:
			cs.Distribution.VeryHigh++
		case c >= 0.7:
			cs.Distribution.High++
		case c >= 0.5:
			cs.Distribution.Medium++
		default:
			cs.Distribution.Low++
		}
	}
	cs.Average = sum / float64(len(confs))

	sorted := append([]float64(nil), confs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		cs.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		cs.Median = sorted[mid]
	}
	return cs
}
