package semjoin

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ============================================================================
// Evidence and scores
// ============================================================================

// MatchType classifies how a pair of rows matched.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchNormalized MatchType = "normalized"
	MatchFuzzy      MatchType = "fuzzy"
	MatchNone       MatchType = "no_match"
)

// matchTypeWeight scales evidence similarity by how the match was found.
func matchTypeWeight(t MatchType) float64 {
	switch t {
	case MatchExact:
		return 1.0
	case MatchNormalized:
		return 0.8
	case MatchFuzzy:
		return 0.6
	default:
		return 0
	}
}

// MatchEvidence records how one join-column pair compared for one match.
type MatchEvidence struct {
	LeftValue           any
	RightValue          any
	LeftNormalized      string
	RightNormalized     string
	Similarity          float64
	MatchType           MatchType
	SemanticAlignment   float64
	ContextualAlignment float64
	NormalizerUsed      string
}

// ConfidenceLevel is a qualitative confidence band.
type ConfidenceLevel string

const (
	LevelVeryHigh ConfidenceLevel = "very_high"
	LevelHigh     ConfidenceLevel = "high"
	LevelMedium   ConfidenceLevel = "medium"
	LevelLow      ConfidenceLevel = "low"
	LevelVeryLow  ConfidenceLevel = "very_low"
)

// LevelFor returns the band of an overall score.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.9:
		return LevelVeryHigh
	case score >= 0.75:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	case score >= 0.25:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// ConfidenceComponents are the seven scored aspects of a match, each in [0,1].
type ConfidenceComponents struct {
	SemanticTypeMatch          float64 `json:"semantic_type_match"`
	StatisticalSimilarity      float64 `json:"statistical_similarity"`
	ValuePatternMatch          float64 `json:"value_pattern_match"`
	CardinalityAlignment       float64 `json:"cardinality_alignment"`
	DomainCompatibility        float64 `json:"domain_compatibility"`
	DataQuality                float64 `json:"data_quality"`
	NormalizationEffectiveness float64 `json:"normalization_effectiveness"`
}

func (c ConfidenceComponents) values() [7]float64 {
	return [7]float64{
		c.SemanticTypeMatch,
		c.StatisticalSimilarity,
		c.ValuePatternMatch,
		c.CardinalityAlignment,
		c.DomainCompatibility,
		c.DataQuality,
		c.NormalizationEffectiveness,
	}
}

// ConfidenceWeights weights the components in the base score.
type ConfidenceWeights ConfidenceComponents

// DefaultConfidenceWeights returns the default weighting scheme (sums to 1).
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		SemanticTypeMatch:          0.25,
		StatisticalSimilarity:      0.20,
		ValuePatternMatch:          0.15,
		CardinalityAlignment:       0.10,
		DomainCompatibility:        0.10,
		DataQuality:                0.10,
		NormalizationEffectiveness: 0.10,
	}
}

// normalized rescales the weights to sum to 1. All-zero weights fall back
// to the defaults.
func (w ConfidenceWeights) normalized() ConfidenceWeights {
	vals := ConfidenceComponents(w).values()
	sum := 0.0
	for _, v := range vals {
		if v > 0 {
			sum += v
		}
	}
	if sum == 0 {
		return DefaultConfidenceWeights()
	}
	pos := func(v float64) float64 { return math.Max(v, 0) / sum }
	return ConfidenceWeights{
		SemanticTypeMatch:          pos(w.SemanticTypeMatch),
		StatisticalSimilarity:      pos(w.StatisticalSimilarity),
		ValuePatternMatch:          pos(w.ValuePatternMatch),
		CardinalityAlignment:       pos(w.CardinalityAlignment),
		DomainCompatibility:        pos(w.DomainCompatibility),
		DataQuality:                pos(w.DataQuality),
		NormalizationEffectiveness: pos(w.NormalizationEffectiveness),
	}
}

// Factor is a discrete adjustment applied on top of the weighted score.
type Factor struct {
	Name        string  `json:"name"`
	Impact      float64 `json:"impact"`
	Weight      float64 `json:"weight"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// Contribution returns Impact * Weight * Confidence.
func (f Factor) Contribution() float64 {
	return f.Impact * f.Weight * f.Confidence
}

// ConfidenceScore is the calculator's verdict on one match.
type ConfidenceScore struct {
	Overall         float64              `json:"overall"`
	Components      ConfidenceComponents `json:"components"`
	Factors         []Factor             `json:"factors,omitempty"`
	Level           ConfidenceLevel      `json:"level"`
	Reliability     float64              `json:"reliability"`
	Explanation     string               `json:"explanation"`
	Warnings        []string             `json:"warnings,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// ConfidenceInput is everything the calculator looks at for one join-column
// pair.
type ConfidenceInput struct {
	LeftContext, RightContext *SemanticContext
	LeftValues, RightValues   []any
	LeftStats, RightStats     ColumnStats
	Evidence                  []MatchEvidence

	// Optional concept-registry hits for the left and right column labels.
	LeftConcepts, RightConcepts []ConceptMatch

	// CalibrationKey selects the online calibration applied to the result.
	// Empty disables calibration.
	CalibrationKey string
}

// ============================================================================
// Calculator
// ============================================================================

// ConfidenceCalculator scores matches. Scoring is pure; the calculator's
// only mutable state is its calibration table, which is safe for
// concurrent use.
type ConfidenceCalculator struct {
	weights   ConfidenceWeights
	hierarchy ConceptHierarchy
	logger    *zap.Logger

	mu          sync.RWMutex
	calibration map[string]*calibrationCounts
}

// NewConfidenceCalculator creates a calculator. A nil logger discards output.
func NewConfidenceCalculator(weights ConfidenceWeights, logger *zap.Logger) *ConfidenceCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfidenceCalculator{
		weights:     weights.normalized(),
		logger:      logger,
		calibration: make(map[string]*calibrationCounts),
	}
}

// Weights returns the effective (normalized) weights.
func (c *ConfidenceCalculator) Weights() ConfidenceWeights {
	return c.weights
}

// CalculateMatchConfidence scores in.Evidence against the column profiles.
func (c *ConfidenceCalculator) CalculateMatchConfidence(in ConfidenceInput) ConfidenceScore {
	return c.NewScorer(in).Score(in.Evidence)
}

// Scorer holds the evidence-independent part of a score so that many
// matches over the same column pair are scored without re-profiling.
type Scorer struct {
	calc       *ConfidenceCalculator
	key        string
	components ConfidenceComponents // evidence-independent fields only
	factors    []Factor
	warnings   []string
	pattern    float64
	hasPattern bool
	semantic   string
}

// NewScorer profiles a column pair. in.Evidence is ignored.
func (c *ConfidenceCalculator) NewScorer(in ConfidenceInput) *Scorer {
	s := &Scorer{calc: c, key: in.CalibrationKey}
	l, r := in.LeftStats, in.RightStats
	rel := relateContexts(in.LeftContext, in.RightContext)

	s.components.SemanticTypeMatch = semanticTypeMatch(in.LeftContext, in.RightContext, rel)
	s.components.StatisticalSimilarity = statisticalSimilarity(l, r)
	s.components.CardinalityAlignment = cardinalityAlignment(l, r)
	s.components.DomainCompatibility = c.domainCompatibility(in)
	s.components.DataQuality = dataQuality(l, r)
	s.pattern, s.hasPattern = c.conceptPatternRate(in)

	minConf := 0.0
	if in.LeftContext != nil && in.RightContext != nil {
		minConf = math.Min(in.LeftContext.Confidence, in.RightContext.Confidence)
	}
	switch rel {
	case RelationSame:
		s.semantic = in.LeftContext.SemanticType
		s.factors = append(s.factors, Factor{
			Name: "semantic_type_exact_match", Impact: 0.3, Weight: 0.9, Confidence: minConf,
			Description: fmt.Sprintf("both columns are %s", in.LeftContext.SemanticType),
		})
	case RelationIncompatible:
		s.factors = append(s.factors, Factor{
			Name: "semantic_type_mismatch", Impact: -0.2, Weight: 0.7, Confidence: minConf,
			Description: fmt.Sprintf("%s does not relate to %s", in.LeftContext.SemanticType, in.RightContext.SemanticType),
		})
		s.warnings = append(s.warnings, "semantic types of the join columns are incompatible")
	}

	if avgNull := (l.NullRatio + r.NullRatio) / 2; avgNull > 0.2 {
		s.factors = append(s.factors, Factor{
			Name: "high_null_rate", Impact: -0.3, Weight: 0.8, Confidence: 0.9,
			Description: fmt.Sprintf("%.0f%% of join values are null", avgNull*100),
		})
		s.warnings = append(s.warnings, "high null rate in join columns")
	}

	if ratio, ok := uniqueRatio(l, r); ok && ratio < 0.1 {
		s.factors = append(s.factors, Factor{
			Name: "extreme_cardinality_mismatch", Impact: -0.4, Weight: 0.8, Confidence: 0.85,
			Description: fmt.Sprintf("distinct value counts differ by %.0fx", 1/math.Max(ratio, 1e-9)),
		})
		s.warnings = append(s.warnings, "cardinality of the join columns differs by more than an order of magnitude")
	}
	return s
}

// Score combines the column profile with per-match evidence.
func (s *Scorer) Score(evidence []MatchEvidence) ConfidenceScore {
	comp := s.components
	comp.ValuePatternMatch = valuePatternMatch(evidence)
	if s.hasPattern {
		comp.ValuePatternMatch = 0.7*comp.ValuePatternMatch + 0.3*s.pattern
	}
	comp.NormalizationEffectiveness = normalizationEffectiveness(evidence)

	factors := append([]Factor(nil), s.factors...)
	if len(evidence) > 0 {
		keyed := 0
		for _, e := range evidence {
			if e.MatchType == MatchExact || e.MatchType == MatchNormalized {
				keyed++
			}
		}
		rate := float64(keyed) / float64(len(evidence))
		conf := math.Min(1, 0.5+0.05*float64(len(evidence)))
		switch {
		case rate > 0.8:
			factors = append(factors, Factor{
				Name: "high_exact_match_rate", Impact: 0.25, Weight: 0.9, Confidence: conf,
				Description: fmt.Sprintf("%.0f%% of evidence matched on canonical keys", rate*100),
			})
		case rate < 0.2:
			factors = append(factors, Factor{
				Name: "low_exact_match_rate", Impact: -0.15, Weight: 0.7, Confidence: conf,
				Description: fmt.Sprintf("only %.0f%% of evidence matched on canonical keys", rate*100),
			})
		}
	}

	w := s.calc.weights
	base := w.SemanticTypeMatch*comp.SemanticTypeMatch +
		w.StatisticalSimilarity*comp.StatisticalSimilarity +
		w.ValuePatternMatch*comp.ValuePatternMatch +
		w.CardinalityAlignment*comp.CardinalityAlignment +
		w.DomainCompatibility*comp.DomainCompatibility +
		w.DataQuality*comp.DataQuality +
		w.NormalizationEffectiveness*comp.NormalizationEffectiveness
	for _, f := range factors {
		base += f.Contribution()
	}
	overall := clamp01(base)
	if s.key != "" {
		overall = s.calc.Calibrate(s.key, overall)
	}

	score := ConfidenceScore{
		Overall:     overall,
		Components:  comp,
		Factors:     factors,
		Level:       LevelFor(overall),
		Reliability: reliability(comp, factors, len(evidence)),
		Warnings:    append([]string(nil), s.warnings...),
	}
	score.Explanation = s.explain(score)
	score.Recommendations = recommend(score, evidence)
	return score
}

func (s *Scorer) explain(score ConfidenceScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s confidence (%.2f)", score.Level, score.Overall)
	if s.semantic != "" {
		fmt.Fprintf(&b, "; semantic type %s on both sides", s.semantic)
	}
	strongest, name := -1.0, ""
	for i, v := range score.Components.values() {
		if v > strongest {
			strongest, name = v, componentNames[i]
		}
	}
	fmt.Fprintf(&b, "; strongest signal %s (%.2f)", name, strongest)
	if len(score.Factors) > 0 {
		names := make([]string, len(score.Factors))
		for i, f := range score.Factors {
			names[i] = f.Name
		}
		fmt.Fprintf(&b, "; factors: %s", strings.Join(names, ", "))
	}
	return b.String()
}

var componentNames = [7]string{
	"semantic_type_match",
	"statistical_similarity",
	"value_pattern_match",
	"cardinality_alignment",
	"domain_compatibility",
	"data_quality",
	"normalization_effectiveness",
}

func recommend(score ConfidenceScore, evidence []MatchEvidence) []string {
	var out []string
	if score.Level == LevelLow || score.Level == LevelVeryLow {
		out = append(out, "verify that the join columns describe the same entity")
	}
	if score.Components.SemanticTypeMatch < 0.5 {
		out = append(out, "provide semantic contexts for the join columns")
	}
	fuzzy := 0
	for _, e := range evidence {
		if e.MatchType == MatchFuzzy {
			fuzzy++
		}
	}
	if fuzzy > 0 && fuzzy*2 >= len(evidence) {
		out = append(out, "review fuzzy matches or raise the fuzzy threshold")
	}
	if score.Components.DataQuality < 0.5 {
		out = append(out, "clean null or low-cardinality join values before joining")
	}
	return out
}

// ============================================================================
// Components
// ============================================================================

func semanticTypeMatch(l, r *SemanticContext, rel TypeRelation) float64 {
	if l == nil || r == nil {
		return 0.3
	}
	minConf := math.Min(l.Confidence, r.Confidence)
	switch rel {
	case RelationSame:
		return math.Min(minConf*1.1, 0.95)
	case RelationCompatible:
		return clamp01(minConf * typeCompatibility(l.SemanticType, r.SemanticType))
	}
	if j := jaccard(l.DomainTags, r.DomainTags); j >= 0.3 {
		return j
	}
	return 0.1 * minConf
}

func statisticalSimilarity(l, r ColumnStats) float64 {
	var sum, weight float64
	add := func(w, v float64) {
		sum += w * v
		weight += w
	}

	if l.DataType != "" && r.DataType != "" && l.DataType != DataTypeEmpty && r.DataType != DataTypeEmpty {
		switch {
		case l.DataType == r.DataType:
			add(0.3, 1)
		case l.DataType.IsNumeric() && r.DataType.IsNumeric():
			add(0.3, 0.5)
		default:
			add(0.3, 0)
		}
	}
	if ratio, ok := uniqueRatio(l, r); ok {
		add(0.25, ratio)
	}
	if l.Count > 0 && r.Count > 0 {
		add(0.15, 1-math.Abs(l.NullRatio-r.NullRatio))
	}
	if maxLen := math.Max(l.AvgLength, r.AvgLength); maxLen > 0 {
		add(0.2, math.Min(l.AvgLength, r.AvgLength)/maxLen)
	}
	if l.Numeric != nil && r.Numeric != nil {
		add(0.1, rangeOverlap(l.Numeric, r.Numeric))
	}

	if weight == 0 {
		return 0
	}
	return clamp01(sum / weight)
}

func rangeOverlap(a, b *NumericStats) float64 {
	lo, hi := math.Max(a.Min, b.Min), math.Min(a.Max, b.Max)
	span := math.Max(a.Max, b.Max) - math.Min(a.Min, b.Min)
	if span == 0 {
		if lo == hi {
			return 1
		}
		return 0
	}
	if hi < lo {
		return 0
	}
	return (hi - lo) / span
}

// uniqueRatio is min/max of the distinct counts; ok is false when both are 0.
func uniqueRatio(l, r ColumnStats) (float64, bool) {
	lo, hi := l.UniqueCount, r.UniqueCount
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 0, false
	}
	return float64(lo) / float64(hi), true
}

func cardinalityAlignment(l, r ColumnStats) float64 {
	ratio, ok := uniqueRatio(l, r)
	switch {
	case !ok:
		return 0.5
	case ratio < 0.1:
		return ratio * 0.5
	case ratio > 0.8:
		return math.Min(ratio*1.1, 0.95)
	default:
		return ratio
	}
}

func (c *ConfidenceCalculator) domainCompatibility(in ConfidenceInput) float64 {
	lids, rids := conceptIDs(in.LeftConcepts), conceptIDs(in.RightConcepts)
	if len(lids) > 0 && len(rids) > 0 {
		for _, id := range lids {
			if containsString(rids, id) {
				return 0.8
			}
		}
		if c.hierarchy != nil {
			lset, rset := c.withAncestors(lids), c.withAncestors(rids)
			if j := jaccard(lset, rset); j > 0 {
				return 0.4 + 0.35*j
			}
		}
	}
	if in.LeftContext != nil && in.RightContext != nil &&
		len(in.LeftContext.DomainTags) > 0 && len(in.RightContext.DomainTags) > 0 {
		return jaccard(in.LeftContext.DomainTags, in.RightContext.DomainTags)
	}
	return 0.5
}

func (c *ConfidenceCalculator) withAncestors(ids []string) []string {
	out := append([]string(nil), ids...)
	for _, id := range ids {
		for _, a := range c.hierarchy.Ancestors(id) {
			if !containsString(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

func dataQuality(l, r ColumnStats) float64 {
	q := 1 - (l.NullRatio+r.NullRatio)/2
	if (l.Count > 0 && l.UniqueRatio < 0.05) || (r.Count > 0 && r.UniqueRatio < 0.05) {
		q *= 0.5
	}
	if l.UniqueRatio > 0.99 && r.UniqueRatio > 0.99 {
		q *= 0.7
	}
	return clamp01(q)
}

func valuePatternMatch(evidence []MatchEvidence) float64 {
	if len(evidence) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range evidence {
		sum += clamp01(e.Similarity) * matchTypeWeight(e.MatchType)
	}
	return clamp01(sum / float64(len(evidence)))
}

// conceptPatternRate averages the pattern-facet hit rates of the best
// concept on each side. Malformed patterns count as absent.
func (c *ConfidenceCalculator) conceptPatternRate(in ConfidenceInput) (float64, bool) {
	onMalformed := func(cid, pattern string, err error) {
		c.logger.Debug("ignoring malformed concept pattern",
			zap.String("cid", cid), zap.String("pattern", pattern), zap.Error(err))
	}
	var sum float64
	var n int
	for _, side := range []struct {
		matches []ConceptMatch
		values  []any
	}{{in.LeftConcepts, in.LeftValues}, {in.RightConcepts, in.RightValues}} {
		for _, m := range side.matches {
			if rate, ok := patternMatchRate(m.Concept, side.values, onMalformed); ok {
				sum += rate
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// normalizationEffectiveness compares canonical against raw similarity for
// evidence whose values the normalizer rewrote.
func normalizationEffectiveness(evidence []MatchEvidence) float64 {
	var sum float64
	var changed, identical int
	for _, e := range evidence {
		lraw, rraw := formatValue(e.LeftValue), formatValue(e.RightValue)
		if lraw == e.LeftNormalized && rraw == e.RightNormalized {
			if lraw == rraw {
				identical++
			}
			continue
		}
		changed++
		raw := stringSimilarity(lraw, rraw)
		norm := stringSimilarity(e.LeftNormalized, e.RightNormalized)
		sum += clamp01(0.5 + (norm - raw))
	}
	if changed > 0 {
		return sum / float64(changed)
	}
	if identical > 0 {
		return 0.8
	}
	return 0.5
}

func reliability(comp ConfidenceComponents, factors []Factor, evidenceCount int) float64 {
	r := 0.5
	switch {
	case evidenceCount >= 10:
		r += 0.2
	case evidenceCount >= 5:
		r += 0.1
	}

	vals := comp.values()
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(vals)))
	r += 0.3 * (1 - math.Min(1, 2*std))

	for _, f := range factors {
		if f.Confidence > 0.8 {
			r += 0.05
		}
	}
	return clamp01(r)
}

// mergeScores combines per-column-pair scores of one composite match.
func mergeScores(scores []ConfidenceScore) ConfidenceScore {
	switch len(scores) {
	case 0:
		return ConfidenceScore{Level: LevelVeryLow}
	case 1:
		return scores[0]
	}
	var out ConfidenceScore
	n := float64(len(scores))
	explanations := make([]string, 0, len(scores))
	for _, s := range scores {
		out.Overall += s.Overall / n
		out.Reliability += s.Reliability / n
		out.Components.SemanticTypeMatch += s.Components.SemanticTypeMatch / n
		out.Components.StatisticalSimilarity += s.Components.StatisticalSimilarity / n
		out.Components.ValuePatternMatch += s.Components.ValuePatternMatch / n
		out.Components.CardinalityAlignment += s.Components.CardinalityAlignment / n
		out.Components.DomainCompatibility += s.Components.DomainCompatibility / n
		out.Components.DataQuality += s.Components.DataQuality / n
		out.Components.NormalizationEffectiveness += s.Components.NormalizationEffectiveness / n
		out.Factors = append(out.Factors, s.Factors...)
		out.Warnings = appendUnique(out.Warnings, s.Warnings...)
		out.Recommendations = appendUnique(out.Recommendations, s.Recommendations...)
		explanations = append(explanations, s.Explanation)
	}
	out.Overall = clamp01(out.Overall)
	out.Reliability = clamp01(out.Reliability)
	out.Level = LevelFor(out.Overall)
	out.Explanation = strings.Join(explanations, " | ")
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		if !containsString(list, it) {
			list = append(list, it)
		}
	}
	return list
}
