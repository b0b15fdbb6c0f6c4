package semjoin

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SemanticContext describes what a column means, as reported by an
// external semantics layer. A nil *SemanticContext means "unknown".
type SemanticContext struct {
	SemanticType string   `yaml:"semantic_type" json:"semantic_type"`
	Confidence   float64  `yaml:"confidence" json:"confidence"`
	DomainTags   []string `yaml:"domain_tags" json:"domain_tags,omitempty"`
}

// ContextProvider looks up the semantic context of a column of a view.
type ContextProvider interface {
	SemanticContext(viewID, column string) *SemanticContext
}

// ============================================================================
// Type relationships
// ============================================================================

// TypeRelation classifies how two semantic types relate.
type TypeRelation int

const (
	RelationUnknown TypeRelation = iota
	RelationSame
	RelationCompatible
	RelationIncompatible
)

type typePair struct{ a, b string }

// compatibleTypes scales the confidence of pairs that are different but
// joinable. Keys go through orderedPair, so lookups are symmetric.
var compatibleTypes = buildCompatibleTypes([]struct {
	a, b  string
	scale float64
}{
	{"customer_id", "identifier", 0.9},
	{"identifier", "uuid", 0.8},
	{"high_cardinality_attribute", "identifier", 0.7},
	{"first_name", "person_name", 0.6},
	{"last_name", "person_name", 0.6},
	{"full_name", "person_name", 0.95},
	{"address", "street_address", 0.85},
	{"date", "timestamp", 0.9},
	{"amount", "currency_amount", 0.85},
	{"amount", "quantity", 0.5},
	{"category", "status", 0.6},
	{"country", "country_code", 0.8},
	{"email", "username", 0.5},
	{"phone", "mobile", 0.9},
	{"postal_code", "zip", 0.95},
})

func buildCompatibleTypes(pairs []struct {
	a, b  string
	scale float64
}) map[typePair]float64 {
	m := make(map[typePair]float64, len(pairs))
	for _, p := range pairs {
		m[orderedPair(p.a, p.b)] = p.scale
	}
	return m
}

func orderedPair(a, b string) typePair {
	if a > b {
		a, b = b, a
	}
	return typePair{a, b}
}

// typeCompatibility returns the compatibility scale for two distinct types,
// or 0 when they are not known to be compatible.
func typeCompatibility(a, b string) float64 {
	return compatibleTypes[orderedPair(strings.ToLower(a), strings.ToLower(b))]
}

// relateContexts classifies two (possibly nil) contexts.
func relateContexts(l, r *SemanticContext) TypeRelation {
	if l == nil || r == nil || l.SemanticType == "" || r.SemanticType == "" {
		return RelationUnknown
	}
	if strings.EqualFold(l.SemanticType, r.SemanticType) {
		return RelationSame
	}
	if typeCompatibility(l.SemanticType, r.SemanticType) > 0 {
		return RelationCompatible
	}
	return RelationIncompatible
}

// ============================================================================
// Static provider
// ============================================================================

// StaticContextProvider serves contexts from an in-memory table keyed by
// view ID then column name.
type StaticContextProvider struct {
	mu       sync.RWMutex
	contexts map[string]map[string]*SemanticContext
}

// NewStaticContextProvider creates an empty provider.
func NewStaticContextProvider() *StaticContextProvider {
	return &StaticContextProvider{contexts: make(map[string]map[string]*SemanticContext)}
}

// Set records the context of a column.
func (p *StaticContextProvider) Set(viewID, column string, ctx SemanticContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cols, ok := p.contexts[viewID]
	if !ok {
		cols = make(map[string]*SemanticContext)
		p.contexts[viewID] = cols
	}
	ctx.Confidence = clamp01(ctx.Confidence)
	cols[column] = &ctx
}

// SemanticContext implements ContextProvider.
func (p *StaticContextProvider) SemanticContext(viewID, column string) *SemanticContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.contexts[viewID][column]; ok {
		cp := *c
		return &cp
	}
	return nil
}

// LoadContextsYAML reads a provider from YAML of the form
//
//	left:
//	  email: {semantic_type: email, confidence: 0.9, domain_tags: [contact]}
func LoadContextsYAML(r io.Reader) (*StaticContextProvider, error) {
	var raw map[string]map[string]SemanticContext
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode semantic contexts: %w", err)
	}
	p := NewStaticContextProvider()
	for view, cols := range raw {
		for col, ctx := range cols {
			p.Set(view, col, ctx)
		}
	}
	return p, nil
}

// LoadContextsFile reads a YAML context file.
func LoadContextsFile(path string) (*StaticContextProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return LoadContextsYAML(f)
}

// ============================================================================
// Inference
// ============================================================================

// nameHints maps column-name tokens to semantic types.
var nameHints = []struct {
	tokens     []string
	semantic   string
	confidence float64
	tags       []string
}{
	{[]string{"email", "mail", "e_mail"}, "email", 0.85, []string{"contact"}},
	{[]string{"phone", "tel", "telephone", "mobile", "cell"}, "phone", 0.8, []string{"contact"}},
	{[]string{"uuid", "guid"}, "uuid", 0.85, []string{"identity"}},
	{[]string{"first_name", "fname", "given_name"}, "first_name", 0.75, []string{"person"}},
	{[]string{"last_name", "lname", "surname", "family_name"}, "last_name", 0.75, []string{"person"}},
	{[]string{"name", "full_name", "customer_name", "person"}, "person_name", 0.7, []string{"person"}},
	{[]string{"address", "addr", "street"}, "address", 0.75, []string{"location"}},
	{[]string{"zip", "postal", "postcode", "postal_code"}, "postal_code", 0.8, []string{"location"}},
	{[]string{"country"}, "country", 0.75, []string{"location"}},
	{[]string{"date", "dob", "day"}, "date", 0.7, []string{"time"}},
	{[]string{"timestamp", "created_at", "updated_at", "time"}, "timestamp", 0.7, []string{"time"}},
	{[]string{"amount", "price", "total", "cost", "revenue"}, "amount", 0.7, []string{"finance"}},
	{[]string{"qty", "quantity", "count"}, "quantity", 0.65, []string{"inventory"}},
	{[]string{"status", "state"}, "status", 0.6, []string{"workflow"}},
	{[]string{"category", "type", "kind", "segment"}, "category", 0.6, []string{"classification"}},
	{[]string{"id", "key", "code", "number", "no"}, "identifier", 0.6, []string{"identity"}},
}

func nameTokens(column string) []string {
	lower := strings.ToLower(column)
	parts := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	// also allow whole-name matches such as "first_name"
	return append(parts, lower)
}

// InferSemanticContext guesses the context of a column from its name and
// statistics. It returns nil when nothing suggests a type.
func InferSemanticContext(column string, stats ColumnStats) *SemanticContext {
	tokens := nameTokens(column)
	for _, hint := range nameHints {
		for _, want := range hint.tokens {
			for _, tok := range tokens {
				if tok == want {
					return &SemanticContext{SemanticType: hint.semantic, Confidence: hint.confidence, DomainTags: hint.tags}
				}
			}
		}
	}
	// suffix conventions: customer_id, custid, userId
	lower := strings.ToLower(column)
	if strings.HasSuffix(lower, "id") && len(lower) > 2 {
		return &SemanticContext{SemanticType: "identifier", Confidence: 0.55, DomainTags: []string{"identity"}}
	}

	switch stats.DataType {
	case DataTypeEmail:
		return &SemanticContext{SemanticType: "email", Confidence: 0.7, DomainTags: []string{"contact"}}
	case DataTypePhone:
		return &SemanticContext{SemanticType: "phone", Confidence: 0.6, DomainTags: []string{"contact"}}
	case DataTypeUUID:
		return &SemanticContext{SemanticType: "uuid", Confidence: 0.75, DomainTags: []string{"identity"}}
	case DataTypeDate:
		return &SemanticContext{SemanticType: "date", Confidence: 0.6, DomainTags: []string{"time"}}
	}
	if stats.UniqueRatio > 0.95 && stats.Count >= 10 {
		return &SemanticContext{SemanticType: "high_cardinality_attribute", Confidence: 0.4}
	}
	return nil
}

// InferringContextProvider falls back to name/statistics inference when
// the wrapped provider (which may be nil) has no context for a column.
type InferringContextProvider struct {
	Base  ContextProvider
	Stats func(viewID, column string) (ColumnStats, bool)
}

// SemanticContext implements ContextProvider.
func (p *InferringContextProvider) SemanticContext(viewID, column string) *SemanticContext {
	if p.Base != nil {
		if c := p.Base.SemanticContext(viewID, column); c != nil {
			return c
		}
	}
	var stats ColumnStats
	if p.Stats != nil {
		stats, _ = p.Stats(viewID, column)
	}
	return InferSemanticContext(column, stats)
}
