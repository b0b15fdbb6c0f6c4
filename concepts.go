package semjoin

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Concept is an entry of a concept registry.
type Concept struct {
	CID       string            `yaml:"cid" json:"cid"`
	Labels    []string          `yaml:"labels" json:"labels"`
	Facets    map[string]string `yaml:"facets" json:"facets,omitempty"`
	ParentCID string            `yaml:"parent_cid" json:"parent_cid,omitempty"`
}

// Well-known facet keys.
const (
	FacetNormalizer = "normalizer"
	FacetPattern    = "pattern"
)

// ConceptMatch is a registry hit for a label.
type ConceptMatch struct {
	Concept    Concept
	Confidence float64
}

// ConceptRegistry resolves column labels to concepts.
type ConceptRegistry interface {
	LookupByLabel(label string) []ConceptMatch
}

// ConceptHierarchy is implemented by registries that can walk parents.
type ConceptHierarchy interface {
	Ancestors(cid string) []string
}

// MemoryConceptRegistry is an in-memory, label-indexed concept registry.
type MemoryConceptRegistry struct {
	mu       sync.RWMutex
	concepts map[string]Concept
	byLabel  map[string][]string // canonical label -> CIDs
}

// NewMemoryConceptRegistry creates a registry holding concepts.
func NewMemoryConceptRegistry(concepts ...Concept) *MemoryConceptRegistry {
	r := &MemoryConceptRegistry{
		concepts: make(map[string]Concept),
		byLabel:  make(map[string][]string),
	}
	for _, c := range concepts {
		r.Add(c)
	}
	return r
}

func canonicalLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(label)))
}

// Add registers or replaces a concept.
func (r *MemoryConceptRegistry) Add(c Concept) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.concepts[c.CID] = c
	for _, l := range c.Labels {
		key := canonicalLabel(l)
		if !containsString(r.byLabel[key], c.CID) {
			r.byLabel[key] = append(r.byLabel[key], c.CID)
		}
	}
}

// Get returns the concept with the given CID.
func (r *MemoryConceptRegistry) Get(cid string) (Concept, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.concepts[cid]
	return c, ok
}

// LookupByLabel returns concepts whose labels match, best first.
// Exact label hits score 0.95; close labels score by edit similarity.
func (r *MemoryConceptRegistry) LookupByLabel(label string) []ConceptMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := canonicalLabel(label)
	if key == "" {
		return nil
	}
	best := make(map[string]float64)
	for _, cid := range r.byLabel[key] {
		best[cid] = 0.95
	}
	for l, cids := range r.byLabel {
		if l == key {
			continue
		}
		sim := stringSimilarity(key, l)
		if sim < 0.8 {
			continue
		}
		for _, cid := range cids {
			if conf := sim * 0.8; conf > best[cid] {
				best[cid] = conf
			}
		}
	}

	matches := make([]ConceptMatch, 0, len(best))
	for cid, conf := range best {
		matches = append(matches, ConceptMatch{Concept: r.concepts[cid], Confidence: conf})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Concept.CID < matches[j].Concept.CID
	})
	return matches
}

// Ancestors returns the parent chain of cid, nearest first.
func (r *MemoryConceptRegistry) Ancestors(cid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	seen := map[string]bool{cid: true}
	for {
		c, ok := r.concepts[cid]
		if !ok || c.ParentCID == "" || seen[c.ParentCID] {
			return out
		}
		out = append(out, c.ParentCID)
		seen[c.ParentCID] = true
		cid = c.ParentCID
	}
}

// LoadConceptsYAML reads a registry from YAML with a top-level "concepts" list.
func LoadConceptsYAML(r io.Reader) (*MemoryConceptRegistry, error) {
	var doc struct {
		Concepts []Concept `yaml:"concepts"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode concepts: %w", err)
	}
	return NewMemoryConceptRegistry(doc.Concepts...), nil
}

// LoadConceptsFile reads a YAML concept file.
func LoadConceptsFile(path string) (*MemoryConceptRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return LoadConceptsYAML(f)
}

// ============================================================================
// Pattern facets
// ============================================================================

// patternMatchRate returns the share of non-missing values matching the
// concept's pattern facet. ok is false when there is no usable pattern;
// a pattern that fails to compile is reported through onMalformed and
// treated as absent.
func patternMatchRate(c Concept, values []any, onMalformed func(cid, pattern string, err error)) (rate float64, ok bool) {
	expr, has := c.Facets[FacetPattern]
	if !has || expr == "" {
		return 0, false
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		if onMalformed != nil {
			onMalformed(c.CID, expr, err)
		}
		return 0, false
	}
	total, hit := 0, 0
	for _, v := range values {
		if isMissing(v) {
			continue
		}
		total++
		if re.MatchString(formatValue(v)) {
			hit++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(hit) / float64(total), true
}

func conceptIDs(matches []ConceptMatch) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Concept.CID)
	}
	return ids
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
