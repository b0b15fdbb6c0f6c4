package semjoin

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConceptLookupByLabel(t *testing.T) {
	r := NewMemoryConceptRegistry(
		Concept{CID: "c.email", Labels: []string{"Email Address", "email"}},
		Concept{CID: "c.mail", Labels: []string{"mail"}},
	)

	got := r.LookupByLabel("email_address")
	if diff := cmp.Diff([]string{"c.email"}, conceptIDs(got)); diff != "" {
		t.Fatalf("exact lookup mismatch (-want +got):\n%s", diff)
	}
	if got[0].Confidence != 0.95 {
		t.Errorf("expected exact label confidence 0.95, got %v", got[0].Confidence)
	}

	// close labels score by edit similarity
	got = r.LookupByLabel("emails")
	if len(got) != 1 || got[0].Concept.CID != "c.email" {
		t.Fatalf("expected a close match on c.email, got %v", conceptIDs(got))
	}
	if want := (1 - 1.0/6) * 0.8; math.Abs(got[0].Confidence-want) > 1e-9 {
		t.Errorf("expected confidence %v, got %v", want, got[0].Confidence)
	}

	if got := r.LookupByLabel("  "); got != nil {
		t.Errorf("expected no matches for a blank label, got %v", conceptIDs(got))
	}
	if got := r.LookupByLabel("revenue"); len(got) != 0 {
		t.Errorf("expected no matches, got %v", conceptIDs(got))
	}
}

func TestConceptRegistryAddReplaces(t *testing.T) {
	r := NewMemoryConceptRegistry(Concept{CID: "c.sku", Labels: []string{"sku"}})
	r.Add(Concept{CID: "c.sku", Labels: []string{"sku"}, Facets: map[string]string{FacetNormalizer: "sku"}})

	if got := r.LookupByLabel("SKU"); len(got) != 1 {
		t.Fatalf("expected one match after re-adding, got %v", conceptIDs(got))
	}
	c, ok := r.Get("c.sku")
	if !ok || c.Facets[FacetNormalizer] != "sku" {
		t.Errorf("expected the replaced concept, got %+v", c)
	}
}

func TestConceptAncestors(t *testing.T) {
	r := NewMemoryConceptRegistry(
		Concept{CID: "c.work_email", ParentCID: "c.email"},
		Concept{CID: "c.email", ParentCID: "c.contact"},
		Concept{CID: "c.contact"},
		Concept{CID: "c.a", ParentCID: "c.b"},
		Concept{CID: "c.b", ParentCID: "c.a"},
	)
	if diff := cmp.Diff([]string{"c.email", "c.contact"}, r.Ancestors("c.work_email")); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c.b"}, r.Ancestors("c.a")); diff != "" {
		t.Errorf("cyclic ancestors mismatch (-want +got):\n%s", diff)
	}
	if got := r.Ancestors("c.unknown"); got != nil {
		t.Errorf("expected no ancestors, got %v", got)
	}
}

func TestLoadConceptsYAML(t *testing.T) {
	doc := `
concepts:
  - cid: c.sku
    labels: [sku, product code]
    facets: {normalizer: sku, pattern: '^[A-Z]{3}-\d+$'}
    parent_cid: c.product
  - cid: c.product
    labels: [product]
`
	r, err := LoadConceptsYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadConceptsYAML failed: %v", err)
	}
	want := Concept{
		CID:       "c.sku",
		Labels:    []string{"sku", "product code"},
		Facets:    map[string]string{FacetNormalizer: "sku", FacetPattern: `^[A-Z]{3}-\d+$`},
		ParentCID: "c.product",
	}
	got, ok := r.Get("c.sku")
	if !ok {
		t.Fatal("expected c.sku to be loaded")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concept mismatch (-want +got):\n%s", diff)
	}
	if matches := r.LookupByLabel("product_code"); len(matches) == 0 || matches[0].Concept.CID != "c.sku" {
		t.Errorf("expected c.sku for product_code, got %v", conceptIDs(matches))
	}

	if _, err := LoadConceptsYAML(strings.NewReader("concepts: {")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestPatternMatchRate(t *testing.T) {
	c := Concept{CID: "c.sku", Facets: map[string]string{FacetPattern: `^[A-Z]{3}-\d+$`}}

	rate, ok := patternMatchRate(c, []any{"ABC-1", "abc-2", nil, "XYZ-33"}, nil)
	if !ok || rate != 2.0/3 {
		t.Errorf("expected rate 2/3, got %v (ok=%v)", rate, ok)
	}
	if _, ok := patternMatchRate(c, []any{nil, ""}, nil); ok {
		t.Error("expected no rate when every value is missing")
	}
	if _, ok := patternMatchRate(Concept{CID: "c.none"}, []any{"x"}, nil); ok {
		t.Error("expected no rate without a pattern facet")
	}

	var reported error
	bad := Concept{CID: "c.bad", Facets: map[string]string{FacetPattern: "("}}
	_, ok = patternMatchRate(bad, []any{"x"}, func(cid, pattern string, err error) {
		if cid != "c.bad" || pattern != "(" {
			t.Errorf("unexpected report for %s %q", cid, pattern)
		}
		reported = err
	})
	if ok {
		t.Error("a malformed pattern must be treated as absent")
	}
	if reported == nil {
		t.Error("expected the malformed pattern to be reported")
	}
}
