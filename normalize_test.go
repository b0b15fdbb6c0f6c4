package semjoin

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBuiltinNormalizers(t *testing.T) {
	r := NewNormalizerRegistry()

	tests := []struct {
		normalizer string
		in         any
		want       string
	}{
		{NormalizerEmail, "  <MailTo:John.Doe@Example.COM> ", "john.doe@example.com"},
		{NormalizerEmail, "B@X.com", "b@x.com"},
		{NormalizerPhone, "+1 (555) 123-4567", "5551234567"},
		{NormalizerPhone, "555-1234 x12", "5551234"},
		{NormalizerPhone, "0044 20 7946 0958", "442079460958"},
		{NormalizerPhone, "n/a", "n/a"},
		{NormalizerName, "Doe, John", "john doe"},
		{NormalizerName, "Dr. José García-López", "jose garcialopez"},
		{NormalizerName, "O'Brien", "obrien"},
		{NormalizerAddress, "123 Main Street, Apt. 4", "123 main st apt 4"},
		{NormalizerAddress, "North Avenue", "n ave"},
		{NormalizerNumeric, "$1,234.50", "1234.5"},
		{NormalizerNumeric, "(12)", "-12"},
		{NormalizerNumeric, int64(42), "42"},
		{NormalizerNumeric, 3.25, "3.25"},
		{NormalizerNumeric, "abc", "abc"},
		{NormalizerDate, "03/15/2024", "2024-03-15"},
		{NormalizerDate, "March 15, 2024", "2024-03-15"},
		{NormalizerDate, "15.03.2024", "2024-03-15"},
		{NormalizerDate, "20240315", "2024-03-15"},
		{NormalizerDate, time.Date(2024, 3, 15, 23, 0, 0, 0, time.FixedZone("EST", -5*3600)), "2024-03-16"},
		{NormalizerDate, "2024-03-15T23:00:00-05:00", "2024-03-16"},
		{NormalizerDate, "not a date", "not a date"},
		{NormalizerCategorical, "In_Progress", "in progress"},
		{NormalizerCategorical, "  Café-Open ", "cafe open"},
		{NormalizerUUID, "{550E8400-E29B-41D4-A716-446655440000}", "550e8400-e29b-41d4-a716-446655440000"},
		{NormalizerUUID, "not-a-uuid", "not-a-uuid"},
		{NormalizerDefault, "  Hello \t  World ", "hello world"},
	}

	for _, tt := range tests {
		n := r.MustLookup(tt.normalizer)
		got := n.Normalize(tt.in)
		if got != tt.want {
			t.Errorf("%s(%q) = %q, want %q", tt.normalizer, tt.in, got, tt.want)
		}
		// every built-in is idempotent
		if again := n.Normalize(got); again != got {
			t.Errorf("%s is not idempotent on %q: %q then %q", tt.normalizer, tt.in, got, again)
		}
	}
}

func TestNormalizerMissingValues(t *testing.T) {
	r := NewNormalizerRegistry()
	for _, name := range r.Names() {
		n := r.MustLookup(name)
		for _, v := range []any{nil, "", "   "} {
			if got := n.Normalize(v); got != "" {
				t.Errorf("%s(%q) = %q, want empty", name, v, got)
			}
		}
	}
}

func TestNormalizerDeclaredConfidence(t *testing.T) {
	r := NewNormalizerRegistry()
	want := map[string]float64{
		NormalizerEmail:       0.9,
		NormalizerPhone:       0.85,
		NormalizerName:        0.8,
		NormalizerAddress:     0.75,
		NormalizerNumeric:     0.9,
		NormalizerDate:        0.85,
		NormalizerCategorical: 0.85,
		NormalizerUUID:        0.95,
		NormalizerDefault:     0.7,
	}
	got := make(map[string]float64)
	for _, name := range r.Names() {
		got[name] = r.MustLookup(name).DefaultConfidence()
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("declared confidences mismatch (-want +got):\n%s", diff)
	}
}

func TestPanickingNormalizerDegrades(t *testing.T) {
	boom := NewNormalizerFunc("boom", 0.5, func(any) string { panic("bad value") })
	if got := boom.Normalize("  A  B "); got != "a b" {
		t.Errorf("expected default folding after a panic, got %q", got)
	}
	if got := safeNormalize(boom, "X"); got != "x" {
		t.Errorf("expected default folding after a panic, got %q", got)
	}
}

func TestNormalizerRegistry(t *testing.T) {
	r := NewNormalizerRegistry()
	if err := r.Register(nil); err == nil {
		t.Error("expected an error for a nil normalizer")
	}
	if err := r.Register(NewNormalizerFunc("", 1, normalizeDefault)); err == nil {
		t.Error("expected an error for an unnamed normalizer")
	}

	upper := NewNormalizerFunc(NormalizerEmail, 0.5, func(v any) string { return "x" })
	clone := r.Clone()
	if err := r.Register(upper); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if got := r.MustLookup(NormalizerEmail).DefaultConfidence(); got != 0.5 {
		t.Errorf("expected the replacement normalizer, got confidence %v", got)
	}
	if got := clone.MustLookup(NormalizerEmail).DefaultConfidence(); got != 0.9 {
		t.Errorf("clone should keep the built-in, got confidence %v", got)
	}

	if got := r.MustLookup("missing").Name(); got != NormalizerDefault {
		t.Errorf("MustLookup should fall back to default, got %s", got)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup should report a missing normalizer")
	}
}

func TestEnginesHaveIndependentRegistries(t *testing.T) {
	custom := NewNormalizerFunc("sku", 0.9, normalizeDefault)
	a := NewEngine(WithNormalizer(custom))
	b := NewEngine()

	if _, ok := a.Normalizers().Lookup("sku"); !ok {
		t.Error("engine a should have the custom normalizer")
	}
	if _, ok := b.Normalizers().Lookup("sku"); ok {
		t.Error("engine b should not see engine a's normalizer")
	}
}
