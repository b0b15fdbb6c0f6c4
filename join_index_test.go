package semjoin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompositeKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a|b"},
		{[]string{"", ""}, ""},
		{[]string{"", "b"}, "|b"},
		{[]string{"a|b", "c"}, `a\|b|c`},
		{[]string{`a\`, "b"}, `a\\|b`},
	}
	for _, tt := range tests {
		if got := compositeKey(tt.parts); got != tt.want {
			t.Errorf("compositeKey(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}

	// separators inside values never make distinct tuples collide
	if compositeKey([]string{"a|b", "c"}) == compositeKey([]string{"a", "b|c"}) {
		t.Error("escaped keys collided")
	}
}

func TestCompositeKeys(t *testing.T) {
	keys := compositeKeys([][]string{{"a", "", "c"}, {"1", "", "3"}}, 3)
	if diff := cmp.Diff([]string{"a|1", "", "c|3"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyIndex(t *testing.T) {
	idx := buildKeyIndex([]string{"a", "b", "", "a", "c"})

	if idx.Len() != 3 {
		t.Errorf("expected 3 distinct keys, got %d", idx.Len())
	}
	if idx.rows != 4 {
		t.Errorf("expected 4 indexed rows, got %d", idx.rows)
	}
	if diff := cmp.Diff([]int{0, 3}, idx.lookup("a")); diff != "" {
		t.Errorf("lookup(a) mismatch (-want +got):\n%s", diff)
	}
	if got := idx.lookup(""); got != nil {
		t.Errorf("empty keys must not be indexed, got %v", got)
	}
	if got := idx.lookup("z"); got != nil {
		t.Errorf("expected no rows for an unknown key, got %v", got)
	}

	var order []string
	for _, b := range idx.order {
		order = append(order, b.key)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, order); diff != "" {
		t.Errorf("bucket order mismatch (-want +got):\n%s", diff)
	}
}

func TestStringSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "", 0},
		{"abcd", "abce", 0.75},
		{"café", "cafe", 0.75},
	}
	for _, tt := range tests {
		if got := stringSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("stringSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	if got := jaccard([]string{"a", "b"}, []string{"b", "c"}); got != 1.0/3 {
		t.Errorf("jaccard = %v, want 1/3", got)
	}
	if got := jaccard(nil, nil); got != 0 {
		t.Errorf("jaccard of empty sets = %v, want 0", got)
	}
}
