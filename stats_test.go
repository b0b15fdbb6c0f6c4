package semjoin

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAnalyzeColumnEmpty(t *testing.T) {
	if s := AnalyzeColumn(nil); s.DataType != DataTypeEmpty || s.Count != 0 {
		t.Errorf("unexpected stats for no values: %+v", s)
	}

	s := AnalyzeColumn([]any{nil, "", "  "})
	if s.DataType != DataTypeEmpty {
		t.Errorf("expected empty type, got %s", s.DataType)
	}
	if s.NullCount != 3 || s.NullRatio != 1 {
		t.Errorf("expected all values null, got %d (%v)", s.NullCount, s.NullRatio)
	}
	if s.NullPercentage() != 100 {
		t.Errorf("expected 100%% nulls, got %v", s.NullPercentage())
	}
}

func TestAnalyzeColumnStrings(t *testing.T) {
	s := AnalyzeColumn([]any{"a@x.com", "b@x.com", nil, "a@x.com"})

	if s.DataType != DataTypeEmail {
		t.Errorf("expected email, got %s", s.DataType)
	}
	if s.Count != 4 || s.NullCount != 1 || s.UniqueCount != 2 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.NullRatio != 0.25 {
		t.Errorf("expected null ratio 0.25, got %v", s.NullRatio)
	}
	if s.UniqueRatio != 2.0/3 {
		t.Errorf("expected unique ratio 2/3, got %v", s.UniqueRatio)
	}
	if s.AvgLength != 7 {
		t.Errorf("expected average length 7, got %v", s.AvgLength)
	}
	if s.Numeric != nil {
		t.Errorf("expected no numeric summary, got %+v", s.Numeric)
	}
	want := &StringStats{MinLength: 7, MaxLength: 7, Patterns: map[DataType]int{DataTypeEmail: 3}}
	if diff := cmp.Diff(want, s.Strings); diff != "" {
		t.Errorf("string stats mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeColumnNumeric(t *testing.T) {
	s := AnalyzeColumn([]any{int64(1), int64(2), int64(3), int64(4)})
	if s.DataType != DataTypeInteger {
		t.Fatalf("expected integer, got %s", s.DataType)
	}
	if s.Numeric == nil {
		t.Fatal("expected a numeric summary")
	}
	if s.Numeric.Min != 1 || s.Numeric.Max != 4 || s.Numeric.Mean != 2.5 {
		t.Errorf("unexpected summary: %+v", s.Numeric)
	}
	if math.Abs(s.Numeric.StdDev-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("expected population stddev sqrt(1.25), got %v", s.Numeric.StdDev)
	}
	if s.Strings != nil {
		t.Errorf("expected no string stats, got %+v", s.Strings)
	}
	if s.UniquePercentage() != 100 {
		t.Errorf("expected 100%% unique, got %v", s.UniquePercentage())
	}

	// whole floats mixed with fractional ones make a float column
	if s := AnalyzeColumn([]any{1.5, 2.0, 3.0}); s.DataType != DataTypeFloat || s.Numeric == nil {
		t.Errorf("expected a float column with a summary, got %+v", s)
	}
}

func TestAnalyzeColumnMixed(t *testing.T) {
	if s := AnalyzeColumn([]any{"a", int64(1), true}); s.DataType != DataTypeMixed {
		t.Errorf("expected mixed, got %s", s.DataType)
	}

	// one stray value out of ten still leaves a dominant type
	values := []any{"x"}
	for i := 0; i < 9; i++ {
		values = append(values, int64(i))
	}
	if s := AnalyzeColumn(values); s.DataType != DataTypeInteger {
		t.Errorf("expected integer, got %s", s.DataType)
	}
}

func TestClassifyString(t *testing.T) {
	tests := []struct {
		in   string
		want DataType
	}{
		{"42", DataTypeInteger},
		{" -7 ", DataTypeInteger},
		{"3.14", DataTypeFloat},
		{"TRUE", DataTypeBoolean},
		{"550e8400-e29b-41d4-a716-446655440000", DataTypeUUID},
		{"john.doe@example.com", DataTypeEmail},
		{"2024-01-15", DataTypeDate},
		{"Jan 2, 2024", DataTypeDate},
		{"+1 (555) 123-4567", DataTypePhone},
		{"hello world", DataTypeString},
		{"12-34", DataTypeString},
	}
	for _, tt := range tests {
		if got := classifyString(tt.in); got != tt.want {
			t.Errorf("classifyString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
