package semjoin

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDataFrameErrors(t *testing.T) {
	if _, err := NewDataFrame(NewSeriesInt64("a", []int64{1}), NewSeriesInt64("a", []int64{2})); err == nil {
		t.Error("expected an error for duplicate names")
	}
	if _, err := NewDataFrame(NewSeriesInt64("a", []int64{1}), NewSeriesInt64("b", []int64{1, 2})); err == nil {
		t.Error("expected an error for mismatched lengths")
	}
	if _, err := NewDataFrame(nil); err == nil {
		t.Error("expected an error for a nil column")
	}
}

func TestFromRecords(t *testing.T) {
	df, err := FromRecords([]map[string]any{
		{"b": 1, "a": "x"},
		{"c": true, "a": "y"},
	})
	if err != nil {
		t.Fatalf("FromRecords failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, df.Columns()); diff != "" {
		t.Errorf("column order mismatch (-want +got):\n%s", diff)
	}
	want := map[string]any{"a": "y", "b": nil, "c": true}
	if diff := cmp.Diff(want, df.Row(1)); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
	if got := df.ColumnByName("b").DType(); got != Int64 {
		t.Errorf("expected Int64, got %s", got)
	}
}

func TestDataFrameSelection(t *testing.T) {
	df := customers(t)

	if rows, cols := df.Shape(); rows != 3 || cols != 2 {
		t.Errorf("unexpected shape (%d, %d)", rows, cols)
	}
	if diff := cmp.Diff([]string{"email"}, df.Select("email", "missing").Columns()); diff != "" {
		t.Errorf("select mismatch (-want +got):\n%s", diff)
	}
	if got := df.Head(10).Height(); got != 3 {
		t.Errorf("Head past the end should clamp, got %d rows", got)
	}
	if got := df.Head(-1).Height(); got != 0 {
		t.Errorf("negative Head should be empty, got %d rows", got)
	}

	taken := df.Take([]int{2, -1, 0})
	ids, _ := taken.GetColumn("id")
	if diff := cmp.Diff([]any{int64(3), nil, int64(1)}, ids); diff != "" {
		t.Errorf("take mismatch (-want +got):\n%s", diff)
	}

	_, err := df.GetColumn("nope")
	var notFound *ColumnNotFoundError
	if !errors.As(err, &notFound) || notFound.Column != "nope" {
		t.Errorf("expected ColumnNotFoundError, got %v", err)
	}
	if got := df.DTypes()["email"]; got != String {
		t.Errorf("expected String, got %s", got)
	}
}

func TestNewSeriesFromValues(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		dtype  DType
		want   []any
	}{
		{"ints", []any{1, int64(2), nil}, Int64, []any{int64(1), int64(2), nil}},
		{"widened", []any{1, 2.5}, Float64, []any{1.0, 2.5}},
		{"mixed", []any{1, "a"}, String, []any{"1", "a"}},
		{"bools", []any{true, false}, Bool, []any{true, false}},
		{"all null", []any{nil, nil}, Null, []any{nil, nil}},
	}
	for _, tt := range tests {
		s := NewSeriesFromValues("x", tt.values)
		if s.DType() != tt.dtype {
			t.Errorf("%s: dtype = %s, want %s", tt.name, s.DType(), tt.dtype)
		}
		if diff := cmp.Diff(tt.want, s.Values()); diff != "" {
			t.Errorf("%s: values mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestSeriesTakeAndSlice(t *testing.T) {
	s := NewSeriesString("s", []string{"a", "b", "c", "d"})

	taken := s.Take("t", []int{3, -1, 0})
	if taken.Name() != "t" || taken.NullCount() != 1 {
		t.Errorf("unexpected take result: %s with %d nulls", taken, taken.NullCount())
	}
	if diff := cmp.Diff([]any{"d", nil, "a"}, taken.Values()); diff != "" {
		t.Errorf("take mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]any{"b", "c"}, s.Slice(1, 3).Values()); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}
	if got := s.Slice(3, 100).Len(); got != 1 {
		t.Errorf("out of range slice should clamp, got %d", got)
	}
	if got := s.Slice(3, 1).Len(); got != 0 {
		t.Errorf("inverted slice should be empty, got %d", got)
	}

	if _, err := s.WithNulls([]bool{true}); err == nil {
		t.Error("expected an error for a short validity mask")
	}
	if s.IsValid(-1) || s.IsValid(4) {
		t.Error("out of range indices are never valid")
	}
	if got := s.Rename("r").Name(); got != "r" || s.Name() != "s" {
		t.Errorf("Rename must not modify the original, got %s/%s", got, s.Name())
	}
}

func TestParseJoinType(t *testing.T) {
	tests := []struct {
		in   string
		want JoinType
	}{
		{"", InnerJoin},
		{"inner", InnerJoin},
		{"LEFT", LeftJoin},
		{" right ", RightJoin},
		{"outer", OuterJoin},
		{"full", OuterJoin},
	}
	for _, tt := range tests {
		got, err := ParseJoinType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseJoinType(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseJoinType("cross"); err == nil {
		t.Error("expected an error for an unknown join type")
	}
	if got := JoinType(9).String(); got != "JoinType(9)" {
		t.Errorf("unexpected string for an unknown join type: %s", got)
	}
}

func TestJoinOptionsNormalized(t *testing.T) {
	got := JoinOptions{ConfidenceThreshold: 1.7, FuzzyThreshold: -1}.normalized()
	if got.BatchSize != DefaultBatchSize || got.Suffix != "_right" || got.LeftID != "left" || got.RightID != "right" {
		t.Errorf("expected structural defaults, got %+v", got)
	}
	if got.ConfidenceThreshold != 1 || got.FuzzyThreshold != 0 {
		t.Errorf("expected clamped thresholds, got %v/%v", got.ConfidenceThreshold, got.FuzzyThreshold)
	}

	o := On("email").WithHow(LeftJoin).WithBatchSize(5).WithSuffix("_r").WithPrefixes("l_", "r_")
	if diff := cmp.Diff([]string{"email"}, o.RightColumns); diff != "" {
		t.Errorf("On should set both sides (-want +got):\n%s", diff)
	}
	if o.How != LeftJoin || o.BatchSize != 5 || o.Suffix != "_r" || o.LeftPrefix != "l_" || o.RightPrefix != "r_" {
		t.Errorf("builder options not applied: %+v", o)
	}
}
