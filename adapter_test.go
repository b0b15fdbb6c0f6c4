package semjoin

import (
	"context"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"
)

func emailOpts() JoinOptions {
	return LeftOn("email").RightOn("mail").
		WithFuzzy(false, DefaultFuzzyThreshold).
		WithConfidenceThreshold(0)
}

func TestAdapterRegistry(t *testing.T) {
	reg := NewAdapterRegistry()
	tests := []struct {
		obj  any
		want string
	}{
		{&DataFrame{}, "dataframe"},
		{[]map[string]any{{"a": 1}}, "records"},
	}
	for _, tt := range tests {
		a, err := reg.AdapterFor(tt.obj)
		if err != nil {
			t.Fatalf("AdapterFor(%T) failed: %v", tt.obj, err)
		}
		if a.Name() != tt.want {
			t.Errorf("AdapterFor(%T) = %s, want %s", tt.obj, a.Name(), tt.want)
		}
	}

	if _, err := reg.AdapterFor(42); err == nil || !strings.Contains(err.Error(), "int") {
		t.Errorf("expected an error naming the type, got %v", err)
	}

	// views pass through untouched
	df := customers(t)
	v, err := reg.ToView(df)
	if err != nil || v != DatasetView(df) {
		t.Errorf("expected the frame itself, got %v, %v", v, err)
	}
}

type stubAdapter struct{ RecordsAdapter }

func (stubAdapter) Name() string { return "stub" }

func TestAdapterRegistryPrefersRegistered(t *testing.T) {
	reg := NewAdapterRegistry()
	reg.Register(stubAdapter{})
	a, err := reg.AdapterFor([]map[string]any{})
	if err != nil {
		t.Fatalf("AdapterFor failed: %v", err)
	}
	if a.Name() != "stub" {
		t.Errorf("expected the registered adapter first, got %s", a.Name())
	}
}

func TestAdapterOptimizeForType(t *testing.T) {
	opts := DefaultJoinOptions()
	if got := (ArrowAdapter{}).OptimizeForType(opts).BatchSize; got != 4*DefaultBatchSize {
		t.Errorf("arrow batch size = %d", got)
	}
	if got := (RecordsAdapter{}).OptimizeForType(opts).BatchSize; got != DefaultBatchSize/4 {
		t.Errorf("records batch size = %d", got)
	}
	if got := (FrameAdapter{}).OptimizeForType(opts); !cmp.Equal(got, opts) {
		t.Errorf("frame adapter changed options: %s", cmp.Diff(opts, got))
	}
}

func TestJoinNativeRecords(t *testing.T) {
	left := []map[string]any{
		{"id": int64(7), "email": "B@X.com"},
		{"id": int64(8), "email": "z@x.com"},
	}
	out, res, err := NewEngine().JoinNative(context.Background(), NewAdapterRegistry(), left, orders(t), emailOpts())
	if err != nil {
		t.Fatalf("JoinNative failed: %v", err)
	}
	rows, ok := out.([]map[string]any)
	if !ok {
		t.Fatalf("expected records, got %T", out)
	}
	if len(rows) != 1 || len(res.Matches) != 1 {
		t.Fatalf("expected one joined row, got %d", len(rows))
	}
	if rows[0]["id"] != int64(7) || rows[0]["uid"] != int64(2) {
		t.Errorf("unexpected joined row: %v", rows[0])
	}
}

func TestJoinNativeArrow(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := customers(t).ToArrow(mem)
	if err != nil {
		t.Fatalf("ToArrow failed: %v", err)
	}
	defer rec.Release()

	reg := NewAdapterRegistry()
	reg.Register(ArrowAdapter{Mem: mem})

	out, res, err := NewEngine().JoinNative(context.Background(), reg, rec, orders(t), emailOpts())
	if err != nil {
		t.Fatalf("JoinNative failed: %v", err)
	}
	joined, ok := out.(arrow.Record)
	if !ok {
		t.Fatalf("expected an arrow record, got %T", out)
	}
	defer joined.Release()

	if joined.NumRows() != 2 || len(res.Matches) != 2 {
		t.Errorf("expected 2 joined rows, got %d", joined.NumRows())
	}
	if got := joined.Schema().Field(int(joined.NumCols()) - 1).Name; got != MatchTypeColumn {
		t.Errorf("expected %s as the last column, got %s", MatchTypeColumn, got)
	}
}

func TestJoinNativeUnsupported(t *testing.T) {
	_, _, err := NewEngine().JoinNative(context.Background(), NewAdapterRegistry(), "nope", orders(t), emailOpts())
	if err == nil {
		t.Error("expected an error for an unsupported left type")
	}
}
