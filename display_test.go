package semjoin

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDataFrameStringASCII(t *testing.T) {
	name, err := NewSeriesString("name", []string{"alice", ""}).WithNulls([]bool{true, false})
	if err != nil {
		t.Fatal(err)
	}
	df := mustFrame(t, NewSeriesInt64("id", []int64{1, 2}), name)

	cfg := DefaultDisplayConfig()
	cfg.TableStyle = "ascii"
	cfg.ShowDTypes = false
	cfg.MinColWidth = 4

	want := "shape: (2, 2)\n" +
		"+------+-------+\n" +
		"| id   | name  |\n" +
		"+------+-------+\n" +
		"|    1 | alice |\n" +
		"|    2 |  null |\n" +
		"+------+-------+"
	if diff := cmp.Diff(want, df.StringWithConfig(cfg)); diff != "" {
		t.Errorf("rendering mismatch (-want +got):\n%s", diff)
	}
}

func TestDataFrameStringTruncates(t *testing.T) {
	values := make([]int64, 20)
	for i := range values {
		values[i] = int64(i)
	}
	df := mustFrame(t,
		NewSeriesInt64("n", values),
		NewSeriesFloat64("f", make([]float64, 20)),
	)
	out := df.String()

	if !strings.HasPrefix(out, "shape: (20, 2)\n") {
		t.Errorf("expected a shape header, got %q", out[:20])
	}
	if !strings.Contains(out, "…") {
		t.Error("expected an ellipsis row for a long frame")
	}
	if !strings.Contains(out, "0.0000") {
		t.Error("expected floats at the default precision")
	}
	if strings.Contains(out, " 10 ") {
		t.Error("middle rows should be elided")
	}

	empty := mustFrame(t, NewSeriesInt64("n", []int64{}))
	if got := empty.String(); got != "DataFrame(empty, 1 columns)" {
		t.Errorf("unexpected empty rendering %q", got)
	}
}

func TestDisplayHelpers(t *testing.T) {
	if diff := cmp.Diff([]int{0, 1, -1, 8, 9}, headTail(10, 4)); diff != "" {
		t.Errorf("headTail mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, headTail(3, 10)); diff != "" {
		t.Errorf("headTail mismatch (-want +got):\n%s", diff)
	}
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("héllo", 5); got != "héllo" {
		t.Errorf("truncate counts runes, got %q", got)
	}
	if got := pad("ab", 4, true); got != "  ab" {
		t.Errorf("pad = %q", got)
	}
}

func TestJoinResultPreview(t *testing.T) {
	res, err := NewEngine().SemanticJoin(context.Background(), customers(t), orders(t), emailOpts())
	if err != nil {
		t.Fatalf("failed to join: %v", err)
	}
	out := res.Preview(DefaultDisplayConfig())
	if !strings.HasPrefix(out, res.Summary()) {
		t.Errorf("preview should start with the summary, got %q", out)
	}
	if !strings.Contains(out, MatchTypeColumn) {
		t.Errorf("preview should render the joined columns, got %q", out)
	}
}
