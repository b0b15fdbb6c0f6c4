package semjoin

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DisplayConfig controls how DataFrames and join results are rendered.
type DisplayConfig struct {
	// MaxRows is the maximum number of rows to display.
	// Longer frames show head and tail rows with "…" in between.
	// Default: 10 (5 head + 5 tail)
	MaxRows int

	// MaxCols is the maximum number of columns to display.
	// Default: 10
	MaxCols int

	// MaxColWidth truncates longer cell content with "...".
	// Default: 25
	MaxColWidth int

	// MinColWidth is the minimum column width for alignment.
	// Default: 8
	MinColWidth int

	// FloatPrecision is the number of decimal places for float values.
	// Default: 4
	FloatPrecision int

	// ShowDTypes displays data types under column names.
	ShowDTypes bool

	// ShowShape displays the shape (rows, columns) header.
	ShowShape bool

	// TableStyle is one of "rounded", "sharp", "ascii", "minimal".
	TableStyle string
}

type tableChars struct {
	topLeft, topRight, bottomLeft, bottomRight string
	horizontal, vertical                       string
	topT, bottomT, leftT, rightT, cross        string
}

var tableStyles = map[string]tableChars{
	"rounded": {
		topLeft: "╭", topRight: "╮", bottomLeft: "╰", bottomRight: "╯",
		horizontal: "─", vertical: "│",
		topT: "┬", bottomT: "┴", leftT: "├", rightT: "┤", cross: "┼",
	},
	"sharp": {
		topLeft: "┌", topRight: "┐", bottomLeft: "└", bottomRight: "┘",
		horizontal: "─", vertical: "│",
		topT: "┬", bottomT: "┴", leftT: "├", rightT: "┤", cross: "┼",
	},
	"ascii": {
		topLeft: "+", topRight: "+", bottomLeft: "+", bottomRight: "+",
		horizontal: "-", vertical: "|",
		topT: "+", bottomT: "+", leftT: "+", rightT: "+", cross: "+",
	},
	"minimal": {
		topLeft: " ", topRight: " ", bottomLeft: " ", bottomRight: " ",
		horizontal: "─", vertical: " ",
		topT: " ", bottomT: " ", leftT: " ", rightT: " ", cross: " ",
	},
}

// DefaultDisplayConfig returns the default display configuration.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		MaxRows:        10,
		MaxCols:        10,
		MaxColWidth:    25,
		MinColWidth:    8,
		FloatPrecision: 4,
		ShowDTypes:     true,
		ShowShape:      true,
		TableStyle:     "rounded",
	}
}

// formatDisplayValue formats a value for display with the given configuration.
func formatDisplayValue(val any, cfg DisplayConfig) string {
	var s string
	switch v := val.(type) {
	case nil:
		s = "null"
	case float64:
		s = fmt.Sprintf("%.*f", cfg.FloatPrecision, v)
	case time.Time:
		s = v.Format(time.RFC3339)
	default:
		s = formatValue(v)
	}
	return truncate(s, cfg.MaxColWidth)
}

func truncate(s string, width int) string {
	if width < 4 || utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width-3]) + "..."
}

// pad left-aligns (or right-aligns) s in a field of width runes.
func pad(s string, width int, right bool) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// headTail returns the indices to show out of n, with -1 marking the gap.
func headTail(n, max int) []int {
	if max <= 0 || n <= max {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	head := max / 2
	tail := max - head
	idx := make([]int, 0, max+1)
	for i := 0; i < head; i++ {
		idx = append(idx, i)
	}
	idx = append(idx, -1)
	for i := n - tail; i < n; i++ {
		idx = append(idx, i)
	}
	return idx
}

// String renders the DataFrame with the default display configuration.
func (df *DataFrame) String() string {
	return df.StringWithConfig(DefaultDisplayConfig())
}

// StringWithConfig formats the DataFrame using the provided configuration.
func (df *DataFrame) StringWithConfig(cfg DisplayConfig) string {
	if df.height == 0 || len(df.columns) == 0 {
		return fmt.Sprintf("DataFrame(empty, %d columns)", len(df.columns))
	}

	chars, ok := tableStyles[cfg.TableStyle]
	if !ok {
		chars = tableStyles["rounded"]
	}

	colIndices := headTail(len(df.columns), cfg.MaxCols)
	rowIndices := headTail(df.height, cfg.MaxRows)

	widths := make([]int, len(colIndices))
	for i, c := range colIndices {
		if c < 0 {
			widths[i] = 3
			continue
		}
		col := df.columns[c]
		w := utf8.RuneCountInString(col.Name())
		if cfg.ShowDTypes {
			w = maxInt(w, len(col.DType().String()))
		}
		for _, r := range rowIndices {
			if r >= 0 {
				w = maxInt(w, utf8.RuneCountInString(formatDisplayValue(col.Get(r), cfg)))
			}
		}
		widths[i] = minInt(maxInt(w, cfg.MinColWidth), maxInt(cfg.MaxColWidth, 3))
	}

	var sb strings.Builder
	if cfg.ShowShape {
		fmt.Fprintf(&sb, "shape: (%d, %d)\n", df.height, len(df.columns))
	}

	border := func(left, mid, right string) {
		sb.WriteString(left)
		for i, w := range widths {
			if i > 0 {
				sb.WriteString(mid)
			}
			sb.WriteString(strings.Repeat(chars.horizontal, w+2))
		}
		sb.WriteString(right)
	}
	line := func(cell func(i, c int) (string, bool)) {
		sb.WriteString(chars.vertical)
		for i, c := range colIndices {
			s, right := "…", true
			if c >= 0 {
				s, right = cell(i, c)
			}
			sb.WriteString(" " + pad(truncate(s, widths[i]), widths[i], right) + " ")
			sb.WriteString(chars.vertical)
		}
		sb.WriteString("\n")
	}

	border(chars.topLeft, chars.topT, chars.topRight)
	sb.WriteString("\n")
	line(func(_, c int) (string, bool) { return df.columns[c].Name(), false })
	if cfg.ShowDTypes {
		line(func(_, c int) (string, bool) { return df.columns[c].DType().String(), false })
	}
	border(chars.leftT, chars.cross, chars.rightT)
	sb.WriteString("\n")
	for _, r := range rowIndices {
		if r < 0 {
			line(func(_, _ int) (string, bool) { return "…", true })
			continue
		}
		line(func(_, c int) (string, bool) { return formatDisplayValue(df.columns[c].Get(r), cfg), true })
	}
	border(chars.bottomLeft, chars.bottomT, chars.bottomRight)
	return sb.String()
}

// Preview renders the result summary followed by the first rows of the
// joined data.
func (r *JoinResult) Preview(cfg DisplayConfig) string {
	var sb strings.Builder
	sb.WriteString(r.Summary())
	sb.WriteString("\n")
	if r.Data != nil {
		sb.WriteString(r.Data.Head(cfg.MaxRows).StringWithConfig(cfg))
	}
	return sb.String()
}
