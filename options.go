package semjoin

import (
	"fmt"
	"strings"
)

// JoinType represents the type of join operation
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	OuterJoin
)

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case RightJoin:
		return "right"
	case OuterJoin:
		return "outer"
	default:
		return fmt.Sprintf("JoinType(%d)", int(j))
	}
}

// ParseJoinType parses "inner", "left", "right" or "outer" (case-insensitive).
func ParseJoinType(s string) (JoinType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner", "":
		return InnerJoin, nil
	case "left":
		return LeftJoin, nil
	case "right":
		return RightJoin, nil
	case "outer", "full":
		return OuterJoin, nil
	default:
		return InnerJoin, fmt.Errorf("unknown join type %q", s)
	}
}

// Default option values.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultFuzzyThreshold      = 0.8
	DefaultBatchSize           = 10_000
)

// JoinOptions configures a semantic join. Start from DefaultJoinOptions,
// On or LeftOn so unset thresholds take their defaults.
type JoinOptions struct {
	LeftColumns  []string // Left dataset join columns
	RightColumns []string // Right dataset join columns, same length as LeftColumns
	How          JoinType // Join type (default InnerJoin)

	ConfidenceThreshold float64 // Matches scoring below this are dropped (default 0.7)
	EnableFuzzyMatching bool    // Fall back to similarity matching (default true)
	FuzzyThreshold      float64 // Minimum similarity for fuzzy matches (default 0.8)

	CacheNormalizedValues   bool // Route normalization through the engine cache (default true)
	BatchSize               int  // Right-side scan batch size when the plan does not batch (default 10000)
	AutoSelectNormalizers   bool // Consider concept and type heuristics when choosing normalizers (default true)
	PreserveOriginalColumns bool // Keep right join-key columns in the output (default true)

	Suffix      string // Suffix for duplicate column names (default "_right")
	LeftPrefix  string // Optional prefix for every left output column
	RightPrefix string // Optional prefix for every right output column

	LeftID  string // View ID passed to the context provider (default "left")
	RightID string // View ID passed to the context provider (default "right")

	// CalibrationKey names the join type for online calibration. When empty
	// the key is derived from the normalizers chosen for the join.
	CalibrationKey string
}

// DefaultJoinOptions returns default join options
func DefaultJoinOptions() JoinOptions {
	return JoinOptions{
		How:                     InnerJoin,
		ConfidenceThreshold:     DefaultConfidenceThreshold,
		EnableFuzzyMatching:     true,
		FuzzyThreshold:          DefaultFuzzyThreshold,
		CacheNormalizedValues:   true,
		BatchSize:               DefaultBatchSize,
		AutoSelectNormalizers:   true,
		PreserveOriginalColumns: true,
		Suffix:                  "_right",
		LeftID:                  "left",
		RightID:                 "right",
	}
}

// On creates join options for joining on columns with the same name
func On(columns ...string) JoinOptions {
	o := DefaultJoinOptions()
	o.LeftColumns = columns
	o.RightColumns = columns
	return o
}

// LeftOn creates join options with different column names for left and right
func LeftOn(columns ...string) JoinOptions {
	o := DefaultJoinOptions()
	o.LeftColumns = columns
	return o
}

// RightOn specifies right dataset columns for the join
func (o JoinOptions) RightOn(columns ...string) JoinOptions {
	o.RightColumns = columns
	return o
}

// WithHow sets the join type
func (o JoinOptions) WithHow(how JoinType) JoinOptions {
	o.How = how
	return o
}

// WithConfidenceThreshold sets the minimum accepted match confidence
func (o JoinOptions) WithConfidenceThreshold(t float64) JoinOptions {
	o.ConfidenceThreshold = clamp01(t)
	return o
}

// WithFuzzy enables or disables fuzzy matching and sets its threshold
func (o JoinOptions) WithFuzzy(enabled bool, threshold float64) JoinOptions {
	o.EnableFuzzyMatching = enabled
	o.FuzzyThreshold = clamp01(threshold)
	return o
}

// WithBatchSize sets the fallback scan batch size
func (o JoinOptions) WithBatchSize(n int) JoinOptions {
	o.BatchSize = n
	return o
}

// WithSuffix sets the suffix for duplicate column names
func (o JoinOptions) WithSuffix(suffix string) JoinOptions {
	o.Suffix = suffix
	return o
}

// WithPrefixes sets per-side output column prefixes
func (o JoinOptions) WithPrefixes(left, right string) JoinOptions {
	o.LeftPrefix = left
	o.RightPrefix = right
	return o
}

// normalized fills zero-valued structural fields with their defaults.
// Thresholds are left alone: an explicit 0 is meaningful.
func (o JoinOptions) normalized() JoinOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Suffix == "" {
		o.Suffix = "_right"
	}
	if o.LeftID == "" {
		o.LeftID = "left"
	}
	if o.RightID == "" {
		o.RightID = "right"
	}
	o.ConfidenceThreshold = clamp01(o.ConfidenceThreshold)
	o.FuzzyThreshold = clamp01(o.FuzzyThreshold)
	return o
}
