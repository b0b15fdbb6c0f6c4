package semjoin

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ColumnStats is the statistical profile of one column.
type ColumnStats struct {
	DataType    DataType
	Count       int
	NullCount   int
	UniqueCount int
	NullRatio   float64 // nulls / count
	UniqueRatio float64 // distinct non-null values / non-null count
	AvgLength   float64 // mean rendered length of non-null values
	Numeric     *NumericStats
	Strings     *StringStats
}

// NullPercentage returns the null ratio as a percentage.
func (s ColumnStats) NullPercentage() float64 { return s.NullRatio * 100 }

// UniquePercentage returns the unique ratio as a percentage.
func (s ColumnStats) UniquePercentage() float64 { return s.UniqueRatio * 100 }

// NumericStats summarizes numeric columns.
type NumericStats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// StringStats summarizes string columns.
type StringStats struct {
	MinLength int
	MaxLength int
	// Patterns counts values by detected shape (email, phone, uuid, date).
	Patterns map[DataType]int
}

// minimum share of non-null values that must agree on a type
const dominantTypeShare = 0.9

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)
)

// AnalyzeColumn profiles a column of values. It is pure and deterministic.
func AnalyzeColumn(values []any) ColumnStats {
	stats := ColumnStats{Count: len(values)}
	if len(values) == 0 {
		stats.DataType = DataTypeEmpty
		return stats
	}

	distinct := make(map[string]struct{})
	typeCounts := make(map[DataType]int)
	var totalLen int
	var nums []float64
	minLen, maxLen := math.MaxInt, 0
	strCount := 0

	for _, v := range values {
		if isMissing(v) {
			stats.NullCount++
			continue
		}
		rendered := formatValue(v)
		distinct[rendered] = struct{}{}
		l := utf8.RuneCountInString(rendered)
		totalLen += l

		t := classifyValue(v)
		typeCounts[t]++
		if t.IsNumeric() {
			if f, ok := toFloat64(v); ok {
				nums = append(nums, f)
			}
		}
		if _, isStr := v.(string); isStr {
			strCount++
			if l < minLen {
				minLen = l
			}
			if l > maxLen {
				maxLen = l
			}
		}
	}

	nonNull := stats.Count - stats.NullCount
	stats.NullRatio = float64(stats.NullCount) / float64(stats.Count)
	stats.UniqueCount = len(distinct)
	if nonNull == 0 {
		stats.DataType = DataTypeEmpty
		return stats
	}
	stats.UniqueRatio = float64(stats.UniqueCount) / float64(nonNull)
	stats.AvgLength = float64(totalLen) / float64(nonNull)
	stats.DataType = dominantType(typeCounts, nonNull)

	if len(nums) > 0 && stats.DataType.IsNumeric() {
		stats.Numeric = numericSummary(nums)
	}
	if strCount > 0 {
		patterns := make(map[DataType]int)
		for t, c := range typeCounts {
			if t != DataTypeString {
				patterns[t] = c
			}
		}
		stats.Strings = &StringStats{MinLength: minLen, MaxLength: maxLen, Patterns: patterns}
	}
	return stats
}

func dominantType(counts map[DataType]int, total int) DataType {
	// integers and floats together make a float column
	if counts[DataTypeInteger]+counts[DataTypeFloat] >= int(math.Ceil(dominantTypeShare*float64(total))) &&
		counts[DataTypeFloat] > 0 {
		return DataTypeFloat
	}
	best, bestCount := DataTypeMixed, 0
	for t, c := range counts {
		if c > bestCount || (c == bestCount && t < best) {
			best, bestCount = t, c
		}
	}
	if float64(bestCount) >= dominantTypeShare*float64(total) {
		return best
	}
	return DataTypeMixed
}

// classifyValue infers the logical type of a single non-missing value.
func classifyValue(v any) DataType {
	switch val := v.(type) {
	case bool:
		return DataTypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return DataTypeInteger
	case float32:
		return DataTypeFloat
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return DataTypeInteger
		}
		return DataTypeFloat
	case time.Time:
		return DataTypeDate
	case string:
		return classifyString(val)
	default:
		return DataTypeString
	}
}

func classifyString(s string) DataType {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return DataTypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return DataTypeFloat
	}
	switch strings.ToLower(s) {
	case "true", "false":
		return DataTypeBoolean
	}
	if len(s) == 36 {
		if _, err := uuid.Parse(s); err == nil {
			return DataTypeUUID
		}
	}
	if emailPattern.MatchString(s) {
		return DataTypeEmail
	}
	if _, ok := parseDate(s); ok {
		return DataTypeDate
	}
	if phonePattern.MatchString(s) && countDigits(s) >= 7 {
		return DataTypePhone
	}
	return DataTypeString
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func numericSummary(nums []float64) *NumericStats {
	ns := &NumericStats{Min: nums[0], Max: nums[0]}
	var sum float64
	for _, x := range nums {
		sum += x
		if x < ns.Min {
			ns.Min = x
		}
		if x > ns.Max {
			ns.Max = x
		}
	}
	ns.Mean = sum / float64(len(nums))
	var sq float64
	for _, x := range nums {
		d := x - ns.Mean
		sq += d * d
	}
	ns.StdDev = math.Sqrt(sq / float64(len(nums)))
	return ns
}
