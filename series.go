package semjoin

import (
	"fmt"
	"time"
)

// Series is a named, typed column of values held in Go memory.
// A nil valid slice means every value is present.
type Series struct {
	name  string
	dtype DType

	f64  []float64
	i64  []int64
	b    []bool
	str  []string
	ts   []time.Time
	size int

	valid []bool
}

// NewSeriesFloat64 creates a Float64 Series from a Go slice.
func NewSeriesFloat64(name string, data []float64) *Series {
	return &Series{name: name, dtype: Float64, f64: data, size: len(data)}
}

// NewSeriesInt64 creates an Int64 Series from a Go slice.
func NewSeriesInt64(name string, data []int64) *Series {
	return &Series{name: name, dtype: Int64, i64: data, size: len(data)}
}

// NewSeriesBool creates a Bool Series from a Go slice.
func NewSeriesBool(name string, data []bool) *Series {
	return &Series{name: name, dtype: Bool, b: data, size: len(data)}
}

// NewSeriesString creates a String Series from a Go slice.
func NewSeriesString(name string, data []string) *Series {
	return &Series{name: name, dtype: String, str: data, size: len(data)}
}

// NewSeriesDateTime creates a DateTime Series from a Go slice.
func NewSeriesDateTime(name string, data []time.Time) *Series {
	return &Series{name: name, dtype: DateTime, ts: data, size: len(data)}
}

// NewSeriesNull creates a Series of n missing values.
func NewSeriesNull(name string, n int) *Series {
	return &Series{name: name, dtype: Null, size: n, valid: make([]bool, n)}
}

// WithNulls returns a copy of the series using valid as its validity mask.
// The valid slice indicates which values are present (true) vs null (false).
func (s *Series) WithNulls(valid []bool) (*Series, error) {
	if valid != nil && len(valid) != s.size {
		return nil, fmt.Errorf("validity mask length %d does not match series length %d", len(valid), s.size)
	}
	out := *s
	out.valid = valid
	return &out, nil
}

// NewSeriesFromValues builds a Series from loosely typed values, choosing
// the narrowest dtype that holds every non-nil value. Mixed kinds fall back
// to String using fmt formatting.
func NewSeriesFromValues(name string, values []any) *Series {
	n := len(values)
	valid := make([]bool, n)
	hasNull := false

	kind := Null
	for i, v := range values {
		if v == nil {
			hasNull = true
			continue
		}
		valid[i] = true
		k := dtypeOf(v)
		switch {
		case kind == Null:
			kind = k
		case kind == k:
		case kind.IsNumeric() && k.IsNumeric():
			kind = Float64
		default:
			kind = String
		}
	}

	var s *Series
	switch kind {
	case Null:
		return NewSeriesNull(name, n)
	case Int64:
		data := make([]int64, n)
		for i, v := range values {
			if v != nil {
				data[i], _ = toInt64(v)
			}
		}
		s = NewSeriesInt64(name, data)
	case Float64:
		data := make([]float64, n)
		for i, v := range values {
			if v != nil {
				data[i], _ = toFloat64(v)
			}
		}
		s = NewSeriesFloat64(name, data)
	case Bool:
		data := make([]bool, n)
		for i, v := range values {
			if v != nil {
				data[i] = v.(bool)
			}
		}
		s = NewSeriesBool(name, data)
	case DateTime:
		data := make([]time.Time, n)
		for i, v := range values {
			if v != nil {
				data[i] = v.(time.Time)
			}
		}
		s = NewSeriesDateTime(name, data)
	default:
		data := make([]string, n)
		for i, v := range values {
			if v != nil {
				data[i] = formatValue(v)
			}
		}
		s = NewSeriesString(name, data)
	}
	if hasNull {
		s.valid = valid
	}
	return s
}

func dtypeOf(v any) DType {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Int64
	case float32, float64:
		return Float64
	case bool:
		return Bool
	case time.Time:
		return DateTime
	default:
		return String
	}
}

// Name returns the series name.
func (s *Series) Name() string {
	return s.name
}

// DType returns the data type.
func (s *Series) DType() DType {
	return s.dtype
}

// Len returns the number of elements.
func (s *Series) Len() int {
	return s.size
}

// NullCount returns the number of null values.
func (s *Series) NullCount() int {
	if s.valid == nil {
		return 0
	}
	n := 0
	for _, ok := range s.valid {
		if !ok {
			n++
		}
	}
	return n
}

// IsValid returns true if the value at the given index is valid (not null).
// Returns false if index is out of bounds.
func (s *Series) IsValid(index int) bool {
	if index < 0 || index >= s.size {
		return false
	}
	return s.valid == nil || s.valid[index]
}

// Get returns the value at index as an interface, or nil when it is null.
func (s *Series) Get(index int) any {
	if !s.IsValid(index) {
		return nil
	}
	switch s.dtype {
	case Float64:
		return s.f64[index]
	case Int64:
		return s.i64[index]
	case Bool:
		return s.b[index]
	case String:
		return s.str[index]
	case DateTime:
		return s.ts[index]
	default:
		return nil
	}
}

// Values returns every value boxed as an interface, nil for nulls.
func (s *Series) Values() []any {
	out := make([]any, s.size)
	for i := range out {
		out[i] = s.Get(i)
	}
	return out
}

// Float64 returns the underlying float64 data (nil for other dtypes).
func (s *Series) Float64() []float64 { return s.f64 }

// Int64 returns the underlying int64 data (nil for other dtypes).
func (s *Series) Int64() []int64 { return s.i64 }

// Bool returns the underlying bool data (nil for other dtypes).
func (s *Series) Bool() []bool { return s.b }

// Strings returns the underlying string data (nil for other dtypes).
func (s *Series) Strings() []string { return s.str }

// Times returns the underlying time data (nil for other dtypes).
func (s *Series) Times() []time.Time { return s.ts }

// Rename returns a shallow copy of the series with a new name.
func (s *Series) Rename(name string) *Series {
	out := *s
	out.name = name
	return &out
}

// Take gathers the rows at indices into a new series. A negative index
// produces a null row, which is how unmatched join sides are filled.
func (s *Series) Take(name string, indices []int) *Series {
	n := len(indices)
	valid := make([]bool, n)
	hasNull := false
	for i, idx := range indices {
		valid[i] = idx >= 0 && s.IsValid(idx)
		if !valid[i] {
			hasNull = true
		}
	}

	out := &Series{name: name, dtype: s.dtype, size: n}
	switch s.dtype {
	case Float64:
		out.f64 = make([]float64, n)
		for i, idx := range indices {
			if valid[i] {
				out.f64[i] = s.f64[idx]
			}
		}
	case Int64:
		out.i64 = make([]int64, n)
		for i, idx := range indices {
			if valid[i] {
				out.i64[i] = s.i64[idx]
			}
		}
	case Bool:
		out.b = make([]bool, n)
		for i, idx := range indices {
			if valid[i] {
				out.b[i] = s.b[idx]
			}
		}
	case String:
		out.str = make([]string, n)
		for i, idx := range indices {
			if valid[i] {
				out.str[i] = s.str[idx]
			}
		}
	case DateTime:
		out.ts = make([]time.Time, n)
		for i, idx := range indices {
			if valid[i] {
				out.ts[i] = s.ts[idx]
			}
		}
	}
	if hasNull {
		out.valid = valid
	}
	return out
}

// Slice returns rows [start, end) as a new series sharing no memory.
func (s *Series) Slice(start, end int) *Series {
	if start < 0 {
		start = 0
	}
	if end > s.size {
		end = s.size
	}
	if start > end {
		start = end
	}
	indices := make([]int, end-start)
	for i := range indices {
		indices[i] = start + i
	}
	return s.Take(s.name, indices)
}

// String implements fmt.Stringer with a short preview.
func (s *Series) String() string {
	return fmt.Sprintf("Series(%s, %s, len=%d)", s.name, s.dtype, s.size)
}
