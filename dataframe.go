package semjoin

import (
	"fmt"
	"sort"
)

// DataFrame is an ordered collection of equal-length Series.
// It is the in-repo DatasetView implementation.
type DataFrame struct {
	columns []*Series
	index   map[string]int
	height  int
}

// ============================================================================
// Creation
// ============================================================================

// NewDataFrame creates a DataFrame from Series. All series must have the
// same length and distinct names.
func NewDataFrame(series ...*Series) (*DataFrame, error) {
	df := &DataFrame{index: make(map[string]int, len(series))}
	for i, s := range series {
		if s == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if i == 0 {
			df.height = s.Len()
		} else if s.Len() != df.height {
			return nil, fmt.Errorf("column '%s' has length %d, expected %d", s.Name(), s.Len(), df.height)
		}
		if _, dup := df.index[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate column name '%s'", s.Name())
		}
		df.index[s.Name()] = i
		df.columns = append(df.columns, s)
	}
	return df, nil
}

// FromMap creates a DataFrame from loosely typed column slices. Column order
// follows the order argument; when it is empty, names are sorted.
func FromMap(data map[string][]any, order ...string) (*DataFrame, error) {
	if len(order) == 0 {
		for name := range data {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	series := make([]*Series, 0, len(order))
	for _, name := range order {
		values, ok := data[name]
		if !ok {
			return nil, fmt.Errorf("column '%s' not found in data", name)
		}
		series = append(series, NewSeriesFromValues(name, values))
	}
	return NewDataFrame(series...)
}

// FromRecords creates a DataFrame from row maps. Columns are the union of
// keys in first-seen order; missing keys become nulls.
func FromRecords(records []map[string]any) (*DataFrame, error) {
	var order []string
	seen := make(map[string]bool)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			order = append(order, k)
		}
	}

	data := make(map[string][]any, len(order))
	for _, name := range order {
		col := make([]any, len(records))
		for i, rec := range records {
			col[i] = rec[name]
		}
		data[name] = col
	}
	return FromMap(data, order...)
}

// ============================================================================
// DatasetView
// ============================================================================

// Columns returns the names of all columns in order.
func (df *DataFrame) Columns() []string {
	names := make([]string, len(df.columns))
	for i, s := range df.columns {
		names[i] = s.Name()
	}
	return names
}

// Shape returns (rows, columns).
func (df *DataFrame) Shape() (int, int) {
	return df.height, len(df.columns)
}

// GetColumn returns the boxed values of a column.
func (df *DataFrame) GetColumn(name string) ([]any, error) {
	s := df.ColumnByName(name)
	if s == nil {
		return nil, &ColumnNotFoundError{Side: "frame", Column: name, Available: df.Columns()}
	}
	return s.Values(), nil
}

// DTypes returns the storage type of each column.
func (df *DataFrame) DTypes() map[string]DType {
	out := make(map[string]DType, len(df.columns))
	for _, s := range df.columns {
		out[s.Name()] = s.DType()
	}
	return out
}

// ============================================================================
// Access
// ============================================================================

// ColumnByName returns the Series with the given name, or nil if not found.
func (df *DataFrame) ColumnByName(name string) *Series {
	if df == nil {
		return nil
	}
	i, ok := df.index[name]
	if !ok {
		return nil
	}
	return df.columns[i]
}

// Column returns the Series at position i.
func (df *DataFrame) Column(i int) *Series {
	return df.columns[i]
}

// Height returns the number of rows in the DataFrame.
func (df *DataFrame) Height() int {
	return df.height
}

// Width returns the number of columns in the DataFrame.
func (df *DataFrame) Width() int {
	return len(df.columns)
}

// Row returns row i as a map from column name to value.
func (df *DataFrame) Row(i int) map[string]any {
	row := make(map[string]any, len(df.columns))
	for _, s := range df.columns {
		row[s.Name()] = s.Get(i)
	}
	return row
}

// ============================================================================
// Selection
// ============================================================================

// Select returns a new DataFrame with only the specified columns.
// Columns that don't exist are silently ignored.
func (df *DataFrame) Select(columns ...string) *DataFrame {
	var picked []*Series
	for _, name := range columns {
		if s := df.ColumnByName(name); s != nil {
			picked = append(picked, s)
		}
	}
	out, _ := NewDataFrame(picked...)
	return out
}

// Head returns a new DataFrame with the first n rows.
func (df *DataFrame) Head(n int) *DataFrame {
	if n > df.height {
		n = df.height
	}
	if n < 0 {
		n = 0
	}
	return df.Slice(0, n)
}

// Slice returns a new DataFrame with rows from start to end (exclusive).
func (df *DataFrame) Slice(start, end int) *DataFrame {
	cols := make([]*Series, len(df.columns))
	for i, s := range df.columns {
		cols[i] = s.Slice(start, end)
	}
	out, _ := NewDataFrame(cols...)
	if len(cols) == 0 {
		out.height = 0
	}
	return out
}

// Take gathers rows by index; negative indices produce null rows.
func (df *DataFrame) Take(indices []int) *DataFrame {
	cols := make([]*Series, len(df.columns))
	for i, s := range df.columns {
		cols[i] = s.Take(s.Name(), indices)
	}
	out, _ := NewDataFrame(cols...)
	out.height = len(indices)
	return out
}
