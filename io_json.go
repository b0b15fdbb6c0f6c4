package semjoin

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// JSONFormat specifies the JSON layout
type JSONFormat int

const (
	// JSONRecords is an array of row objects: [{"a":1,"b":2}, {"a":3,"b":4}]
	JSONRecords JSONFormat = iota
	// JSONColumns is an object of column arrays: {"a":[1,3],"b":[2,4]}
	JSONColumns
)

// JSONReadOptions configures JSON reading behavior
type JSONReadOptions struct {
	Format      JSONFormat       // Expected format
	ColumnTypes map[string]DType // Force column types
}

// DefaultJSONReadOptions returns default JSON reading options
func DefaultJSONReadOptions() JSONReadOptions {
	return JSONReadOptions{Format: JSONRecords}
}

// ReadJSON reads a JSON file into a DataFrame
func ReadJSON(path string, opts ...JSONReadOptions) (*DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ReadJSONFromReader(f, opts...)
}

// ReadJSONFromReader reads JSON data from an io.Reader into a DataFrame
func ReadJSONFromReader(r io.Reader, opts ...JSONReadOptions) (*DataFrame, error) {
	opt := DefaultJSONReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewDataFrame()
	}

	var df *DataFrame
	switch opt.Format {
	case JSONRecords:
		df, err = readJSONRecords(data)
	case JSONColumns:
		df, err = readJSONColumns(data)
	default:
		return nil, fmt.Errorf("unknown JSON format: %d", opt.Format)
	}
	if err != nil {
		return nil, err
	}
	return castColumns(df, opt.ColumnTypes)
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func readJSONRecords(data []byte) (*DataFrame, error) {
	var records []map[string]any
	if err := decodeJSON(data, &records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		for k, v := range rec {
			rec[k] = jsonScalar(v)
		}
	}
	return FromRecords(records)
}

func readJSONColumns(data []byte) (*DataFrame, error) {
	var cols map[string][]any
	if err := decodeJSON(data, &cols); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cols))
	for name, values := range cols {
		names = append(names, name)
		for i, v := range values {
			values[i] = jsonScalar(v)
		}
	}
	sort.Strings(names)
	return FromMap(cols, names...)
}

// jsonScalar converts decoded JSON into cell values. Numbers become int64
// when integral, nested values are kept as their JSON text.
func jsonScalar(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return val
	}
}

// castColumns rebuilds the named columns with forced types.
func castColumns(df *DataFrame, types map[string]DType) (*DataFrame, error) {
	if len(types) == 0 {
		return df, nil
	}
	cols := make([]*Series, df.Width())
	for i := range cols {
		col := df.Column(i)
		want, ok := types[col.Name()]
		if !ok || want == col.DType() {
			cols[i] = col
			continue
		}
		cast, err := castSeries(col, want)
		if err != nil {
			return nil, fmt.Errorf("failed to build column '%s': %w", col.Name(), err)
		}
		cols[i] = cast
	}
	return NewDataFrame(cols...)
}

func castSeries(s *Series, dtype DType) (*Series, error) {
	values := s.Values()
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		switch dtype {
		case Float64:
			f, ok := toFloat64(v)
			if !ok {
				return nil, fmt.Errorf("row %d: cannot parse '%v' as float64", i, v)
			}
			out[i] = f
		case Int64:
			n, ok := toInt64(v)
			if !ok {
				return nil, fmt.Errorf("row %d: cannot parse '%v' as int64", i, v)
			}
			out[i] = n
		case String:
			out[i] = formatValue(v)
		case Bool:
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("row %d: cannot parse '%v' as bool", i, v)
			}
			out[i] = b
		default:
			return nil, fmt.Errorf("unsupported dtype: %s", dtype)
		}
	}
	return NewSeriesFromValues(s.Name(), out), nil
}

// JSONWriteOptions configures JSON writing behavior
type JSONWriteOptions struct {
	Format JSONFormat // Output format
	Indent string     // Indent string (default "", no indent)
}

// DefaultJSONWriteOptions returns default JSON writing options
func DefaultJSONWriteOptions() JSONWriteOptions {
	return JSONWriteOptions{Format: JSONRecords}
}

// WriteJSON writes a DataFrame to a JSON file
func (df *DataFrame) WriteJSON(path string, opts ...JSONWriteOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return df.WriteJSONToWriter(f, opts...)
}

// WriteJSONToWriter writes a DataFrame to an io.Writer
func (df *DataFrame) WriteJSONToWriter(w io.Writer, opts ...JSONWriteOptions) error {
	opt := DefaultJSONWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	var data any
	switch opt.Format {
	case JSONRecords:
		records := make([]map[string]any, df.Height())
		for i := range records {
			records[i] = df.Row(i)
		}
		data = records

	case JSONColumns:
		colData := make(map[string][]any, df.Width())
		for _, col := range df.columns {
			colData[col.Name()] = col.Values()
		}
		data = colData

	default:
		return fmt.Errorf("unknown JSON format: %d", opt.Format)
	}

	encoder := json.NewEncoder(w)
	if opt.Indent != "" {
		encoder.SetIndent("", opt.Indent)
	}
	return encoder.Encode(data)
}
