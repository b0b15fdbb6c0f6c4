package semjoin

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSVReadOptions configures CSV reading behavior
type CSVReadOptions struct {
	Delimiter   rune             // Field delimiter (default ',')
	HasHeader   bool             // First row is header (default true)
	ColumnNames []string         // Override column names
	ColumnTypes map[string]DType // Force column types
	InferTypes  bool             // Auto-detect types (default true)
	NullValues  []string         // Strings to treat as null
	SkipRows    int              // Skip first N rows
	MaxRows     int              // Max rows to read (0 = unlimited)
	TrimSpace   bool             // Trim whitespace from values
	Comment     rune             // Comment character (skip lines starting with this)
}

// DefaultCSVReadOptions returns default CSV reading options
func DefaultCSVReadOptions() CSVReadOptions {
	return CSVReadOptions{
		Delimiter:  ',',
		HasHeader:  true,
		InferTypes: true,
		NullValues: []string{"", "null", "NULL", "NA", "N/A", "nan", "NaN"},
		TrimSpace:  true,
	}
}

// ReadCSV reads a CSV file into a DataFrame
func ReadCSV(path string, opts ...CSVReadOptions) (*DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ReadCSVFromReader(bufio.NewReader(f), opts...)
}

// ReadCSVFromReader reads CSV data from an io.Reader into a DataFrame
func ReadCSVFromReader(r io.Reader, opts ...CSVReadOptions) (*DataFrame, error) {
	opt := DefaultCSVReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	reader := csv.NewReader(r)
	reader.Comma = opt.Delimiter
	if opt.Comment != 0 {
		reader.Comment = opt.Comment
	}
	reader.TrimLeadingSpace = opt.TrimSpace
	reader.FieldsPerRecord = -1

	for i := 0; i < opt.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, fmt.Errorf("failed to skip row %d: %w", i, err)
		}
	}

	var headers []string
	if opt.HasHeader {
		var err error
		headers, err = reader.Read()
		if err == io.EOF {
			return NewDataFrame()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}
	if len(opt.ColumnNames) > 0 {
		headers = opt.ColumnNames
	}

	var records [][]string
	for rowCount := 0; opt.MaxRows <= 0 || rowCount < opt.MaxRows; rowCount++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowCount, err)
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i := range record {
				headers[i] = fmt.Sprintf("column_%d", i)
			}
		}
		records = append(records, record)
	}

	nulls := make(map[string]bool, len(opt.NullValues))
	for _, nv := range opt.NullValues {
		nulls[nv] = true
	}

	columns := make([]*Series, len(headers))
	for i, name := range headers {
		dtype := String
		if opt.InferTypes {
			dtype = inferColumnType(records, i, nulls)
		}
		if forced, ok := opt.ColumnTypes[name]; ok {
			dtype = forced
		}
		col, err := buildColumn(name, dtype, records, i, nulls)
		if err != nil {
			return nil, fmt.Errorf("failed to build column '%s': %w", name, err)
		}
		columns[i] = col
	}
	return NewDataFrame(columns...)
}

func cell(record []string, colIdx int) string {
	if colIdx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[colIdx])
}

func inferColumnType(records [][]string, colIdx int, nulls map[string]bool) DType {
	hasInt, hasFloat, hasBool, hasString := false, false, false, false

	for _, record := range records {
		val := cell(record, colIdx)
		if nulls[val] {
			continue
		}
		lower := strings.ToLower(val)
		if lower == "true" || lower == "false" {
			hasBool = true
			continue
		}
		if _, err := strconv.ParseInt(val, 10, 64); err == nil {
			hasInt = true
			continue
		}
		if _, err := strconv.ParseFloat(val, 64); err == nil {
			hasFloat = true
			continue
		}
		hasString = true
	}

	// Priority: string > float > int > bool; mixing bools with numbers is a string
	switch {
	case hasString, hasBool && (hasInt || hasFloat):
		return String
	case hasFloat:
		return Float64
	case hasInt:
		return Int64
	case hasBool:
		return Bool
	default:
		return String
	}
}

func buildColumn(name string, dtype DType, records [][]string, colIdx int, nulls map[string]bool) (*Series, error) {
	n := len(records)
	valid := make([]bool, n)
	hasNull := false
	for i, record := range records {
		valid[i] = colIdx < len(record) && !nulls[cell(record, colIdx)]
		if !valid[i] {
			hasNull = true
		}
	}

	var s *Series
	switch dtype {
	case Float64:
		data := make([]float64, n)
		for i, record := range records {
			if !valid[i] {
				continue
			}
			f, err := strconv.ParseFloat(cell(record, colIdx), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: cannot parse '%s' as float64", i, cell(record, colIdx))
			}
			data[i] = f
		}
		s = NewSeriesFloat64(name, data)

	case Int64:
		data := make([]int64, n)
		for i, record := range records {
			if !valid[i] {
				continue
			}
			v, err := strconv.ParseInt(cell(record, colIdx), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: cannot parse '%s' as int64", i, cell(record, colIdx))
			}
			data[i] = v
		}
		s = NewSeriesInt64(name, data)

	case Bool:
		data := make([]bool, n)
		for i, record := range records {
			if valid[i] {
				lower := strings.ToLower(cell(record, colIdx))
				data[i] = lower == "true" || lower == "1" || lower == "yes"
			}
		}
		s = NewSeriesBool(name, data)

	case String:
		data := make([]string, n)
		for i, record := range records {
			if valid[i] {
				data[i] = cell(record, colIdx)
			}
		}
		s = NewSeriesString(name, data)

	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}

	if hasNull {
		return s.WithNulls(valid)
	}
	return s, nil
}

// CSVWriteOptions configures CSV writing behavior
type CSVWriteOptions struct {
	Delimiter   rune   // Field delimiter (default ',')
	WriteHeader bool   // Write header row (default true)
	NullString  string // String to write for null values (default "")
}

// DefaultCSVWriteOptions returns default CSV writing options
func DefaultCSVWriteOptions() CSVWriteOptions {
	return CSVWriteOptions{
		Delimiter:   ',',
		WriteHeader: true,
	}
}

// WriteCSV writes a DataFrame to a CSV file
func (df *DataFrame) WriteCSV(path string, opts ...CSVWriteOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if err := df.WriteCSVToWriter(w, opts...); err != nil {
		return err
	}
	return w.Flush()
}

// WriteCSVToWriter writes a DataFrame to an io.Writer
func (df *DataFrame) WriteCSVToWriter(w io.Writer, opts ...CSVWriteOptions) error {
	opt := DefaultCSVWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	writer := csv.NewWriter(w)
	writer.Comma = opt.Delimiter

	if opt.WriteHeader {
		if err := writer.Write(df.Columns()); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := make([]string, df.Width())
	for i := 0; i < df.Height(); i++ {
		for j, col := range df.columns {
			if val := col.Get(i); val == nil {
				row[j] = opt.NullString
			} else {
				row[j] = formatValue(val)
			}
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
