package semjoin

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXReadOptions configures Excel reading behavior
type XLSXReadOptions struct {
	Sheet       string           // Sheet to read (default: first sheet)
	HasHeader   bool             // First non-empty row is header (default true)
	ColumnTypes map[string]DType // Force column types
	InferTypes  bool             // Auto-detect types (default true)
	NullValues  []string         // Strings to treat as null
	MaxRows     int              // Max rows to read (0 = unlimited)
}

// DefaultXLSXReadOptions returns default Excel reading options
func DefaultXLSXReadOptions() XLSXReadOptions {
	return XLSXReadOptions{
		HasHeader:  true,
		InferTypes: true,
		NullValues: DefaultCSVReadOptions().NullValues,
	}
}

// ReadXLSX reads one sheet of an Excel workbook into a DataFrame
func ReadXLSX(path string, opts ...XLSXReadOptions) (*DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ReadXLSXFromReader(f, opts...)
}

// ReadXLSXFromReader reads one sheet of an Excel workbook from an io.Reader.
// Cells are read as formatted text and typed the same way CSV cells are.
func ReadXLSXFromReader(r io.Reader, opts ...XLSXReadOptions) (*DataFrame, error) {
	opt := DefaultXLSXReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opt.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	var headers []string
	var records [][]string
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if headers == nil && opt.HasHeader {
			headers = make([]string, len(row))
			for i, h := range row {
				headers[i] = strings.TrimSpace(h)
			}
			continue
		}
		if opt.MaxRows > 0 && len(records) >= opt.MaxRows {
			break
		}
		records = append(records, row)
	}

	if headers == nil {
		width := 0
		for _, rec := range records {
			width = maxInt(width, len(rec))
		}
		headers = make([]string, width)
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}
	for i, h := range headers {
		if h == "" {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
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

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// XLSXWriteOptions configures Excel writing behavior
type XLSXWriteOptions struct {
	Sheet string // Sheet name (default "Sheet1")
}

// DefaultXLSXWriteOptions returns default Excel writing options
func DefaultXLSXWriteOptions() XLSXWriteOptions {
	return XLSXWriteOptions{Sheet: "Sheet1"}
}

// WriteXLSX writes a DataFrame to an Excel workbook
func (df *DataFrame) WriteXLSX(path string, opts ...XLSXWriteOptions) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return df.WriteXLSXToWriter(out, opts...)
}

// WriteXLSXToWriter writes a DataFrame as a single-sheet workbook to w.
// The header occupies the first row; nulls are left as empty cells.
func (df *DataFrame) WriteXLSXToWriter(w io.Writer, opts ...XLSXWriteOptions) error {
	opt := DefaultXLSXWriteOptions()
	if len(opts) > 0 && opts[0].Sheet != "" {
		opt = opts[0]
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if opt.Sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", opt.Sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	header := make([]any, df.Width())
	for j, name := range df.Columns() {
		header[j] = name
	}
	if err := f.SetSheetRow(opt.Sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]any, df.Width())
	for i := 0; i < df.Height(); i++ {
		for j, col := range df.columns {
			row[j] = col.Get(i)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(opt.Sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
