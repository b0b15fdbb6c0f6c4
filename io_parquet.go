package semjoin

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// parquetColumnOrderKey stores the DataFrame column order in file metadata.
// Parquet groups order their fields by name.
const parquetColumnOrderKey = "semjoin.columns"

// ParquetReadOptions configures Parquet reading behavior
type ParquetReadOptions struct {
	Columns []string // Only read these columns (nil = all)
	MaxRows int      // Max rows to read (0 = unlimited)
}

// DefaultParquetReadOptions returns default Parquet reading options
func DefaultParquetReadOptions() ParquetReadOptions {
	return ParquetReadOptions{}
}

// ReadParquet reads a Parquet file into a DataFrame
func ReadParquet(path string, opts ...ParquetReadOptions) (*DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return ReadParquetFromReader(f, stat.Size(), opts...)
}

// colBuilder holds data while reading parquet columns
type colBuilder struct {
	dtype   DType
	tsScale time.Duration
	f64     []float64
	i64     []int64
	b       []bool
	str     []string
	ts      []time.Time
	valid   []bool
	nulls   int
}

func (b *colBuilder) appendNull() {
	switch b.dtype {
	case Float64:
		b.f64 = append(b.f64, 0)
	case Int64:
		b.i64 = append(b.i64, 0)
	case Bool:
		b.b = append(b.b, false)
	case String:
		b.str = append(b.str, "")
	case DateTime:
		b.ts = append(b.ts, time.Time{})
	}
	b.valid = append(b.valid, false)
	b.nulls++
}

func (b *colBuilder) append(val parquet.Value) {
	if val.IsNull() {
		b.appendNull()
		return
	}

	switch b.dtype {
	case Float64:
		if val.Kind() == parquet.Float {
			b.f64 = append(b.f64, float64(val.Float()))
		} else {
			b.f64 = append(b.f64, val.Double())
		}
	case Int64:
		if val.Kind() == parquet.Int32 {
			b.i64 = append(b.i64, int64(val.Int32()))
		} else {
			b.i64 = append(b.i64, val.Int64())
		}
	case Bool:
		b.b = append(b.b, val.Boolean())
	case String:
		b.str = append(b.str, string(val.ByteArray()))
	case DateTime:
		b.ts = append(b.ts, time.Unix(0, val.Int64()*int64(b.tsScale)).UTC())
	}
	b.valid = append(b.valid, true)
}

func (b *colBuilder) merge(other *colBuilder) {
	b.f64 = append(b.f64, other.f64...)
	b.i64 = append(b.i64, other.i64...)
	b.b = append(b.b, other.b...)
	b.str = append(b.str, other.str...)
	b.ts = append(b.ts, other.ts...)
	b.valid = append(b.valid, other.valid...)
	b.nulls += other.nulls
}

func (b *colBuilder) truncate(n int) {
	if len(b.valid) <= n {
		return
	}
	switch b.dtype {
	case Float64:
		b.f64 = b.f64[:n]
	case Int64:
		b.i64 = b.i64[:n]
	case Bool:
		b.b = b.b[:n]
	case String:
		b.str = b.str[:n]
	case DateTime:
		b.ts = b.ts[:n]
	}
	b.valid = b.valid[:n]
	b.nulls = 0
	for _, ok := range b.valid {
		if !ok {
			b.nulls++
		}
	}
}

func (b *colBuilder) series(name string) (*Series, error) {
	var s *Series
	switch b.dtype {
	case Float64:
		s = NewSeriesFloat64(name, b.f64)
	case Int64:
		s = NewSeriesInt64(name, b.i64)
	case Bool:
		s = NewSeriesBool(name, b.b)
	case DateTime:
		s = NewSeriesDateTime(name, b.ts)
	default:
		s = NewSeriesString(name, b.str)
	}
	if b.nulls == 0 {
		return s, nil
	}
	return s.WithNulls(b.valid)
}

// ReadParquetFromReader reads Parquet data from an io.ReaderAt into a DataFrame
func ReadParquetFromReader(r io.ReaderAt, size int64, opts ...ParquetReadOptions) (*DataFrame, error) {
	opt := DefaultParquetReadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	schema := pf.Schema()

	var colNames []string
	switch {
	case len(opt.Columns) > 0:
		colNames = opt.Columns
	default:
		if order, ok := pf.Lookup(parquetColumnOrderKey); ok && order != "" {
			colNames = strings.Split(order, "\x1f")
		} else {
			for _, f := range schema.Fields() {
				colNames = append(colNames, f.Name())
			}
		}
	}

	colIndices := make([]int, len(colNames))
	template := make([]colBuilder, len(colNames))
	for i, name := range colNames {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("column '%s' not found in parquet file", name)
		}
		colIndices[i] = leaf.ColumnIndex
		template[i].dtype, template[i].tsScale = parquetLeafToDType(leaf.Node)
	}

	rowGroups := pf.RowGroups()
	workers := 1
	if cfg := DefaultParallelConfig(); cfg.shouldParallelize(int(pf.NumRows())) {
		workers = minInt(cfg.numWorkers(), len(rowGroups))
	}

	// One batch per row group; results come back in file order.
	groups, _, err := collectBatches(context.Background(), len(rowGroups), 1, workers,
		func(_ context.Context, m Morsel) ([][]colBuilder, error) {
			builders, err := readRowGroup(rowGroups[m.Start], colIndices, template, opt.MaxRows)
			if err != nil {
				return nil, fmt.Errorf("row group %d: %w", m.Start, err)
			}
			return [][]colBuilder{builders}, nil
		})
	if err != nil {
		return nil, err
	}

	columns := make([]*Series, len(colNames))
	for i, name := range colNames {
		merged := colBuilder{dtype: template[i].dtype}
		for _, g := range groups {
			merged.merge(&g[i])
		}
		if opt.MaxRows > 0 {
			merged.truncate(opt.MaxRows)
		}
		s, err := merged.series(name)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		columns[i] = s
	}
	return NewDataFrame(columns...)
}

// readRowGroup reads up to maxRows rows (0 = all) of one row group.
func readRowGroup(rg parquet.RowGroup, colIndices []int, template []colBuilder, maxRows int) ([]colBuilder, error) {
	builders := make([]colBuilder, len(template))
	for i := range builders {
		builders[i].dtype = template[i].dtype
		builders[i].tsScale = template[i].tsScale
	}

	rows := rg.Rows()
	defer rows.Close()

	rowBuf := make([]parquet.Row, 1000)
	rowCount := 0
	for maxRows <= 0 || rowCount < maxRows {
		n, err := rows.ReadRows(rowBuf)
		for _, row := range rowBuf[:n] {
			if maxRows > 0 && rowCount >= maxRows {
				break
			}
			for i, colIdx := range colIndices {
				if colIdx < len(row) {
					builders[i].append(row[colIdx])
				} else {
					builders[i].appendNull()
				}
			}
			rowCount++
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
		if err == io.EOF || n == 0 {
			break
		}
	}
	return builders, nil
}

// parquetLeafToDType maps a leaf node to a DType. For timestamps it also
// returns the duration of one stored unit.
func parquetLeafToDType(node parquet.Node) (DType, time.Duration) {
	t := node.Type()
	if t == nil {
		return String, 0
	}
	if lt := t.LogicalType(); lt != nil && lt.Timestamp != nil {
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			return DateTime, time.Millisecond
		case lt.Timestamp.Unit.Nanos != nil:
			return DateTime, time.Nanosecond
		default:
			return DateTime, time.Microsecond
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return Bool, 0
	case parquet.Int32, parquet.Int64:
		return Int64, 0
	case parquet.Float, parquet.Double:
		return Float64, 0
	default:
		return String, 0
	}
}

// ParquetWriteOptions configures Parquet writing behavior
type ParquetWriteOptions struct {
	Compression  string // "snappy", "gzip", "zstd", "none" (default "snappy")
	RowGroupSize int    // Rows per row group (default 1000000)
}

// DefaultParquetWriteOptions returns default Parquet writing options
func DefaultParquetWriteOptions() ParquetWriteOptions {
	return ParquetWriteOptions{
		Compression:  "snappy",
		RowGroupSize: 1000000,
	}
}

// WriteParquet writes a DataFrame to a Parquet file
func (df *DataFrame) WriteParquet(path string, opts ...ParquetWriteOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return df.WriteParquetToWriter(f, opts...)
}

// WriteParquetToWriter writes a DataFrame to an io.Writer. Every column is
// written as an optional leaf so nulls survive the round trip.
func (df *DataFrame) WriteParquetToWriter(w io.Writer, opts ...ParquetWriteOptions) error {
	opt := DefaultParquetWriteOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	if df.Width() == 0 {
		return nil
	}

	group := make(parquet.Group)
	for _, col := range df.columns {
		group[col.Name()] = parquet.Optional(dtypeToParquetNode(col.DType()))
	}
	schema := parquet.NewSchema("dataframe", group)

	leafIdx := make([]int, df.Width())
	for j, col := range df.columns {
		leaf, ok := schema.Lookup(col.Name())
		if !ok {
			return fmt.Errorf("column %s missing from parquet schema", col.Name())
		}
		leafIdx[j] = leaf.ColumnIndex
	}

	writerOpts := []parquet.WriterOption{
		schema,
		parquet.KeyValueMetadata(parquetColumnOrderKey, strings.Join(df.Columns(), "\x1f")),
	}
	switch opt.Compression {
	case "snappy":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Snappy))
	case "gzip":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Gzip))
	case "zstd":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Zstd))
	}

	pw := parquet.NewWriter(w, writerOpts...)

	height := df.Height()
	rowGroupSize := opt.RowGroupSize
	if rowGroupSize <= 0 {
		rowGroupSize = DefaultParquetWriteOptions().RowGroupSize
	}

	// Small batches keep memory bounded with wide string columns
	batchSize := 1000
	rows := make([]parquet.Row, 0, batchSize)
	flush := func(at int) error {
		if len(rows) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(rows); err != nil {
			return fmt.Errorf("failed to write rows at %d: %w", at, err)
		}
		rows = rows[:0]
		return nil
	}

	for i := 0; i < height; i++ {
		row := make(parquet.Row, df.Width())
		for j, col := range df.columns {
			row[leafIdx[j]] = toParquetValue(col.Get(i), col.DType(), leafIdx[j])
		}
		rows = append(rows, row)

		if len(rows) >= batchSize {
			if err := flush(i - len(rows) + 1); err != nil {
				return err
			}
		}
		if (i+1)%rowGroupSize == 0 && i+1 < height {
			if err := flush(i - len(rows) + 1); err != nil {
				return err
			}
			if err := pw.Flush(); err != nil {
				return fmt.Errorf("failed to flush row group: %w", err)
			}
		}
	}
	if err := flush(height - len(rows)); err != nil {
		return err
	}

	return pw.Close()
}

func dtypeToParquetNode(dtype DType) parquet.Node {
	switch dtype {
	case Float64:
		return parquet.Leaf(parquet.DoubleType)
	case Int64:
		return parquet.Leaf(parquet.Int64Type)
	case Bool:
		return parquet.Leaf(parquet.BooleanType)
	case DateTime:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

// toParquetValue converts a cell to a leveled parquet value of an optional
// column.
func toParquetValue(v any, dtype DType, column int) parquet.Value {
	if v == nil {
		return parquet.NullValue().Level(0, 0, column)
	}

	var pv parquet.Value
	switch dtype {
	case Float64:
		pv = parquet.DoubleValue(v.(float64))
	case Int64:
		pv = parquet.Int64Value(v.(int64))
	case Bool:
		pv = parquet.BooleanValue(v.(bool))
	case DateTime:
		pv = parquet.Int64Value(v.(time.Time).UnixMicro())
	default:
		pv = parquet.ByteArrayValue([]byte(formatValue(v)))
	}
	return pv.Level(0, 1, column)
}
