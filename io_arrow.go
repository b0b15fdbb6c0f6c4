package semjoin

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ============================================================================
// Arrow Export
// ============================================================================

// ToArrow exports a DataFrame to an Arrow Record.
// The caller is responsible for calling Release() on the returned Record.
func (df *DataFrame) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	fields := make([]arrow.Field, df.Width())
	for i, col := range df.columns {
		arrowType, err := dtypeToArrowType(col.DType())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name(), err)
		}
		fields[i] = arrow.Field{Name: col.Name(), Type: arrowType, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	arrays := make([]arrow.Array, df.Width())
	for i, col := range df.columns {
		arr, err := seriesToArrowArray(col, mem)
		if err != nil {
			for j := 0; j < i; j++ {
				arrays[j].Release()
			}
			return nil, fmt.Errorf("column %s: %w", col.Name(), err)
		}
		arrays[i] = arr
	}

	record := array.NewRecord(schema, arrays, int64(df.Height()))

	// Record retains the arrays
	for _, arr := range arrays {
		arr.Release()
	}
	return record, nil
}

// ToArrowTable exports a DataFrame to an Arrow Table.
// The caller is responsible for calling Release() on the returned Table.
func (df *DataFrame) ToArrowTable(mem memory.Allocator) (arrow.Table, error) {
	record, err := df.ToArrow(mem)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	return array.NewTableFromRecords(record.Schema(), []arrow.Record{record}), nil
}

func dtypeToArrowType(dtype DType) (arrow.DataType, error) {
	switch dtype {
	case Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case String:
		return arrow.BinaryTypes.String, nil
	case DateTime:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case Null:
		return arrow.Null, nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// validMask returns the series validity in the form Arrow builders take.
func validMask(s *Series) []bool {
	if s.NullCount() == 0 {
		return nil
	}
	mask := make([]bool, s.Len())
	for i := range mask {
		mask[i] = s.IsValid(i)
	}
	return mask
}

func seriesToArrowArray(s *Series, mem memory.Allocator) (arrow.Array, error) {
	valid := validMask(s)

	switch s.DType() {
	case Float64:
		builder := array.NewFloat64Builder(mem)
		defer builder.Release()
		builder.AppendValues(s.Float64(), valid)
		return builder.NewArray(), nil

	case Int64:
		builder := array.NewInt64Builder(mem)
		defer builder.Release()
		builder.AppendValues(s.Int64(), valid)
		return builder.NewArray(), nil

	case Bool:
		builder := array.NewBooleanBuilder(mem)
		defer builder.Release()
		builder.AppendValues(s.Bool(), valid)
		return builder.NewArray(), nil

	case String:
		builder := array.NewStringBuilder(mem)
		defer builder.Release()
		builder.AppendValues(s.Strings(), valid)
		return builder.NewArray(), nil

	case DateTime:
		builder := array.NewTimestampBuilder(mem, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
		defer builder.Release()
		for i, t := range s.Times() {
			if valid != nil && !valid[i] {
				builder.AppendNull()
				continue
			}
			builder.Append(arrow.Timestamp(t.UnixMicro()))
		}
		return builder.NewArray(), nil

	case Null:
		return array.NewNull(s.Len()), nil

	default:
		return nil, fmt.Errorf("unsupported dtype: %s", s.DType())
	}
}

// ============================================================================
// Arrow Import
// ============================================================================

// NewDataFrameFromArrow creates a DataFrame from an Arrow Record.
// The data is copied into Go memory; the record may be released afterwards.
func NewDataFrameFromArrow(record arrow.Record) (*DataFrame, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}

	schema := record.Schema()
	columns := make([]*Series, record.NumCols())
	for i := 0; i < int(record.NumCols()); i++ {
		name := schema.Field(i).Name
		s, err := arrowArrayToSeries(name, record.Column(i))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		columns[i] = s
	}
	return NewDataFrame(columns...)
}

// NewDataFrameFromArrowTable creates a DataFrame from an Arrow Table,
// concatenating the chunks of each column.
func NewDataFrameFromArrowTable(table arrow.Table) (*DataFrame, error) {
	if table == nil {
		return nil, fmt.Errorf("table is nil")
	}

	schema := table.Schema()
	columns := make([]*Series, table.NumCols())
	for i := 0; i < int(table.NumCols()); i++ {
		name := schema.Field(i).Name
		chunks := table.Column(i).Data().Chunks()

		if len(chunks) == 1 {
			s, err := arrowArrayToSeries(name, chunks[0])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			columns[i] = s
			continue
		}

		values := make([]any, 0, table.NumRows())
		for _, chunk := range chunks {
			s, err := arrowArrayToSeries(name, chunk)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			values = append(values, s.Values()...)
		}
		columns[i] = NewSeriesFromValues(name, values)
	}
	return NewDataFrame(columns...)
}

// arrowArrayToSeries copies an Arrow array into a Series. Narrow integer
// and float types are widened to Int64 and Float64.
func arrowArrayToSeries(name string, arr arrow.Array) (*Series, error) {
	n := arr.Len()
	var valid []bool
	if arr.NullN() > 0 {
		valid = make([]bool, n)
		for i := range valid {
			valid[i] = arr.IsValid(i)
		}
	}

	var s *Series
	switch a := arr.(type) {
	case *array.Float64:
		s = NewSeriesFloat64(name, append([]float64(nil), a.Float64Values()...))
	case *array.Float32:
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(a.Value(i))
		}
		s = NewSeriesFloat64(name, data)
	case *array.Int64:
		s = NewSeriesInt64(name, append([]int64(nil), a.Int64Values()...))
	case *array.Int32:
		data := make([]int64, n)
		for i := range data {
			data[i] = int64(a.Value(i))
		}
		s = NewSeriesInt64(name, data)
	case *array.Uint32:
		data := make([]int64, n)
		for i := range data {
			data[i] = int64(a.Value(i))
		}
		s = NewSeriesInt64(name, data)
	case *array.Uint64:
		data := make([]int64, n)
		for i := range data {
			data[i] = int64(a.Value(i))
		}
		s = NewSeriesInt64(name, data)
	case *array.Boolean:
		data := make([]bool, n)
		for i := range data {
			data[i] = a.Value(i)
		}
		s = NewSeriesBool(name, data)
	case *array.String:
		data := make([]string, n)
		for i := range data {
			if a.IsValid(i) {
				data[i] = a.Value(i)
			}
		}
		s = NewSeriesString(name, data)
	case *array.LargeString:
		data := make([]string, n)
		for i := range data {
			if a.IsValid(i) {
				data[i] = a.Value(i)
			}
		}
		s = NewSeriesString(name, data)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		data := make([]time.Time, n)
		for i := range data {
			if a.IsValid(i) {
				data[i] = a.Value(i).ToTime(unit).UTC()
			}
		}
		s = NewSeriesDateTime(name, data)
	case *array.Dictionary:
		dict, ok := a.Dictionary().(*array.String)
		if !ok {
			return nil, fmt.Errorf("unsupported dictionary value type: %s", a.Dictionary().DataType())
		}
		data := make([]string, n)
		for i := range data {
			if a.IsValid(i) {
				data[i] = dict.Value(a.GetValueIndex(i))
			}
		}
		s = NewSeriesString(name, data)
	case *array.Null:
		return NewSeriesNull(name, n), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type: %s", arr.DataType())
	}

	if valid != nil {
		return s.WithNulls(valid)
	}
	return s, nil
}
