package semjoin

import "fmt"

// DType represents the physical data type of a Series
type DType uint8

const (
	// Numeric types
	Float64 DType = iota
	Int64

	// Other types
	Bool
	String
	DateTime

	// Null type (all values missing)
	Null
)

// String returns the string representation of the DType
func (d DType) String() string {
	switch d {
	case Float64:
		return "Float64"
	case Int64:
		return "Int64"
	case Bool:
		return "Bool"
	case String:
		return "String"
	case DateTime:
		return "DateTime"
	case Null:
		return "Null"
	default:
		return fmt.Sprintf("Unknown(%d)", d)
	}
}

// IsNumeric returns true if the dtype is a numeric type
func (d DType) IsNumeric() bool {
	return d == Float64 || d == Int64
}

// Size returns the size in bytes of the dtype
func (d DType) Size() int {
	switch d {
	case Float64, Int64, DateTime:
		return 8
	case Bool:
		return 1
	case String:
		return -1 // Variable size
	default:
		return 0
	}
}

// ============================================================================
// Logical (statistical) data types
// ============================================================================

// DataType is the logical type the statistical analyzer infers from the
// values of a column, independent of how the column is stored.
type DataType string

const (
	DataTypeEmpty   DataType = "empty"
	DataTypeInteger DataType = "integer"
	DataTypeFloat   DataType = "float"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
	DataTypeEmail   DataType = "email"
	DataTypePhone   DataType = "phone"
	DataTypeUUID    DataType = "uuid"
	DataTypeString  DataType = "string"
	DataTypeMixed   DataType = "mixed"
)

// IsNumeric reports whether the logical type holds numbers
func (d DataType) IsNumeric() bool {
	return d == DataTypeInteger || d == DataTypeFloat
}

// logicalFromDType maps a storage type to the logical type used when a view
// reports dtypes but the analyzer has not been run.
func logicalFromDType(d DType) DataType {
	switch d {
	case Float64:
		return DataTypeFloat
	case Int64:
		return DataTypeInteger
	case Bool:
		return DataTypeBoolean
	case DateTime:
		return DataTypeDate
	case Null:
		return DataTypeEmpty
	default:
		return DataTypeString
	}
}
