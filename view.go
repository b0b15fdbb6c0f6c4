package semjoin

// DatasetView is a read-only tabular handle. Implementations must keep the
// data immutable for the duration of a join.
type DatasetView interface {
	// Columns returns the ordered column names.
	Columns() []string

	// Shape returns (rowCount, columnCount).
	Shape() (rows, cols int)

	// GetColumn returns the values of a column in row order.
	// The slice has exactly rowCount elements; nil marks a missing value.
	GetColumn(name string) ([]any, error)
}

// DTyper is implemented by views that know their column storage types.
type DTyper interface {
	DTypes() map[string]DType
}

// viewRows returns the row count of a view.
func viewRows(v DatasetView) int {
	rows, _ := v.Shape()
	return rows
}

func hasColumn(v DatasetView, name string) bool {
	for _, c := range v.Columns() {
		if c == name {
			return true
		}
	}
	return false
}
