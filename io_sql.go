package semjoin

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// SQLReadOptions configures reading query results
type SQLReadOptions struct {
	MaxRows int // Max rows to read (0 = unlimited)
}

// ReadSQL runs query against db and collects the result set into a
// DataFrame. Column types follow the driver's scanned values; []byte
// becomes String. The caller registers the driver (sqlite, pgx).
func ReadSQL(ctx context.Context, db *sql.DB, query string, args ...any) (*DataFrame, error) {
	return ReadSQLWithOptions(ctx, db, SQLReadOptions{}, query, args...)
}

// ReadSQLWithOptions is ReadSQL with explicit options.
func ReadSQLWithOptions(ctx context.Context, db *sql.DB, opt SQLReadOptions, query string, args ...any) (df *DataFrame, err error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer func() {
		err = multierr.Append(err, rows.Close())
		if err != nil {
			df = nil
		}
	}()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	data := make([][]any, len(names))
	dest := make([]any, len(names))
	for i := range dest {
		dest[i] = new(any)
	}

	for rows.Next() {
		if opt.MaxRows > 0 && len(data) > 0 && len(data[0]) >= opt.MaxRows {
			break
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", rowCount(data), err)
		}
		for i, d := range dest {
			data[i] = append(data[i], sqlScalar(*(d.(*any))))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	columns := make([]*Series, len(names))
	for i, name := range names {
		if data[i] == nil {
			data[i] = []any{}
		}
		columns[i] = NewSeriesFromValues(name, data[i])
	}
	return NewDataFrame(columns...)
}

func rowCount(data [][]any) int {
	if len(data) == 0 {
		return 0
	}
	return len(data[0])
}

// sqlScalar converts a scanned driver value into a cell value.
func sqlScalar(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}
