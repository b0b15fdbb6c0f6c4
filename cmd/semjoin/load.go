package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/multierr"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	semjoin "github.com/kneelinghorse/semantic-ds-toolkit-sub001"
)

// sqlSource splits a SQL source into driver name and DSN.
func sqlSource(src string) (driver, dsn string, ok bool) {
	switch {
	case strings.HasPrefix(src, "sqlite:"):
		return "sqlite", strings.TrimPrefix(src, "sqlite:"), true
	case strings.HasPrefix(src, "postgres://"), strings.HasPrefix(src, "postgresql://"):
		return "pgx", src, true
	default:
		return "", "", false
	}
}

// loadDataset reads a file by extension, or runs query against a SQL
// source.
func loadDataset(ctx context.Context, src, query string) (*semjoin.DataFrame, error) {
	if driver, dsn, ok := sqlSource(src); ok {
		if query == "" {
			return nil, fmt.Errorf("%s: a query is required for SQL sources", src)
		}
		return loadSQL(ctx, driver, dsn, query)
	}

	switch ext := strings.ToLower(filepath.Ext(src)); ext {
	case ".csv":
		return semjoin.ReadCSV(src)
	case ".tsv":
		opts := semjoin.DefaultCSVReadOptions()
		opts.Delimiter = '\t'
		return semjoin.ReadCSV(src, opts)
	case ".json":
		return semjoin.ReadJSON(src)
	case ".parquet":
		return semjoin.ReadParquet(src)
	case ".xlsx":
		return semjoin.ReadXLSX(src)
	default:
		return nil, fmt.Errorf("%s: unsupported input format %q", src, ext)
	}
}

func loadSQL(ctx context.Context, driver, dsn, query string) (df *semjoin.DataFrame, err error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	defer func() {
		err = multierr.Append(err, db.Close())
		if err != nil {
			df = nil
		}
	}()
	return semjoin.ReadSQL(ctx, db, query)
}

// writeDataset writes df to path, choosing the format by extension.
func writeDataset(df *semjoin.DataFrame, path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return df.WriteCSV(path)
	case ".json":
		return df.WriteJSON(path)
	case ".parquet":
		return df.WriteParquet(path)
	case ".xlsx":
		return df.WriteXLSX(path)
	default:
		return fmt.Errorf("%s: unsupported output format %q", path, ext)
	}
}
