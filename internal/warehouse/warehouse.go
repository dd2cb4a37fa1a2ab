// Package warehouse executes generated statements against the analytics
// engine and carries the tabular results back to the dispatcher.
package warehouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Engine executes a SQL statement and returns its full tabular result.
type Engine interface {
	Query(ctx context.Context, statement string) (*ResultSet, error)
}

// ResultSet is a fully-materialized query result: named columns and rows of
// stringified values, in result order.
type ResultSet struct {
	Columns []string
	Rows    [][]string
}

// Column returns the index of the named column. The match is
// case-insensitive since warehouses commonly upper-case identifiers.
func (r *ResultSet) Column(name string) (int, bool) {
	for i, col := range r.Columns {
		if strings.EqualFold(col, name) {
			return i, true
		}
	}
	return 0, false
}

// SQLEngine is an Engine over any database/sql driver (the service registers
// the warehouse driver; tests use in-memory SQLite).
type SQLEngine struct {
	db *sqlx.DB
}

// Open connects to the warehouse using the given driver name and DSN.
func Open(driver, dsn string) (*SQLEngine, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	return &SQLEngine{db: db}, nil
}

// NewSQLEngine wraps an existing connection pool.
func NewSQLEngine(db *sqlx.DB) *SQLEngine {
	return &SQLEngine{db: db}
}

// Query runs the statement and materializes every row.
func (e *SQLEngine) Query(ctx context.Context, statement string) (*ResultSet, error) {
	rows, err := e.db.QueryxContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &ResultSet{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate result rows: %w", err)
	}

	return result, nil
}

// Close releases the underlying connection pool.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
