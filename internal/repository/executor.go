// Package repository synthesizes type-safe data access objects from
// discovered table metadata: CRUD, mechanically generated column finders, and
// relationship loading with batched, N+1-avoiding queries. SQL execution is
// delegated to an Executor, the narrow statement-execution collaborator this
// engine sits on top of.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Entity is one database row, keyed by column name.
type Entity = map[string]interface{}

// Result reports the outcome of a statement that does not return rows.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Executor is the statement-execution collaborator. It compiles and runs
// parameterized SQL against application tables and reports per-statement
// affected-row counts. Timeouts and retries, if any, are its concern, not
// this package's.
type Executor interface {
	Query(ctx context.Context, query string, args ...interface{}) ([]Entity, error)
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Observer is notified after each executed statement. Used to route queries
// through the performance analyzer; a nil observer disables observation.
type Observer interface {
	Observe(query string, duration time.Duration, rowCount int)
}

// SQLExecutor is the default Executor over database/sql. Every statement is
// timed and reported to the observer after execution.
type SQLExecutor struct {
	db       *sql.DB
	observer Observer
}

// NewSQLExecutor wraps an open connection. observer may be nil.
func NewSQLExecutor(db *sql.DB, observer Observer) *SQLExecutor {
	return &SQLExecutor{db: db, observer: observer}
}

// Query runs a read statement and scans all rows into entities.
func (e *SQLExecutor) Query(ctx context.Context, query string, args ...interface{}) ([]Entity, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		e.observe(query, time.Since(start), 0)
		return nil, err
	}
	defer rows.Close()

	results, err := scanRows(rows)
	e.observe(query, time.Since(start), len(results))
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Exec runs a write statement and reports affected rows.
func (e *SQLExecutor) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	start := time.Now()
	res, err := e.db.ExecContext(ctx, query, args...)
	e.observe(query, time.Since(start), 0)
	if err != nil {
		return Result{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read affected row count: %w", err)
	}
	// Not every driver supports LastInsertId; its absence is not an error.
	lastID, _ := res.LastInsertId()
	return Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

func (e *SQLExecutor) observe(query string, duration time.Duration, rowCount int) {
	if e.observer != nil {
		e.observer.Observe(query, duration, rowCount)
	}
}

// scanRows scans all rows into entities, converting []byte to string for
// readability of text columns.
func scanRows(rows *sql.Rows) ([]Entity, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Entity
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Entity, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		results = append(results, record)
	}

	return results, rows.Err()
}

// Dialect carries the per-engine SQL spelling differences the repository
// needs: placeholder style and whether INSERT ... RETURNING is available.
type Dialect struct {
	Name              string
	SupportsReturning bool
}

// DialectFor returns the dialect descriptor for a dialect name.
func DialectFor(name string) Dialect {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Dialect{Name: "postgres", SupportsReturning: true}
	default:
		return Dialect{Name: strings.ToLower(name)}
	}
}

// Placeholder returns the 1-based parameter placeholder for this dialect.
func (d Dialect) Placeholder(n int) string {
	if d.Name == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns a comma-separated list of count placeholders starting
// at the 1-based offset start.
func (d Dialect) Placeholders(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = d.Placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

// quoteIdent quotes a SQL identifier. Double-quote quoting is shared by the
// supported dialects.
func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}
