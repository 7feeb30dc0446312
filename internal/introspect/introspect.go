// Package introspect issues metadata queries against a live database
// connection and returns raw table, column, index, and foreign key
// descriptors. One implementation exists per supported dialect; SQLite is the
// reference implementation, PostgreSQL is partial.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// TableRef identifies a discoverable table.
type TableRef struct {
	Name   string
	Schema string
}

// Introspector is the per-dialect metadata contract. Each call is
// independently fallible: a failure on one table must not abort discovery of
// others, so callers degrade a failed facet to empty metadata.
type Introspector interface {
	// Ping verifies the connection can answer a basic liveness probe.
	Ping(ctx context.Context) error
	ListTables(ctx context.Context) ([]TableRef, error)
	ListColumns(ctx context.Context, table string) ([]schema.ColumnInfo, error)
	ListIndexes(ctx context.Context, table string) ([]schema.IndexInfo, error)
	ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKeyInfo, error)
	ListViews(ctx context.Context) ([]schema.ViewInfo, error)
	Dialect() string
}

// New selects an introspector for the given dialect.
func New(dialect string, db *sql.DB) (Introspector, error) {
	switch strings.ToLower(dialect) {
	case "sqlite", "sqlite3":
		return NewSQLite(db), nil
	case "postgres", "postgresql":
		return NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q (supported: sqlite, postgres)", dialect)
	}
}

// parseTypeParams extracts length or precision/scale from a native type
// string such as "VARCHAR(255)" or "DECIMAL(10,2)" and applies them to the
// column. Types without parameters are left untouched.
func parseTypeParams(col *schema.ColumnInfo) {
	open := strings.IndexByte(col.Type, '(')
	if open < 0 {
		return
	}
	closing := strings.IndexByte(col.Type[open:], ')')
	if closing < 0 {
		return
	}
	params := col.Type[open+1 : open+closing]

	parts := strings.Split(params, ",")
	switch len(parts) {
	case 1:
		if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			col.MaxLength = &n
		}
	case 2:
		p, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		s, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 == nil && err2 == nil {
			col.Precision = &p
			col.Scale = &s
		}
	}
}
