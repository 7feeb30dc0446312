package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// SQLite is the reference introspector. All metadata comes from the
// sqlite_master catalog and the table_info/index_list/index_info/
// foreign_key_list pragmas.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a SQLite introspector over an open connection.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Dialect returns the dialect name.
func (s *SQLite) Dialect() string { return "sqlite" }

// Ping verifies the connection is live and the catalog is readable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("sqlite liveness probe failed: %w", err)
	}
	return nil
}

// ListTables returns all user tables, excluding SQLite's internal tables.
func (s *SQLite) ListTables(ctx context.Context) ([]TableRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableRef
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, TableRef{Name: name})
	}
	return tables, rows.Err()
}

// ListColumns returns the columns of a table in declaration order.
//
// Auto-increment detection uses a three-tier heuristic, in priority order:
//  1. the table's DDL declares AUTOINCREMENT on a single-column integer
//     primary key;
//  2. a single-column integer primary key without the keyword, which SQLite
//     silently aliases to the rowid;
//  3. no declared primary key at all, in which case the implicit rowid is the
//     effective key and a synthetic rowid column is appended.
func (s *SQLite) ListColumns(ctx context.Context, table string) ([]schema.ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", pq.QuoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []schema.ColumnInfo
	var pkColumns []string
	for rows.Next() {
		var cid, notNull, pkOrder int
		var name, colType string
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pkOrder); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}

		col := schema.ColumnInfo{
			Name:         name,
			Type:         colType,
			Nullable:     notNull == 0 && pkOrder == 0,
			IsPrimaryKey: pkOrder > 0,
		}
		if defaultValue.Valid {
			v := defaultValue.String
			col.Default = &v
		}
		parseTypeParams(&col)

		if pkOrder > 0 {
			pkColumns = append(pkColumns, name)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(pkColumns) == 1:
		for i := range columns {
			if columns[i].Name != pkColumns[0] {
				continue
			}
			if !isIntegerType(columns[i].Type) {
				break
			}
			// Tier 1: explicit AUTOINCREMENT keyword in the source DDL.
			declared, err := s.hasAutoincrementKeyword(ctx, table)
			if err != nil {
				return nil, err
			}
			// Tier 2: a plain INTEGER PRIMARY KEY is a rowid alias and
			// auto-increments without the keyword.
			columns[i].IsAutoIncrement = declared || strings.EqualFold(strings.TrimSpace(columns[i].Type), "INTEGER")
			break
		}
	case len(pkColumns) == 0:
		// Tier 3: no declared key means the implicit rowid is the
		// effective, auto-incrementing key.
		columns = append(columns, schema.ColumnInfo{
			Name:            "rowid",
			Type:            "INTEGER",
			IsPrimaryKey:    true,
			IsAutoIncrement: true,
		})
	}

	return columns, nil
}

// hasAutoincrementKeyword checks the table's source DDL for the AUTOINCREMENT
// keyword.
func (s *SQLite) hasAutoincrementKeyword(ctx context.Context, table string) (bool, error) {
	var ddl sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&ddl)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to read DDL of %s: %w", table, err)
	}
	return ddl.Valid && strings.Contains(strings.ToUpper(ddl.String), "AUTOINCREMENT"), nil
}

// ListIndexes returns the table's indexes, including those backing UNIQUE
// constraints. The index implementing the primary key is omitted since the
// key is reported through the column descriptors.
func (s *SQLite) ListIndexes(ctx context.Context, table string) ([]schema.IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", pq.QuoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	defer rows.Close()

	type indexRow struct {
		name   string
		unique bool
	}
	var indexRows []indexRow
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", table, err)
		}
		if origin == "pk" {
			continue
		}
		indexRows = append(indexRows, indexRow{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []schema.IndexInfo
	for _, ir := range indexRows {
		columns, err := s.indexColumns(ctx, ir.name)
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			continue // expression index, no plain columns to report
		}
		indexes = append(indexes, schema.IndexInfo{
			Name:    ir.name,
			Columns: columns,
			Unique:  ir.unique,
		})
	}
	return indexes, nil
}

// indexColumns returns an index's columns in index order.
func (s *SQLite) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", pq.QuoteIdentifier(index)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of index %s: %w", index, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan column of index %s: %w", index, err)
		}
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, rows.Err()
}

// ListForeignKeys returns the table's foreign keys. SQLite does not name
// foreign key constraints, so names are synthesized from the table and
// source column. A NULL referenced column means the constraint targets the
// referenced table's primary key, reported here as "id".
func (s *SQLite) ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKeyInfo, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", pq.QuoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var fks []schema.ForeignKeyInfo
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString

		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}

		refColumn := "id"
		if to.Valid {
			refColumn = to.String
		}
		fks = append(fks, schema.ForeignKeyInfo{
			Name:             fmt.Sprintf("fk_%s_%s", table, from),
			Column:           from,
			ReferencedTable:  refTable,
			ReferencedColumn: refColumn,
			OnDelete:         strings.ToUpper(onDelete),
			OnUpdate:         strings.ToUpper(onUpdate),
		})
	}
	return fks, rows.Err()
}

// ListViews returns all views with their column metadata.
func (s *SQLite) ListViews(ctx context.Context) ([]schema.ViewInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, sql
		FROM sqlite_master
		WHERE type = 'view'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()

	type viewRow struct {
		name string
		ddl  string
	}
	var viewRows []viewRow
	for rows.Next() {
		var name string
		var ddl sql.NullString
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		viewRows = append(viewRows, viewRow{name: name, ddl: ddl.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var views []schema.ViewInfo
	for _, vr := range viewRows {
		columns, err := s.ListColumns(ctx, vr.name)
		if err != nil {
			return nil, err
		}
		views = append(views, schema.ViewInfo{
			Name:       vr.name,
			Columns:    stripSyntheticRowid(columns),
			Definition: vr.ddl,
		})
	}
	return views, nil
}

// stripSyntheticRowid drops the synthetic rowid column appended by
// ListColumns; views have no rowid.
func stripSyntheticRowid(columns []schema.ColumnInfo) []schema.ColumnInfo {
	out := columns[:0]
	for _, c := range columns {
		if c.Name == "rowid" && c.IsAutoIncrement {
			continue
		}
		out = append(out, c)
	}
	return out
}

// isIntegerType reports whether a declared SQLite type has integer affinity
// for rowid-alias purposes. Only a literal INTEGER declaration makes a
// primary key a rowid alias, but common spellings are accepted.
func isIntegerType(declared string) bool {
	t := strings.ToUpper(strings.TrimSpace(declared))
	return t == "INTEGER" || t == "INT"
}
