package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// Postgres is a partial introspector over the public schema. Tables, columns,
// indexes, and foreign keys come from information_schema and the pg_catalog;
// composite foreign keys are reported one column at a time and expression
// indexes are skipped.
type Postgres struct {
	db         *sql.DB
	schemaName string
}

// NewPostgres creates a PostgreSQL introspector over an open connection. Only
// the public schema is inspected.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, schemaName: "public"}
}

// Dialect returns the dialect name.
func (p *Postgres) Dialect() string { return "postgres" }

// Ping verifies the connection is live.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres liveness probe failed: %w", err)
	}
	return nil
}

// ListTables returns all base tables in the public schema.
func (p *Postgres) ListTables(ctx context.Context) ([]TableRef, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, p.schemaName)
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
		tables = append(tables, TableRef{Name: name, Schema: p.schemaName})
	}
	return tables, rows.Err()
}

// ListColumns returns the columns of a table in ordinal position order.
// Auto-increment covers identity columns and serial-style nextval defaults.
func (p *Postgres) ListColumns(ctx context.Context, table string) ([]schema.ColumnInfo, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			c.column_default,
			c.is_identity = 'YES',
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON kcu.constraint_name = tc.constraint_name
					AND kcu.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, p.schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []schema.ColumnInfo
	for rows.Next() {
		var col schema.ColumnInfo
		var nullable, identity, primary bool
		var def sql.NullString
		var maxLen, precision, scale sql.NullInt64

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def, &identity, &maxLen, &precision, &scale, &primary); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}

		col.Nullable = nullable
		col.IsPrimaryKey = primary
		if def.Valid {
			v := def.String
			col.Default = &v
		}
		col.IsAutoIncrement = identity ||
			(def.Valid && strings.HasPrefix(def.String, "nextval("))
		if maxLen.Valid {
			n := int(maxLen.Int64)
			col.MaxLength = &n
		}
		if precision.Valid && scale.Valid {
			pr, sc := int(precision.Int64), int(scale.Int64)
			col.Precision = &pr
			col.Scale = &sc
		}

		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ListIndexes returns the table's plain column indexes. The primary key's
// backing index is skipped; expression indexes are skipped.
func (p *Postgres) ListIndexes(ctx context.Context, table string) ([]schema.IndexInfo, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT
			i.relname,
			ix.indisunique,
			a.attname,
			array_position(ix.indkey, a.attnum)
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON ix.indrelid = t.oid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND t.relname = $2 AND NOT ix.indisprimary
		ORDER BY i.relname, array_position(ix.indkey, a.attnum)
	`, p.schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	defer rows.Close()

	byName := make(map[string]*schema.IndexInfo)
	var order []string
	for rows.Next() {
		var name, column string
		var unique bool
		var position sql.NullInt64
		if err := rows.Scan(&name, &unique, &column, &position); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", table, err)
		}
		idx, ok := byName[name]
		if !ok {
			idx = &schema.IndexInfo{Name: name, Unique: unique}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	indexes := make([]schema.IndexInfo, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *byName[name])
	}
	return indexes, nil
}

// ListForeignKeys returns the table's foreign keys with referential actions.
func (p *Postgres) ListForeignKeys(ctx context.Context, table string) ([]schema.ForeignKeyInfo, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY tc.constraint_name
	`, p.schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var fks []schema.ForeignKeyInfo
	for rows.Next() {
		var fk schema.ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.OnDelete, &fk.OnUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// ListViews returns all views in the public schema with their columns.
func (p *Postgres) ListViews(ctx context.Context) ([]schema.ViewInfo, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT table_name, COALESCE(view_definition, '')
		FROM information_schema.views
		WHERE table_schema = $1
		ORDER BY table_name
	`, p.schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()

	type viewRow struct {
		name string
		def  string
	}
	var viewRows []viewRow
	for rows.Next() {
		var vr viewRow
		if err := rows.Scan(&vr.name, &vr.def); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		viewRows = append(viewRows, vr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var views []schema.ViewInfo
	for _, vr := range viewRows {
		columns, err := p.ListColumns(ctx, vr.name)
		if err != nil {
			return nil, err
		}
		views = append(views, schema.ViewInfo{Name: vr.name, Columns: columns, Definition: vr.def})
	}
	return views, nil
}
