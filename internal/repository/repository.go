package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// Repository is a stateless data-access façade bound to one table descriptor
// and the full relationship list. It holds no row state; every call delegates
// to the executor.
type Repository struct {
	table   *schema.TableInfo
	info    *schema.SchemaInfo
	exec    Executor
	dialect Dialect
	logger  *zap.Logger
	finders map[string]finderEntry
}

// FinderInfo describes one generated column finder. Unique reports whether a
// discovered index guarantees at most one match; when false, FindBy returns
// an arbitrary first match.
type FinderInfo struct {
	Column string
	Unique bool
	Many   bool
}

type finderEntry struct {
	info FinderInfo
	call func(ctx context.Context, value interface{}) (interface{}, error)
}

// New builds a repository for a table. The finder capability map is built
// once here: for every non-primary-key column c, FindBy<C> and FindManyBy<C>
// entries are generated mechanically from the column list.
func New(table *schema.TableInfo, info *schema.SchemaInfo, exec Executor, dialect Dialect, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Repository{
		table:   table,
		info:    info,
		exec:    exec,
		dialect: dialect,
		logger:  logger,
		finders: make(map[string]finderEntry),
	}
	r.buildFinders()
	return r
}

// Table returns the table descriptor this repository is bound to.
func (r *Repository) Table() *schema.TableInfo { return r.table }

func (r *Repository) buildFinders() {
	pk := make(map[string]struct{}, len(r.table.PrimaryKey))
	for _, name := range r.table.PrimaryKey {
		pk[name] = struct{}{}
	}

	for _, col := range r.table.Columns {
		if _, isPK := pk[col.Name]; isPK {
			continue
		}
		column := col.Name
		pascal := schema.ToPascalCase(column)
		unique := r.table.IsColumnUnique(column)

		r.finders["FindBy"+pascal] = finderEntry{
			info: FinderInfo{Column: column, Unique: unique},
			call: func(ctx context.Context, value interface{}) (interface{}, error) {
				return r.FindBy(ctx, column, value)
			},
		}
		r.finders["FindManyBy"+pascal] = finderEntry{
			info: FinderInfo{Column: column, Unique: unique, Many: true},
			call: func(ctx context.Context, value interface{}) (interface{}, error) {
				return r.FindManyBy(ctx, column, value)
			},
		}
	}
}

// FinderNames returns the generated finder names, sorted.
func (r *Repository) FinderNames() []string {
	names := make([]string, 0, len(r.finders))
	for name := range r.finders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Finder returns the descriptor for a generated finder name.
func (r *Repository) Finder(name string) (FinderInfo, bool) {
	entry, ok := r.finders[name]
	return entry.info, ok
}

// CallFinder invokes a generated finder by name. FindBy<C> entries return an
// Entity, FindManyBy<C> entries return []Entity.
func (r *Repository) CallFinder(ctx context.Context, name string, value interface{}) (interface{}, error) {
	entry, ok := r.finders[name]
	if !ok {
		return nil, lookupMissError(ErrFinderNotFound, "finder", name, r.FinderNames())
	}
	return entry.call(ctx, value)
}

// FindByID retrieves a record by primary key. Composite keys take their
// values positionally, in the same order as the table's primary key columns.
func (r *Repository) FindByID(ctx context.Context, id ...interface{}) (Entity, error) {
	cond, err := r.pkCondition(1, len(id))
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", r.quotedTable(), cond)
	results, err := r.exec.Query(ctx, query, id...)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by id: %w", r.table.Name, ConvertDBError(err))
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w", r.table.Name, ErrNotFound)
	}
	return results[0], nil
}

// FindAll retrieves every record in the table.
func (r *Repository) FindAll(ctx context.Context) ([]Entity, error) {
	query := fmt.Sprintf("SELECT * FROM %s", r.quotedTable())
	results, err := r.exec.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table.Name, ConvertDBError(err))
	}
	return results, nil
}

// FindBy retrieves a single record by column value. No uniqueness is
// enforced: when the column is not backed by a unique index this returns an
// arbitrary first match (see FinderInfo.Unique). A miss is ErrNotFound.
func (r *Repository) FindBy(ctx context.Context, column string, value interface{}) (Entity, error) {
	if err := r.validateFinderColumn(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s LIMIT 1",
		r.quotedTable(), quoteIdent(column), r.dialect.Placeholder(1))
	results, err := r.exec.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by %s: %w", r.table.Name, column, ConvertDBError(err))
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s with %s: %w", r.table.Name, column, ErrNotFound)
	}
	return results[0], nil
}

// FindManyBy retrieves every record matching a column value.
func (r *Repository) FindManyBy(ctx context.Context, column string, value interface{}) ([]Entity, error) {
	if err := r.validateFinderColumn(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		r.quotedTable(), quoteIdent(column), r.dialect.Placeholder(1))
	results, err := r.exec.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by %s: %w", r.table.Name, column, ConvertDBError(err))
	}
	return results, nil
}

// Create inserts a record. Required columns (non-nullable, no default, not
// auto-incrementing) must be present; unknown columns are rejected. The
// stored row is returned: via RETURNING where the dialect supports it,
// otherwise by merging the generated key into the input.
func (r *Repository) Create(ctx context.Context, data Entity) (Entity, error) {
	if err := r.validateCreate(data); err != nil {
		return nil, err
	}

	// Deterministic column order: table declaration order filtered to the
	// provided keys.
	var columns []string
	var values []interface{}
	for _, col := range r.table.Columns {
		v, ok := data[col.Name]
		if !ok {
			continue
		}
		columns = append(columns, col.Name)
		values = append(values, v)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.quotedTable(), strings.Join(quoted, ", "), r.dialect.Placeholders(1, len(columns)))

	if r.dialect.SupportsReturning {
		query += " RETURNING *"
		results, err := r.exec.Query(ctx, query, values...)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", r.table.Name, ConvertDBError(err))
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("create %s returned no row: %w", r.table.Name, ErrNotFound)
		}
		return results[0], nil
	}

	res, err := r.exec.Exec(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.table.Name, ConvertDBError(err))
	}

	created := make(Entity, len(data)+1)
	for k, v := range data {
		created[k] = v
	}
	if pk := r.autoIncrementKey(); pk != "" {
		if _, provided := data[pk]; !provided && res.LastInsertID != 0 {
			created[pk] = res.LastInsertID
		}
	}
	return created, nil
}

// Update writes every provided non-key column of an entity, located by its
// primary key values. Updating a nonexistent record is an error (ErrNotFound).
func (r *Repository) Update(ctx context.Context, entity Entity) (Entity, error) {
	pkValues := make([]interface{}, len(r.table.PrimaryKey))
	for i, pk := range r.table.PrimaryKey {
		v, ok := entity[pk]
		if !ok || v == nil {
			return nil, &ValidationError{Table: r.table.Name, Errors: []ColumnError{
				{Column: pk, Message: "primary key value required for update"},
			}}
		}
		pkValues[i] = v
	}

	pkSet := make(map[string]struct{}, len(r.table.PrimaryKey))
	for _, pk := range r.table.PrimaryKey {
		pkSet[pk] = struct{}{}
	}

	var assignments []string
	var values []interface{}
	n := 1
	for _, col := range r.table.Columns {
		if _, isPK := pkSet[col.Name]; isPK {
			continue
		}
		v, ok := entity[col.Name]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s", quoteIdent(col.Name), r.dialect.Placeholder(n)))
		values = append(values, v)
		n++
	}
	for key := range entity {
		if !r.table.HasColumn(key) {
			return nil, lookupMissError(ErrColumnNotFound, "column", key, r.table.ColumnNames())
		}
	}
	if len(assignments) == 0 {
		return nil, &ValidationError{Table: r.table.Name, Errors: []ColumnError{
			{Column: "", Message: "no updatable columns provided"},
		}}
	}

	cond, err := r.pkCondition(n, len(pkValues))
	if err != nil {
		return nil, err
	}
	values = append(values, pkValues...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		r.quotedTable(), strings.Join(assignments, ", "), cond)
	res, err := r.exec.Exec(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.table.Name, ConvertDBError(err))
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("update %s: %w", r.table.Name, ErrNotFound)
	}

	updated := make(Entity, len(entity))
	for k, v := range entity {
		updated[k] = v
	}
	return updated, nil
}

// Delete removes a record by primary key. Deleting a nonexistent record is
// not an error: it returns false with zero rows affected.
func (r *Repository) Delete(ctx context.Context, id ...interface{}) (bool, error) {
	cond, err := r.pkCondition(1, len(id))
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", r.quotedTable(), cond)
	res, err := r.exec.Exec(ctx, query, id...)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", r.table.Name, ConvertDBError(err))
	}
	return res.RowsAffected > 0, nil
}

// Count returns the number of records in the table.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", r.quotedTable())
	results, err := r.exec.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.table.Name, ConvertDBError(err))
	}
	if len(results) == 0 {
		return 0, nil
	}
	return toInt64(results[0]["n"])
}

// Exists reports whether a record with the given primary key exists.
func (r *Repository) Exists(ctx context.Context, id ...interface{}) (bool, error) {
	cond, err := r.pkCondition(1, len(id))
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s) AS present", r.quotedTable(), cond)
	results, err := r.exec.Query(ctx, query, id...)
	if err != nil {
		return false, fmt.Errorf("failed to check existence in %s: %w", r.table.Name, ConvertDBError(err))
	}
	if len(results) == 0 {
		return false, nil
	}
	return toBool(results[0]["present"]), nil
}

// validateCreate rejects unknown columns and missing required columns.
func (r *Repository) validateCreate(data Entity) error {
	for key := range data {
		if !r.table.HasColumn(key) {
			return lookupMissError(ErrColumnNotFound, "column", key, r.table.ColumnNames())
		}
	}

	var missing []ColumnError
	for _, col := range r.table.Columns {
		if col.Nullable || col.Default != nil || col.IsAutoIncrement {
			continue
		}
		if v, ok := data[col.Name]; !ok || v == nil {
			missing = append(missing, ColumnError{Column: col.Name, Message: "required column is missing"})
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Table: r.table.Name, Errors: missing}
	}
	return nil
}

// validateFinderColumn checks that a finder target is a real, non-key column.
func (r *Repository) validateFinderColumn(column string) error {
	if !r.table.HasColumn(column) {
		return lookupMissError(ErrColumnNotFound, "column", column, r.table.ColumnNames())
	}
	return nil
}

// pkCondition builds the primary-key WHERE condition with placeholders
// starting at the 1-based index start. The caller must supply exactly one
// value per primary key column, in primary key order.
func (r *Repository) pkCondition(start, valueCount int) (string, error) {
	if len(r.table.PrimaryKey) == 0 {
		return "", &ValidationError{Table: r.table.Name, Errors: []ColumnError{
			{Column: "", Message: "table has no primary key"},
		}}
	}
	if valueCount != len(r.table.PrimaryKey) {
		return "", &ValidationError{Table: r.table.Name, Errors: []ColumnError{
			{Column: strings.Join(r.table.PrimaryKey, ", "),
				Message: fmt.Sprintf("expected %d primary key value(s), got %d", len(r.table.PrimaryKey), valueCount)},
		}}
	}

	parts := make([]string, len(r.table.PrimaryKey))
	for i, pk := range r.table.PrimaryKey {
		parts[i] = fmt.Sprintf("%s = %s", quoteIdent(pk), r.dialect.Placeholder(start+i))
	}
	return strings.Join(parts, " AND "), nil
}

// autoIncrementKey returns the primary key column name when the table has a
// single auto-incrementing key, otherwise "".
func (r *Repository) autoIncrementKey() string {
	if len(r.table.PrimaryKey) != 1 {
		return ""
	}
	col, ok := r.table.Column(r.table.PrimaryKey[0])
	if !ok || !col.IsAutoIncrement {
		return ""
	}
	return col.Name
}

func (r *Repository) quotedTable() string {
	return quoteIdent(r.table.Name)
}

// toInt64 converts a scanned aggregate value to int64.
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		var parsed int64
		_, err := fmt.Sscanf(n, "%d", &parsed)
		return parsed, err
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

// toBool converts a scanned EXISTS value to bool; drivers report it as a
// bool, an integer, or a textual flag depending on dialect.
func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case string:
		return b == "1" || strings.EqualFold(b, "t") || strings.EqualFold(b, "true")
	default:
		return false
	}
}
