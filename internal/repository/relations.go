package repository

import (
	"context"
	"fmt"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// FindWithRelations loads an entity by primary key and attaches each named
// relationship. Composite-key tables should combine FindByID with
// LoadRelationships directly.
func (r *Repository) FindWithRelations(ctx context.Context, id interface{}, relations ...string) (Entity, error) {
	entity, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.LoadRelationships(ctx, []Entity{entity}, relations); err != nil {
		return nil, err
	}
	return entity, nil
}

// LoadRelationships attaches the named relationships to every entity in the
// set. For each relationship it collects the distinct key values across all
// entities and issues at most one IN query, then groups the related rows by
// join column and assigns them per cardinality: a single value (or nil) for
// many-to-one, a slice (possibly empty) for one-to-many and many-to-many.
// Entities with no matching related rows are never an error.
//
// The result is observationally identical to loading each entity's
// relationships individually; only the query count differs.
func (r *Repository) LoadRelationships(ctx context.Context, entities []Entity, relations []string) error {
	if len(entities) == 0 {
		return nil
	}

	for _, name := range relations {
		rel, ok := r.info.Relationship(r.table.Name, name)
		if !ok {
			return lookupMissError(ErrRelationshipNotFound, "relationship", name,
				r.info.RelationshipNamesFor(r.table.Name))
		}

		var err error
		switch rel.Type {
		case schema.ManyToOne:
			err = r.loadManyToOne(ctx, entities, rel)
		case schema.OneToMany:
			err = r.loadOneToMany(ctx, entities, rel)
		case schema.ManyToMany:
			err = r.loadManyToMany(ctx, entities, rel)
		default:
			err = fmt.Errorf("unsupported relationship type %s", rel.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", name, err)
		}
	}

	return nil
}

// loadManyToOne attaches the single referenced row per entity.
// Example: posts.user — collect distinct user_id values, one
// SELECT * FROM users WHERE id IN (...), map users back to posts.
func (r *Repository) loadManyToOne(ctx context.Context, entities []Entity, rel *schema.RelationshipInfo) error {
	keys, keyValues := collectKeys(entities, rel.FromColumn)
	if len(keyValues) == 0 {
		for _, e := range entities {
			e[rel.Name] = nil
		}
		return nil
	}

	related, err := r.queryIn(ctx, rel.ToTable, rel.ToColumn, keyValues)
	if err != nil {
		return err
	}

	byKey := make(map[string]Entity, len(related))
	for _, row := range related {
		byKey[keyString(row[rel.ToColumn])] = row
	}

	for i, e := range entities {
		if keys[i] == "" {
			e[rel.Name] = nil
			continue
		}
		if match, ok := byKey[keys[i]]; ok {
			e[rel.Name] = match
		} else {
			e[rel.Name] = nil
		}
	}
	return nil
}

// loadOneToMany attaches the slice of referencing rows per entity, grouped by
// the join column. Entities with no children get an empty slice, never nil.
func (r *Repository) loadOneToMany(ctx context.Context, entities []Entity, rel *schema.RelationshipInfo) error {
	keys, keyValues := collectKeys(entities, rel.FromColumn)
	if len(keyValues) == 0 {
		for _, e := range entities {
			e[rel.Name] = []Entity{}
		}
		return nil
	}

	related, err := r.queryIn(ctx, rel.ToTable, rel.ToColumn, keyValues)
	if err != nil {
		return err
	}

	grouped := make(map[string][]Entity)
	for _, row := range related {
		k := keyString(row[rel.ToColumn])
		grouped[k] = append(grouped[k], row)
	}

	for i, e := range entities {
		if children, ok := grouped[keys[i]]; ok {
			e[rel.Name] = children
		} else {
			e[rel.Name] = []Entity{}
		}
	}
	return nil
}

// loadManyToMany attaches rows reached through a caller-registered junction
// table, in a single three-way join per call. The junction's parent column is
// surfaced as __parent_key for grouping and stripped before assignment.
func (r *Repository) loadManyToMany(ctx context.Context, entities []Entity, rel *schema.RelationshipInfo) error {
	if rel.JunctionTable == "" {
		return fmt.Errorf("many-to-many relationship %s has no junction table registered", rel.Name)
	}

	keys, keyValues := collectKeys(entities, rel.FromColumn)
	if len(keyValues) == 0 {
		for _, e := range entities {
			e[rel.Name] = []Entity{}
		}
		return nil
	}

	placeholders := r.dialect.Placeholders(1, len(keyValues))
	query := fmt.Sprintf(
		"SELECT t.*, j.%s AS __parent_key FROM %s t INNER JOIN %s j ON t.%s = j.%s WHERE j.%s IN (%s)",
		quoteIdent(rel.JunctionFromColumn),
		quoteIdent(rel.ToTable),
		quoteIdent(rel.JunctionTable),
		quoteIdent(rel.ToColumn),
		quoteIdent(rel.JunctionToColumn),
		quoteIdent(rel.JunctionFromColumn),
		placeholders,
	)

	related, err := r.exec.Query(ctx, query, keyValues...)
	if err != nil {
		return ConvertDBError(err)
	}

	grouped := make(map[string][]Entity)
	for _, row := range related {
		k := keyString(row["__parent_key"])
		delete(row, "__parent_key")
		grouped[k] = append(grouped[k], row)
	}

	for i, e := range entities {
		if matches, ok := grouped[keys[i]]; ok {
			e[rel.Name] = matches
		} else {
			e[rel.Name] = []Entity{}
		}
	}
	return nil
}

// queryIn issues the single batched lookup for a relationship.
func (r *Repository) queryIn(ctx context.Context, table, column string, values []interface{}) ([]Entity, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
		quoteIdent(table), quoteIdent(column), r.dialect.Placeholders(1, len(values)))
	results, err := r.exec.Query(ctx, query, values...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return results, nil
}

// collectKeys returns each entity's stringified key (empty when absent or
// nil) plus the deduplicated value list for the IN predicate.
func collectKeys(entities []Entity, column string) ([]string, []interface{}) {
	keys := make([]string, len(entities))
	var values []interface{}
	seen := make(map[string]struct{})

	for i, e := range entities {
		v, ok := e[column]
		if !ok || v == nil {
			continue
		}
		k := keyString(v)
		keys[i] = k
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			values = append(values, v)
		}
	}
	return keys, values
}

// keyString normalizes a join-key value for map grouping. Numeric widths
// differ between drivers, so everything is compared through its string form.
func keyString(v interface{}) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case []byte:
		return string(k)
	case int64:
		return fmt.Sprintf("%d", k)
	case int32:
		return fmt.Sprintf("%d", k)
	case int:
		return fmt.Sprintf("%d", k)
	case uint64:
		return fmt.Sprintf("%d", k)
	default:
		return fmt.Sprintf("%v", k)
	}
}
