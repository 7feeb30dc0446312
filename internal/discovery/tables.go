// Package discovery turns raw introspector output into a normalized
// schema.SchemaInfo snapshot: it applies exclusion configuration, degrades
// per-table facet failures to empty metadata, infers bidirectional
// relationships from foreign keys, and optionally discovers views.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/introspect"
	"github.com/reflectdb/reflectdb/internal/schema"
)

// TableService discovers table descriptors through an introspector.
type TableService struct {
	intro   introspect.Introspector
	exclude map[string]struct{}
	logger  *zap.Logger
}

// NewTableService creates a table discovery service. Tables named in exclude
// are dropped from discovery entirely.
func NewTableService(intro introspect.Introspector, exclude []string, logger *zap.Logger) *TableService {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}
	return &TableService{intro: intro, exclude: excluded, logger: logger}
}

// DiscoverTables lists tables and loads each table's column, index, and
// foreign key facets concurrently. A facet query failure degrades that facet
// to empty metadata with a logged warning; it never aborts discovery of
// sibling tables.
func (s *TableService) DiscoverTables(ctx context.Context) ([]schema.TableInfo, error) {
	refs, err := s.intro.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	included := make([]introspect.TableRef, 0, len(refs))
	for _, ref := range refs {
		if _, skip := s.exclude[ref.Name]; skip {
			s.logger.Debug("table excluded from discovery", zap.String("table", ref.Name))
			continue
		}
		included = append(included, ref)
	}

	tables := make([]schema.TableInfo, len(included))
	var wg sync.WaitGroup
	for i, ref := range included {
		wg.Add(1)
		go func(i int, ref introspect.TableRef) {
			defer wg.Done()
			tables[i] = s.discoverTable(ctx, ref)
		}(i, ref)
	}
	wg.Wait()

	return tables, nil
}

// discoverTable loads all facets of one table. Each facet is independently
// fallible.
func (s *TableService) discoverTable(ctx context.Context, ref introspect.TableRef) schema.TableInfo {
	table := schema.TableInfo{Name: ref.Name, Schema: ref.Schema}

	columns, err := s.intro.ListColumns(ctx, ref.Name)
	if err != nil {
		s.logger.Warn("failed to discover columns, treating as empty",
			zap.String("table", ref.Name), zap.Error(err))
	} else {
		table.Columns = columns
	}

	indexes, err := s.intro.ListIndexes(ctx, ref.Name)
	if err != nil {
		s.logger.Warn("failed to discover indexes, treating as empty",
			zap.String("table", ref.Name), zap.Error(err))
	} else {
		table.Indexes = indexes
	}

	fks, err := s.intro.ListForeignKeys(ctx, ref.Name)
	if err != nil {
		s.logger.Warn("failed to discover foreign keys, treating as empty",
			zap.String("table", ref.Name), zap.Error(err))
	} else {
		table.ForeignKeys = fks
	}

	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			table.PrimaryKey = append(table.PrimaryKey, col.Name)
		}
	}

	// A degraded column facet can leave keys referencing columns we never
	// saw. Drop those references so the snapshot invariant holds: every
	// column named by the primary key or a foreign key exists.
	s.pruneDanglingKeys(&table)

	return table
}

func (s *TableService) pruneDanglingKeys(table *schema.TableInfo) {
	kept := table.ForeignKeys[:0]
	for _, fk := range table.ForeignKeys {
		if table.HasColumn(fk.Column) {
			kept = append(kept, fk)
			continue
		}
		s.logger.Warn("dropping foreign key on unknown column",
			zap.String("table", table.Name),
			zap.String("column", fk.Column))
	}
	table.ForeignKeys = kept
}
