package discovery

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/introspect"
	"github.com/reflectdb/reflectdb/internal/schema"
)

// Options configures what discovery includes.
type Options struct {
	ExcludeTables []string
	IncludeViews  bool
}

// Coordinator composes the table, relationship, and view services into a
// single discovery pass producing one SchemaInfo snapshot.
type Coordinator struct {
	intro  introspect.Introspector
	tables *TableService
	rels   *RelationshipService
	views  *ViewService
	logger *zap.Logger
}

// NewCoordinator builds a coordinator for an already-selected introspector.
func NewCoordinator(intro introspect.Introspector, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		intro:  intro,
		tables: NewTableService(intro, opts.ExcludeTables, logger),
		rels:   NewRelationshipService(logger),
		views:  NewViewService(intro, opts.IncludeViews, opts.ExcludeTables, logger),
		logger: logger,
	}
}

// NewCoordinatorForDialect selects the introspector for a dialect and wraps
// it in a coordinator.
func NewCoordinatorForDialect(dialect string, db *sql.DB, opts Options, logger *zap.Logger) (*Coordinator, error) {
	intro, err := introspect.New(dialect, db)
	if err != nil {
		return nil, err
	}
	return NewCoordinator(intro, opts, logger), nil
}

// Ping delegates the liveness probe to the introspector.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.intro.Ping(ctx)
}

// Dialect returns the underlying introspector's dialect name.
func (c *Coordinator) Dialect() string {
	return c.intro.Dialect()
}

// Discover runs one complete discovery pass. The returned snapshot is fully
// built before being handed to the caller; partial results are never
// published.
func (c *Coordinator) Discover(ctx context.Context) (*schema.SchemaInfo, error) {
	tables, err := c.tables.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema discovery failed: %w", err)
	}

	info := &schema.SchemaInfo{
		Tables:        tables,
		Relationships: c.rels.DiscoverRelationships(tables),
		Views:         c.views.DiscoverViews(ctx),
	}

	for i := range info.Tables {
		if err := info.Tables[i].Validate(); err != nil {
			return nil, fmt.Errorf("discovered schema is inconsistent: %w", err)
		}
	}

	stats := info.Stats()
	c.logger.Info("schema discovery complete",
		zap.String("dialect", c.intro.Dialect()),
		zap.Int("tables", stats.Tables),
		zap.Int("relationships", stats.Relationships),
		zap.Int("views", stats.Views))

	return info, nil
}
