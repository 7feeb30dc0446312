// Package reflectdb is a runtime schema-introspection and relationship-aware
// data-access engine. Point it at a live relational connection and it
// discovers tables, columns, indexes, and foreign keys, infers bidirectional
// relationships, and hands out per-table repositories with CRUD, generated
// finders, and batched relationship loading. Every repository query is
// observed by a performance analyzer that flags slow, repeated, unindexed,
// and oversized queries.
package reflectdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/analyzer"
	"github.com/reflectdb/reflectdb/internal/discovery"
	"github.com/reflectdb/reflectdb/internal/repository"
	"github.com/reflectdb/reflectdb/internal/schema"
	"github.com/reflectdb/reflectdb/internal/typemap"
)

// ErrNotInitialized is returned when the engine is used before Initialize.
var ErrNotInitialized = errors.New("engine not initialized")

// Engine is the façade over discovery, repositories, and the analyzer. One
// engine serves one database connection; construct it, call Initialize once,
// then request repositories by table name.
type Engine struct {
	cfg      *Config
	db       *sql.DB
	ownsDB   bool
	logger   *zap.Logger
	dialect  repository.Dialect
	exec     repository.Executor
	analyzer *analyzer.Analyzer
	types    *typemap.Mapper

	mu          sync.RWMutex
	initialized bool
	coordinator *discovery.Coordinator
	info        *schema.SchemaInfo
	factory     *repository.Factory
}

// New builds an engine over an already-open connection. The caller keeps
// ownership of db; Close will not close it. cfg may be nil (defaults) and
// logger may be nil (no-op).
func New(db *sql.DB, cfg *Config, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		dialect: repository.DialectFor(cfg.Database.Dialect),
	}
	e.analyzer = analyzer.New(cfg.analyzerConfig(), nil, logger)
	e.exec = repository.NewSQLExecutor(db, e.analyzer)
	e.types = typemap.New(cfg.CustomTypeMappings)
	return e
}

// Open opens the connection named by the configuration and builds an engine
// that owns it. Close will close the connection.
func Open(cfg *Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	driver, err := driverFor(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	e := New(db, cfg, logger)
	e.ownsDB = true
	return e, nil
}

// driverFor maps a dialect name to its registered database/sql driver.
func driverFor(dialect string) (string, error) {
	switch dialect {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "postgres", "postgresql":
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q (supported: postgres, sqlite)", dialect)
	}
}

// Initialize probes the connection and runs the full discovery pass. It is
// idempotent: a second call logs a warning and returns nil without
// rediscovering (use RefreshSchema for that).
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		e.logger.Warn("engine already initialized, ignoring repeated Initialize call")
		return nil
	}

	coordinator, err := discovery.NewCoordinatorForDialect(e.cfg.Database.Dialect, e.db, discovery.Options{
		ExcludeTables: e.cfg.ExcludeTables,
		IncludeViews:  e.cfg.IncludeViews,
	}, e.logger)
	if err != nil {
		return err
	}

	if err := coordinator.Ping(ctx); err != nil {
		return fmt.Errorf("database is not reachable: %w", err)
	}

	info, err := coordinator.Discover(ctx)
	if err != nil {
		return err
	}

	e.coordinator = coordinator
	e.info = info
	e.factory = repository.NewFactory(info, e.exec, e.dialect, e.logger)
	e.analyzer.SetSchema(info)
	e.initialized = true

	e.logger.Info("engine initialized",
		zap.String("dialect", e.dialect.Name),
		zap.Int("tables", len(info.Tables)))
	return nil
}

// GetRepository returns the repository for a table. The engine must be
// initialized; unknown table names produce an error listing the discovered
// tables.
func (e *Engine) GetRepository(table string) (*repository.Repository, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, ErrNotInitialized
	}
	return e.factory.Get(table)
}

// RefreshSchema reruns discovery and atomically swaps in the new snapshot.
// The old snapshot stays in service until the new one is fully built, so
// concurrent readers never observe a partial schema. Cached repositories are
// invalidated; previously handed-out instances keep their old metadata.
func (e *Engine) RefreshSchema(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}

	info, err := e.coordinator.Discover(ctx)
	if err != nil {
		return fmt.Errorf("schema refresh failed: %w", err)
	}

	e.info = info
	e.factory.Reset(info)
	e.analyzer.SetSchema(info)

	e.logger.Info("schema refreshed", zap.Int("tables", len(info.Tables)))
	return nil
}

// SchemaInfo returns the current schema snapshot, or nil before Initialize.
func (e *Engine) SchemaInfo() *schema.SchemaInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

// ColumnGoType returns the Go type name for a discovered column, honoring
// the configured custom type mappings and the column's nullability.
func (e *Engine) ColumnGoType(table, column string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return "", ErrNotInitialized
	}
	tableInfo, ok := e.info.Table(table)
	if !ok {
		return "", fmt.Errorf("%w: table %q", repository.ErrTableNotFound, table)
	}
	col, ok := tableInfo.Column(column)
	if !ok {
		return "", fmt.Errorf("%w: column %q in table %q", repository.ErrColumnNotFound, column, table)
	}
	return e.types.MapColumnType(col.Type, col.Nullable), nil
}

// GetPerformanceMetrics returns the analyzer's aggregate query metrics.
func (e *Engine) GetPerformanceMetrics() analyzer.Metrics {
	return e.analyzer.GetMetrics()
}

// PerformanceWarnings returns the analyzer's retained advisory warnings.
func (e *Engine) PerformanceWarnings() []analyzer.Warning {
	return e.analyzer.Warnings()
}

// Close releases the engine. The connection is closed only when the engine
// opened it itself via Open.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.initialized = false
	if e.ownsDB && e.db != nil {
		return e.db.Close()
	}
	return nil
}
