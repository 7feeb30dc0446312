package repository

import (
	"sync"

	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// Factory builds repositories from a schema snapshot and caches them by table
// name. Repositories are created lazily on first request and live until the
// cache is invalidated by a schema refresh.
type Factory struct {
	info    *schema.SchemaInfo
	exec    Executor
	dialect Dialect
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Repository
}

// NewFactory creates a repository factory over a complete schema snapshot.
func NewFactory(info *schema.SchemaInfo, exec Executor, dialect Dialect, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		info:    info,
		exec:    exec,
		dialect: dialect,
		logger:  logger,
		cache:   make(map[string]*Repository),
	}
}

// Get returns the repository for a table, building it on first request. An
// unknown table name is an error listing the available tables.
func (f *Factory) Get(table string) (*Repository, error) {
	f.mu.RLock()
	repo, ok := f.cache[table]
	f.mu.RUnlock()
	if ok {
		return repo, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if repo, ok := f.cache[table]; ok {
		return repo, nil
	}

	tableInfo, ok := f.info.Table(table)
	if !ok {
		return nil, lookupMissError(ErrTableNotFound, "table", table, f.info.TableNames())
	}

	repo = New(tableInfo, f.info, f.exec, f.dialect, f.logger)
	f.cache[table] = repo
	f.logger.Debug("repository created", zap.String("table", table))
	return repo, nil
}

// Reset clears the repository cache and swaps in a new schema snapshot.
// Callers holding repositories built from the previous snapshot keep working
// against the old metadata until they re-fetch.
func (f *Factory) Reset(info *schema.SchemaInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
	f.cache = make(map[string]*Repository)
}

// Size returns the number of cached repositories.
func (f *Factory) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}
