package reflectdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Dialect)
	assert.Empty(t, cfg.ExcludeTables)
	assert.False(t, cfg.IncludeViews)
	assert.Equal(t, 100, cfg.Analyzer.SlowQueryThresholdMS)
	assert.Equal(t, 1000, cfg.Analyzer.LargeResultSetThreshold)
	assert.True(t, cfg.Analyzer.DetectSlowQueries)
	assert.True(t, cfg.Analyzer.DetectRepeatedQueries)
	assert.True(t, cfg.Analyzer.DetectMissingIndexes)
	assert.True(t, cfg.Analyzer.DetectLargeResultSets)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
database:
  dialect: postgres
  url: postgres://localhost:5432/app
exclude_tables:
  - schema_migrations
  - audit_log
include_views: true
custom_type_mappings:
  VARCHAR: Text
analyzer:
  slow_query_threshold_ms: 250
  detect_large_result_sets: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reflectdb.yml"), []byte(content), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Dialect)
	assert.Equal(t, "postgres://localhost:5432/app", cfg.Database.URL)
	assert.Equal(t, []string{"schema_migrations", "audit_log"}, cfg.ExcludeTables)
	assert.True(t, cfg.IncludeViews)
	assert.Equal(t, "Text", cfg.CustomTypeMappings["VARCHAR"])

	assert.Equal(t, 250, cfg.Analyzer.SlowQueryThresholdMS)
	assert.False(t, cfg.Analyzer.DetectLargeResultSets)
	// Keys absent from the file keep their defaults.
	assert.True(t, cfg.Analyzer.DetectSlowQueries)
	assert.Equal(t, 1000, cfg.Analyzer.LargeResultSetThreshold)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reflectdb.yml"), []byte("database: ["), 0o644))

	_, err := LoadConfig(dir)
	require.Error(t, err)
}

func TestAnalyzerConfigConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analyzer.SlowQueryThresholdMS = 250

	ac := cfg.analyzerConfig()
	assert.Equal(t, 250*time.Millisecond, ac.SlowQueryThreshold)
	assert.Equal(t, 1000, ac.LargeResultSetThreshold)
	assert.True(t, ac.DetectMissingIndexes)
}
