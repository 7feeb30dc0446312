package reflectdb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/reflectdb/reflectdb/internal/analyzer"
)

// Config is the engine configuration. Zero values are filled from defaults by
// LoadConfig; programmatic construction should start from DefaultConfig.
type Config struct {
	Database           DatabaseConfig    `mapstructure:"database"`
	ExcludeTables      []string          `mapstructure:"exclude_tables"`
	IncludeViews       bool              `mapstructure:"include_views"`
	CustomTypeMappings map[string]string `mapstructure:"custom_type_mappings"`
	Analyzer           AnalyzerConfig    `mapstructure:"analyzer"`
}

// DatabaseConfig identifies the connection the engine introspects and
// queries.
type DatabaseConfig struct {
	Dialect string `mapstructure:"dialect"`
	URL     string `mapstructure:"url"`
}

// AnalyzerConfig holds the query analyzer thresholds and detector toggles.
type AnalyzerConfig struct {
	SlowQueryThresholdMS    int  `mapstructure:"slow_query_threshold_ms"`
	LargeResultSetThreshold int  `mapstructure:"large_result_set_threshold"`
	DetectSlowQueries       bool `mapstructure:"detect_slow_queries"`
	DetectRepeatedQueries   bool `mapstructure:"detect_repeated_queries"`
	DetectMissingIndexes    bool `mapstructure:"detect_missing_indexes"`
	DetectLargeResultSets   bool `mapstructure:"detect_large_result_sets"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Dialect: "sqlite"},
		Analyzer: AnalyzerConfig{
			SlowQueryThresholdMS:    100,
			LargeResultSetThreshold: 1000,
			DetectSlowQueries:       true,
			DetectRepeatedQueries:   true,
			DetectMissingIndexes:    true,
			DetectLargeResultSets:   true,
		},
	}
}

// LoadConfig reads reflectdb.yml from the given directory (or the working
// directory when empty), layered over defaults and under REFLECTDB_*
// environment variables. A missing file is not an error; a malformed one is.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("reflectdb")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetEnvPrefix("REFLECTDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.dialect", "sqlite")
	v.SetDefault("database.url", "")
	v.SetDefault("exclude_tables", []string{})
	v.SetDefault("include_views", false)
	v.SetDefault("analyzer.slow_query_threshold_ms", 100)
	v.SetDefault("analyzer.large_result_set_threshold", 1000)
	v.SetDefault("analyzer.detect_slow_queries", true)
	v.SetDefault("analyzer.detect_repeated_queries", true)
	v.SetDefault("analyzer.detect_missing_indexes", true)
	v.SetDefault("analyzer.detect_large_result_sets", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// analyzerConfig translates the wire-format thresholds into the analyzer's
// native types.
func (c *Config) analyzerConfig() analyzer.Config {
	return analyzer.Config{
		SlowQueryThreshold:      time.Duration(c.Analyzer.SlowQueryThresholdMS) * time.Millisecond,
		LargeResultSetThreshold: c.Analyzer.LargeResultSetThreshold,
		DetectSlowQueries:       c.Analyzer.DetectSlowQueries,
		DetectRepeatedQueries:   c.Analyzer.DetectRepeatedQueries,
		DetectMissingIndexes:    c.Analyzer.DetectMissingIndexes,
		DetectLargeResultSets:   c.Analyzer.DetectLargeResultSets,
	}
}
