// Package analyzer observes executed queries at runtime and flags likely
// performance problems: slow queries, repeated identical queries (the N+1
// signal), predicates on unindexed columns, and oversized result sets.
// Warnings are advisory only — they are logged and counted, never block or
// alter execution — and the analyzer stays tolerant of an empty or partial
// schema snapshot.
package analyzer

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/schema"
)

const (
	// historyCap bounds the rolling query history; the oldest entries are
	// evicted past the cap.
	historyCap = 1000

	// repeatWindow is the trailing window in which repeated identical
	// queries count toward the N+1 signal.
	repeatWindow = 5 * time.Second

	// repeatRetention bounds the per-normalized-query occurrence lists.
	repeatRetention = 10 * time.Second

	// repeatThreshold is the occurrence count that triggers the
	// repeated-query warning.
	repeatThreshold = 5

	// warningsCap bounds the retained warning list.
	warningsCap = 100
)

// Operation classifies a query by its leading keyword.
type Operation string

const (
	OpSelect Operation = "SELECT"
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpOther  Operation = "OTHER"
)

// Severity grades a performance warning.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// WarningKind names the detector that produced a warning.
type WarningKind string

const (
	WarnSlowQuery      WarningKind = "slow_query"
	WarnRepeatedQuery  WarningKind = "repeated_query"
	WarnMissingIndex   WarningKind = "missing_index"
	WarnLargeResultSet WarningKind = "large_result_set"
)

// Warning is one advisory finding about an observed query.
type Warning struct {
	ID        string
	Kind      WarningKind
	Severity  Severity
	Query     string // normalized form
	Message   string
	Timestamp time.Time
}

// QueryMetrics is one observed execution in the rolling history.
type QueryMetrics struct {
	Query     string // normalized form
	Operation Operation
	Duration  time.Duration
	RowCount  int
	Timestamp time.Time
}

// Config sets detector thresholds and enablement.
type Config struct {
	SlowQueryThreshold      time.Duration
	LargeResultSetThreshold int
	DetectSlowQueries       bool
	DetectRepeatedQueries   bool
	DetectMissingIndexes    bool
	DetectLargeResultSets   bool
}

// DefaultConfig returns the default analyzer configuration with every
// detector enabled.
func DefaultConfig() Config {
	return Config{
		SlowQueryThreshold:      100 * time.Millisecond,
		LargeResultSetThreshold: 1000,
		DetectSlowQueries:       true,
		DetectRepeatedQueries:   true,
		DetectMissingIndexes:    true,
		DetectLargeResultSets:   true,
	}
}

// Metrics aggregates the analyzer's observations.
type Metrics struct {
	TotalQueries    int
	ByOperation     map[Operation]int
	TotalDuration   time.Duration
	AverageDuration time.Duration
	MaxDuration     time.Duration
	SlowQueries     int
	WarningCounts   map[WarningKind]int
}

// Analyzer maintains the rolling history and runs the four detectors per
// observation. It never suspends: all state is in memory, guarded by a single
// mutex under the one-engine-per-process assumption.
type Analyzer struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	info     *schema.SchemaInfo
	history  []QueryMetrics
	recent   map[string][]time.Time
	warnings []Warning

	totalQueries  int
	byOperation   map[Operation]int
	totalDuration time.Duration
	maxDuration   time.Duration
	slowQueries   int
	warningCounts map[WarningKind]int

	now func() time.Time // injectable clock for tests
}

// New creates an analyzer. The schema snapshot may be nil or partial; the
// missing-index detector simply skips tables it cannot resolve.
func New(cfg Config, info *schema.SchemaInfo, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		cfg:           cfg,
		logger:        logger,
		info:          info,
		recent:        make(map[string][]time.Time),
		byOperation:   make(map[Operation]int),
		warningCounts: make(map[WarningKind]int),
		now:           time.Now,
	}
}

// SetSchema swaps the schema snapshot used by the missing-index detector.
func (a *Analyzer) SetSchema(info *schema.SchemaInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.info = info
}

// Observe implements the repository observer hook: it records one execution
// and runs every enabled detector against it.
func (a *Analyzer) Observe(query string, duration time.Duration, rowCount int) {
	normalized := Normalize(query)
	op := Classify(query)

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	m := QueryMetrics{
		Query:     normalized,
		Operation: op,
		Duration:  duration,
		RowCount:  rowCount,
		Timestamp: now,
	}

	a.history = append(a.history, m)
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}

	a.totalQueries++
	a.byOperation[op]++
	a.totalDuration += duration
	if duration > a.maxDuration {
		a.maxDuration = duration
	}

	if a.cfg.DetectSlowQueries {
		a.detectSlow(m)
	}
	if a.cfg.DetectRepeatedQueries {
		a.detectRepeated(m)
	}
	if a.cfg.DetectMissingIndexes {
		a.detectMissingIndex(query, m)
	}
	if a.cfg.DetectLargeResultSets {
		a.detectLargeResultSet(m)
	}
}

// Warnings returns the retained warnings, newest last.
func (a *Analyzer) Warnings() []Warning {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Warning, len(a.warnings))
	copy(out, a.warnings)
	return out
}

// GetMetrics returns aggregate counts and timings.
func (a *Analyzer) GetMetrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := Metrics{
		TotalQueries:  a.totalQueries,
		ByOperation:   make(map[Operation]int, len(a.byOperation)),
		TotalDuration: a.totalDuration,
		MaxDuration:   a.maxDuration,
		SlowQueries:   a.slowQueries,
		WarningCounts: make(map[WarningKind]int, len(a.warningCounts)),
	}
	for k, v := range a.byOperation {
		m.ByOperation[k] = v
	}
	for k, v := range a.warningCounts {
		m.WarningCounts[k] = v
	}
	if a.totalQueries > 0 {
		m.AverageDuration = a.totalDuration / time.Duration(a.totalQueries)
	}
	return m
}

func (a *Analyzer) detectSlow(m QueryMetrics) {
	if a.cfg.SlowQueryThreshold <= 0 || m.Duration < a.cfg.SlowQueryThreshold {
		return
	}
	a.slowQueries++

	severity := SeverityLow
	switch {
	case m.Duration >= 3*a.cfg.SlowQueryThreshold:
		severity = SeverityHigh
	case m.Duration >= 2*a.cfg.SlowQueryThreshold:
		severity = SeverityMedium
	}
	a.emit(Warning{
		Kind:     WarnSlowQuery,
		Severity: severity,
		Query:    m.Query,
		Message:  "query exceeded the slow-query threshold",
	}, zap.Duration("duration", m.Duration), zap.Duration("threshold", a.cfg.SlowQueryThreshold))
}

func (a *Analyzer) detectRepeated(m QueryMetrics) {
	occurrences := append(a.recent[m.Query], m.Timestamp)

	// Evict entries past retention so the per-query lists stay bounded.
	cutoff := m.Timestamp.Add(-repeatRetention)
	kept := occurrences[:0]
	for _, ts := range occurrences {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	a.recent[m.Query] = kept

	windowStart := m.Timestamp.Add(-repeatWindow)
	inWindow := 0
	for _, ts := range kept {
		if ts.After(windowStart) {
			inWindow++
		}
	}

	if inWindow == repeatThreshold {
		a.emit(Warning{
			Kind:     WarnRepeatedQuery,
			Severity: SeverityHigh,
			Query:    m.Query,
			Message:  "identical query repeated within the detection window, likely N+1",
		}, zap.Int("occurrences", inWindow), zap.Duration("window", repeatWindow))
	}
}

func (a *Analyzer) detectMissingIndex(rawQuery string, m QueryMetrics) {
	if m.Operation != OpSelect || a.info == nil {
		return
	}

	table := extractTable(rawQuery)
	if table == "" {
		return
	}
	tableInfo, ok := a.info.Table(table)
	if !ok {
		return
	}

	for _, column := range extractWhereColumns(rawQuery) {
		if !tableInfo.HasColumn(column) {
			continue
		}
		if tableInfo.IsColumnIndexed(column) {
			continue
		}
		a.emit(Warning{
			Kind:     WarnMissingIndex,
			Severity: SeverityMedium,
			Query:    m.Query,
			Message:  "predicate on unindexed column " + table + "." + column,
		}, zap.String("table", table), zap.String("column", column))
	}
}

func (a *Analyzer) detectLargeResultSet(m QueryMetrics) {
	if a.cfg.LargeResultSetThreshold <= 0 || m.RowCount < a.cfg.LargeResultSetThreshold {
		return
	}

	severity := SeverityLow
	switch {
	case m.RowCount >= 3*a.cfg.LargeResultSetThreshold:
		severity = SeverityHigh
	case m.RowCount >= 2*a.cfg.LargeResultSetThreshold:
		severity = SeverityMedium
	}
	a.emit(Warning{
		Kind:     WarnLargeResultSet,
		Severity: severity,
		Query:    m.Query,
		Message:  "result set exceeded the configured threshold",
	}, zap.Int("rows", m.RowCount), zap.Int("threshold", a.cfg.LargeResultSetThreshold))
}

// emit records and logs one warning. Must be called with the mutex held.
func (a *Analyzer) emit(w Warning, fields ...zap.Field) {
	w.ID = uuid.NewString()
	w.Timestamp = a.now()

	a.warnings = append(a.warnings, w)
	if len(a.warnings) > warningsCap {
		a.warnings = a.warnings[len(a.warnings)-warningsCap:]
	}
	a.warningCounts[w.Kind]++

	fields = append(fields,
		zap.String("kind", string(w.Kind)),
		zap.String("severity", string(w.Severity)),
		zap.String("query", w.Query))
	a.logger.Warn(w.Message, fields...)
}

var (
	stringLiteralRe = regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"`)
	numberLiteralRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	whitespaceRe    = regexp.MustCompile(`\s+`)

	fromTableRe = regexp.MustCompile(`(?i)\bFROM\s+["']?(\w+)["']?`)
	// Simple heuristic extraction of WHERE predicate columns compared with
	// =, <, or >. Not a SQL parser: complex predicates produce false
	// negatives, which is acceptable for an advisory detector.
	whereColumnRe = regexp.MustCompile(`(?i)["']?(\w+)["']?\s*(?:=|<|>)`)
	whereClauseRe = regexp.MustCompile(`(?i)\bWHERE\b(.*?)(?:\bORDER\s+BY\b|\bGROUP\s+BY\b|\bLIMIT\b|$)`)
)

// Normalize strips parameter literals and collapses whitespace so repeated
// executions of the same shape compare equal.
func Normalize(query string) string {
	q := stringLiteralRe.ReplaceAllString(query, "?")
	q = numberLiteralRe.ReplaceAllString(q, "?")
	q = whitespaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// Classify determines the operation from the query's leading keyword.
func Classify(query string) Operation {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 6 {
		return OpOther
	}
	switch strings.ToUpper(trimmed[:6]) {
	case "SELECT":
		return OpSelect
	case "INSERT":
		return OpInsert
	case "UPDATE":
		return OpUpdate
	case "DELETE":
		return OpDelete
	default:
		return OpOther
	}
}

// extractTable pulls the first FROM target out of a SELECT.
func extractTable(query string) string {
	m := fromTableRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractWhereColumns pulls column names compared via =, <, or > out of the
// WHERE clause.
func extractWhereColumns(query string) []string {
	clause := whereClauseRe.FindStringSubmatch(query)
	if clause == nil {
		return nil
	}

	var columns []string
	seen := make(map[string]struct{})
	for _, m := range whereColumnRe.FindAllStringSubmatch(clause[1], -1) {
		name := m[1]
		upper := strings.ToUpper(name)
		if upper == "AND" || upper == "OR" || upper == "NOT" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		columns = append(columns, name)
	}
	return columns
}
