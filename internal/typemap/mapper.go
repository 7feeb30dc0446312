// Package typemap maps native database column types to Go types. The mapping
// is a pure lookup: a normalized native type resolves through the caller's
// custom overrides first, then a built-in table covering the common SQLite,
// PostgreSQL, and MySQL type names.
package typemap

import "strings"

// Mapper resolves native column type strings to Go type names.
type Mapper struct {
	custom map[string]string
}

// New creates a Mapper with the given custom overrides. Override keys are
// matched case-insensitively against both the full native type and its base
// name (the part before any parenthesized parameters), so "VARCHAR" overrides
// "varchar(255)" too.
func New(custom map[string]string) *Mapper {
	normalized := make(map[string]string, len(custom))
	for k, v := range custom {
		normalized[normalize(k)] = v
	}
	return &Mapper{custom: normalized}
}

// MapColumnType returns the Go type name for a native column type. Nullable
// columns map to the pointer form of the base type; types without a useful
// pointer form ([]byte, interface{}) are returned unchanged.
func (m *Mapper) MapColumnType(nativeType string, nullable bool) string {
	goType := m.baseType(nativeType)
	if !nullable {
		return goType
	}
	switch goType {
	case "[]byte", "interface{}":
		return goType
	}
	if strings.HasPrefix(goType, "*") {
		return goType
	}
	return "*" + goType
}

// baseType resolves the non-nullable Go type for a native type string.
func (m *Mapper) baseType(nativeType string) string {
	full := normalize(nativeType)
	if t, ok := m.custom[full]; ok {
		return t
	}
	base := baseName(full)
	if t, ok := m.custom[base]; ok {
		return t
	}
	if t, ok := builtins[base]; ok {
		return t
	}
	// Affinity fallback for dialects that report composite names such as
	// "UNSIGNED BIG INT" or "NATIVE CHARACTER".
	switch {
	case strings.Contains(base, "INT"):
		return "int64"
	case strings.Contains(base, "CHAR"), strings.Contains(base, "TEXT"), strings.Contains(base, "CLOB"):
		return "string"
	case strings.Contains(base, "BLOB"), strings.Contains(base, "BINARY"):
		return "[]byte"
	case strings.Contains(base, "REAL"), strings.Contains(base, "FLOA"), strings.Contains(base, "DOUB"):
		return "float64"
	}
	return "interface{}"
}

var builtins = map[string]string{
	"INT":       "int64",
	"INTEGER":   "int64",
	"TINYINT":   "int64",
	"SMALLINT":  "int64",
	"MEDIUMINT": "int64",
	"BIGINT":    "int64",
	"INT2":      "int64",
	"INT4":      "int64",
	"INT8":      "int64",
	"SERIAL":    "int64",
	"BIGSERIAL": "int64",

	"REAL":             "float64",
	"FLOAT":            "float64",
	"DOUBLE":           "float64",
	"DOUBLE PRECISION": "float64",
	"NUMERIC":          "float64",
	"DECIMAL":          "float64",
	"MONEY":            "float64",

	"BOOL":    "bool",
	"BOOLEAN": "bool",

	"CHAR":              "string",
	"CHARACTER":         "string",
	"VARCHAR":           "string",
	"CHARACTER VARYING": "string",
	"NCHAR":             "string",
	"NVARCHAR":          "string",
	"TEXT":              "string",
	"TINYTEXT":          "string",
	"MEDIUMTEXT":        "string",
	"LONGTEXT":          "string",
	"CLOB":              "string",
	"UUID":              "string",
	"JSON":              "string",
	"JSONB":             "string",
	"XML":               "string",
	"ENUM":              "string",
	"INET":              "string",
	"CIDR":              "string",

	"BLOB":      "[]byte",
	"BYTEA":     "[]byte",
	"BINARY":    "[]byte",
	"VARBINARY": "[]byte",

	"DATE":        "time.Time",
	"DATETIME":    "time.Time",
	"TIMESTAMP":   "time.Time",
	"TIMESTAMPTZ": "time.Time",
	"TIME":        "time.Time",
	"TIMETZ":      "time.Time",
}

// normalize upper-cases and collapses interior whitespace so "timestamp   with
// time zone" and "TIMESTAMP WITH TIME ZONE" resolve identically.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(strings.TrimSpace(s))), " ")
}

// baseName strips parenthesized type parameters and trailing qualifiers:
// "VARCHAR(255)" -> "VARCHAR", "TIMESTAMP WITH TIME ZONE" -> "TIMESTAMP".
func baseName(s string) string {
	if i := strings.IndexByte(s, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(s[i:], ')'); j >= 0 {
			rest = s[i+j+1:]
		}
		s = strings.TrimSpace(s[:i]) + rest
	}
	switch {
	case strings.HasSuffix(s, " WITH TIME ZONE"):
		base := strings.TrimSuffix(s, " WITH TIME ZONE")
		if base == "TIMESTAMP" {
			return "TIMESTAMPTZ"
		}
		return "TIMETZ"
	case strings.HasSuffix(s, " WITHOUT TIME ZONE"):
		return strings.TrimSuffix(s, " WITHOUT TIME ZONE")
	case strings.HasSuffix(s, " UNSIGNED"):
		return strings.TrimSuffix(s, " UNSIGNED")
	}
	return s
}
