// Package schema defines the in-memory model of a discovered database schema:
// tables, columns, indexes, foreign keys, views, and the relationships inferred
// from them. A SchemaInfo snapshot is built once by discovery and never mutated.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnInfo describes a single table column as reported by the database.
type ColumnInfo struct {
	Name            string
	Type            string // native type string, e.g. "VARCHAR(255)"
	Nullable        bool
	Default         *string
	IsPrimaryKey    bool
	IsAutoIncrement bool
	MaxLength       *int
	Precision       *int
	Scale           *int
}

// IndexInfo describes an index and its ordered column list.
type IndexInfo struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKeyInfo describes a foreign key constraint on a table.
type ForeignKeyInfo struct {
	Name             string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	OnDelete         string
	OnUpdate         string
}

// TableInfo is the normalized descriptor for one table.
type TableInfo struct {
	Name        string
	Schema      string
	Columns     []ColumnInfo
	PrimaryKey  []string // ordered; empty when the table has no declared key
	Indexes     []IndexInfo
	ForeignKeys []ForeignKeyInfo
}

// Column returns the column with the given name.
func (t *TableInfo) Column(name string) (*ColumnInfo, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableInfo) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the table's column names in declaration order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasAutoIncrement reports whether any column is auto-incrementing.
func (t *TableInfo) HasAutoIncrement() bool {
	for _, c := range t.Columns {
		if c.IsAutoIncrement {
			return true
		}
	}
	return false
}

// IsColumnIndexed reports whether the column is covered by the primary key or
// is the leading column of any index. Non-leading index members do not count:
// a composite index cannot serve a predicate on its trailing columns alone.
func (t *TableInfo) IsColumnIndexed(name string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == name {
			return true
		}
	}
	for _, idx := range t.Indexes {
		if len(idx.Columns) > 0 && idx.Columns[0] == name {
			return true
		}
	}
	return false
}

// IsColumnUnique reports whether the column alone is guaranteed unique: it is
// a single-column primary key or carries a single-column unique index.
func (t *TableInfo) IsColumnUnique(name string) bool {
	if len(t.PrimaryKey) == 1 && t.PrimaryKey[0] == name {
		return true
	}
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == 1 && idx.Columns[0] == name {
			return true
		}
	}
	return false
}

// Validate checks the structural invariant that every column referenced by the
// primary key or a foreign key exists in the column list.
func (t *TableInfo) Validate() error {
	for _, pk := range t.PrimaryKey {
		if !t.HasColumn(pk) {
			return fmt.Errorf("table %s: primary key column %s not in column list", t.Name, pk)
		}
	}
	for _, fk := range t.ForeignKeys {
		if !t.HasColumn(fk.Column) {
			return fmt.Errorf("table %s: foreign key column %s not in column list", t.Name, fk.Column)
		}
	}
	return nil
}

// ViewInfo describes a database view.
type ViewInfo struct {
	Name       string
	Columns    []ColumnInfo
	Definition string
}

// RelationType classifies the cardinality of a relationship.
type RelationType int

const (
	ManyToOne RelationType = iota
	OneToMany
	ManyToMany
)

// String returns the string representation of the relation type.
func (r RelationType) String() string {
	switch r {
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToMany:
		return "many-to-many"
	default:
		return "unknown"
	}
}

// RelationshipInfo describes one direction of an association derived from a
// foreign key. Every foreign key yields an inverse pair: a forward entry on
// the owning table and a reverse entry on the referenced table.
type RelationshipInfo struct {
	Name       string
	Type       RelationType
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string

	// Junction fields are set only on caller-registered many-to-many entries.
	JunctionTable      string
	JunctionFromColumn string
	JunctionToColumn   string
}

// SchemaInfo is the authoritative snapshot of a discovered schema. It is
// produced atomically by the discovery coordinator and replaced wholesale on
// refresh, never mutated in place.
type SchemaInfo struct {
	Tables        []TableInfo
	Relationships []RelationshipInfo
	Views         []ViewInfo
}

// Table returns the table with the given name.
func (s *SchemaInfo) Table(name string) (*TableInfo, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns all table names, sorted.
func (s *SchemaInfo) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// RelationshipsFor returns every relationship whose owning side is the given
// table.
func (s *SchemaInfo) RelationshipsFor(table string) []RelationshipInfo {
	var rels []RelationshipInfo
	for _, r := range s.Relationships {
		if r.FromTable == table {
			rels = append(rels, r)
		}
	}
	return rels
}

// Relationship returns the named relationship on the given table.
func (s *SchemaInfo) Relationship(table, name string) (*RelationshipInfo, bool) {
	for i := range s.Relationships {
		if s.Relationships[i].FromTable == table && s.Relationships[i].Name == name {
			return &s.Relationships[i], true
		}
	}
	return nil, false
}

// RelationshipNamesFor returns the relationship names available on a table,
// sorted. Used to build actionable lookup-miss errors.
func (s *SchemaInfo) RelationshipNamesFor(table string) []string {
	var names []string
	for _, r := range s.Relationships {
		if r.FromTable == table {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Stats summarizes the snapshot.
type Stats struct {
	Tables        int
	Views         int
	Columns       int
	Indexes       int
	ForeignKeys   int
	Relationships int
}

// Stats returns aggregate counts for the snapshot.
func (s *SchemaInfo) Stats() Stats {
	st := Stats{
		Tables:        len(s.Tables),
		Views:         len(s.Views),
		Relationships: len(s.Relationships),
	}
	for _, t := range s.Tables {
		st.Columns += len(t.Columns)
		st.Indexes += len(t.Indexes)
		st.ForeignKeys += len(t.ForeignKeys)
	}
	return st
}

// DependencyOrder returns table names ordered so that every table appears
// after the tables it references. Self-references are ignored; a reference
// cycle is reported as an error naming the tables involved.
func (s *SchemaInfo) DependencyOrder() ([]string, error) {
	// Kahn's algorithm over the FK edge set.
	inDegree := make(map[string]int, len(s.Tables))
	dependents := make(map[string][]string, len(s.Tables))
	for _, t := range s.Tables {
		inDegree[t.Name] = 0
	}
	for _, t := range s.Tables {
		for _, fk := range t.ForeignKeys {
			if fk.ReferencedTable == t.Name {
				continue
			}
			if _, known := inDegree[fk.ReferencedTable]; !known {
				continue // referenced table excluded from discovery
			}
			inDegree[t.Name]++
			dependents[fk.ReferencedTable] = append(dependents[fk.ReferencedTable], t.Name)
		}
	}

	ready := make([]string, 0, len(inDegree))
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(inDegree))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(inDegree) {
		var cyclic []string
		for name, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("circular table references detected: %s", strings.Join(cyclic, ", "))
	}

	return order, nil
}
