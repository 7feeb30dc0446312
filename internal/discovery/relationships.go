package discovery

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/reflectdb/reflectdb/internal/schema"
)

// RelationshipService infers bidirectional relationships from foreign keys.
type RelationshipService struct {
	logger *zap.Logger
}

// NewRelationshipService creates a relationship discovery service.
func NewRelationshipService(logger *zap.Logger) *RelationshipService {
	return &RelationshipService{logger: logger}
}

// DiscoverRelationships produces the relationship list for a set of tables.
// Every foreign key yields exactly one forward relationship on the owning
// table and one reverse relationship on the referenced table, with inverse
// (fromTable, fromColumn, toTable, toColumn) tuples.
//
// A foreign key normally points at a unique column, making the forward
// relationship many-to-one. When the referenced column is neither part of the
// referenced table's primary key nor covered by a single-column unique index,
// the schema does not define a valid relational foreign key; that anomaly is
// logged explicitly and the forward relationship degrades to one-to-many.
//
// Junction tables are not collapsed into many-to-many entries: a table with
// two foreign keys yields two independent pairs, and callers who want a
// many-to-many view register it explicitly.
func (s *RelationshipService) DiscoverRelationships(tables []schema.TableInfo) []schema.RelationshipInfo {
	byName := make(map[string]*schema.TableInfo, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	var rels []schema.RelationshipInfo
	taken := make(map[string]struct{}) // fromTable+"\x00"+name

	claim := func(rel schema.RelationshipInfo, fk schema.ForeignKeyInfo) schema.RelationshipInfo {
		key := rel.FromTable + "\x00" + rel.Name
		if _, dup := taken[key]; dup {
			// Two foreign keys between the same pair of tables collide on
			// the derived name; disambiguate with the owning column.
			disambiguated := fmt.Sprintf("%sBy%s", rel.Name, schema.ToPascalCase(fk.Column))
			s.logger.Warn("relationship name collision, disambiguating",
				zap.String("table", rel.FromTable),
				zap.String("name", rel.Name),
				zap.String("renamed", disambiguated))
			rel.Name = disambiguated
			key = rel.FromTable + "\x00" + rel.Name
		}
		taken[key] = struct{}{}
		return rel
	}

	for _, table := range tables {
		for _, fk := range table.ForeignKeys {
			referenced, known := byName[fk.ReferencedTable]
			if !known {
				s.logger.Warn("foreign key references undiscovered table, skipping",
					zap.String("table", table.Name),
					zap.String("column", fk.Column),
					zap.String("referenced", fk.ReferencedTable))
				continue
			}

			forwardType := schema.ManyToOne
			reverseType := schema.OneToMany
			if !referencedColumnUnique(referenced, fk.ReferencedColumn) {
				s.logger.Warn("foreign key references non-unique column, schema anomaly",
					zap.String("table", table.Name),
					zap.String("column", fk.Column),
					zap.String("referenced", fk.ReferencedTable+"."+fk.ReferencedColumn))
				forwardType = schema.OneToMany
				reverseType = schema.ManyToOne
			}

			forward := claim(schema.RelationshipInfo{
				Name:       schema.RelationName(fk.Column, fk.ReferencedTable),
				Type:       forwardType,
				FromTable:  table.Name,
				FromColumn: fk.Column,
				ToTable:    fk.ReferencedTable,
				ToColumn:   fk.ReferencedColumn,
			}, fk)

			reverse := claim(schema.RelationshipInfo{
				Name:       schema.InverseRelationName(table.Name),
				Type:       reverseType,
				FromTable:  fk.ReferencedTable,
				FromColumn: fk.ReferencedColumn,
				ToTable:    table.Name,
				ToColumn:   fk.Column,
			}, fk)

			rels = append(rels, forward, reverse)
		}
	}

	return rels
}

// referencedColumnUnique reports whether a foreign key target column is
// guaranteed unique on the referenced table: it is part of the primary key or
// carries a single-column unique index.
func referencedColumnUnique(table *schema.TableInfo, column string) bool {
	for _, pk := range table.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return table.IsColumnUnique(column)
}
