package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hmans/entityql/internal/model"
)

var columnTypes = map[string]string{
	"String":   "TEXT",
	"ID":       "TEXT",
	"UUID":     "TEXT",
	"DateTime": "TEXT",
	"JSON":     "TEXT",
	"Int":      "INTEGER",
	"Boolean":  "INTEGER",
	"Float":    "REAL",
}

// Bootstrap creates the tables of all entities and join tables that do not
// exist yet. Existing tables are left untouched; this is not a migration tool.
func (s *Datastore) Bootstrap(ctx context.Context) error {
	for _, stmt := range BootstrapStatements(s.model) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrapping schema: %w", HandleSQLError(err))
		}
	}
	return nil
}

// BootstrapStatements returns the CREATE TABLE statements for m.
func BootstrapStatements(m *model.Model) []string {
	var stmts []string
	joinTables := map[string]string{}

	for _, name := range m.EntityNames() {
		e := m.Entity(name)

		cols := []string{quote(model.IDField) + " TEXT PRIMARY KEY NOT NULL"}
		for _, attr := range e.AttributeNames() {
			typ, _, _ := e.AttributeType(attr)
			sqlType, ok := columnTypes[typ]
			if !ok {
				// enums
				sqlType = "TEXT"
			}
			cols = append(cols, quote(attr)+" "+sqlType)
		}
		for _, fk := range e.ForeignKeys() {
			target, _ := e.ForeignKeyTarget(fk)
			cols = append(cols, fmt.Sprintf("%s TEXT REFERENCES %s(%s) ON DELETE SET NULL",
				quote(fk), quote(m.Entity(target).Table), quote(model.IDField)))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", quote(e.Table), strings.Join(cols, ",\n  ")))

		for _, relName := range e.RelationNames() {
			rel := e.Relations[relName]
			if rel.Kind != model.BelongsToMany {
				continue
			}
			if _, done := joinTables[rel.Through]; done {
				continue
			}
			target := m.Entity(rel.Target)
			joinTables[rel.Through] = fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (\n  %s TEXT NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n  %s TEXT NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n  PRIMARY KEY (%s, %s)\n)",
				quote(rel.Through),
				quote(rel.ForeignKey), quote(e.Table), quote(model.IDField),
				quote(rel.OtherKey), quote(target.Table), quote(model.IDField),
				quote(rel.ForeignKey), quote(rel.OtherKey))
		}
	}

	names := make([]string, 0, len(joinTables))
	for name := range joinTables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stmts = append(stmts, joinTables[name])
	}
	return stmts
}
