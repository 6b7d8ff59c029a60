// Package model describes the entity types served by entityql: their
// attributes, enums and relations. The model is the explicit schema
// description the GraphQL schema and the storage tables are derived from.
package model

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RelationKind selects how a relation is backed in storage.
type RelationKind string

const (
	// BelongsTo stores the foreign key on the owning entity. To-one.
	BelongsTo RelationKind = "belongsTo"
	// HasOne stores the foreign key on the target entity. To-one.
	HasOne RelationKind = "hasOne"
	// HasMany stores the foreign key on the target entity. To-many.
	HasMany RelationKind = "hasMany"
	// BelongsToMany stores pairs in a join table. To-many.
	BelongsToMany RelationKind = "belongsToMany"
)

// Many reports whether the relation holds more than one target.
func (k RelationKind) Many() bool {
	return k == HasMany || k == BelongsToMany
}

// Reserved field names. They cannot be used for attributes or relations.
const (
	IDField       = "id"
	HashCodeField = "hc"
)

// Methods are the reserved operation field names on every entity type.
var Methods = []string{"create", "clone", "update", "delete", "batch"}

// BuiltinScalars are the attribute types available without declaration.
var BuiltinScalars = []string{"String", "Int", "Float", "Boolean", "ID", "UUID", "JSON", "DateTime"}

var nameRe = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// Model is a set of entity types and enums.
type Model struct {
	Entities map[string]*Entity  `yaml:"entities"`
	Enums    map[string][]string `yaml:"enums,omitempty"`
}

// Entity is one entity type.
type Entity struct {
	Name       string               `yaml:"-"`
	Table      string               `yaml:"table,omitempty"`
	Attributes map[string]string    `yaml:"attributes"`
	Relations  map[string]*Relation `yaml:"relations,omitempty"`

	// foreign key column stored on this entity's table -> referenced entity
	foreignKeys map[string]string
}

// Relation is a reference from an entity to a target entity type.
type Relation struct {
	Name       string       `yaml:"-"`
	Owner      string       `yaml:"-"`
	Target     string       `yaml:"target"`
	Kind       RelationKind `yaml:"kind"`
	ForeignKey string       `yaml:"foreignKey,omitempty"`
	Through    string       `yaml:"through,omitempty"`
	OtherKey   string       `yaml:"otherKey,omitempty"`
}

// Load reads and validates a model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a model from YAML.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	if err := m.Finalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Finalize fills derived fields and defaults and validates the model.
// It must be called on models built in code before use.
func (m *Model) Finalize() error {
	if len(m.Entities) == 0 {
		return fmt.Errorf("model declares no entities")
	}

	for name, values := range m.Enums {
		if !nameRe.MatchString(name) {
			return fmt.Errorf("invalid enum name %q", name)
		}
		if m.Entities[name] != nil || isBuiltin(name) {
			return fmt.Errorf("enum %q clashes with another type", name)
		}
		if len(values) == 0 {
			return fmt.Errorf("enum %q has no values", name)
		}
		for _, v := range values {
			if !nameRe.MatchString(v) {
				return fmt.Errorf("invalid value %q in enum %q", v, name)
			}
		}
	}

	for _, name := range m.EntityNames() {
		e := m.Entities[name]
		if e == nil {
			e = &Entity{}
			m.Entities[name] = e
		}
		e.Name = name
		if e.Table == "" {
			e.Table = name
		}
		e.foreignKeys = map[string]string{}
		if !nameRe.MatchString(name) || isBuiltin(name) || name == "Root" {
			return fmt.Errorf("invalid entity name %q", name)
		}
		for attr, typ := range e.Attributes {
			if err := m.checkFieldName(e, attr); err != nil {
				return err
			}
			if !m.isAttributeType(typ) {
				return fmt.Errorf("attribute %s.%s has unknown type %q", name, attr, typ)
			}
		}
	}

	for _, name := range m.EntityNames() {
		e := m.Entities[name]
		for relName, rel := range e.Relations {
			if rel == nil {
				return fmt.Errorf("relation %s.%s is empty", name, relName)
			}
			if _, clash := e.Attributes[relName]; clash {
				return fmt.Errorf("relation %s.%s clashes with an attribute", name, relName)
			}
			if err := m.checkFieldName(e, relName); err != nil {
				return err
			}
			rel.Name = relName
			rel.Owner = name
			target, ok := m.Entities[rel.Target]
			if !ok {
				return fmt.Errorf("relation %s.%s targets unknown entity %q", name, relName, rel.Target)
			}
			switch rel.Kind {
			case BelongsTo:
				if rel.ForeignKey == "" {
					rel.ForeignKey = relName + "Id"
				}
				if err := addForeignKey(e, rel.ForeignKey, rel.Target); err != nil {
					return err
				}
			case HasOne, HasMany:
				if rel.ForeignKey == "" {
					rel.ForeignKey = lowerFirst(name) + "Id"
				}
				if err := addForeignKey(target, rel.ForeignKey, name); err != nil {
					return err
				}
			case BelongsToMany:
				if rel.Through == "" {
					return fmt.Errorf("relation %s.%s of kind belongsToMany needs a through table", name, relName)
				}
				if rel.ForeignKey == "" {
					rel.ForeignKey = lowerFirst(name) + "Id"
				}
				if rel.OtherKey == "" {
					rel.OtherKey = lowerFirst(rel.Target) + "Id"
				}
				if rel.ForeignKey == rel.OtherKey {
					return fmt.Errorf("relation %s.%s uses the same column for both sides of %s", name, relName, rel.Through)
				}
			default:
				return fmt.Errorf("relation %s.%s has unknown kind %q", name, relName, rel.Kind)
			}
		}
	}

	for _, name := range m.EntityNames() {
		e := m.Entities[name]
		for fk := range e.foreignKeys {
			if _, clash := e.Attributes[fk]; clash || fk == IDField {
				return fmt.Errorf("foreign key column %s.%s clashes with an attribute", name, fk)
			}
		}
	}
	return nil
}

func (m *Model) checkFieldName(e *Entity, field string) error {
	if !nameRe.MatchString(field) || strings.HasPrefix(field, "__") {
		return fmt.Errorf("invalid field name %s.%s", e.Name, field)
	}
	if field == IDField || field == HashCodeField || IsMethod(field) {
		return fmt.Errorf("field name %s.%s is reserved", e.Name, field)
	}
	return nil
}

func (m *Model) isAttributeType(typ string) bool {
	base := strings.TrimSuffix(typ, "!")
	if isBuiltin(base) {
		return true
	}
	_, ok := m.Enums[base]
	return ok
}

// EntityNames returns all entity names, sorted.
func (m *Model) EntityNames() []string {
	names := make([]string, 0, len(m.Entities))
	for name := range m.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entity returns the named entity or nil.
func (m *Model) Entity(name string) *Entity {
	return m.Entities[name]
}

// AttributeNames returns the entity's attribute names, sorted.
func (e *Entity) AttributeNames() []string {
	return sortedKeys(e.Attributes)
}

// RelationNames returns the entity's relation names, sorted.
func (e *Entity) RelationNames() []string {
	return sortedKeys(e.Relations)
}

// AttributeType returns the base type of an attribute, without the non-null marker.
func (e *Entity) AttributeType(attr string) (typ string, required bool, ok bool) {
	t, ok := e.Attributes[attr]
	if !ok {
		return "", false, false
	}
	return strings.TrimSuffix(t, "!"), strings.HasSuffix(t, "!"), true
}

// ForeignKeys returns the foreign key columns stored on the entity's table, sorted.
func (e *Entity) ForeignKeys() []string {
	return sortedKeys(e.foreignKeys)
}

// ForeignKeyTarget returns the entity type referenced by foreign key column fk.
func (e *Entity) ForeignKeyTarget(fk string) (string, bool) {
	target, ok := e.foreignKeys[fk]
	return target, ok
}

func addForeignKey(e *Entity, fk, target string) error {
	if existing, ok := e.foreignKeys[fk]; ok && existing != target {
		return fmt.Errorf("foreign key column %s.%s references both %s and %s", e.Name, fk, existing, target)
	}
	e.foreignKeys[fk] = target
	return nil
}

// Columns returns all storage columns: id, attributes, then foreign keys.
func (e *Entity) Columns() []string {
	cols := []string{IDField}
	cols = append(cols, e.AttributeNames()...)
	return append(cols, e.ForeignKeys()...)
}

// IsMethod reports whether name is a reserved operation name.
func IsMethod(name string) bool {
	for _, m := range Methods {
		if m == name {
			return true
		}
	}
	return false
}

func isBuiltin(name string) bool {
	for _, s := range BuiltinScalars {
		if s == name {
			return true
		}
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
