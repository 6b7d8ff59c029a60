// Package schema introspects the GraphQL schema generated from the model and
// classifies the fields of every entity type.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/model"
)

// Kind is the classification of a field.
type Kind int

const (
	Attribute Kind = iota + 1
	Relation
	Method
)

func (k Kind) String() string {
	switch k {
	case Attribute:
		return "attribute"
	case Relation:
		return "relation"
	case Method:
		return "method"
	default:
		return "unknown"
	}
}

// Classification partitions the fields of one entity type. Each map goes
// from field name to the field's unwrapped type name.
type Classification struct {
	Type      string
	Attribute map[string]string
	Relation  map[string]string
	Method    map[string]string
}

// KindOf returns the classification of field.
func (c *Classification) KindOf(field string) (Kind, bool) {
	if _, ok := c.Attribute[field]; ok {
		return Attribute, true
	}
	if _, ok := c.Relation[field]; ok {
		return Relation, true
	}
	if _, ok := c.Method[field]; ok {
		return Method, true
	}
	return 0, false
}

// Cardinality tells whether a relation holds one or many targets.
type Cardinality int

const (
	One Cardinality = iota + 1
	Many
)

// Registry answers introspection questions about the generated schema.
// Classifications are computed once at construction.
type Registry struct {
	schema  *ast.Schema
	model   *model.Model
	idType  string
	sdl     string
	classes map[string]*Classification
}

// NewRegistry generates the schema of m and classifies every entity type.
func NewRegistry(m *model.Model, idType string) (*Registry, error) {
	if idType == "" {
		idType = "UUID"
	}
	sdl := m.SDL(idType)
	s, err := gqlparser.LoadSchema(&ast.Source{Name: "entityql.graphql", Input: sdl})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSchema, err, "loading generated schema")
	}

	r := &Registry{
		schema:  s,
		model:   m,
		idType:  idType,
		sdl:     sdl,
		classes: make(map[string]*Classification, len(m.Entities)),
	}
	for _, name := range m.EntityNames() {
		c, err := r.classify(name)
		if err != nil {
			return nil, err
		}
		r.classes[name] = c
	}
	return r, nil
}

// Schema returns the parsed schema.
func (r *Registry) Schema() *ast.Schema { return r.schema }

// Model returns the model the schema was generated from.
func (r *Registry) Model() *model.Model { return r.model }

// IDType returns the scalar name used for identifiers.
func (r *Registry) IDType() string { return r.idType }

// SDL returns the generated schema source.
func (r *Registry) SDL() string { return r.sdl }

// EntityTypes returns the names of all entity types, sorted.
func (r *Registry) EntityTypes() []string { return r.model.EntityNames() }

// Classify returns the field classification of typ.
func (r *Registry) Classify(typ string) (*Classification, error) {
	c, ok := r.classes[typ]
	if !ok {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such entity type %q", typ)
	}
	return c, nil
}

func (r *Registry) classify(typ string) (*Classification, error) {
	def := r.schema.Types[typ]
	if def == nil || def.Kind != ast.Object {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such object type %q", typ)
	}
	entity := r.model.Entity(typ)

	c := &Classification{
		Type:      typ,
		Attribute: map[string]string{},
		Relation:  map[string]string{},
		Method:    map[string]string{},
	}
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		base := f.Type.Name()
		if model.IsMethod(f.Name) {
			c.Method[f.Name] = base
			continue
		}
		fieldDef := r.schema.Types[base]
		if fieldDef == nil {
			return nil, apperr.Errorf(apperr.ErrSchema, "field %q on type %q has undefined type %q", f.Name, typ, base)
		}
		switch fieldDef.Kind {
		case ast.Scalar, ast.Enum:
			c.Attribute[f.Name] = base
		case ast.Object:
			if entity == nil || entity.Relations[f.Name] == nil {
				return nil, apperr.Errorf(apperr.ErrSchema, "field %q on type %q is an object without a relation resolver", f.Name, typ)
			}
			c.Relation[f.Name] = base
		default:
			return nil, apperr.Errorf(apperr.ErrSchema, "field %q on type %q is neither attribute, relation nor method", f.Name, typ)
		}
	}
	return c, nil
}

// Relation returns the model relation rel of typ.
func (r *Registry) Relation(typ, rel string) (*model.Relation, error) {
	e := r.model.Entity(typ)
	if e == nil {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such entity type %q", typ)
	}
	relation, ok := e.Relations[rel]
	if !ok {
		return nil, apperr.Errorf(apperr.ErrSchema, "no such relation %q on type %q", rel, typ)
	}
	return relation, nil
}

// Cardinality inspects the schema type of relation field rel: a list means many.
func (r *Registry) Cardinality(typ, rel string) (Cardinality, error) {
	f := r.field(typ, rel)
	if f == nil {
		return 0, apperr.Errorf(apperr.ErrSchema, "no such relation %q on type %q", rel, typ)
	}
	if f.Type.Elem != nil {
		return Many, nil
	}
	return One, nil
}

// FieldType returns the declared type of a field or nil.
func (r *Registry) FieldType(typ, field string) *ast.Type {
	if f := r.field(typ, field); f != nil {
		return f.Type
	}
	return nil
}

// IsEnum reports whether name is an enum type.
func (r *Registry) IsEnum(name string) bool {
	def := r.schema.Types[name]
	return def != nil && def.Kind == ast.Enum
}

// EnumValues returns the values of enum type name, sorted.
func (r *Registry) EnumValues(name string) []string {
	def := r.schema.Types[name]
	if def == nil || def.Kind != ast.Enum {
		return nil
	}
	values := make([]string, 0, len(def.EnumValues))
	for _, v := range def.EnumValues {
		values = append(values, v.Name)
	}
	sort.Strings(values)
	return values
}

// Columns returns the storage-native columns of typ.
func (r *Registry) Columns(typ string) []string {
	if e := r.model.Entity(typ); e != nil {
		return e.Columns()
	}
	return nil
}

func (r *Registry) field(typ, name string) *ast.FieldDefinition {
	def := r.schema.Types[typ]
	if def == nil {
		return nil
	}
	return def.Fields.ForName(name)
}

// ParseAttribute coerces v through the scalar or enum parser of attribute
// field on typ.
func (r *Registry) ParseAttribute(typ, field string, v any) (any, error) {
	t := r.FieldType(typ, field)
	if t == nil {
		return nil, apperr.Errorf(apperr.ErrUnknownField, "no such field %q on type %q", field, typ)
	}
	if v == nil {
		if t.NonNull {
			return nil, apperr.Errorf(apperr.ErrValidation, "field %q on type %q must not be null", field, typ)
		}
		return nil, nil
	}
	name := t.Name()
	if r.IsEnum(name) {
		s, ok := v.(string)
		if !ok {
			return nil, apperr.Errorf(apperr.ErrType, "invalid value for enum type %q of field %q on type %q: expected string", name, field, typ)
		}
		for _, allowed := range r.EnumValues(name) {
			if allowed == s {
				return s, nil
			}
		}
		return nil, apperr.Errorf(apperr.ErrValidation, "invalid value %q for enum type %q of field %q on type %q", s, name, field, typ)
	}
	parse, ok := Scalars[name]
	if !ok {
		return nil, apperr.Errorf(apperr.ErrSchema, "no parser for scalar %q", name)
	}
	out, err := parse(v)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrType, err, "invalid value for field %q on type %q", field, typ)
	}
	return out, nil
}

// String describes a classification for diagnostics.
func (c *Classification) String() string {
	return fmt.Sprintf("%s{attributes: %v, relations: %v, methods: %v}",
		c.Type, sortedKeys(c.Attribute), sortedKeys(c.Relation), sortedKeys(c.Method))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
