package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/schema"
)

// NewSchema builds the executable schema from the registry's parsed SDL,
// binding every field to r.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	b := &builder{
		resolver: r,
		registry: r.Engine.Registry(),
		types: map[string]graphql.Type{
			"String":   graphql.String,
			"Int":      graphql.Int,
			"Float":    graphql.Float,
			"Boolean":  graphql.Boolean,
			"ID":       graphql.ID,
			"UUID":     UUIDScalar,
			"JSON":     JSONScalar,
			"DateTime": DateTimeScalar,
		},
	}
	defs := b.registry.Schema().Types

	for _, name := range sortedDefinitions(defs, ast.Enum) {
		b.types[name] = b.enum(defs[name])
	}
	for _, name := range sortedDefinitions(defs, ast.Object) {
		def := defs[name]
		b.types[name] = graphql.NewObject(graphql.ObjectConfig{
			Name:        def.Name,
			Description: def.Description,
			Fields:      graphql.FieldsThunk(func() graphql.Fields { return b.fields(def) }),
		})
	}

	root, ok := b.types[model.RootType].(*graphql.Object)
	if !ok {
		return graphql.Schema{}, fmt.Errorf("schema has no %s type", model.RootType)
	}
	s, err := graphql.NewSchema(graphql.SchemaConfig{Query: root, Mutation: root})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("building executable schema: %w", err)
	}
	if b.err != nil {
		return graphql.Schema{}, b.err
	}
	return s, nil
}

type builder struct {
	resolver *Resolver
	registry *schema.Registry
	types    map[string]graphql.Type
	err      error
}

func sortedDefinitions(defs map[string]*ast.Definition, kind ast.DefinitionKind) []string {
	var names []string
	for name, def := range defs {
		if def.Kind == kind && !def.BuiltIn && !strings.HasPrefix(name, "__") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (b *builder) enum(def *ast.Definition) *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, v := range def.EnumValues {
		values[v.Name] = &graphql.EnumValueConfig{Value: v.Name, Description: v.Description}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:        def.Name,
		Description: def.Description,
		Values:      values,
	})
}

func (b *builder) fields(def *ast.Definition) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		resolve, err := b.resolve(def.Name, f)
		if err != nil {
			b.err = err
			continue
		}
		fields[f.Name] = &graphql.Field{
			Name:        f.Name,
			Type:        b.output(f.Type),
			Args:        b.args(f.Arguments),
			Resolve:     resolve,
			Description: f.Description,
		}
	}
	return fields
}

// resolve picks the resolver of field f of type typ from its classification.
func (b *builder) resolve(typ string, f *ast.FieldDefinition) (graphql.FieldResolveFn, error) {
	r := b.resolver
	if typ == model.RootType {
		if f.Type.Elem != nil {
			return r.queryMany(f.Type.Name()), nil
		}
		return r.queryOne(f.Type.Name()), nil
	}

	c, err := b.registry.Classify(typ)
	if err != nil {
		return nil, err
	}
	kind, ok := c.KindOf(f.Name)
	if !ok {
		return nil, fmt.Errorf("field %q on type %q is not classified", f.Name, typ)
	}
	switch kind {
	case schema.Method:
		return r.method(typ, f.Name), nil
	case schema.Relation:
		return r.relation(c.Relation[f.Name], f.Name, f.Type.Elem != nil), nil
	}
	if f.Name == model.HashCodeField {
		return r.hashCode(typ), nil
	}
	return r.attribute(typ, f.Name), nil
}

func (b *builder) typeOf(t *ast.Type) graphql.Type {
	var out graphql.Type
	if t.Elem != nil {
		out = graphql.NewList(b.typeOf(t.Elem))
	} else {
		out = b.types[t.NamedType]
	}
	if t.NonNull {
		out = graphql.NewNonNull(out)
	}
	return out
}

func (b *builder) output(t *ast.Type) graphql.Output {
	out, _ := b.typeOf(t).(graphql.Output)
	return out
}

func (b *builder) args(defs ast.ArgumentDefinitionList) graphql.FieldConfigArgument {
	if len(defs) == 0 {
		return nil
	}
	args := graphql.FieldConfigArgument{}
	for _, a := range defs {
		in, _ := b.typeOf(a.Type).(graphql.Input)
		cfg := &graphql.ArgumentConfig{Type: in, Description: a.Description}
		if a.DefaultValue != nil {
			if v, err := a.DefaultValue.Value(nil); err == nil {
				if i, ok := v.(int64); ok {
					v = int(i)
				}
				cfg.DefaultValue = v
			}
		}
		args[a.Name] = cfg
	}
	return args
}
