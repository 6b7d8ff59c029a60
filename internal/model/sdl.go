package model

import (
	"fmt"
	"strings"
)

// RootType is the object type used for both query and mutation operations.
const RootType = "Root"

// PluralName is the root field name of the query-many operation for typ.
func PluralName(typ string) string {
	return typ + "s"
}

// SDL renders the GraphQL schema of the model. idType names the scalar used
// for entity identifiers.
func (m *Model) SDL(idType string) string {
	var b strings.Builder

	b.WriteString("scalar UUID\nscalar JSON\nscalar DateTime\n\n")

	for _, name := range sortedKeys(m.Enums) {
		fmt.Fprintf(&b, "enum %s {\n", name)
		for _, v := range m.Enums[name] {
			fmt.Fprintf(&b, "  %s\n", v)
		}
		b.WriteString("}\n\n")
	}

	fmt.Fprintf(&b, "schema {\n  query: %s\n  mutation: %s\n}\n\n", RootType, RootType)

	fmt.Fprintf(&b, "type %s {\n", RootType)
	for _, name := range m.EntityNames() {
		b.WriteString(QueryOneField(name, idType))
		b.WriteString(QueryManyField(PluralName(name), name))
	}
	b.WriteString("}\n")

	for _, name := range m.EntityNames() {
		e := m.Entities[name]
		fmt.Fprintf(&b, "\ntype %s {\n", name)
		fmt.Fprintf(&b, "  %s: %s!\n", IDField, idType)
		fmt.Fprintf(&b, "  %s: String!\n", HashCodeField)
		for _, attr := range e.AttributeNames() {
			fmt.Fprintf(&b, "  %s: %s\n", attr, e.Attributes[attr])
		}
		for _, relName := range e.RelationNames() {
			rel := e.Relations[relName]
			if rel.Kind.Many() {
				b.WriteString(QueryManyField(relName, rel.Target))
			} else {
				b.WriteString(RelationOneField(relName, rel.Target))
			}
		}
		b.WriteString(MethodFields(name, idType))
		b.WriteString("}\n")
	}

	return b.String()
}

// QueryOneField is the root field fetching one entity by id or filter.
func QueryOneField(typ, idType string) string {
	return fmt.Sprintf("  %s(id: %s, where: JSON): %s\n", typ, idType, typ)
}

// QueryManyField is a field fetching a list of entities, used both on the
// root type and for to-many relations.
func QueryManyField(field, typ string) string {
	return fmt.Sprintf("  %s(fts: String, where: JSON, include: JSON, order: JSON, offset: Int = 0, limit: Int = 100): [%s]!\n", field, typ)
}

// RelationOneField is a to-one relation field.
func RelationOneField(field, typ string) string {
	return fmt.Sprintf("  %s(where: JSON): %s\n", field, typ)
}

// MethodFields are the operation fields available on every entity type.
func MethodFields(typ, idType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  create(id: %s, with: JSON!): %s\n", idType, typ)
	fmt.Fprintf(&b, "  clone: %s\n", typ)
	fmt.Fprintf(&b, "  update(with: JSON!, hc: String): %s\n", typ)
	fmt.Fprintf(&b, "  delete: %s!\n", idType)
	fmt.Fprintf(&b, "  batch(with: JSON!): %s\n", typ)
	return b.String()
}
