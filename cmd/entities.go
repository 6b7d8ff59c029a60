package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/schema"
)

// selection returns the GraphQL selection of typ's id, hash code and
// attributes, plus the ids of its relations when withRelations is set.
func selection(registry *schema.Registry, typ string, withRelations bool) string {
	e := registry.Model().Entity(typ)
	fields := []string{model.IDField, model.HashCodeField}
	fields = append(fields, e.AttributeNames()...)
	if withRelations {
		for _, rel := range e.RelationNames() {
			fields = append(fields, rel+" { "+model.IDField+" }")
		}
	}
	return "{ " + strings.Join(fields, " ") + " }"
}

// entityType checks that typ is declared by the model.
func entityType(registry *schema.Registry, typ string) error {
	if registry.Model().Entity(typ) == nil {
		return fmt.Errorf("unknown entity type %q (expected one of %s)", typ, strings.Join(registry.EntityTypes(), ", "))
	}
	return nil
}

func createDocument(registry *schema.Registry, typ string) string {
	return fmt.Sprintf("mutation($id: %s, $with: JSON!) { %s { create(id: $id, with: $with) %s } }",
		registry.IDType(), typ, selection(registry, typ, false))
}

func showDocument(registry *schema.Registry, typ string) string {
	return fmt.Sprintf("query($id: %s) { %s(id: $id) %s }",
		registry.IDType(), typ, selection(registry, typ, true))
}

func listDocument(registry *schema.Registry, typ string) string {
	return fmt.Sprintf("query($fts: String, $where: JSON, $order: JSON, $offset: Int, $limit: Int) "+
		"{ %s(fts: $fts, where: $where, order: $order, offset: $offset, limit: $limit) %s }",
		model.PluralName(typ), selection(registry, typ, false))
}

func updateDocument(registry *schema.Registry, typ string) string {
	return fmt.Sprintf("mutation($id: %s, $with: JSON!, $hc: String) { %s(id: $id) { update(with: $with, hc: $hc) %s } }",
		registry.IDType(), typ, selection(registry, typ, false))
}

// parseWith merges a JSON object and key=value assignments into the value
// of a with argument. Assigned values are decoded as JSON when they parse,
// and taken as strings otherwise.
func parseWith(raw string, assignments []string) (map[string]any, error) {
	with := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &with); err != nil {
			return nil, fmt.Errorf("invalid --with JSON: %w", err)
		}
	}
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q (expected key=value)", a)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		with[key] = v
	}
	return with, nil
}

// dig walks data along path and returns what it finds there.
func dig(data []byte, path ...string) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	for _, p := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil
		}
		v = m[p]
	}
	return v, nil
}

// row renders the values of an entity under columns.
func row(entity map[string]any, columns []string) []string {
	cells := make([]string, len(columns))
	for i, c := range columns {
		switch v := entity[c].(type) {
		case nil:
		case string:
			cells[i] = v
		case map[string]any, []any:
			data, _ := json.Marshal(v)
			cells[i] = string(data)
		default:
			cells[i] = fmt.Sprint(v)
		}
	}
	return cells
}
