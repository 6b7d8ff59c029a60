package graph

import (
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/hmans/entityql/internal/schema"
)

// requested flattens the sub-selection of the resolved field. Fragment
// spreads and inline fragments are expanded; aliases are resolved to the
// field names.
func requested(p graphql.ResolveParams) schema.Selection {
	sel := schema.Selection{}
	for _, field := range p.Info.FieldASTs {
		if field == nil {
			continue
		}
		collect(sel, field.SelectionSet, p.Info.Fragments, map[string]bool{})
	}
	return sel
}

func collect(into schema.Selection, set *ast.SelectionSet, fragments map[string]ast.Definition, visited map[string]bool) {
	if set == nil {
		return
	}
	for _, s := range set.Selections {
		switch node := s.(type) {
		case *ast.Field:
			name := node.Name.Value
			if name == "__typename" {
				continue
			}
			sub := schema.Selection{}
			collect(sub, node.SelectionSet, fragments, map[string]bool{})
			if existing, ok := into[name]; ok && existing != nil {
				existing.Merge(sub)
				continue
			}
			into[name] = sub
		case *ast.InlineFragment:
			collect(into, node.SelectionSet, fragments, visited)
		case *ast.FragmentSpread:
			name := node.Name.Value
			if visited[name] {
				continue
			}
			visited[name] = true
			if def, ok := fragments[name].(*ast.FragmentDefinition); ok {
				collect(into, def.SelectionSet, fragments, visited)
			}
		}
	}
}
