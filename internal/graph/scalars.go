package graph

import (
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/hmans/entityql/internal/schema"
)

// JSONScalar carries arbitrary JSON values. Object and list literals are
// accepted inline; variables inside a literal are not.
var JSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value.",
	Serialize:   func(value any) any { return value },
	ParseValue:  func(value any) any { return value },
	ParseLiteral: func(valueAST ast.Value) any {
		return literal(valueAST)
	},
})

// UUIDScalar is a canonical UUID string.
var UUIDScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "UUID",
	Description: "A UUID in canonical string form.",
	Serialize:   func(value any) any { return value },
	ParseValue:  func(value any) any { return parseWith("UUID", value) },
	ParseLiteral: func(valueAST ast.Value) any {
		if sv, ok := valueAST.(*ast.StringValue); ok {
			return parseWith("UUID", sv.Value)
		}
		return nil
	},
})

// DateTimeScalar is an RFC 3339 timestamp, normalized to UTC.
var DateTimeScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "DateTime",
	Description: "An RFC 3339 timestamp.",
	Serialize:   func(value any) any { return value },
	ParseValue:  func(value any) any { return parseWith("DateTime", value) },
	ParseLiteral: func(valueAST ast.Value) any {
		if sv, ok := valueAST.(*ast.StringValue); ok {
			return parseWith("DateTime", sv.Value)
		}
		return nil
	},
})

// parseWith runs the attribute parser of scalar. Invalid input yields nil,
// which graphql-go reports as an invalid value.
func parseWith(scalar string, value any) any {
	out, err := schema.Scalars[scalar](value)
	if err != nil {
		return nil
	}
	return out
}

// literal converts an inline GraphQL value into its JSON counterpart.
func literal(v ast.Value) any {
	switch val := v.(type) {
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			out[f.Name.Value] = literal(f.Value)
		}
		return out
	case *ast.ListValue:
		out := make([]any, len(val.Values))
		for i, item := range val.Values {
			out[i] = literal(item)
		}
		return out
	case *ast.StringValue:
		return val.Value
	case *ast.BooleanValue:
		return val.Value
	case *ast.IntValue:
		if i, err := strconv.ParseInt(val.Value, 10, 64); err == nil {
			return i
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(val.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.EnumValue:
		return val.Value
	default:
		return nil
	}
}
