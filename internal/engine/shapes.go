package engine

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Shape is a JSON schema for structural argument checks. Expect is the
// human readable form used in error messages.
type Shape struct {
	Expect string
	schema *gojsonschema.Schema
}

func mustShape(expect, src string) *Shape {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid shape %s: %v", expect, err))
	}
	return &Shape{Expect: expect, schema: s}
}

// Check validates v and describes every violation.
func (s *Shape) Check(v any) error {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

var (
	relationChangeShape = mustShape("{ set?: [ string* ], add?: [ string+ ], del?: [ string+ ] }", `{
		"type": "object",
		"properties": {
			"set": {"type": "array", "items": {"type": "string"}},
			"add": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"del": {"type": "array", "items": {"type": "string"}, "minItems": 1}
		},
		"additionalProperties": false
	}`)

	orderShape = mustShape("( string | [ ( string | [ string, string ] )+ ] )", `{
		"oneOf": [
			{"type": "string"},
			{
				"type": "array",
				"minItems": 1,
				"items": {
					"oneOf": [
						{"type": "string"},
						{"type": "array", "items": {"type": "string"}, "minItems": 2, "maxItems": 2}
					]
				}
			}
		]
	}`)

	createStepShape = mustShape("{ op: string, type: string, id?: string, root?: boolean, ref?: string, with: object }", `{
		"type": "object",
		"required": ["op", "type", "with"],
		"properties": {
			"op": {"type": "string"},
			"type": {"type": "string"},
			"id": {"type": "string"},
			"root": {"type": "boolean"},
			"ref": {"type": "string"},
			"with": {"type": "object"}
		},
		"additionalProperties": false
	}`)

	cloneStepShape = mustShape("{ op: string, type: string, id: string, root?: boolean, ref?: string }", `{
		"type": "object",
		"required": ["op", "type", "id"],
		"properties": {
			"op": {"type": "string"},
			"type": {"type": "string"},
			"id": {"type": "string"},
			"root": {"type": "boolean"},
			"ref": {"type": "string"}
		},
		"additionalProperties": false
	}`)

	updateStepShape = mustShape("{ op: string, type: string, id: string, root?: boolean, hc?: string, with: object }", `{
		"type": "object",
		"required": ["op", "type", "id", "with"],
		"properties": {
			"op": {"type": "string"},
			"type": {"type": "string"},
			"id": {"type": "string"},
			"root": {"type": "boolean"},
			"hc": {"type": "string"},
			"with": {"type": "object"}
		},
		"additionalProperties": false
	}`)

	deleteStepShape = mustShape("{ op: string, type: string, id: string, root?: boolean }", `{
		"type": "object",
		"required": ["op", "type", "id"],
		"properties": {
			"op": {"type": "string"},
			"type": {"type": "string"},
			"id": {"type": "string"},
			"root": {"type": "boolean"}
		},
		"additionalProperties": false
	}`)
)
