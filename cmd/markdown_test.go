package cmd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hmans/entityql/internal/model"
)

func TestRenderMarkdown(t *testing.T) {
	got, err := renderMarkdown("```graphql\ntype Person {\n  name: String\n}\n```\n")
	if err != nil {
		t.Fatalf("renderMarkdown() error = %v", err)
	}
	if !strings.Contains(got, "Person") {
		t.Errorf("renderMarkdown() = %q, want the code block content", got)
	}
}

func TestTextAttributes(t *testing.T) {
	person := model.Sample().Entity("Person")

	tests := []struct {
		name   string
		entity map[string]any
		want   []string
	}{
		{"single line", map[string]any{"name": "Ada"}, nil},
		{"multi line", map[string]any{"name": "Ada\nLovelace", "initials": "AL"}, []string{"name"}},
		{"enum is not text", map[string]any{"role": "ENGINEER\n"}, nil},
		{"null", map[string]any{"name": nil}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textAttributes(person, tt.entity); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("textAttributes() = %v, want %v", got, tt.want)
			}
		})
	}
}
