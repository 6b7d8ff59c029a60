package model

import (
	"reflect"
	"strings"
	"testing"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestSample(t *testing.T) {
	m := Sample()

	if got := m.EntityNames(); !reflect.DeepEqual(got, []string{"OrgUnit", "Person", "Project"}) {
		t.Errorf("EntityNames() = %v", got)
	}

	person := m.Entity("Person")
	want := []string{"id", "active", "initials", "name", "role", "directorId", "orgUnitId", "personId"}
	if got := person.Columns(); !reflect.DeepEqual(got, want) {
		t.Errorf("Person.Columns() = %v, want %v", got, want)
	}

	org := m.Entity("OrgUnit")
	if got := org.ForeignKeys(); !reflect.DeepEqual(got, []string{"parentUnitId"}) {
		t.Errorf("OrgUnit.ForeignKeys() = %v", got)
	}
	if org.Table != "OrgUnit" {
		t.Errorf("OrgUnit.Table = %q", org.Table)
	}

	rel := org.Relations["members"]
	if rel.Name != "members" || rel.Owner != "OrgUnit" || !rel.Kind.Many() {
		t.Errorf("members relation = %+v", rel)
	}

	typ, required, ok := m.Entity("Project").AttributeType("name")
	if !ok || typ != "String" || !required {
		t.Errorf("AttributeType(name) = %q, %v, %v", typ, required, ok)
	}
}

func TestFinalizeDefaults(t *testing.T) {
	m, err := Parse([]byte(`
entities:
  A:
    attributes: { title: String }
    relations:
      b: { target: B, kind: belongsTo }
      cs: { target: B, kind: hasMany }
      tags: { target: B, kind: belongsToMany, through: AB }
  B:
    attributes: {}
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	a := m.Entity("A")
	if fk := a.Relations["b"].ForeignKey; fk != "bId" {
		t.Errorf("belongsTo default fk = %q, want bId", fk)
	}
	if fk := a.Relations["cs"].ForeignKey; fk != "aId" {
		t.Errorf("hasMany default fk = %q, want aId", fk)
	}
	tags := a.Relations["tags"]
	if tags.ForeignKey != "aId" || tags.OtherKey != "bId" {
		t.Errorf("belongsToMany keys = %q/%q", tags.ForeignKey, tags.OtherKey)
	}
	if got := m.Entity("B").ForeignKeys(); !reflect.DeepEqual(got, []string{"aId"}) {
		t.Errorf("B.ForeignKeys() = %v", got)
	}
}

func TestFinalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no entities", "entities: {}", "no entities"},
		{"reserved id", "entities:\n  A:\n    attributes: { id: String }", "reserved"},
		{"reserved method", "entities:\n  A:\n    attributes: { clone: String }", "reserved"},
		{"unknown type", "entities:\n  A:\n    attributes: { x: Money }", "unknown type"},
		{"unknown target", "entities:\n  A:\n    relations:\n      b: { target: B, kind: belongsTo }", "unknown entity"},
		{"unknown kind", "entities:\n  A:\n    relations:\n      b: { target: A, kind: ownsMany }", "unknown kind"},
		{"missing through", "entities:\n  A:\n    relations:\n      b: { target: A, kind: belongsToMany }", "through"},
		{"relation clashes with attribute", "entities:\n  A:\n    attributes: { b: String }\n    relations:\n      b: { target: A, kind: belongsTo }", "clashes"},
		{"fk clashes with attribute", "entities:\n  A:\n    attributes: { bId: String }\n    relations:\n      b: { target: A, kind: belongsTo }", "clashes"},
		{"root entity", "entities:\n  Root:\n    attributes: { x: String }", "invalid entity name"},
		{"empty enum", "entities:\n  A:\n    attributes: { x: E }\nenums:\n  E: []", "no values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSDLLoads(t *testing.T) {
	for _, idType := range []string{"UUID", "ID", "String"} {
		t.Run(idType, func(t *testing.T) {
			sdl := Sample().SDL(idType)
			schema, err := gqlparser.LoadSchema(&ast.Source{Name: "model.graphql", Input: sdl})
			if err != nil {
				t.Fatalf("LoadSchema() error = %v\n%s", err, sdl)
			}

			if schema.Query == nil || schema.Query.Name != RootType {
				t.Fatalf("query root = %v", schema.Query)
			}
			if schema.Mutation == nil || schema.Mutation.Name != RootType {
				t.Fatalf("mutation root = %v", schema.Mutation)
			}

			people := schema.Query.Fields.ForName("Persons")
			if people == nil || people.Type.String() != "[Person]!" {
				t.Errorf("Root.Persons = %v", people)
			}
			if limit := people.Arguments.ForName("limit"); limit == nil || limit.DefaultValue.String() != "100" {
				t.Errorf("Root.Persons limit default = %v", limit)
			}

			org := schema.Types["OrgUnit"]
			if f := org.Fields.ForName("members"); f == nil || f.Type.Elem == nil {
				t.Errorf("OrgUnit.members should be a list, got %v", f)
			}
			if f := org.Fields.ForName("director"); f == nil || f.Type.Elem != nil {
				t.Errorf("OrgUnit.director should not be a list, got %v", f)
			}
			if f := org.Fields.ForName("delete"); f == nil || f.Type.String() != idType+"!" {
				t.Errorf("OrgUnit.delete = %v", f)
			}
			if f := org.Fields.ForName("hc"); f == nil {
				t.Error("OrgUnit.hc missing")
			}
		})
	}
}
