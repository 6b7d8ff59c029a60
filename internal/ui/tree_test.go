package ui

import (
	"strings"
	"testing"

	"github.com/hmans/entityql/internal/model"
)

func TestBuildModelTree(t *testing.T) {
	nodes := BuildModelTree(model.Sample())

	// three entity types and one enum
	if len(nodes) != 4 {
		t.Fatalf("len(nodes) = %d, want 4", len(nodes))
	}

	project := nodes[2]
	if !strings.Contains(project.Label, "Project") {
		t.Errorf("nodes[2] = %q, want Project", project.Label)
	}
	if len(project.Children) != 2 {
		t.Fatalf("Project has %d groups, want attributes and relations", len(project.Children))
	}
	staff := project.Children[1].Children[0].Label
	for _, want := range []string{"staff", "belongsToMany", "Person", "ProjectStaff"} {
		if !strings.Contains(staff, want) {
			t.Errorf("staff label %q does not contain %q", staff, want)
		}
	}

	if !strings.Contains(nodes[3].Label, "ENGINEER, MANAGER, DIRECTOR") {
		t.Errorf("enum label = %q", nodes[3].Label)
	}
}

func TestRenderTree(t *testing.T) {
	nodes := []*TreeNode{{
		Label: "root",
		Children: []*TreeNode{
			{Label: "a", Children: []*TreeNode{{Label: "a1"}}},
			{Label: "b"},
		},
	}}

	got := RenderTree(nodes)
	for _, want := range []string{"root\n", "├─ a\n", "│  └─ a1\n", "└─ b\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderTree() missing %q in:\n%s", want, got)
		}
	}
}

func TestRenderTable(t *testing.T) {
	got := RenderTable([]string{"id", "name"}, [][]string{
		{"p1", "Grace Hopper"},
		{"p2", strings.Repeat("x", 60)},
	})

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header, divider and two rows:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[3], "...") {
		t.Errorf("long cell not truncated: %q", lines[3])
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"much too long", 8, "much ..."},
		{"äöüäöüäöü", 6, "äöü..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
