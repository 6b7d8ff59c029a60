package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hmans/entityql/internal/model"
)

const (
	treeBranch     = "├─ "
	treeLastBranch = "└─ "
	treePipe       = "│  "
	treeSpace      = "   "
)

// TreeNode is a line of the model tree.
type TreeNode struct {
	Label    string
	Children []*TreeNode
}

// BuildModelTree arranges the model as entity types with their attributes
// and relations, followed by the enums.
func BuildModelTree(m *model.Model) []*TreeNode {
	var nodes []*TreeNode
	for _, name := range m.EntityNames() {
		e := m.Entity(name)
		node := &TreeNode{Label: TypeName.Render(name)}

		if attrs := e.AttributeNames(); len(attrs) > 0 {
			group := &TreeNode{Label: Muted.Render("attributes")}
			for _, attr := range attrs {
				group.Children = append(group.Children, &TreeNode{
					Label: fmt.Sprintf("%s %s", attr, Secondary.Render(e.Attributes[attr])),
				})
			}
			node.Children = append(node.Children, group)
		}

		if rels := e.RelationNames(); len(rels) > 0 {
			group := &TreeNode{Label: Muted.Render("relations")}
			for _, relName := range rels {
				rel := e.Relations[relName]
				group.Children = append(group.Children, &TreeNode{
					Label: fmt.Sprintf("%s %s %s %s", relName, RenderKind(string(rel.Kind), rel.Kind.Many()),
						TypeName.Render(rel.Target), Muted.Render(relationKeys(rel))),
				})
			}
			node.Children = append(node.Children, group)
		}
		nodes = append(nodes, node)
	}

	for _, name := range sortedKeys(m.Enums) {
		nodes = append(nodes, &TreeNode{
			Label: fmt.Sprintf("%s %s", TypeName.Render(name), Muted.Render("["+strings.Join(m.Enums[name], ", ")+"]")),
		})
	}
	return nodes
}

func relationKeys(rel *model.Relation) string {
	if rel.Through != "" {
		return fmt.Sprintf("(%s: %s, %s)", rel.Through, rel.ForeignKey, rel.OtherKey)
	}
	return "(" + rel.ForeignKey + ")"
}

// RenderTree renders nodes with tree connectors. Root nodes have none.
func RenderTree(nodes []*TreeNode) string {
	var sb strings.Builder
	for _, node := range nodes {
		sb.WriteString(node.Label)
		sb.WriteString("\n")
		renderChildren(&sb, node.Children, "")
	}
	return sb.String()
}

func renderChildren(sb *strings.Builder, nodes []*TreeNode, prefix string) {
	for i, node := range nodes {
		isLast := i == len(nodes)-1
		connector, next := treeBranch, treePipe
		if isLast {
			connector, next = treeLastBranch, treeSpace
		}
		sb.WriteString(TreeLine.Render(prefix + connector))
		sb.WriteString(node.Label)
		sb.WriteString("\n")
		renderChildren(sb, node.Children, prefix+next)
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
