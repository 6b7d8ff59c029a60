package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/ui"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <type> <id>",
	Short: "Show an entity's attributes and relations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := openApp(ctx, rootDir, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		entity, err := showEntity(ctx, app, args[0], args[1])
		if err != nil {
			return err
		}

		data, _ := json.Marshal(entity)
		if showJSON {
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(ui.TypeName.Render(args[0]) + " " + ui.ID.Render(args[1]))
		fmt.Println(ui.Muted.Render(strings.Repeat("─", 50)))
		prettyPrint(data)

		// multi-line text attributes are rendered as markdown below the values
		for _, attr := range textAttributes(app.registry.Model().Entity(args[0]), entity) {
			rendered, err := renderMarkdown(entity[attr].(string))
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(ui.Bold.Render(attr))
			fmt.Print(rendered)
		}
		return nil
	},
}

// showEntity fetches the entity typ#id with the ids of its relations.
func showEntity(ctx context.Context, app *application, typ, id string) (map[string]any, error) {
	if err := entityType(app.registry, typ); err != nil {
		return nil, err
	}
	data, err := execute(ctx, app, graph.Request{
		Query:     showDocument(app.registry, typ),
		Variables: map[string]any{model.IDField: id},
	})
	if err != nil {
		return nil, err
	}
	v, err := dig(data, typ)
	if err != nil {
		return nil, err
	}
	entity, ok := v.(map[string]any)
	if !ok {
		return nil, apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found", typ, id)
	}
	return entity, nil
}

// textAttributes returns the String attributes of entity that span
// several lines.
func textAttributes(e *model.Entity, entity map[string]any) []string {
	var attrs []string
	for _, attr := range e.AttributeNames() {
		if strings.TrimSuffix(e.Attributes[attr], "!") != "String" {
			continue
		}
		if s, ok := entity[attr].(string); ok && strings.Contains(s, "\n") {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(showCmd)
}
