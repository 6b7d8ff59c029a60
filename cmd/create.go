package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/ui"
)

var (
	createID   string
	createWith string
	createSet  []string
	createJSON bool
)

var createCmd = &cobra.Command{
	Use:     "create <type>",
	Aliases: []string{"c", "new"},
	Short:   "Create an entity",
	Long: `Creates an entity of the given type. Attributes and relation changes are
given as a JSON object with --with and as key=value pairs with --set.

Examples:
  entityql create Person --set name=Ada --set role=ENGINEER
  entityql create OrgUnit --with '{"name": "Research", "members": {"add": ["p1"]}}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		with, err := parseWith(createWith, createSet)
		if err != nil {
			return err
		}

		ctx := context.Background()
		app, err := openApp(ctx, rootDir, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		entity, err := createEntity(ctx, app, args[0], createID, with)
		if err != nil {
			return err
		}

		if createJSON {
			data, _ := json.Marshal(entity)
			fmt.Println(string(data))
			return nil
		}
		if entity == nil {
			fmt.Println(ui.Warning.Render("Created entity is not readable"))
			return nil
		}
		fmt.Println(ui.Success.Render("Created ") + ui.TypeName.Render(args[0]) + " " + ui.ID.Render(fmt.Sprint(entity["id"])))
		return nil
	},
}

// createEntity creates an entity of typ and returns it as the GraphQL
// response shows it, or nil when it may not be read.
func createEntity(ctx context.Context, app *application, typ, id string, with map[string]any) (map[string]any, error) {
	if err := entityType(app.registry, typ); err != nil {
		return nil, err
	}
	vars := map[string]any{"with": with}
	if id != "" {
		vars["id"] = id
	}
	data, err := execute(ctx, app, graph.Request{Query: createDocument(app.registry, typ), Variables: vars})
	if err != nil {
		return nil, err
	}
	v, err := dig(data, typ, "create")
	if err != nil {
		return nil, err
	}
	entity, _ := v.(map[string]any)
	return entity, nil
}

func init() {
	createCmd.Flags().StringVar(&createID, "id", "", "Identifier of the new entity (generated if omitted)")
	createCmd.Flags().StringVarP(&createWith, "with", "w", "", "Attributes and relation changes as a JSON object")
	createCmd.Flags().StringArrayVarP(&createSet, "set", "s", nil, "Set an attribute (key=value, repeatable)")
	createCmd.Flags().BoolVar(&createJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(createCmd)
}
