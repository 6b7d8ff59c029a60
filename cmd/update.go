package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/ui"
)

var (
	updateWith string
	updateSet  []string
	updateHC   string
	updateJSON bool
)

var updateCmd = &cobra.Command{
	Use:   "update <type> <id>",
	Short: "Update an entity's attributes and relations",
	Long: `Updates attributes and relations of an existing entity.

Pass the hash code (hc) read earlier with --hc to reject the update when the
entity was modified in between.

Examples:
  entityql update Person p1 --set role=MANAGER
  entityql update Project x1 --with '{"staff": {"del": ["p2"]}}' --hc 5f2c...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		with, err := parseWith(updateWith, updateSet)
		if err != nil {
			return err
		}
		if len(with) == 0 {
			return fmt.Errorf("no changes specified (use --with or --set)")
		}

		ctx := context.Background()
		app, err := openApp(ctx, rootDir, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		entity, err := updateEntity(ctx, app, args[0], args[1], with, updateHC)
		if err != nil {
			return err
		}

		if updateJSON {
			data, _ := json.Marshal(entity)
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(ui.Success.Render("Updated ") + ui.TypeName.Render(args[0]) + " " + ui.ID.Render(args[1]))
		return nil
	},
}

// updateEntity updates typ#id with with, guarded by hc when not empty.
func updateEntity(ctx context.Context, app *application, typ, id string, with map[string]any, hc string) (map[string]any, error) {
	if err := entityType(app.registry, typ); err != nil {
		return nil, err
	}
	vars := map[string]any{model.IDField: id, "with": with}
	if hc != "" {
		vars[model.HashCodeField] = hc
	}
	data, err := execute(ctx, app, graph.Request{Query: updateDocument(app.registry, typ), Variables: vars})
	if err != nil {
		return nil, err
	}
	v, err := dig(data, typ)
	if err != nil {
		return nil, err
	}
	parent, ok := v.(map[string]any)
	if !ok {
		return nil, apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found", typ, id)
	}
	entity, _ := parent["update"].(map[string]any)
	return entity, nil
}

func init() {
	updateCmd.Flags().StringVarP(&updateWith, "with", "w", "", "Attributes and relation changes as a JSON object")
	updateCmd.Flags().StringArrayVarP(&updateSet, "set", "s", nil, "Set an attribute (key=value, repeatable)")
	updateCmd.Flags().StringVar(&updateHC, "hc", "", "Expected hash code of the entity")
	updateCmd.Flags().BoolVar(&updateJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(updateCmd)
}
