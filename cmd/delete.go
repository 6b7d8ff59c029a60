package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/apperr"
	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/ui"
)

var (
	forceDelete bool
	deleteJSON  bool
)

var deleteCmd = &cobra.Command{
	Use:     "delete <type> <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete entities",
	Long: `Deletes entities after confirmation (use -f to skip confirmation).

All entities are deleted in one transaction: if one cannot be deleted, none
is. Foreign keys referencing a deleted entity are cleared.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, ids := args[0], args[1:]

		// JSON implies force (no prompts for machines)
		if !forceDelete && !deleteJSON {
			var confirm bool
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Delete %d %s entit%s?", len(ids), typ, plural(len(ids), "y", "ies"))).
				Affirmative("Yes").
				Negative("No").
				Value(&confirm).
				Run()
			if err != nil {
				return err
			}

			if !confirm {
				fmt.Println("Cancelled")
				return nil
			}
		}

		ctx := context.Background()
		app, err := openApp(ctx, rootDir, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		deleted, err := deleteEntities(ctx, app, typ, ids)
		if err != nil {
			return err
		}

		if deleteJSON {
			data, _ := json.Marshal(map[string]any{"success": true, "deleted": deleted})
			fmt.Println(string(data))
			return nil
		}
		for _, id := range deleted {
			fmt.Println(ui.Success.Render("Deleted ") + ui.TypeName.Render(typ) + " " + ui.ID.Render(id))
		}
		return nil
	},
}

// deleteEntities deletes the entities ids of typ in one request, using an
// aliased delete per id.
func deleteEntities(ctx context.Context, app *application, typ string, ids []string) ([]string, error) {
	if err := entityType(app.registry, typ); err != nil {
		return nil, err
	}

	var params, fields []string
	vars := make(map[string]any, len(ids))
	for i, id := range ids {
		params = append(params, fmt.Sprintf("$id%d: %s", i, app.registry.IDType()))
		fields = append(fields, fmt.Sprintf("d%d: %s(%s: $id%d) { delete }", i, typ, model.IDField, i))
		vars[fmt.Sprintf("id%d", i)] = id
	}
	query := fmt.Sprintf("mutation(%s) { %s }", strings.Join(params, ", "), strings.Join(fields, " "))

	data, err := execute(ctx, app, graph.Request{Query: query, Variables: vars})
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(ids))
	for i := range ids {
		v, err := dig(data, fmt.Sprintf("d%d", i), "delete")
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, apperr.Errorf(apperr.ErrNotFound, "no such entity %s#%s found", typ, ids[i])
		}
		deleted = append(deleted, fmt.Sprint(v))
	}
	return deleted, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	deleteCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation")
	deleteCmd.Flags().BoolVar(&deleteJSON, "json", false, "Output as JSON (implies --force)")
	rootCmd.AddCommand(deleteCmd)
}
