package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/ui"
)

var (
	listJSON   bool
	listQuiet  bool
	listFTS    string
	listWhere  string
	listOrder  []string
	listOffset int
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:     "list <type>",
	Aliases: []string{"ls"},
	Short:   "List entities of a type",
	Long: `Lists the entities of a type, optionally filtered, searched and ordered.

Examples:
  entityql list Person
  entityql list Person --fts "name:gra" --order -name
  entityql list Project --where '{"budget": {"_gt": 1000}}' --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := openApp(ctx, rootDir, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		entities, err := listEntities(ctx, app, args[0], listOptions{
			fts:    listFTS,
			where:  listWhere,
			order:  listOrder,
			offset: listOffset,
			limit:  listLimit,
		})
		if err != nil {
			return err
		}

		// JSON output
		if listJSON {
			data, _ := json.Marshal(entities)
			fmt.Println(string(data))
			return nil
		}

		// Quiet mode: just IDs
		if listQuiet {
			for _, e := range entities {
				fmt.Println(e[model.IDField])
			}
			return nil
		}

		if len(entities) == 0 {
			fmt.Println(ui.Muted.Render("No entities found"))
			return nil
		}

		columns := append([]string{model.IDField}, app.registry.Model().Entity(args[0]).AttributeNames()...)
		rows := make([][]string, len(entities))
		for i, e := range entities {
			rows[i] = row(e, columns)
		}
		fmt.Print(ui.RenderTable(columns, rows))
		return nil
	},
}

type listOptions struct {
	fts    string
	where  string
	order  []string
	offset int
	limit  int
}

// listEntities runs the query-many operation of typ.
func listEntities(ctx context.Context, app *application, typ string, opts listOptions) ([]map[string]any, error) {
	if err := entityType(app.registry, typ); err != nil {
		return nil, err
	}

	vars := map[string]any{"offset": opts.offset, "limit": opts.limit}
	if opts.fts != "" {
		vars["fts"] = opts.fts
	}
	if opts.where != "" {
		var where any
		if err := json.Unmarshal([]byte(opts.where), &where); err != nil {
			return nil, fmt.Errorf("invalid --where JSON: %w", err)
		}
		vars["where"] = where
	}
	if len(opts.order) > 0 {
		order := make([]any, len(opts.order))
		for i, o := range opts.order {
			if field, ok := strings.CutPrefix(o, "-"); ok {
				order[i] = []any{field, "DESC"}
			} else {
				order[i] = o
			}
		}
		vars["order"] = order
	}

	data, err := execute(ctx, app, graph.Request{Query: listDocument(app.registry, typ), Variables: vars})
	if err != nil {
		return nil, err
	}
	v, err := dig(data, model.PluralName(typ))
	if err != nil {
		return nil, err
	}

	list, _ := v.([]any)
	entities := make([]map[string]any, 0, len(list))
	for _, item := range list {
		// unreadable entities resolve to null
		if e, ok := item.(map[string]any); ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVarP(&listQuiet, "quiet", "q", false, "Only output IDs (one per line)")
	listCmd.Flags().StringVar(&listFTS, "fts", "", "Full-text search query")
	listCmd.Flags().StringVar(&listWhere, "where", "", "Filter as a JSON object")
	listCmd.Flags().StringArrayVar(&listOrder, "order", nil, "Order by attribute, prefix with - for descending (repeatable)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of entities to skip")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "Maximum number of entities")
	rootCmd.AddCommand(listCmd)
}
