package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/config"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/ui"
)

var (
	modelSDL bool
	modelRaw bool
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show the entity model",
	Long: `Shows the entity types of the model with their attributes and relations.

Use --sdl to print the GraphQL type definitions the schema is built from,
and --raw to print them without terminal formatting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := model.Load(config.ResolvePath(rootDir, cfg.Model))
		if err != nil {
			return fmt.Errorf("loading model: %w", err)
		}

		if modelSDL {
			sdl := m.SDL(cfg.ID.Type)
			if modelRaw {
				fmt.Print(sdl)
				return nil
			}
			rendered, err := renderMarkdown("```graphql\n" + sdl + "```\n")
			if err != nil {
				return err
			}
			fmt.Print(rendered)
			return nil
		}

		fmt.Println(ui.Header.Render("Entity model"))
		fmt.Print(ui.RenderTree(ui.BuildModelTree(m)))
		return nil
	},
}

func init() {
	modelCmd.Flags().BoolVar(&modelSDL, "sdl", false, "Print the GraphQL SDL")
	modelCmd.Flags().BoolVar(&modelRaw, "raw", false, "Print the SDL without formatting (with --sdl)")
	rootCmd.AddCommand(modelCmd)
}
