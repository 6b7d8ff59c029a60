package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/config"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/policy"
	"github.com/hmans/entityql/internal/schema"
	"github.com/hmans/entityql/internal/ui"
)

var checkJSON bool

type checkResult struct {
	Success bool     `json:"success"`
	Passed  []string `json:"passed"`
	Errors  []string `json:"errors"`
}

func (r *checkResult) pass(format string, args ...any) {
	r.Passed = append(r.Passed, fmt.Sprintf(format, args...))
}

func (r *checkResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration, model and policy",
	Long: `Checks the project without touching the database:
- Configuration settings (id type and generator, full-text search fields)
- The entity model and the GraphQL schema derived from it
- The policy file and its CEL expressions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result := runChecks(rootDir, cfg)

		if checkJSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
		} else {
			printCheckResult(result)
		}

		// Exit with error code if validation failed
		if !result.Success {
			os.Exit(1)
		}
		return nil
	},
}

// runChecks validates the project in dir configured by c.
func runChecks(dir string, c *config.Config) *checkResult {
	r := &checkResult{Passed: []string{}, Errors: []string{}}

	if err := c.Validate(); err != nil {
		r.fail("config: %v", err)
	} else {
		r.pass("id type %s generated by %s", c.ID.Type, c.ID.Generator)
	}

	m, err := model.Load(config.ResolvePath(dir, c.Model))
	if err != nil {
		r.fail("model: %v", err)
	} else {
		r.pass("model defines %d entity types", len(m.EntityNames()))

		if _, err := schema.NewRegistry(m, c.ID.Type); err != nil {
			r.fail("schema: %v", err)
		} else {
			r.pass("GraphQL schema is valid")
		}

		for _, typ := range c.FTSTypeNames() {
			r.checkFTS(m, typ, c.FTS.Types[typ])
		}
	}

	if c.Policy == "" {
		r.pass("no policy configured, everything is allowed")
	} else if p, err := policy.Load(config.ResolvePath(dir, c.Policy)); err != nil {
		r.fail("policy: %v", err)
	} else {
		r.pass("policy has %d rules and %d validations", len(p.Rules), len(p.Validations))
	}

	r.Success = len(r.Errors) == 0
	return r
}

func (r *checkResult) checkFTS(m *model.Model, typ string, fields []string) {
	e := m.Entity(typ)
	if e == nil {
		r.fail("fts: unknown entity type %q", typ)
		return
	}
	for _, f := range fields {
		if !slices.Contains(e.Columns(), f) {
			r.fail("fts: unknown field %q of entity type %q", f, typ)
			return
		}
	}
	r.pass("full-text search on %s(%v)", typ, fields)
}

func printCheckResult(r *checkResult) {
	fmt.Println(ui.Bold.Render("Project"))
	for _, p := range r.Passed {
		fmt.Printf("  %s %s\n", ui.Success.Render("✓"), p)
	}
	for _, e := range r.Errors {
		fmt.Printf("  %s %s\n", ui.Danger.Render("✗"), e)
	}

	fmt.Println()
	switch n := len(r.Errors); n {
	case 0:
		fmt.Println(ui.Success.Render("All checks passed"))
	case 1:
		fmt.Println(ui.Danger.Render("1 issue found"))
	default:
		fmt.Println(ui.Danger.Render(fmt.Sprintf("%d issues found", n)))
	}
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(checkCmd)
}
