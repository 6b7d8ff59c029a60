package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hmans/entityql/internal/config"
	"github.com/hmans/entityql/internal/graph"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/schema"
)

var (
	queryJSON       bool
	queryVariables  string
	queryOperation  string
	querySchemaOnly bool
)

var graphqlCmd = &cobra.Command{
	Use:     "graphql <query>",
	Aliases: []string{"query"},
	Short:   "Execute a GraphQL query or mutation",
	Long: `Execute a GraphQL query or mutation against the project database.

The argument should be a valid GraphQL query or mutation string. Each
invocation runs in one transaction, which is rolled back if any error occurs.

Examples:
  # List all people
  entityql graphql '{ Persons { id name } }'

  # Get a specific person with relations
  entityql graphql '{ Person(id: "abc") { name belongsTo { name } } }'

  # Filter, search and order
  entityql graphql '{ Persons(where: { role: "ENGINEER" }, fts: "ada", order: "name") { id } }'

  # Create an entity
  entityql graphql 'mutation { Person { create(with: { name: "Ada" }) { id hc } } }'

  # Use variables
  entityql graphql -v '{"id": "abc"}' 'query($id: UUID) { Person(id: $id) { name } }'

  # Read from stdin (useful for complex queries or escaping issues)
  cat query.graphql | entityql graphql

  # Print the schema
  entityql graphql --schema`,
	Args: func(cmd *cobra.Command, args []string) error {
		if querySchemaOnly {
			return nil
		}
		// Allow 0 args if stdin has data, or exactly 1 arg
		if len(args) > 1 {
			return fmt.Errorf("accepts at most 1 argument (the GraphQL query)")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Schema-only mode
		if querySchemaOnly {
			return printSchema()
		}

		var query string
		if len(args) == 1 {
			query = args[0]
		} else {
			// Try to read from stdin
			stdinQuery, err := readFromStdin()
			if err != nil {
				return err
			}
			if stdinQuery == "" {
				return fmt.Errorf("no query provided (pass as argument or pipe to stdin)")
			}
			query = stdinQuery
		}

		// Parse variables if provided
		var variables map[string]any
		if queryVariables != "" {
			if err := json.Unmarshal([]byte(queryVariables), &variables); err != nil {
				return fmt.Errorf("invalid variables JSON: %w", err)
			}
		}

		// Execute the query
		result, err := executeQuery(query, variables, queryOperation)
		if err != nil {
			return err
		}

		// Output
		if queryJSON {
			fmt.Println(string(result))
		} else {
			prettyPrint(result)
		}

		return nil
	},
}

// readFromStdin reads the query from stdin if data is available.
func readFromStdin() (string, error) {
	// Check if stdin has data (is a pipe or file, not a terminal)
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("checking stdin: %w", err)
	}

	// If stdin is a terminal (no pipe), return empty
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return "", nil
	}

	// Read all data from stdin
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// executeQuery runs a GraphQL request against the project.
// On success, it returns just the data portion of the response.
// On error, it returns an error so the CLI can handle it appropriately.
func executeQuery(query string, variables map[string]any, operationName string) ([]byte, error) {
	ctx := context.Background()
	app, err := openApp(ctx, rootDir, cfg)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	return execute(ctx, app, graph.Request{
		Query:         query,
		Variables:     variables,
		OperationName: operationName,
	})
}

func execute(ctx context.Context, app *application, req graph.Request) ([]byte, error) {
	result := app.executor.Execute(ctx, req)
	if result.HasErrors() {
		return nil, formatGraphQLErrors(graph.ErrorList(result.Errors))
	}
	return json.Marshal(result.Data)
}

// formatGraphQLErrors formats GraphQL errors into a single error.
func formatGraphQLErrors(errs gqlerror.List) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return fmt.Errorf("graphql: %s", errs[0].Message)
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("graphql errors:\n  %s", strings.Join(msgs, "\n  "))
}

// prettyPrint outputs the JSON with colors and indentation.
func prettyPrint(data []byte) {
	fmt.Println(string(pretty.Color(pretty.Pretty(data), nil)))
}

// printSchema outputs the GraphQL schema.
func printSchema() error {
	out, err := GetGraphQLSchema(rootDir, cfg)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// GetGraphQLSchema renders the schema derived from the model of the project
// in dir.
func GetGraphQLSchema(dir string, c *config.Config) (string, error) {
	registry, err := loadRegistry(dir, c)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	f := formatter.NewFormatter(&buf, formatter.WithIndent("  "))
	f.FormatSchema(registry.Schema())

	return buf.String(), nil
}

// loadRegistry loads the model of the project without opening the database.
func loadRegistry(dir string, c *config.Config) (*schema.Registry, error) {
	m, err := model.Load(config.ResolvePath(dir, c.Model))
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	return schema.NewRegistry(m, c.ID.Type)
}

func init() {
	graphqlCmd.Flags().BoolVar(&queryJSON, "json", false, "Output raw JSON (no formatting)")
	graphqlCmd.Flags().StringVarP(&queryVariables, "variables", "v", "", "Query variables as JSON string")
	graphqlCmd.Flags().StringVarP(&queryOperation, "operation", "o", "", "Operation name (for multi-operation documents)")
	graphqlCmd.Flags().BoolVar(&querySchemaOnly, "schema", false, "Print the GraphQL schema and exit")
	rootCmd.AddCommand(graphqlCmd)
}
