package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hmans/entityql/internal/config"
	"github.com/hmans/entityql/internal/model"
	"github.com/hmans/entityql/internal/ui"
)

const (
	sampleModelFile  = "model.yaml"
	samplePolicyFile = "policy.yaml"
)

// samplePolicy allows everything except deleting people, which needs the
// DIRECTOR role, and hides inactive people.
const samplePolicy = `default: allow
rules:
  - name: directors-delete-people
    effect: allow
    operations: [delete]
    types: [Person]
    when: '"DIRECTOR" in user.roles'
  - name: nobody-else-deletes-people
    effect: deny
    operations: [delete]
    types: [Person]
  - name: hide-inactive
    effect: deny
    moments: [after]
    operations: [read]
    types: [Person]
    when: 'has(entity.active) && entity.active == false'
validations:
  - name: project-name
    types: [Project]
    assert: '!has(attributes.name) || size(attributes.name) > 0'
`

var (
	initJSON  bool
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an entityql project",
	Long: `Creates entityql.yaml, a sample entity model and a sample policy in the
project directory (see --dir).

The sample model defines OrgUnit, Person and Project entities with full-text
search on people. Existing files are kept unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := initProject(rootDir, initForce)
		if err != nil {
			return err
		}

		if initJSON {
			data, _ := json.MarshalIndent(map[string]any{"success": true, "files": written}, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		for _, f := range written {
			fmt.Println(ui.Success.Render("Created ") + ui.Path.Render(f))
		}
		fmt.Println("Initialized entityql project")
		return nil
	},
}

// initProject writes the sample project files into dir and returns the
// paths written.
func initProject(dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	configPath := filepath.Join(dir, config.ConfigFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return nil, fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	c := config.Default()
	c.Model = sampleModelFile
	c.Policy = samplePolicyFile
	c.FTS.Types = map[string][]string{"Person": {"name", "initials"}}

	var written []string
	files := []struct {
		name    string
		content string
	}{
		{sampleModelFile, model.SampleYAML},
		{samplePolicyFile, samplePolicy},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		written = append(written, path)
	}

	if err := c.Save(dir); err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	written = append(written, configPath)
	return written, nil
}

func init() {
	initCmd.Flags().BoolVar(&initJSON, "json", false, "Output as JSON")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
