// Package cmd implements the entityql command line interface.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hmans/entityql/internal/config"
	"github.com/hmans/entityql/internal/logger"
)

var (
	cfg     *config.Config
	log     logger.Logger = logger.NewNoopLogger()
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "entityql",
	Short: "A GraphQL API generated from an entity model",
	Long: `entityql serves a GraphQL API over a relational database. The schema is
derived from an entity model: every entity type gets query fields, relation
fields and create, clone, update, delete and batch methods.

Configuration is read from entityql.yaml in the project directory and can be
overridden with ENTITYQL_* environment variables, e.g. ENTITYQL_SERVER_PORT.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init writes the configuration, so there is nothing to load yet
		if cmd.Name() == "init" {
			return nil
		}

		if info, err := os.Stat(rootDir); err != nil || !info.IsDir() {
			return fmt.Errorf("project directory does not exist or is not a directory: %s", rootDir)
		}

		loaded, err := loadConfig(rootDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		l, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

// loadConfig reads entityql.yaml from dir through viper so that flags and
// ENTITYQL_* environment variables override the file.
func loadConfig(dir string) (*config.Config, error) {
	fileCfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	v := viper.GetViper()
	v.SetConfigFile(filepath.Join(dir, config.ConfigFile))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ENTITYQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, config.Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", config.ConfigFile, err)
		}
	}

	c := config.Default()
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", config.ConfigFile, err)
	}
	// viper folds map keys to lower case, entity type names are case sensitive
	c.FTS.Types = fileCfg.FTS.Types

	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// setDefaults registers every key, which AutomaticEnv needs to find its
// environment variable during Unmarshal.
func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("database", d.Database)
	v.SetDefault("model", d.Model)
	v.SetDefault("policy", d.Policy)
	v.SetDefault("id.type", d.ID.Type)
	v.SetDefault("id.generator", d.ID.Generator)
	v.SetDefault("fts.enabled", d.FTS.Enabled)
	v.SetDefault("fts.deferUntilCommit", d.FTS.DeferUntilCommit)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.corsOrigins", d.Server.CORSOrigins)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level)
}

// mustBindPFlag binds key to the named persistent flag of rootCmd.
func mustBindPFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "C", ".", "Project directory containing "+config.ConfigFile)
	rootCmd.PersistentFlags().String("database", "", "Database file (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")

	mustBindPFlag("database", "database")
	mustBindPFlag("log.level", "log-level")
	mustBindPFlag("log.format", "log-format")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
