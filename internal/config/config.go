// Package config loads and saves the entityql configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const ConfigFile = "entityql.yaml"

// Supported identifier scalar types and generators.
var (
	IDTypes      = []string{"UUID", "ID", "String"}
	IDGenerators = []string{"uuid", "nanoid", "ulid"}
)

// Config holds the entityql configuration.
type Config struct {
	Database string       `yaml:"database" mapstructure:"database"`
	Model    string       `yaml:"model" mapstructure:"model"`
	Policy   string       `yaml:"policy,omitempty" mapstructure:"policy"`
	ID       IDConfig     `yaml:"id" mapstructure:"id"`
	FTS      FTSConfig    `yaml:"fts" mapstructure:"fts"`
	Server   ServerConfig `yaml:"server" mapstructure:"server"`
	Log      LogConfig    `yaml:"log" mapstructure:"log"`
}

// IDConfig selects the identifier scalar and how new identifiers are made.
type IDConfig struct {
	Type      string `yaml:"type" mapstructure:"type"`
	Generator string `yaml:"generator" mapstructure:"generator"`
}

// FTSConfig lists the full-text indexed fields per entity type.
type FTSConfig struct {
	Enabled          bool                `yaml:"enabled" mapstructure:"enabled"`
	DeferUntilCommit bool                `yaml:"deferUntilCommit,omitempty" mapstructure:"deferUntilCommit"`
	Types            map[string][]string `yaml:"types,omitempty" mapstructure:"types"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"corsOrigins,omitempty" mapstructure:"corsOrigins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Level  string `yaml:"level" mapstructure:"level"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Database: "entityql.db",
		Model:    "model.yaml",
		ID: IDConfig{
			Type:      "UUID",
			Generator: "uuid",
		},
		FTS: FTSConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Port: 22880,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads configuration from the given directory.
// Returns default config if the file doesn't exist.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFile, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in zero values left by a partial file or environment.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.ID.Type == "" {
		c.ID.Type = d.ID.Type
	}
	if c.ID.Generator == "" {
		c.ID.Generator = d.ID.Generator
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if !contains(IDTypes, c.ID.Type) {
		return fmt.Errorf("invalid id.type %q (expected one of %s)", c.ID.Type, strings.Join(IDTypes, ", "))
	}
	if !contains(IDGenerators, c.ID.Generator) {
		return fmt.Errorf("invalid id.generator %q (expected one of %s)", c.ID.Generator, strings.Join(IDGenerators, ", "))
	}
	// the UUID scalar only accepts what the uuid generator makes
	if c.ID.Type == "UUID" && c.ID.Generator != "uuid" {
		return fmt.Errorf("id.generator %q does not produce UUIDs (use id.type ID or String)", c.ID.Generator)
	}
	for typ, fields := range c.FTS.Types {
		if len(fields) == 0 {
			return fmt.Errorf("fts.types.%s lists no fields", typ)
		}
	}
	return nil
}

// Save writes the configuration to the given directory.
func (c *Config) Save(root string) error {
	path := filepath.Join(root, ConfigFile)

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ResolvePath resolves p relative to root unless it is absolute.
func ResolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// FTSTypeNames returns the configured FTS entity types, sorted.
func (c *Config) FTSTypeNames() []string {
	names := make([]string, 0, len(c.FTS.Types))
	for name := range c.FTS.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
