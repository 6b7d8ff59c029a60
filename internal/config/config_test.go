package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ID.Type != "UUID" {
		t.Errorf("ID.Type = %q, want \"UUID\"", cfg.ID.Type)
	}
	if cfg.ID.Generator != "uuid" {
		t.Errorf("ID.Generator = %q, want \"uuid\"", cfg.ID.Generator)
	}
	if !cfg.FTS.Enabled {
		t.Error("FTS.Enabled = false, want true")
	}
	if cfg.FTS.DeferUntilCommit {
		t.Error("FTS.DeferUntilCommit = true, want false")
	}
	if cfg.Server.Port != 22880 {
		t.Errorf("Server.Port = %d, want 22880", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadPartialFile(t *testing.T) {
	dir := t.TempDir()
	content := `
database: ":memory:"
id:
  type: String
  generator: nanoid
fts:
  types:
    Person: [name, initials]
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database != ":memory:" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.ID.Generator != "nanoid" {
		t.Errorf("ID.Generator = %q, want \"nanoid\"", cfg.ID.Generator)
	}
	if cfg.ID.Type != "String" {
		t.Errorf("ID.Type = %q, want \"String\"", cfg.ID.Type)
	}
	// Defaults still apply for omitted keys
	if cfg.Model != "model.yaml" {
		t.Errorf("Model = %q, want \"model.yaml\"", cfg.Model)
	}
	if got := cfg.FTS.Types["Person"]; !reflect.DeepEqual(got, []string{"name", "initials"}) {
		t.Errorf("FTS.Types[Person] = %v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad id type", "id:\n  type: Int\n"},
		{"bad generator", "id:\n  generator: serial\n"},
		{"uuid type with nanoid", "id:\n  generator: nanoid\n"},
		{"uuid type with ulid", "id:\n  type: UUID\n  generator: ulid\n"},
		{"empty fts fields", "fts:\n  types:\n    Person: []\n"},
		{"malformed yaml", "id: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.FTS.Types = map[string][]string{"OrgUnit": {"name"}}
	cfg.Policy = "policy.yaml"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("reloaded config = %+v, want %+v", loaded, cfg)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/srv", "model.yaml"); got != filepath.Join("/srv", "model.yaml") {
		t.Errorf("ResolvePath relative = %q", got)
	}
	if got := ResolvePath("/srv", "/etc/model.yaml"); got != "/etc/model.yaml" {
		t.Errorf("ResolvePath absolute = %q", got)
	}
	if got := ResolvePath("/srv", ""); got != "" {
		t.Errorf("ResolvePath empty = %q", got)
	}
}

func TestFTSTypeNames(t *testing.T) {
	cfg := Default()
	cfg.FTS.Types = map[string][]string{"Person": {"name"}, "OrgUnit": {"name"}}

	got := cfg.FTSTypeNames()
	want := []string{"OrgUnit", "Person"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FTSTypeNames() = %v, want %v", got, want)
	}
}
