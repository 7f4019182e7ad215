package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		t.Error("Server.CORSOrigins is empty, want dev origins")
	}
	if cfg.History.Type != "memory" {
		t.Errorf("History.Type = %q, want memory", cfg.History.Type)
	}
	if len(cfg.Models.Remote) == 0 {
		t.Error("Models.Remote is empty, want hosted defaults")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
examples:
  path: /data/corpus.json
models:
  checkpoint_root: /data/checkpoints
  local_enabled: true
history:
  type: sqlite
  sqlite:
    path: /data/history.db
providers:
  gemini:
    api_key: test-key
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Examples.Path != "/data/corpus.json" {
		t.Errorf("Examples.Path = %q", cfg.Examples.Path)
	}
	if !cfg.Models.LocalEnabled {
		t.Error("Models.LocalEnabled = false, want true")
	}
	if cfg.History.Type != "sqlite" || cfg.History.SQLite.Path != "/data/history.db" {
		t.Errorf("History = %+v, want sqlite at /data/history.db", cfg.History)
	}
	if cfg.Providers.Gemini.APIKey != "test-key" {
		t.Errorf("Gemini.APIKey = %q", cfg.Providers.Gemini.APIKey)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XNE_SERVER__PORT", "9100")
	t.Setenv("XNE_PROVIDERS__GEMINI__API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Providers.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env-key", cfg.Providers.Gemini.APIKey)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
providers:
  gemini:
    api_key: ${GEMINI_API_KEY}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Providers.Gemini.APIKey != "secret-from-env" {
		t.Errorf("Gemini.APIKey = %q, want substituted value", cfg.Providers.Gemini.APIKey)
	}
}
