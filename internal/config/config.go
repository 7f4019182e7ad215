// Package config loads service configuration from config.yaml and the
// environment. Environment variables use the XNE_ prefix with double
// underscores as section separators, so XNE_SERVER__PORT sets server.port.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Examples  ExamplesConfig  `koanf:"examples"`
	Models    ModelsConfig    `koanf:"models"`
	Providers ProvidersConfig `koanf:"providers"`
	History   HistoryConfig   `koanf:"history"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`
}

type ExamplesConfig struct {
	// Path points at a counterfactual corpus file. Empty uses the bundled
	// corpus.
	Path string `koanf:"path"`
}

type ModelsConfig struct {
	// CheckpointRoot is the directory scanned for fine-tuned checkpoints.
	CheckpointRoot string `koanf:"checkpoint_root"`
	// LocalEnabled reports whether local inference hardware is available.
	LocalEnabled bool `koanf:"local_enabled"`
	// Remote lists hosted models offered alongside local checkpoints.
	Remote []string `koanf:"remote"`
}

type ProvidersConfig struct {
	Gemini GeminiConfig `koanf:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `koanf:"api_key"`
	BaseURL      string `koanf:"base_url"`
	DefaultModel string `koanf:"default_model"`
}

type HistoryConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type PipelineConfig struct {
	DraftCount int `koanf:"draft_count"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the named config file, overlays XNE_ environment variables and
// fills in defaults. A missing file is fine; the environment alone is a
// complete configuration.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("XNE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "XNE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 8000)
	}
	if !k.Exists("server.cors_origins") {
		k.Set("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	}
	if !k.Exists("models.remote") {
		k.Set("models.remote", []string{"gemini-2.0-flash-exp", "demo"})
	}
	if !k.Exists("history.type") {
		k.Set("history.type", "memory")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Providers.Gemini.APIKey = substituteEnvVars(cfg.Providers.Gemini.APIKey)

	return &cfg, nil
}

// substituteEnvVars expands ${VAR} references against the environment.
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
