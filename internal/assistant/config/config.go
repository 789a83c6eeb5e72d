// Package config loads provider and server settings from a YAML profile
// file, layering GOOSE_PROVIDER__* and GOOSE_SERVER__* environment
// variables over it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/pilot/internal/profile"
)

// ProviderConfig selects and configures the backend a Provider adapts.
type ProviderConfig struct {
	Type      string `yaml:"type"`       // openai, anthropic, ollama, databricks
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	// AWSRegion selects AWS-credential authentication (bedrock.CredentialSource)
	// for a Databricks model serving endpoint fronted by AWS Bedrock rather than a Databricks personal
	// access token or OAuth bearer token. Only consulted when Type is
	// "databricks" and APIKey is empty.
	AWSRegion string `yaml:"aws_region"`
}

// ServerConfig configures the optional HTTP SSE boundary.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the top-level, YAML-tagged configuration document.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Server   ServerConfig   `yaml:"server"`
}

// Keyring resolves a named secret, falling back to an environment variable
// when no real OS keyring integration is wired in.
type Keyring interface {
	Get(key string) (string, bool)
}

// EnvKeyring is the no-op fallback Keyring: it reads secrets directly from
// the process environment.
type EnvKeyring struct{}

func (EnvKeyring) Get(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok
}

// Load reads path (falling back to the active profile's default path when
// path is empty), then overrides fields from GOOSE_PROVIDER__* and
// GOOSE_SERVER__* environment variables.
func Load(path string) (*Config, error) {
	if path == "" {
		path = profile.DefaultConfigPath()
	}

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides maps GOOSE_PROVIDER__TYPE, GOOSE_PROVIDER__HOST,
// GOOSE_PROVIDER__API_KEY, GOOSE_PROVIDER__MODEL, GOOSE_PROVIDER__MAX_TOKENS,
// and GOOSE_SERVER__ADDR onto cfg, each overriding the corresponding YAML
// field when set.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("GOOSE_PROVIDER__TYPE"); ok {
		cfg.Provider.Type = v
	}
	if v, ok := os.LookupEnv("GOOSE_PROVIDER__HOST"); ok {
		cfg.Provider.Host = v
	}
	if v, ok := os.LookupEnv("GOOSE_PROVIDER__API_KEY"); ok {
		cfg.Provider.APIKey = v
	}
	if v, ok := os.LookupEnv("GOOSE_PROVIDER__MODEL"); ok {
		cfg.Provider.Model = v
	}
	if v, ok := os.LookupEnv("GOOSE_PROVIDER__MAX_TOKENS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Provider.MaxTokens = n
		}
	}
	if v, ok := os.LookupEnv("GOOSE_PROVIDER__AWS_REGION"); ok {
		cfg.Provider.AWSRegion = v
	}
	if v, ok := os.LookupEnv("GOOSE_SERVER__ADDR"); ok {
		cfg.Server.Addr = v
	}
}

// ResolveAPIKey returns the provider's API key, preferring a value already
// set in config over a keyring lookup keyed by "GOOSE_PROVIDER__API_KEY".
func (c *Config) ResolveAPIKey(kr Keyring) string {
	if strings.TrimSpace(c.Provider.APIKey) != "" {
		return c.Provider.APIKey
	}
	if kr == nil {
		kr = EnvKeyring{}
	}
	if v, ok := kr.Get("GOOSE_PROVIDER__API_KEY"); ok {
		return v
	}
	return ""
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
