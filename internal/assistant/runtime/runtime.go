// Package runtime wires a Config into a ready-to-drive Agent: it resolves
// the configured Provider backend, registers the Developer, Memory, and
// Hints Systems, and enables proactive compaction against the model's
// catalog context window.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/pilot/internal/assistant/agent"
	"github.com/haasonsaas/pilot/internal/assistant/config"
	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/assistant/oauth"
	"github.com/haasonsaas/pilot/internal/assistant/prompt"
	"github.com/haasonsaas/pilot/internal/assistant/providers"
	"github.com/haasonsaas/pilot/internal/assistant/systems/developer"
	"github.com/haasonsaas/pilot/internal/assistant/systems/hints"
	"github.com/haasonsaas/pilot/internal/assistant/systems/memory"
	"github.com/haasonsaas/pilot/internal/assistant/tokens"
	"github.com/haasonsaas/pilot/internal/providers/bedrock"
)

// defaultCompactionShare is the fraction of the model's context window at
// which the Agent proactively compacts the working history.
const defaultCompactionShare = 0.9

// Runtime bundles everything built from a Config: the Agent ready to drive
// a Reply loop, and the Developer System so the host can call Shutdown on
// it to reap orphaned child processes.
type Runtime struct {
	Agent     *agent.Agent
	Developer *developer.System
	Provider  core.Provider
}

// Build resolves cfg's provider, constructs the Agent, and registers the
// standard System set (developer, memory, hints).
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := resolveProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	rt, err := build(provider, logger)
	if err != nil {
		return nil, err
	}
	if window, ok := tokens.ContextWindow(cfg.Provider.Model); ok {
		rt.Agent.SetContextWindow(window)
		rt.Agent.EnableProactiveCompaction(tokens.NewCounter(), cfg.Provider.Model, defaultCompactionShare)
	}
	return rt, nil
}

// BuildForTest wires provider into a Runtime without touching configuration
// or environment state, for tests that need a live Runtime against a fake
// core.Provider.
func BuildForTest(provider core.Provider) (*Runtime, error) {
	return build(provider, slog.Default())
}

func build(provider core.Provider, logger *slog.Logger) (*Runtime, error) {
	renderer := prompt.New(os.Getenv("GOOSE_PROMPT_DIR"))
	a := agent.New(provider, renderer, logger)

	dev := developer.NewWithLogger(logger)
	if err := a.AddSystem(dev); err != nil {
		return nil, err
	}

	home, _ := os.UserHomeDir()
	globalMemDir := filepath.Join(home, ".config", "goose", "memory")
	localMemDir := filepath.Join(".", ".goose", "memory")
	if err := a.AddSystem(memory.New(globalMemDir, localMemDir)); err != nil {
		return nil, err
	}

	globalHints := filepath.Join(home, ".config", "goose", ".goosehints")
	localHints := filepath.Join(".", ".goosehints")
	if err := a.AddSystem(hints.New(localHints, globalHints)); err != nil {
		return nil, err
	}

	return &Runtime{Agent: a, Developer: dev, Provider: provider}, nil
}

// resolveProvider builds the core.Provider named by cfg.Provider.Type.
func resolveProvider(cfg *config.Config, logger *slog.Logger) (core.Provider, error) {
	p := cfg.Provider
	apiKey := cfg.ResolveAPIKey(nil)

	switch strings.ToLower(p.Type) {
	case "openai":
		return providers.NewOpenAIProvider(apiKey, p.Host, p.Model), nil
	case "anthropic":
		return providers.NewAnthropicProvider(apiKey, p.Host, p.Model, p.MaxTokens), nil
	case "ollama":
		return providers.NewOllamaProvider(p.Host, p.Model), nil
	case "databricks":
		tokenSource, err := databricksTokenSource(p, logger)
		if err != nil {
			return nil, err
		}
		return providers.NewDatabricksProvider(p.Host, p.Model, tokenSource), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q (want one of openai, anthropic, ollama, databricks)", p.Type)
	}
}

func databricksTokenSource(p config.ProviderConfig, logger *slog.Logger) (providers.TokenSource, error) {
	if strings.TrimSpace(p.APIKey) != "" {
		return providers.StaticToken(p.APIKey), nil
	}
	if strings.TrimSpace(p.AWSRegion) != "" {
		return bedrock.NewCredentialSource(bedrock.CredentialConfig{Region: p.AWSRegion}), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cacheDir := filepath.Join(home, ".config", "goose", "databricks", "oauth")
	flow := oauth.NewFlow(p.Host, cacheDir)
	return oauthTokenSource{flow: flow}, nil
}

// oauthTokenSource adapts *oauth.Flow to providers.TokenSource.
type oauthTokenSource struct {
	flow *oauth.Flow
}

func (o oauthTokenSource) Token(ctx context.Context) (string, error) {
	return o.flow.Token(ctx)
}
