// Package main provides the CLI entry point for the pilot assistant runtime.
//
// pilot drives a multi-turn LLM agent loop over a Developer System (shell +
// text editor), a Memory system, and a Hints system, against one of four
// provider backends (OpenAI-compatible, Anthropic, Ollama, Databricks).
//
// # Basic usage
//
//	pilot configure
//	pilot session
//	pilot run --plan plan.txt
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/pilot/internal/profile"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version     = "dev"
	commit      = "none"
	date        = "unknown"
	profileName string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pilot",
		Short: "pilot - an interactive LLM assistant runtime",
		Long: `pilot drives a streaming, tool-using conversation with an LLM.

Supported providers: OpenAI-compatible, Anthropic, Ollama, Databricks
Built-in tools: shell, text editor, memory, hints`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name (uses ~/.pilot/profiles/<name>.yaml; or set GOOSE_PROFILE)")

	rootCmd.AddCommand(
		buildConfigureCmd(),
		buildSessionCmd(),
		buildRunCmd(),
		buildServeCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

// resolveConfigPath picks the config file a command should load: the
// --profile flag, then GOOSE_PROFILE, then the active profile, then the
// bare default path.
func resolveConfigPath() string {
	active := strings.TrimSpace(profileName)
	if active == "" {
		active = strings.TrimSpace(os.Getenv("GOOSE_PROFILE"))
	}
	if active != "" {
		return profile.ProfileConfigPath(active)
	}
	return profile.DefaultConfigPath()
}

// exitCode mirrors the spec's three-value exit code contract: 0 success
// (handled by cobra returning nil), 1 user-visible failure, 2 internal.
type exitCode int

const (
	exitUserFailure exitCode = 1
	exitInternal    exitCode = 2
)

// cliError carries an explicit exit code alongside its message so main can
// distinguish a user-visible failure (bad config, auth) from an internal
// invariant violation.
type cliError struct {
	code exitCode
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &cliError{code: exitUserFailure, err: fmt.Errorf(format, args...)}
}

func internalError(format string, args ...any) error {
	return &cliError{code: exitInternal, err: fmt.Errorf(format, args...)}
}

func exitCodeFor(err error) int {
	var ce *cliError
	if ok := asCliError(err, &ce); ok {
		return int(ce.code)
	}
	return int(exitUserFailure)
}

func asCliError(err error, target **cliError) bool {
	for err != nil {
		if ce, ok := err.(*cliError); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
