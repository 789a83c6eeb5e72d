package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/pilot/internal/assistant/config"
	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/assistant/runtime"
	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command: a headless one-shot round seeded
// from a file of initial user text, with no session journal and no
// terminal interaction.
func buildRunCmd() *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single headless round from a plan file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(planPath) == "" {
				return userError("--plan is required")
			}
			planBytes, err := os.ReadFile(planPath)
			if err != nil {
				return userError("reading plan file: %v", err)
			}
			plan := strings.TrimSpace(string(planBytes))
			if plan == "" {
				return userError("plan file %s is empty", planPath)
			}

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return userError("loading config: %v", err)
			}

			logger := slog.Default()
			rt, err := runtime.Build(cfg, logger)
			if err != nil {
				return userError("starting runtime: %v", err)
			}
			defer rt.Developer.Shutdown()

			history := []core.Message{core.UserText(plan, time.Now().Unix())}
			out := cmd.OutOrStdout()

			events := rt.Agent.Reply(cmd.Context(), history)
			for ev := range events {
				if ev.Err != nil {
					return internalError("agent round failed: %v", ev.Err)
				}
				if ev.Message != nil && ev.Message.Role == core.RoleAssistant {
					if text := ev.Message.Text(); text != "" {
						fmt.Fprintln(out, text)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Path to a file containing the initial user message")
	return cmd
}
