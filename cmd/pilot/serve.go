package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/pilot/internal/assistant/config"
	"github.com/haasonsaas/pilot/internal/assistant/httpapi"
	"github.com/haasonsaas/pilot/internal/assistant/runtime"
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command: exposes the Agent over the
// optional HTTP SSE boundary (POST /reply, POST /session/{load,save,list}).
func buildServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over the HTTP reply/session boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if strings.TrimSpace(addr) == "" {
				addr = cfg.Server.Addr
			}
			if strings.TrimSpace(addr) == "" {
				addr = "127.0.0.1:8080"
			}

			home, hErr := os.UserHomeDir()
			if hErr != nil {
				home = "."
			}
			sessionDir := filepath.Join(home, ".config", "goose", "sessions")
			if err := os.MkdirAll(sessionDir, 0o755); err != nil {
				return internalError("creating session directory: %v", err)
			}

			server := httpapi.NewServer(rt, sessionDir, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", addr)
			if err := server.Start(cmd.Context(), addr); err != nil {
				return internalError("http server: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides GOOSE_SERVER__ADDR / config server.addr)")
	return cmd
}
