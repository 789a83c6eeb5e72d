package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/pilot/internal/assistant/config"
	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/assistant/runtime"
	"github.com/haasonsaas/pilot/internal/assistant/session"
	"github.com/spf13/cobra"
)

// buildSessionCmd creates the "session" command: an interactive REPL loop
// driving a Session+Agent, with ctrl-C rewinding an interrupted round.
func buildSessionCmd() *cobra.Command {
	var resumeID string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start an interactive conversation",
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

			sessionPath, err := sessionPathFor(resumeID)
			if err != nil {
				return internalError("resolving session path: %v", err)
			}
			sess, err := session.Load(sessionPath, logger)
			if err != nil {
				return internalError("loading session: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", sessionPath)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runREPL(ctx, cmd, rt, sess)
		},
	}

	cmd.Flags().StringVar(&resumeID, "resume", "", "Resume an existing session by id")
	return cmd
}

func sessionPathFor(id string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".config", "goose", "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return filepath.Join(dir, id+".jsonl"), nil
}

// runREPL reads lines from stdin, appends each as a user message, drives one
// Agent.Reply round to completion, and prints every yielded message. A
// context cancellation rewinds the session to the last complete user turn.
func runREPL(ctx context.Context, cmd *cobra.Command, rt *runtime.Runtime, sess *session.Session) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		userMsg := core.UserText(line, time.Now().Unix())
		if err := sess.Append(userMsg); err != nil {
			return internalError("appending user message: %v", err)
		}

		if err := driveOneRound(ctx, out, rt, sess); err != nil {
			if ctx.Err() != nil {
				if rerr := sess.Rewind(); rerr != nil {
					fmt.Fprintf(out, "rewind failed: %v\n", rerr)
				}
				fmt.Fprintln(out, "\ninterrupted; conversation rewound to the last message")
				return nil
			}
			fmt.Fprintf(out, "We could not connect: %v\n", err)
			if rerr := sess.Rewind(); rerr != nil {
				fmt.Fprintf(out, "rewind failed: %v\n", rerr)
			}
			fmt.Fprintln(out, "The error above was an exception we were not able to handle. We've removed the conversation up to the most recent user message.")
			continue
		}
	}
}

func driveOneRound(ctx context.Context, out io.Writer, rt *runtime.Runtime, sess *session.Session) error {
	events := rt.Agent.Reply(ctx, sess.Messages())
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		if ev.Message == nil {
			continue
		}
		if err := sess.Append(*ev.Message); err != nil {
			return err
		}
		if ev.Message.Role == core.RoleAssistant {
			if text := ev.Message.Text(); text != "" {
				fmt.Fprintln(out, text)
			}
		}
	}
	return nil
}
