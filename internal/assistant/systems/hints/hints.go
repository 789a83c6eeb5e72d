// Package hints implements the Hints System: a read-only concatenation of
// optional project and user hint files, exposed only as Instructions.
package hints

import (
	"context"
	"os"
	"strings"

	"github.com/haasonsaas/pilot/internal/assistant/core"
)

// System implements core.System by concatenating the contents of a local
// project hints file and a global user hints file, loaded once at
// construction.
type System struct {
	instructions string
}

// New reads localPath (e.g. "./.goosehints") and globalPath
// (e.g. "~/.config/goose/.goosehints") if present and concatenates them.
func New(localPath, globalPath string) *System {
	var parts []string
	for _, path := range []string{localPath, globalPath} {
		if path == "" {
			continue
		}
		if data, err := os.ReadFile(path); err == nil {
			parts = append(parts, strings.TrimSpace(string(data)))
		}
	}
	return &System{instructions: strings.Join(parts, "\n\n")}
}

func (s *System) Name() string        { return "hints" }
func (s *System) Description() string { return "Project and user authored hints." }
func (s *System) Instructions() string { return s.instructions }

func (s *System) Tools() []core.Tool { return nil }

func (s *System) Status(ctx context.Context) (core.SystemStatus, error) {
	return core.SystemStatus{"loaded": s.instructions != ""}, nil
}

func (s *System) Call(ctx context.Context, toolName string, arguments []byte) ([]core.Content, error) {
	return nil, core.ToolNotFound(toolName)
}
