// Package developer implements the Developer System: a bash tool and a
// text_editor tool over a process-lifetime working directory, environment
// snapshot, and file-edit undo history.
package developer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	execsafety "github.com/haasonsaas/pilot/internal/exec"
	"github.com/haasonsaas/pilot/internal/shell"

	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/google/uuid"
)

// disallowedVerbs are shell command first-tokens the bash tool refuses to
// run: each has a dedicated, safer tool (text_editor, or simply isn't
// exposed) and running it directly would bypass the active-files tracking
// or process-tree bookkeeping those tools provide.
var disallowedVerbs = map[string]bool{
	"cat": true, "cd": true, "source": true, "rm": true, "kill": true,
}

// System implements core.System for local shell and file-editing tools.
type System struct {
	mu          sync.Mutex
	cwd         string
	env         map[string]string
	activeFiles map[string]struct{}
	fileHistory map[string][]string

	processes *shell.ProcessRegistry
}

// New constructs a Developer System seeded from the current process's
// working directory and environment.
func New() *System {
	return NewWithLogger(nil)
}

// NewWithLogger constructs a Developer System whose process registry logs
// through logger.
func NewWithLogger(logger *slog.Logger) *System {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &System{
		cwd:         cwd,
		env:         env,
		activeFiles: map[string]struct{}{},
		fileHistory: map[string][]string{},
		processes:   shell.NewProcessRegistry(logger),
	}
}

// Shutdown kills every bash child process that outlived its request.
func (s *System) Shutdown() {
	s.processes.KillAll()
}

func (s *System) Name() string { return "developer" }

func (s *System) Description() string {
	return "Local shell execution and file editing for the current project."
}

func (s *System) Instructions() string {
	return "Use bash to run shell commands and text_editor to view and modify files. " +
		"text_editor requires viewing a file before creating or editing it."
}

func (s *System) Tools() []core.Tool {
	return []core.Tool{
		{
			Name: "bash",
			Description: "Run commands in a bash shell. Performs, in order: 1) change the working " +
				"directory (if provided), 2) source a file (if provided), 3) run a shell command " +
				"(if provided). At least one parameter must be provided.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The bash shell command to run."},
					"source_path": {"type": "string", "description": "A file to source before running the command."},
					"working_dir": {"type": "string", "description": "Directory to change to before running. Defaults to the current working directory."}
				}
			}`),
		},
		{
			Name:        "text_editor",
			Description: "View and edit files. The command parameter selects the operation to perform.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"required": ["command", "path"],
				"properties": {
					"path": {"type": "string", "description": "Absolute or relative path to a file or directory."},
					"command": {"type": "string", "enum": ["view", "create", "str_replace", "insert", "undo_edit"]},
					"view_range": {"type": "array", "items": {"type": "integer"}, "description": "Optional [start,end] 1-based inclusive line range for view."},
					"file_text": {"type": "string", "description": "Required for create."},
					"old_str": {"type": "string", "description": "Required for str_replace."},
					"new_str": {"type": "string", "description": "Required for str_replace and insert."},
					"insert_line": {"type": "integer", "description": "Required for insert; 0 prepends."}
				}
			}`),
		},
	}
}

func (s *System) Status(ctx context.Context) (core.SystemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]string, 0, len(s.activeFiles))
	for f := range s.activeFiles {
		files = append(files, f)
	}
	return core.SystemStatus{"cwd": s.cwd, "active_files": files}, nil
}

func (s *System) Call(ctx context.Context, toolName string, arguments []byte) ([]core.Content, error) {
	switch toolName {
	case "bash":
		return s.bash(ctx, arguments)
	case "text_editor":
		return s.textEditor(ctx, arguments)
	default:
		return nil, core.ToolNotFound(toolName)
	}
}

type bashParams struct {
	Command    string `json:"command"`
	SourcePath string `json:"source_path"`
	WorkingDir string `json:"working_dir"`
}

func (s *System) resolvePath(locked bool, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	cwd := s.cwd
	return filepath.Join(cwd, path)
}

func (s *System) bash(ctx context.Context, raw []byte) ([]core.Content, error) {
	var p bashParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, core.InvalidParameters("malformed bash parameters: " + err.Error())
	}
	if p.Command == "" && p.SourcePath == "" && p.WorkingDir == "" {
		return nil, core.InvalidParameters("at least one of 'command', 'source_path', or 'working_dir' must be provided")
	}

	var outputs []string

	if p.WorkingDir != "" {
		s.mu.Lock()
		newCwd := s.resolvePath(true, p.WorkingDir)
		s.mu.Unlock()

		info, err := os.Stat(newCwd)
		if err != nil || !info.IsDir() {
			return nil, core.InvalidParameters(fmt.Sprintf("the directory %q does not exist", newCwd))
		}
		s.mu.Lock()
		s.cwd = newCwd
		s.mu.Unlock()
		outputs = append(outputs, fmt.Sprintf("Changed directory to: %s", newCwd))
	}

	if p.SourcePath != "" {
		if _, err := execsafety.SanitizeExecutableValue(p.SourcePath); err != nil {
			return nil, core.InvalidParameters("unsafe source_path: " + err.Error())
		}
		s.mu.Lock()
		sourceFile := s.resolvePath(true, p.SourcePath)
		cwd := s.cwd
		env := cloneEnv(s.env)
		s.mu.Unlock()

		info, err := os.Stat(sourceFile)
		if err != nil || info.IsDir() {
			return nil, core.InvalidParameters(fmt.Sprintf("the file %q does not exist", sourceFile))
		}

		cmd := exec.CommandContext(ctx, "bash", "-c", fmt.Sprintf("source %q && env", sourceFile))
		cmd.Dir = cwd
		cmd.Env = envSlice(env)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, core.ExecutionError(stderr.String())
		}

		newEnv := map[string]string{}
		for _, line := range strings.Split(stdout.String(), "\n") {
			if k, v, ok := strings.Cut(line, "="); ok {
				newEnv[k] = v
			}
		}
		s.mu.Lock()
		s.env = newEnv
		s.mu.Unlock()
		outputs = append(outputs, fmt.Sprintf("Sourced %s", p.SourcePath))
	}

	if p.Command != "" {
		firstToken := strings.Fields(p.Command)
		if len(firstToken) > 0 {
			verb := firstToken[0]
			if disallowedVerbs[verb] {
				return nil, core.InvalidParameters(fmt.Sprintf("the command %q is not allowed", verb))
			}
			if _, err := execsafety.SanitizeExecutableValue(verb); err != nil {
				return nil, core.InvalidParameters("unsafe command: " + err.Error())
			}
		}

		s.mu.Lock()
		cwd := s.cwd
		env := cloneEnv(s.env)
		s.mu.Unlock()

		cmd := exec.CommandContext(ctx, "bash", "-c", p.Command+" 2>&1")
		cmd.Dir = cwd
		cmd.Env = envSlice(env)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		if err := cmd.Start(); err != nil {
			return nil, core.ExecutionError(err.Error())
		}
		procID := uuid.NewString()
		s.processes.Add(procID, p.Command, cwd, cmd.Process)
		err := cmd.Wait()
		s.processes.Remove(procID)
		if err != nil {
			return nil, core.ExecutionError(out.String())
		}
		outputs = append(outputs, out.String())
	}

	result := map[string]string{"result": strings.Join(outputs, "\n")}
	body, _ := json.MarshalIndent(result, "", "  ")
	return []core.Content{core.NewText(string(body))}, nil
}

func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
