// Package shell tracks the OS processes spawned by the Developer System's
// bash tool so they can be killed in bulk on shutdown, even if a request
// that spawned one has already returned.
package shell

import (
	"log/slog"
	"os"
	"sync"
	"syscall"
)

// Process is one tracked child process: enough to report on it and to kill
// its tree if it outlives the request that spawned it.
type Process struct {
	ID      string
	Command string
	CWD     string
	PID     int

	proc *os.Process
}

// ProcessRegistry is a mutex-guarded map of currently-running child
// processes. The bash tool registers a process when it starts a command and
// deregisters it when the command returns; KillAll is the host's shutdown
// hook for anything still registered at that point.
type ProcessRegistry struct {
	mu      sync.Mutex
	running map[string]*Process
	logger  *slog.Logger
}

// NewProcessRegistry constructs an empty registry.
func NewProcessRegistry(logger *slog.Logger) *ProcessRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessRegistry{
		running: map[string]*Process{},
		logger:  logger.With("component", "process_registry"),
	}
}

// Add registers a running process under id. proc must be non-nil.
func (r *ProcessRegistry) Add(id, command, cwd string, proc *os.Process) {
	if proc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[id] = &Process{ID: id, Command: command, CWD: cwd, PID: proc.Pid, proc: proc}
	r.logger.Debug("tracking child process", slog.String("id", id), slog.Int("pid", proc.Pid))
}

// Remove deregisters id, e.g. once its command has returned normally.
func (r *ProcessRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

// List returns a snapshot of every currently-tracked process.
func (r *ProcessRegistry) List() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Process, 0, len(r.running))
	for _, p := range r.running {
		out = append(out, p)
	}
	return out
}

// Count reports how many processes are currently tracked.
func (r *ProcessRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// KillAll sends SIGKILL to every tracked process's group and clears the
// registry. Called on host shutdown so a bash command that outlived its
// request doesn't outlive the whole runtime.
func (r *ProcessRegistry) KillAll() {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.running))
	for _, p := range r.running {
		procs = append(procs, p)
	}
	r.running = map[string]*Process{}
	r.mu.Unlock()

	for _, p := range procs {
		r.killTree(p)
	}
}

// killTree sends SIGKILL to the process group leader by PID, which also
// reaches any children it spawned since the bash tool starts each command
// as its own session/process group leader.
func (r *ProcessRegistry) killTree(p *Process) {
	if err := syscall.Kill(-p.PID, syscall.SIGKILL); err != nil {
		if kerr := p.proc.Kill(); kerr != nil {
			r.logger.Warn("failed to kill tracked process", slog.String("id", p.ID), slog.Int("pid", p.PID), slog.Any("error", kerr))
			return
		}
	}
	r.logger.Debug("killed tracked process", slog.String("id", p.ID), slog.Int("pid", p.PID))
}
