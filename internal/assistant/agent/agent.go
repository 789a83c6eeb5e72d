// Package agent implements the reply loop: it owns the Systems and
// Provider, renders the system and status prompts, dispatches tool calls
// concurrently, and streams the resulting messages back to the caller.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/pilot/internal/assistant/compaction"
	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/assistant/prompt"
	"github.com/haasonsaas/pilot/internal/assistant/tokens"
)

// defaultCompactionThreshold is the fraction of a model's context window at
// which the Agent proactively compacts history before it ever reaches a
// provider-reported overflow.
const defaultCompactionThreshold = 0.9

// ReplyEvent is one item on the Reply channel: either a Message or a
// terminal error. Exactly one of the two fields is set.
type ReplyEvent struct {
	Message *core.Message
	Err     error
}

// Agent owns an ordered list of Systems and a Provider, and drives the
// reply loop over a conversation history.
type Agent struct {
	mu       sync.RWMutex
	systems  []core.System
	provider core.Provider
	renderer *prompt.Renderer
	logger   *slog.Logger

	maxToolRounds       int
	contextWindow       int
	compactor           *compaction.Compactor
	tokenCounter        *tokens.Counter
	model               string
	compactionThreshold float64
}

// New constructs an Agent. logger defaults to slog.Default() when nil.
func New(provider core.Provider, renderer *prompt.Renderer, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		provider:            provider,
		renderer:            renderer,
		logger:              logger,
		maxToolRounds:       25,
		compactor:           compaction.New(provider, logger),
		compactionThreshold: defaultCompactionThreshold,
	}
}

// SetContextWindow records the active model's context window size, used to
// size the compaction pass triggered on a context-length overflow. Zero
// (the default) disables the model-size hint but compaction still runs on
// overflow with the library's fallback window.
func (a *Agent) SetContextWindow(contextWindow int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contextWindow = contextWindow
}

// EnableProactiveCompaction wires a token Counter and model id so the Agent
// compacts history before a round ever reaches the provider, once usage
// crosses compactionThreshold of the model's context window. threshold <= 0
// falls back to defaultCompactionThreshold.
func (a *Agent) EnableProactiveCompaction(counter *tokens.Counter, model string, threshold float64) {
	if threshold <= 0 {
		threshold = defaultCompactionThreshold
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenCounter = counter
	a.model = model
	a.compactionThreshold = threshold
}

// AddSystem registers a System. Duplicate names are rejected: a
// silently-shadowed System is a harder bug to track down than a start-up
// error.
func (a *Agent) AddSystem(sys core.System) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.systems {
		if existing.Name() == sys.Name() {
			return fmt.Errorf("system %q already registered", sys.Name())
		}
	}
	a.systems = append(a.systems, sys)
	return nil
}

func (a *Agent) systemsSnapshot() []core.System {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]core.System, len(a.systems))
	copy(out, a.systems)
	return out
}

// allTools returns every System's tools, prefixed "<system>__<tool>".
func (a *Agent) allTools(systems []core.System) []core.Tool {
	var out []core.Tool
	for _, sys := range systems {
		for _, t := range sys.Tools() {
			out = append(out, core.Tool{
				Name:        sys.Name() + core.ToolSeparator + t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
	}
	return out
}

func (a *Agent) findSystem(systems []core.System, prefixedName string) (core.System, string, error) {
	parts := strings.SplitN(prefixedName, core.ToolSeparator, 2)
	if len(parts) != 2 {
		return nil, "", core.InvalidToolName(prefixedName)
	}
	for _, sys := range systems {
		if sys.Name() == parts[0] {
			return sys, parts[1], nil
		}
	}
	return nil, "", core.ToolNotFound(prefixedName)
}

func (a *Agent) systemPrompt(ctx context.Context, systems []core.System) (string, error) {
	views := make([]prompt.SystemView, len(systems))
	for i, sys := range systems {
		views[i] = prompt.SystemView{Name: sys.Name(), Instructions: sys.Instructions()}
	}
	return a.renderer.Render("system.md", map[string]any{"Systems": views})
}

func (a *Agent) statusPair(ctx context.Context, systems []core.System, created int64) (core.Message, core.Message, error) {
	views := make([]prompt.SystemView, 0, len(systems))
	for _, sys := range systems {
		status, err := sys.Status(ctx)
		if err != nil {
			a.logger.Warn("system status failed", slog.String("system", sys.Name()), slog.Any("error", err))
			status = core.SystemStatus{"error": err.Error()}
		}
		views = append(views, prompt.SystemView{Name: sys.Name(), Status: prompt.StatusJSON(status)})
	}
	rendered, err := a.renderer.Render("status.md", map[string]any{"Systems": views})
	if err != nil {
		return core.Message{}, core.Message{}, err
	}

	req := core.Message{
		Role:    core.RoleAssistant,
		Created: created,
		Content: []core.MessageContent{core.NewToolRequest("000", &core.ToolCall{Name: "status", Arguments: json.RawMessage(`{}`)}, nil)},
	}
	resp := core.Message{
		Role:    core.RoleUser,
		Created: created,
		Content: []core.MessageContent{core.NewToolResponse("000", []core.Content{core.NewText(rendered)}, nil)},
	}
	return req, resp, nil
}

// Reply drives one round of the conversation to a terminal (non-tool-call)
// assistant response, dispatching any requested tools along the way. The
// returned channel carries every Message appended to history, or a terminal
// error, and is closed when the round completes or ctx is canceled. Provider
// usage figures are not forwarded.
func (a *Agent) Reply(ctx context.Context, history []core.Message) <-chan ReplyEvent {
	out := make(chan ReplyEvent, 4)
	go a.run(ctx, history, out)
	return out
}

func (a *Agent) run(ctx context.Context, history []core.Message, out chan<- ReplyEvent) {
	defer close(out)

	systems := a.systemsSnapshot()
	sysPrompt, err := a.systemPrompt(ctx, systems)
	if err != nil {
		out <- ReplyEvent{Err: err}
		return
	}
	tools := a.allTools(systems)

	working := make([]core.Message, len(history))
	copy(working, history)

	for round := 0; round < a.maxToolRounds; round++ {
		select {
		case <-ctx.Done():
			out <- ReplyEvent{Err: ctx.Err()}
			return
		default:
		}

		if a.tokenCounter != nil && a.tokenCounter.NeedsCompaction(a.model, sysPrompt, working, a.compactionThreshold) {
			compacted, cErr := a.compactor.Compact(ctx, working, a.contextWindow)
			if cErr != nil {
				a.logger.Warn("proactive compaction failed, continuing uncompacted", slog.Any("error", cErr))
			} else {
				working = compacted
			}
		}

		statusReq, statusResp, err := a.statusPair(ctx, systems, lastCreated(working))
		if err != nil {
			out <- ReplyEvent{Err: err}
			return
		}
		callHistory := append(append(append([]core.Message{}, working...), statusReq), statusResp)

		reply, _, err := a.provider.Complete(ctx, sysPrompt, callHistory, tools)
		if err != nil && core.IsContextLengthExceeded(err) {
			a.logger.Warn("context window exceeded, compacting history and retrying this round")
			compacted, cErr := a.compactor.Compact(ctx, working, a.contextWindow)
			if cErr != nil {
				out <- ReplyEvent{Err: fmt.Errorf("compaction failed after context overflow: %w (original: %v)", cErr, err)}
				return
			}
			working = compacted
			callHistory = append(append(append([]core.Message{}, working...), statusReq), statusResp)
			reply, _, err = a.provider.Complete(ctx, sysPrompt, callHistory, tools)
		}
		if err != nil {
			out <- ReplyEvent{Err: err}
			return
		}

		requests := reply.ToolRequests()
		if len(requests) == 0 {
			working = append(working, reply)
			out <- ReplyEvent{Message: &reply}
			return
		}

		out <- ReplyEvent{Message: &reply}
		responseMsg := a.dispatch(ctx, systems, reply, requests)
		working = append(working, reply, responseMsg)
		out <- ReplyEvent{Message: &responseMsg}
	}

	out <- ReplyEvent{Err: fmt.Errorf("exceeded maximum of %d tool-call rounds", a.maxToolRounds)}
}

// dispatch runs every ToolRequest in reply concurrently and assembles the
// outcomes into one User message in request order, regardless of
// completion order. A per-call failure never aborts its siblings.
func (a *Agent) dispatch(ctx context.Context, systems []core.System, reply core.Message, requests []core.MessageContent) core.Message {
	results := make([]core.MessageContent, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req core.MessageContent) {
			defer wg.Done()
			results[i] = a.dispatchOne(ctx, systems, req)
		}(i, req)
	}
	wg.Wait()

	return core.Message{Role: core.RoleUser, Created: reply.Created, Content: results}
}

func (a *Agent) dispatchOne(ctx context.Context, systems []core.System, req core.MessageContent) core.MessageContent {
	id := req.ToolRequestID
	if req.ToolCall == nil || req.ToolCall.Err != nil {
		var agentErr *core.AgentError
		if req.ToolCall != nil {
			agentErr = req.ToolCall.Err
		} else {
			agentErr = core.InternalError("missing tool call")
		}
		return core.NewToolResponse(id, nil, agentErr)
	}

	call := req.ToolCall.Call
	sys, bare, err := a.findSystem(systems, call.Name)
	if err != nil {
		var agentErr *core.AgentError
		if ae, ok := err.(*core.AgentError); ok {
			agentErr = ae
		} else {
			agentErr = core.InternalError(err.Error())
		}
		return core.NewToolResponse(id, nil, agentErr)
	}

	content, err := sys.Call(ctx, bare, call.Arguments)
	if err != nil {
		var agentErr *core.AgentError
		if ae, ok := err.(*core.AgentError); ok {
			agentErr = ae
		} else {
			agentErr = core.ExecutionError(err.Error())
		}
		return core.NewToolResponse(id, nil, agentErr)
	}
	return core.NewToolResponse(id, content, nil)
}

func lastCreated(history []core.Message) int64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1].Created
}
