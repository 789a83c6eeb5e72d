package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/pilot/internal/agent/providers"
	"github.com/haasonsaas/pilot/internal/assistant/core"
)

// OllamaProvider implements core.Provider against a local Ollama daemon's
// native /api/chat endpoint. No authentication header is sent.
type OllamaProvider struct {
	providers.BaseProvider
	client  *http.Client
	baseURL string
	model   string
}

// NewOllamaProvider constructs an Ollama provider. baseURL defaults to
// http://localhost:11434 when empty.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		BaseProvider: providers.NewBaseProvider("ollama", 3, time.Second),
		client:       &http.Client{Timeout: 600 * time.Second},
		baseURL:      baseURL,
		model:        model,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaToolDef     `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolDef struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, systemPrompt string, history []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	payload := ollamaChatRequest{
		Model:    p.model,
		Stream:   false,
		Messages: toOllamaMessages(systemPrompt, history),
	}
	if len(tools) > 0 {
		payload.Tools = toOllamaTools(tools)
	}

	var chatResp ollamaChatResponse
	err := p.Retry(ctx, isRetryableOllamaError, func() error {
		var callErr error
		chatResp, callErr = p.send(ctx, payload)
		return callErr
	})
	if err != nil {
		return core.Message{}, core.Usage{}, err
	}
	if chatResp.Error != "" {
		return core.Message{}, core.Usage{}, core.NewProviderError("ollama", p.model, errors.New(chatResp.Error))
	}

	msg := fromOllamaMessage(chatResp.Message, time.Now().Unix())
	usage := core.Usage{}
	if chatResp.PromptEvalCount > 0 {
		v := chatResp.PromptEvalCount
		usage.InputTokens = &v
	}
	if chatResp.EvalCount > 0 {
		v := chatResp.EvalCount
		usage.OutputTokens = &v
	}
	if usage.InputTokens != nil && usage.OutputTokens != nil {
		total := *usage.InputTokens + *usage.OutputTokens
		usage.TotalTokens = &total
	}
	return msg, usage, nil
}

func (p *OllamaProvider) send(ctx context.Context, payload ollamaChatRequest) (ollamaChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ollamaChatResponse{}, core.NewProviderError("ollama", p.model, fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ollamaChatResponse{}, core.NewProviderError("ollama", p.model, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return ollamaChatResponse{}, core.NewProviderError("ollama", p.model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ollamaChatResponse{}, core.NewProviderError("ollama", p.model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return ollamaChatResponse{}, core.NewProviderError("ollama", p.model,
			fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))).WithStatus(resp.StatusCode)
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ollamaChatResponse{}, core.NewProviderError("ollama", p.model, fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

func toOllamaMessages(system string, history []core.Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(history)+1)
	if system != "" {
		out = append(out, ollamaChatMessage{Role: "system", Content: system})
	}
	toolNames := map[string]string{}
	for _, m := range history {
		for _, c := range m.Content {
			if c.Type == core.ContentToolRequest && c.ToolCall != nil && c.ToolCall.Call != nil {
				toolNames[c.ToolRequestID] = c.ToolCall.Call.Name
			}
		}
	}
	for _, m := range history {
		role := "user"
		if m.Role == core.RoleAssistant {
			role = "assistant"
		}
		var text string
		var images []string
		var toolCalls []ollamaToolCall
		var toolResponses []core.MessageContent
		for _, c := range m.Content {
			switch c.Type {
			case core.ContentText:
				text += c.Text
			case core.ContentImage:
				images = append(images, c.Data)
			case core.ContentToolRequest:
				if c.ToolCall != nil && c.ToolCall.Call != nil {
					toolCalls = append(toolCalls, ollamaToolCall{
						ID:   c.ToolRequestID,
						Type: "function",
						Function: ollamaToolFunction{
							Name:      sanitizeToolName(c.ToolCall.Call.Name),
							Arguments: c.ToolCall.Call.Arguments,
						},
					})
				}
			case core.ContentToolResponse:
				toolResponses = append(toolResponses, c)
			}
		}
		for _, tr := range toolResponses {
			content := ""
			if tr.ToolResult != nil {
				if tr.ToolResult.Err != nil {
					content = tr.ToolResult.Err.Error()
				} else {
					content = joinContentText(tr.ToolResult.Content)
				}
			}
			out = append(out, ollamaChatMessage{Role: "tool", Content: content, ToolName: toolNames[tr.ToolResponseID]})
		}
		if text == "" && len(images) == 0 && len(toolCalls) == 0 {
			continue
		}
		out = append(out, ollamaChatMessage{Role: role, Content: text, Images: images, ToolCalls: toolCalls})
	}
	return out
}

func toOllamaTools(tools []core.Tool) []ollamaToolDef {
	out := make([]ollamaToolDef, len(tools))
	for i, t := range tools {
		out[i] = ollamaToolDef{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        sanitizeToolName(t.Name),
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func fromOllamaMessage(msg *ollamaChatMessage, created int64) core.Message {
	var content []core.MessageContent
	if msg != nil {
		if msg.Content != "" {
			content = append(content, core.MessageContent{Content: core.NewText(msg.Content)})
		}
		for _, tc := range msg.ToolCalls {
			id := strings.TrimSpace(tc.ID)
			if id == "" {
				id = uuid.NewString()
			}
			name := strings.TrimSpace(tc.Function.Name)
			if !validToolName(name) {
				content = append(content, core.NewToolRequest(id, nil, core.ToolNotFound(name)))
				continue
			}
			args := tc.Function.Arguments
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			content = append(content, core.NewToolRequest(id, &core.ToolCall{Name: name, Arguments: args}, nil))
		}
	}
	return core.Message{Role: core.RoleAssistant, Created: created, Content: content}
}

func isRetryableOllamaError(err error) bool {
	if err == nil {
		return false
	}
	return core.ClassifyError(err).IsRetryable()
}
