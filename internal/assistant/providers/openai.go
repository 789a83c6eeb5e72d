package providers

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/pilot/internal/agent/providers"
	"github.com/haasonsaas/pilot/internal/assistant/core"
	openai "github.com/sashabaranov/go-openai"
)

// toolNamePattern is the allowed character set for an outbound tool name;
// any other rune is coerced to '_'.
var toolNamePattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeToolName(name string) string {
	return toolNamePattern.ReplaceAllString(name, "_")
}

func validToolName(name string) bool {
	return name != "" && !toolNamePattern.MatchString(name)
}

// OpenAIProvider implements core.Provider against any OpenAI-compatible
// chat-completions endpoint (OpenAI itself, or a compatible proxy).
type OpenAIProvider struct {
	providers.BaseProvider
	client *openai.Client
	model  string
}

// NewOpenAIProvider constructs an OpenAI-compatible provider. host, if set,
// replaces the default OpenAI endpoint root, and requests go to
// {host}/v1/chat/completions (used by proxies/Ollama-compatible gateways
// fronting the OpenAI wire shape).
func NewOpenAIProvider(apiKey, host, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if host != "" {
		cfg.BaseURL = strings.TrimRight(host, "/") + "/v1"
	}
	cfg.HTTPClient.Timeout = 600 * time.Second
	return &OpenAIProvider{
		BaseProvider: providers.NewBaseProvider("openai", 3, time.Second),
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt string, history []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(systemPrompt, history),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	var resp openai.ChatCompletionResponse
	err := p.Retry(ctx, isRetryableOpenAIError, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return core.Message{}, core.Usage{}, wrapOpenAIError("openai", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, core.Usage{}, core.NewProviderError("openai", p.model, errors.New("no choices returned"))
	}

	msg := fromOpenAIChoice(resp.Choices[0], time.Now().Unix())
	usage := core.Usage{}
	if resp.Usage.PromptTokens > 0 {
		v := resp.Usage.PromptTokens
		usage.InputTokens = &v
	}
	if resp.Usage.CompletionTokens > 0 {
		v := resp.Usage.CompletionTokens
		usage.OutputTokens = &v
	}
	if resp.Usage.TotalTokens > 0 {
		v := resp.Usage.TotalTokens
		usage.TotalTokens = &v
	}
	return msg, usage, nil
}

func toOpenAIMessages(system string, history []core.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == core.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var toolCalls []openai.ToolCall
		var text string
		var imageParts []openai.ChatMessagePart
		var toolResponses []core.MessageContent

		for _, c := range m.Content {
			switch c.Type {
			case core.ContentText:
				text += c.Text
			case core.ContentImage:
				imageParts = append(imageParts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: "data:" + c.MimeType + ";base64," + c.Data},
				})
			case core.ContentToolRequest:
				if c.ToolCall != nil && c.ToolCall.Call != nil {
					toolCalls = append(toolCalls, openai.ToolCall{
						ID:   c.ToolRequestID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      sanitizeToolName(c.ToolCall.Call.Name),
							Arguments: string(c.ToolCall.Call.Arguments),
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
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: tr.ToolResponseID,
			})
		}

		if len(toolCalls) == 0 && len(imageParts) == 0 && text == "" {
			continue
		}

		msg := openai.ChatCompletionMessage{Role: role, ToolCalls: toolCalls}
		if len(imageParts) > 0 {
			parts := imageParts
			if text != "" {
				parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}, parts...)
			}
			msg.MultiContent = parts
		} else {
			msg.Content = text
		}
		out = append(out, msg)
	}
	return out
}

func joinContentText(content []core.Content) string {
	var out string
	for _, c := range content {
		if c.Type == core.ContentText {
			out += c.Text
		}
	}
	return out
}

func toOpenAITools(tools []core.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        sanitizeToolName(t.Name),
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func fromOpenAIChoice(choice openai.ChatCompletionChoice, created int64) core.Message {
	var content []core.MessageContent
	if choice.Message.Content != "" {
		content = append(content, core.MessageContent{Content: core.NewText(choice.Message.Content)})
	}
	for _, tc := range choice.Message.ToolCalls {
		if !validToolName(tc.Function.Name) {
			content = append(content, core.NewToolRequest(tc.ID, nil, core.ToolNotFound(tc.Function.Name)))
			continue
		}
		var args json.RawMessage
		if err := json.Unmarshal([]byte(tc.Function.Arguments), new(any)); err != nil {
			content = append(content, core.NewToolRequest(tc.ID, nil, core.InvalidParameters("malformed tool arguments: "+tc.Function.Arguments)))
			continue
		}
		args = json.RawMessage(tc.Function.Arguments)
		content = append(content, core.NewToolRequest(tc.ID, &core.ToolCall{Name: tc.Function.Name, Arguments: args}, nil))
	}
	return core.Message{Role: core.RoleAssistant, Created: created, Content: content}
}

func isRetryableOpenAIError(err error) bool {
	if err == nil {
		return false
	}
	return core.ClassifyError(err).IsRetryable()
}

func wrapOpenAIError(provider, model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := core.NewProviderError(provider, model, err).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Code != nil {
			if code, ok := apiErr.Code.(string); ok {
				pe = pe.WithCode(code)
			}
		}
		return pe.WithMessage(apiErr.Message)
	}
	return core.NewProviderError(provider, model, err)
}
