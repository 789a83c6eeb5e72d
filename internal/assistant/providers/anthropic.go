package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	agentproviders "github.com/haasonsaas/pilot/internal/agent/providers"
	"github.com/haasonsaas/pilot/internal/assistant/core"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements core.Provider against the Anthropic Messages
// API, translating the tagged content model into tool_use/tool_result
// blocks and classifying SDK errors into the shared ProviderError taxonomy.
type AnthropicProvider struct {
	agentproviders.BaseProvider
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider constructs an Anthropic provider. host, if set,
// overrides the default API base (for Anthropic-compatible proxies).
func NewAnthropicProvider(apiKey, host, model string, maxTokens int) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithRequestTimeout(600 * time.Second)}
	if host != "" {
		opts = append(opts, option.WithBaseURL(host))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		BaseProvider: agentproviders.NewBaseProvider("anthropic", 3, time.Second),
		client:       anthropic.NewClient(opts...),
		model:        model,
		maxTokens:    maxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt string, history []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  toAnthropicMessages(history),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	if len(tools) > 0 {
		toolParams, err := toAnthropicTools(tools)
		if err != nil {
			return core.Message{}, core.Usage{}, core.InvalidParameters(err.Error())
		}
		params.Tools = toolParams
	}

	var resp *anthropic.Message
	err := p.Retry(ctx, isRetryableAnthropicError, func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return core.Message{}, core.Usage{}, wrapAnthropicError(p.model, err)
	}

	msg := fromAnthropicMessage(resp, time.Now().Unix())
	usage := core.Usage{}
	in := int(resp.Usage.InputTokens)
	out := int(resp.Usage.OutputTokens)
	usage.InputTokens = &in
	usage.OutputTokens = &out
	total := in + out
	usage.TotalTokens = &total
	return msg, usage, nil
}

func toAnthropicMessages(history []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		role := anthropic.MessageParamRoleUser
		if m.Role == core.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range m.Content {
			switch c.Type {
			case core.ContentText:
				if c.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(c.Text))
				}
			case core.ContentImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(c.MimeType, c.Data))
			case core.ContentToolRequest:
				if c.ToolCall != nil && c.ToolCall.Call != nil {
					var input any
					_ = json.Unmarshal(c.ToolCall.Call.Arguments, &input)
					blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolRequestID, input, c.ToolCall.Call.Name))
				}
			case core.ContentToolResponse:
				text := ""
				isErr := false
				if c.ToolResult != nil {
					if c.ToolResult.Err != nil {
						text = c.ToolResult.Err.Error()
						isErr = true
					} else {
						text = joinContentText(c.ToolResult.Content)
					}
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolResponseID, text, isErr))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func toAnthropicTools(tools []core.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, sanitizeToolName(t.Name))
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func fromAnthropicMessage(resp *anthropic.Message, created int64) core.Message {
	var content []core.MessageContent
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, core.MessageContent{Content: core.NewText(variant.Text)})
		case anthropic.ToolUseBlock:
			name := strings.TrimSpace(variant.Name)
			if !validToolName(name) {
				content = append(content, core.NewToolRequest(variant.ID, nil, core.ToolNotFound(name)))
				continue
			}
			args := json.RawMessage(variant.Input)
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			content = append(content, core.NewToolRequest(variant.ID, &core.ToolCall{Name: name, Arguments: args}, nil))
		}
	}
	return core.Message{Role: core.RoleAssistant, Created: created, Content: content}
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return core.ClassifyError(errors.New(apiErr.Message)).IsRetryable() || apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return core.ClassifyError(err).IsRetryable()
}

func wrapAnthropicError(model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return core.NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode).WithMessage(apiErr.Message)
	}
	return core.NewProviderError("anthropic", model, err)
}
