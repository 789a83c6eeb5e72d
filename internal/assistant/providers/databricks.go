package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/pilot/internal/agent/providers"
	"github.com/haasonsaas/pilot/internal/assistant/core"
	openai "github.com/sashabaranov/go-openai"
)

// TokenSource resolves the bearer token used to authenticate a Databricks
// request. A static API key and the PKCE OAuth flow (see the oauth
// package) both implement this.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// staticToken is a TokenSource over a fixed API key, used when
// GOOSE_PROVIDER__API_KEY is configured directly rather than OAuth.
type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// StaticToken wraps a fixed API key as a TokenSource.
func StaticToken(key string) TokenSource { return staticToken(key) }

// DatabricksProvider implements core.Provider against a Databricks model
// serving endpoint, using the same OpenAI-compatible request/response
// shape as OpenAIProvider but a different URL path and bearer source.
type DatabricksProvider struct {
	providers.BaseProvider
	client  *http.Client
	host    string
	model   string
	tokens  TokenSource
}

// NewDatabricksProvider constructs a Databricks provider. host is the
// workspace base URL (e.g. https://my-workspace.cloud.databricks.com).
func NewDatabricksProvider(host, model string, tokens TokenSource) *DatabricksProvider {
	return &DatabricksProvider{
		BaseProvider: providers.NewBaseProvider("databricks", 3, time.Second),
		client:       &http.Client{Timeout: 600 * time.Second},
		host:         strings.TrimRight(host, "/"),
		model:        model,
		tokens:       tokens,
	}
}

func (p *DatabricksProvider) Name() string { return "databricks" }

func (p *DatabricksProvider) Complete(ctx context.Context, systemPrompt string, history []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
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
		resp, callErr = p.send(ctx, req)
		return callErr
	})
	if err != nil {
		return core.Message{}, core.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, core.Usage{}, core.NewProviderError("databricks", p.model, fmt.Errorf("no choices returned"))
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

func (p *DatabricksProvider) send(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model, fmt.Errorf("resolve token: %w", err))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model, fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/serving-endpoints/%s/invocations", p.host, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model,
			fmt.Errorf("databricks status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))).WithStatus(resp.StatusCode)
	}

	var out openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return openai.ChatCompletionResponse{}, core.NewProviderError("databricks", p.model, fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}
