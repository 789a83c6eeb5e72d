// Package tokens counts tokens for compaction decisions and cost
// estimation, using tiktoken-go's BPE encodings where available and a
// chars-per-token heuristic everywhere else.
package tokens

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/models"
)

// charsPerTokenFallback approximates BPE token density for models without a
// tiktoken-go encoding (Anthropic, Ollama, Databricks-hosted non-OpenAI).
const charsPerTokenFallback = 4

// Counter estimates token counts for a given provider/model pair.
type Counter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewCounter constructs an empty Counter; encodings are loaded lazily.
func NewCounter() *Counter {
	return &Counter{encoders: map[string]*tiktoken.Tiktoken{}}
}

// CountText estimates the token count of raw text for the named model.
func (c *Counter) CountText(model, text string) int {
	if enc := c.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return heuristicCount(text)
}

// CountMessages estimates the total token count of a message history for
// the named model, including the system prompt.
func (c *Counter) CountMessages(model, systemPrompt string, history []core.Message) int {
	total := c.CountText(model, systemPrompt)
	for _, msg := range history {
		total += c.CountText(model, msg.Text())
		for _, tc := range msg.ToolRequests() {
			if tc.ToolCall != nil && tc.ToolCall.Call != nil {
				total += c.CountText(model, tc.ToolCall.Call.Name)
				total += c.CountText(model, string(tc.ToolCall.Call.Arguments))
			}
		}
		for _, tr := range msg.ToolResponses() {
			if tr.ToolResult != nil {
				for _, content := range tr.ToolResult.Content {
					total += c.CountText(model, content.Text)
				}
			}
		}
	}
	return total
}

// ContextWindow returns the model's context window from the catalog, or
// ok=false when the model is unknown.
func ContextWindow(modelID string) (int, bool) {
	m, ok := models.Get(modelID)
	if !ok {
		return 0, false
	}
	return m.ContextWindow, true
}

// NeedsCompaction reports whether a history's estimated token count reaches
// or exceeds the given fraction of the model's known context window. Unknown models
// never trigger compaction via this check.
func (c *Counter) NeedsCompaction(model, systemPrompt string, history []core.Message, threshold float64) bool {
	window, ok := ContextWindow(model)
	if !ok || window == 0 {
		return false
	}
	used := c.CountMessages(model, systemPrompt, history)
	return float64(used) >= threshold*float64(window)
}

func (c *Counter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encoders[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		c.encoders[model] = nil
		return nil
	}
	c.encoders[model] = enc
	return enc
}

func heuristicCount(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerTokenFallback
	if n == 0 {
		return 1
	}
	return n
}
