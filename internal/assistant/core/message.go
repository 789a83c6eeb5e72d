// Package core defines the conversation data model shared by the agent,
// providers, and systems: messages, content atoms, and tools.
package core

import (
	"encoding/json"
)

// Role identifies the author of a Message. System prompts are passed to
// providers out-of-band and are not represented as a Role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content is an LLM payload atom: either text or an inline image. Audience
// restricts which roles should see the content when rendered; priority
// filters low-salience atoms from presentation surfaces.
type Content struct {
	Type string `json:"type"`

	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64, Image only
	MimeType string `json:"mimeType,omitempty"`

	Audience []Role   `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

const (
	ContentText  = "text"
	ContentImage = "image"
)

// NewText builds a Text content atom.
func NewText(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// NewImage builds an Image content atom. data must already be base64-encoded.
func NewImage(data, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

// ClampPriority clamps c.Priority into [0,1] in place; a nil priority is left
// untouched.
func (c *Content) ClampPriority() {
	if c.Priority == nil {
		return
	}
	p := *c.Priority
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	c.Priority = &p
}

// ToolCall is the LLM's structured request to invoke a tool.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResult wraps either a successfully parsed ToolCall or the error
// encountered while validating/parsing the raw request, mirroring the core
// spec's Result<ToolCall, AgentError> value.
type ToolCallResult struct {
	Call *ToolCall  `json:"call,omitempty"`
	Err  *AgentError `json:"error,omitempty"`
}

// ToolOutcome wraps either the Content produced by a tool invocation or the
// AgentError raised while dispatching it.
type ToolOutcome struct {
	Content []Content  `json:"content,omitempty"`
	Err     *AgentError `json:"error,omitempty"`
}

// MessageContent extends Content with the two tool atoms used to carry
// tool-call requests and their responses through a conversation.
type MessageContent struct {
	Content

	// ToolRequest fields (Assistant messages only).
	ToolRequestID string          `json:"toolRequestId,omitempty"`
	ToolCall      *ToolCallResult `json:"toolCall,omitempty"`

	// ToolResponse fields (User messages only).
	ToolResponseID string       `json:"toolResponseId,omitempty"`
	ToolResult     *ToolOutcome `json:"toolResult,omitempty"`
}

const (
	ContentToolRequest  = "toolRequest"
	ContentToolResponse = "toolResponse"
)

// NewToolRequest builds a ToolRequest atom for an Assistant message.
func NewToolRequest(id string, call *ToolCall, err *AgentError) MessageContent {
	return MessageContent{
		Content:       Content{Type: ContentToolRequest},
		ToolRequestID: id,
		ToolCall:      &ToolCallResult{Call: call, Err: err},
	}
}

// NewToolResponse builds a ToolResponse atom for a User message.
func NewToolResponse(id string, content []Content, err *AgentError) MessageContent {
	return MessageContent{
		Content:        Content{Type: ContentToolResponse},
		ToolResponseID: id,
		ToolResult:     &ToolOutcome{Content: content, Err: err},
	}
}

// IsText reports whether m carries a Text atom.
func (m MessageContent) IsText() bool { return m.Type == ContentText }

// Message is one turn of the conversation. A User message may only contain
// Text, Image, or ToolResponse atoms; an Assistant message may only contain
// Text, Image, or ToolRequest atoms. Multiple ToolRequests are permitted in
// one Assistant message; each is answered by exactly one ToolResponse,
// correlated by id, in the immediately following User message.
type Message struct {
	Role    Role             `json:"role"`
	Created int64            `json:"created"`
	Content []MessageContent `json:"content"`
}

// Text returns the concatenation of every Text atom in the message.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if c.IsText() {
			out += c.Text
		}
	}
	return out
}

// ToolRequests returns every ToolRequest atom in the message.
func (m Message) ToolRequests() []MessageContent {
	var out []MessageContent
	for _, c := range m.Content {
		if c.Type == ContentToolRequest {
			out = append(out, c)
		}
	}
	return out
}

// ToolResponses returns every ToolResponse atom in the message.
func (m Message) ToolResponses() []MessageContent {
	var out []MessageContent
	for _, c := range m.Content {
		if c.Type == ContentToolResponse {
			out = append(out, c)
		}
	}
	return out
}

// HasTextContent reports whether the message carries at least one non-empty
// Text atom; rewind uses this to find the last genuine user turn.
func (m Message) HasTextContent() bool {
	for _, c := range m.Content {
		if c.IsText() && c.Text != "" {
			return true
		}
	}
	return false
}

// UserText builds a plain User message carrying a single Text atom.
func UserText(text string, created int64) Message {
	return Message{Role: RoleUser, Created: created, Content: []MessageContent{{Content: NewText(text)}}}
}

// AssistantText builds a plain Assistant message carrying a single Text atom.
func AssistantText(text string, created int64) Message {
	return Message{Role: RoleAssistant, Created: created, Content: []MessageContent{{Content: NewText(text)}}}
}

// Tool describes a capability exposed to the LLM: a name, a natural
// language description, and a JSON Schema for its parameters. Names visible
// to the LLM are prefixed "<system>__<tool>"; the separator is reserved and
// must not appear inside a bare tool or system name.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolSeparator joins a System name and a bare tool name into the prefixed
// name the LLM sees.
const ToolSeparator = "__"

// Usage reports token accounting for a single provider call. Any field may
// be nil when the backend did not report it.
type Usage struct {
	InputTokens  *int `json:"inputTokens,omitempty"`
	OutputTokens *int `json:"outputTokens,omitempty"`
	TotalTokens  *int `json:"totalTokens,omitempty"`
}

// SystemStatus is a System's self-reported status, serialized as JSON when
// rendered into the status pseudo-turn.
type SystemStatus map[string]any
