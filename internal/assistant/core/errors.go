package core

import (
	"errors"
	"fmt"
	"strings"
)

// AgentErrorKind categorizes errors raised while dispatching a tool call or
// running the reply loop.
type AgentErrorKind string

const (
	KindToolNotFound      AgentErrorKind = "tool_not_found"
	KindInvalidToolName    AgentErrorKind = "invalid_tool_name"
	KindInvalidParameters AgentErrorKind = "invalid_parameters"
	KindExecutionError    AgentErrorKind = "execution_error"
	KindInternal          AgentErrorKind = "internal"
)

// AgentError is the uniform error shape surfaced to the LLM through a
// ToolResponse's tool_result, or to the host through Reply's error channel.
// It never escapes the Agent across a tool dispatch boundary: a failing
// tool call becomes Err(AgentError) inside the ToolResponse rather than
// aborting the round.
type AgentError struct {
	Kind    AgentErrorKind `json:"kind"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
}

func (e *AgentError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AgentError) Unwrap() error { return e.Cause }

// NewAgentError builds an AgentError of the given kind.
func NewAgentError(kind AgentErrorKind, message string) *AgentError {
	return &AgentError{Kind: kind, Message: message}
}

// WithCause attaches an underlying error.
func (e *AgentError) WithCause(cause error) *AgentError {
	e.Cause = cause
	return e
}

func ToolNotFound(name string) *AgentError {
	return NewAgentError(KindToolNotFound, fmt.Sprintf("tool not found: %s", name))
}

func InvalidToolName(name string) *AgentError {
	return NewAgentError(KindInvalidToolName, fmt.Sprintf("invalid tool name: %s", name))
}

func InvalidParameters(msg string) *AgentError {
	return NewAgentError(KindInvalidParameters, msg)
}

func ExecutionError(msg string) *AgentError {
	return NewAgentError(KindExecutionError, msg)
}

func InternalError(msg string) *AgentError {
	return NewAgentError(KindInternal, msg)
}

// IsKind reports whether err is an *AgentError of the given kind.
func IsKind(err error, kind AgentErrorKind) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// FailoverReason classifies a provider-level failure for retry and
// diagnostic purposes.
type FailoverReason string

const (
	ReasonContextLengthExceeded FailoverReason = "context_length_exceeded"
	ReasonRateLimit             FailoverReason = "rate_limit"
	ReasonAuth                  FailoverReason = "auth"
	ReasonTimeout               FailoverReason = "timeout"
	ReasonServerError           FailoverReason = "server_error"
	ReasonInvalidRequest        FailoverReason = "invalid_request"
	ReasonUnknown               FailoverReason = "unknown"
)

// IsRetryable reports whether a failure of this reason is worth retrying:
// rate limits, timeouts, and 5xx server errors are; everything else (a
// context-length overflow, a bad request, an auth failure) is terminal.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError is the structured error type returned by Provider.Complete.
// ContextLengthExceeded and ServerError/RequestFailed from the core spec's
// taxonomy are all represented here via Reason and Status.
type ProviderError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError builds a ProviderError, classifying cause by substring
// match; Status/Code, if set afterward via With*, refine the classification.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Reason:   ClassifyError(cause),
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
}

func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// ClassifyError infers a FailoverReason from an error's message.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return ReasonUnknown
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "context_length_exceeded"),
		strings.Contains(s, "string_above_max_length"),
		strings.Contains(s, "maximum context length"),
		strings.Contains(s, "input is too long"),
		strings.Contains(s, "too many input tokens"):
		return ReasonContextLengthExceeded
	case strings.Contains(s, "rate limit"), strings.Contains(s, "rate_limit"),
		strings.Contains(s, "too many requests"), strings.Contains(s, "429"):
		return ReasonRateLimit
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "authentication"),
		strings.Contains(s, "forbidden"), strings.Contains(s, "401"), strings.Contains(s, "403"):
		return ReasonAuth
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "connection reset"), strings.Contains(s, "connection refused"):
		return ReasonTimeout
	case strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "504"),
		strings.Contains(s, "internal server error"), strings.Contains(s, "bad gateway"),
		strings.Contains(s, "service unavailable"), strings.Contains(s, "gateway timeout"):
		return ReasonServerError
	case strings.Contains(s, "invalid_request"), strings.Contains(s, "bad request"):
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == 401 || status == 403:
		return ReasonAuth
	case status == 429:
		return ReasonRateLimit
	case status == 400:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "context_length_exceeded", "string_above_max_length":
		return ReasonContextLengthExceeded
	case "rate_limit_error", "rate_limit_exceeded":
		return ReasonRateLimit
	case "authentication_error", "invalid_api_key":
		return ReasonAuth
	case "server_error", "api_error":
		return ReasonServerError
	case "invalid_request_error":
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsContextLengthExceeded reports whether err is a provider-level
// context-window overflow, the one case the Agent's compaction logic
// reacts to automatically.
func IsContextLengthExceeded(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason == ReasonContextLengthExceeded
	}
	return false
}
