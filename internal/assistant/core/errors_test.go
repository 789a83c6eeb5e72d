package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestAgentError_IsKind(t *testing.T) {
	err := NewAgentError(KindToolNotFound, "no such tool")
	if !IsKind(err, KindToolNotFound) {
		t.Fatal("expected IsKind to match the constructed kind")
	}
	if IsKind(err, KindInternal) {
		t.Fatal("expected IsKind to reject a different kind")
	}
}

func TestAgentError_WithCauseUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := ExecutionError("tool failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through WithCause to the wrapped cause")
	}
}

func TestProviderError_WithStatusClassifiesReason(t *testing.T) {
	cases := []struct {
		status int
		want   FailoverReason
	}{
		{429, ReasonRateLimit},
		{401, ReasonAuth},
		{403, ReasonAuth},
		{500, ReasonServerError},
		{503, ReasonServerError},
		{400, ReasonInvalidRequest},
	}
	for _, tc := range cases {
		err := (&ProviderError{}).WithStatus(tc.status)
		if err.Reason != tc.want {
			t.Errorf("status %d: reason = %v, want %v", tc.status, err.Reason, tc.want)
		}
	}
}

func TestProviderError_WithCodeClassifiesReason(t *testing.T) {
	err := (&ProviderError{}).WithCode("context_length_exceeded")
	if err.Reason != ReasonContextLengthExceeded {
		t.Fatalf("reason = %v, want %v", err.Reason, ReasonContextLengthExceeded)
	}
}

func TestFailoverReason_IsRetryable(t *testing.T) {
	retryable := []FailoverReason{ReasonRateLimit, ReasonTimeout, ReasonServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("expected %v to be retryable", r)
		}
	}
	terminal := []FailoverReason{ReasonAuth, ReasonInvalidRequest, ReasonContextLengthExceeded, ReasonUnknown}
	for _, r := range terminal {
		if r.IsRetryable() {
			t.Errorf("expected %v to be terminal", r)
		}
	}
}

func TestClassifyError_ContextLengthExceeded(t *testing.T) {
	err := errors.New("this model's maximum context length is 128000 tokens")
	if ClassifyError(err) != ReasonContextLengthExceeded {
		t.Fatalf("expected context-length-exceeded classification, got %v", ClassifyError(err))
	}
}

func TestClassifyError_RateLimit(t *testing.T) {
	err := errors.New("429 rate limit exceeded, please retry later")
	if got := ClassifyError(err); got != ReasonRateLimit {
		t.Fatalf("reason = %v, want %v", got, ReasonRateLimit)
	}
}

func TestClassifyError_NilIsUnknown(t *testing.T) {
	if ClassifyError(nil) != ReasonUnknown {
		t.Fatal("expected nil error to classify as unknown")
	}
}

func TestNewProviderError_ClassifiesFromCause(t *testing.T) {
	cause := errors.New("connection timeout while dialing upstream")
	pe := NewProviderError("anthropic", "claude-x", cause)
	if pe.Reason != ReasonTimeout {
		t.Fatalf("reason = %v, want %v", pe.Reason, ReasonTimeout)
	}
	if !errors.Is(pe, cause) {
		t.Fatal("expected errors.Is to see through to the wrapped cause")
	}
}

func TestIsProviderError(t *testing.T) {
	if IsProviderError(errors.New("plain error")) {
		t.Fatal("a plain error should not be classified as a ProviderError")
	}
	pe := &ProviderError{Reason: ReasonTimeout}
	if !IsProviderError(pe) {
		t.Fatal("expected a *ProviderError to be recognized as such")
	}
	wrapped := fmt.Errorf("round failed: %w", pe)
	if !IsProviderError(wrapped) {
		t.Fatal("expected errors.As to see through fmt.Errorf wrapping")
	}
}

func TestIsContextLengthExceeded(t *testing.T) {
	pe := &ProviderError{Reason: ReasonContextLengthExceeded}
	if !IsContextLengthExceeded(pe) {
		t.Fatal("expected context-length-exceeded provider error to be detected")
	}
	other := &ProviderError{Reason: ReasonServerError}
	if IsContextLengthExceeded(other) {
		t.Fatal("did not expect a server-error provider error to be flagged as context-length-exceeded")
	}
}
