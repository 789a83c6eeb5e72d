package compaction

import (
	"context"
	"testing"

	"github.com/haasonsaas/pilot/internal/assistant/core"
)

type fakeProvider struct {
	summary string
	calls   int
}

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt string, history []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	f.calls++
	return core.AssistantText(f.summary, 0), core.Usage{}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func history(n int) []core.Message {
	out := make([]core.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, core.UserText("message", int64(i)))
	}
	return out
}

func TestCompactor_Compact_KeepsTailVerbatim(t *testing.T) {
	provider := &fakeProvider{summary: "earlier discussion summarized"}
	c := New(provider, nil)

	h := history(10)
	compacted, err := c.Compact(context.Background(), h, 4000)
	if err != nil {
		t.Fatalf("Compact returned error: %v", err)
	}

	if len(compacted) != KeepRecentMessages+1 {
		t.Fatalf("expected %d messages (summary + tail), got %d", KeepRecentMessages+1, len(compacted))
	}
	if compacted[0].Text() == "" {
		t.Fatal("expected a non-empty synthetic summary message")
	}
	for i, want := range h[len(h)-KeepRecentMessages:] {
		got := compacted[i+1]
		if got.Created != want.Created {
			t.Fatalf("tail message %d not preserved verbatim: got created=%d want=%d", i, got.Created, want.Created)
		}
	}
	if provider.calls == 0 {
		t.Fatal("expected the provider to be called to generate a summary")
	}
}

func TestCompactor_Compact_NoOpBelowKeepThreshold(t *testing.T) {
	provider := &fakeProvider{summary: "unused"}
	c := New(provider, nil)

	h := history(2)
	compacted, err := c.Compact(context.Background(), h, 4000)
	if err != nil {
		t.Fatalf("Compact returned error: %v", err)
	}
	if len(compacted) != len(h) {
		t.Fatalf("expected no-op for history shorter than KeepRecentMessages, got %d messages", len(compacted))
	}
	if provider.calls != 0 {
		t.Fatal("expected no summarization call when history is too short to compact")
	}
}
