// Package compaction adapts the token-estimation and chunked-summarization
// primitives in internal/compaction to the conversation's core.Message
// model, so the Agent can recover from a context-window overflow by
// replacing older history with an LLM-generated summary instead of failing
// the round outright.
package compaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/pilot/internal/assistant/core"
	compact "github.com/haasonsaas/pilot/internal/compaction"
)

// KeepRecentMessages is how many of the most recent messages are always
// kept verbatim rather than folded into the summary, so the model retains
// the immediate back-and-forth that led to the overflow.
const KeepRecentMessages = 4

// Compactor summarizes the older portion of a conversation's history via
// the same Provider driving the conversation, then splices the summary back
// in as a single synthetic message ahead of the preserved recent tail.
type Compactor struct {
	provider core.Provider
	logger   *slog.Logger
}

// New constructs a Compactor. logger defaults to slog.Default() when nil.
func New(provider core.Provider, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{provider: provider, logger: logger}
}

// Compact replaces the older portion of history with a generated summary,
// keeping the most recent KeepRecentMessages verbatim. It never drops the
// last message, so history is never returned empty.
func (c *Compactor) Compact(ctx context.Context, history []core.Message, contextWindow int) ([]core.Message, error) {
	if len(history) <= KeepRecentMessages {
		return history, nil
	}

	splitAt := len(history) - KeepRecentMessages
	older, tail := history[:splitAt], history[splitAt:]

	msgs := toCompactionMessages(older)
	cfg := compact.DefaultSummarizationConfig()
	if contextWindow > 0 {
		cfg.ContextWindow = contextWindow
	}

	summary, err := compact.SummarizeInStages(ctx, msgs, c, cfg)
	if err != nil {
		return nil, fmt.Errorf("compacting history: %w", err)
	}

	c.logger.Info("compacted conversation history",
		slog.Int("dropped_messages", len(older)),
		slog.Int("kept_messages", len(tail)),
	)

	synthetic := core.Message{
		Role:    core.RoleUser,
		Created: tail[0].Created,
		Content: []core.MessageContent{{Content: core.NewText("Summary of earlier conversation:\n\n" + summary)}},
	}
	return append([]core.Message{synthetic}, tail...), nil
}

// GenerateSummary implements compact.Summarizer by asking the conversation's
// own Provider to summarize a chunk of history as plain text, with no tools
// offered.
func (c *Compactor) GenerateSummary(ctx context.Context, messages []*compact.Message, cfg *compact.SummarizationConfig) (string, error) {
	if len(messages) == 0 {
		return compact.DefaultSummaryFallback, nil
	}

	instructions := "Summarize the following conversation excerpt concisely, preserving facts, " +
		"decisions, file paths, and open tasks a continuation would need. Output plain prose, no preamble."
	if cfg != nil && cfg.CustomInstructions != "" {
		instructions = cfg.CustomInstructions
	}

	prompt := instructions + "\n\n" + compact.FormatMessagesForSummary(messages)
	request := []core.Message{core.UserText(prompt, 0)}

	reply, _, err := c.provider.Complete(ctx, "You condense conversation history into compact summaries.", request, nil)
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	return reply.Text(), nil
}

func toCompactionMessages(history []core.Message) []*compact.Message {
	out := make([]*compact.Message, 0, len(history))
	for _, m := range history {
		out = append(out, &compact.Message{
			Role:      string(m.Role),
			Content:   m.Text(),
			Timestamp: m.Created,
		})
	}
	return out
}
