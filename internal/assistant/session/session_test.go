package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/pilot/internal/assistant/core"
)

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonl")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Messages()) != 0 {
		t.Fatalf("expected no messages, got %d", len(s.Messages()))
	}
	if s.Path() != path {
		t.Fatalf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.jsonl")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.Append(core.UserText("hi", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(core.AssistantText("hello", 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reloaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("reload Load: %v", err)
	}
	msgs := reloaded.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", len(msgs))
	}
	if msgs[0].Text() != "hi" || msgs[1].Text() != "hello" {
		t.Fatalf("unexpected reloaded messages: %+v", msgs)
	}
}

func TestAppendAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.jsonl")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.AppendAll(core.UserText("a", 1), core.UserText("b", 2)); err != nil {
		t.Fatalf("AppendAll: %v", err)
	}
	if len(s.Messages()) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages()))
	}
}

func TestRewind_DropsToLastUserTextMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.jsonl")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.AppendAll(
		core.UserText("do the thing", 1),
		core.AssistantText("working on it", 2),
		core.Message{Role: core.RoleAssistant, Created: 3, Content: []core.MessageContent{
			core.NewToolRequest("t1", &core.ToolCall{Name: "dev__shell"}, nil),
		}},
	); err != nil {
		t.Fatalf("AppendAll: %v", err)
	}

	if err := s.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 0 {
		t.Fatalf("expected rewind to drop through to and including the last user text message, got %+v", msgs)
	}
}

func TestRewind_KeepsEarlierHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.jsonl")
	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.AppendAll(
		core.UserText("first turn", 1),
		core.AssistantText("first reply", 2),
		core.UserText("second turn", 3),
		core.Message{Role: core.RoleAssistant, Created: 4, Content: []core.MessageContent{
			core.NewToolRequest("t1", &core.ToolCall{Name: "dev__shell"}, nil),
		}},
	); err != nil {
		t.Fatalf("AppendAll: %v", err)
	}

	if err := s.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected the first turn's pair to survive, got %+v", msgs)
	}
	if msgs[0].Text() != "first turn" || msgs[1].Text() != "first reply" {
		t.Fatalf("unexpected surviving messages: %+v", msgs)
	}
}

func TestLoad_MalformedLineStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess.jsonl")

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Append(core.UserText("hi", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("reload Load: %v", err)
	}
	if len(reloaded.Messages()) != 0 {
		t.Fatalf("expected malformed journal to start fresh, got %+v", reloaded.Messages())
	}
}
