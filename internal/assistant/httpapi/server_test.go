package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/assistant/runtime"
)

type fakeReplyProvider struct{}

func (fakeReplyProvider) Complete(ctx context.Context, systemPrompt string, history []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	return core.AssistantText("hello there", 0), core.Usage{}, nil
}

func (fakeReplyProvider) Name() string { return "fake" }

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.BuildForTest(fakeReplyProvider{})
	if err != nil {
		t.Fatalf("runtime.BuildForTest: %v", err)
	}
	return rt
}

func TestHandleReply_StreamsTextLine(t *testing.T) {
	rt := newTestRuntime(t)
	s := NewServer(rt, t.TempDir(), nil)

	body, _ := json.Marshal(replyRequest{Messages: []wireMessage{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/reply", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleReply(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, `0:"hello there"`) {
		t.Fatalf("expected a 0: text line, got: %q", out)
	}
	if !strings.Contains(out, `d:{"finishReason"`) {
		t.Fatalf("expected a trailing d: finish line, got: %q", out)
	}
}

func TestHandleReply_RejectsNonPost(t *testing.T) {
	rt := newTestRuntime(t)
	s := NewServer(rt, t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodGet, "/reply", nil)
	rec := httptest.NewRecorder()
	s.handleReply(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestSessionPath_RejectsTraversal(t *testing.T) {
	s := &Server{sessionDir: "/tmp/sessions"}
	if _, err := s.sessionPath("../../etc/passwd"); err == nil {
		t.Fatal("expected traversal id to be rejected")
	}
	if _, err := s.sessionPath(""); err == nil {
		t.Fatal("expected empty id to be rejected")
	}
	path, err := s.sessionPath("abc123")
	if err != nil {
		t.Fatalf("unexpected error for valid id: %v", err)
	}
	if path != "/tmp/sessions/abc123.jsonl" {
		t.Fatalf("unexpected path: %q", path)
	}
}

func TestHandleSessionList_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t)
	s := NewServer(rt, dir, nil)

	req := httptest.NewRequest(http.MethodGet, "/session/list", nil)
	rec := httptest.NewRecorder()
	s.handleSessionList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %v", resp.Sessions)
	}
}

func TestHandleSessionSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t)
	s := NewServer(rt, dir, nil)

	saveBody, _ := json.Marshal(map[string]any{
		"id":       "sess-1",
		"messages": []core.Message{core.UserText("hi", 1)},
	})
	saveReq := httptest.NewRequest(http.MethodPost, "/session/save", bytes.NewReader(saveBody))
	saveRec := httptest.NewRecorder()
	s.handleSessionSave(saveRec, saveReq)
	if saveRec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", saveRec.Code, saveRec.Body.String())
	}

	if _, err := os.Stat(dir + "/sess-1.jsonl"); err != nil {
		t.Fatalf("expected journal file to exist: %v", err)
	}

	loadReq := httptest.NewRequest(http.MethodGet, "/session/load?id=sess-1", nil)
	loadRec := httptest.NewRecorder()
	s.handleSessionLoad(loadRec, loadReq)
	if loadRec.Code != http.StatusOK {
		t.Fatalf("load status = %d, body = %s", loadRec.Code, loadRec.Body.String())
	}
	if !strings.Contains(loadRec.Body.String(), "hi") {
		t.Fatalf("expected loaded session to contain saved message, got %s", loadRec.Body.String())
	}
}
