// Package httpapi exposes an optional HTTP boundary over a Runtime: a
// streaming "/reply" endpoint using a Vercel-AI-style line protocol, and a
// "/session/{load,save,list}" trio for journal file management, guarded
// against directory traversal.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/pilot/internal/assistant/core"
	"github.com/haasonsaas/pilot/internal/assistant/runtime"
	"github.com/haasonsaas/pilot/internal/assistant/session"
)

// Server serves the SSE-shaped reply boundary and session file management
// endpoints over a Runtime.
type Server struct {
	rt         *runtime.Runtime
	sessionDir string
	logger     *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer constructs a Server. sessionDir is the root directory session
// ids are resolved under; logger defaults to slog.Default() when nil.
func NewServer(rt *runtime.Runtime, sessionDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{rt: rt, sessionDir: sessionDir, logger: logger.With("component", "httpapi")}
}

// Mux builds the http.Handler exposing every route this package defines.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/reply", s.handleReply)
	mux.HandleFunc("/session/load", s.handleSessionLoad)
	mux.HandleFunc("/session/save", s.handleSessionSave)
	mux.HandleFunc("/session/list", s.handleSessionList)
	return mux
}

// Start binds addr and serves until the returned error (from Serve)
// or ctx cancellation, mirroring the teacher's listen-then-serve-in-goroutine
// shape but blocking the caller so callers can select on it directly.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	s.logger.Info("http server listening", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// wireMessage is the inbound JSON shape for one message on POST /reply:
// {role, content, toolInvocations?}. Only plain text content is accepted
// from the wire; tool-call state is reconstructed by the Agent itself.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type replyRequest struct {
	Messages []wireMessage `json:"messages"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	history := make([]core.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := core.RoleUser
		if m.Role == string(core.RoleAssistant) {
			role = core.RoleAssistant
		}
		history = append(history, core.Message{
			Role:    role,
			Created: time.Now().Unix(),
			Content: []core.MessageContent{{Content: core.NewText(m.Content)}},
		})
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	events := s.rt.Agent.Reply(r.Context(), history)
	var usage core.Usage
	finishReason := "stop"
	for ev := range events {
		if ev.Err != nil {
			s.logger.Error("reply stream failed", slog.Any("error", ev.Err))
			finishReason = "error"
			writeLine(w, "3", ev.Err.Error())
			flusher.Flush()
			break
		}
		if ev.Message == nil {
			continue
		}
		s.streamMessage(w, flusher, *ev.Message)
	}

	writeLine(w, "d", map[string]any{"finishReason": finishReason, "usage": usage})
	flusher.Flush()
}

// streamMessage emits one Message as 0:/9:/a: wire lines: text atoms as
// "0:", tool requests as "9:", tool responses as "a:".
func (s *Server) streamMessage(w http.ResponseWriter, flusher http.Flusher, msg core.Message) {
	for _, c := range msg.Content {
		switch c.Type {
		case core.ContentText:
			if c.Text != "" {
				writeLine(w, "0", c.Text)
			}
		case core.ContentToolRequest:
			if c.ToolCall != nil && c.ToolCall.Call != nil {
				writeLine(w, "9", map[string]any{
					"toolCallId": c.ToolRequestID,
					"toolName":   c.ToolCall.Call.Name,
					"args":       json.RawMessage(c.ToolCall.Call.Arguments),
				})
			}
		case core.ContentToolResponse:
			if c.ToolResult != nil {
				writeLine(w, "a", map[string]any{
					"toolCallId": c.ToolResponseID,
					"result":     c.ToolResult,
				})
			}
		}
	}
	flusher.Flush()
}

func writeLine(w http.ResponseWriter, prefix string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s:%s\n", prefix, data)
}

// sessionPath resolves id to a path under s.sessionDir, rejecting any id
// containing ".." to prevent escaping the session directory.
func (s *Server) sessionPath(id string) (string, error) {
	if strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("session id is required")
	}
	return s.sessionDir + "/" + id + ".jsonl", nil
}

func (s *Server) handleSessionLoad(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	path, err := s.sessionPath(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := session.Load(path, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"id": id, "messages": sess.Messages()})
}

func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID       string         `json:"id"`
		Messages []core.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	path, err := s.sessionPath(req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := session.Load(path, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := sess.AppendAll(req.Messages...); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"id": req.ID, "saved": len(req.Messages)})
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	entries, err := listSessionFiles(s.sessionDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"sessions": entries})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
