// Package session persists a conversation to a JSONL file and supports
// rewinding it after an interrupted round.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/haasonsaas/pilot/internal/assistant/core"
)

// Session owns the on-disk journal for one conversation.
type Session struct {
	mu       sync.Mutex
	path     string
	messages []core.Message
	logger   *slog.Logger
}

// Load constructs a Session backed by path. If the file exists, each line
// is deserialized into a Message; a deserialization error discards the
// partial read and starts fresh rather than failing construction.
func Load(path string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read session file %s: %w", path, err)
	}

	var messages []core.Message
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg core.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Warn("discarding session file with malformed line, starting fresh",
				slog.String("path", path), slog.Any("error", err))
			return s, nil
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("error scanning session file, starting fresh", slog.String("path", path), slog.Any("error", err))
		return s, nil
	}

	s.messages = messages
	return s, nil
}

// Messages returns a copy of the session's current history.
func (s *Session) Messages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Append adds msg to history and rewrites the journal file in full.
func (s *Session) Append(msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.persistLocked()
}

// AppendAll adds every msg to history and rewrites the journal once.
func (s *Session) AppendAll(msgs ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	return s.persistLocked()
}

// persistLocked truncates and rewrites the journal file from scratch; the
// caller must hold s.mu.
func (s *Session) persistLocked() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create session file %s: %w", s.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, msg := range s.messages {
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode session message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush session file %s: %w", s.path, err)
	}
	return f.Sync()
}

// Rewind pops messages from the tail until the last remaining message is a
// User message containing at least one Text atom, then pops that message
// too. Used to discard an interrupted round's dangling tool requests.
func (s *Session) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.messages) > 0 {
		last := s.messages[len(s.messages)-1]
		s.messages = s.messages[:len(s.messages)-1]
		if last.Role == core.RoleUser && last.HasTextContent() {
			break
		}
	}
	return s.persistLocked()
}

// Path returns the session's backing file path.
func (s *Session) Path() string { return s.path }
