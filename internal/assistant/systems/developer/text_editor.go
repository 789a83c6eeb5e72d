package developer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/pilot/internal/assistant/core"
)

const maxViewBytes = 2 * 1024 * 1024

type textEditorParams struct {
	Command    string `json:"command"`
	Path       string `json:"path"`
	ViewRange  []int  `json:"view_range,omitempty"`
	FileText   string `json:"file_text,omitempty"`
	OldStr     string `json:"old_str,omitempty"`
	NewStr     string `json:"new_str,omitempty"`
	InsertLine *int   `json:"insert_line,omitempty"`
}

func (s *System) textEditor(ctx context.Context, raw []byte) ([]core.Content, error) {
	var p textEditorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, core.InvalidParameters("malformed text_editor parameters: " + err.Error())
	}
	if p.Path == "" {
		return nil, core.InvalidParameters("'path' is required")
	}

	s.mu.Lock()
	path := s.resolvePath(true, p.Path)
	s.mu.Unlock()

	switch p.Command {
	case "view":
		return s.viewFile(path, p.ViewRange)
	case "create":
		return s.createFile(path, p.FileText)
	case "str_replace":
		return s.strReplace(path, p.OldStr, p.NewStr)
	case "insert":
		return s.insertAt(path, p.InsertLine, p.NewStr)
	case "undo_edit":
		return s.undoEdit(path)
	default:
		return nil, core.InvalidParameters(fmt.Sprintf("unknown text_editor command: %q", p.Command))
	}
}

func (s *System) markActive(path string) {
	s.mu.Lock()
	s.activeFiles[path] = struct{}{}
	s.mu.Unlock()
}

func (s *System) requireActive(path string) error {
	s.mu.Lock()
	_, ok := s.activeFiles[path]
	s.mu.Unlock()
	if !ok {
		return core.InvalidParameters(fmt.Sprintf("you must view %q before editing it", path))
	}
	return nil
}

func (s *System) pushHistory(path, previous string) {
	s.mu.Lock()
	s.fileHistory[path] = append(s.fileHistory[path], previous)
	s.mu.Unlock()
}

func (s *System) viewFile(path string, viewRange []int) ([]core.Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, core.InvalidParameters(fmt.Sprintf("the path %q does not exist", path))
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, core.ExecutionError(err.Error())
		}
		var names []string
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			names = append(names, e.Name())
		}
		s.markActive(path)
		return []core.Content{core.NewText(strings.Join(names, "\n"))}, nil
	}

	if info.Size() > maxViewBytes {
		return nil, core.InvalidParameters(fmt.Sprintf("file %q is too large to view (%d bytes)", path, info.Size()))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	lines := strings.Split(string(data), "\n")

	start, end := 1, len(lines)
	if len(viewRange) == 2 {
		start, end = viewRange[0], viewRange[1]
		if end == -1 {
			end = len(lines)
		}
		if start < 1 || start > len(lines) || end < start || end > len(lines) {
			return nil, core.InvalidParameters(fmt.Sprintf("invalid view_range %v for a file with %d lines", viewRange, len(lines)))
		}
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	s.markActive(path)
	return []core.Content{core.NewText(b.String())}, nil
}

func (s *System) createFile(path, text string) ([]core.Content, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		s.mu.Lock()
		_, active := s.activeFiles[path]
		s.mu.Unlock()
		if !active {
			return nil, core.InvalidParameters(fmt.Sprintf("%q exists but not active; view first", path))
		}
		existing, readErr := os.ReadFile(path)
		if readErr == nil {
			s.pushHistory(path, string(existing))
		}
	} else {
		s.pushHistory(path, "")
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	s.markActive(path)
	return []core.Content{core.NewText(fmt.Sprintf("Created file %s", path))}, nil
}

func (s *System) strReplace(path, oldStr, newStr string) ([]core.Content, error) {
	if err := s.requireActive(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.InvalidParameters(fmt.Sprintf("the file %q does not exist", path))
	}
	content := string(data)

	count := strings.Count(content, oldStr)
	if count == 0 {
		return nil, core.InvalidParameters("old_str was not found in the file")
	}
	if count > 1 {
		return nil, core.InvalidParameters(fmt.Sprintf("old_str appears %d times in the file; it must be unique", count))
	}

	s.pushHistory(path, content)
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	return []core.Content{core.NewText(fmt.Sprintf("Replaced text in %s", path))}, nil
}

func (s *System) insertAt(path string, insertLine *int, newStr string) ([]core.Content, error) {
	if insertLine == nil {
		return nil, core.InvalidParameters("'insert_line' is required")
	}
	if err := s.requireActive(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.InvalidParameters(fmt.Sprintf("the file %q does not exist", path))
	}
	content := string(data)
	lines := strings.Split(content, "\n")

	line := *insertLine
	if line < 0 || line > len(lines) {
		return nil, core.InvalidParameters(fmt.Sprintf("invalid insert_line %d for a file with %d lines", line, len(lines)))
	}

	s.pushHistory(path, content)
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:line]...)
	out = append(out, newStr)
	out = append(out, lines[line:]...)
	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	return []core.Content{core.NewText(fmt.Sprintf("Inserted text into %s at line %d", path, line))}, nil
}

func (s *System) undoEdit(path string) ([]core.Content, error) {
	s.mu.Lock()
	history := s.fileHistory[path]
	if len(history) == 0 {
		s.mu.Unlock()
		return nil, core.InvalidParameters("No memory available to undo")
	}
	previous := history[len(history)-1]
	s.fileHistory[path] = history[:len(history)-1]
	s.mu.Unlock()

	if err := os.WriteFile(path, []byte(previous), 0o644); err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	return []core.Content{core.NewText(fmt.Sprintf("Reverted last edit to %s", path))}, nil
}
