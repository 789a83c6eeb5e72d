// Package memory implements the Memory System: tagged text entries kept
// per category, scoped globally or locally, persisted as flat text files.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/haasonsaas/pilot/internal/assistant/core"
)

// entry is one remembered note, optionally tagged.
type entry struct {
	tags []string
	data string
}

// System implements core.System over category.txt files under a global
// and a local memory directory.
type System struct {
	mu          sync.Mutex
	globalDir   string
	localDir    string
}

// New constructs a Memory System. globalDir and localDir are the
// directories backing global ("~/.config/goose/memory") and local
// ("./.goose/memory") scoped entries.
func New(globalDir, localDir string) *System {
	return &System{globalDir: globalDir, localDir: localDir}
}

func (s *System) Name() string        { return "memory" }
func (s *System) Description() string { return "Persistent tagged notes scoped globally or to this project." }
func (s *System) Instructions() string {
	return "Use remember_memory to save notes for later, retrieve_memories to recall them by category."
}

func (s *System) Tools() []core.Tool {
	return []core.Tool{
		{
			Name:        "remember_memory",
			Description: "Save a memory entry under a category, optionally tagged.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"required": ["category", "data"],
				"properties": {
					"category": {"type": "string"},
					"data": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}},
					"is_global": {"type": "boolean"}
				}
			}`),
		},
		{
			Name:        "retrieve_memories",
			Description: "Retrieve all memory entries for a category, grouped by tag set.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"required": ["category"],
				"properties": {
					"category": {"type": "string"},
					"is_global": {"type": "boolean"}
				}
			}`),
		},
		{
			Name:        "remove_memory_category",
			Description: "Delete all memory entries for a category.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"required": ["category"],
				"properties": {
					"category": {"type": "string"},
					"is_global": {"type": "boolean"}
				}
			}`),
		},
		{
			Name:        "remove_specific_memory",
			Description: "Delete one exact memory entry from a category.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"required": ["category", "data"],
				"properties": {
					"category": {"type": "string"},
					"data": {"type": "string"},
					"is_global": {"type": "boolean"}
				}
			}`),
		},
	}
}

func (s *System) Status(ctx context.Context) (core.SystemStatus, error) {
	return core.SystemStatus{"global_dir": s.globalDir, "local_dir": s.localDir}, nil
}

func (s *System) Call(ctx context.Context, toolName string, arguments []byte) ([]core.Content, error) {
	switch toolName {
	case "remember_memory":
		return s.remember(arguments)
	case "retrieve_memories":
		return s.retrieve(arguments)
	case "remove_memory_category":
		return s.removeCategory(arguments)
	case "remove_specific_memory":
		return s.removeSpecific(arguments)
	default:
		return nil, core.ToolNotFound(toolName)
	}
}

type memoryParams struct {
	Category string   `json:"category"`
	Data     string   `json:"data"`
	Tags     []string `json:"tags"`
	IsGlobal bool     `json:"is_global"`
}

func (s *System) categoryPath(category string, isGlobal bool) string {
	dir := s.localDir
	if isGlobal {
		dir = s.globalDir
	}
	return filepath.Join(dir, category+".txt")
}

func (s *System) remember(raw []byte) ([]core.Content, error) {
	var p memoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, core.InvalidParameters("malformed parameters: " + err.Error())
	}
	if p.Category == "" || p.Data == "" {
		return nil, core.InvalidParameters("'category' and 'data' are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.categoryPath(p.Category, p.IsGlobal)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, core.ExecutionError(err.Error())
	}

	var b strings.Builder
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "# %s\n", strings.Join(p.Tags, " "))
	}
	fmt.Fprintf(&b, "%s\n\n", p.Data)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	return []core.Content{core.NewText(fmt.Sprintf("Remembered in %s", p.Category))}, nil
}

func (s *System) retrieve(raw []byte) ([]core.Content, error) {
	var p memoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, core.InvalidParameters("malformed parameters: " + err.Error())
	}
	if p.Category == "" {
		return nil, core.InvalidParameters("'category' is required")
	}

	entries, err := readEntries(s.categoryPath(p.Category, p.IsGlobal))
	if err != nil {
		return nil, core.ExecutionError(err.Error())
	}

	grouped := map[string][]string{}
	for _, e := range entries {
		key := "untagged"
		if len(e.tags) > 0 {
			key = strings.Join(e.tags, " ")
		}
		grouped[key] = append(grouped[key], e.data)
	}

	body, _ := json.MarshalIndent(grouped, "", "  ")
	return []core.Content{core.NewText(string(body))}, nil
}

func (s *System) removeCategory(raw []byte) ([]core.Content, error) {
	var p memoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, core.InvalidParameters("malformed parameters: " + err.Error())
	}
	if p.Category == "" {
		return nil, core.InvalidParameters("'category' is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.categoryPath(p.Category, p.IsGlobal)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, core.ExecutionError(err.Error())
	}
	return []core.Content{core.NewText(fmt.Sprintf("Removed category %s", p.Category))}, nil
}

func (s *System) removeSpecific(raw []byte) ([]core.Content, error) {
	var p memoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, core.InvalidParameters("malformed parameters: " + err.Error())
	}
	if p.Category == "" || p.Data == "" {
		return nil, core.InvalidParameters("'category' and 'data' are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.categoryPath(p.Category, p.IsGlobal)
	entries, err := readEntries(path)
	if err != nil {
		return nil, core.ExecutionError(err.Error())
	}

	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if !removed && e.data == p.Data {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil, core.InvalidParameters("no matching memory entry found")
	}

	if err := writeEntries(path, kept); err != nil {
		return nil, core.ExecutionError(err.Error())
	}
	return []core.Content{core.NewText("Removed memory entry")}, nil
}

func readEntries(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []entry
	blocks := strings.Split(string(data), "\n\n")
	for _, block := range blocks {
		block = strings.TrimRight(block, "\n")
		if block == "" {
			continue
		}
		lines := strings.SplitN(block, "\n", 2)
		var tags []string
		body := block
		if strings.HasPrefix(lines[0], "# ") {
			tags = strings.Fields(strings.TrimPrefix(lines[0], "# "))
			if len(lines) > 1 {
				body = lines[1]
			} else {
				body = ""
			}
		}
		entries = append(entries, entry{tags: tags, data: body})
	}
	return entries, nil
}

func writeEntries(path string, entries []entry) error {
	var b strings.Builder
	for _, e := range entries {
		if len(e.tags) > 0 {
			fmt.Fprintf(&b, "# %s\n", strings.Join(e.tags, " "))
		}
		fmt.Fprintf(&b, "%s\n\n", e.data)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
