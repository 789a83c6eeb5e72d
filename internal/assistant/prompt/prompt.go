// Package prompt renders the system and status templates used by the
// Agent, embedding the default set and allowing an absolute override
// directory to take precedence when present.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.md
var defaultTemplates embed.FS

// Renderer loads named templates from an embedded default set, or from an
// override directory on disk when OverrideDir is set and the named file
// exists there.
type Renderer struct {
	OverrideDir string
}

// New constructs a Renderer. overrideDir may be empty.
func New(overrideDir string) *Renderer {
	return &Renderer{OverrideDir: overrideDir}
}

// Render executes the named template (e.g. "system.md", "status.md")
// against data. Missing template variables are errors, not silent blanks.
func (r *Renderer) Render(name string, data any) (string, error) {
	tmpl, err := r.load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) load(name string) (*template.Template, error) {
	base := template.New(name).Option("missingkey=error")

	if r.OverrideDir != "" {
		path := filepath.Join(r.OverrideDir, name)
		if data, err := os.ReadFile(path); err == nil {
			return base.Parse(string(data))
		}
	}

	data, err := defaultTemplates.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}
	return base.Parse(string(data))
}

// SystemView is the per-System shape the templates range over.
type SystemView struct {
	Name         string
	Instructions string
	Status       string
}

// StatusJSON renders a System's Status map as compact JSON text for
// SystemView.Status.
func StatusJSON(status map[string]any) string {
	data, err := json.Marshal(status)
	if err != nil {
		return "{}"
	}
	return string(data)
}
