// Package prompts holds the model prompt templates. The wording is configuration:
// defaults are embedded and any template can be replaced from a YAML file.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template names.
const (
	Planner        = "planner"
	WriterLinkedIn = "writer_linkedin"
	WriterX        = "writer_x"
	Quality        = "quality"
	Scene          = "scene"
	SceneFallback  = "scene_fallback"
	TextAllowed    = "text_rule_allowed"
	TextForbidden  = "text_rule_forbidden"
	LogoReference  = "logo_reference"
	ClassifyPost   = "classify_post"
	ClassifyBatch  = "classify_batch"
	Recommend      = "recommend_strategy"
)

// Regenerate returns the template name for a draft regeneration action.
func Regenerate(action string) string { return "regenerate_" + action }

// Style returns the template name holding the layout instructions of an image style.
func Style(style string) string { return "style_" + style }

// Vars are the string values substituted into a template. Missing keys render empty.
type Vars map[string]string

// Set is a parsed, immutable collection of templates.
type Set struct {
	templates map[string]*template.Template
}

// Default parses the embedded templates.
func Default() (*Set, error) {
	return parse(defaultTemplates, nil)
}

// Load parses the embedded templates and overlays the ones defined in path.
// An empty path returns the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt overrides: %w", err)
	}
	return parse(defaultTemplates, data)
}

func parse(base, override []byte) (*Set, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(base, &raw); err != nil {
		return nil, fmt.Errorf("decode default prompts: %w", err)
	}
	if len(override) > 0 {
		extra := map[string]string{}
		if err := yaml.Unmarshal(override, &extra); err != nil {
			return nil, fmt.Errorf("decode prompt overrides: %w", err)
		}
		for k, v := range extra {
			raw[k] = v
		}
	}

	s := &Set{templates: make(map[string]*template.Template, len(raw))}
	for name, body := range raw {
		t, err := template.New(name).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		s.templates[name] = t
	}
	return s, nil
}

// Has reports whether a template exists.
func (s *Set) Has(name string) bool {
	_, ok := s.templates[name]
	return ok
}

// Names lists the template names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template with vars.
func (s *Set) Render(name string, vars Vars) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	if vars == nil {
		vars = Vars{}
	}
	var b strings.Builder
	if err := t.Execute(&b, map[string]string(vars)); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return b.String(), nil
}

// RenderOrEmpty is Render that returns "" when the template is missing or fails.
func (s *Set) RenderOrEmpty(name string, vars Vars) string {
	out, err := s.Render(name, vars)
	if err != nil {
		return ""
	}
	return out
}
