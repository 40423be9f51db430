// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package tracer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/config"
)

// Template is a named, reusable trace configuration. Templates are
// immutable from the trace's point of view: a started trace keeps the
// template values it was created with, even if the catalog is reloaded
// behind it.
type Template struct {
	// Name identifies the template in traces.start_from_template calls.
	Name string `json:"name" yaml:"name"`

	// Description is shown by template listings.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Matcher is the default matcher. Callers may override its
	// parameters (window ID, app ID) at start time but not its kind.
	Matcher Matcher `json:"matcher" yaml:"matcher"`

	// Categories enables event categories. Empty means all.
	Categories []eventlog.Category `json:"categories,omitempty" yaml:"categories,omitempty"`

	// Types enables specific event types within the enabled
	// categories. Empty means all.
	Types []string `json:"types,omitempty" yaml:"types,omitempty"`

	// Timeout is the trace lifetime. 0 means the manager default.
	Timeout config.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate rejects unusable templates.
func (t Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if err := t.Matcher.Validate(); err != nil {
		// A window_id or app_id template cannot always know its
		// parameter ahead of time; the start-time override fills it
		// in, and the matcher is validated again at start.
		if t.Matcher.Kind != MatchWindowID && t.Matcher.Kind != MatchAppID {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
	}
	for _, category := range t.Categories {
		if !knownCategory(category) {
			return fmt.Errorf("template %q: unknown category %q", t.Name, category)
		}
	}
	if t.Timeout < 0 {
		return fmt.Errorf("template %q: negative timeout", t.Name)
	}
	return nil
}

func knownCategory(category eventlog.Category) bool {
	for _, known := range eventlog.Categories() {
		if category == known {
			return true
		}
	}
	return false
}

// templateCatalog is the YAML shape of the template file.
type templateCatalog struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates reads the template catalog from a YAML file.
func LoadTemplates(path string) ([]Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates %s: %w", path, err)
	}

	var catalog templateCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parsing templates %s: %w", path, err)
	}

	seen := make(map[string]bool, len(catalog.Templates))
	for _, template := range catalog.Templates {
		if err := template.Validate(); err != nil {
			return nil, fmt.Errorf("templates %s: %w", path, err)
		}
		if seen[template.Name] {
			return nil, fmt.Errorf("templates %s: duplicate template %q", path, template.Name)
		}
		seen[template.Name] = true
	}
	return catalog.Templates, nil
}
