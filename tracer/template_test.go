// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package tracer

import (
	"os"
	"path/filepath"
	"testing"
)

const templateFixture = `
templates:
  - name: app-debug
    description: Capture all window events for one application.
    matcher:
      kind: app_id
    categories: [window]
  - name: launch-watch
    description: Bind to the next launched window.
    matcher:
      kind: pre_launch
    timeout: 1m
`

func writeTemplates(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()
	path := writeTemplates(t, templateFixture)

	templates, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("loaded %d templates, want 2", len(templates))
	}
	if templates[0].Name != "app-debug" || templates[0].Matcher.Kind != MatchAppID {
		t.Errorf("first template: got %+v", templates[0])
	}
	if got := templates[1].Timeout.Std().Seconds(); got != 60 {
		t.Errorf("launch-watch timeout: got %vs, want 60s", got)
	}
}

func TestLoadTemplatesRejectsDuplicates(t *testing.T) {
	t.Parallel()
	path := writeTemplates(t, `
templates:
  - name: same
    matcher: {kind: focused}
  - name: same
    matcher: {kind: focused}
`)
	if _, err := LoadTemplates(path); err == nil {
		t.Error("duplicate names: want error, got nil")
	}
}

func TestLoadTemplatesRejectsBadMatcher(t *testing.T) {
	t.Parallel()
	path := writeTemplates(t, `
templates:
  - name: broken
    matcher: {kind: sideways}
`)
	if _, err := LoadTemplates(path); err == nil {
		t.Error("unknown matcher kind: want error, got nil")
	}
}
