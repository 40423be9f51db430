// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/wmipc"
)

func rawWindowEvent(t *testing.T, change string, container wmipc.Node) wmipc.RawEvent {
	t.Helper()
	payload, err := json.Marshal(wmipc.WindowEvent{Change: change, Container: &container})
	if err != nil {
		t.Fatalf("marshal window event: %v", err)
	}
	return wmipc.RawEvent{Type: wmipc.EventWindow, Payload: payload}
}

func TestNormalizeWindowEvent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	raw := rawWindowEvent(t, "focus", wmipc.Node{
		ID:      10,
		Name:    "inbox",
		AppID:   "firefox",
		Focused: true,
		Marks:   []string{"mail"},
	})
	event, err := normalize(raw, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Category != eventlog.CategoryWindow || event.Type != "focus" {
		t.Errorf("category/type: got %s/%s", event.Category, event.Type)
	}
	if event.Window.WindowID != 10 || event.Window.AppID != "firefox" || !event.Window.Focused {
		t.Errorf("window payload: got %+v", event.Window)
	}
	if event.Window.Title != "inbox" || len(event.Window.Marks) != 1 {
		t.Errorf("title/marks: got %+v", event.Window)
	}
	if err := event.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNormalizeX11ClassFallback(t *testing.T) {
	t.Parallel()

	raw := rawWindowEvent(t, "new", wmipc.Node{
		ID:               11,
		WindowProperties: &wmipc.WindowProperties{Class: "Gimp"},
	})
	event, err := normalize(raw, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Window.AppID != "Gimp" {
		t.Errorf("AppID fallback: got %q, want %q", event.Window.AppID, "Gimp")
	}
}

func TestNormalizeWorkspaceFocus(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(wmipc.WorkspaceEvent{
		Change:  "focus",
		Current: &wmipc.Node{Name: "3", Num: 3, Output: "DP-1"},
		Old:     &wmipc.Node{Name: "1", Num: 1},
	})
	event, err := normalize(wmipc.RawEvent{Type: wmipc.EventWorkspace, Payload: payload}, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Workspace.Name != "3" || event.Workspace.Number != 3 {
		t.Errorf("workspace: got %+v", event.Workspace)
	}
	if event.Workspace.Output != "DP-1" || event.Workspace.OldName != "1" {
		t.Errorf("output/old: got %+v", event.Workspace)
	}
}

func TestNormalizeNamedWorkspaceNumber(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(wmipc.WorkspaceEvent{
		Change:  "init",
		Current: &wmipc.Node{Name: "mail"},
	})
	event, err := normalize(wmipc.RawEvent{Type: wmipc.EventWorkspace, Payload: payload}, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Workspace.Number != -1 {
		t.Errorf("named workspace number: got %d, want -1", event.Workspace.Number)
	}
}

func TestNormalizeBinding(t *testing.T) {
	t.Parallel()

	var binding wmipc.BindingEvent
	binding.Change = "run"
	binding.Binding.Command = "workspace number 3"
	binding.Binding.Symbol = "3"
	binding.Binding.InputType = "keyboard"
	payload, _ := json.Marshal(binding)

	event, err := normalize(wmipc.RawEvent{Type: wmipc.EventBinding, Payload: payload}, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Category != eventlog.CategoryBinding {
		t.Errorf("category: got %s", event.Category)
	}
	if event.Binding.Command != "workspace number 3" || event.Binding.Symbol != "3" {
		t.Errorf("binding payload: got %+v", event.Binding)
	}
}

func TestNormalizeMode(t *testing.T) {
	t.Parallel()

	payload, _ := json.Marshal(wmipc.ModeEvent{Change: "resize"})
	event, err := normalize(wmipc.RawEvent{Type: wmipc.EventMode, Payload: payload}, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Mode.Name != "resize" {
		t.Errorf("mode: got %+v", event.Mode)
	}
}

func TestNormalizeIgnoresUnknownTypes(t *testing.T) {
	t.Parallel()

	event, err := normalize(wmipc.RawEvent{Type: wmipc.EventTick, Payload: []byte("{}")}, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event != nil {
		t.Errorf("tick event: got %+v, want nil", event)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := normalize(wmipc.RawEvent{Type: wmipc.EventWindow, Payload: []byte("{")}, time.Now()); err == nil {
		t.Error("garbage payload: want error, got nil")
	}
	if _, err := normalize(wmipc.RawEvent{Type: wmipc.EventWindow, Payload: []byte(`{"change":"new"}`)}, time.Now()); err == nil {
		t.Error("window event without container: want error, got nil")
	}
}
