// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package validate compares the daemon's internal model of window
// manager state against the WM's authoritative answers and reports
// every discrepancy. The comparison is read-only on both sides: the WM
// is ground truth, and a mismatch is reported, never corrected.
package validate

import (
	"sort"
	"sync"

	"github.com/sightline-wm/sightline/eventlog"
)

// Model is the daemon's view of WM state, maintained incrementally
// from the ingested event stream. It is necessarily approximate: it
// starts empty, sees only what the subscription delivers, and drifts
// during subscription gaps. That drift is exactly what the validator
// exists to measure.
//
// The ingest pipeline is the only writer; validator and snapshot reads
// are concurrent.
type Model struct {
	mu sync.RWMutex

	// workspaceOutputs maps workspace name to the output it was last
	// seen assigned to.
	workspaceOutputs map[string]string

	// windowMarks maps window ID to the marks last reported for it.
	windowMarks map[int64][]string

	// outputs is the set of output names the model believes active,
	// inferred from workspace and window event payloads.
	outputs map[string]bool

	focusedWorkspace string
	focusedWindow    int64
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		workspaceOutputs: make(map[string]string),
		windowMarks:      make(map[int64][]string),
		outputs:          make(map[string]bool),
	}
}

// Apply folds one ingested event into the model. Called by the ingest
// pipeline for every normalized event, in arrival order.
func (m *Model) Apply(event *eventlog.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Category {
	case eventlog.CategoryWorkspace:
		m.applyWorkspace(event)
	case eventlog.CategoryWindow:
		m.applyWindow(event)
	}
}

func (m *Model) applyWorkspace(event *eventlog.Event) {
	payload := event.Workspace
	if payload == nil {
		return
	}
	if payload.Output != "" {
		m.workspaceOutputs[payload.Name] = payload.Output
		m.outputs[payload.Output] = true
	}
	switch event.Type {
	case "focus", "init":
		m.focusedWorkspace = payload.Name
	case "empty":
		delete(m.workspaceOutputs, payload.Name)
	case "rename":
		if payload.OldName != "" {
			if output, ok := m.workspaceOutputs[payload.OldName]; ok {
				delete(m.workspaceOutputs, payload.OldName)
				if payload.Output == "" {
					m.workspaceOutputs[payload.Name] = output
				}
			}
			if m.focusedWorkspace == payload.OldName {
				m.focusedWorkspace = payload.Name
			}
		}
	}
}

func (m *Model) applyWindow(event *eventlog.Event) {
	payload := event.Window
	if payload == nil {
		return
	}
	if payload.Output != "" {
		m.outputs[payload.Output] = true
	}
	if payload.Focused {
		m.focusedWindow = payload.WindowID
	}
	switch event.Type {
	case "close":
		delete(m.windowMarks, payload.WindowID)
		if m.focusedWindow == payload.WindowID {
			m.focusedWindow = 0
		}
	case "mark":
		// A mark event carries the window's full current mark set.
		if len(payload.Marks) == 0 {
			delete(m.windowMarks, payload.WindowID)
		} else {
			m.windowMarks[payload.WindowID] = append([]string(nil), payload.Marks...)
		}
	default:
		if len(payload.Marks) > 0 {
			m.windowMarks[payload.WindowID] = append([]string(nil), payload.Marks...)
		}
	}
}

// View is a point-in-time copy of the model, safe to read and
// serialize without further locking.
type View struct {
	// WorkspaceOutputs maps workspace name to assigned output.
	WorkspaceOutputs map[string]string `json:"workspace_outputs"`

	// WindowMarks maps window ID to that window's marks.
	WindowMarks map[int64][]string `json:"window_marks"`

	// ActiveOutputs lists output names believed active, sorted.
	ActiveOutputs []string `json:"active_outputs"`

	FocusedWorkspace string `json:"focused_workspace,omitempty"`
	FocusedWindow    int64  `json:"focused_window,omitempty"`
}

// Snapshot returns a deep copy of the model's current state.
func (m *Model) Snapshot() View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view := View{
		WorkspaceOutputs: make(map[string]string, len(m.workspaceOutputs)),
		WindowMarks:      make(map[int64][]string, len(m.windowMarks)),
		ActiveOutputs:    make([]string, 0, len(m.outputs)),
		FocusedWorkspace: m.focusedWorkspace,
		FocusedWindow:    m.focusedWindow,
	}
	for name, output := range m.workspaceOutputs {
		view.WorkspaceOutputs[name] = output
	}
	for id, marks := range m.windowMarks {
		view.WindowMarks[id] = append([]string(nil), marks...)
	}
	for name := range m.outputs {
		view.ActiveOutputs = append(view.ActiveOutputs, name)
	}
	sort.Strings(view.ActiveOutputs)
	return view
}
