// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"fmt"
	"time"
)

// Category classifies an event by the window manager subsystem it
// describes. The category determines which payload variant is set on
// the Event.
type Category string

const (
	// CategoryWindow covers window lifecycle: new, close, focus, title,
	// move, floating, fullscreen, mark, urgent.
	CategoryWindow Category = "window"

	// CategoryWorkspace covers workspace lifecycle: init, empty, focus,
	// move, rename, urgent, reload.
	CategoryWorkspace Category = "workspace"

	// CategoryOutput covers output (monitor) changes.
	CategoryOutput Category = "output"

	// CategoryBinding covers user-triggered key/mouse bindings. Binding
	// events are the primary correlation seeds: a binding is direct
	// evidence of a user action, and the window/workspace events that
	// follow within the join window are its likely consequences.
	CategoryBinding Category = "binding"

	// CategoryMode covers binding mode changes (e.g. entering "resize").
	CategoryMode Category = "mode"

	// CategorySystem covers events the daemon synthesizes about its own
	// operation: subscription gaps after a reconnect, collapsed event
	// bursts, startup and shutdown markers.
	CategorySystem Category = "system"
)

// Categories lists all event categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryWindow, CategoryWorkspace, CategoryOutput,
		CategoryBinding, CategoryMode, CategorySystem,
	}
}

// Source identifies which subsystem emitted an event.
const (
	// SourceWM marks events received from the window manager's IPC
	// event subscription.
	SourceWM = "wm"

	// SourceDaemon marks events the daemon synthesized itself
	// (subscription gaps, collapsed bursts, lifecycle markers).
	SourceDaemon = "daemon"
)

// Event is the canonical record for one window manager occurrence. All
// raw IPC event shapes are normalized into this form at ingestion time.
//
// Exactly one payload field (Window, Workspace, Output, Binding, Mode,
// System) is non-nil, matching Category.
//
// CorrelationID and CausalityDepth are a heuristic grouping for human
// debugging, not a provable causal ordering: the window manager
// propagates no causal token, so chain membership is inferred from
// arrival time and affected-window overlap. Do not build stronger
// guarantees on top of them.
type Event struct {
	// ID is assigned by the ingest sequencer before the event enters
	// the pipeline and is strictly increasing for the daemon's
	// lifetime. Zero means "not yet sequenced".
	ID uint64 `json:"event_id"`

	// Category is the event's subsystem classification.
	Category Category `json:"category"`

	// Type is the change kind within the category, e.g. "new", "focus",
	// "move" for windows, or "gap", "collapsed" for system events.
	Type string `json:"event_type"`

	// Timestamp is the wall-clock time the daemon observed the event,
	// microsecond precision.
	Timestamp time.Time `json:"timestamp"`

	// Source is SourceWM or SourceDaemon.
	Source string `json:"source"`

	// CorrelationID groups this event with others believed to stem from
	// one triggering action. Empty when the event joined no chain.
	CorrelationID string `json:"correlation_id,omitempty"`

	// CausalityDepth is 0 for a chain root and parent+1 for events that
	// joined an existing chain. Meaningless when CorrelationID is empty.
	CausalityDepth uint32 `json:"causality_depth"`

	// TraceID is set only when an active trace captured this event.
	TraceID string `json:"trace_id,omitempty"`

	Window    *WindowPayload    `json:"window,omitempty"`
	Workspace *WorkspacePayload `json:"workspace,omitempty"`
	Output    *OutputPayload    `json:"output,omitempty"`
	Binding   *BindingPayload   `json:"binding,omitempty"`
	Mode      *ModePayload      `json:"mode,omitempty"`
	System    *SystemPayload    `json:"system,omitempty"`

	// Enrichment carries registry metadata resolved at ingestion time
	// for window-category events. Never recomputed for a stored event —
	// it reflects state at occurrence time.
	Enrichment *Enrichment `json:"enrichment,omitempty"`
}

// WindowID returns the window a window-category event describes, or 0.
func (e *Event) WindowID() int64 {
	if e.Window != nil {
		return e.Window.WindowID
	}
	return 0
}

// Validate checks that exactly one payload variant is set and that it
// matches Category.
func (e *Event) Validate() error {
	var set int
	var match bool
	for _, pair := range []struct {
		category Category
		present  bool
	}{
		{CategoryWindow, e.Window != nil},
		{CategoryWorkspace, e.Workspace != nil},
		{CategoryOutput, e.Output != nil},
		{CategoryBinding, e.Binding != nil},
		{CategoryMode, e.Mode != nil},
		{CategorySystem, e.System != nil},
	} {
		if pair.present {
			set++
			if pair.category == e.Category {
				match = true
			}
		}
	}
	if set != 1 {
		return fmt.Errorf("event %d: %d payload variants set, want exactly 1", e.ID, set)
	}
	if !match {
		return fmt.Errorf("event %d: payload does not match category %q", e.ID, e.Category)
	}
	return nil
}

// WindowPayload describes a window-category event.
type WindowPayload struct {
	// WindowID is the WM's container ID for the window.
	WindowID int64 `json:"window_id"`

	// AppID is the Wayland app_id (or X11 class) of the window.
	AppID string `json:"app_id,omitempty"`

	// Title is the window title at the time of the event.
	Title string `json:"title,omitempty"`

	// Workspace is the workspace the window was on, when known.
	Workspace string `json:"workspace,omitempty"`

	// Output is the output the window was on, when known.
	Output string `json:"output,omitempty"`

	// Marks are the WM marks on the window at the time of the event.
	Marks []string `json:"marks,omitempty"`

	// Focused reports whether the window had focus after the change.
	Focused bool `json:"focused,omitempty"`

	// Urgent reports the window's urgency hint after the change.
	Urgent bool `json:"urgent,omitempty"`
}

// WorkspacePayload describes a workspace-category event.
type WorkspacePayload struct {
	// Name is the workspace name after the change.
	Name string `json:"name"`

	// Number is the workspace number, or -1 for named workspaces.
	Number int `json:"number"`

	// Output is the output the workspace is assigned to, when known.
	Output string `json:"output,omitempty"`

	// OldName is the previous name for rename events, and the
	// previously focused workspace for focus events.
	OldName string `json:"old_name,omitempty"`
}

// OutputPayload describes an output-category event. The WM reports
// output events without detail ("unspecified" change), so the payload
// carries only what the event itself says; authoritative output state
// comes from a direct query.
type OutputPayload struct {
	// Change is the WM's change string, usually "unspecified".
	Change string `json:"change,omitempty"`
}

// BindingPayload describes a user-triggered binding event.
type BindingPayload struct {
	// Command is the WM command the binding ran.
	Command string `json:"command"`

	// Symbol is the key symbol that triggered the binding.
	Symbol string `json:"symbol,omitempty"`

	// InputType is "keyboard" or "mouse".
	InputType string `json:"input_type,omitempty"`

	// EventStateMask lists the active modifiers.
	EventStateMask []string `json:"event_state_mask,omitempty"`
}

// ModePayload describes a binding mode change.
type ModePayload struct {
	// Name is the mode entered, e.g. "default" or "resize".
	Name string `json:"name"`

	// PangoMarkup reports whether the mode name contains pango markup.
	PangoMarkup bool `json:"pango_markup,omitempty"`
}

// SystemPayload describes an event the daemon synthesized about its own
// operation.
type SystemPayload struct {
	// Message is a human-readable description.
	Message string `json:"message"`

	// GapDuration is the length of a subscription outage, set on "gap"
	// events emitted after a reconnect.
	GapDuration time.Duration `json:"gap_duration,omitempty"`

	// DroppedCount is the number of events a slow push subscriber's
	// feed overflowed past, set on "dropped" stream markers. Such
	// markers are synthesized per subscriber and never stored.
	DroppedCount uint64 `json:"dropped_count,omitempty"`

	// CollapsedCount is the number of raw events a "collapsed" event
	// stands in for, set when a burst exceeded the processing rate.
	CollapsedCount int `json:"collapsed_count,omitempty"`
}

// Scope values for enrichment metadata.
const (
	// ScopeScoped marks windows belonging to a registry project.
	ScopeScoped = "scoped"

	// ScopeGlobal marks windows outside any project.
	ScopeGlobal = "global"
)

// Enrichment is registry metadata merged into a window event at
// ingestion time.
//
// When DaemonAvailable is false the registry lookup timed out or the
// registry was unreachable; the remaining fields are best-effort or
// absent, and the event was stored anyway.
type Enrichment struct {
	WindowID int64  `json:"window_id"`
	PID      int    `json:"pid,omitempty"`
	AppName  string `json:"app_name,omitempty"`
	IconPath string `json:"icon_path,omitempty"`

	// ProjectName is the registry project the window belongs to.
	ProjectName string `json:"project_name,omitempty"`

	// Scope is ScopeScoped or ScopeGlobal.
	Scope string `json:"scope,omitempty"`

	// Workspace and Output record where the window was at enrichment
	// time.
	Workspace string `json:"workspace,omitempty"`
	Output    string `json:"output,omitempty"`

	// IsPWA reports whether the registry identified the window as a
	// progressive web app.
	IsPWA bool `json:"is_pwa,omitempty"`

	// DaemonAvailable is false when the registry could not be reached
	// within the enrichment budget.
	DaemonAvailable bool `json:"daemon_available"`

	// LatencyMS is how long the registry lookup took.
	LatencyMS int64 `json:"enrichment_latency_ms"`
}
