// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package tracer

import (
	"fmt"

	"github.com/sightline-wm/sightline/eventlog"
)

// MatcherKind selects the trace matching strategy.
type MatcherKind string

const (
	// MatchWindowID captures events for one window, by container ID.
	MatchWindowID MatcherKind = "window_id"

	// MatchFocused captures events for whichever window holds focus,
	// following focus as it moves.
	MatchFocused MatcherKind = "focused"

	// MatchAppID captures events for every window with a given app ID.
	MatchAppID MatcherKind = "app_id"

	// MatchAllScoped captures events for windows the registry resolved
	// to a project (enrichment scope "scoped").
	MatchAllScoped MatcherKind = "all_scoped"

	// MatchPreLaunch is a placeholder for a window that does not exist
	// yet: the trace starts pending and binds to the first new window
	// (optionally restricted by AppID), then follows that window.
	MatchPreLaunch MatcherKind = "pre_launch"
)

// Matcher selects which events a trace captures. The fields used
// depend on Kind.
type Matcher struct {
	Kind MatcherKind `json:"kind" yaml:"kind"`

	// WindowID is required for MatchWindowID.
	WindowID int64 `json:"window_id,omitempty" yaml:"window_id,omitempty"`

	// AppID is required for MatchAppID and optionally restricts
	// MatchPreLaunch binding.
	AppID string `json:"app_id,omitempty" yaml:"app_id,omitempty"`
}

// Validate rejects matchers that can never match.
func (m Matcher) Validate() error {
	switch m.Kind {
	case MatchWindowID:
		if m.WindowID == 0 {
			return fmt.Errorf("window_id matcher requires a window ID")
		}
	case MatchAppID:
		if m.AppID == "" {
			return fmt.Errorf("app_id matcher requires an app ID")
		}
	case MatchFocused, MatchAllScoped, MatchPreLaunch:
	case "":
		return fmt.Errorf("matcher kind is required")
	default:
		return fmt.Errorf("unknown matcher kind %q", m.Kind)
	}
	return nil
}

// matches reports whether the event satisfies the matcher.
// focusedWindow is the manager's current focus, boundWindow the
// pre-launch binding (0 when unbound).
func (m Matcher) matches(event *eventlog.Event, focusedWindow, boundWindow int64) bool {
	switch m.Kind {
	case MatchWindowID:
		return event.WindowID() == m.WindowID
	case MatchFocused:
		return event.Window != nil && focusedWindow != 0 && event.Window.WindowID == focusedWindow
	case MatchAppID:
		return event.Window != nil && event.Window.AppID == m.AppID
	case MatchAllScoped:
		return event.Enrichment != nil && event.Enrichment.Scope == eventlog.ScopeScoped
	case MatchPreLaunch:
		return boundWindow != 0 && event.WindowID() == boundWindow
	}
	return false
}

// bindsTo reports whether a pre-launch matcher should bind to this
// event's window: the first window "new" event, optionally restricted
// by app ID.
func (m Matcher) bindsTo(event *eventlog.Event) bool {
	if m.Kind != MatchPreLaunch || event.Window == nil || event.Type != "new" {
		return false
	}
	return m.AppID == "" || event.Window.AppID == m.AppID
}
