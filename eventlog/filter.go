// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

// Filter narrows a buffer query. Zero-valued fields match everything.
type Filter struct {
	// Categories restricts results to the listed categories.
	Categories []Category `json:"categories,omitempty"`

	// Types restricts results to the listed event types.
	Types []string `json:"types,omitempty"`

	// Source restricts results to one emitter ("wm" or "daemon").
	Source string `json:"source,omitempty"`

	// CorrelationID restricts results to one correlation chain.
	CorrelationID string `json:"correlation_id,omitempty"`

	// WindowID restricts results to window events for one window.
	// Nil matches all events; a non-nil value additionally excludes
	// events with no window payload.
	WindowID *int64 `json:"window_id,omitempty"`

	// TraceID restricts results to events captured by one trace.
	TraceID string `json:"trace_id,omitempty"`
}

// Matches reports whether the event passes every set criterion.
func (f Filter) Matches(event *Event) bool {
	if len(f.Categories) > 0 && !containsCategory(f.Categories, event.Category) {
		return false
	}
	if len(f.Types) > 0 && !containsString(f.Types, event.Type) {
		return false
	}
	if f.Source != "" && event.Source != f.Source {
		return false
	}
	if f.CorrelationID != "" && event.CorrelationID != f.CorrelationID {
		return false
	}
	if f.WindowID != nil {
		if event.Window == nil || event.Window.WindowID != *f.WindowID {
			return false
		}
	}
	if f.TraceID != "" && event.TraceID != f.TraceID {
		return false
	}
	return true
}

func containsCategory(haystack []Category, needle Category) bool {
	for _, c := range haystack {
		if c == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
