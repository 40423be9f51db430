// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package tracer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/clock"
)

// DefaultTimeout applies to traces that specify none, directly or via
// template.
const DefaultTimeout = 30 * time.Second

// DefaultMaxCaptured bounds each trace's capture list.
const DefaultMaxCaptured = 500

// Sentinel errors mapped to wire error codes at the gateway.
var (
	ErrTraceNotFound    = errors.New("trace not found")
	ErrTemplateNotFound = errors.New("template not found")
)

// State is a trace's lifecycle position.
type State string

const (
	// StatePending is a pre-launch trace awaiting its window.
	StatePending State = "pending"

	// StateActive is a trace currently capturing.
	StateActive State = "active"

	// StateExpired is a trace deactivated by its deadline.
	StateExpired State = "expired"

	// StateStopped is a trace deactivated explicitly.
	StateStopped State = "stopped"
)

// CaptureEntry cross-references one captured event to the main buffer.
type CaptureEntry struct {
	// Index is the entry's position in the trace's capture list.
	Index int `json:"index"`

	// EventID is the buffer event ID. The buffer may have evicted the
	// event by the time the entry is read.
	EventID uint64 `json:"event_id"`

	// Timestamp is the captured event's timestamp.
	Timestamp time.Time `json:"timestamp"`
}

// Trace is one capture session. Values returned by Manager methods are
// deep copies; mutating them has no effect on the session.
type Trace struct {
	ID       string  `json:"trace_id"`
	Matcher  Matcher `json:"matcher"`
	Template string  `json:"template,omitempty"`

	// Categories and Types gate capture. Empty means all.
	Categories []eventlog.Category `json:"categories,omitempty"`
	Types      []string            `json:"types,omitempty"`

	State     State     `json:"state"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
	TimeoutAt time.Time `json:"timeout_at"`

	// BoundWindowID is the window a pre-launch trace attached to, 0
	// while pending.
	BoundWindowID int64 `json:"bound_window_id,omitempty"`

	// Captured lists the capture entries in capture order.
	Captured []CaptureEntry `json:"captured"`
}

// StartOptions configures an ad-hoc trace start.
type StartOptions struct {
	Matcher    Matcher
	Categories []eventlog.Category
	Types      []string

	// Timeout of 0 means the manager default.
	Timeout time.Duration
}

// StartOverrides adjusts a template's matcher parameters at start time.
// The matcher kind itself always comes from the template.
type StartOverrides struct {
	WindowID int64
	AppID    string
	Timeout  time.Duration
}

// Manager owns the trace registry. All methods are safe for concurrent
// use: the ingest pipeline calls Offer while RPC handlers start, stop,
// and read traces.
type Manager struct {
	mu          sync.Mutex
	clock       clock.Clock
	logger      *slog.Logger
	timeout     time.Duration
	maxCaptured int

	templates map[string]Template
	traces    map[string]*Trace

	// order preserves trace creation order for deterministic listings
	// and first-capture trace_id stamping.
	order []string

	// focusedWindow tracks the currently focused window for the
	// "focused" matcher, updated from window events as they flow
	// through Offer.
	focusedWindow int64
}

// NewManager creates a manager. timeout <= 0 means DefaultTimeout;
// maxCaptured <= 0 means DefaultMaxCaptured.
func NewManager(clk clock.Clock, logger *slog.Logger, timeout time.Duration, maxCaptured int) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxCaptured <= 0 {
		maxCaptured = DefaultMaxCaptured
	}
	return &Manager{
		clock:       clk,
		logger:      logger,
		timeout:     timeout,
		maxCaptured: maxCaptured,
		templates:   make(map[string]Template),
		traces:      make(map[string]*Trace),
	}
}

// SetTemplates replaces the template catalog. Running traces keep the
// template values they started with.
func (m *Manager) SetTemplates(templates []Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = make(map[string]Template, len(templates))
	for _, template := range templates {
		m.templates[template.Name] = template
	}
}

// Templates lists the catalog sorted by name.
func (m *Manager) Templates() []Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	templates := make([]Template, 0, len(m.templates))
	for _, template := range m.templates {
		templates = append(templates, template)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates
}

// Start registers an ad-hoc trace and returns it immediately — even a
// pre-launch trace with no window attached yet gets its ID here.
func (m *Manager) Start(options StartOptions) (Trace, error) {
	if err := options.Matcher.Validate(); err != nil {
		return Trace{}, err
	}
	return m.register(options, ""), nil
}

// StartFromTemplate registers a trace configured by a named template,
// with optional matcher parameter overrides.
func (m *Manager) StartFromTemplate(name string, overrides StartOverrides) (Trace, error) {
	m.mu.Lock()
	template, ok := m.templates[name]
	m.mu.Unlock()
	if !ok {
		return Trace{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	matcher := template.Matcher
	if overrides.WindowID != 0 {
		matcher.WindowID = overrides.WindowID
	}
	if overrides.AppID != "" {
		matcher.AppID = overrides.AppID
	}
	if err := matcher.Validate(); err != nil {
		return Trace{}, fmt.Errorf("template %q: %w", name, err)
	}

	timeout := template.Timeout.Std()
	if overrides.Timeout > 0 {
		timeout = overrides.Timeout
	}

	return m.register(StartOptions{
		Matcher:    matcher,
		Categories: template.Categories,
		Types:      template.Types,
		Timeout:    timeout,
	}, name), nil
}

// register creates the trace under the lock and returns a copy.
func (m *Manager) register(options StartOptions, templateName string) Trace {
	m.mu.Lock()
	defer m.mu.Unlock()

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = m.timeout
	}

	now := m.clock.Now()
	state := StateActive
	if options.Matcher.Kind == MatchPreLaunch {
		state = StatePending
	}

	trace := &Trace{
		ID:         uuid.NewString(),
		Matcher:    options.Matcher,
		Template:   templateName,
		Categories: options.Categories,
		Types:      options.Types,
		State:      state,
		Active:     true,
		StartedAt:  now,
		TimeoutAt:  now.Add(timeout),
		Captured:   []CaptureEntry{},
	}
	m.traces[trace.ID] = trace
	m.order = append(m.order, trace.ID)

	m.logger.Info("trace started",
		"trace_id", trace.ID,
		"matcher", string(trace.Matcher.Kind),
		"template", templateName,
		"timeout_at", trace.TimeoutAt,
	)
	return trace.clone()
}

// Stop deactivates a trace explicitly. The capture list remains
// readable until the trace is dropped.
func (m *Manager) Stop(traceID string) (Trace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trace, ok := m.traces[traceID]
	if !ok {
		return Trace{}, fmt.Errorf("%w: %q", ErrTraceNotFound, traceID)
	}
	if trace.Active {
		trace.Active = false
		trace.State = StateStopped
		m.logger.Info("trace stopped", "trace_id", traceID, "captured", len(trace.Captured))
	}
	return trace.clone(), nil
}

// Get returns a trace by ID, expiring it first if its deadline passed.
func (m *Manager) Get(traceID string) (Trace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trace, ok := m.traces[traceID]
	if !ok {
		return Trace{}, fmt.Errorf("%w: %q", ErrTraceNotFound, traceID)
	}
	m.expireLocked(m.clock.Now(), trace)
	return trace.clone(), nil
}

// List returns all traces in creation order.
func (m *Manager) List() []Trace {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	traces := make([]Trace, 0, len(m.order))
	for _, id := range m.order {
		trace := m.traces[id]
		m.expireLocked(now, trace)
		traces = append(traces, trace.clone())
	}
	return traces
}

// Offer tests one ingested event against every trace. Called by the
// ingest pipeline after the event ID is assigned and before the event
// reaches the buffer, so the stored record carries its trace ID.
//
// When several traces capture the same event, each records a capture
// entry, and the event's TraceID names the earliest-started one.
func (m *Manager) Offer(event *eventlog.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Window != nil && event.Window.Focused {
		m.focusedWindow = event.Window.WindowID
	}

	now := m.clock.Now()
	for _, id := range m.order {
		trace := m.traces[id]
		m.expireLocked(now, trace)
		if !trace.Active {
			continue
		}

		if trace.State == StatePending {
			if !trace.Matcher.bindsTo(event) {
				continue
			}
			trace.BoundWindowID = event.Window.WindowID
			trace.State = StateActive
			m.logger.Info("pre-launch trace bound",
				"trace_id", trace.ID,
				"window_id", trace.BoundWindowID,
			)
			// The binding event itself is captured below.
		}

		if !trace.Matcher.matches(event, m.focusedWindow, trace.BoundWindowID) {
			continue
		}
		if !trace.enables(event) {
			continue
		}
		if len(trace.Captured) >= m.maxCaptured {
			continue
		}

		trace.Captured = append(trace.Captured, CaptureEntry{
			Index:     len(trace.Captured),
			EventID:   event.ID,
			Timestamp: event.Timestamp,
		})
		if event.TraceID == "" {
			event.TraceID = trace.ID
		}
	}
}

// Prune drops deactivated traces older than age, keeping the registry
// bounded on long-running daemons.
func (m *Manager) Prune(age time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-age)
	var kept []string
	pruned := 0
	for _, id := range m.order {
		trace := m.traces[id]
		if !trace.Active && trace.TimeoutAt.Before(cutoff) {
			delete(m.traces, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return pruned
}

// expireLocked deactivates a trace whose deadline has passed. Must be
// called with m.mu held.
func (m *Manager) expireLocked(now time.Time, trace *Trace) {
	if trace.Active && !now.Before(trace.TimeoutAt) {
		trace.Active = false
		trace.State = StateExpired
		m.logger.Info("trace expired", "trace_id", trace.ID, "captured", len(trace.Captured))
	}
}

// enables reports whether the trace's category/type filters admit the
// event.
func (t *Trace) enables(event *eventlog.Event) bool {
	if len(t.Categories) > 0 {
		found := false
		for _, category := range t.Categories {
			if category == event.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(t.Types) > 0 {
		found := false
		for _, eventType := range t.Types {
			if eventType == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// clone returns a deep copy safe to hand to callers.
func (t *Trace) clone() Trace {
	copied := *t
	copied.Categories = append([]eventlog.Category(nil), t.Categories...)
	copied.Types = append([]string(nil), t.Types...)
	copied.Captured = append([]CaptureEntry(nil), t.Captured...)
	return copied
}
