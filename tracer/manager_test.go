// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package tracer

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/clock"
)

func newTestManager() (*Manager, *clock.FakeClock) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(fake, logger, 0, 0), fake
}

func windowEvent(id uint64, windowID int64, appID, eventType string) *eventlog.Event {
	return &eventlog.Event{
		ID:       id,
		Category: eventlog.CategoryWindow,
		Type:     eventType,
		Source:   eventlog.SourceWM,
		Window:   &eventlog.WindowPayload{WindowID: windowID, AppID: appID},
	}
}

func TestAppIDMatcherCapturesOnlyMatchingEvents(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	trace, err := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchAppID, AppID: "firefox"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Five events, two of which carry the traced app ID.
	manager.Offer(windowEvent(1, 10, "firefox", "new"))
	manager.Offer(windowEvent(2, 11, "kitty", "new"))
	manager.Offer(windowEvent(3, 10, "firefox", "focus"))
	manager.Offer(windowEvent(4, 12, "slack", "new"))
	manager.Offer(windowEvent(5, 11, "kitty", "close"))

	got, err := manager.Get(trace.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Captured) != 2 {
		t.Fatalf("captured %d events, want 2", len(got.Captured))
	}
	wantIDs := []uint64{1, 3}
	for i, entry := range got.Captured {
		if entry.EventID != wantIDs[i] {
			t.Errorf("capture %d: event ID %d, want %d", i, entry.EventID, wantIDs[i])
		}
		if entry.Index != i {
			t.Errorf("capture %d: index %d, want %d", i, entry.Index, i)
		}
	}
}

func TestTraceStampsEventTraceID(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	trace, err := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchWindowID, WindowID: 10}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	event := windowEvent(1, 10, "firefox", "focus")
	manager.Offer(event)

	if event.TraceID != trace.ID {
		t.Errorf("event TraceID: got %q, want %q", event.TraceID, trace.ID)
	}
}

func TestTraceExpiresAtDeadline(t *testing.T) {
	t.Parallel()
	manager, fake := newTestManager()

	trace, err := manager.Start(StartOptions{
		Matcher: Matcher{Kind: MatchWindowID, WindowID: 10},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	fake.Advance(5 * time.Second)

	// The deadline is checked on the ingestion tick: an event arriving
	// at expiry must not be captured.
	event := windowEvent(1, 10, "firefox", "focus")
	manager.Offer(event)

	got, err := manager.Get(trace.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateExpired {
		t.Errorf("State: got %q, want %q", got.State, StateExpired)
	}
	if got.Active {
		t.Error("Active: got true, want false")
	}
	if len(got.Captured) != 0 {
		t.Errorf("captured %d events after expiry, want 0", len(got.Captured))
	}
	if event.TraceID != "" {
		t.Errorf("event TraceID after expiry: got %q, want empty", event.TraceID)
	}
}

func TestStopDeactivatesButKeepsCaptures(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	trace, err := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchWindowID, WindowID: 10}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	manager.Offer(windowEvent(1, 10, "firefox", "focus"))

	stopped, err := manager.Stop(trace.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.State != StateStopped {
		t.Errorf("State: got %q, want %q", stopped.State, StateStopped)
	}
	if len(stopped.Captured) != 1 {
		t.Errorf("captured: got %d, want 1 (capture list retained read-only)", len(stopped.Captured))
	}

	manager.Offer(windowEvent(2, 10, "firefox", "title"))
	got, _ := manager.Get(trace.ID)
	if len(got.Captured) != 1 {
		t.Errorf("captured after stop: got %d, want 1", len(got.Captured))
	}
}

func TestPreLaunchBindsToFirstMatchingNewWindow(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	trace, err := manager.Start(StartOptions{
		Matcher: Matcher{Kind: MatchPreLaunch, AppID: "obsidian"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if trace.State != StatePending {
		t.Fatalf("initial State: got %q, want %q", trace.State, StatePending)
	}

	// A non-matching launch does not bind.
	manager.Offer(windowEvent(1, 20, "kitty", "new"))
	got, _ := manager.Get(trace.ID)
	if got.State != StatePending {
		t.Fatalf("State after wrong app: got %q, want pending", got.State)
	}

	// The matching launch binds, and the binding event is captured.
	manager.Offer(windowEvent(2, 30, "obsidian", "new"))
	got, _ = manager.Get(trace.ID)
	if got.State != StateActive {
		t.Fatalf("State after bind: got %q, want active", got.State)
	}
	if got.BoundWindowID != 30 {
		t.Errorf("BoundWindowID: got %d, want 30", got.BoundWindowID)
	}
	if len(got.Captured) != 1 || got.Captured[0].EventID != 2 {
		t.Fatalf("Captured after bind: got %+v, want the binding event", got.Captured)
	}

	// Subsequent events follow the bound window, not the app ID.
	manager.Offer(windowEvent(3, 30, "obsidian", "focus"))
	manager.Offer(windowEvent(4, 31, "obsidian", "new"))
	got, _ = manager.Get(trace.ID)
	if len(got.Captured) != 2 {
		t.Errorf("captured %d events, want 2 (bound window only)", len(got.Captured))
	}
}

func TestFocusedMatcherFollowsFocus(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	// Establish focus before starting the trace.
	focusSetter := windowEvent(1, 10, "firefox", "focus")
	focusSetter.Window.Focused = true
	manager.Offer(focusSetter)

	trace, err := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchFocused}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	manager.Offer(windowEvent(2, 10, "firefox", "title"))

	// Focus moves to window 11; later events for 10 stop matching.
	focusShift := windowEvent(3, 11, "kitty", "focus")
	focusShift.Window.Focused = true
	manager.Offer(focusShift)
	manager.Offer(windowEvent(4, 10, "firefox", "title"))

	got, _ := manager.Get(trace.ID)
	wantIDs := []uint64{2, 3}
	if len(got.Captured) != len(wantIDs) {
		t.Fatalf("captured %d events, want %d", len(got.Captured), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got.Captured[i].EventID != want {
			t.Errorf("capture %d: event ID %d, want %d", i, got.Captured[i].EventID, want)
		}
	}
}

func TestAllScopedMatcherUsesEnrichment(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	trace, err := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchAllScoped}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	scoped := windowEvent(1, 10, "firefox", "focus")
	scoped.Enrichment = &eventlog.Enrichment{WindowID: 10, Scope: eventlog.ScopeScoped, DaemonAvailable: true}
	manager.Offer(scoped)

	global := windowEvent(2, 11, "kitty", "focus")
	global.Enrichment = &eventlog.Enrichment{WindowID: 11, Scope: eventlog.ScopeGlobal, DaemonAvailable: true}
	manager.Offer(global)

	got, _ := manager.Get(trace.ID)
	if len(got.Captured) != 1 || got.Captured[0].EventID != 1 {
		t.Errorf("captured: got %+v, want only the scoped event", got.Captured)
	}
}

func TestTemplateCategoryAndTypeFilters(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	trace, err := manager.Start(StartOptions{
		Matcher:    Matcher{Kind: MatchWindowID, WindowID: 10},
		Categories: []eventlog.Category{eventlog.CategoryWindow},
		Types:      []string{"focus", "close"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	manager.Offer(windowEvent(1, 10, "firefox", "focus"))
	manager.Offer(windowEvent(2, 10, "firefox", "title")) // type disabled
	manager.Offer(windowEvent(3, 10, "firefox", "close"))

	got, _ := manager.Get(trace.ID)
	if len(got.Captured) != 2 {
		t.Fatalf("captured %d events, want 2", len(got.Captured))
	}
}

func TestStartFromTemplate(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()
	manager.SetTemplates([]Template{{
		Name:       "app-debug",
		Matcher:    Matcher{Kind: MatchAppID},
		Categories: []eventlog.Category{eventlog.CategoryWindow},
	}})

	trace, err := manager.StartFromTemplate("app-debug", StartOverrides{AppID: "firefox"})
	if err != nil {
		t.Fatalf("StartFromTemplate: %v", err)
	}
	if trace.Matcher.AppID != "firefox" {
		t.Errorf("Matcher.AppID: got %q, want %q", trace.Matcher.AppID, "firefox")
	}
	if trace.Template != "app-debug" {
		t.Errorf("Template: got %q, want %q", trace.Template, "app-debug")
	}
}

func TestStartFromUnknownTemplate(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	_, err := manager.StartFromTemplate("no-such-template", StartOverrides{})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("error: got %v, want ErrTemplateNotFound", err)
	}
}

func TestStartInvalidMatcher(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	if _, err := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchWindowID}}); err == nil {
		t.Error("Start with zero window ID: want error, got nil")
	}
	if _, err := manager.Start(StartOptions{Matcher: Matcher{Kind: "bogus"}}); err == nil {
		t.Error("Start with unknown kind: want error, got nil")
	}
}

func TestGetUnknownTrace(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	if _, err := manager.Get("no-such-trace"); !errors.Is(err, ErrTraceNotFound) {
		t.Errorf("error: got %v, want ErrTraceNotFound", err)
	}
}

func TestConcurrentTracesCaptureIndependently(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager()

	first, _ := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchWindowID, WindowID: 10}})
	second, _ := manager.Start(StartOptions{Matcher: Matcher{Kind: MatchAppID, AppID: "firefox"}})

	// Matches both traces: each captures it, and the event's TraceID
	// names the earliest-started trace.
	event := windowEvent(1, 10, "firefox", "focus")
	manager.Offer(event)

	gotFirst, _ := manager.Get(first.ID)
	gotSecond, _ := manager.Get(second.ID)
	if len(gotFirst.Captured) != 1 || len(gotSecond.Captured) != 1 {
		t.Fatalf("captures: first %d, second %d, want 1 and 1",
			len(gotFirst.Captured), len(gotSecond.Captured))
	}
	if event.TraceID != first.ID {
		t.Errorf("event TraceID: got %q, want first trace %q", event.TraceID, first.ID)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()
	manager, fake := newTestManager()

	trace, _ := manager.Start(StartOptions{
		Matcher: Matcher{Kind: MatchWindowID, WindowID: 10},
		Timeout: time.Second,
	})
	fake.Advance(2 * time.Second)
	manager.Offer(windowEvent(1, 99, "kitty", "new")) // tick expires the trace

	fake.Advance(10 * time.Minute)
	if pruned := manager.Prune(5 * time.Minute); pruned != 1 {
		t.Errorf("Prune: got %d, want 1", pruned)
	}
	if _, err := manager.Get(trace.ID); !errors.Is(err, ErrTraceNotFound) {
		t.Errorf("Get after prune: got %v, want ErrTraceNotFound", err)
	}
}
