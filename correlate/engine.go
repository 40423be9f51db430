// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package correlate groups temporally related events into causality
// chains. A user-initiated action (binding, mode change) seeds a chain;
// events that follow within the join window and touch an overlapping
// window or workspace set join it at increasing causality depth.
//
// This is a heuristic, not true causal ordering: the window manager
// propagates no causal token, so chain membership is inferred from
// arrival time and affected-set overlap. Two unrelated actions landing
// inside one join window can share a chain, and a slow consequence can
// fall outside it. Treat correlation IDs as a debugging aid, never as
// a guarantee.
package correlate

import (
	"time"

	"github.com/google/uuid"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/clock"
)

// Default tuning. Both values are empirically tuned, not derived:
// a project switch fans out 5-10 events inside ~200ms, while distinct
// user actions are rarely closer than half a second. Override via
// Config when the deployment's event bursts look different.
const (
	// DefaultJoinWindow is how long after a chain's last event a new
	// event may still join it.
	DefaultJoinWindow = 300 * time.Millisecond

	// DefaultCloseTimeout is the inactivity period after which a chain
	// closes and stops accepting members.
	DefaultCloseTimeout = 2 * time.Second
)

// Config tunes the correlation heuristics.
type Config struct {
	// JoinWindow is the maximum gap between a chain's last event and a
	// joining event. Zero means DefaultJoinWindow.
	JoinWindow time.Duration

	// CloseTimeout is the inactivity period after which a chain closes.
	// Zero means DefaultCloseTimeout.
	CloseTimeout time.Duration
}

// Engine assigns correlation IDs and causality depths to events as they
// flow through the ingest pipeline.
//
// The engine is not safe for concurrent use: the single-producer ingest
// pipeline is its only caller, which is what keeps per-event cost at a
// handful of map operations with no locking.
type Engine struct {
	clock  clock.Clock
	config Config

	// open is the working set of chains still accepting members, in
	// creation order. The set stays small (a handful of entries) because
	// chains close after CloseTimeout.
	open []*openChain
}

// openChain tracks one chain still accepting members.
type openChain struct {
	id          string
	lastTouched time.Time
	lastDepth   uint32

	// windows and workspaces are the chain's affected set, grown by
	// every member event.
	windows    map[int64]struct{}
	workspaces map[string]struct{}

	// seeded is true for chains rooted by a user action (binding or
	// mode). A seeded chain with an empty affected set adopts the first
	// follower regardless of overlap, since the action's consequences
	// are not yet known.
	seeded bool
}

// NewEngine creates an engine using the given clock and tuning.
func NewEngine(clk clock.Clock, config Config) *Engine {
	if config.JoinWindow <= 0 {
		config.JoinWindow = DefaultJoinWindow
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	return &Engine{clock: clk, config: config}
}

// Assign stamps the event with a correlation ID and causality depth.
// The event either joins the most recently touched open chain whose
// affected set overlaps its own (depth = parent depth + 1), or roots a
// new chain at depth 0. System events are never correlated.
func (e *Engine) Assign(event *eventlog.Event) {
	if event.Category == eventlog.CategorySystem {
		return
	}

	now := e.clock.Now()
	e.expire(now)

	windows, workspaces := affectedSet(event)

	if chain := e.joinable(now, event, windows, workspaces); chain != nil {
		chain.lastDepth++
		chain.lastTouched = now
		chain.absorb(windows, workspaces)

		event.CorrelationID = chain.id
		event.CausalityDepth = chain.lastDepth
		return
	}

	chain := &openChain{
		id:          uuid.NewString(),
		lastTouched: now,
		windows:     windows,
		workspaces:  workspaces,
		seeded:      event.Category == eventlog.CategoryBinding || event.Category == eventlog.CategoryMode,
	}
	e.open = append(e.open, chain)

	event.CorrelationID = chain.id
	event.CausalityDepth = 0
}

// OpenChains returns the number of chains currently accepting members.
func (e *Engine) OpenChains() int {
	e.expire(e.clock.Now())
	return len(e.open)
}

// joinable returns the most recently touched open chain the event may
// join, or nil. Bindings and mode changes never join: each is direct
// evidence of a fresh user action, so it always roots.
func (e *Engine) joinable(now time.Time, event *eventlog.Event, windows map[int64]struct{}, workspaces map[string]struct{}) *openChain {
	if event.Category == eventlog.CategoryBinding || event.Category == eventlog.CategoryMode {
		return nil
	}

	var best *openChain
	for _, chain := range e.open {
		if now.Sub(chain.lastTouched) > e.config.JoinWindow {
			continue
		}
		if !chain.matches(windows, workspaces) {
			continue
		}
		if best == nil || chain.lastTouched.After(best.lastTouched) {
			best = chain
		}
	}
	return best
}

// expire drops chains idle past the close timeout. Closed chains remain
// reconstructable from the buffer; they just accept no new members.
func (e *Engine) expire(now time.Time) {
	kept := e.open[:0]
	for _, chain := range e.open {
		if now.Sub(chain.lastTouched) <= e.config.CloseTimeout {
			kept = append(kept, chain)
		}
	}
	e.open = kept
}

// matches reports whether the event's affected set overlaps the
// chain's, or the chain is a seeded action whose consequences are not
// yet known.
func (c *openChain) matches(windows map[int64]struct{}, workspaces map[string]struct{}) bool {
	if c.seeded && len(c.windows) == 0 && len(c.workspaces) == 0 {
		return true
	}
	for id := range windows {
		if _, ok := c.windows[id]; ok {
			return true
		}
	}
	for name := range workspaces {
		if _, ok := c.workspaces[name]; ok {
			return true
		}
	}
	return false
}

// absorb grows the chain's affected set with the event's.
func (c *openChain) absorb(windows map[int64]struct{}, workspaces map[string]struct{}) {
	for id := range windows {
		c.windows[id] = struct{}{}
	}
	for name := range workspaces {
		c.workspaces[name] = struct{}{}
	}
}

// affectedSet extracts the windows and workspaces an event touches.
func affectedSet(event *eventlog.Event) (map[int64]struct{}, map[string]struct{}) {
	windows := make(map[int64]struct{})
	workspaces := make(map[string]struct{})

	if event.Window != nil {
		windows[event.Window.WindowID] = struct{}{}
		if event.Window.Workspace != "" {
			workspaces[event.Window.Workspace] = struct{}{}
		}
	}
	if event.Workspace != nil {
		workspaces[event.Workspace.Name] = struct{}{}
		if event.Workspace.OldName != "" {
			workspaces[event.Workspace.OldName] = struct{}{}
		}
	}
	return windows, workspaces
}
