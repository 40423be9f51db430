// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/clock"
)

// DefaultBudget is the hard per-event enrichment timeout. 20ms keeps
// worst-case ingestion latency far inside the 100ms end-to-end budget
// even when every event in a burst needs a lookup.
const DefaultBudget = 20 * time.Millisecond

// Resolver enriches window events within a fixed time budget.
type Resolver struct {
	registry Registry
	clock    clock.Clock
	budget   time.Duration
	logger   *slog.Logger
}

// NewResolver creates a resolver. budget <= 0 means DefaultBudget. A
// nil registry disables enrichment entirely (events get the degraded
// marker without any lookup).
func NewResolver(registry Registry, clk clock.Clock, budget time.Duration, logger *slog.Logger) *Resolver {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Resolver{
		registry: registry,
		clock:    clk,
		budget:   budget,
		logger:   logger,
	}
}

// Enrich populates event.Enrichment for window-category events. Always
// returns within the budget (plus scheduling noise): on timeout or
// registry failure the event carries DaemonAvailable false and empty
// metadata. Non-window events are left untouched.
func (r *Resolver) Enrich(ctx context.Context, event *eventlog.Event) {
	if event.Category != eventlog.CategoryWindow || event.Window == nil {
		return
	}

	enrichment := &eventlog.Enrichment{
		WindowID:  event.Window.WindowID,
		Workspace: event.Window.Workspace,
		Output:    event.Window.Output,
	}
	event.Enrichment = enrichment

	if r.registry == nil {
		return
	}

	start := r.clock.Now()
	lookupCtx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	record, err := r.registry.Lookup(lookupCtx, event.Window.WindowID, event.Window.AppID)
	enrichment.LatencyMS = r.clock.Now().Sub(start).Milliseconds()

	if err != nil {
		// Degraded, not dropped. No synchronous retry: the next window
		// event gets a fresh attempt, and stored events stay as they
		// were at occurrence time.
		r.logger.Debug("enrichment unavailable",
			"window_id", event.Window.WindowID,
			"latency_ms", enrichment.LatencyMS,
			"error", err,
		)
		return
	}

	enrichment.DaemonAvailable = true
	if !record.Found {
		enrichment.Scope = eventlog.ScopeGlobal
		return
	}

	enrichment.PID = record.PID
	enrichment.AppName = record.AppName
	enrichment.IconPath = record.IconPath
	enrichment.ProjectName = record.ProjectName
	enrichment.Scope = record.Scope
	enrichment.IsPWA = record.IsPWA
	if enrichment.Scope == "" {
		enrichment.Scope = eventlog.ScopeScoped
	}
}
