// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot assembles versioned, self-contained diagnostic
// dumps: daemon state, authoritative WM state, and a bounded slice of
// the event buffer, serialized as one JSON document for offline
// debugging.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/clock"
	"github.com/sightline-wm/sightline/lib/version"
	"github.com/sightline-wm/sightline/tracer"
	"github.com/sightline-wm/sightline/validate"
	"github.com/sightline-wm/sightline/wmipc"
)

// SchemaVersion is the snapshot document version. Minor bumps are
// additive only; readers of the same major version must tolerate
// unknown fields.
const SchemaVersion = "1.0.0"

// DefaultBudget bounds the whole capture. Each WM section gets its own
// slice of this budget so one slow query cannot consume it all.
const DefaultBudget = 3 * time.Second

// treeBudgetFraction of the overall budget goes to the tree query, the
// only one whose response size depends on how many windows are open.
const treeBudgetFraction = 3

// DefaultEventLimit bounds the buffer slice embedded in a snapshot.
const DefaultEventLimit = 200

// Snapshot is one point-in-time diagnostic dump. Immutable once
// written: the assembler never retains or mutates a returned snapshot.
type Snapshot struct {
	SchemaVersion     string    `json:"schema_version"`
	Timestamp         time.Time `json:"timestamp"`
	CaptureDurationMS int64     `json:"capture_duration_ms"`

	// Status is "ok" even when Partial: a missing section degrades the
	// snapshot, it does not fail it.
	Status string `json:"status"`

	// Partial reports that at least one WM section timed out or
	// errored; the corresponding *Error field says which and why.
	Partial bool `json:"partial"`

	Daemon DaemonState `json:"daemon"`
	WM     WMSections  `json:"wm"`

	// Events is the most recent slice of the buffer, ascending by ID.
	Events []eventlog.Event `json:"events"`

	Environment Environment `json:"environment"`
}

// DaemonState is the daemon's own view at capture time.
type DaemonState struct {
	Model  validate.View  `json:"model"`
	Traces []tracer.Trace `json:"traces"`
	Buffer BufferInfo     `json:"buffer"`
}

// BufferInfo summarizes the buffer without embedding all of it.
type BufferInfo struct {
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
	OldestID uint64 `json:"oldest_event_id"`
	LastID   uint64 `json:"last_event_id"`
}

// WMSections is the authoritative WM state, captured per-section. Each
// section is independent: a nil value with its *Error set means that
// query failed or timed out while the others succeeded.
type WMSections struct {
	Outputs      []wmipc.Output `json:"outputs,omitempty"`
	OutputsError string         `json:"outputs_error,omitempty"`

	Workspaces      []wmipc.Workspace `json:"workspaces,omitempty"`
	WorkspacesError string            `json:"workspaces_error,omitempty"`

	Tree      *wmipc.Node `json:"tree"`
	TreeError string      `json:"tree_error,omitempty"`

	Marks      []string `json:"marks,omitempty"`
	MarksError string   `json:"marks_error,omitempty"`
}

// Environment records where and by what the snapshot was taken.
type Environment struct {
	Hostname  string `json:"hostname,omitempty"`
	PID       int    `json:"pid"`
	Version   string `json:"daemon_version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Assembler captures snapshots from live components.
type Assembler struct {
	wm         validate.WMQuerier
	model      *validate.Model
	buffer     *eventlog.Buffer
	traces     *tracer.Manager
	clock      clock.Clock
	logger     *slog.Logger
	budget     time.Duration
	eventLimit int
}

// NewAssembler creates an assembler. budget <= 0 means DefaultBudget;
// eventLimit <= 0 means DefaultEventLimit.
func NewAssembler(wm validate.WMQuerier, model *validate.Model, buffer *eventlog.Buffer, traces *tracer.Manager, clk clock.Clock, logger *slog.Logger, budget time.Duration, eventLimit int) *Assembler {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if eventLimit <= 0 {
		eventLimit = DefaultEventLimit
	}
	return &Assembler{
		wm:         wm,
		model:      model,
		buffer:     buffer,
		traces:     traces,
		clock:      clk,
		logger:     logger,
		budget:     budget,
		eventLimit: eventLimit,
	}
}

// Capture assembles a snapshot. WM sections are fetched in parallel,
// each under its own timeout; a section that misses its deadline is
// recorded as an error string and the snapshot is marked partial
// rather than failed. Only context cancellation aborts the capture.
func (a *Assembler) Capture(ctx context.Context) (*Snapshot, error) {
	started := a.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	var sections WMSections
	group := new(errgroup.Group)
	group.Go(func() error {
		outputs, err := a.wm.GetOutputs(ctx)
		sections.Outputs, sections.OutputsError = outputs, sectionError(err)
		return nil
	})
	group.Go(func() error {
		workspaces, err := a.wm.GetWorkspaces(ctx)
		sections.Workspaces, sections.WorkspacesError = workspaces, sectionError(err)
		return nil
	})
	group.Go(func() error {
		marks, err := a.wm.GetMarks(ctx)
		sections.Marks, sections.MarksError = marks, sectionError(err)
		return nil
	})
	group.Go(func() error {
		// The tree can be large; cap it below the overall budget so a
		// slow tree still leaves room for the rest of the capture.
		treeCtx, treeCancel := context.WithTimeout(ctx, a.budget/treeBudgetFraction)
		defer treeCancel()
		tree, err := a.wm.GetTree(treeCtx)
		if err != nil {
			sections.Tree, sections.TreeError = nil, sectionError(err)
		} else {
			sections.Tree = tree
		}
		return nil
	})
	group.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("capture cancelled: %w", err)
	}

	partial := sections.OutputsError != "" || sections.WorkspacesError != "" ||
		sections.TreeError != "" || sections.MarksError != ""
	if partial {
		a.logger.Warn("diagnostic capture degraded",
			"outputs_error", sections.OutputsError,
			"workspaces_error", sections.WorkspacesError,
			"tree_error", sections.TreeError,
			"marks_error", sections.MarksError,
		)
	}

	hostname, _ := os.Hostname()
	snap := &Snapshot{
		SchemaVersion:     SchemaVersion,
		Timestamp:         started,
		CaptureDurationMS: a.clock.Now().Sub(started).Milliseconds(),
		Status:            "ok",
		Partial:           partial,
		Daemon: DaemonState{
			Model:  a.model.Snapshot(),
			Traces: a.traces.List(),
			Buffer: BufferInfo{
				Capacity: a.buffer.Capacity(),
				Length:   a.buffer.Len(),
				OldestID: a.buffer.OldestID(),
				LastID:   a.buffer.LastID(),
			},
		},
		WM:          sections,
		Events:      a.buffer.Recent(a.eventLimit),
		Environment: Environment{
			Hostname:  hostname,
			PID:       os.Getpid(),
			Version:   version.Info(),
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		},
	}
	return snap, nil
}

// sectionError converts a query error into the section error string.
// Deadline misses are recorded as "timeout" so readers can tell a slow
// WM apart from a broken one.
func sectionError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return err.Error()
	}
}

// WriteFile serializes the snapshot to path as indented JSON. The file
// is written to a temporary name first and renamed into place, so
// readers never observe a half-written document.
func WriteFile(snap *Snapshot, path string) error {
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	encoded = append(encoded, '\n')

	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	if _, err := temp.Write(encoded); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(temp.Name(), path); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}
