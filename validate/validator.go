// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sightline-wm/sightline/lib/clock"
	"github.com/sightline-wm/sightline/wmipc"
)

// DefaultQueryTimeout bounds the WM state fetch. The four queries run
// in parallel, so this is the worst-case wall time for the whole fetch.
const DefaultQueryTimeout = 2 * time.Second

// WMQuerier is the subset of the WM IPC client the validator needs.
type WMQuerier interface {
	GetOutputs(ctx context.Context) ([]wmipc.Output, error)
	GetWorkspaces(ctx context.Context) ([]wmipc.Workspace, error)
	GetTree(ctx context.Context) (*wmipc.Node, error)
	GetMarks(ctx context.Context) ([]string, error)
}

// Diff kinds. Each names one class of disagreement between the
// daemon's model and the WM.
const (
	// DiffWorkspaceOutput: both sides know the workspace but assign it
	// to different outputs.
	DiffWorkspaceOutput = "workspace_output"

	// DiffWorkspaceMissing: a workspace exists on one side only.
	DiffWorkspaceMissing = "workspace_missing"

	// DiffWindowMarks: a window's mark set differs between sides.
	DiffWindowMarks = "window_marks"

	// DiffOutputActive: an output is active on one side only.
	DiffOutputActive = "output_active"
)

// Diff is one disagreement between the daemon model and the WM.
// Daemon and WM hold each side's value; an empty string means the side
// has no value for the subject.
type Diff struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Daemon  string `json:"daemon"`
	WM      string `json:"wm"`
}

func (d Diff) String() string {
	return fmt.Sprintf("%s %s: daemon=%q wm=%q", d.Kind, d.Subject, d.Daemon, d.WM)
}

// WMState is the authoritative WM state at validation time.
type WMState struct {
	Outputs    []wmipc.Output    `json:"outputs"`
	Workspaces []wmipc.Workspace `json:"workspaces"`
	Tree       *wmipc.Node       `json:"tree,omitempty"`
	Marks      []string          `json:"marks"`
}

// Report is the result of one validation pass.
type Report struct {
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`

	Daemon View    `json:"daemon"`
	WM     WMState `json:"wm"`

	// Diffs lists every disagreement, sorted by kind then subject.
	// Empty means the two views agree.
	Diffs []Diff `json:"diffs"`

	Consistent bool `json:"consistent"`
}

// Validator compares the daemon model against live WM state.
type Validator struct {
	wm      WMQuerier
	model   *Model
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration
}

// NewValidator creates a validator. timeout <= 0 means
// DefaultQueryTimeout.
func NewValidator(wm WMQuerier, model *Model, clk clock.Clock, logger *slog.Logger, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Validator{wm: wm, model: model, clock: clk, logger: logger, timeout: timeout}
}

// Validate fetches the WM's outputs, workspaces, tree, and marks in
// parallel, snapshots the daemon model, and returns the structured
// diff. Neither side is mutated.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	started := v.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var state WMState
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		state.Outputs, err = v.wm.GetOutputs(ctx)
		return err
	})
	group.Go(func() (err error) {
		state.Workspaces, err = v.wm.GetWorkspaces(ctx)
		return err
	})
	group.Go(func() (err error) {
		state.Tree, err = v.wm.GetTree(ctx)
		return err
	})
	group.Go(func() (err error) {
		state.Marks, err = v.wm.GetMarks(ctx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("querying wm state: %w", err)
	}

	daemon := v.model.Snapshot()
	diffs := diff(daemon, state)

	report := &Report{
		Timestamp:  started,
		DurationMS: v.clock.Now().Sub(started).Milliseconds(),
		Daemon:     daemon,
		WM:         state,
		Diffs:      diffs,
		Consistent: len(diffs) == 0,
	}
	if !report.Consistent {
		v.logger.Warn("state validation found discrepancies", "diffs", len(diffs))
	}
	return report, nil
}

// diff produces every disagreement between the daemon view and the WM
// state, sorted for stable output.
func diff(daemon View, wm WMState) []Diff {
	var diffs []Diff
	diffs = append(diffs, diffWorkspaces(daemon, wm)...)
	diffs = append(diffs, diffMarks(daemon, wm)...)
	diffs = append(diffs, diffOutputs(daemon, wm)...)

	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Kind != diffs[j].Kind {
			return diffs[i].Kind < diffs[j].Kind
		}
		return diffs[i].Subject < diffs[j].Subject
	})
	return diffs
}

func diffWorkspaces(daemon View, wm WMState) []Diff {
	wmAssignments := make(map[string]string, len(wm.Workspaces))
	for _, workspace := range wm.Workspaces {
		wmAssignments[workspace.Name] = workspace.Output
	}

	var diffs []Diff
	for name, daemonOutput := range daemon.WorkspaceOutputs {
		wmOutput, known := wmAssignments[name]
		switch {
		case !known:
			diffs = append(diffs, Diff{
				Kind:    DiffWorkspaceMissing,
				Subject: name,
				Daemon:  daemonOutput,
			})
		case wmOutput != daemonOutput:
			diffs = append(diffs, Diff{
				Kind:    DiffWorkspaceOutput,
				Subject: name,
				Daemon:  daemonOutput,
				WM:      wmOutput,
			})
		}
	}
	for name, wmOutput := range wmAssignments {
		if _, known := daemon.WorkspaceOutputs[name]; !known {
			diffs = append(diffs, Diff{
				Kind:    DiffWorkspaceMissing,
				Subject: name,
				WM:      wmOutput,
			})
		}
	}
	return diffs
}

func diffMarks(daemon View, wm WMState) []Diff {
	wmMarks := make(map[int64][]string)
	if wm.Tree != nil {
		wm.Tree.Walk(func(node *wmipc.Node) bool {
			if len(node.Marks) > 0 {
				wmMarks[node.ID] = node.Marks
			}
			return true
		})
	}

	var diffs []Diff
	seen := make(map[int64]bool, len(daemon.WindowMarks))
	for windowID, marks := range daemon.WindowMarks {
		seen[windowID] = true
		if !sameMarkSet(marks, wmMarks[windowID]) {
			diffs = append(diffs, Diff{
				Kind:    DiffWindowMarks,
				Subject: strconv.FormatInt(windowID, 10),
				Daemon:  joinSorted(marks),
				WM:      joinSorted(wmMarks[windowID]),
			})
		}
	}
	for windowID, marks := range wmMarks {
		if !seen[windowID] {
			diffs = append(diffs, Diff{
				Kind:    DiffWindowMarks,
				Subject: strconv.FormatInt(windowID, 10),
				WM:      joinSorted(marks),
			})
		}
	}
	return diffs
}

func diffOutputs(daemon View, wm WMState) []Diff {
	wmActive := make(map[string]bool, len(wm.Outputs))
	for _, output := range wm.Outputs {
		if output.Active {
			wmActive[output.Name] = true
		}
	}

	var diffs []Diff
	daemonActive := make(map[string]bool, len(daemon.ActiveOutputs))
	for _, name := range daemon.ActiveOutputs {
		daemonActive[name] = true
		if !wmActive[name] {
			diffs = append(diffs, Diff{
				Kind:    DiffOutputActive,
				Subject: name,
				Daemon:  "active",
			})
		}
	}
	for name := range wmActive {
		if !daemonActive[name] {
			diffs = append(diffs, Diff{
				Kind:    DiffOutputActive,
				Subject: name,
				WM:      "active",
			})
		}
	}
	return diffs
}

func sameMarkSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	members := make(map[string]bool, len(a))
	for _, mark := range a {
		members[mark] = true
	}
	for _, mark := range b {
		if !members[mark] {
			return false
		}
	}
	return true
}

func joinSorted(marks []string) string {
	sorted := append([]string(nil), marks...)
	sort.Strings(sorted)
	joined := ""
	for i, mark := range sorted {
		if i > 0 {
			joined += ","
		}
		joined += mark
	}
	return joined
}
