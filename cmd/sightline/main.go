// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Sightline is the command-line client for the sightlined daemon: query
// the event buffer, follow the live stream, inspect causality chains,
// manage traces, validate WM state, and capture diagnostic snapshots.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/gateway"
	"github.com/sightline-wm/sightline/lib/version"
	"github.com/sightline-wm/sightline/tracer"
	"github.com/sightline-wm/sightline/validate"
)

const usage = `sightline — client for the sightlined daemon

Usage:
  sightline events [--since ID] [--limit N] [--category C] [--type T] [--window ID] [--follow] [--json]
  sightline chain (--event ID | --correlation ID) [--json]
  sightline trace start (--window ID | --app-id ID | --focused | --all-scoped | --pre-launch [--app-id ID]) [--timeout D]
  sightline trace start --template NAME [--window ID] [--app-id ID] [--timeout D]
  sightline trace (get|stop|events) TRACE_ID [--json]
  sightline trace list
  sightline trace templates
  sightline outputs [--json]
  sightline validate [--json]
  sightline snapshot [--output PATH]
  sightline version

Global flags:
  --socket PATH   daemon socket (default: $XDG_RUNTIME_DIR/sightline/gateway.sock)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultSocket() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "sightline", "gateway.sock")
	}
	return "/tmp/sightline-gateway.sock"
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, args := args[0], args[1:]
	switch command {
	case "events":
		return eventsCommand(ctx, args)
	case "chain":
		return chainCommand(ctx, args)
	case "trace":
		return traceCommand(ctx, args)
	case "outputs":
		return outputsCommand(ctx, args)
	case "validate":
		return validateCommand(ctx, args)
	case "snapshot":
		return snapshotCommand(ctx, args)
	case "version":
		fmt.Printf("sightline %s\n", version.Full())
		return nil
	case "help", "--help", "-h":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q (run \"sightline help\")", command)
	}
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	socketPath := flags.String("socket", defaultSocket(), "daemon socket path")
	return flags, socketPath
}

func eventsCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("events")
	sinceID := flags.Uint64("since", 0, "return events with ID greater than this")
	limit := flags.Int("limit", 50, "maximum events to return")
	categories := flags.StringSlice("category", nil, "filter by category (window, workspace, output, binding, mode, system)")
	types := flags.StringSlice("type", nil, "filter by event type")
	windowID := flags.Int64("window", 0, "filter by window ID")
	follow := flags.Bool("follow", false, "stream events as they arrive")
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	filter := eventlog.Filter{Types: *types}
	for _, category := range *categories {
		filter.Categories = append(filter.Categories, eventlog.Category(category))
	}
	if *windowID != 0 {
		filter.WindowID = windowID
	}

	client := gateway.NewClient(*socketPath)
	if *follow {
		return followEvents(ctx, client, *sinceID, filter, *asJSON)
	}

	var result eventlog.QueryResult
	params := struct {
		SinceID uint64 `json:"since_id,omitempty"`
		Limit   int    `json:"limit,omitempty"`
		eventlog.Filter
	}{SinceID: *sinceID, Limit: *limit, Filter: filter}
	if err := client.Call(ctx, "events.query", params, &result); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(result)
	}
	if result.Truncated {
		fmt.Println("(older events evicted)")
	}
	for _, event := range result.Events {
		printEvent(&event)
	}
	return nil
}

func followEvents(ctx context.Context, client *gateway.Client, sinceID uint64, filter eventlog.Filter, asJSON bool) error {
	stream, err := client.Subscribe(ctx, sinceID, filter)
	if err != nil {
		return err
	}
	defer stream.Close()

	for event := range stream.C {
		if asJSON {
			printJSON(event)
			continue
		}
		printEvent(&event)
	}
	return stream.Err()
}

func printEvent(event *eventlog.Event) {
	var detail string
	switch {
	case event.Window != nil:
		detail = fmt.Sprintf("window=%d app=%s", event.Window.WindowID, event.Window.AppID)
		if event.Window.Title != "" {
			detail += fmt.Sprintf(" title=%q", event.Window.Title)
		}
	case event.Workspace != nil:
		detail = fmt.Sprintf("workspace=%s output=%s", event.Workspace.Name, event.Workspace.Output)
	case event.Binding != nil:
		detail = fmt.Sprintf("command=%q", event.Binding.Command)
	case event.Mode != nil:
		detail = fmt.Sprintf("mode=%s", event.Mode.Name)
	case event.System != nil:
		detail = event.System.Message
	}

	correlation := ""
	if event.CorrelationID != "" {
		correlation = fmt.Sprintf(" chain=%s:%d", shortID(event.CorrelationID), event.CausalityDepth)
	}
	fmt.Printf("%6d  %s  %-9s %-8s %s%s\n",
		event.ID,
		event.Timestamp.Format("15:04:05.000"),
		event.Category,
		event.Type,
		detail,
		correlation,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func chainCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("chain")
	eventID := flags.Uint64("event", 0, "look up the chain containing this event")
	correlationID := flags.String("correlation", "", "look up a chain by correlation ID")
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *eventID == 0 && *correlationID == "" {
		return fmt.Errorf("one of --event or --correlation is required")
	}

	var chain eventlog.Chain
	params := map[string]any{}
	if *eventID != 0 {
		params["event_id"] = *eventID
	}
	if *correlationID != "" {
		params["correlation_id"] = *correlationID
	}
	if err := gateway.NewClient(*socketPath).Call(ctx, "events.get_causality_chain", params, &chain); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(chain)
	}

	fmt.Printf("%s (%d events over %dms)\n", chain.Summary, chain.EventCount, chain.DurationMS)
	if chain.Truncated {
		fmt.Println("(root evicted, chain is incomplete)")
	}
	for _, event := range chain.Events {
		fmt.Printf("%s", strings.Repeat("  ", int(event.CausalityDepth)))
		printEvent(&event)
	}
	return nil
}

func traceCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("trace subcommand required: start, stop, get, events, list, templates")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "start":
		return traceStartCommand(ctx, args)
	case "stop", "get", "events":
		return traceIDCommand(ctx, sub, args)
	case "list":
		return traceListCommand(ctx, args)
	case "templates":
		return traceTemplatesCommand(ctx, args)
	default:
		return fmt.Errorf("unknown trace subcommand %q", sub)
	}
}

func traceStartCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("trace start")
	template := flags.String("template", "", "start from a named template")
	windowID := flags.Int64("window", 0, "trace one window by ID")
	appID := flags.String("app-id", "", "trace windows by app ID")
	focused := flags.Bool("focused", false, "trace whichever window has focus")
	allScoped := flags.Bool("all-scoped", false, "trace all registry-scoped windows")
	preLaunch := flags.Bool("pre-launch", false, "bind to the next matching window launch")
	timeout := flags.Duration("timeout", 0, "trace lifetime (default: daemon setting)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	client := gateway.NewClient(*socketPath)
	var trace tracer.Trace

	if *template != "" {
		params := map[string]any{
			"template":   *template,
			"window_id":  *windowID,
			"app_id":     *appID,
			"timeout_ms": timeout.Milliseconds(),
		}
		if err := client.Call(ctx, "traces.start_from_template", params, &trace); err != nil {
			return err
		}
	} else {
		matcher := tracer.Matcher{WindowID: *windowID, AppID: *appID}
		switch {
		case *windowID != 0:
			matcher.Kind = tracer.MatchWindowID
		case *focused:
			matcher.Kind = tracer.MatchFocused
		case *allScoped:
			matcher.Kind = tracer.MatchAllScoped
		case *preLaunch:
			matcher.Kind = tracer.MatchPreLaunch
		case *appID != "":
			matcher.Kind = tracer.MatchAppID
		default:
			return fmt.Errorf("a matcher is required: --window, --app-id, --focused, --all-scoped, or --pre-launch")
		}
		params := map[string]any{"matcher": matcher, "timeout_ms": timeout.Milliseconds()}
		if err := client.Call(ctx, "traces.start", params, &trace); err != nil {
			return err
		}
	}

	fmt.Printf("trace %s %s (matcher %s, expires %s)\n",
		trace.ID, trace.State, trace.Matcher.Kind,
		trace.TimeoutAt.Format(time.RFC3339))
	return nil
}

func traceIDCommand(ctx context.Context, sub string, args []string) error {
	flags, socketPath := newFlagSet("trace " + sub)
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("trace %s requires exactly one TRACE_ID argument", sub)
	}
	params := map[string]any{"trace_id": flags.Arg(0)}
	client := gateway.NewClient(*socketPath)

	if sub == "events" {
		var result struct {
			Events  []eventlog.Event `json:"events"`
			Evicted []uint64         `json:"evicted_event_ids"`
		}
		if err := client.Call(ctx, "events.get_by_trace", params, &result); err != nil {
			return err
		}
		if *asJSON {
			return printJSON(result)
		}
		for _, event := range result.Events {
			printEvent(&event)
		}
		if len(result.Evicted) > 0 {
			fmt.Printf("(%d captured events already evicted from the buffer)\n", len(result.Evicted))
		}
		return nil
	}

	method := map[string]string{"stop": "traces.stop", "get": "traces.get"}[sub]
	var trace tracer.Trace
	if err := client.Call(ctx, method, params, &trace); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(trace)
	}
	printTrace(&trace)
	return nil
}

func traceListCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("trace list")
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var traces []tracer.Trace
	if err := gateway.NewClient(*socketPath).Call(ctx, "traces.list", nil, &traces); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(traces)
	}
	for _, trace := range traces {
		printTrace(&trace)
	}
	return nil
}

func printTrace(trace *tracer.Trace) {
	fmt.Printf("%s  %-8s matcher=%s captured=%d started=%s\n",
		trace.ID, trace.State, trace.Matcher.Kind, len(trace.Captured),
		trace.StartedAt.Format("15:04:05"))
}

func traceTemplatesCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("trace templates")
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var templates []tracer.Template
	if err := gateway.NewClient(*socketPath).Call(ctx, "traces.list_templates", nil, &templates); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(templates)
	}
	for _, template := range templates {
		fmt.Printf("%-20s matcher=%-10s %s\n", template.Name, template.Matcher.Kind, template.Description)
	}
	return nil
}

func outputsCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("outputs")
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var state json.RawMessage
	if err := gateway.NewClient(*socketPath).Call(ctx, "outputs.get_state", nil, &state); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(state)
	}
	// The structured form is the useful one here; pretty-print it.
	var pretty map[string]any
	if err := json.Unmarshal(state, &pretty); err != nil {
		return err
	}
	return printJSON(pretty)
}

func validateCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("validate")
	asJSON := flags.Bool("json", false, "print raw JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var report validate.Report
	if err := gateway.NewClient(*socketPath).Call(ctx, "state.validate", nil, &report); err != nil {
		return err
	}
	if *asJSON {
		return printJSON(report)
	}
	if report.Consistent {
		fmt.Println("daemon model and WM state agree")
		return nil
	}
	fmt.Printf("%d discrepancies (WM is authoritative):\n", len(report.Diffs))
	for _, diff := range report.Diffs {
		fmt.Printf("  %s\n", diff)
	}
	return nil
}

func snapshotCommand(ctx context.Context, args []string) error {
	flags, socketPath := newFlagSet("snapshot")
	output := flags.String("output", "", "write the snapshot to this file (default: print to stdout)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	client := gateway.NewClient(*socketPath)
	if *output == "" {
		var snap json.RawMessage
		if err := client.Call(ctx, "diagnostics.capture", nil, &snap); err != nil {
			return err
		}
		return printJSON(snap)
	}

	var summary struct {
		Path              string `json:"path"`
		Partial           bool   `json:"partial"`
		CaptureDurationMS int64  `json:"capture_duration_ms"`
		Events            int    `json:"events"`
	}
	if err := client.Call(ctx, "diagnostics.capture", map[string]any{"path": *output}, &summary); err != nil {
		return err
	}
	fmt.Printf("snapshot written to %s (%d events, %dms", summary.Path, summary.Events, summary.CaptureDurationMS)
	if summary.Partial {
		fmt.Print(", partial")
	}
	fmt.Println(")")
	return nil
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
