// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/snapshot"
	"github.com/sightline-wm/sightline/tracer"
	"github.com/sightline-wm/sightline/validate"
	"github.com/sightline-wm/sightline/wmipc"
)

// maxWait caps the events.query long-poll budget. Clients wanting to
// wait longer re-issue the query.
const maxWait = 30 * time.Second

// wmQueryTimeout bounds the live WM fetch behind outputs.get_state.
const wmQueryTimeout = 2 * time.Second

// Gateway binds the daemon's components to RPC methods. All methods
// are read-only except trace start/stop and snapshot writes.
type Gateway struct {
	buffer    *eventlog.Buffer
	traces    *tracer.Manager
	validator *validate.Validator
	assembler *snapshot.Assembler
	wm        validate.WMQuerier
	model     *validate.Model
	logger    *slog.Logger
}

// NewGateway creates the method set. Register wires it to a Server.
func NewGateway(buffer *eventlog.Buffer, traces *tracer.Manager, validator *validate.Validator, assembler *snapshot.Assembler, wm validate.WMQuerier, model *validate.Model, logger *slog.Logger) *Gateway {
	return &Gateway{
		buffer:    buffer,
		traces:    traces,
		validator: validator,
		assembler: assembler,
		wm:        wm,
		model:     model,
		logger:    logger,
	}
}

// Register binds every method to the server.
func (g *Gateway) Register(server *Server) {
	server.Handle("events.query", g.eventsQuery)
	server.Handle("events.get_causality_chain", g.eventsGetCausalityChain)
	server.Handle("events.get_by_trace", g.eventsGetByTrace)
	server.HandleStream("events.subscribe", g.eventsSubscribe)
	server.Handle("traces.list_templates", g.tracesListTemplates)
	server.Handle("traces.start", g.tracesStart)
	server.Handle("traces.start_from_template", g.tracesStartFromTemplate)
	server.Handle("traces.stop", g.tracesStop)
	server.Handle("traces.get", g.tracesGet)
	server.Handle("traces.list", g.tracesList)
	server.Handle("traces.get_cross_reference", g.tracesGetCrossReference)
	server.Handle("outputs.get_state", g.outputsGetState)
	server.Handle("state.validate", g.stateValidate)
	server.Handle("diagnostics.capture", g.diagnosticsCapture)
}

func decodeParams(params json.RawMessage, into any) error {
	if err := json.Unmarshal(params, into); err != nil {
		return Errorf(CodeBadRequest, "invalid params: %v", err)
	}
	return nil
}

// queryParams is the shape of events.query and the filter portion of
// events.subscribe.
type queryParams struct {
	SinceID uint64 `json:"since_id"`
	Limit   int    `json:"limit"`

	// WaitMS long-polls: when no event newer than since_id exists,
	// block up to this long for one to arrive. Capped at 30s.
	WaitMS int64 `json:"wait_ms"`

	eventlog.Filter
}

func (g *Gateway) eventsQuery(ctx context.Context, params json.RawMessage) (any, error) {
	var p queryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	result := g.buffer.Query(p.SinceID, p.Limit, p.Filter)
	if len(result.Events) > 0 || p.WaitMS <= 0 {
		return result, nil
	}

	wait := time.Duration(p.WaitMS) * time.Millisecond
	if wait > maxWait {
		wait = maxWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// Wait keyed on the unfiltered last ID: a new event that fails the
	// filter still ends the poll with an empty result, which tells the
	// client its since_id is current.
	g.buffer.Wait(waitCtx, result.LastID)
	return g.buffer.Query(p.SinceID, p.Limit, p.Filter), nil
}

type chainParams struct {
	EventID       uint64 `json:"event_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (g *Gateway) eventsGetCausalityChain(ctx context.Context, params json.RawMessage) (any, error) {
	var p chainParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	correlationID := p.CorrelationID
	if correlationID == "" {
		if p.EventID == 0 {
			return nil, Errorf(CodeBadRequest, "event_id or correlation_id is required")
		}
		event, ok := g.buffer.Get(p.EventID)
		if !ok {
			return nil, Errorf(CodeEventNotFound, "event %d is not retained", p.EventID)
		}
		if event.CorrelationID == "" {
			// An uncorrelated event is its own chain of one.
			return eventlog.Chain{
				RootEventID: event.ID,
				EventCount:  1,
				Events:      []eventlog.Event{event},
			}, nil
		}
		correlationID = event.CorrelationID
	}

	chain, ok := g.buffer.CausalityChain(correlationID)
	if !ok {
		return nil, Errorf(CodeCorrelationNotFound, "no retained events for correlation %q", correlationID)
	}
	return chain, nil
}

type traceIDParams struct {
	TraceID string `json:"trace_id"`
}

// traceEvents is the events.get_by_trace result: the capture list
// joined back against the buffer.
type traceEvents struct {
	TraceID string           `json:"trace_id"`
	State   tracer.State     `json:"state"`
	Events  []eventlog.Event `json:"events"`

	// EvictedEventIDs lists captured events the buffer no longer
	// retains. The trace outlived the buffer's memory of them.
	EvictedEventIDs []uint64 `json:"evicted_event_ids,omitempty"`
}

func (g *Gateway) eventsGetByTrace(ctx context.Context, params json.RawMessage) (any, error) {
	var p traceIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	trace, err := g.traces.Get(p.TraceID)
	if err != nil {
		return nil, err
	}

	result := traceEvents{TraceID: trace.ID, State: trace.State, Events: []eventlog.Event{}}
	for _, entry := range trace.Captured {
		if event, ok := g.buffer.Get(entry.EventID); ok {
			result.Events = append(result.Events, event)
		} else {
			result.EvictedEventIDs = append(result.EvictedEventIDs, entry.EventID)
		}
	}
	return result, nil
}

func (g *Gateway) eventsSubscribe(ctx context.Context, params json.RawMessage) (StreamBody, error) {
	var p queryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return func(ctx context.Context, conn net.Conn) error {
		return g.streamEvents(ctx, conn, p)
	}, nil
}

func (g *Gateway) streamEvents(ctx context.Context, conn net.Conn, p queryParams) error {
	sub := g.buffer.Subscribe(0)
	defer sub.Cancel()

	// A read on the connection detects client disconnect; subscribers
	// never send after the request.
	disconnected := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		conn.Read(buf)
		close(disconnected)
	}()

	encoder := json.NewEncoder(conn)
	send := func(event *eventlog.Event) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("writing event: %w", err)
		}
		return nil
	}

	// Replay retained events newer than since_id first, then follow
	// the live feed. The subscription predates the replay query, so an
	// event appended in between appears in the replay and is skipped
	// when it arrives again on the feed.
	lastSent := p.SinceID
	catchUp := func() error {
		for _, event := range g.buffer.Query(lastSent, 0, p.Filter).Events {
			if err := send(&event); err != nil {
				return err
			}
			lastSent = event.ID
		}
		return nil
	}
	if err := catchUp(); err != nil {
		return err
	}

	var observedDrops uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-disconnected:
			return nil
		case event, open := <-sub.C:
			if !open {
				return nil
			}
			if drops := sub.Dropped(); drops > observedDrops {
				// The feed channel overflowed while we were writing.
				// Tell the client, then refill from the buffer; only
				// events the buffer has since evicted stay lost.
				lost := drops - observedDrops
				observedDrops = drops
				marker := eventlog.Event{
					Category:  eventlog.CategorySystem,
					Type:      "dropped",
					Timestamp: time.Now(),
					Source:    eventlog.SourceDaemon,
					System: &eventlog.SystemPayload{
						Message:      fmt.Sprintf("subscriber fell behind, %d events dropped from the stream", lost),
						DroppedCount: lost,
					},
				}
				if err := send(&marker); err != nil {
					return err
				}
				if err := catchUp(); err != nil {
					return err
				}
			}
			if event.ID <= lastSent || !p.Filter.Matches(&event) {
				continue
			}
			if err := send(&event); err != nil {
				return err
			}
			lastSent = event.ID
		}
	}
}

func (g *Gateway) tracesListTemplates(ctx context.Context, params json.RawMessage) (any, error) {
	return g.traces.Templates(), nil
}

type traceStartParams struct {
	Matcher    tracer.Matcher      `json:"matcher"`
	Categories []eventlog.Category `json:"categories,omitempty"`
	Types      []string            `json:"types,omitempty"`
	TimeoutMS  int64               `json:"timeout_ms,omitempty"`
}

func (g *Gateway) tracesStart(ctx context.Context, params json.RawMessage) (any, error) {
	var p traceStartParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	trace, err := g.traces.Start(tracer.StartOptions{
		Matcher:    p.Matcher,
		Categories: p.Categories,
		Types:      p.Types,
		Timeout:    time.Duration(p.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, Errorf(CodeMatcherInvalid, "%v", err)
	}
	return trace, nil
}

type templateStartParams struct {
	Template  string `json:"template"`
	WindowID  int64  `json:"window_id,omitempty"`
	AppID     string `json:"app_id,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

func (g *Gateway) tracesStartFromTemplate(ctx context.Context, params json.RawMessage) (any, error) {
	var p templateStartParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Template == "" {
		return nil, Errorf(CodeBadRequest, "missing required field: template")
	}

	trace, err := g.traces.StartFromTemplate(p.Template, tracer.StartOverrides{
		WindowID: p.WindowID,
		AppID:    p.AppID,
		Timeout:  time.Duration(p.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		if errors.Is(err, tracer.ErrTemplateNotFound) {
			return nil, err
		}
		return nil, Errorf(CodeMatcherInvalid, "%v", err)
	}
	return trace, nil
}

func (g *Gateway) tracesStop(ctx context.Context, params json.RawMessage) (any, error) {
	var p traceIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return g.traces.Stop(p.TraceID)
}

func (g *Gateway) tracesGet(ctx context.Context, params json.RawMessage) (any, error) {
	var p traceIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return g.traces.Get(p.TraceID)
}

func (g *Gateway) tracesList(ctx context.Context, params json.RawMessage) (any, error) {
	return g.traces.List(), nil
}

// crossReference is one capture entry annotated with buffer retention.
type crossReference struct {
	Index     int       `json:"index"`
	EventID   uint64    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	// Retained is false when the buffer has evicted the event; the
	// entry still proves the capture happened.
	Retained bool `json:"retained"`
}

type crossReferenceResult struct {
	TraceID string           `json:"trace_id"`
	State   tracer.State     `json:"state"`
	Entries []crossReference `json:"entries"`
}

func (g *Gateway) tracesGetCrossReference(ctx context.Context, params json.RawMessage) (any, error) {
	var p traceIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	trace, err := g.traces.Get(p.TraceID)
	if err != nil {
		return nil, err
	}

	result := crossReferenceResult{TraceID: trace.ID, State: trace.State, Entries: []crossReference{}}
	for _, entry := range trace.Captured {
		_, retained := g.buffer.Get(entry.EventID)
		result.Entries = append(result.Entries, crossReference{
			Index:     entry.Index,
			EventID:   entry.EventID,
			Timestamp: entry.Timestamp,
			Retained:  retained,
		})
	}
	return result, nil
}

// outputState pairs the WM's authoritative output list with the
// daemon's belief, so a caller sees both sides without a full
// validation pass.
type outputState struct {
	Outputs []wmipc.Output `json:"outputs"`
	Daemon  validate.View  `json:"daemon"`
}

func (g *Gateway) outputsGetState(ctx context.Context, params json.RawMessage) (any, error) {
	queryCtx, cancel := context.WithTimeout(ctx, wmQueryTimeout)
	defer cancel()

	outputs, err := g.wm.GetOutputs(queryCtx)
	if err != nil {
		return nil, Errorf(CodeWMUnavailable, "querying outputs: %v", err)
	}
	return outputState{Outputs: outputs, Daemon: g.model.Snapshot()}, nil
}

func (g *Gateway) stateValidate(ctx context.Context, params json.RawMessage) (any, error) {
	report, err := g.validator.Validate(ctx)
	if err != nil {
		return nil, Errorf(CodeWMUnavailable, "%v", err)
	}
	return report, nil
}

type captureParams struct {
	// Path, when set, writes the snapshot to this file and returns a
	// summary instead of the full document.
	Path string `json:"path,omitempty"`
}

// captureSummary is returned when the snapshot went to a file.
type captureSummary struct {
	Path              string `json:"path"`
	SchemaVersion     string `json:"schema_version"`
	Partial           bool   `json:"partial"`
	CaptureDurationMS int64  `json:"capture_duration_ms"`
	Events            int    `json:"events"`
}

func (g *Gateway) diagnosticsCapture(ctx context.Context, params json.RawMessage) (any, error) {
	var p captureParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	snap, err := g.assembler.Capture(ctx)
	if err != nil {
		return nil, Errorf(CodeSnapshotFailed, "%v", err)
	}
	if p.Path == "" {
		return snap, nil
	}

	if err := snapshot.WriteFile(snap, p.Path); err != nil {
		return nil, Errorf(CodeSnapshotFailed, "%v", err)
	}
	return captureSummary{
		Path:              p.Path,
		SchemaVersion:     snap.SchemaVersion,
		Partial:           snap.Partial,
		CaptureDurationMS: snap.CaptureDurationMS,
		Events:            len(snap.Events),
	}, nil
}
