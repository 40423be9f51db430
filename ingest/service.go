// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sightline-wm/sightline/correlate"
	"github.com/sightline-wm/sightline/enrich"
	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/lib/clock"
	"github.com/sightline-wm/sightline/tracer"
	"github.com/sightline-wm/sightline/validate"
	"github.com/sightline-wm/sightline/wmipc"
)

// Reconnect backoff bounds. The first retry is quick because most
// disconnects are a WM restart that finishes in a second or two.
const (
	reconnectInitial = time.Second
	reconnectMax     = 10 * time.Second
)

// collapseThreshold is the run length at which consecutive same-shape
// window events are collapsed. Runs this long only happen when the WM
// floods the subscription faster than the pipeline drains it.
const collapseThreshold = 4

// subscribedEvents is every category the daemon ingests.
var subscribedEvents = []wmipc.EventType{
	wmipc.EventWindow,
	wmipc.EventWorkspace,
	wmipc.EventOutput,
	wmipc.EventBinding,
	wmipc.EventMode,
	wmipc.EventShutdown,
}

// Stream is the subscription as the service consumes it. Satisfied by
// a thin wrapper over wmipc.EventStream; tests substitute their own.
type Stream interface {
	Events() <-chan wmipc.RawEvent
	Err() error
	Close() error
}

// SubscribeFunc opens a subscription. The default dials the WM socket;
// tests inject a fake.
type SubscribeFunc func(ctx context.Context) (Stream, error)

// WMSubscriber returns the production SubscribeFunc for the given WM
// socket path.
func WMSubscriber(socketPath string) SubscribeFunc {
	return func(ctx context.Context) (Stream, error) {
		stream, err := wmipc.Subscribe(ctx, socketPath, subscribedEvents...)
		if err != nil {
			return nil, err
		}
		return wmStream{stream}, nil
	}
}

type wmStream struct{ s *wmipc.EventStream }

func (w wmStream) Events() <-chan wmipc.RawEvent { return w.s.C }
func (w wmStream) Err() error                    { return w.s.Err() }
func (w wmStream) Close() error                  { return w.s.Close() }

// Service is the ingestion pipeline: subscribe, normalize, sequence,
// correlate, enrich, offer to traces, fold into the model, append.
// The service is the buffer's only writer.
type Service struct {
	subscribe SubscribeFunc
	buffer    *eventlog.Buffer
	engine    *correlate.Engine
	resolver  *enrich.Resolver
	traces    *tracer.Manager
	model     *validate.Model
	clock     clock.Clock
	logger    *slog.Logger

	// nextID is the event ID sequencer. Only Run's goroutine touches
	// it.
	nextID uint64
}

// NewService wires the pipeline.
func NewService(subscribe SubscribeFunc, buffer *eventlog.Buffer, engine *correlate.Engine, resolver *enrich.Resolver, traces *tracer.Manager, model *validate.Model, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		subscribe: subscribe,
		buffer:    buffer,
		engine:    engine,
		resolver:  resolver,
		traces:    traces,
		model:     model,
		clock:     clk,
		logger:    logger,
	}
}

// Run subscribes and processes events until ctx is cancelled. A
// dropped subscription is retried with exponential backoff, and the
// outage is recorded in the buffer as a synthetic gap event so
// consumers can see the hole in the record.
func (s *Service) Run(ctx context.Context) error {
	backoff := reconnectInitial
	var disconnectedAt time.Time

	for {
		stream, err := s.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("WM subscription failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(backoff):
			}
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectInitial

		if disconnectedAt.IsZero() {
			s.emitSystem("started", &eventlog.SystemPayload{
				Message: "event subscription established",
			})
		} else {
			gap := s.clock.Now().Sub(disconnectedAt)
			s.logger.Info("WM subscription restored", "gap", gap)
			s.emitSystem("gap", &eventlog.SystemPayload{
				Message:     fmt.Sprintf("subscription lost for %s, events in this span were not observed", gap),
				GapDuration: gap,
			})
		}

		err = s.consume(ctx, stream)
		stream.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		disconnectedAt = s.clock.Now()
		s.logger.Warn("WM subscription lost", "error", err)
	}
}

// consume drains one subscription until it ends.
func (s *Service) consume(ctx context.Context, stream Stream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, open := <-stream.Events():
			if !open {
				return stream.Err()
			}
			s.processBatch(ctx, s.drain(stream, raw))
		}
	}
}

// drain collects the first event plus everything already queued on the
// stream, without blocking. Processing in batches is what makes burst
// collapsing possible: a backlog is visible as a long batch.
func (s *Service) drain(stream Stream, first wmipc.RawEvent) []wmipc.RawEvent {
	batch := []wmipc.RawEvent{first}
	for {
		select {
		case raw, open := <-stream.Events():
			if !open {
				return batch
			}
			batch = append(batch, raw)
		default:
			return batch
		}
	}
}

// processBatch normalizes a batch, collapses bursts, and runs each
// surviving event through the pipeline.
func (s *Service) processBatch(ctx context.Context, batch []wmipc.RawEvent) {
	events := make([]*eventlog.Event, 0, len(batch))
	for _, raw := range batch {
		event, err := normalize(raw, s.clock.Now())
		if err != nil {
			s.logger.Warn("dropping undecodable event", "type", raw.Type.Name(), "error", err)
			continue
		}
		if event == nil {
			continue
		}
		events = append(events, event)
	}

	for _, event := range collapseBursts(events) {
		s.process(ctx, event)
	}
}

// collapseBursts replaces each run of collapseThreshold or more
// consecutive window events with the same type and window by the run's
// final event, preceded by a synthetic event recording how many were
// dropped. The final event wins because it reflects the window's
// latest state.
func collapseBursts(events []*eventlog.Event) []*eventlog.Event {
	if len(events) < collapseThreshold {
		return events
	}

	var out []*eventlog.Event
	for i := 0; i < len(events); {
		j := i
		for j < len(events) && sameBurstShape(events[i], events[j]) {
			j++
		}
		run := j - i
		if run >= collapseThreshold {
			last := events[j-1]
			out = append(out, &eventlog.Event{
				Category:  eventlog.CategorySystem,
				Type:      "collapsed",
				Timestamp: last.Timestamp,
				Source:    eventlog.SourceDaemon,
				System: &eventlog.SystemPayload{
					Message:        fmt.Sprintf("collapsed %d %s events for window %d", run-1, last.Type, last.WindowID()),
					CollapsedCount: run - 1,
				},
			}, last)
		} else {
			out = append(out, events[i:j]...)
		}
		i = j
	}
	return out
}

func sameBurstShape(a, b *eventlog.Event) bool {
	return a.Category == eventlog.CategoryWindow &&
		b.Category == eventlog.CategoryWindow &&
		a.Type == b.Type &&
		a.WindowID() == b.WindowID()
}

// process runs one event through the pipeline. Order matters: the ID
// is assigned first so every later stage can reference it; the trace
// offer comes after enrichment because scope matchers read enrichment;
// the append is last so the stored record is complete and immutable.
func (s *Service) process(ctx context.Context, event *eventlog.Event) {
	s.nextID++
	event.ID = s.nextID

	s.engine.Assign(event)
	s.resolver.Enrich(ctx, event)
	s.traces.Offer(event)
	s.model.Apply(event)
	s.buffer.Append(event)
}

// emitSystem sequences and stores a synthetic daemon event. System
// events bypass correlation and enrichment and are never offered to
// traces.
func (s *Service) emitSystem(eventType string, payload *eventlog.SystemPayload) {
	s.nextID++
	s.buffer.Append(&eventlog.Event{
		ID:        s.nextID,
		Category:  eventlog.CategorySystem,
		Type:      eventType,
		Timestamp: s.clock.Now(),
		Source:    eventlog.SourceDaemon,
		System:    payload,
	})
}
