// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest owns the WM event subscription and the pipeline that
// turns raw IPC frames into stored, correlated, enriched events. It is
// the buffer's single producer: everything an event will ever carry
// (ID, correlation, enrichment, trace stamp) is settled here before
// the append.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/wmipc"
)

// normalize converts one raw subscription frame into the canonical
// event form. Returns nil for frames the daemon deliberately ignores
// (barconfig, tick) and an error for payloads that do not decode.
func normalize(raw wmipc.RawEvent, now time.Time) (*eventlog.Event, error) {
	event := &eventlog.Event{
		Timestamp: now,
		Source:    eventlog.SourceWM,
	}

	switch raw.Type {
	case wmipc.EventWindow:
		var payload wmipc.WindowEvent
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode window event: %w", err)
		}
		if payload.Container == nil {
			return nil, fmt.Errorf("window event %q has no container", payload.Change)
		}
		event.Category = eventlog.CategoryWindow
		event.Type = payload.Change
		event.Window = windowPayload(payload.Container)

	case wmipc.EventWorkspace:
		var payload wmipc.WorkspaceEvent
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode workspace event: %w", err)
		}
		event.Category = eventlog.CategoryWorkspace
		event.Type = payload.Change
		event.Workspace = workspacePayload(&payload)

	case wmipc.EventOutput:
		var payload wmipc.OutputEvent
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode output event: %w", err)
		}
		event.Category = eventlog.CategoryOutput
		event.Type = "change"
		event.Output = &eventlog.OutputPayload{Change: payload.Change}

	case wmipc.EventBinding:
		var payload wmipc.BindingEvent
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode binding event: %w", err)
		}
		event.Category = eventlog.CategoryBinding
		event.Type = payload.Change
		event.Binding = &eventlog.BindingPayload{
			Command:        payload.Binding.Command,
			Symbol:         payload.Binding.Symbol,
			InputType:      payload.Binding.InputType,
			EventStateMask: payload.Binding.EventStateMask,
		}

	case wmipc.EventMode:
		var payload wmipc.ModeEvent
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode mode event: %w", err)
		}
		event.Category = eventlog.CategoryMode
		event.Type = "change"
		event.Mode = &eventlog.ModePayload{Name: payload.Change, PangoMarkup: payload.PangoMarkup}

	case wmipc.EventShutdown:
		event.Category = eventlog.CategorySystem
		event.Type = "wm_shutdown"
		event.Source = eventlog.SourceDaemon
		event.System = &eventlog.SystemPayload{Message: "window manager announced shutdown"}

	default:
		return nil, nil
	}

	return event, nil
}

func windowPayload(container *wmipc.Node) *eventlog.WindowPayload {
	payload := &eventlog.WindowPayload{
		WindowID: container.ID,
		AppID:    container.AppID,
		Title:    container.Name,
		Marks:    container.Marks,
		Focused:  container.Focused,
		Urgent:   container.Urgent,
	}
	// X11 windows report a class instead of an app_id.
	if payload.AppID == "" && container.WindowProperties != nil {
		payload.AppID = container.WindowProperties.Class
	}
	return payload
}

func workspacePayload(event *wmipc.WorkspaceEvent) *eventlog.WorkspacePayload {
	payload := &eventlog.WorkspacePayload{Number: -1}
	if event.Current != nil {
		payload.Name = event.Current.Name
		payload.Output = event.Current.Output
		if event.Current.Num > 0 {
			payload.Number = event.Current.Num
		}
	}
	if event.Old != nil {
		payload.OldName = event.Old.Name
	}
	return payload
}
