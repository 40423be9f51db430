// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracer manages short-lived trace sessions: bounded,
// explicitly started captures of events matching one window, app,
// focus, or scope criterion, held separately from the always-on event
// buffer.
//
// A trace moves through pending → active → {expired | stopped}. While
// active, every ingested event is tested against its matcher; matches
// whose category and type the trace's template enables are appended to
// the capture list with a cross-reference to the buffer event ID.
// Capture lists survive deactivation read-only, but the referenced
// buffer events are still subject to FIFO eviction — cross-references
// can dangle, and readers must tolerate that.
//
// Trace deadlines are wall-clock timestamps checked on each ingestion
// tick (and on reads), not separate timers, so expiry can never race
// the ingest pipeline.
package tracer
