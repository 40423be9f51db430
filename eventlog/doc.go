// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog defines the canonical event record and the bounded
// in-memory store that holds the daemon's recent event history.
//
// The package is organized around the event data flow:
//
//   - event.go: the Event record, per-category payload variants, and
//     enrichment metadata
//   - buffer.go: fixed-capacity circular buffer with FIFO eviction and
//     monotonic event ID assignment
//   - filter.go: query filters applied by buffer reads
//   - chain.go: correlation chain reconstruction from buffer contents
//   - stream.go: append notification for push subscribers and long-poll
//     waiters
//
// The buffer is the only always-on event store. It is explicitly
// ephemeral: a daemon restart starts an empty buffer, and nothing is
// persisted. Correlation chains are derived views reconstructed from
// whatever events remain in the buffer at query time — see chain.go for
// the truncation semantics when a chain's root has been evicted.
package eventlog
