// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package enrich augments window events with metadata from the
// external project/app registry: project name, scope, resolved app
// name, icon path, PID.
//
// Enrichment happens once, at ingestion time, under a hard per-event
// budget (~20ms). When the registry cannot answer in time — or is not
// running at all — the event is stored and streamed anyway with
// Enrichment.DaemonAvailable set to false. A missing registry degrades
// the record; it never delays or drops it. There are no synchronous
// retries in the ingestion path, and stored events are never
// re-enriched: enrichment reflects state at occurrence time.
package enrich
