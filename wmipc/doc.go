// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package wmipc implements the client side of the i3/sway IPC
// protocol: framed binary messages with JSON payloads over a unix
// socket. Sightline consumes this protocol — it never extends it.
//
// The package is organized around the wire data flow:
//
//   - protocol.go: frame format (magic + length + type header) and the
//     message/event type tables
//   - types.go: JSON shapes of WM replies (outputs, workspaces, tree,
//     marks, version) and event payloads
//   - client.go: request/response client and the event subscription
//     stream
//
// Two connections are used per convention: one for request/response
// queries, one dedicated to the event subscription, so a slow query
// never delays event delivery.
package wmipc
