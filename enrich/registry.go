// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Record is the registry's answer for one window. Found false is a
// first-class, non-exceptional outcome: the window simply belongs to no
// registered project.
type Record struct {
	Found       bool   `json:"found"`
	PID         int    `json:"pid,omitempty"`
	AppName     string `json:"app_name,omitempty"`
	IconPath    string `json:"icon_path,omitempty"`
	ProjectName string `json:"project_name,omitempty"`

	// Scope is "scoped" (belongs to a project) or "global".
	Scope string `json:"scope,omitempty"`

	// IsPWA reports whether the registry identified the window as a
	// progressive web app.
	IsPWA bool `json:"is_pwa,omitempty"`
}

// Registry answers window metadata lookups. Implementations must treat
// "not found" as a successful lookup with Found false; errors are
// reserved for the registry being unreachable or over budget.
type Registry interface {
	Lookup(ctx context.Context, windowID int64, appID string) (Record, error)
}

// lookupRequest is the JSON line sent to the registry socket.
type lookupRequest struct {
	WindowID int64  `json:"window_id"`
	AppID    string `json:"app_id,omitempty"`
}

// SocketRegistry queries the companion registry daemon over its unix
// socket: one JSON request line, one JSON response line, connection
// closed. Dialing per lookup keeps the client stateless across registry
// restarts; on a local socket the dial cost is negligible against the
// enrichment budget.
type SocketRegistry struct {
	socketPath string
}

// NewSocketRegistry creates a registry client for the given socket.
func NewSocketRegistry(socketPath string) *SocketRegistry {
	return &SocketRegistry{socketPath: socketPath}
}

// Lookup queries the registry, bounded by the context deadline.
func (r *SocketRegistry) Lookup(ctx context.Context, windowID int64, appID string) (Record, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", r.socketPath)
	if err != nil {
		return Record{}, fmt.Errorf("dial registry socket %s: %w", r.socketPath, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Record{}, fmt.Errorf("set registry deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(lookupRequest{WindowID: windowID, AppID: appID}); err != nil {
		return Record{}, fmt.Errorf("send registry request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Record{}, fmt.Errorf("read registry response: %w", err)
	}

	var record Record
	if err := json.Unmarshal(line, &record); err != nil {
		return Record{}, fmt.Errorf("decode registry response: %w", err)
	}
	return record, nil
}
