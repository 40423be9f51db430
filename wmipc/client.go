// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package wmipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// SocketPath returns the WM IPC socket path: explicit if non-empty,
// otherwise $SWAYSOCK, otherwise $I3SOCK.
func SocketPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if path := os.Getenv("SWAYSOCK"); path != "" {
		return path, nil
	}
	if path := os.Getenv("I3SOCK"); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("WM socket not found: set --wm-socket or export SWAYSOCK/I3SOCK")
}

// Client is a request/response client for one IPC connection. Requests
// are serialized on the connection; concurrent callers queue on an
// internal mutex. Use a separate Client (via Subscribe) for the event
// stream.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the WM IPC socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial WM socket %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// roundtrip sends one request and reads its reply, bounded by the
// context deadline. The WM answers requests in order on a connection,
// so holding the mutex across the write+read pairs each reply with its
// request. Event frames never appear here — this connection has no
// subscription.
func (c *Client) roundtrip(ctx context.Context, messageType MessageType, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if err := writeFrame(c.conn, messageType, payload); err != nil {
		return nil, err
	}
	frame, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	if frame.IsEvent || frame.Type != uint32(messageType) {
		return nil, fmt.Errorf("reply type mismatch: sent %d, got %d (event=%v)",
			messageType, frame.Type, frame.IsEvent)
	}
	return frame.Payload, nil
}

// query runs a request and decodes the JSON reply into out.
func (c *Client) query(ctx context.Context, messageType MessageType, payload []byte, out any) error {
	reply, err := c.roundtrip(ctx, messageType, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(reply, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", messageName(messageType), err)
	}
	return nil
}

// GetOutputs returns the WM's current outputs.
func (c *Client) GetOutputs(ctx context.Context) ([]Output, error) {
	var outputs []Output
	if err := c.query(ctx, MessageGetOutputs, nil, &outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// GetWorkspaces returns the WM's current workspaces.
func (c *Client) GetWorkspaces(ctx context.Context) ([]Workspace, error) {
	var workspaces []Workspace
	if err := c.query(ctx, MessageGetWorkspaces, nil, &workspaces); err != nil {
		return nil, err
	}
	return workspaces, nil
}

// GetTree returns the full container tree.
func (c *Client) GetTree(ctx context.Context) (*Node, error) {
	var root Node
	if err := c.query(ctx, MessageGetTree, nil, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// GetMarks returns all marks currently set on any window.
func (c *Client) GetMarks(ctx context.Context) ([]string, error) {
	var marks []string
	if err := c.query(ctx, MessageGetMarks, nil, &marks); err != nil {
		return nil, err
	}
	return marks, nil
}

// GetVersion returns the WM version.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var version Version
	if err := c.query(ctx, MessageGetVersion, nil, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// RawEvent is one subscription event: the wire event type plus its
// undecoded JSON payload. Normalization into canonical events happens
// in the ingest layer, which knows how to reject unrecognized shapes.
type RawEvent struct {
	Type    EventType
	Payload []byte
}

// EventStream is a live subscription to WM events. Read events from C;
// after C closes, Err reports why the stream ended.
type EventStream struct {
	// C delivers events in arrival order. Closed when the stream ends.
	C <-chan RawEvent

	conn net.Conn

	mu  sync.Mutex
	err error
}

// Err returns the error that ended the stream, or nil when the
// subscription context was cancelled. Valid after C closes.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the subscription connection, which unblocks the
// reader and closes C.
func (s *EventStream) Close() error { return s.conn.Close() }

// Subscribe opens a dedicated connection, subscribes to the given
// event types, and returns a stream of raw events. The connection is
// closed when ctx is cancelled or Close is called.
func Subscribe(ctx context.Context, socketPath string, eventTypes ...EventType) (*EventStream, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial WM socket %s: %w", socketPath, err)
	}

	names := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		names[i] = t.Name()
	}
	payload, err := json.Marshal(names)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode subscribe payload: %w", err)
	}

	if err := writeFrame(conn, MessageSubscribe, payload); err != nil {
		conn.Close()
		return nil, err
	}

	// The subscribe acknowledgment arrives before any event. Events for
	// already-subscribed categories cannot precede it on this fresh
	// connection.
	frame, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if frame.IsEvent || frame.Type != uint32(MessageSubscribe) {
		conn.Close()
		return nil, fmt.Errorf("unexpected frame before subscribe ack: type %d", frame.Type)
	}
	var ack subscribeReply
	if err := json.Unmarshal(frame.Payload, &ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode subscribe ack: %w", err)
	}
	if !ack.Success {
		conn.Close()
		return nil, fmt.Errorf("WM rejected subscription for %v", names)
	}

	events := make(chan RawEvent, 256)
	stream := &EventStream{C: events, conn: conn}

	// Close the connection on context cancellation to unblock the reader.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(events)
		for {
			frame, err := readFrame(conn)
			if err != nil {
				if ctx.Err() == nil {
					stream.mu.Lock()
					stream.err = err
					stream.mu.Unlock()
				}
				return
			}
			if !frame.IsEvent {
				// Replies cannot appear on a subscription-only
				// connection; skip rather than die.
				continue
			}
			// Bounded send: if the consumer is gone and the channel
			// is full, ctx.Done() unparks the reader so it can exit
			// instead of leaking on a send nobody will receive.
			select {
			case events <- RawEvent{Type: EventType(frame.Type), Payload: frame.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return stream, nil
}

// messageName returns a human-readable name for error messages.
func messageName(t MessageType) string {
	switch t {
	case MessageRunCommand:
		return "RUN_COMMAND"
	case MessageGetWorkspaces:
		return "GET_WORKSPACES"
	case MessageSubscribe:
		return "SUBSCRIBE"
	case MessageGetOutputs:
		return "GET_OUTPUTS"
	case MessageGetTree:
		return "GET_TREE"
	case MessageGetMarks:
		return "GET_MARKS"
	case MessageGetBarConfig:
		return "GET_BAR_CONFIG"
	case MessageGetVersion:
		return "GET_VERSION"
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}
