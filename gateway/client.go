// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sightline-wm/sightline/eventlog"
)

// Client calls gateway methods over the daemon's Unix socket. One
// connection per call, matching the server's one-request protocol.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call invokes a method and decodes the response data into out, which
// may be nil when the caller only cares about success. A failure
// envelope is returned as a *Error carrying the wire code.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	response, _, err := c.roundtrip(ctx, conn, method, params)
	if err != nil {
		return err
	}

	if out != nil && len(response.Data) > 0 {
		if err := json.Unmarshal(response.Data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}
	return nil
}

// EventStream is a live events.subscribe feed.
type EventStream struct {
	// C delivers streamed events. Closed when the stream ends.
	C <-chan eventlog.Event

	conn net.Conn
	err  error
	done chan struct{}
}

// Err returns the error that ended the stream, or nil after a clean
// shutdown. Valid once C is closed.
func (s *EventStream) Err() error {
	<-s.done
	return s.err
}

// Close terminates the subscription.
func (s *EventStream) Close() error { return s.conn.Close() }

// Subscribe opens an events.subscribe stream. Retained events newer
// than sinceID are replayed first, then the live feed follows; pass
// the buffer's current last ID to skip the replay. The stream ends
// when ctx is cancelled, Close is called, or the daemon goes away.
func (c *Client) Subscribe(ctx context.Context, sinceID uint64, filter eventlog.Filter) (*EventStream, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	params := struct {
		SinceID uint64 `json:"since_id,omitempty"`
		eventlog.Filter
	}{SinceID: sinceID, Filter: filter}
	_, reader, err := c.roundtrip(ctx, conn, "events.subscribe", params)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	channel := make(chan eventlog.Event, 64)
	stream := &EventStream{C: channel, conn: conn, done: make(chan struct{})}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(channel)
		defer close(stream.done)
		defer stop()
		decoder := json.NewDecoder(reader)
		for {
			var event eventlog.Event
			if err := decoder.Decode(&event); err != nil {
				if ctx.Err() == nil {
					stream.err = err
				}
				return
			}
			select {
			case channel <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return stream, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon at %s: %w", c.socketPath, err)
	}
	return conn, nil
}

// roundtrip writes one request and reads the response envelope. The
// returned reader continues where the envelope ended, for streaming
// methods.
func (c *Client) roundtrip(ctx context.Context, conn net.Conn, method string, params any) (*Response, *bufio.Reader, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(readTimeout))
	}

	request := struct {
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{Method: method, Params: params}
	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	encoded = append(encoded, '\n')
	if _, err := conn.Write(encoded); err != nil {
		return nil, nil, fmt.Errorf("sending %s request: %w", method, err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s response: %w", method, err)
	}

	var response Response
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !response.OK {
		return nil, nil, &Error{Code: response.ErrorCode, Message: response.Error}
	}
	return &response, reader, nil
}
