// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package wmipc

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sightline-wm/sightline/lib/testutil"
)

// fakeWM is a minimal in-process WM IPC server: canned replies per
// message type, and an event feed for subscription connections.
type fakeWM struct {
	t        *testing.T
	listener net.Listener
	replies  map[MessageType]any

	// events receives payloads to push to the most recent subscriber.
	events chan RawEvent
}

func newFakeWM(t *testing.T) *fakeWM {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "wm.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	wm := &fakeWM{
		t:        t,
		listener: listener,
		replies:  make(map[MessageType]any),
		events:   make(chan RawEvent, 16),
	}
	t.Cleanup(func() { listener.Close() })
	go wm.serve()
	return wm
}

func (wm *fakeWM) socketPath() string { return wm.listener.Addr().String() }

func (wm *fakeWM) serve() {
	for {
		conn, err := wm.listener.Accept()
		if err != nil {
			return
		}
		go wm.handle(conn)
	}
}

func (wm *fakeWM) handle(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return
		}
		messageType := MessageType(frame.Type)
		if messageType == MessageSubscribe {
			payload, _ := json.Marshal(subscribeReply{Success: true})
			if err := writeFrame(conn, MessageSubscribe, payload); err != nil {
				return
			}
			// Switch to event-push mode for this connection.
			for event := range wm.events {
				if err := writeFrame(conn, MessageType(uint32(event.Type)|eventFlag), event.Payload); err != nil {
					return
				}
			}
			return
		}
		reply, ok := wm.replies[messageType]
		if !ok {
			reply = []any{}
		}
		payload, err := json.Marshal(reply)
		if err != nil {
			wm.t.Errorf("fakeWM marshal reply: %v", err)
			return
		}
		if err := writeFrame(conn, messageType, payload); err != nil {
			return
		}
	}
}

func TestClientGetOutputs(t *testing.T) {
	t.Parallel()
	wm := newFakeWM(t)
	wm.replies[MessageGetOutputs] = []Output{
		{Name: "eDP-1", Active: true, Primary: true, CurrentWorkspace: "1"},
		{Name: "DP-3", Active: true, CurrentWorkspace: "5"},
	}

	client, err := Dial(wm.socketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	outputs, err := client.GetOutputs(context.Background())
	if err != nil {
		t.Fatalf("GetOutputs: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("got %d outputs, want 2", len(outputs))
	}
	if outputs[0].Name != "eDP-1" || !outputs[0].Primary {
		t.Errorf("first output: got %+v", outputs[0])
	}
}

func TestClientGetMarksAndVersion(t *testing.T) {
	t.Parallel()
	wm := newFakeWM(t)
	wm.replies[MessageGetMarks] = []string{"project:mail", "scratch"}
	wm.replies[MessageGetVersion] = Version{Major: 1, Minor: 10, HumanReadable: "sway 1.10"}

	client, err := Dial(wm.socketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	marks, err := client.GetMarks(context.Background())
	if err != nil {
		t.Fatalf("GetMarks: %v", err)
	}
	if len(marks) != 2 || marks[0] != "project:mail" {
		t.Errorf("GetMarks: got %v", marks)
	}

	version, err := client.GetVersion(context.Background())
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if version.HumanReadable != "sway 1.10" {
		t.Errorf("GetVersion: got %q", version.HumanReadable)
	}
}

func TestClientGetTreeWalk(t *testing.T) {
	t.Parallel()
	wm := newFakeWM(t)
	wm.replies[MessageGetTree] = Node{
		ID: 1, Type: "root",
		Nodes: []*Node{
			{ID: 2, Type: "output", Name: "eDP-1", Nodes: []*Node{
				{ID: 3, Type: "workspace", Name: "1", Num: 1, Nodes: []*Node{
					{ID: 10, Type: "con", AppID: "firefox", PID: 4242},
				}},
			}},
		},
	}

	client, err := Dial(wm.socketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	tree, err := client.GetTree(context.Background())
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}

	var appIDs []string
	tree.Walk(func(node *Node) bool {
		if node.AppID != "" {
			appIDs = append(appIDs, node.AppID)
		}
		return true
	})
	if len(appIDs) != 1 || appIDs[0] != "firefox" {
		t.Errorf("Walk found app IDs %v, want [firefox]", appIDs)
	}
}

func TestSubscribeDeliversEvents(t *testing.T) {
	t.Parallel()
	wm := newFakeWM(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := Subscribe(ctx, wm.socketPath(), EventWindow, EventWorkspace)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	payload, _ := json.Marshal(WindowEvent{
		Change:    "new",
		Container: &Node{ID: 42, Type: "con", AppID: "kitty"},
	})
	testutil.RequireSend(t, wm.events, RawEvent{Type: EventWindow, Payload: payload},
		5*time.Second, "pushing window event")

	event := testutil.RequireReceive(t, stream.C, 5*time.Second, "waiting for window event")
	if event.Type != EventWindow {
		t.Errorf("event type: got %d, want %d", event.Type, EventWindow)
	}
	var decoded WindowEvent
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if decoded.Container.AppID != "kitty" {
		t.Errorf("container app_id: got %q, want %q", decoded.Container.AppID, "kitty")
	}
}

func TestSubscribeReaderExitsWhenFeedFullOnCancel(t *testing.T) {
	t.Parallel()
	wm := newFakeWM(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := Subscribe(ctx, wm.socketPath(), EventWindow)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	// Fill the feed past its capacity without consuming, so the reader
	// ends up parked on a send with no receiver when the cancel lands.
	payload, _ := json.Marshal(WindowEvent{Change: "title", Container: &Node{ID: 7, Type: "con"}})
	for i := 0; i < 280; i++ {
		testutil.RequireSend(t, wm.events, RawEvent{Type: EventWindow, Payload: payload},
			5*time.Second, "pushing window event")
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(stream.C) < cap(stream.C) {
		if time.Now().After(deadline) {
			t.Fatal("feed channel never filled")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	cancel()

	// The reader must exit and close C instead of staying parked on
	// the full channel; the closure becomes observable once the
	// buffered events drain.
	drained := 0
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream.C:
			if !ok {
				return
			}
			drained++
		case <-timeout:
			t.Fatalf("stream channel still open after cancel, drained %d events", drained)
		}
	}
}

func TestSubscribeStreamEndsOnClose(t *testing.T) {
	t.Parallel()
	wm := newFakeWM(t)

	stream, err := Subscribe(context.Background(), wm.socketPath(), EventWindow)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	stream.Close()

	// C must close once the connection drops.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel did not close after Close")
		}
	}
}
