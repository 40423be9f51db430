// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package wmipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// magic is the six-byte prefix on every IPC frame, in both directions.
var magic = [6]byte{'i', '3', '-', 'i', 'p', 'c'}

// headerLength is the fixed frame header size: 6 bytes magic + 4 bytes
// payload length + 4 bytes message type, both little-endian uint32.
const headerLength = 14

// maxPayloadLength caps a single frame's payload. 16 MB is generous:
// the largest real payload is a GET_TREE reply, typically well under
// 1 MB even on crowded desktops.
const maxPayloadLength = 16 * 1024 * 1024

// MessageType identifies a request (and its reply) on the IPC socket.
type MessageType uint32

const (
	MessageRunCommand    MessageType = 0
	MessageGetWorkspaces MessageType = 1
	MessageSubscribe     MessageType = 2
	MessageGetOutputs    MessageType = 3
	MessageGetTree       MessageType = 4
	MessageGetMarks      MessageType = 5
	MessageGetBarConfig  MessageType = 6
	MessageGetVersion    MessageType = 7
)

// eventFlag is set on the type field of frames that carry subscription
// events rather than request replies.
const eventFlag uint32 = 1 << 31

// EventType identifies a subscription event category on the wire.
type EventType uint32

const (
	EventWorkspace EventType = 0
	EventOutput    EventType = 1
	EventMode      EventType = 2
	EventWindow    EventType = 3
	EventBarconfig EventType = 4
	EventBinding   EventType = 5
	EventShutdown  EventType = 6
	EventTick      EventType = 7
)

// Name returns the subscription name for the event type, as sent in
// the SUBSCRIBE payload.
func (t EventType) Name() string {
	switch t {
	case EventWorkspace:
		return "workspace"
	case EventOutput:
		return "output"
	case EventMode:
		return "mode"
	case EventWindow:
		return "window"
	case EventBarconfig:
		return "barconfig_update"
	case EventBinding:
		return "binding"
	case EventShutdown:
		return "shutdown"
	case EventTick:
		return "tick"
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// Frame is one decoded IPC frame. IsEvent distinguishes subscription
// events from request replies; Type is the message type for replies
// and the event type for events.
type Frame struct {
	IsEvent bool
	Type    uint32
	Payload []byte
}

// writeFrame writes one framed message: magic, payload length, type,
// payload.
func writeFrame(w io.Writer, messageType MessageType, payload []byte) error {
	var header [headerLength]byte
	copy(header[0:6], magic[:])
	binary.LittleEndian.PutUint32(header[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[10:14], uint32(messageType))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// readFrame reads one framed message. Returns an error if the stream
// is malformed or the payload exceeds maxPayloadLength.
func readFrame(r io.Reader) (Frame, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	if [6]byte(header[0:6]) != magic {
		return Frame{}, fmt.Errorf("bad frame magic %q", header[0:6])
	}
	payloadLength := binary.LittleEndian.Uint32(header[6:10])
	if payloadLength > maxPayloadLength {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	rawType := binary.LittleEndian.Uint32(header[10:14])

	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}

	return Frame{
		IsEvent: rawType&eventFlag != 0,
		Type:    rawType &^ eventFlag,
		Payload: payload,
	}, nil
}
