// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"testing"
	"time"
)

// chainEvent builds a correlated window event at the given depth with a
// timestamp offset in milliseconds from epoch.
func chainEvent(id uint64, correlationID string, depth uint32, offsetMS int64) *Event {
	return &Event{
		ID:             id,
		Category:       CategoryWindow,
		Type:           "move",
		Timestamp:      time.Unix(0, offsetMS*int64(time.Millisecond)).UTC(),
		Source:         SourceWM,
		CorrelationID:  correlationID,
		CausalityDepth: depth,
		Window:         &WindowPayload{WindowID: 7},
	}
}

func TestCausalityChainDepthsAndDuration(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(16)

	buffer.Append(chainEvent(1, "corr-1", 0, 100))
	buffer.Append(chainEvent(2, "corr-1", 1, 150))
	buffer.Append(chainEvent(3, "corr-1", 2, 220))

	chain, ok := buffer.CausalityChain("corr-1")
	if !ok {
		t.Fatal("CausalityChain: chain not found")
	}
	if chain.EventCount != 3 {
		t.Errorf("EventCount: got %d, want 3", chain.EventCount)
	}
	for i, want := range []uint32{0, 1, 2} {
		if chain.Events[i].CausalityDepth != want {
			t.Errorf("event %d depth: got %d, want %d", i, chain.Events[i].CausalityDepth, want)
		}
	}
	if chain.DurationMS != 120 {
		t.Errorf("DurationMS: got %d, want 120", chain.DurationMS)
	}
	if chain.Depth != 2 {
		t.Errorf("Depth: got %d, want 2", chain.Depth)
	}
	if chain.RootEventID != 1 {
		t.Errorf("RootEventID: got %d, want 1", chain.RootEventID)
	}
	if chain.Truncated {
		t.Error("Truncated: got true, want false")
	}
}

func TestCausalityChainTruncatedAfterRootEviction(t *testing.T) {
	t.Parallel()
	// Capacity 3: appending five events evicts the first two, including
	// the chain root.
	buffer := NewBuffer(3)

	buffer.Append(chainEvent(1, "corr-1", 0, 0))
	buffer.Append(chainEvent(2, "corr-1", 1, 10))
	buffer.Append(chainEvent(3, "corr-1", 2, 20))
	buffer.Append(windowEvent(4, 9, "focus"))
	buffer.Append(windowEvent(5, 9, "title"))

	chain, ok := buffer.CausalityChain("corr-1")
	if !ok {
		t.Fatal("CausalityChain: want partial chain, got not found")
	}
	if !chain.Truncated {
		t.Error("Truncated: got false, want true")
	}
	if chain.EventCount != 1 {
		t.Errorf("EventCount: got %d, want 1", chain.EventCount)
	}
	if chain.RootEventID != 3 {
		t.Errorf("RootEventID: got %d, want 3 (shallowest survivor)", chain.RootEventID)
	}
}

func TestCausalityChainNotFound(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(8)
	buffer.Append(windowEvent(1, 7, "new"))

	if _, ok := buffer.CausalityChain("no-such-chain"); ok {
		t.Error("CausalityChain for unknown ID: got ok, want not found")
	}
}

func TestCausalityChainBindingSummary(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(8)

	buffer.Append(&Event{
		ID: 1, Category: CategoryBinding, Type: "run",
		Timestamp: time.Unix(0, 0), Source: SourceWM,
		CorrelationID: "corr-2", CausalityDepth: 0,
		Binding: &BindingPayload{Command: "workspace number 3"},
	})
	buffer.Append(chainEvent(2, "corr-2", 1, 30))

	chain, ok := buffer.CausalityChain("corr-2")
	if !ok {
		t.Fatal("CausalityChain: chain not found")
	}
	want := `binding "workspace number 3": 2 events over 30ms`
	if chain.Summary != want {
		t.Errorf("Summary: got %q, want %q", chain.Summary, want)
	}
}
