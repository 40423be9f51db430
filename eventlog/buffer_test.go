// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"testing"
	"time"
)

// windowEvent builds a minimal window event for buffer tests.
func windowEvent(id uint64, windowID int64, eventType string) *Event {
	return &Event{
		ID:        id,
		Category:  CategoryWindow,
		Type:      eventType,
		Timestamp: time.Unix(0, int64(id)*int64(time.Millisecond)).UTC(),
		Source:    SourceWM,
		Window:    &WindowPayload{WindowID: windowID},
	}
}

func TestBufferRetainsMostRecentAtCapacity(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(500)

	for id := uint64(1); id <= 700; id++ {
		buffer.Append(windowEvent(id, 1, "focus"))
	}

	if got := buffer.Len(); got != 500 {
		t.Fatalf("Len: got %d, want 500", got)
	}
	if got := buffer.OldestID(); got != 201 {
		t.Errorf("OldestID: got %d, want 201", got)
	}
	if got := buffer.LastID(); got != 700 {
		t.Errorf("LastID: got %d, want 700", got)
	}

	// The retained range must be exactly 201..700, ascending, no gaps.
	result := buffer.Query(0, MaxQueryLimit, Filter{})
	if len(result.Events) != 500 {
		t.Fatalf("Query returned %d events, want 500", len(result.Events))
	}
	for i, event := range result.Events {
		want := uint64(201 + i)
		if event.ID != want {
			t.Fatalf("event %d: ID %d, want %d", i, event.ID, want)
		}
	}
	if !result.Truncated {
		t.Error("Query since_id 0 after eviction: Truncated false, want true")
	}
}

func TestBufferQuerySinceID(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(16)

	for id := uint64(1); id <= 10; id++ {
		buffer.Append(windowEvent(id, 1, "focus"))
	}

	result := buffer.Query(7, 0, Filter{})
	if len(result.Events) != 3 {
		t.Fatalf("Query(7): got %d events, want 3", len(result.Events))
	}
	if result.Events[0].ID != 8 || result.Events[2].ID != 10 {
		t.Errorf("Query(7): got IDs %d..%d, want 8..10",
			result.Events[0].ID, result.Events[2].ID)
	}
	if result.Truncated {
		t.Error("Query(7) with nothing evicted: Truncated true, want false")
	}
}

func TestBufferQueryLimitClamped(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(16)

	for id := uint64(1); id <= 10; id++ {
		buffer.Append(windowEvent(id, 1, "focus"))
	}

	result := buffer.Query(0, 4, Filter{})
	if len(result.Events) != 4 {
		t.Errorf("Query limit 4: got %d events, want 4", len(result.Events))
	}

	// A limit above the cap behaves as the cap.
	result = buffer.Query(0, MaxQueryLimit+100, Filter{})
	if len(result.Events) != 10 {
		t.Errorf("Query oversized limit: got %d events, want 10", len(result.Events))
	}
}

func TestBufferQueryFilters(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(32)

	buffer.Append(windowEvent(1, 7, "new"))
	buffer.Append(windowEvent(2, 9, "focus"))
	buffer.Append(&Event{
		ID: 3, Category: CategoryWorkspace, Type: "focus",
		Timestamp: time.Unix(0, 0), Source: SourceWM,
		Workspace: &WorkspacePayload{Name: "3", Number: 3},
	})
	buffer.Append(&Event{
		ID: 4, Category: CategorySystem, Type: "gap",
		Timestamp: time.Unix(0, 0), Source: SourceDaemon,
		System: &SystemPayload{Message: "subscription gap"},
	})

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []uint64
	}{
		{"category", Filter{Categories: []Category{CategoryWindow}}, []uint64{1, 2}},
		{"type", Filter{Types: []string{"focus"}}, []uint64{2, 3}},
		{"source", Filter{Source: SourceDaemon}, []uint64{4}},
		{"window_id", Filter{WindowID: ptrInt64(9)}, []uint64{2}},
		{"window_id excludes non-window", Filter{WindowID: ptrInt64(3)}, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := buffer.Query(0, 0, test.filter)
			if len(result.Events) != len(test.wantIDs) {
				t.Fatalf("got %d events, want %d", len(result.Events), len(test.wantIDs))
			}
			for i, want := range test.wantIDs {
				if result.Events[i].ID != want {
					t.Errorf("event %d: ID %d, want %d", i, result.Events[i].ID, want)
				}
			}
		})
	}
}

func TestBufferRecent(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(8)

	for id := uint64(1); id <= 12; id++ {
		buffer.Append(windowEvent(id, 1, "focus"))
	}

	recent := buffer.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Recent(3): got %d events, want 3", len(recent))
	}
	if recent[0].ID != 10 || recent[2].ID != 12 {
		t.Errorf("Recent(3): got IDs %d..%d, want 10..12", recent[0].ID, recent[2].ID)
	}
}

func TestBufferEmptyQuery(t *testing.T) {
	t.Parallel()
	buffer := NewBuffer(8)

	result := buffer.Query(0, 0, Filter{})
	if len(result.Events) != 0 {
		t.Errorf("empty buffer query: got %d events, want 0", len(result.Events))
	}
	if result.Truncated {
		t.Error("empty buffer query: Truncated true, want false")
	}
	if buffer.OldestID() != 0 {
		t.Errorf("empty buffer OldestID: got %d, want 0", buffer.OldestID())
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := windowEvent(1, 7, "new")
	if err := valid.Validate(); err != nil {
		t.Errorf("valid event: unexpected error %v", err)
	}

	mismatched := windowEvent(2, 7, "new")
	mismatched.Category = CategoryBinding
	if err := mismatched.Validate(); err == nil {
		t.Error("category/payload mismatch: want error, got nil")
	}

	empty := &Event{ID: 3, Category: CategoryWindow}
	if err := empty.Validate(); err == nil {
		t.Error("no payload: want error, got nil")
	}

	double := windowEvent(4, 7, "new")
	double.System = &SystemPayload{Message: "x"}
	if err := double.Validate(); err == nil {
		t.Error("two payloads: want error, got nil")
	}
}

func ptrInt64(v int64) *int64 { return &v }
