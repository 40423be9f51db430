// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import "sync"

// DefaultCapacity is the default number of events the buffer retains.
// 500 events covers several minutes of busy desktop activity while
// keeping worst-case memory well under a megabyte.
const DefaultCapacity = 500

// MaxQueryLimit caps the number of events a single query returns, to
// bound response size regardless of what the caller asks for.
const MaxQueryLimit = 500

// Buffer is a fixed-capacity circular event store with FIFO eviction.
// When full, appending evicts the oldest event unconditionally — even
// if an open trace or chain still references it. Readers must tolerate
// gaps (see Chain.Truncated and QueryResult.Truncated).
//
// Concurrency: the ingest pipeline is the only writer; RPC handlers are
// concurrent readers. A read-write lock gives each query a consistent
// snapshot without blocking other readers. Append and query never
// suspend — both are in-memory and lock-bounded.
type Buffer struct {
	mu       sync.RWMutex
	slots    []*Event
	head     int // next write position
	count    int
	lastID   uint64
	oldestID uint64

	// changed is closed and replaced on every append, broadcasting to
	// long-poll waiters.
	changed chan struct{}

	subscribers map[int]*Subscription
	nextSubID   int
}

// NewBuffer creates a buffer with the given capacity. capacity <= 0
// falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		slots:       make([]*Event, capacity),
		changed:     make(chan struct{}),
		subscribers: make(map[int]*Subscription),
	}
}

// Capacity returns the fixed capacity of the buffer.
func (b *Buffer) Capacity() int { return len(b.slots) }

// Append stores an event, evicting the oldest if the buffer is full,
// and fans the event out to subscribers. Never blocks and never fails.
//
// The event's ID must already be assigned by the ingest sequencer and
// must exceed every previously appended ID; the single-producer
// pipeline guarantees this. The buffer takes ownership of the event —
// callers must not mutate it after Append returns.
func (b *Buffer) Append(event *Event) {
	b.mu.Lock()

	b.slots[b.head] = event
	b.head = (b.head + 1) % len(b.slots)
	if b.count < len(b.slots) {
		b.count++
	}
	b.lastID = event.ID
	if oldest := b.slots[b.oldestIndex()]; oldest != nil {
		b.oldestID = oldest.ID
	}

	// Broadcast to long-poll waiters.
	close(b.changed)
	b.changed = make(chan struct{})

	// Fan out to push subscribers. Sends are non-blocking: a slow
	// subscriber loses events and its drop counter records how many.
	for _, sub := range b.subscribers {
		sub.offer(*event)
	}

	b.mu.Unlock()
}

// oldestIndex returns the slot index of the oldest retained event.
// Must be called with b.mu held and count > 0.
func (b *Buffer) oldestIndex() int {
	return (b.head - b.count + len(b.slots)) % len(b.slots)
}

// LastID returns the highest event ID appended so far, or 0.
func (b *Buffer) LastID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastID
}

// OldestID returns the ID of the oldest retained event, or 0 when the
// buffer is empty.
func (b *Buffer) OldestID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.count == 0 {
		return 0
	}
	return b.oldestID
}

// Len returns the number of events currently retained.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// QueryResult is the outcome of a buffer query.
type QueryResult struct {
	// Events are the matching events in ascending ID order.
	Events []Event `json:"events"`

	// LastID is the highest event ID in the buffer at query time,
	// regardless of filters. Pass it as since_id on the next query to
	// continue from here.
	LastID uint64 `json:"last_event_id"`

	// OldestID is the oldest retained event ID at query time.
	OldestID uint64 `json:"oldest_event_id"`

	// Truncated is true when since_id referenced events that have
	// already been evicted: the caller missed events it can never get
	// back.
	Truncated bool `json:"truncated,omitempty"`
}

// Query returns events with ID > sinceID that pass the filter, in
// ascending ID order, up to limit entries. limit <= 0 or above
// MaxQueryLimit is clamped to MaxQueryLimit.
//
// Evicted events are silently absent; Truncated flags when sinceID
// predates the oldest retained event (and events existed in between).
func (b *Buffer) Query(sinceID uint64, limit int, filter Filter) QueryResult {
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	result := QueryResult{
		Events:   []Event{},
		LastID:   b.lastID,
		OldestID: 0,
	}
	if b.count == 0 {
		return result
	}
	result.OldestID = b.oldestID
	// sinceID+1 is the first ID the caller expects; anything older than
	// the oldest retained event is gone.
	if sinceID+1 < b.oldestID {
		result.Truncated = true
	}

	for i := 0; i < b.count && len(result.Events) < limit; i++ {
		event := b.slots[(b.oldestIndex()+i)%len(b.slots)]
		if event.ID <= sinceID {
			continue
		}
		if !filter.Matches(event) {
			continue
		}
		result.Events = append(result.Events, *event)
	}
	return result
}

// Get returns the retained event with the given ID. ok is false when
// the ID was never assigned or the event has been evicted.
func (b *Buffer) Get(id uint64) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 || id < b.oldestID || id > b.lastID {
		return Event{}, false
	}
	// IDs are strictly increasing but not necessarily dense (the
	// sequencer may skip), so scan rather than index arithmetic.
	for i := 0; i < b.count; i++ {
		event := b.slots[(b.oldestIndex()+i)%len(b.slots)]
		if event.ID == id {
			return *event, true
		}
	}
	return Event{}, false
}

// Recent returns up to limit of the newest retained events in ascending
// ID order. Used by the diagnostic snapshot assembler.
func (b *Buffer) Recent(limit int) []Event {
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.count
	if n > limit {
		n = limit
	}
	events := make([]Event, 0, n)
	for i := b.count - n; i < b.count; i++ {
		events = append(events, *b.slots[(b.oldestIndex()+i)%len(b.slots)])
	}
	return events
}
