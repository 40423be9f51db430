// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"sync/atomic"
)

// Subscription is a push-style feed of appended events. Events are
// delivered as copies on C in append order. A subscriber that falls
// behind loses events rather than slowing the ingest pipeline; Dropped
// reports how many.
type Subscription struct {
	// C delivers appended events. Closed by Cancel.
	C <-chan Event

	channel chan Event
	dropped atomic.Uint64
	cancel  func()
}

// Dropped returns the number of events lost because the subscriber's
// channel was full at append time.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Cancel removes the subscription and closes C. Safe to call more than
// once.
func (s *Subscription) Cancel() { s.cancel() }

// offer performs the non-blocking send for one append. Called with the
// buffer's write lock held.
func (s *Subscription) offer(event Event) {
	select {
	case s.channel <- event:
	default:
		s.dropped.Add(1)
	}
}

// Subscribe registers a push subscriber with the given channel
// capacity. capacity <= 0 defaults to 64, enough to ride out a
// multi-window project switch without drops.
func (b *Buffer) Subscribe(capacity int) *Subscription {
	if capacity <= 0 {
		capacity = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++

	channel := make(chan Event, capacity)
	sub := &Subscription{C: channel, channel: channel}

	var cancelled bool
	sub.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		delete(b.subscribers, id)
		close(channel)
	}

	b.subscribers[id] = sub
	return sub
}

// Wait blocks until the buffer's last event ID exceeds sinceID or the
// context is done, and returns the last ID at that point. This is the
// long-poll primitive behind events.query with a wait budget: the
// caller re-queries after Wait returns.
func (b *Buffer) Wait(ctx context.Context, sinceID uint64) (uint64, error) {
	for {
		b.mu.RLock()
		lastID := b.lastID
		changed := b.changed
		b.mu.RUnlock()

		if lastID > sinceID {
			return lastID, nil
		}

		select {
		case <-ctx.Done():
			return lastID, ctx.Err()
		case <-changed:
		}
	}
}
