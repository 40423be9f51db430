// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import "fmt"

// Chain is a correlation chain reconstructed from buffer contents. It
// is a derived view: nothing beyond the member events themselves is
// persisted, so a chain whose members have been evicted shrinks and
// eventually disappears.
type Chain struct {
	// CorrelationID identifies the chain.
	CorrelationID string `json:"correlation_id"`

	// RootEventID is the ID of the depth-0 event, or of the shallowest
	// surviving member when the root has been evicted.
	RootEventID uint64 `json:"root_event_id"`

	// EventCount is the number of surviving member events.
	EventCount int `json:"event_count"`

	// DurationMS is the timestamp span from first to last surviving
	// member, in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Depth is the maximum causality depth observed among survivors.
	Depth uint32 `json:"depth"`

	// Truncated is true when the depth-0 root is no longer in the
	// buffer: the chain is a partial view.
	Truncated bool `json:"truncated"`

	// Summary is a one-line human-readable description.
	Summary string `json:"summary"`

	// Events are the surviving members in ascending ID order.
	Events []Event `json:"events"`
}

// CausalityChain reconstructs the chain for a correlation ID by walking
// the buffer. Returns false when no retained event carries the ID.
//
// If the root event (causality depth 0) has already been evicted, the
// partial chain is returned with Truncated set — a non-empty truncated
// result, never an empty one, as long as at least one member survives.
func (b *Buffer) CausalityChain(correlationID string) (Chain, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	chain := Chain{
		CorrelationID: correlationID,
		Events:        []Event{},
	}

	rootSeen := false
	for i := 0; i < b.count; i++ {
		event := b.slots[(b.oldestIndex()+i)%len(b.slots)]
		if event.CorrelationID != correlationID {
			continue
		}
		if event.CausalityDepth == 0 {
			rootSeen = true
		}
		if event.CausalityDepth > chain.Depth {
			chain.Depth = event.CausalityDepth
		}
		chain.Events = append(chain.Events, *event)
	}

	if len(chain.Events) == 0 {
		return Chain{}, false
	}

	chain.EventCount = len(chain.Events)
	chain.RootEventID = chain.Events[0].ID
	chain.Truncated = !rootSeen

	first := chain.Events[0].Timestamp
	last := chain.Events[len(chain.Events)-1].Timestamp
	chain.DurationMS = last.Sub(first).Milliseconds()

	chain.Summary = summarizeChain(chain)
	return chain, true
}

// summarizeChain builds the one-line description shown by list views:
// the root event's category and type, member count, and span.
func summarizeChain(chain Chain) string {
	root := chain.Events[0]
	label := fmt.Sprintf("%s:%s", root.Category, root.Type)
	if root.Category == CategoryBinding && root.Binding != nil && root.Binding.Command != "" {
		label = fmt.Sprintf("binding %q", root.Binding.Command)
	}
	summary := fmt.Sprintf("%s: %d events over %dms", label, chain.EventCount, chain.DurationMS)
	if chain.Truncated {
		summary += " (root evicted)"
	}
	return summary
}
