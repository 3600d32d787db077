// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tomtom215/customreports/internal/metrics"
)

// EventType names a job lifecycle event.
type EventType string

const (
	EventActive    EventType = "active"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is published on every job state change. Progress events are
// emitted for a flow parent whenever one of its children completes.
type Event struct {
	Type    EventType       `json:"type"`
	Queue   string          `json:"queue"`
	JobID   string          `json:"jobId"`
	Parents []Ref           `json:"parents,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Completed and Total count a parent's children.
	Completed int `json:"completed,omitempty"`
	Total     int `json:"total,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Ref returns the job the event is about.
func (e Event) Ref() Ref {
	return Ref{Queue: e.Queue, ID: e.JobID}
}

// DefaultEventBuffer is the per-subscriber channel size.
const DefaultEventBuffer = 64

// EventBus fans events out to in-process subscribers. Dispatch never
// blocks: a subscriber whose buffer is full misses the event, and the
// miss is counted in metrics.EventsDropped.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	next   uint64
	buffer int
	closed bool
}

// NewEventBus returns a bus. A non-positive buffer uses DefaultEventBuffer.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &EventBus{subs: make(map[uint64]chan Event), buffer: buffer}
}

// Subscribe returns a channel receiving every later event and a function
// that unsubscribes and closes it. The function may be called repeatedly.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Dispatch delivers e to every subscriber without blocking.
func (b *EventBus) Dispatch(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later subscriptions receive a closed
// channel.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
