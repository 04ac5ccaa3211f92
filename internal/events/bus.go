// Package events provides the in-process notification bus and the JSONL
// audit export for run event logs.
package events

import (
	"sync"
	"time"
)

// EventType names a run state change broadcast on the bus.
type EventType string

const (
	EventStepCompleted   EventType = "step_completed"
	EventStepSkipped     EventType = "step_skipped"
	EventStepFailed      EventType = "step_failed"
	EventPhaseCompleted  EventType = "phase_completed"
	EventPhaseAdvanced   EventType = "phase_advanced"
	EventGateCleared     EventType = "gate_cleared"
	EventGateAutoCleared EventType = "gate_auto_cleared"
	EventGateRejected    EventType = "gate_rejected"
	EventRunBlocked      EventType = "run_blocked"
	EventRunCompleted    EventType = "run_completed"
	EventRunFailed       EventType = "run_failed"
)

// Event is one bus notification. The authoritative record is the run's
// append-only log; bus delivery is best-effort.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber receives events for the type it subscribed to.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe fan-out. Each subscriber gets a
// buffered channel; a full channel drops the event rather than stalling a
// transition.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function. Delivery happens on a dedicated goroutine; a panicking
// subscriber is recovered so it cannot take the bus down.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish delivers to every subscriber of the type without blocking.
func (b *Bus) Publish(eventType EventType, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// subscriber is behind; drop rather than stall the engine
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
