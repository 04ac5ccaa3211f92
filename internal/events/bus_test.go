package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{})

	bus.Subscribe(EventStepCompleted, func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		close(done)
	})

	bus.Publish(EventStepCompleted, map[string]any{"skill_id": "build"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber did not receive event")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	if received[0].Data["skill_id"] != "build" {
		t.Errorf("event data = %v, want skill_id=build", received[0].Data)
	}
}

func TestBusIgnoresOtherTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(EventGateCleared, func(ev Event) { got <- ev })

	bus.Publish(EventStepCompleted, nil)

	select {
	case ev := <-got:
		t.Errorf("subscriber received event of wrong type: %v", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 1)
	unsubscribe := bus.Subscribe(EventRunCompleted, func(ev Event) { got <- ev })
	unsubscribe()

	bus.Publish(EventRunCompleted, nil)

	select {
	case <-got:
		t.Errorf("unsubscribed subscriber received event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusSubscriberPanicDoesNotPropagate(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	done := make(chan struct{})
	bus.Subscribe(EventRunFailed, func(Event) {
		defer close(done)
		panic("subscriber bug")
	})

	bus.Publish(EventRunFailed, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never ran")
	}
	// A second publish must still work.
	bus.Publish(EventRunFailed, nil)
}
