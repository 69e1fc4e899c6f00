package stream

import (
	"sync"
	"testing"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus(nil)

	var mu sync.Mutex
	got := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		i := i
		b.Subscribe(func(Event) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	b.Publish(Event{Type: EventConnected})

	if len(got) != 2 {
		t.Errorf("delivered to %d handlers, want 2", len(got))
	}
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBus(nil)

	delivered := 0
	b.Subscribe(func(Event) { panic("bad subscriber") })
	b.Subscribe(func(Event) { delivered++ })

	b.Publish(Event{Type: EventUpdate, Update: &Update{Channel: "ticker"}})
	b.Publish(Event{Type: EventUpdate, Update: &Update{Channel: "ticker"}})

	if delivered != 2 {
		t.Errorf("healthy subscriber got %d events, want 2 (panic must not break delivery)", delivered)
	}
}

func TestBus_Len(t *testing.T) {
	b := NewBus(nil)
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	b.Subscribe(func(Event) {})
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}
