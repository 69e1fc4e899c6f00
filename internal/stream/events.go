package stream

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// EventType classifies supervisor notifications.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventDisconnected  EventType = "disconnected"
	EventSimulatedMode EventType = "simulated_mode"
	EventUpdate        EventType = "update"
)

// Update is the normalized payload of an EventUpdate.
type Update struct {
	Channel   string          `json:"channel"` // "account", "position", "trade", "ticker"
	Market    string          `json:"market,omitempty"`
	Price     float64         `json:"price,omitempty"`
	Synthetic bool            `json:"synthetic,omitempty"` // true while in SIMULATED mode
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Event is delivered to subscribers in arrival order.
type Event struct {
	Type   EventType `json:"type"`
	Update *Update   `json:"update,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Handler receives supervisor events.
type Handler func(Event)

// Bus fans events out to registered handlers. Each invocation is guarded by
// recover so one panicking subscriber cannot break delivery to the rest.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	log      *zap.Logger
}

// NewBus creates an empty event bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// Subscribe registers a handler. Handlers cannot be removed individually;
// the bus lives exactly as long as its supervisor.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every handler, preserving arrival order.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for i, h := range handlers {
		b.invoke(i, h, ev)
	}
}

func (b *Bus) invoke(idx int, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked, delivery continues",
				zap.Int("subscriber", idx),
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r))
		}
	}()
	h(ev)
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
