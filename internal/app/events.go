package app

import (
	"sync"
	"time"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// EventType identifies what an Event reports
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
	EventState    EventType = "state" // task or orchestrator state change
)

// Event is delivered to subscribers of a task or of the service-wide hub
type Event struct {
	Type      EventType        `json:"type"`
	TaskID    string           `json:"task_id,omitempty"`
	Package   string           `json:"package,omitempty"`
	Progress  *domain.Progress `json:"progress,omitempty"`
	File      string           `json:"file,omitempty"`
	Message   string           `json:"message,omitempty"`
	State     string           `json:"state,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventHandler receives events synchronously. Handlers must not block for long.
type EventHandler func(Event)

// EventBus fans events out to any number of subscribers
type EventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
	order    []int
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[int]EventHandler)}
}

// Subscribe registers a handler and returns a function that removes it
func (b *EventBus) Subscribe(handler EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers an event to every subscriber in subscription order
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len returns the number of subscribers
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
