// Package bus provides the per-session event bus that connects the page,
// the chat service and the avatar loop.
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

const (
	// Page activity events
	EventTypePageFocus    EventType = "page.focus"
	EventTypePageInput    EventType = "page.input"
	EventTypePageActivity EventType = "page.activity"
	EventTypePointerLeave EventType = "page.pointer_leave"
	EventTypePageUnload   EventType = "page.unload"
	EventTypeModelLoaded  EventType = "page.model_loaded"
	EventTypeModelFailed  EventType = "page.model_failed"

	// Chat events
	EventTypeMessageAppended EventType = "chat.message_appended"
	EventTypeTyping          EventType = "chat.typing"
	EventTypeChatError       EventType = "chat.error"

	// Avatar events
	EventTypeAvatarStateChanged EventType = "avatar.state_changed"

	// Voice events
	EventTypeRecordingStarted EventType = "voice.recording_started"
	EventTypeRecordingStopped EventType = "voice.recording_stopped"
	EventTypeTranscript       EventType = "voice.transcript"
	EventTypeSpeakingStarted  EventType = "voice.speaking_started"
	EventTypeSpeakingStopped  EventType = "voice.speaking_stopped"
	EventTypeAlert            EventType = "voice.alert"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// String returns Data[key] as a string, or "".
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Bool returns Data[key] as a bool, or false.
func (e Event) Bool(key string) bool {
	b, _ := e.Data[key].(bool)
	return b
}

// Float returns Data[key] as a float64. Integer values are converted.
func (e Event) Float(key string) (float64, bool) {
	switch v := e.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers without waiting.
// Delivery order across Publish calls is not guaranteed.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete.
// Successive PublishSync calls from one goroutine are delivered in order.
func (b *EventBus) PublishSync(event Event) {
	handlers := b.snapshot(event.Type)

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}
