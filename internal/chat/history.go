package chat

import (
	"sync"
	"time"
)

// HistoryConfig configures the History behavior.
type HistoryConfig struct {
	// MaxMessages is the maximum number of messages to retain (default: 200)
	MaxMessages int
}

// DefaultHistoryConfig returns sensible defaults for the message log.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{MaxMessages: 200}
}

// History is the in-memory message log of one page session.
type History struct {
	mu           sync.RWMutex
	messages     []Message
	lastActivity time.Time
	config       HistoryConfig
}

// NewHistory creates an empty log.
func NewHistory(config HistoryConfig) *History {
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultHistoryConfig().MaxMessages
	}
	return &History{
		messages:     make([]Message, 0, 16),
		lastActivity: time.Now(),
		config:       config,
	}
}

// Append records msg, trimming the oldest entries beyond MaxMessages.
func (h *History) Append(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	h.lastActivity = time.Now()

	if len(h.messages) > h.config.MaxMessages {
		h.messages = h.messages[len(h.messages)-h.config.MaxMessages:]
	}
}

// Messages returns a copy of the log.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Find returns the message with the given ID.
func (h *History) Find(id string) (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.messages {
		if m.ID.String() == id {
			return m, true
		}
	}
	return Message{}, false
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]Message, 0, 16)
}

// LastActivity returns when the last message was appended.
func (h *History) LastActivity() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActivity
}
