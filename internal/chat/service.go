package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/bus"
)

// Asker answers questions. *Client implements it.
type Asker interface {
	Ask(ctx context.Context, question string) (*Response, error)
}

// ServiceConfig holds the user-facing texts of the chat service.
type ServiceConfig struct {
	Welcome     string // first assistant message, empty for none
	NoAnswer    string // shown when the API returns an empty answer
	ErrorNotice string // system message after a failed request
}

// DefaultServiceConfig returns the stock texts.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Welcome:     "Hello! I am your virtual consultant. Ask me anything about our documents.",
		NoAnswer:    "No answer",
		ErrorNotice: "An error occurred while contacting the server.",
	}
}

// Service runs the question/answer exchange of one page. One question is
// answered at a time.
type Service struct {
	asker   Asker
	history *History
	config  ServiceConfig
	logger  zerolog.Logger

	processing atomic.Bool

	mu          sync.RWMutex
	onMessage   []func(Message)
	onTyping    []func(bool)
	onError     []func(question string, err error)
	onAssistant func(Message)
}

// NewService creates a chat service.
func NewService(asker Asker, history *History, config ServiceConfig, logger zerolog.Logger) *Service {
	if history == nil {
		history = NewHistory(DefaultHistoryConfig())
	}
	return &Service{
		asker:   asker,
		history: history,
		config:  config,
		logger:  logger.With().Str("component", "chat").Logger(),
	}
}

// OnMessage registers fn to be called synchronously after every append.
func (s *Service) OnMessage(fn func(Message)) {
	s.mu.Lock()
	s.onMessage = append(s.onMessage, fn)
	s.mu.Unlock()
}

// OnTyping registers fn for typing indicator changes.
func (s *Service) OnTyping(fn func(bool)) {
	s.mu.Lock()
	s.onTyping = append(s.onTyping, fn)
	s.mu.Unlock()
}

// OnError registers fn for failed requests.
func (s *Service) OnError(fn func(question string, err error)) {
	s.mu.Lock()
	s.onError = append(s.onError, fn)
	s.mu.Unlock()
}

// SetAssistantHandler sets the callback for answers from the API.
func (s *Service) SetAssistantHandler(fn func(Message)) {
	s.mu.Lock()
	s.onAssistant = fn
	s.mu.Unlock()
}

// Publish forwards message and typing notifications to b. Message events
// are delivered synchronously so listeners observe them in log order.
func (s *Service) Publish(b *bus.EventBus) {
	s.OnMessage(func(m Message) {
		b.PublishSync(bus.Event{
			Type: bus.EventTypeMessageAppended,
			Data: map[string]any{
				"id":      m.ID.String(),
				"role":    string(m.Role),
				"welcome": m.Welcome,
				"message": m,
			},
		})
	})
	s.OnTyping(func(typing bool) {
		b.Publish(bus.Event{Type: bus.EventTypeTyping, Data: map[string]any{"typing": typing}})
	})
	s.OnError(func(question string, err error) {
		b.Publish(bus.Event{Type: bus.EventTypeChatError, Data: map[string]any{
			"question": question,
			"error":    err.Error(),
		}})
	})
}

// History returns the message log.
func (s *Service) History() *History {
	return s.history
}

// Processing reports whether a question is in flight.
func (s *Service) Processing() bool {
	return s.processing.Load()
}

// Welcome appends the welcome message, if configured.
func (s *Service) Welcome() {
	if s.config.Welcome == "" {
		return
	}
	msg := NewMessage(RoleAssistant, s.config.Welcome)
	msg.Welcome = true
	s.append(msg)
}

// Send asks question and appends both sides of the exchange. On failure a
// system message is appended and the error is returned.
func (s *Service) Send(ctx context.Context, question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ErrEmptyQuestion
	}
	if !s.processing.CompareAndSwap(false, true) {
		return Message{}, ErrBusy
	}
	defer s.processing.Store(false)

	s.append(NewMessage(RoleUser, question))
	return s.answer(ctx, question)
}

// AppendExchange records a question and answer that were produced
// elsewhere, e.g. by the voice round trip.
func (s *Service) AppendExchange(question, answer string) Message {
	s.append(NewMessage(RoleUser, question))
	msg := NewMessage(RoleAssistant, answer)
	s.append(msg)
	return msg
}

// Clear empties the message log.
func (s *Service) Clear() {
	s.history.Clear()
}

func (s *Service) answer(ctx context.Context, question string) (Message, error) {
	s.typing(true)
	resp, err := s.asker.Ask(ctx, question)
	s.typing(false)

	if err != nil {
		s.logger.Error().Err(err).Msg("Chat request failed")
		s.append(NewMessage(RoleSystem, s.config.ErrorNotice))
		s.mu.RLock()
		onError := append([]func(string, error){}, s.onError...)
		s.mu.RUnlock()
		for _, fn := range onError {
			fn(question, err)
		}
		return Message{}, err
	}

	text := resp.Answer
	if text == "" {
		text = resp.Text
	}
	if text == "" {
		text = s.config.NoAnswer
	}

	msg := NewMessage(RoleAssistant, text)
	msg.Sources = resp.Sources()
	msg.AudioURL = resp.AudioURL
	s.append(msg)

	s.mu.RLock()
	onAssistant := s.onAssistant
	s.mu.RUnlock()
	if onAssistant != nil {
		onAssistant(msg)
	}
	return msg, nil
}

func (s *Service) append(msg Message) {
	s.history.Append(msg)

	s.mu.RLock()
	listeners := make([]func(Message), len(s.onMessage))
	copy(listeners, s.onMessage)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

func (s *Service) typing(on bool) {
	s.mu.RLock()
	listeners := make([]func(bool), len(s.onTyping))
	copy(listeners, s.onTyping)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(on)
	}
}
