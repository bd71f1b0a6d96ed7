package bridge

import (
	"context"

	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/page"
)

// ChatBridge exposes the message log to the frontend
type ChatBridge struct {
	ctx  context.Context
	page *page.Session
	emit Emitter
}

// NewChatBridge creates the chat bridge
func NewChatBridge(p *page.Session, emit Emitter) *ChatBridge {
	return &ChatBridge{page: p, emit: emit}
}

// Bind sets the Wails runtime context
func (b *ChatBridge) Bind(ctx context.Context) {
	b.ctx = ctx

	b.page.Bus().Subscribe(bus.EventTypeMessageAppended, func(e bus.Event) {
		b.emit(b.ctx, "chat:message", e.Data["message"])
	})
	b.page.Bus().Subscribe(bus.EventTypeTyping, func(e bus.Event) {
		b.emit(b.ctx, "chat:typing", e.Bool("typing"))
	})
	b.page.Bus().Subscribe(bus.EventTypeChatError, func(e bus.Event) {
		b.emit(b.ctx, "chat:error", e.Data)
	})
}

// SendMessage asks a question and returns the answer. Both sides are also
// delivered as chat:message events.
func (b *ChatBridge) SendMessage(text string) (chat.Message, error) {
	return b.page.Chat().Send(b.ctx, text)
}

// GetHistory returns the message log
func (b *ChatBridge) GetHistory() []chat.Message {
	return b.page.Chat().History().Messages()
}

// IsProcessing reports whether an answer is pending
func (b *ChatBridge) IsProcessing() bool {
	return b.page.Chat().Processing()
}

// ClearHistory empties the message log
func (b *ChatBridge) ClearHistory() {
	b.page.Chat().Clear()
}
