// Package chat talks to the consultant's question answering API and keeps
// the page's message log.
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBusy          = errors.New("a question is already being answered")
	ErrEmptyQuestion = errors.New("question is empty")
)

// Role tags who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Source is a retrieved document fragment backing an answer.
type Source struct {
	Context    string  `json:"context"`
	Similarity float64 `json:"similarity"`
}

// Message is one entry of the chat log.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	Welcome   bool      `json:"welcome,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage stamps a message with an ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Request is the body of POST /api/chat.
type Request struct {
	Question string `json:"question"`
}

// Response is the answer of POST /api/chat.
type Response struct {
	Answer            string    `json:"answer"`
	Text              string    `json:"text,omitempty"`
	AudioURL          string    `json:"audio_url,omitempty"`
	RetrievedContexts []string  `json:"retrieved_contexts,omitempty"`
	Scores            []float64 `json:"scores,omitempty"`
}

// Sources pairs retrieved contexts with their scores. Missing scores are 0.
func (r *Response) Sources() []Source {
	if len(r.RetrievedContexts) == 0 {
		return nil
	}
	out := make([]Source, len(r.RetrievedContexts))
	for i, ctx := range r.RetrievedContexts {
		out[i].Context = ctx
		if i < len(r.Scores) {
			out[i].Similarity = r.Scores[i]
		}
	}
	return out
}

// APIError is a non-2xx reply from the API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}
