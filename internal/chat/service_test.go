package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/consultavatar/internal/bus"
)

type fakeAsker struct {
	resp    *Response
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (*Response, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

func TestServiceSend(t *testing.T) {
	asker := &fakeAsker{resp: &Response{Answer: "Yes.", RetrievedContexts: []string{"doc"}, Scores: []float64{0.5}}}
	svc := NewService(asker, nil, DefaultServiceConfig(), zerolog.Nop())

	var roles []Role
	var typing []bool
	var assistant Message
	svc.OnMessage(func(m Message) { roles = append(roles, m.Role) })
	svc.OnTyping(func(on bool) { typing = append(typing, on) })
	svc.SetAssistantHandler(func(m Message) { assistant = m })

	msg, err := svc.Send(context.Background(), "  Is it open?  ")
	require.NoError(t, err)

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "Yes.", msg.Content)
	assert.Equal(t, []Source{{Context: "doc", Similarity: 0.5}}, msg.Sources)
	assert.Equal(t, msg.ID, assistant.ID)

	assert.Equal(t, []Role{RoleUser, RoleAssistant}, roles)
	assert.Equal(t, []bool{true, false}, typing)

	history := svc.History().Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "Is it open?", history[0].Content)
	assert.False(t, svc.Processing())
}

func TestServiceEmptyQuestion(t *testing.T) {
	svc := NewService(&fakeAsker{}, nil, DefaultServiceConfig(), zerolog.Nop())
	_, err := svc.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Zero(t, svc.History().Len())
}

func TestServiceNoAnswer(t *testing.T) {
	svc := NewService(&fakeAsker{resp: &Response{}}, nil, DefaultServiceConfig(), zerolog.Nop())
	msg, err := svc.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceConfig().NoAnswer, msg.Content)
}

func TestServiceErrorAppendsSystemMessage(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(&fakeAsker{err: boom}, nil, DefaultServiceConfig(), zerolog.Nop())
	var failed []string
	svc.OnError(func(q string, err error) { failed = append(failed, q+": "+err.Error()) })

	_, err := svc.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"hello: connection refused"}, failed)

	history := svc.History().Messages()
	require.Len(t, history, 2)
	assert.Equal(t, RoleSystem, history[1].Role)
	assert.Equal(t, DefaultServiceConfig().ErrorNotice, history[1].Content)
	assert.False(t, svc.Processing())
}

func TestServiceRejectsConcurrentSend(t *testing.T) {
	asker := &fakeAsker{
		resp:    &Response{Answer: "done"},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	svc := NewService(asker, nil, DefaultServiceConfig(), zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Send(context.Background(), "first")
		assert.NoError(t, err)
	}()

	select {
	case <-asker.entered:
	case <-time.After(time.Second):
		t.Fatal("first request never reached the API")
	}
	assert.True(t, svc.Processing())

	_, err := svc.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(asker.block)
	wg.Wait()
	assert.Equal(t, 2, svc.History().Len())
}

func TestServiceWelcome(t *testing.T) {
	svc := NewService(&fakeAsker{}, nil, DefaultServiceConfig(), zerolog.Nop())
	svc.Welcome()

	history := svc.History().Messages()
	require.Len(t, history, 1)
	assert.True(t, history[0].Welcome)
	assert.Equal(t, RoleAssistant, history[0].Role)

	quiet := NewService(&fakeAsker{}, nil, ServiceConfig{}, zerolog.Nop())
	quiet.Welcome()
	assert.Zero(t, quiet.History().Len())
}

func TestServicePublishesToBus(t *testing.T) {
	b := bus.NewEventBus()
	svc := NewService(&fakeAsker{resp: &Response{Answer: "ok"}}, nil, DefaultServiceConfig(), zerolog.Nop())
	svc.Publish(b)

	var mu sync.Mutex
	var got []bus.Event
	b.Subscribe(bus.EventTypeMessageAppended, func(e bus.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	svc.Welcome()
	_, err := svc.Send(context.Background(), "q")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.True(t, got[0].Bool("welcome"))
	assert.Equal(t, "user", got[1].String("role"))
	assert.Equal(t, "assistant", got[2].String("role"))
	assert.False(t, got[2].Bool("welcome"))
}

func TestServiceAppendExchange(t *testing.T) {
	svc := NewService(&fakeAsker{}, nil, DefaultServiceConfig(), zerolog.Nop())
	msg := svc.AppendExchange("spoken question", "spoken answer")

	assert.Equal(t, "spoken answer", msg.Content)
	assert.Equal(t, 2, svc.History().Len())
}

func TestHistoryTrims(t *testing.T) {
	h := NewHistory(HistoryConfig{MaxMessages: 2})
	h.Append(NewMessage(RoleUser, "one"))
	h.Append(NewMessage(RoleAssistant, "two"))
	last := NewMessage(RoleUser, "three")
	h.Append(last)

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)

	found, ok := h.Find(last.ID.String())
	assert.True(t, ok)
	assert.Equal(t, "three", found.Content)

	h.Clear()
	assert.Zero(t, h.Len())
}
