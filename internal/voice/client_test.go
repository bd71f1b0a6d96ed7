package voice

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAsk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "xenia", q.Get("speaker"))
		assert.Equal(t, "true", q.Get("enhanced"))
		assert.Equal(t, "false", q.Get("denoise"))

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "question.wav", header.Filename)
		assert.Equal(t, "recorded", string(data))

		w.Header().Set("X-Question-Text", "%D0%9F%D1%80%D0%B8%D0%B2%D0%B5%D1%82")
		w.Header().Set("X-Answer-Text", "100%")
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL + "/"
	c := NewClient(cfg, zerolog.Nop())

	rt, err := c.Ask(context.Background(), []byte("recorded"), "")
	require.NoError(t, err)
	assert.Equal(t, "Привет", rt.Question)
	assert.Equal(t, "100%", rt.Answer)
	assert.Equal(t, []byte("RIFF"), rt.Audio)
}

func TestClientAskError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"voice chat unavailable"}`))
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	_, err := NewClient(cfg, zerolog.Nop()).Ask(context.Background(), []byte("x"), "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "voice chat unavailable", apiErr.Detail)
}

func TestClientStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voice/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"stt_available":true,"tts_available":true,"rag_available":false,"voice_chat_available":false}`))
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	status, err := NewClient(cfg, zerolog.Nop()).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{STTAvailable: true, TTSAvailable: true}, status)
}
