package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/consultavatar/internal/audio"
)

// halfSecond is 0.5s of 48kHz mono silence.
var halfSecond = audio.EncodeWAV(make([]byte, 48000), 48000, 1)

func newTestProvider(t *testing.T, returnFile bool, handler http.HandlerFunc) *ConsultantProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Timeout = 5 * time.Second
	cfg.ReturnFile = returnFile
	return NewConsultantProvider(cfg, zerolog.Nop())
}

func TestConsultantSynthesizeWAV(t *testing.T) {
	p := newTestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/voice/tts", r.URL.Path)
		assert.Equal(t, "Здравствуйте!", r.URL.Query().Get("text"))
		assert.Equal(t, "ruslan", r.URL.Query().Get("speaker"))
		assert.Equal(t, "true", r.URL.Query().Get("return_file"))

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(halfSecond)
	})

	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: " Здравствуйте! ", VoiceID: "eugene"})
	require.NoError(t, err)

	assert.Equal(t, halfSecond, resp.Audio)
	assert.Equal(t, "wav", resp.Format)
	assert.Equal(t, 48000, resp.SampleRate)
	assert.Equal(t, 500*time.Millisecond, resp.Duration)
	assert.Equal(t, "ruslan", resp.VoiceID)
	assert.Equal(t, "consultant", resp.Provider)
}

func TestConsultantSynthesizeBase64(t *testing.T) {
	p := newTestProvider(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("return_file"))
		assert.Equal(t, "xenia", r.URL.Query().Get("speaker"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString(halfSecond),
			"sample_rate":  48000,
			"speaker":      "xenia",
		})
	})

	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "Добрый день"})
	require.NoError(t, err)
	assert.Equal(t, halfSecond, resp.Audio)
	assert.Equal(t, 500*time.Millisecond, resp.Duration)
}

func TestConsultantSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     SynthesizeRequest
		status  int
		body    string
		wantErr error
	}{
		{name: "empty text", req: SynthesizeRequest{Text: "   "}, wantErr: ErrEmptyText},
		{name: "too long", req: SynthesizeRequest{Text: strings.Repeat("а", 1001)}, wantErr: ErrTextTooLong},
		{name: "unknown voice", req: SynthesizeRequest{Text: "hi", VoiceID: "alloy"}, wantErr: ErrVoiceNotFound},
		{name: "unavailable", req: SynthesizeRequest{Text: "hi"}, status: http.StatusServiceUnavailable, body: "TTS not loaded", wantErr: ErrProviderUnavailable},
		{name: "server error", req: SynthesizeRequest{Text: "hi"}, status: http.StatusInternalServerError, body: "boom"},
		{name: "not audio", req: SynthesizeRequest{Text: "hi"}, status: http.StatusOK, body: "<html>", wantErr: audio.ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			p := newTestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.Synthesize(context.Background(), &tt.req)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.status != 0, called)
		})
	}
}

func TestResolveVoice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"xenia", "xenia"},
		{"Aidar", "aidar"},
		{"eugene", "ruslan"},
		{" natasha ", "natasha"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolveVoice(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ResolveVoice("nova")
	assert.ErrorIs(t, err, ErrVoiceNotFound)
}

func TestConsultantVoicesAndDefault(t *testing.T) {
	p := NewConsultantProvider(nil, zerolog.Nop())

	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	assert.Len(t, voices, 7)

	assert.Equal(t, "xenia", p.DefaultVoice())
	require.NoError(t, p.SetDefaultVoice("aidar"))
	assert.Equal(t, "aidar", p.DefaultVoice())
	assert.Error(t, p.SetDefaultVoice("unknown"))
	assert.Equal(t, "aidar", p.DefaultVoice())
}

func TestConsultantHealth(t *testing.T) {
	p := newTestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voice/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"stt_available":true,"tts_available":false}`))
	})
	assert.ErrorIs(t, p.Health(context.Background()), ErrProviderUnavailable)
}
