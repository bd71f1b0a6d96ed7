package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/stt"
	"github.com/normanking/consultavatar/internal/tts"
)

type fakeSTT struct {
	text string
	err  error
	reqs []*stt.TranscribeRequest
}

func (f *fakeSTT) Transcribe(ctx context.Context, req *stt.TranscribeRequest) (*stt.TranscribeResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &stt.TranscribeResponse{Text: f.text}, nil
}

type fakeTTS struct {
	err  error
	reqs []*tts.SynthesizeRequest
}

func (f *fakeTTS) Synthesize(ctx context.Context, req *tts.SynthesizeRequest) (*tts.SynthesizeResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &tts.SynthesizeResponse{Audio: []byte("wav:" + req.Text)}, nil
}

type fakePlayback struct {
	playing   bool
	listening bool
	refuse    error
	played    [][]byte
}

func (f *fakePlayback) Speak(data []byte, onDone func()) error {
	if f.playing {
		return audio.ErrBusy
	}
	f.playing = true
	f.played = append(f.played, data)
	return nil
}

func (f *fakePlayback) IsPlaying() bool { return f.playing }

func (f *fakePlayback) StartListening() error {
	if f.refuse != nil {
		return f.refuse
	}
	f.listening = true
	return nil
}

func (f *fakePlayback) StopListening() { f.listening = false }

type echoAsker struct{ questions []string }

func (a *echoAsker) Ask(ctx context.Context, question string) (*chat.Response, error) {
	a.questions = append(a.questions, question)
	return &chat.Response{Answer: "answer to " + question}, nil
}

type harness struct {
	voice    *Interface
	stt      *fakeSTT
	tts      *fakeTTS
	playback *fakePlayback
	chat     *chat.Service
	asker    *echoAsker
	events   *bus.EventBus
	alerts   []string
}

func newHarness(t *testing.T, roundTrip *Client) *harness {
	t.Helper()
	h := &harness{
		stt:      &fakeSTT{},
		tts:      &fakeTTS{},
		playback: &fakePlayback{},
		asker:    &echoAsker{},
		events:   bus.NewEventBus(),
	}
	h.chat = chat.NewService(h.asker, nil, chat.DefaultServiceConfig(), zerolog.Nop())
	h.voice = NewInterface(Deps{
		STT:       h.stt,
		TTS:       h.tts,
		Playback:  h.playback,
		Chat:      h.chat,
		RoundTrip: roundTrip,
		Alerter:   AlertFunc(func(m string) { h.alerts = append(h.alerts, m) }),
		Events:    h.events,
	}, DefaultTexts(), "xenia", zerolog.Nop())
	return h
}

func TestRecordingAutoSendsTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.text = "Where is the office?"
	transcripts := make(chan string, 1)
	h.events.Subscribe(bus.EventTypeTranscript, func(e bus.Event) { transcripts <- e.String("text") })

	require.NoError(t, h.voice.StartRecording())
	assert.True(t, h.voice.IsRecording())
	assert.True(t, h.playback.listening)
	assert.ErrorIs(t, h.voice.StartRecording(), ErrAlreadyRecording)

	msg, err := h.voice.StopRecording(context.Background(), []byte("webm-bytes"), "webm")
	require.NoError(t, err)

	assert.False(t, h.voice.IsRecording())
	assert.False(t, h.playback.listening)
	assert.Equal(t, "webm", h.stt.reqs[0].Format)
	assert.Equal(t, []string{"Where is the office?"}, h.asker.questions)
	assert.Equal(t, "answer to Where is the office?", msg.Content)
	assert.Empty(t, h.alerts)

	select {
	case text := <-transcripts:
		assert.Equal(t, "Where is the office?", text)
	case <-time.After(time.Second):
		t.Fatal("transcript not published")
	}
}

func TestRecordingNothingRecognized(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{"empty text", "", nil},
		{"server could not recognize", "", stt.ErrNoSpeech},
		{"too short", "", stt.ErrAudioTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.stt.text, h.stt.err = tt.text, tt.err

			require.NoError(t, h.voice.StartRecording())
			_, err := h.voice.StopRecording(context.Background(), []byte("x"), "wav")
			assert.ErrorIs(t, err, ErrNothingRecognized)
			assert.Equal(t, []string{DefaultTexts().NotRecognized}, h.alerts)
			assert.Empty(t, h.asker.questions)
		})
	}
}

func TestRecordingFailures(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.voice.StopRecording(context.Background(), []byte("x"), "wav")
	assert.ErrorIs(t, err, ErrNotRecording)

	require.NoError(t, h.voice.StartRecording())
	_, err = h.voice.StopRecording(context.Background(), nil, "wav")
	assert.ErrorIs(t, err, ErrEmptyRecording)
	assert.Empty(t, h.stt.reqs)

	h.playback.refuse = audio.ErrBusy
	assert.ErrorIs(t, h.voice.StartRecording(), audio.ErrBusy)
	assert.False(t, h.voice.IsRecording())
	assert.Contains(t, h.alerts, DefaultTexts().RecordFailed)

	h.playback.refuse = nil
	h.stt.err = assert.AnError
	require.NoError(t, h.voice.StartRecording())
	_, err = h.voice.StopRecording(context.Background(), []byte("x"), "wav")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, h.alerts[len(h.alerts)-1], DefaultTexts().ProcessFailed)
}

func TestCancelRecording(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.voice.StartRecording())
	h.voice.CancelRecording()
	assert.False(t, h.voice.IsRecording())
	assert.False(t, h.playback.listening)
}

func TestSpeakGuardsReplay(t *testing.T) {
	h := newHarness(t, nil)
	h.voice.SetVoice("aidar")

	require.NoError(t, h.voice.Speak(context.Background(), "hello"))
	assert.Equal(t, "aidar", h.tts.reqs[0].VoiceID)

	assert.ErrorIs(t, h.voice.Speak(context.Background(), "again"), audio.ErrBusy)
	assert.Len(t, h.tts.reqs, 1)
	assert.Len(t, h.playback.played, 1)
	assert.Empty(t, h.alerts)
}

func TestSpeakMessageAndWelcome(t *testing.T) {
	h := newHarness(t, nil)
	h.chat.Welcome()

	require.NoError(t, h.voice.SpeakWelcome(context.Background()))
	assert.Equal(t, chat.DefaultServiceConfig().Welcome, h.tts.reqs[0].Text)

	h.playback.playing = false
	msg, err := h.chat.Send(context.Background(), "q")
	require.NoError(t, err)
	require.NoError(t, h.voice.SpeakMessage(context.Background(), msg.ID.String()))
	assert.Equal(t, "answer to q", h.tts.reqs[1].Text)

	assert.ErrorIs(t, h.voice.SpeakMessage(context.Background(), "missing"), ErrMessageNotFound)
}

func TestSpeakFailureAlerts(t *testing.T) {
	h := newHarness(t, nil)
	h.tts.err = tts.ErrProviderUnavailable

	err := h.voice.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, tts.ErrProviderUnavailable)
	require.Len(t, h.alerts, 1)
	assert.Contains(t, h.alerts[0], DefaultTexts().SpeakFailed)
}

func TestAskByVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voice/voice-chat", r.URL.Path)
		assert.Equal(t, "aidar", r.URL.Query().Get("speaker"))
		w.Header().Set("X-Question-Text", url.PathEscape("Как дела?"))
		w.Header().Set("X-Answer-Text", url.PathEscape("Хорошо"))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF-answer"))
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	h := newHarness(t, NewClient(cfg, zerolog.Nop()))
	h.voice.SetVoice("aidar")

	msg, err := h.voice.AskByVoice(context.Background(), []byte("rec"), "")
	require.NoError(t, err)

	assert.Equal(t, "Хорошо", msg.Content)
	messages := h.chat.History().Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "Как дела?", messages[0].Content)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, [][]byte{[]byte("RIFF-answer")}, h.playback.played)
	assert.Empty(t, h.asker.questions)
}

func TestAskByVoiceNotRecognized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"could not recognize speech"}`))
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	h := newHarness(t, NewClient(cfg, zerolog.Nop()))

	_, err := h.voice.AskByVoice(context.Background(), []byte("rec"), "q.webm")
	assert.ErrorIs(t, err, ErrNothingRecognized)
	assert.Equal(t, []string{DefaultTexts().NotRecognized}, h.alerts)
	assert.Zero(t, h.chat.History().Len())
}

func TestAskByVoiceDisabled(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.voice.AskByVoice(context.Background(), []byte("rec"), "")
	assert.ErrorIs(t, err, ErrRoundTripDisabled)
	_, err = h.voice.Status(context.Background())
	assert.ErrorIs(t, err, ErrRoundTripDisabled)
}

func TestBusAlerter(t *testing.T) {
	b := bus.NewEventBus()
	got := make(chan string, 1)
	b.Subscribe(bus.EventTypeAlert, func(e bus.Event) { got <- e.String("message") })

	BusAlerter(b).Alert("microphone blocked")

	select {
	case m := <-got:
		assert.Equal(t, "microphone blocked", m)
	case <-time.After(time.Second):
		t.Fatal("alert not delivered")
	}
}
