// Package voice ties recording, transcription, synthesis and playback to
// the chat. Voice failures surface as alerts and never touch the avatar.
package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/stt"
	"github.com/normanking/consultavatar/internal/tts"
)

var (
	ErrNothingRecognized = errors.New("nothing recognized")
	ErrNotRecording      = errors.New("not recording")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrEmptyRecording    = errors.New("recording is empty")
	ErrMessageNotFound   = errors.New("message not found")
	ErrRoundTripDisabled = errors.New("voice chat is not configured")
)

// Transcriber turns recordings into text. stt.Provider implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, req *stt.TranscribeRequest) (*stt.TranscribeResponse, error)
}

// Synthesizer turns text into WAV audio. tts.Provider implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *tts.SynthesizeRequest) (*tts.SynthesizeResponse, error)
}

// Playback is the listening/speaking state holder. *audio.Manager
// implements it.
type Playback interface {
	Speak(data []byte, onDone func()) error
	IsPlaying() bool
	StartListening() error
	StopListening()
}

// Chat is the message log the voice flows feed. *chat.Service implements it.
type Chat interface {
	Send(ctx context.Context, question string) (chat.Message, error)
	AppendExchange(question, answer string) chat.Message
	History() *chat.History
}

// Alerter shows a blocking notice to the user.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(string)

// Alert calls f.
func (f AlertFunc) Alert(message string) { f(message) }

// BusAlerter publishes alerts as voice.alert events.
func BusAlerter(b *bus.EventBus) Alerter {
	return AlertFunc(func(message string) {
		b.Publish(bus.Event{Type: bus.EventTypeAlert, Data: map[string]any{"message": message}})
	})
}

// Texts are the user-facing alert messages.
type Texts struct {
	NotRecognized   string
	RecordFailed    string
	ProcessFailed   string
	SpeakFailed     string
	WelcomeFailed   string
	UnknownQuestion string // user bubble when the round trip returns no question text
}

// DefaultTexts returns the stock alert messages.
func DefaultTexts() Texts {
	return Texts{
		NotRecognized: "Could not recognize speech. Please try again.",
		RecordFailed:  "Could not start recording. Check microphone permissions.",
		ProcessFailed: "Voice processing failed",
		SpeakFailed:   "Could not play the answer",
		WelcomeFailed: "Could not play the greeting",

		UnknownQuestion: "(speech not recognized)",
	}
}

// Deps are the collaborators of an Interface. RoundTrip and Events are
// optional.
type Deps struct {
	STT       Transcriber
	TTS       Synthesizer
	Playback  Playback
	Chat      Chat
	RoundTrip *Client
	Alerter   Alerter
	Events    *bus.EventBus // receives voice.transcript
}

// Interface runs the voice features of one page.
type Interface struct {
	deps   Deps
	texts  Texts
	voice  atomic.Value // string
	logger zerolog.Logger

	recording atomic.Bool
}

// NewInterface creates a voice interface speaking with voiceID.
func NewInterface(deps Deps, texts Texts, voiceID string, logger zerolog.Logger) *Interface {
	if deps.Alerter == nil {
		deps.Alerter = AlertFunc(func(string) {})
	}
	v := &Interface{
		deps:   deps,
		texts:  texts,
		logger: logger.With().Str("component", "voice").Logger(),
	}
	v.voice.Store(voiceID)
	return v
}

// SetVoice changes the speaker used for synthesized answers.
func (v *Interface) SetVoice(id string) {
	v.voice.Store(id)
	if v.deps.RoundTrip != nil {
		v.deps.RoundTrip.SetSpeaker(id)
	}
}

// Voice returns the current speaker.
func (v *Interface) Voice() string {
	s, _ := v.voice.Load().(string)
	return s
}

// IsRecording reports whether the microphone is open.
func (v *Interface) IsRecording() bool {
	return v.recording.Load()
}

// StartRecording opens the microphone.
func (v *Interface) StartRecording() error {
	if !v.recording.CompareAndSwap(false, true) {
		return ErrAlreadyRecording
	}
	if err := v.deps.Playback.StartListening(); err != nil {
		v.recording.Store(false)
		v.logger.Warn().Err(err).Msg("Recording refused")
		v.deps.Alerter.Alert(v.texts.RecordFailed)
		return err
	}
	return nil
}

// CancelRecording closes the microphone and discards the recording.
func (v *Interface) CancelRecording() {
	if v.recording.CompareAndSwap(true, false) {
		v.deps.Playback.StopListening()
	}
}

// StopRecording closes the microphone, transcribes the recording and sends
// the recognized text as a question.
func (v *Interface) StopRecording(ctx context.Context, recording []byte, format string) (chat.Message, error) {
	if !v.recording.CompareAndSwap(true, false) {
		return chat.Message{}, ErrNotRecording
	}
	v.deps.Playback.StopListening()

	if len(recording) == 0 {
		v.deps.Alerter.Alert(v.texts.NotRecognized)
		return chat.Message{}, ErrEmptyRecording
	}

	resp, err := v.deps.STT.Transcribe(ctx, &stt.TranscribeRequest{Audio: recording, Format: format})
	switch {
	case errors.Is(err, stt.ErrNoSpeech), errors.Is(err, stt.ErrAudioTooShort):
		v.deps.Alerter.Alert(v.texts.NotRecognized)
		return chat.Message{}, fmt.Errorf("%w: %v", ErrNothingRecognized, err)
	case err != nil:
		v.logger.Error().Err(err).Msg("Transcription failed")
		v.deps.Alerter.Alert(v.texts.ProcessFailed + ": " + err.Error())
		return chat.Message{}, err
	case resp.Text == "":
		v.deps.Alerter.Alert(v.texts.NotRecognized)
		return chat.Message{}, ErrNothingRecognized
	}

	v.logger.Info().Str("text", resp.Text).Msg("Recognized question")
	v.transcript(resp.Text)
	return v.deps.Chat.Send(ctx, resp.Text)
}

// Speak synthesizes text and plays it. While audio plays further requests
// return audio.ErrBusy.
func (v *Interface) Speak(ctx context.Context, text string) error {
	return v.speak(ctx, text, v.texts.SpeakFailed)
}

// SpeakMessage speaks a message of the log by ID.
func (v *Interface) SpeakMessage(ctx context.Context, id string) error {
	msg, ok := v.deps.Chat.History().Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return v.speak(ctx, msg.Content, v.texts.SpeakFailed)
}

// SpeakWelcome speaks the welcome message.
func (v *Interface) SpeakWelcome(ctx context.Context) error {
	for _, msg := range v.deps.Chat.History().Messages() {
		if msg.Welcome {
			return v.speak(ctx, msg.Content, v.texts.WelcomeFailed)
		}
	}
	return fmt.Errorf("%w: welcome", ErrMessageNotFound)
}

func (v *Interface) speak(ctx context.Context, text, failure string) error {
	if v.deps.Playback.IsPlaying() {
		return audio.ErrBusy
	}

	resp, err := v.deps.TTS.Synthesize(ctx, &tts.SynthesizeRequest{Text: text, VoiceID: v.Voice()})
	if err != nil {
		v.logger.Error().Err(err).Msg("Synthesis failed")
		v.deps.Alerter.Alert(failure + ". " + err.Error())
		return err
	}
	if err := v.deps.Playback.Speak(resp.Audio, nil); err != nil {
		if !errors.Is(err, audio.ErrBusy) {
			v.deps.Alerter.Alert(failure + ". " + err.Error())
		}
		return err
	}
	return nil
}

// AskByVoice runs the full round trip: the recording goes to the server,
// which transcribes, answers and speaks. Both texts are appended to the
// chat log and the answer is played.
func (v *Interface) AskByVoice(ctx context.Context, recording []byte, filename string) (chat.Message, error) {
	if v.deps.RoundTrip == nil {
		return chat.Message{}, ErrRoundTripDisabled
	}
	if v.deps.Playback.IsPlaying() {
		return chat.Message{}, audio.ErrBusy
	}
	if len(recording) == 0 {
		v.deps.Alerter.Alert(v.texts.NotRecognized)
		return chat.Message{}, ErrEmptyRecording
	}

	rt, err := v.deps.RoundTrip.Ask(ctx, recording, filename)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			v.deps.Alerter.Alert(v.texts.NotRecognized)
			return chat.Message{}, fmt.Errorf("%w: %v", ErrNothingRecognized, err)
		}
		v.logger.Error().Err(err).Msg("Voice chat failed")
		v.deps.Alerter.Alert(v.texts.ProcessFailed + ": " + err.Error())
		return chat.Message{}, err
	}

	question := rt.Question
	if question == "" {
		question = v.texts.UnknownQuestion
	} else {
		v.transcript(question)
	}
	msg := v.deps.Chat.AppendExchange(question, rt.Answer)
	if err := v.deps.Playback.Speak(rt.Audio, nil); err != nil {
		v.logger.Warn().Err(err).Msg("Could not play voice chat answer")
	}
	return msg, nil
}

func (v *Interface) transcript(text string) {
	if v.deps.Events != nil {
		v.deps.Events.Publish(bus.Event{Type: bus.EventTypeTranscript, Data: map[string]any{"text": text}})
	}
}

// Status reports which voice features the server offers.
func (v *Interface) Status(ctx context.Context) (Status, error) {
	if v.deps.RoundTrip == nil {
		return Status{}, ErrRoundTripDisabled
	}
	return v.deps.RoundTrip.Status(ctx)
}
