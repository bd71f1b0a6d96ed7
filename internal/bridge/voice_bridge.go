package bridge

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/page"
	"github.com/normanking/consultavatar/internal/tts"
	"github.com/normanking/consultavatar/internal/voice"
)

// VoiceBridge exposes recording and speech to the frontend
type VoiceBridge struct {
	ctx    context.Context
	page   *page.Session
	emit   Emitter
	logger zerolog.Logger
}

// NewVoiceBridge creates the voice bridge
func NewVoiceBridge(p *page.Session, emit Emitter, logger zerolog.Logger) *VoiceBridge {
	return &VoiceBridge{
		page:   p,
		emit:   emit,
		logger: logger.With().Str("component", "voice_bridge").Logger(),
	}
}

// Bind sets the Wails runtime context
func (b *VoiceBridge) Bind(ctx context.Context) {
	b.ctx = ctx

	events := b.page.Bus()
	events.Subscribe(bus.EventTypeRecordingStarted, func(bus.Event) {
		b.emit(b.ctx, "voice:recording", true)
	})
	events.Subscribe(bus.EventTypeRecordingStopped, func(bus.Event) {
		b.emit(b.ctx, "voice:recording", false)
	})
	events.Subscribe(bus.EventTypeSpeakingStarted, func(bus.Event) {
		b.emit(b.ctx, "voice:speaking", true)
	})
	events.Subscribe(bus.EventTypeSpeakingStopped, func(bus.Event) {
		b.emit(b.ctx, "voice:speaking", false)
	})
	events.Subscribe(bus.EventTypeTranscript, func(e bus.Event) {
		b.emit(b.ctx, "voice:transcript", e.String("text"))
	})
	events.Subscribe(bus.EventTypeAlert, func(e bus.Event) {
		b.emit(b.ctx, "voice:alert", e.String("message"))
	})
}

// StartRecording opens the microphone
func (b *VoiceBridge) StartRecording() error {
	return b.page.Voice().StartRecording()
}

// StopRecording transcribes the base64 recording and sends it as a question
func (b *VoiceBridge) StopRecording(audioBase64, format string) (chat.Message, error) {
	data, err := decodeAudio(audioBase64)
	if err != nil {
		b.page.Voice().CancelRecording()
		return chat.Message{}, err
	}
	return b.page.Voice().StopRecording(b.ctx, data, format)
}

// CancelRecording closes the microphone without transcribing
func (b *VoiceBridge) CancelRecording() {
	b.page.Voice().CancelRecording()
}

// IsRecording reports whether the microphone is open
func (b *VoiceBridge) IsRecording() bool {
	return b.page.Voice().IsRecording()
}

// AskByVoice sends the base64 recording through the server-side voice chat
func (b *VoiceBridge) AskByVoice(audioBase64, filename string) (chat.Message, error) {
	data, err := decodeAudio(audioBase64)
	if err != nil {
		return chat.Message{}, err
	}
	return b.page.Voice().AskByVoice(b.ctx, data, filename)
}

// SpeakText speaks text
func (b *VoiceBridge) SpeakText(text string) error {
	return b.page.Voice().Speak(b.ctx, text)
}

// SpeakMessage speaks a chat message by ID
func (b *VoiceBridge) SpeakMessage(id string) error {
	return b.page.Voice().SpeakMessage(b.ctx, id)
}

// SpeakWelcome speaks the welcome message
func (b *VoiceBridge) SpeakWelcome() error {
	return b.page.Voice().SpeakWelcome(b.ctx)
}

// StopSpeaking interrupts playback
func (b *VoiceBridge) StopSpeaking() error {
	return b.page.Audio().StopSpeaking()
}

// IsSpeaking reports whether an answer is playing
func (b *VoiceBridge) IsSpeaking() bool {
	return b.page.Audio().IsPlaying()
}

// GetVoices lists the available speakers
func (b *VoiceBridge) GetVoices() []tts.Voice {
	return tts.Voices
}

// GetVoice returns the current speaker
func (b *VoiceBridge) GetVoice() string {
	return b.page.Voice().Voice()
}

// SetVoice changes the speaker
func (b *VoiceBridge) SetVoice(id string) (string, error) {
	resolved, err := tts.ResolveVoice(id)
	if err != nil {
		return "", err
	}
	b.page.Voice().SetVoice(resolved)
	b.logger.Info().Str("voice", resolved).Msg("Voice set")
	return resolved, nil
}

// GetStatus reports which voice features the server offers
func (b *VoiceBridge) GetStatus() (voice.Status, error) {
	return b.page.Voice().Status(b.ctx)
}

func decodeAudio(audioBase64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return data, nil
}
