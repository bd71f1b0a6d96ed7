// Package tts provides Text-to-Speech synthesis through the consultant
// voice API.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrVoiceNotFound       = errors.New("voice not found")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrEmptyText           = errors.New("text is empty")
)

// Provider is the interface all TTS providers must implement
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// ListVoices returns available voices
	ListVoices(ctx context.Context) ([]Voice, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"` // speaker, empty for the configured default
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`           // WAV bytes
	Format         string        `json:"format"`          // Audio format
	SampleRate     int           `json:"sample_rate"`     // Sample rate in Hz
	Duration       time.Duration `json:"duration"`        // Audio duration
	ProcessingTime time.Duration `json:"processing_time"` // How long synthesis took
	VoiceID        string        `json:"voice_id"`        // Voice used
	Provider       string        `json:"provider"`        // Provider name
}

// Voice represents an available TTS voice
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"` // male, female
}

// Config holds TTS configuration
type Config struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	DefaultVoice  string        `json:"default_voice"`
	ReturnFile    bool          `json:"return_file"` // WAV body instead of base64 JSON
	MaxTextLength int           `json:"max_text_length"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://127.0.0.1:8000",
		Timeout:       60 * time.Second,
		DefaultVoice:  "xenia",
		ReturnFile:    true,
		MaxTextLength: 1000,
	}
}

// Voices are the Silero Russian speakers the service ships with.
var Voices = []Voice{
	{ID: "xenia", Name: "Xenia", Language: "ru", Gender: "female"},
	{ID: "kseniya", Name: "Kseniya", Language: "ru", Gender: "female"},
	{ID: "aidar", Name: "Aidar", Language: "ru", Gender: "male"},
	{ID: "baya", Name: "Baya", Language: "ru", Gender: "female"},
	{ID: "irina", Name: "Irina", Language: "ru", Gender: "female"},
	{ID: "natasha", Name: "Natasha", Language: "ru", Gender: "female"},
	{ID: "ruslan", Name: "Ruslan", Language: "ru", Gender: "male"},
}

// voiceAliases maps alternative speaker names onto listed ones.
var voiceAliases = map[string]string{
	"eugene": "ruslan",
}

// ResolveVoice returns the canonical speaker for id.
func ResolveVoice(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if alias, ok := voiceAliases[id]; ok {
		id = alias
	}
	for _, v := range Voices {
		if v.ID == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrVoiceNotFound, id)
}
