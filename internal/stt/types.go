// Package stt provides Speech-to-Text transcription through the consultant
// voice API.
package stt

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("STT provider unavailable")
	ErrAudioTooShort       = errors.New("audio too short for transcription")
	ErrNoSpeech            = errors.New("speech not recognized")
)

// Provider is the interface all STT providers must implement
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Transcribe converts audio to text
	Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// TranscribeRequest represents a transcription request
type TranscribeRequest struct {
	Audio      []byte `json:"-"`                // Raw audio data
	Format     string `json:"format,omitempty"` // Audio format (wav, pcm, webm, ogg)
	SampleRate int    `json:"sample_rate"`      // Sample rate in Hz, pcm only
	Channels   int    `json:"channels"`         // Number of channels, pcm only
}

// TranscribeResponse represents a transcription result
type TranscribeResponse struct {
	Text           string        `json:"text"`
	Language       string        `json:"language"`
	Segments       int           `json:"segments"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Config holds STT configuration
type Config struct {
	BaseURL  string        `json:"base_url"` // API root, e.g. "http://127.0.0.1:8000"
	Timeout  time.Duration `json:"timeout"`
	Enhanced bool          `json:"enhanced"` // server-side loudness normalisation
	Denoise  bool          `json:"denoise"`  // server-side noise reduction
	MinBytes int           `json:"min_bytes"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "http://127.0.0.1:8000",
		Timeout:  60 * time.Second,
		Enhanced: true,
		Denoise:  false,
		MinBytes: 1024,
	}
}
