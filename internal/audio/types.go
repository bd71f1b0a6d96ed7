// Package audio plays synthesized speech and tracks whether the avatar is
// listening or speaking.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrBusy          = errors.New("audio is already playing")
	ErrNotPlaying    = errors.New("nothing is playing")
	ErrNoPlayer      = errors.New("no audio output")
)

// AudioFormat represents audio encoding format
type AudioFormat string

const (
	FormatWAV  AudioFormat = "wav"
	FormatPCM  AudioFormat = "pcm"
	FormatWebM AudioFormat = "webm"
	FormatOGG  AudioFormat = "ogg"
)

// AudioState represents the current audio system state
type AudioState string

const (
	StateIdle      AudioState = "idle"
	StateListening AudioState = "listening"
	StateSpeaking  AudioState = "speaking"
)

// AudioConfig holds audio system configuration
type AudioConfig struct {
	SampleRate   int     `json:"sample_rate"`   // speaker output rate, default 48000 Hz
	BufferMs     int     `json:"buffer_ms"`     // speaker buffer, default 100ms
	OutputVolume float64 `json:"output_volume"` // 0.0 to 1.0
}

// DefaultAudioConfig returns sensible defaults
func DefaultAudioConfig() *AudioConfig {
	return &AudioConfig{
		SampleRate:   48000,
		BufferMs:     100,
		OutputVolume: 0.8,
	}
}

// Info describes a decoded WAV clip.
type Info struct {
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Samples    int           `json:"samples"`
	Duration   time.Duration `json:"duration"`
}
