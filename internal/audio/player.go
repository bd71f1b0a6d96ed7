package audio

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

// Player plays one WAV clip at a time. onDone runs once when playback ends
// on its own or is stopped.
type Player interface {
	Play(data []byte, onDone func()) error
	Stop()
	SetVolume(vol float64)
}

// SpeakerPlayer plays through the local sound device.
type SpeakerPlayer struct {
	mu          sync.Mutex
	config      *AudioConfig
	logger      zerolog.Logger
	initialized bool
	volume      float64

	ctrl     *beep.Ctrl
	streamer *effects.Volume
	track    beep.StreamSeekCloser
	onDone   func()
}

// NewSpeakerPlayer creates a player. The device is opened on first Play.
func NewSpeakerPlayer(config *AudioConfig, logger zerolog.Logger) *SpeakerPlayer {
	if config == nil {
		config = DefaultAudioConfig()
	}
	return &SpeakerPlayer{
		config: config,
		logger: logger.With().Str("component", "speaker").Logger(),
		volume: clampVolume(config.OutputVolume),
	}
}

// Play decodes data and starts playback, replacing anything playing.
func (p *SpeakerPlayer) Play(data []byte, onDone func()) error {
	streamer, format, err := decode(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureInitialized(); err != nil {
		streamer.Close()
		return err
	}
	p.stopLocked()

	target := beep.SampleRate(p.config.SampleRate)
	resampled := beep.Resample(3, format.SampleRate, target, streamer)
	vol := &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(p.volume),
		Silent:   p.volume <= 0.01,
	}
	ctrl := &beep.Ctrl{Streamer: vol}

	p.ctrl = ctrl
	p.streamer = vol
	p.track = streamer
	p.onDone = onDone

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		// The callback runs on the speaker goroutine, which holds the
		// speaker lock.
		go p.finish(ctrl)
	})))

	p.logger.Debug().
		Dur("duration", format.SampleRate.D(streamer.Len())).
		Int("sample_rate", int(format.SampleRate)).
		Msg("Playing audio")
	return nil
}

// Stop ends playback early. onDone still runs.
func (p *SpeakerPlayer) Stop() {
	p.mu.Lock()
	done := p.stopLocked()
	p.mu.Unlock()
	if done != nil {
		done()
	}
}

// SetVolume sets playback volume (0.0 to 1.0).
func (p *SpeakerPlayer) SetVolume(vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = clampVolume(vol)
	if p.streamer != nil {
		speaker.Lock()
		p.streamer.Volume = volumeToPower(p.volume)
		p.streamer.Silent = p.volume <= 0.01
		speaker.Unlock()
	}
}

// Volume returns current volume level.
func (p *SpeakerPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *SpeakerPlayer) finish(ctrl *beep.Ctrl) {
	p.mu.Lock()
	if p.ctrl != ctrl {
		p.mu.Unlock()
		return
	}
	done := p.onDone
	p.track.Close()
	p.ctrl, p.streamer, p.track, p.onDone = nil, nil, nil, nil
	p.mu.Unlock()

	if done != nil {
		done()
	}
}

func (p *SpeakerPlayer) stopLocked() func() {
	if p.ctrl == nil {
		return nil
	}
	speaker.Clear()
	p.track.Close()
	done := p.onDone
	p.ctrl, p.streamer, p.track, p.onDone = nil, nil, nil, nil
	return done
}

func (p *SpeakerPlayer) ensureInitialized() error {
	if p.initialized {
		return nil
	}
	rate := beep.SampleRate(p.config.SampleRate)
	buffer := time.Duration(p.config.BufferMs) * time.Millisecond
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to initialize speaker")
		return err
	}
	p.initialized = true
	return nil
}

func clampVolume(vol float64) float64 {
	switch {
	case vol < 0:
		return 0
	case vol > 1:
		return 1
	default:
		return vol
	}
}

// volumeToPower maps linear volume onto beep's base-2 exponent.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
