package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/bus"
)

// Manager tracks whether the avatar is listening or speaking and owns
// playback. Only one clip plays at a time; Speak refuses while busy.
type Manager struct {
	config   *AudioConfig
	player   Player
	eventBus *bus.EventBus
	logger   zerolog.Logger

	stateMu sync.RWMutex
	state   AudioState
	// playID identifies the clip currently owning StateSpeaking.
	playID uint64
}

// NewManager creates a new audio manager. A nil player leaves the manager
// without output: Speak fails with ErrNoPlayer while listening still works.
func NewManager(config *AudioConfig, player Player, eventBus *bus.EventBus, logger zerolog.Logger) *Manager {
	if config == nil {
		config = DefaultAudioConfig()
	}
	if player != nil {
		player.SetVolume(config.OutputVolume)
	}

	return &Manager{
		config:   config,
		player:   player,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "audio").Logger(),
		state:    StateIdle,
	}
}

// GetState returns the current audio state
func (m *Manager) GetState() AudioState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// IsPlaying reports whether a clip is playing.
func (m *Manager) IsPlaying() bool {
	return m.GetState() == StateSpeaking
}

// StartListening marks the microphone as recording. It is refused while
// audio plays.
func (m *Manager) StartListening() error {
	m.stateMu.Lock()
	if m.state == StateSpeaking {
		m.stateMu.Unlock()
		return ErrBusy
	}
	changed := m.state != StateListening
	m.state = StateListening
	m.stateMu.Unlock()

	if changed {
		m.publish(bus.EventTypeRecordingStarted, nil)
	}
	return nil
}

// StopListening returns to idle if recording.
func (m *Manager) StopListening() {
	m.stateMu.Lock()
	if m.state != StateListening {
		m.stateMu.Unlock()
		return
	}
	m.state = StateIdle
	m.stateMu.Unlock()

	m.publish(bus.EventTypeRecordingStopped, nil)
}

// Speak plays a WAV clip. onDone runs when playback ends.
func (m *Manager) Speak(data []byte, onDone func()) error {
	if m.player == nil {
		return ErrNoPlayer
	}
	info, err := Inspect(data)
	if err != nil {
		return err
	}

	m.stateMu.Lock()
	if m.state == StateSpeaking {
		m.stateMu.Unlock()
		return ErrBusy
	}
	m.playID++
	id := m.playID
	m.state = StateSpeaking
	m.stateMu.Unlock()

	m.logger.Info().Dur("duration", info.Duration).Int("bytes", len(data)).Msg("Speaking")
	m.publish(bus.EventTypeSpeakingStarted, map[string]any{
		"duration_ms": info.Duration.Milliseconds(),
	})

	if err := m.player.Play(data, func() {
		m.finish(id)
		if onDone != nil {
			onDone()
		}
	}); err != nil {
		m.finish(id)
		return err
	}
	return nil
}

// StopSpeaking interrupts playback.
func (m *Manager) StopSpeaking() error {
	if !m.IsPlaying() || m.player == nil {
		return ErrNotPlaying
	}
	m.player.Stop()
	return nil
}

// SetVolume updates the output volume.
func (m *Manager) SetVolume(vol float64) {
	m.config.OutputVolume = clampVolume(vol)
	if m.player != nil {
		m.player.SetVolume(m.config.OutputVolume)
	}
}

// GetConfig returns the current audio configuration
func (m *Manager) GetConfig() *AudioConfig {
	return m.config
}

func (m *Manager) finish(id uint64) {
	m.stateMu.Lock()
	if m.state != StateSpeaking || m.playID != id {
		m.stateMu.Unlock()
		return
	}
	m.state = StateIdle
	m.stateMu.Unlock()

	m.logger.Debug().Msg("Playback finished")
	m.publish(bus.EventTypeSpeakingStopped, nil)
}

func (m *Manager) publish(t bus.EventType, data map[string]any) {
	if m.eventBus == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["timestamp"] = time.Now()
	m.eventBus.Publish(bus.Event{Type: t, Data: data})
}
