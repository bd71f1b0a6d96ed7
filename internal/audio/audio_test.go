package audio

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/consultavatar/internal/bus"
)

// fakePlayer records clips and finishes them on demand.
type fakePlayer struct {
	mu      sync.Mutex
	played  [][]byte
	pending func()
	volume  float64
	err     error
}

func (p *fakePlayer) Play(data []byte, onDone func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.played = append(p.played, data)
	p.pending = onDone
	return nil
}

func (p *fakePlayer) Stop() { p.complete() }

func (p *fakePlayer) SetVolume(vol float64) {
	p.mu.Lock()
	p.volume = vol
	p.mu.Unlock()
}

func (p *fakePlayer) complete() {
	p.mu.Lock()
	done := p.pending
	p.pending = nil
	p.mu.Unlock()
	if done != nil {
		done()
	}
}

func silence(d time.Duration, rate int) []byte {
	samples := int(d.Seconds() * float64(rate))
	return EncodeWAV(make([]byte, samples*2), rate, 1)
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := EncodeWAV(pcm, 0, 0)

	require.Len(t, wav, 48)
	assert.True(t, IsWAV(wav))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
	assert.False(t, IsWAV(pcm))
}

func TestInspect(t *testing.T) {
	info, err := Inspect(silence(1500*time.Millisecond, 48000))
	require.NoError(t, err)

	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 72000, info.Samples)
	assert.Equal(t, 1500*time.Millisecond, info.Duration)

	_, err = Inspect([]byte("not a wav file"))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestManagerSpeakGuardsReplay(t *testing.T) {
	player := &fakePlayer{}
	m := NewManager(nil, player, nil, zerolog.Nop())
	clip := silence(100*time.Millisecond, 16000)

	done := 0
	require.NoError(t, m.Speak(clip, func() { done++ }))
	assert.True(t, m.IsPlaying())
	assert.Equal(t, StateSpeaking, m.GetState())

	assert.ErrorIs(t, m.Speak(clip, nil), ErrBusy)
	assert.ErrorIs(t, m.StartListening(), ErrBusy)
	assert.Len(t, player.played, 1)

	player.complete()
	assert.False(t, m.IsPlaying())
	assert.Equal(t, 1, done)

	require.NoError(t, m.Speak(clip, nil))
	assert.Len(t, player.played, 2)
}

func TestManagerStopSpeaking(t *testing.T) {
	player := &fakePlayer{}
	m := NewManager(nil, player, nil, zerolog.Nop())

	assert.ErrorIs(t, m.StopSpeaking(), ErrNotPlaying)

	require.NoError(t, m.Speak(silence(time.Second, 16000), nil))
	require.NoError(t, m.StopSpeaking())
	assert.Equal(t, StateIdle, m.GetState())
}

func TestManagerPlayFailureResetsState(t *testing.T) {
	player := &fakePlayer{err: assert.AnError}
	m := NewManager(nil, player, nil, zerolog.Nop())

	err := m.Speak(silence(time.Second, 16000), nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StateIdle, m.GetState())
}

func TestManagerListeningPublishesEvents(t *testing.T) {
	eventBus := bus.NewEventBus()
	events := make(chan bus.EventType, 4)
	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeRecordingStarted,
		bus.EventTypeRecordingStopped,
	}, func(e bus.Event) { events <- e.Type })

	m := NewManager(nil, &fakePlayer{}, eventBus, zerolog.Nop())
	require.NoError(t, m.StartListening())
	assert.Equal(t, StateListening, m.GetState())
	assert.Equal(t, bus.EventTypeRecordingStarted, <-events)

	m.StopListening()
	assert.Equal(t, StateIdle, m.GetState())
	assert.Equal(t, bus.EventTypeRecordingStopped, <-events)

	m.StopListening()
	assert.Empty(t, events)
}

func TestManagerVolume(t *testing.T) {
	player := &fakePlayer{}
	m := NewManager(nil, player, nil, zerolog.Nop())
	assert.Equal(t, 0.8, player.volume)

	m.SetVolume(1.5)
	assert.Equal(t, 1.0, player.volume)
	m.SetVolume(-1)
	assert.Equal(t, 0.0, m.GetConfig().OutputVolume)
}

func TestManagerWithoutPlayer(t *testing.T) {
	m := NewManager(nil, nil, nil, zerolog.Nop())

	assert.ErrorIs(t, m.Speak(silence(time.Second, 16000), nil), ErrNoPlayer)
	assert.Equal(t, StateIdle, m.GetState())
	assert.ErrorIs(t, m.StopSpeaking(), ErrNotPlaying)

	m.SetVolume(0.5)
	assert.Equal(t, 0.5, m.GetConfig().OutputVolume)

	require.NoError(t, m.StartListening())
	assert.Equal(t, StateListening, m.GetState())
}

func TestVolumeToPower(t *testing.T) {
	assert.Equal(t, 0.0, volumeToPower(1))
	assert.Equal(t, -1.0, volumeToPower(0.5))
	assert.Equal(t, -10.0, volumeToPower(0))
}
