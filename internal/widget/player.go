package widget

import (
	"errors"
	"strconv"
	"sync"

	"github.com/normanking/consultavatar/internal/audio"
)

// ErrPageGone is returned when audio cannot be handed to the page.
var ErrPageGone = errors.New("page connection closed")

// PagePlayer plays speech in the browser. The clip is sent as audio.play
// and playback ends when the page answers with audio.ended.
type PagePlayer struct {
	emit func(Outbound) bool

	mu      sync.Mutex
	nextID  uint64
	pending map[string]func()
	volume  float64
}

var _ audio.Player = (*PagePlayer)(nil)

// NewPagePlayer creates a player that sends through emit. emit reports
// whether the message was queued.
func NewPagePlayer(emit func(Outbound) bool) *PagePlayer {
	return &PagePlayer{
		emit:    emit,
		pending: make(map[string]func()),
		volume:  1,
	}
}

// Play sends data to the page.
func (p *PagePlayer) Play(data []byte, onDone func()) error {
	p.mu.Lock()
	p.nextID++
	id := strconv.FormatUint(p.nextID, 10)
	p.pending[id] = onDone
	volume := p.volume
	p.mu.Unlock()

	ok := p.emit(Outbound{Type: TypeAudioPlay, ID: id, Data: map[string]any{
		"audio":  data,
		"format": string(audio.FormatWAV),
		"volume": volume,
	}})
	if !ok {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return ErrPageGone
	}
	return nil
}

// Ended completes the playback with id. Unknown IDs are ignored.
func (p *PagePlayer) Ended(id string) bool {
	p.mu.Lock()
	onDone, ok := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	if ok && onDone != nil {
		onDone()
	}
	return ok
}

// Stop tells the page to stop and completes every pending playback.
func (p *PagePlayer) Stop() {
	for _, id := range p.ids() {
		p.emit(Outbound{Type: TypeAudioStop, ID: id})
		p.Ended(id)
	}
}

// SetVolume forwards the output volume to the page.
func (p *PagePlayer) SetVolume(vol float64) {
	p.mu.Lock()
	p.volume = vol
	p.mu.Unlock()
	p.emit(Outbound{Type: TypeAudioLevel, Data: map[string]any{"volume": vol}})
}

// Close completes every pending playback without notifying the page.
func (p *PagePlayer) Close() {
	for _, id := range p.ids() {
		p.Ended(id)
	}
}

func (p *PagePlayer) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	return ids
}
