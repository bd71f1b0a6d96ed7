package animation

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
)

var (
	ErrNotLoaded    = errors.New("avatar not loaded")
	ErrUnknownClip  = errors.New("unknown animation clip")
	ErrEmptyLibrary = errors.New("animation library is empty")
)

// EventType identifies mixer notifications.
type EventType int

const (
	EventStarted EventType = iota
	EventFinished
)

func (t EventType) String() string {
	if t == EventFinished {
		return "finished"
	}
	return "started"
}

// ActionInfo is a snapshot of a playing clip.
type ActionInfo struct {
	ID      uint64        `json:"id"`
	Clip    Clip          `json:"clip"`
	Time    time.Duration `json:"time"`
	Weight  float32       `json:"weight"`
	Running bool          `json:"running"`
}

// Event is published after a clip starts or a once-clip reaches its end.
type Event struct {
	Type      EventType
	Action    ActionInfo
	Previous  State         // state of the action that was faded out, if any
	Crossfade time.Duration // blend window used when starting
}

// Layer is one clip's contribution to a rendered frame.
type Layer struct {
	State  State         `json:"state"`
	Source string        `json:"source"`
	Time   time.Duration `json:"time"`
	Weight float32       `json:"weight"`
}

// Frame is what the mix loop hands to the page every tick.
type Frame struct {
	Elapsed    time.Duration `json:"elapsed"`
	Layers     []Layer       `json:"layers"`
	EyesClosed bool          `json:"eyesClosed"`
}

// Presenter receives frames; the page renders them.
type Presenter interface {
	Present(Frame)
}

// Placement is the fixed scene framing the page applies once the model loads.
type Placement struct {
	ModelPosition  mgl32.Vec3 `json:"modelPosition"`
	ModelScale     float32    `json:"modelScale"`
	CameraPosition mgl32.Vec3 `json:"cameraPosition"`
	CameraTarget   mgl32.Vec3 `json:"cameraTarget"`
	FOV            float32    `json:"fov"`
}

// DefaultPlacement frames the upper body of the consultant model.
func DefaultPlacement() Placement {
	return Placement{
		ModelPosition:  mgl32.Vec3{0, -0.8, -2.3},
		ModelScale:     1.9,
		CameraPosition: mgl32.Vec3{0, 2.7, 2.2},
		CameraTarget:   mgl32.Vec3{0, 2, 0},
		FOV:            45,
	}
}

type action struct {
	id      uint64
	clip    Clip
	time    time.Duration
	weight  float32
	running bool

	fadeFrom     float32
	fadeTo       float32
	fadeElapsed  time.Duration
	fadeDuration time.Duration
	fading       bool
}

func (a *action) info() ActionInfo {
	return ActionInfo{ID: a.id, Clip: a.clip, Time: a.time, Weight: a.weight, Running: a.running}
}

func (a *action) startFade(to float32, d time.Duration) {
	if d <= 0 {
		a.weight = to
		a.fading = false
		return
	}
	a.fadeFrom = a.weight
	a.fadeTo = to
	a.fadeElapsed = 0
	a.fadeDuration = d
	a.fading = true
}

func (a *action) advanceFade(dt time.Duration) {
	if !a.fading {
		return
	}
	a.fadeElapsed += dt
	if a.fadeElapsed >= a.fadeDuration {
		a.weight = a.fadeTo
		a.fading = false
		return
	}
	t := float32(a.fadeElapsed) / float32(a.fadeDuration)
	a.weight = mgl32.Clamp(a.fadeFrom+(a.fadeTo-a.fadeFrom)*t, 0, 1)
}

// Mixer plays at most one clip at a time, crossfading between clips. It is
// the render-side collaborator of the coordinator.
type Mixer struct {
	mu sync.Mutex

	logger    zerolog.Logger
	library   *Library
	loaded    bool
	crossfade time.Duration
	placement Placement

	ready     chan struct{}
	readyOnce sync.Once

	actions []*action
	current *action
	nextID  uint64
	elapsed time.Duration

	blink     *blinker
	presenter Presenter
	listeners []func(Event)
}

// MixerOption configures a Mixer.
type MixerOption func(*Mixer)

// WithCrossfade overrides the blend window.
func WithCrossfade(d time.Duration) MixerOption {
	return func(m *Mixer) { m.crossfade = d }
}

// WithPresenter sets the frame sink.
func WithPresenter(p Presenter) MixerOption {
	return func(m *Mixer) { m.presenter = p }
}

// WithPlacement overrides the scene framing.
func WithPlacement(p Placement) MixerOption {
	return func(m *Mixer) { m.placement = p }
}

// WithBlinkSource seeds the eye blink cadence.
func WithBlinkSource(src rand.Source) MixerOption {
	return func(m *Mixer) { m.blink = newBlinker(src) }
}

// NewMixer creates an unloaded mixer.
func NewMixer(logger zerolog.Logger, opts ...MixerOption) *Mixer {
	m := &Mixer{
		logger:    logger.With().Str("component", "mixer").Logger(),
		crossfade: CrossfadeDuration,
		placement: DefaultPlacement(),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.blink == nil {
		m.blink = newBlinker(rand.NewSource(time.Now().UnixNano()))
	}
	return m
}

// Load installs the clip library and resolves the readiness future.
func (m *Mixer) Load(lib *Library) error {
	if lib.Len() == 0 {
		return ErrEmptyLibrary
	}

	m.mu.Lock()
	m.library = lib
	m.loaded = true
	m.mu.Unlock()

	for _, c := range lib.Clips() {
		m.logger.Info().
			Str("state", c.State.String()).
			Str("source", c.Source).
			Dur("duration", c.Duration).
			Str("loop", c.Loop.String()).
			Msg("Clip loaded")
	}
	if missing := lib.Missing(); len(missing) > 0 {
		m.logger.Warn().Interface("missing", missing).Msg("Model has no clip for some states")
	}

	m.readyOnce.Do(func() { close(m.ready) })
	return nil
}

// Ready is closed once the mixer has a library.
func (m *Mixer) Ready() <-chan struct{} {
	return m.ready
}

// IsLoaded reports whether clips can be played.
func (m *Mixer) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Placement returns the scene framing.
func (m *Mixer) Placement() Placement {
	return m.placement
}

// Library returns the loaded clip library, or nil.
func (m *Mixer) Library() *Library {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.library
}

// Subscribe registers fn for started/finished events. Events are delivered
// synchronously on the goroutine that caused them, after the mixer has
// released its lock.
func (m *Mixer) Subscribe(fn func(Event)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SetPresenter replaces the frame sink.
func (m *Mixer) SetPresenter(p Presenter) {
	m.mu.Lock()
	m.presenter = p
	m.mu.Unlock()
}

// PlayAnimation crossfades to the clip for s. Asking for the clip that is
// already running is a no-op.
func (m *Mixer) PlayAnimation(s State) error {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	clip, ok := m.library.Get(s)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownClip, s)
	}
	if m.current != nil && m.current.clip.State == s && m.current.running {
		m.mu.Unlock()
		return nil
	}

	prev := m.current
	m.nextID++
	next := &action{id: m.nextID, clip: clip, running: true}
	next.startFade(1, m.crossfade)

	// A clip has a single action; restarting it replaces the old one.
	kept := m.actions[:0]
	for _, a := range m.actions {
		if a.clip.State != s {
			kept = append(kept, a)
		}
	}
	m.actions = append(kept, next)
	m.current = next

	ev := Event{Type: EventStarted, Action: next.info(), Crossfade: m.crossfade}
	if prev != nil && prev.clip.State != s {
		prev.startFade(0, m.crossfade)
		ev.Previous = prev.clip.State
	}
	listeners := m.listeners
	m.mu.Unlock()

	m.logger.Debug().
		Str("from", string(ev.Previous)).
		Str("to", s.String()).
		Dur("crossfade", m.crossfade).
		Msg("Crossfade started")

	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// Tick advances clip times and blend weights by dt and presents a frame.
func (m *Mixer) Tick(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return
	}
	m.elapsed += dt

	var events []Event
	kept := m.actions[:0]
	for _, a := range m.actions {
		if a.running {
			a.time += dt
			switch {
			case a.clip.Loop == LoopOnce && a.time >= a.clip.Duration:
				a.time = a.clip.Duration
				a.running = false
				events = append(events, Event{Type: EventFinished, Action: a.info()})
			case a.clip.Loop == LoopRepeat && a.clip.Duration > 0:
				a.time %= a.clip.Duration
			}
		}
		a.advanceFade(dt)
		if a != m.current && !a.fading && a.weight <= 0 {
			continue
		}
		kept = append(kept, a)
	}
	m.actions = kept

	frame := Frame{
		Elapsed:    m.elapsed,
		Layers:     make([]Layer, 0, len(m.actions)),
		EyesClosed: m.blink.advance(dt),
	}
	for _, a := range m.actions {
		frame.Layers = append(frame.Layers, Layer{
			State:  a.clip.State,
			Source: a.clip.Source,
			Time:   a.time,
			Weight: a.weight,
		})
	}
	presenter := m.presenter
	listeners := m.listeners
	m.mu.Unlock()

	if presenter != nil {
		presenter.Present(frame)
	}
	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// Current returns the action that was started last.
func (m *Mixer) Current() (ActionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ActionInfo{}, false
	}
	return m.current.info(), true
}

// Actions returns every action that still contributes to the frame.
func (m *Mixer) Actions() []ActionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActionInfo, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, a.info())
	}
	return out
}

// Stop unloads the mixer. Ready stays resolved.
func (m *Mixer) Stop() {
	m.mu.Lock()
	m.loaded = false
	m.actions = nil
	m.current = nil
	m.mu.Unlock()
}

// blinker closes the eyes for 150-250ms every 2-4s.
type blinker struct {
	rng    *rand.Rand
	until  time.Duration // time left in the current phase
	closed bool
}

func newBlinker(src rand.Source) *blinker {
	b := &blinker{rng: rand.New(src)}
	b.until = time.Second + b.jitter(500*time.Millisecond)
	return b
}

func (b *blinker) jitter(max time.Duration) time.Duration {
	return time.Duration(b.rng.Int63n(int64(max)))
}

func (b *blinker) advance(dt time.Duration) bool {
	b.until -= dt
	for b.until <= 0 {
		if b.closed {
			b.closed = false
			b.until += 2*time.Second + b.jitter(2*time.Second)
		} else {
			b.closed = true
			b.until += 150*time.Millisecond + b.jitter(100*time.Millisecond)
		}
	}
	return b.closed
}
