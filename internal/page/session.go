// Package page assembles everything one page load needs: the avatar loop,
// the activity monitor, the chat and the voice features, joined by a bus.
// Transports feed page signals in and forward bus events out.
package page

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/activity"
	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/avatar"
	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/schedule"
	"github.com/normanking/consultavatar/internal/voice"
)

// ErrNoModel is returned by ModelLoaded when no clip library is configured.
var ErrNoModel = errors.New("no avatar model configured")

// Deps are the shared collaborators of every page.
type Deps struct {
	Library   *animation.Library // nil leaves the avatar inert
	Asker     chat.Asker
	STT       voice.Transcriber
	TTS       voice.Synthesizer
	RoundTrip *voice.Client // optional
}

// Options tune one page.
type Options struct {
	Runtime   avatar.RuntimeConfig
	Timings   activity.Timings
	Mixer     []animation.MixerOption
	Chat      chat.ServiceConfig
	History   chat.HistoryConfig
	Audio     *audio.AudioConfig
	Texts     voice.Texts
	VoiceID   string
	Presenter animation.Presenter
}

// DefaultOptions returns the stock page settings.
func DefaultOptions() Options {
	return Options{
		Runtime: avatar.DefaultRuntimeConfig(),
		Timings: activity.DefaultTimings(),
		Chat:    chat.DefaultServiceConfig(),
		History: chat.DefaultHistoryConfig(),
		Audio:   audio.DefaultAudioConfig(),
		Texts:   voice.DefaultTexts(),
		VoiceID: "xenia",
	}
}

// Session is one page load.
type Session struct {
	deps   Deps
	logger zerolog.Logger

	bus     *bus.EventBus
	mixer   *animation.Mixer
	runtime *avatar.Runtime
	monitor *activity.Monitor
	chat    *chat.Service
	audio   *audio.Manager
	voice   *voice.Interface
}

// New wires a page. player plays the synthesized speech; the widget passes
// one that streams to the browser, the desktop shell the local speaker.
func New(deps Deps, opts Options, player audio.Player, logger zerolog.Logger) *Session {
	mixerOpts := append([]animation.MixerOption{}, opts.Mixer...)
	if opts.Presenter != nil {
		mixerOpts = append(mixerOpts, animation.WithPresenter(opts.Presenter))
	}

	if opts.Runtime.Clock == nil {
		opts.Runtime.Clock = schedule.RealClock()
	}

	s := &Session{
		deps: deps,
		bus:  bus.NewEventBus(),
	}
	s.mixer = animation.NewMixer(logger, mixerOpts...)
	s.runtime = avatar.NewRuntime(s.mixer, opts.Runtime, logger)
	s.logger = logger.With().
		Str("component", "page").
		Str("session", s.runtime.Coordinator().Session().ID.String()).
		Logger()

	post := func(f func()) { _ = s.runtime.Post(f) }
	s.monitor = activity.NewMonitor(s.runtime.Coordinator(), opts.Timings, opts.Runtime.Clock, post, logger)
	s.monitor.Attach(s.bus, post)

	s.runtime.Coordinator().OnTransition(func(t avatar.Transition) {
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeAvatarStateChanged,
			Data: map[string]any{
				"from":   string(t.From),
				"to":     string(t.To),
				"reason": t.Reason,
			},
		})
	})
	s.runtime.OnActive(func() {
		s.monitor.Start()
		s.monitor.Loaded()
	})

	s.chat = chat.NewService(deps.Asker, chat.NewHistory(opts.History), opts.Chat, logger)
	s.chat.Publish(s.bus)

	s.audio = audio.NewManager(opts.Audio, player, s.bus, logger)
	s.voice = voice.NewInterface(voice.Deps{
		STT:       deps.STT,
		TTS:       deps.TTS,
		Playback:  s.audio,
		Chat:      s.chat,
		RoundTrip: deps.RoundTrip,
		Alerter:   voice.BusAlerter(s.bus),
		Events:    s.bus,
	}, opts.Texts, opts.VoiceID, logger)

	return s
}

// ID identifies the page session.
func (s *Session) ID() uuid.UUID {
	return s.runtime.Coordinator().Session().ID
}

// Clips lists the clips the page can play, or nil without a model.
func (s *Session) Clips() []animation.Clip {
	return s.deps.Library.Clips()
}

// Bus returns the page's event bus.
func (s *Session) Bus() *bus.EventBus { return s.bus }

// Runtime returns the avatar loop.
func (s *Session) Runtime() *avatar.Runtime { return s.runtime }

// Chat returns the chat service.
func (s *Session) Chat() *chat.Service { return s.chat }

// Voice returns the voice features.
func (s *Session) Voice() *voice.Interface { return s.voice }

// Audio returns the playback state.
func (s *Session) Audio() *audio.Manager { return s.audio }

// Placement returns the scene framing the page should apply.
func (s *Session) Placement() animation.Placement { return s.mixer.Placement() }

// Run appends the welcome message and runs the avatar loop until ctx ends.
func (s *Session) Run(ctx context.Context) {
	s.chat.Welcome()
	s.runtime.Run(ctx)
}

// ModelLoaded reports that the page finished loading the model. It
// resolves the avatar's readiness.
func (s *Session) ModelLoaded() error {
	if s.deps.Library == nil {
		return ErrNoModel
	}
	if err := s.mixer.Load(s.deps.Library); err != nil {
		return err
	}
	s.bus.Publish(bus.Event{Type: bus.EventTypeModelLoaded, Data: map[string]any{"clips": s.deps.Library.Len()}})
	return nil
}

// ModelFailed reports that the page could not load the model. The avatar
// stays inert; chat and voice keep working.
func (s *Session) ModelFailed(reason string) {
	s.logger.Warn().Str("reason", reason).Msg("Page could not load the avatar model")
	s.bus.Publish(bus.Event{Type: bus.EventTypeModelFailed, Data: map[string]any{"reason": reason}})
}

// Focus reports the chat input gaining focus.
func (s *Session) Focus() { s.signal(bus.EventTypePageFocus, nil) }

// Input reports typing in the chat input.
func (s *Session) Input() { s.signal(bus.EventTypePageInput, nil) }

// Activity reports mouse, key or click activity.
func (s *Session) Activity() { s.signal(bus.EventTypePageActivity, nil) }

// PointerLeave reports the pointer leaving the viewport at clientY.
func (s *Session) PointerLeave(clientY float64) {
	s.signal(bus.EventTypePointerLeave, map[string]any{"clientY": clientY})
}

// Unload reports the page going away.
func (s *Session) Unload() { s.signal(bus.EventTypePageUnload, nil) }

// signal delivers page events synchronously so they reach the loop in the
// order the page sent them.
func (s *Session) signal(t bus.EventType, data map[string]any) {
	s.bus.PublishSync(bus.Event{Type: t, Data: data})
}

// Snapshot returns the avatar session state.
func (s *Session) Snapshot(ctx context.Context) (avatar.Session, error) {
	return s.runtime.Snapshot(ctx)
}
