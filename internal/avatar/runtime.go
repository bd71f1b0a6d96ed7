package avatar

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/metrics"
	"github.com/normanking/consultavatar/internal/schedule"
)

// ErrStopped is returned when posting to a runtime whose loop has exited.
var ErrStopped = errors.New("avatar runtime stopped")

// RuntimeConfig controls the session loop.
type RuntimeConfig struct {
	// FrameRate is the mix loop cadence. Zero disables the ticker; frames
	// are then driven by Tick.
	FrameRate int
	// PollInterval * MaxAttempts bounds the wait for the avatar to load.
	PollInterval time.Duration
	MaxAttempts  int
	// Clock drives timers. Nil uses the wall clock.
	Clock schedule.Clock
}

// DefaultRuntimeConfig returns 60fps and a 15s readiness bound.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		FrameRate:    60,
		PollInterval: 500 * time.Millisecond,
		MaxAttempts:  30,
	}
}

// ReadyTimeout is the longest the runtime waits for the avatar to load.
func (c RuntimeConfig) ReadyTimeout() time.Duration {
	return c.PollInterval * time.Duration(c.MaxAttempts)
}

// Runtime is the event loop of one page session. The coordinator, its timer
// callbacks and the mix loop tick all run on the loop goroutine.
type Runtime struct {
	cfg    RuntimeConfig
	mixer  *animation.Mixer
	coord  *Coordinator
	logger zerolog.Logger

	tasks    chan func()
	done     chan struct{}
	onActive []func()
}

// NewRuntime creates a session for mixer. Call Run to start it.
func NewRuntime(mixer *animation.Mixer, cfg RuntimeConfig, logger zerolog.Logger) *Runtime {
	if cfg.Clock == nil {
		cfg.Clock = schedule.RealClock()
	}
	r := &Runtime{
		cfg:    cfg,
		mixer:  mixer,
		logger: logger.With().Str("component", "runtime").Logger(),
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	r.coord = NewCoordinator(NewSession(), mixer, logger,
		WithClock(cfg.Clock),
		WithDispatch(func(f func()) { _ = r.Post(f) }),
	)
	mixer.Subscribe(r.coord.HandleMixerEvent)
	return r
}

// Coordinator returns the session's coordinator. Only call its methods from
// the loop, e.g. inside Post or Do.
func (r *Runtime) Coordinator() *Coordinator {
	return r.coord
}

// Mixer returns the session's mixer.
func (r *Runtime) Mixer() *animation.Mixer {
	return r.mixer
}

// OnActive registers fn to run on the loop once the avatar is ready. Must
// be called before Run.
func (r *Runtime) OnActive(fn func()) {
	r.onActive = append(r.onActive, fn)
}

// Post queues f to run on the loop.
func (r *Runtime) Post(f func()) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.tasks <- f:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Do runs f on the loop and waits for it.
func (r *Runtime) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if err := r.Post(func() {
		defer close(finished)
		f()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestState posts a state request to the loop.
func (r *Runtime) RequestState(name animation.State) error {
	return r.Post(func() { r.coord.RequestState(name) })
}

// Snapshot returns a copy of the session.
func (r *Runtime) Snapshot(ctx context.Context) (Session, error) {
	var s Session
	err := r.Do(ctx, func() { s = r.coord.Session().Snapshot() })
	return s, err
}

// Tick advances the mix loop by dt on the loop.
func (r *Runtime) Tick(dt time.Duration) error {
	return r.Post(func() { r.mixer.Tick(dt) })
}

// Done is closed when the loop has exited.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Run processes tasks and frames until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	defer close(r.done)

	go r.awaitReady(ctx)

	var frames <-chan time.Time
	if r.cfg.FrameRate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(r.cfg.FrameRate))
		defer ticker.Stop()
		frames = ticker.C
	}
	last := time.Now()

	r.logger.Debug().Str("session", r.coord.Session().ID.String()).Msg("Session loop started")
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case f := <-r.tasks:
			f()
		case now := <-frames:
			r.mixer.Tick(now.Sub(last))
			last = now
		}
	}
}

func (r *Runtime) awaitReady(ctx context.Context) {
	timeout := r.cfg.ReadyTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.mixer.Ready():
		_ = r.Post(r.activate)
	case <-timer.C:
		// the session stays inert: Initialized never becomes true
		metrics.ReadyTimeouts.Inc()
		r.logger.Warn().Dur("waited", timeout).Msg("Avatar did not become ready, animations disabled")
	case <-ctx.Done():
	}
}

func (r *Runtime) activate() {
	if err := r.mixer.PlayAnimation(animation.StateIdle); err != nil {
		r.logger.Warn().Err(err).Msg("Model has no idle clip")
	}
	r.coord.Activate()
	for _, fn := range r.onActive {
		fn()
	}
}

func (r *Runtime) shutdown() {
	// drain work queued before cancellation, e.g. the unload farewell
	for {
		select {
		case f := <-r.tasks:
			f()
			continue
		default:
		}
		break
	}
	r.coord.Dispose()
	r.mixer.Stop()
}
