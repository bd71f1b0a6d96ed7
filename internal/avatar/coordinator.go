// Package avatar decides which animation the avatar plays. Every request
// passes a static priority gate before it reaches the renderer.
package avatar

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/metrics"
	"github.com/normanking/consultavatar/internal/schedule"
)

// Renderer plays clips. animation.Mixer implements it.
type Renderer interface {
	IsLoaded() bool
	PlayAnimation(animation.State) error
}

// Outcome is the result of a state request.
type Outcome int

const (
	// OutcomeDropped: the session or renderer was not ready.
	OutcomeDropped Outcome = iota
	// OutcomeRejected: a lower priority state was requested while a
	// non-idle state was current.
	OutcomeRejected
	// OutcomeUnchanged: the requested state is already current.
	OutcomeUnchanged
	// OutcomeAdmitted: the renderer is playing the requested state.
	OutcomeAdmitted
	// OutcomeFailed: the renderer refused the clip.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Accepted reports whether the requested state is current after the call.
func (o Outcome) Accepted() bool {
	return o == OutcomeAdmitted || o == OutcomeUnchanged
}

// Transition describes a change of the current state.
type Transition struct {
	From   animation.State `json:"from"`
	To     animation.State `json:"to"`
	Reason string          `json:"reason"`
	At     time.Time       `json:"at"`
}

const (
	ReasonRequest    = "request"
	ReasonIdleReturn = "idle-return"
	ReasonFallback   = "fallback"
)

// Admits reports whether requested may preempt current.
func Admits(current, requested animation.State) bool {
	return current == animation.StateIdle || requested.Priority() >= current.Priority()
}

// Coordinator gates animation requests for one session. It is not safe for
// concurrent use; Runtime serializes all calls on its loop.
type Coordinator struct {
	session  *Session
	renderer Renderer
	idle     *IdleReturn
	clock    schedule.Clock
	dispatch func(func())
	logger   zerolog.Logger

	listeners []func(Transition)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock sets the clock used for idle-return timers.
func WithClock(clock schedule.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clock }
}

// WithDispatch routes timer callbacks through dispatch, usually the
// runtime's loop.
func WithDispatch(dispatch func(func())) CoordinatorOption {
	return func(c *Coordinator) { c.dispatch = dispatch }
}

// NewCoordinator creates a coordinator for session.
func NewCoordinator(session *Session, renderer Renderer, logger zerolog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		session:  session,
		renderer: renderer,
		clock:    schedule.RealClock(),
		logger: logger.With().
			Str("component", "coordinator").
			Str("session", session.ID.String()).
			Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.idle = NewIdleReturn(c.clock, c.dispatch, c.returnToIdle)
	return c
}

// Session returns the coordinated session.
func (c *Coordinator) Session() *Session {
	return c.session
}

// OnTransition registers fn to be called after every state change.
func (c *Coordinator) OnTransition(fn func(Transition)) {
	c.listeners = append(c.listeners, fn)
}

// Activate marks the session initialized. Requests are dropped until then.
func (c *Coordinator) Activate() {
	if c.session.Phase == PhaseDisposed {
		return
	}
	c.session.Initialized = true
	c.session.Phase = PhaseActive
	c.logger.Info().Msg("Session active")
}

// Dispose disarms the idle return and makes the coordinator inert.
func (c *Coordinator) Dispose() {
	c.idle.Reset()
	c.session.Initialized = false
	c.session.Phase = PhaseDisposed
	c.logger.Info().Str("last", c.session.Current.String()).Msg("Session disposed")
}

// RequestState asks for a transition to name.
func (c *Coordinator) RequestState(name animation.State) Outcome {
	if !c.session.Initialized || !c.renderer.IsLoaded() {
		c.logger.Debug().Str("requested", name.String()).Msg("Avatar not ready, request dropped")
		metrics.Drops.Inc()
		return OutcomeDropped
	}

	current := c.session.Current
	if name == current {
		return OutcomeUnchanged
	}
	if !Admits(current, name) {
		c.logger.Info().
			Str("current", current.String()).
			Str("requested", name.String()).
			Msg("Animation request rejected by priority")
		metrics.Rejections.WithLabelValues(current.String(), name.String()).Inc()
		return OutcomeRejected
	}

	c.idle.Reset()
	if err := c.renderer.PlayAnimation(name); err != nil {
		c.logger.Error().Err(err).Str("requested", name.String()).Msg("Failed to play animation")
		if name != animation.StateIdle {
			c.fallbackToIdle(name)
		}
		return OutcomeFailed
	}

	c.setCurrent(name, ReasonRequest)
	return OutcomeAdmitted
}

// ScheduleIdleReturn arms a return to idle after delay, replacing any
// pending return.
func (c *Coordinator) ScheduleIdleReturn(delay time.Duration) {
	c.idle.Schedule(delay)
}

// CancelIdleReturn disarms a return armed by ScheduleIdleReturn. The
// return keyed to a greeting or farewell clip stays armed.
func (c *Coordinator) CancelIdleReturn() {
	c.idle.Cancel()
}

// IdleReturnPending reports whether a return to idle is armed.
func (c *Coordinator) IdleReturnPending() bool {
	return c.idle.Pending()
}

// HandleMixerEvent arms the clip-keyed idle return when a terminal clip
// starts, and completes a finished-event wait.
func (c *Coordinator) HandleMixerEvent(ev animation.Event) {
	if !c.session.Initialized {
		return
	}
	clip := ev.Action.Clip

	switch ev.Type {
	case animation.EventStarted:
		if !clip.State.Terminal() {
			return
		}
		delay := clip.Duration - ev.Crossfade
		if delay > 0 {
			c.logger.Debug().Str("state", clip.State.String()).Dur("delay", delay).Msg("Idle return keyed to clip")
			c.idle.ScheduleClip(delay)
			return
		}
		c.logger.Debug().Str("state", clip.State.String()).Uint64("action", ev.Action.ID).Msg("Clip shorter than crossfade, awaiting finish")
		c.idle.AwaitFinished(ev.Action.ID)

	case animation.EventFinished:
		c.idle.Finished(ev.Action.ID)
	}
}

// returnToIdle runs when an idle return comes due. Every admitted
// transition cancels the pending return, so a return that fires always
// belongs to the current state and is applied without the priority gate.
func (c *Coordinator) returnToIdle() {
	if !c.session.Initialized || !c.renderer.IsLoaded() {
		return
	}
	from := c.session.Current
	if from == animation.StateIdle {
		return
	}
	if err := c.renderer.PlayAnimation(animation.StateIdle); err != nil {
		c.logger.Error().Err(err).Msg("Failed to return to idle")
		return
	}
	metrics.IdleReturns.WithLabelValues(from.String()).Inc()
	c.setCurrent(animation.StateIdle, ReasonIdleReturn)
}

// fallbackToIdle is the single recovery hop after a failed play. Like
// returnToIdle it skips the priority gate: the failed request already
// cleared the pending return, so the state it left behind has nothing
// that would hand it back to idle.
func (c *Coordinator) fallbackToIdle(failed animation.State) {
	metrics.Fallbacks.WithLabelValues(failed.String()).Inc()
	if c.session.Current == animation.StateIdle {
		return
	}
	if err := c.renderer.PlayAnimation(animation.StateIdle); err != nil {
		c.logger.Error().Err(err).Msg("Fallback to idle failed")
		return
	}
	c.setCurrent(animation.StateIdle, ReasonFallback)
}

func (c *Coordinator) setCurrent(to animation.State, reason string) {
	t := Transition{
		From:   c.session.Current,
		To:     to,
		Reason: reason,
		At:     c.clock.Now(),
	}
	c.session.Current = to
	c.session.ChangedAt = t.At

	metrics.Transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	c.logger.Info().
		Str("from", t.From.String()).
		Str("to", t.To.String()).
		Str("reason", reason).
		Msg("Animation state changed")

	for _, fn := range c.listeners {
		fn(t)
	}
}
