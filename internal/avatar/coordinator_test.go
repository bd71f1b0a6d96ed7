package avatar

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/schedule/schedtest"
)

func testLibrary() *animation.Library {
	return animation.NewLibrary(
		animation.Clip{State: animation.StateIdle, Source: "Idle", Duration: 4 * time.Second, Loop: animation.LoopRepeat},
		animation.Clip{State: animation.StateEngagement, Source: "Offer", Duration: 1500 * time.Millisecond, Loop: animation.LoopOnce},
		animation.Clip{State: animation.StateGreeting, Source: "Hello", Duration: 2 * time.Second, Loop: animation.LoopOnce},
		animation.Clip{State: animation.StateFarewell, Source: "Bye", Duration: 2500 * time.Millisecond, Loop: animation.LoopOnce},
	)
}

// flakyRenderer fails plays for selected states and records every call.
type flakyRenderer struct {
	Renderer
	fail  map[animation.State]bool
	calls []animation.State
}

func (f *flakyRenderer) PlayAnimation(s animation.State) error {
	f.calls = append(f.calls, s)
	if f.fail[s] {
		return errors.New("boom")
	}
	return f.Renderer.PlayAnimation(s)
}

type harness struct {
	clock       *schedtest.FakeClock
	mixer       *animation.Mixer
	renderer    *flakyRenderer
	coord       *Coordinator
	started     []animation.State
	transitions []Transition
}

func newHarness(t *testing.T, lib *animation.Library) *harness {
	t.Helper()
	h := &harness{clock: schedtest.NewFakeClock()}
	h.mixer = animation.NewMixer(zerolog.Nop(), animation.WithBlinkSource(rand.NewSource(1)))
	require.NoError(t, h.mixer.Load(lib))

	h.renderer = &flakyRenderer{Renderer: h.mixer, fail: map[animation.State]bool{}}
	h.coord = NewCoordinator(NewSession(), h.renderer, zerolog.Nop(), WithClock(h.clock))
	h.coord.OnTransition(func(tr Transition) { h.transitions = append(h.transitions, tr) })
	h.mixer.Subscribe(h.coord.HandleMixerEvent)
	h.mixer.Subscribe(func(ev animation.Event) {
		if ev.Type == animation.EventStarted {
			h.started = append(h.started, ev.Action.Clip.State)
		}
	})

	require.NoError(t, h.mixer.PlayAnimation(animation.StateIdle))
	h.coord.Activate()
	h.started = nil
	return h
}

func (h *harness) current() animation.State {
	return h.coord.Session().Current
}

// run advances timers and frames together.
func (h *harness) run(d time.Duration) {
	const step = 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.clock.Advance(step)
		h.mixer.Tick(step)
	}
}

func TestAdmits(t *testing.T) {
	for _, current := range animation.AllStates() {
		for _, requested := range animation.AllStates() {
			want := requested.Priority() >= current.Priority() || current == animation.StateIdle
			assert.Equal(t, want, Admits(current, requested), "%s -> %s", current, requested)
		}
	}

	assert.False(t, Admits(animation.StateFarewell, animation.StateEngagement))
	assert.True(t, Admits(animation.StateFarewell, animation.StateGreeting))
	assert.True(t, Admits(animation.StateIdle, animation.StateIdle))
}

func TestRequestStateFollowsPriorityTable(t *testing.T) {
	for _, current := range animation.AllStates() {
		for _, requested := range animation.AllStates() {
			if current == requested {
				continue
			}
			h := newHarness(t, testLibrary())
			h.coord.Session().Current = current

			got := h.coord.RequestState(requested)
			if Admits(current, requested) {
				assert.Equal(t, OutcomeAdmitted, got, "%s -> %s", current, requested)
				assert.Equal(t, requested, h.current())
			} else {
				assert.Equal(t, OutcomeRejected, got, "%s -> %s", current, requested)
				assert.Equal(t, current, h.current())
				assert.Empty(t, h.renderer.calls)
			}
		}
	}
}

func TestRequestDroppedBeforeActivation(t *testing.T) {
	mixer := animation.NewMixer(zerolog.Nop())
	coord := NewCoordinator(NewSession(), mixer, zerolog.Nop(), WithClock(schedtest.NewFakeClock()))

	assert.Equal(t, OutcomeDropped, coord.RequestState(animation.StateGreeting))

	// activated but the model never loaded
	coord.Activate()
	assert.Equal(t, OutcomeDropped, coord.RequestState(animation.StateGreeting))
	assert.Equal(t, animation.StateIdle, coord.Session().Current)
}

func TestRequestDroppedAfterDispose(t *testing.T) {
	h := newHarness(t, testLibrary())
	h.coord.ScheduleIdleReturn(time.Second)
	h.coord.Dispose()

	assert.Equal(t, PhaseDisposed, h.coord.Session().Phase)
	assert.False(t, h.coord.IdleReturnPending())
	assert.Equal(t, OutcomeDropped, h.coord.RequestState(animation.StateGreeting))

	h.coord.Activate()
	assert.Equal(t, PhaseDisposed, h.coord.Session().Phase, "disposed sessions stay disposed")
}

func TestRequestCurrentStateIsUnchanged(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateEngagement))
	h.coord.ScheduleIdleReturn(5 * time.Second)

	assert.Equal(t, OutcomeUnchanged, h.coord.RequestState(animation.StateEngagement))
	assert.Equal(t, []animation.State{animation.StateEngagement}, h.started, "no new crossfade")
	assert.Len(t, h.transitions, 1)
	assert.True(t, h.coord.IdleReturnPending())
}

func TestGreetingReturnsToIdleBeforeClipEnds(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateGreeting))
	assert.True(t, h.coord.IdleReturnPending())

	h.clock.Advance(1799 * time.Millisecond)
	assert.Equal(t, animation.StateGreeting, h.current())

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, animation.StateIdle, h.current())
	assert.False(t, h.coord.IdleReturnPending())

	last := h.transitions[len(h.transitions)-1]
	assert.Equal(t, ReasonIdleReturn, last.Reason)
	assert.Equal(t, animation.StateGreeting, last.From)
}

func TestShortTerminalClipWaitsForFinished(t *testing.T) {
	lib := animation.NewLibrary(
		animation.Clip{State: animation.StateIdle, Source: "Idle", Duration: 4 * time.Second, Loop: animation.LoopRepeat},
		animation.Clip{State: animation.StateFarewell, Source: "Bye", Duration: 150 * time.Millisecond, Loop: animation.LoopOnce},
	)
	h := newHarness(t, lib)

	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateFarewell))
	assert.True(t, h.coord.idle.Awaiting())
	assert.Zero(t, h.clock.Pending(), "no timer for clips shorter than the crossfade")

	h.run(100 * time.Millisecond)
	assert.Equal(t, animation.StateFarewell, h.current())

	h.run(60 * time.Millisecond)
	assert.Equal(t, animation.StateIdle, h.current())
	assert.False(t, h.coord.IdleReturnPending())
}

func TestFinishedOfOtherActionIsIgnored(t *testing.T) {
	h := newHarness(t, testLibrary())
	h.coord.idle.AwaitFinished(999)

	h.coord.HandleMixerEvent(animation.Event{
		Type:   animation.EventFinished,
		Action: animation.ActionInfo{ID: 998, Clip: animation.Clip{State: animation.StateFarewell}},
	})
	assert.True(t, h.coord.IdleReturnPending())
}

func TestEngagementHoldsPose(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateEngagement))
	assert.False(t, h.coord.IdleReturnPending())

	h.run(3 * time.Second)
	assert.Equal(t, animation.StateEngagement, h.current())
}

func TestScheduleTwiceLeavesOneTimer(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateEngagement))

	h.coord.ScheduleIdleReturn(5 * time.Second)
	h.coord.ScheduleIdleReturn(8 * time.Second)
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, animation.StateEngagement, h.current())
	h.clock.Advance(3 * time.Second)
	assert.Equal(t, animation.StateIdle, h.current())
}

func TestAdmittedTransitionCancelsIdleReturn(t *testing.T) {
	h := newHarness(t, testLibrary())
	h.coord.ScheduleIdleReturn(5 * time.Second)

	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateEngagement))
	assert.False(t, h.coord.IdleReturnPending())

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, animation.StateEngagement, h.current())
}

func TestRejectionLeavesIdleReturnArmed(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateFarewell))
	require.True(t, h.coord.IdleReturnPending())

	assert.Equal(t, OutcomeRejected, h.coord.RequestState(animation.StateEngagement))
	assert.True(t, h.coord.IdleReturnPending())

	h.clock.Advance(2300 * time.Millisecond)
	assert.Equal(t, animation.StateIdle, h.current())
}

func TestCancelIdleReturnKeepsClipReturn(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateGreeting))

	h.coord.CancelIdleReturn()
	assert.True(t, h.coord.IdleReturnPending())
	assert.Equal(t, OutcomeRejected, h.coord.RequestState(animation.StateEngagement))

	h.clock.Advance(1800 * time.Millisecond)
	assert.Equal(t, animation.StateIdle, h.current())
}

func TestCancelIdleReturnKeepsFinishedWait(t *testing.T) {
	lib := animation.NewLibrary(
		animation.Clip{State: animation.StateIdle, Source: "Idle", Duration: 4 * time.Second, Loop: animation.LoopRepeat},
		animation.Clip{State: animation.StateFarewell, Source: "Bye", Duration: 150 * time.Millisecond, Loop: animation.LoopOnce},
	)
	h := newHarness(t, lib)
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateFarewell))

	h.coord.CancelIdleReturn()
	require.True(t, h.coord.idle.Awaiting())

	h.run(200 * time.Millisecond)
	assert.Equal(t, animation.StateIdle, h.current())
}

func TestCancelIdleReturnDisarmsScheduledReturn(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateEngagement))
	h.coord.ScheduleIdleReturn(5 * time.Second)

	h.coord.CancelIdleReturn()
	assert.False(t, h.coord.IdleReturnPending())

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, animation.StateEngagement, h.current())
}

func TestAdmittedTransitionReplacesClipReturn(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateFarewell))
	require.True(t, h.coord.idle.ClipPending())

	// greeting outranks farewell and arms its own return
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateGreeting))
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(1799 * time.Millisecond)
	assert.Equal(t, animation.StateGreeting, h.current())
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, animation.StateIdle, h.current())
}

func TestFailedPlayFallsBackToIdleOnce(t *testing.T) {
	h := newHarness(t, testLibrary())
	h.coord.Session().Current = animation.StateFarewell
	h.renderer.fail[animation.StateGreeting] = true

	assert.Equal(t, OutcomeFailed, h.coord.RequestState(animation.StateGreeting))
	assert.Equal(t, []animation.State{animation.StateGreeting, animation.StateIdle}, h.renderer.calls)
	assert.Equal(t, animation.StateIdle, h.current())
	assert.Equal(t, ReasonFallback, h.transitions[len(h.transitions)-1].Reason)
}

func TestFallbackSkipsPriorityGate(t *testing.T) {
	h := newHarness(t, testLibrary())
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateFarewell))
	h.renderer.calls = nil
	h.renderer.fail[animation.StateGreeting] = true

	// idle would be rejected from farewell if it were requested
	require.False(t, Admits(animation.StateFarewell, animation.StateIdle))
	assert.Equal(t, OutcomeFailed, h.coord.RequestState(animation.StateGreeting))
	assert.Equal(t, animation.StateIdle, h.current())
	assert.False(t, h.coord.IdleReturnPending())
}

func TestFallbackDoesNotRecurse(t *testing.T) {
	h := newHarness(t, testLibrary())
	h.coord.Session().Current = animation.StateFarewell
	h.renderer.fail[animation.StateGreeting] = true
	h.renderer.fail[animation.StateIdle] = true

	assert.Equal(t, OutcomeFailed, h.coord.RequestState(animation.StateGreeting))
	assert.Equal(t, []animation.State{animation.StateGreeting, animation.StateIdle}, h.renderer.calls)
	assert.Equal(t, animation.StateFarewell, h.current())
}

func TestUnknownClipFallsBack(t *testing.T) {
	lib := animation.NewLibrary(
		animation.Clip{State: animation.StateIdle, Source: "Idle", Duration: 4 * time.Second, Loop: animation.LoopRepeat},
		animation.Clip{State: animation.StateFarewell, Source: "Bye", Duration: 2 * time.Second, Loop: animation.LoopOnce},
	)
	h := newHarness(t, lib)
	require.Equal(t, OutcomeAdmitted, h.coord.RequestState(animation.StateFarewell))

	assert.Equal(t, OutcomeFailed, h.coord.RequestState(animation.StateGreeting))
	assert.Equal(t, animation.StateIdle, h.current())
	assert.False(t, h.coord.IdleReturnPending())
}

func TestFailedPlayFromIdleSkipsFallback(t *testing.T) {
	h := newHarness(t, testLibrary())
	h.renderer.fail[animation.StateEngagement] = true

	assert.Equal(t, OutcomeFailed, h.coord.RequestState(animation.StateEngagement))
	assert.Equal(t, []animation.State{animation.StateEngagement}, h.renderer.calls)
	assert.Equal(t, animation.StateIdle, h.current())
	assert.Empty(t, h.transitions)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "admitted", OutcomeAdmitted.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.True(t, OutcomeUnchanged.Accepted())
	assert.False(t, OutcomeDropped.Accepted())
}
