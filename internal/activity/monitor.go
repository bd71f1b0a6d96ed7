// Package activity turns page activity into avatar state requests.
package activity

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/avatar"
	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/schedule"
)

// Target is the part of the coordinator the monitor drives.
type Target interface {
	RequestState(animation.State) avatar.Outcome
	ScheduleIdleReturn(time.Duration)
	CancelIdleReturn()
	Session() *avatar.Session
}

// Timings are the windows the monitor works with.
type Timings struct {
	MessageIdleDelay  time.Duration
	InactivityTimeout time.Duration
	FarewellCooldown  time.Duration
}

// DefaultTimings returns 5s message hold, 20s inactivity, 3s farewell
// cool-down.
func DefaultTimings() Timings {
	return Timings{
		MessageIdleDelay:  5 * time.Second,
		InactivityTimeout: 20 * time.Second,
		FarewellCooldown:  3 * time.Second,
	}
}

// Monitor maps page signals onto the coordinator. Like the coordinator it
// must only be called from the session loop.
type Monitor struct {
	target  Target
	timings Timings
	logger  zerolog.Logger

	inactivity *schedule.Slot
	cooldown   *schedule.Slot
	leaving    bool
	greeted    bool
}

// NewMonitor creates a monitor. Timer callbacks go through dispatch.
func NewMonitor(target Target, timings Timings, clock schedule.Clock, dispatch func(func()), logger zerolog.Logger) *Monitor {
	return &Monitor{
		target:     target,
		timings:    timings,
		logger:     logger.With().Str("component", "activity").Logger(),
		inactivity: schedule.NewSlot(clock, dispatch),
		cooldown:   schedule.NewSlot(clock, dispatch),
	}
}

// Start arms the inactivity timer.
func (m *Monitor) Start() {
	m.Activity()
}

// Stop disarms every timer.
func (m *Monitor) Stop() {
	m.inactivity.Cancel()
	m.cooldown.Cancel()
}

// Loaded plays the greeting. Only the first call has an effect.
func (m *Monitor) Loaded() {
	if m.greeted {
		return
	}
	m.greeted = true
	m.target.RequestState(animation.StateGreeting)
}

// Focus handles the chat input gaining focus.
func (m *Monitor) Focus() {
	m.target.CancelIdleReturn()
	m.target.RequestState(animation.StateEngagement)
}

// Input handles typing in the chat input.
func (m *Monitor) Input() {
	m.target.CancelIdleReturn()
}

// MessageAppended handles a new message in the chat log. The welcome
// message and system notices are ignored.
func (m *Monitor) MessageAppended(role chat.Role, welcome bool) {
	switch {
	case role == chat.RoleUser:
	case role == chat.RoleAssistant && !welcome:
	default:
		return
	}
	if m.target.RequestState(animation.StateEngagement).Accepted() {
		m.target.ScheduleIdleReturn(m.timings.MessageIdleDelay)
	}
}

// Activity handles mouse, key and click events by restarting the
// inactivity window.
func (m *Monitor) Activity() {
	m.inactivity.Schedule(m.timings.InactivityTimeout, m.inactive)
}

func (m *Monitor) inactive() {
	if m.target.Session().Current == animation.StateEngagement {
		return
	}
	m.logger.Debug().Dur("after", m.timings.InactivityTimeout).Msg("User inactive")
	m.target.RequestState(animation.StateIdle)
}

// PointerLeave handles the pointer leaving the viewport at clientY. Leaving
// through the top edge plays the farewell, then further leaves are ignored
// until the cool-down ends.
func (m *Monitor) PointerLeave(clientY float64) {
	if clientY > 0 || m.leaving {
		return
	}
	m.leaving = true
	m.target.RequestState(animation.StateFarewell)
	m.cooldown.Schedule(m.timings.FarewellCooldown, func() { m.leaving = false })
}

// Unload handles the page going away.
func (m *Monitor) Unload() {
	m.target.RequestState(animation.StateFarewell)
	m.Stop()
}

// Attach subscribes the monitor to page and chat events on b. Handlers run
// through post so the monitor stays on the session loop.
func (m *Monitor) Attach(b *bus.EventBus, post func(func())) {
	on := func(t bus.EventType, fn func(bus.Event)) {
		b.Subscribe(t, func(e bus.Event) { post(func() { fn(e) }) })
	}

	on(bus.EventTypePageFocus, func(bus.Event) { m.Focus() })
	on(bus.EventTypePageInput, func(bus.Event) { m.Input() })
	on(bus.EventTypePageActivity, func(bus.Event) { m.Activity() })
	on(bus.EventTypePageUnload, func(bus.Event) { m.Unload() })
	on(bus.EventTypePointerLeave, func(e bus.Event) {
		y, ok := e.Float("clientY")
		if !ok {
			return
		}
		m.PointerLeave(y)
	})
	on(bus.EventTypeMessageAppended, func(e bus.Event) {
		m.MessageAppended(chat.Role(e.String("role")), e.Bool("welcome"))
	})
}
