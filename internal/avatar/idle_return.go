package avatar

import (
	"sync"
	"time"

	"github.com/normanking/consultavatar/internal/schedule"
)

// IdleReturn holds the single pending return to idle. A return is armed
// either by an outside event (a message, an inactivity rule) or by the
// terminal clip now playing. The clip-keyed return is a timer or a wait for
// the mixer to report that one specific action finished. At most one of the
// three is armed at a time.
//
// Cancel only disarms event returns. A greeting or farewell always hands
// back to idle unless an admitted transition replaces it (Reset).
type IdleReturn struct {
	event *schedule.Slot
	clip  *schedule.Slot
	fire  func()

	mu       sync.Mutex
	awaiting bool
	awaitID  uint64
}

// NewIdleReturn creates an unarmed idle return that calls fire when due.
func NewIdleReturn(clock schedule.Clock, dispatch func(func()), fire func()) *IdleReturn {
	return &IdleReturn{
		event: schedule.NewSlot(clock, dispatch),
		clip:  schedule.NewSlot(clock, dispatch),
		fire:  fire,
	}
}

// Schedule replaces whatever is pending with an event timer of delay.
func (r *IdleReturn) Schedule(delay time.Duration) {
	r.clearClip()
	r.event.Schedule(delay, r.fire)
}

// ScheduleClip replaces whatever is pending with a clip-keyed timer.
func (r *IdleReturn) ScheduleClip(delay time.Duration) {
	r.event.Cancel()
	r.clearClip()
	r.clip.Schedule(delay, r.fire)
}

// AwaitFinished replaces whatever is pending with a wait for the finished
// event of action id.
func (r *IdleReturn) AwaitFinished(id uint64) {
	r.event.Cancel()
	r.clip.Cancel()
	r.mu.Lock()
	r.awaiting = true
	r.awaitID = id
	r.mu.Unlock()
}

// Cancel disarms an event return. A clip-keyed return stays armed. It
// reports whether an event return was pending.
func (r *IdleReturn) Cancel() bool {
	return r.event.Cancel()
}

// Reset disarms every pending return. It reports whether one was pending.
func (r *IdleReturn) Reset() bool {
	was := r.event.Cancel()
	return r.clearClip() || was
}

// Pending reports whether a return is armed.
func (r *IdleReturn) Pending() bool {
	return r.event.Pending() || r.ClipPending()
}

// ClipPending reports whether a clip-keyed return is armed.
func (r *IdleReturn) ClipPending() bool {
	return r.Awaiting() || r.clip.Pending()
}

// Awaiting reports whether the return waits on a finished event.
func (r *IdleReturn) Awaiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.awaiting
}

// Finished fires the return if it was waiting on action id.
func (r *IdleReturn) Finished(id uint64) bool {
	r.mu.Lock()
	if !r.awaiting || r.awaitID != id {
		r.mu.Unlock()
		return false
	}
	r.awaiting = false
	r.mu.Unlock()

	r.fire()
	return true
}

func (r *IdleReturn) clearClip() bool {
	r.mu.Lock()
	was := r.awaiting
	r.awaiting = false
	r.mu.Unlock()
	return r.clip.Cancel() || was
}
