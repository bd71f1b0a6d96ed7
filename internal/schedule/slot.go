package schedule

import (
	"sync"
	"time"
)

// Slot holds at most one scheduled task. Scheduling replaces whatever was
// pending; Cancel discards it.
//
// When a dispatch function is set, the timer does not run the task itself
// but hands it to dispatch (typically the owner's event loop). A task that
// was cancelled or replaced after being handed over is discarded when it
// eventually runs.
type Slot struct {
	mu       sync.Mutex
	clock    Clock
	dispatch func(func())
	timer    Timer
	gen      uint64
	pending  bool
	deadline time.Time
}

// NewSlot creates an empty slot. A nil clock uses RealClock; a nil dispatch
// runs tasks on the timer goroutine.
func NewSlot(clock Clock, dispatch func(func())) *Slot {
	if clock == nil {
		clock = RealClock()
	}
	return &Slot{clock: clock, dispatch: dispatch}
}

// Schedule arms the slot to run task after delay, replacing any pending
// task. A negative delay is treated as zero.
func (s *Slot) Schedule(delay time.Duration, task func()) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.pending = true
	s.deadline = s.clock.Now().Add(delay)

	s.timer = s.clock.AfterFunc(delay, func() {
		run := func() {
			if s.claim(gen) {
				task()
			}
		}
		if s.dispatch != nil {
			s.dispatch(run)
			return
		}
		run()
	})
}

// Cancel discards the pending task, if any. It reports whether one was
// pending.
func (s *Slot) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.pending
	s.stopLocked()
	s.gen++
	return was
}

// Pending reports whether a task is armed and has not run yet.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Deadline returns when the pending task is due.
func (s *Slot) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.pending
}

// claim marks the task of generation gen as run. It fails if the task was
// cancelled or replaced in the meantime.
func (s *Slot) claim(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || !s.pending {
		return false
	}
	s.pending = false
	s.timer = nil
	return true
}

func (s *Slot) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	s.deadline = time.Time{}
}
