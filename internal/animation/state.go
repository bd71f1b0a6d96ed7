// Package animation owns the avatar's clip library and the per-frame mix loop.
package animation

import "time"

// State names one of the avatar's animation states. It doubles as the
// clip name the mixer plays for that state.
type State string

const (
	StateIdle       State = "idle"
	StateEngagement State = "engagement"
	StateGreeting   State = "greeting"
	StateFarewell   State = "farewell"
)

// CrossfadeDuration is the blend window between two clips.
const CrossfadeDuration = 200 * time.Millisecond

var priorities = map[State]int{
	StateIdle:       1,
	StateEngagement: 2,
	StateFarewell:   5,
	StateGreeting:   6,
}

// AllStates lists the states in priority order.
func AllStates() []State {
	return []State{StateIdle, StateEngagement, StateFarewell, StateGreeting}
}

// Priority returns the static priority of s. Unknown states rank 0.
func (s State) Priority() int {
	return priorities[s]
}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	_, ok := priorities[s]
	return ok
}

// Loop returns the loop mode the clip for s plays with.
func (s State) Loop() LoopMode {
	if s == StateIdle {
		return LoopRepeat
	}
	return LoopOnce
}

// Terminal reports whether s returns to idle on its own once its clip ends.
func (s State) Terminal() bool {
	return s == StateGreeting || s == StateFarewell
}

func (s State) String() string {
	return string(s)
}

// LoopMode controls what a clip does when it reaches its end.
type LoopMode int

const (
	// LoopRepeat wraps back to the start.
	LoopRepeat LoopMode = iota
	// LoopOnce stops and clamps on the final pose.
	LoopOnce
)

func (m LoopMode) String() string {
	if m == LoopOnce {
		return "once"
	}
	return "repeat"
}
