package animation

import (
	"sort"
	"strings"
	"time"
)

// Clip is a named animation the mixer can play.
type Clip struct {
	State    State         `json:"state"`
	Source   string        `json:"source"` // animation name inside the model file
	Duration time.Duration `json:"duration"`
	Loop     LoopMode      `json:"loop"`
}

// DefaultKeywords maps each state to the substrings that identify its clip
// among the model's animations. Matching is case-insensitive.
func DefaultKeywords() map[State][]string {
	return map[State][]string{
		StateGreeting:   {"greet", "hello"},
		StateIdle:       {"idle"},
		StateEngagement: {"engage", "offer", "ask"},
		StateFarewell:   {"fare", "bye", "goodbye"},
	}
}

// SourceAnimation is an animation as found in a model file.
type SourceAnimation struct {
	Name     string
	Duration time.Duration
}

// Library holds at most one clip per state.
type Library struct {
	clips map[State]Clip
}

// NewLibrary builds a library from explicit clips. Later clips for the same
// state replace earlier ones.
func NewLibrary(clips ...Clip) *Library {
	lib := &Library{clips: make(map[State]Clip, len(clips))}
	for _, c := range clips {
		lib.clips[c.State] = c
	}
	return lib
}

// MatchAnimations assigns source animations to states by keyword. The first
// animation (in file order) that matches any keyword of a state wins; an
// animation may serve several states.
func MatchAnimations(anims []SourceAnimation, keywords map[State][]string) *Library {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	lib := &Library{clips: make(map[State]Clip)}

	for _, anim := range anims {
		lname := strings.ToLower(anim.Name)
		for state, keys := range keywords {
			if _, found := lib.clips[state]; found {
				continue
			}
			for _, k := range keys {
				if strings.Contains(lname, strings.ToLower(k)) {
					lib.clips[state] = Clip{
						State:    state,
						Source:   anim.Name,
						Duration: anim.Duration,
						Loop:     state.Loop(),
					}
					break
				}
			}
		}
	}
	return lib
}

// Get returns the clip for s.
func (l *Library) Get(s State) (Clip, bool) {
	if l == nil {
		return Clip{}, false
	}
	c, ok := l.clips[s]
	return c, ok
}

// Clips returns all clips ordered by state priority.
func (l *Library) Clips() []Clip {
	if l == nil {
		return nil
	}
	out := make([]Clip, 0, len(l.clips))
	for _, c := range l.clips {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].State.Priority() < out[j].State.Priority()
	})
	return out
}

// Missing returns the known states that have no clip.
func (l *Library) Missing() []State {
	var missing []State
	for _, s := range AllStates() {
		if _, ok := l.Get(s); !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// Len returns the number of clips.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.clips)
}
