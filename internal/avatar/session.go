package avatar

import (
	"time"

	"github.com/google/uuid"

	"github.com/normanking/consultavatar/internal/animation"
)

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseActive   Phase = "active"
	PhaseDisposed Phase = "disposed"
)

// Session is the avatar state of one page load. It is owned by a single
// Coordinator and must only be touched from that coordinator's loop.
type Session struct {
	ID          uuid.UUID       `json:"id"`
	Current     animation.State `json:"current"`
	Initialized bool            `json:"initialized"`
	Phase       Phase           `json:"phase"`
	CreatedAt   time.Time       `json:"createdAt"`
	ChangedAt   time.Time       `json:"changedAt"`
}

// NewSession creates a session that starts idle and uninitialized.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		Current:   animation.StateIdle,
		Phase:     PhaseInit,
		CreatedAt: now,
		ChangedAt: now,
	}
}

// Snapshot is a copy safe to hand to other goroutines.
func (s *Session) Snapshot() Session {
	return *s
}
