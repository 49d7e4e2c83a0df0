// Package types holds the data contracts shared across ARIA's core
// subsystems: session and message shapes, the audit record format, and the
// error taxonomy. Nothing in this package performs I/O.
package types

import "time"

// State is one of the six legal session states. The Session FSM
// (internal/fsm) is the sole authority on which transitions between states
// are legal; this package only carries the enumerated values.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateWaiting   State = "WAITING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition out of this state is legal.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the six enumerated states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateRunning, StateWaiting, StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Session is one task-scoped execution of the kernel: its own FSM state,
// step/cost budget consumption, and conversation history. The Kernel
// exclusively owns a Session while a step executes; the Audit Store owns
// its own records independently.
type Session struct {
	ID              string
	State           State
	Step            int
	Cost            float64
	CreatedAt       time.Time
	TerminationKind Kind
	History         []Message

	terminal bool
}

// NewSession creates a fresh session in IDLE with an empty history.
func NewSession(id string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateIdle,
		CreatedAt: createdAt,
	}
}

// Append adds a message to the ordered, append-only conversation history.
// It is a no-op once the session has reached a terminal state; callers that
// need to enforce that invariant strictly should check IsTerminal first.
func (s *Session) Append(m Message) {
	if s.terminal {
		return
	}
	s.History = append(s.History, m)
}

// IsTerminal reports whether the session has reached DONE, FAILED, or
// CANCELLED and is therefore immutable.
func (s *Session) IsTerminal() bool {
	return s.terminal || s.State.Terminal()
}

// Finalize marks the session terminal, locking it against further mutation.
func (s *Session) Finalize(state State, kind Kind) {
	s.State = state
	s.TerminationKind = kind
	s.terminal = true
}
