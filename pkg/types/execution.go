package types

import "time"

// Limits bounds one kernel run: step count, cumulative model cost, and wall
// clock. All three are checked at the top of every step.
type Limits struct {
	MaxSteps int
	MaxCost  float64
	Deadline time.Time
}

// ExecutionContext is the immutable snapshot a single step executes
// against: the session state at the time the step began, the tools it may
// call, and the budget remaining. Never mutated once constructed; the
// kernel builds a fresh one per step.
type ExecutionContext struct {
	SessionID        string
	State            State
	Step             int
	Cost             float64
	AllowedTools     []string
	GrantedPermissions []Permission
	Limits           Limits
}

// RemainingSteps returns the number of steps left before Limits.MaxSteps is
// reached.
func (c ExecutionContext) RemainingSteps() int {
	return c.Limits.MaxSteps - c.Step
}

// OutcomeStatus tags the shape of a completed kernel run.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the kernel's `run` return value: exactly one of a textual
// finalization, a failure kind and message, or a cancellation.
type Outcome struct {
	Status  OutcomeStatus
	Text    string // set when Status == OutcomeCompleted
	Kind    Kind   // set when Status == OutcomeFailed
	Message string // set when Status == OutcomeFailed
}

// Completed builds a successful Outcome.
func Completed(text string) Outcome {
	return Outcome{Status: OutcomeCompleted, Text: text}
}

// Failed builds a failure Outcome.
func Failed(kind Kind, message string) Outcome {
	return Outcome{Status: OutcomeFailed, Kind: kind, Message: message}
}

// Cancelled builds a cancellation Outcome.
func Cancelled() Outcome {
	return Outcome{Status: OutcomeCancelled}
}
