package types

import "time"

// CircuitState is one of the three states a per-provider circuit breaker
// can be in.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitSnapshot is a point-in-time, read-only view of one provider's
// breaker state, safe to hand to callers without exposing the live mutex.
type CircuitSnapshot struct {
	Provider          string
	State             CircuitState
	ConsecutiveFailures int
	OpenedAt          time.Time
	ProbeInFlight     bool
}
