// Package breaker implements a per-provider circuit breaker: CLOSED after
// FailureThreshold consecutive transient failures opens the circuit; OPEN
// moves to HALF_OPEN after CooldownTimeout elapses; HALF_OPEN admits exactly one
// probe and closes on its success or reopens on its failure.
package breaker

import (
	"sync"
	"time"

	"github.com/ariarun/aria/pkg/types"
)

// Config parameterizes one Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the circuit. Default 5.
	FailureThreshold int
	// CooldownTimeout is how long the circuit stays OPEN before admitting a
	// half-open probe. Default 30s.
	CooldownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.CooldownTimeout <= 0 {
		c.CooldownTimeout = 30 * time.Second
	}
	return c
}

// Breaker is one provider's circuit breaker.
type Breaker struct {
	name   string
	config Config

	mu            sync.Mutex
	state         types.CircuitState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// New creates a Breaker in CLOSED state.
func New(name string, config Config) *Breaker {
	return &Breaker{
		name:   name,
		config: config.withDefaults(),
		state:  types.CircuitClosed,
	}
}

// Allow reports whether a call may proceed right now. When the circuit is
// OPEN and the cooldown has not elapsed, it returns a CircuitBreakerOpen
// error without performing any I/O (the <1ms latency budget of spec §8's
// boundary test). When the cooldown has elapsed it transitions to
// HALF_OPEN and admits exactly one caller as the probe; concurrent callers
// during that single in-flight probe are rejected.
func (b *Breaker) Allow() *types.Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitClosed:
		return nil

	case types.CircuitOpen:
		if time.Since(b.openedAt) < b.config.CooldownTimeout {
			return types.New(types.KindCircuitBreakerOpen, b.name+" circuit is open")
		}
		b.state = types.CircuitHalfOpen
		b.probeInFlight = true
		return nil

	case types.CircuitHalfOpen:
		if b.probeInFlight {
			return types.New(types.KindCircuitBreakerOpen, b.name+" circuit has a probe in flight")
		}
		b.probeInFlight = true
		return nil

	default:
		return nil
	}
}

// RecordSuccess reports a successful call. In HALF_OPEN this closes the
// circuit (the one permitted probe succeeded); in CLOSED it resets the
// failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitHalfOpen:
		b.state = types.CircuitClosed
		b.failures = 0
		b.probeInFlight = false
	case types.CircuitClosed:
		b.failures = 0
	}
}

// RecordFailure reports a failed call. In HALF_OPEN the failed probe
// reopens the circuit; in CLOSED, reaching FailureThreshold consecutive
// failures opens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitHalfOpen:
		b.state = types.CircuitOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
		b.failures = 0
	case types.CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = types.CircuitOpen
			b.openedAt = time.Now()
		}
	}
}

// Snapshot returns a read-only view of the breaker's current state.
func (b *Breaker) Snapshot() types.CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.CircuitSnapshot{
		Provider:            b.name,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
		ProbeInFlight:       b.probeInFlight,
	}
}

// Reset forces the breaker back to CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = types.CircuitClosed
	b.failures = 0
	b.probeInFlight = false
}

// Registry owns one Breaker per provider name, constructed lazily. Per
// spec §9 ("avoid singletons"), a Registry is an explicitly constructed
// object passed through the composition root — there is no package-level
// default instance.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Config
}

// NewRegistry creates a Registry using defaults for any provider not
// explicitly configured.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults.withDefaults(),
	}
}

// Get returns the named breaker, creating it with the registry's defaults
// on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.defaults)
	r.breakers[name] = b
	return b
}

// Snapshots returns a snapshot of every breaker the registry has created.
func (r *Registry) Snapshots() []types.CircuitSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.CircuitSnapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
