// Package fsm validates session state transitions. It performs no I/O and
// holds no state of its own: every call is a pure function of its inputs.
package fsm

import "github.com/ariarun/aria/pkg/types"

var legal = map[types.State]map[types.State]bool{
	types.StateIdle: {
		types.StateRunning:   true,
		types.StateCancelled: true,
	},
	types.StateRunning: {
		types.StateWaiting:   true,
		types.StateDone:      true,
		types.StateFailed:    true,
		types.StateCancelled: true,
	},
	types.StateWaiting: {
		types.StateRunning:   true,
		types.StateFailed:    true,
		types.StateCancelled: true,
	},
	types.StateDone:      {},
	types.StateFailed:    {},
	types.StateCancelled: {},
}

// Allowed reports whether moving from `from` to `to` is a legal transition.
func Allowed(from, to types.State) bool {
	targets, ok := legal[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Validate checks a requested transition and returns a typed
// InvalidStateTransition error when it is not legal. The caller (the
// kernel) treats that error as fatal: it is one of the two CRITICAL kinds
// that halt the process rather than merely fail the session.
func Validate(from, to types.State) *types.Error {
	if Allowed(from, to) {
		return nil
	}
	return types.New(types.KindInvalidStateTransition, string(from)+" -> "+string(to)+" is not a legal transition")
}

// Reachable returns every state reachable from IDLE by zero or more legal
// transitions. Used by tests asserting the FSM's reachable-state invariant.
func Reachable() map[types.State]bool {
	seen := map[types.State]bool{types.StateIdle: true}
	frontier := []types.State{types.StateIdle}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for to, ok := range legal[cur] {
			if !ok || seen[to] {
				continue
			}
			seen[to] = true
			frontier = append(frontier, to)
		}
	}
	return seen
}
