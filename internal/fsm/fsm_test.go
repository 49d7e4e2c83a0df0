package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariarun/aria/pkg/types"
)

func TestAllowed(t *testing.T) {
	cases := []struct {
		name    string
		from    types.State
		to      types.State
		allowed bool
	}{
		{"idle to running", types.StateIdle, types.StateRunning, true},
		{"idle to cancelled", types.StateIdle, types.StateCancelled, true},
		{"idle to done", types.StateIdle, types.StateDone, false},
		{"running to waiting", types.StateRunning, types.StateWaiting, true},
		{"running to done", types.StateRunning, types.StateDone, true},
		{"running to idle", types.StateRunning, types.StateIdle, false},
		{"waiting to running", types.StateWaiting, types.StateRunning, true},
		{"waiting to done", types.StateWaiting, types.StateDone, false},
		{"waiting to failed", types.StateWaiting, types.StateFailed, true},
		{"done is terminal", types.StateDone, types.StateRunning, false},
		{"failed is terminal", types.StateFailed, types.StateRunning, false},
		{"cancelled is terminal", types.StateCancelled, types.StateRunning, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, Allowed(tc.from, tc.to))
		})
	}
}

func TestValidateReturnsFatalKindOnIllegalTransition(t *testing.T) {
	err := Validate(types.StateDone, types.StateRunning)
	require.NotNil(t, err)
	assert.Equal(t, types.KindInvalidStateTransition, err.Kind)
	assert.True(t, err.Kind.Critical())
}

func TestValidateReturnsNilOnLegalTransition(t *testing.T) {
	assert.Nil(t, Validate(types.StateIdle, types.StateRunning))
}

func TestReachableCoversEveryEnumeratedState(t *testing.T) {
	reachable := Reachable()
	for _, s := range []types.State{
		types.StateIdle, types.StateRunning, types.StateWaiting,
		types.StateDone, types.StateFailed, types.StateCancelled,
	} {
		assert.True(t, reachable[s], "state %s should be reachable from IDLE", s)
	}
}

func TestNoTransitionEscapesTheStateSet(t *testing.T) {
	all := []types.State{
		types.StateIdle, types.StateRunning, types.StateWaiting,
		types.StateDone, types.StateFailed, types.StateCancelled,
	}
	for _, from := range all {
		for _, to := range all {
			if Allowed(from, to) {
				assert.True(t, to.Valid())
			}
		}
	}
}
