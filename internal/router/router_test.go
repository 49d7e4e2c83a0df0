package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariarun/aria/internal/breaker"
	"github.com/ariarun/aria/pkg/types"
)

// fakeProvider returns a scripted sequence of (Response, error) pairs, one
// per Send call, and records how many times it was invoked.
type fakeProvider struct {
	name  string
	calls int
	steps []struct {
		resp Response
		err  error
	}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, req Request) (Response, error) {
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		return f.steps[len(f.steps)-1].resp, f.steps[len(f.steps)-1].err
	}
	return f.steps[i].resp, f.steps[i].err
}

func (f *fakeProvider) EstimateCost(Request, Response) float64 { return 0 }

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

func (f *fakeProvider) then(resp Response, err error) *fakeProvider {
	f.steps = append(f.steps, struct {
		resp Response
		err  error
	}{resp, err})
	return f
}

func TestRouterHappyPath(t *testing.T) {
	p := newFakeProvider("anthropic").then(Response{Text: "hello"}, nil)
	r := New(p, nil, breaker.NewRegistry(breaker.Config{}))

	resp, err := r.Invoke(context.Background(), Request{}, nil)
	require.Nil(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.True(t, resp.IsFinalization())
	assert.Equal(t, 1, p.calls)
}

func TestRouterToolCallRoundTrip(t *testing.T) {
	p := newFakeProvider("anthropic").then(Response{
		ToolCall: &ToolCallDirective{ID: "call-1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.txt"}`)},
	}, nil)
	r := New(p, nil, breaker.NewRegistry(breaker.Config{}))

	resp, err := r.Invoke(context.Background(), Request{}, map[string]bool{"read_file": true})
	require.Nil(t, err)
	require.NotNil(t, resp.ToolCall)
	assert.False(t, resp.IsFinalization())
	assert.Equal(t, "read_file", resp.ToolCall.Name)
}

func TestRouterRejectsUnknownTool(t *testing.T) {
	p := newFakeProvider("anthropic").then(Response{
		ToolCall: &ToolCallDirective{ID: "call-1", Name: "delete_everything", Arguments: json.RawMessage(`{}`)},
	}, nil)
	r := New(p, nil, breaker.NewRegistry(breaker.Config{}))

	_, err := r.Invoke(context.Background(), Request{}, map[string]bool{"read_file": true})
	require.NotNil(t, err)
	kind, ok := types.AsKind(err)
	require.True(t, ok)
	assert.Equal(t, types.KindModelResponseMalformed, kind)
}

func TestRouterRejectsNonObjectArguments(t *testing.T) {
	p := newFakeProvider("anthropic").then(Response{
		ToolCall: &ToolCallDirective{ID: "call-1", Name: "read_file", Arguments: json.RawMessage(`"just a string"`)},
	}, nil)
	r := New(p, nil, breaker.NewRegistry(breaker.Config{}))

	_, err := r.Invoke(context.Background(), Request{}, map[string]bool{"read_file": true})
	require.NotNil(t, err)
	kind, _ := types.AsKind(err)
	assert.Equal(t, types.KindModelResponseMalformed, kind)
}

func TestRouterRetriesTransientFailureThenSucceeds(t *testing.T) {
	p := newFakeProvider("anthropic").
		then(Response{}, errors.New("connection reset by peer")).
		then(Response{}, errors.New("503 service unavailable")).
		then(Response{Text: "ok"}, nil)
	r := New(p, nil, breaker.NewRegistry(breaker.Config{}))
	r.policy.InitialMs = 1
	r.policy.MaxMs = 2

	resp, err := r.Invoke(context.Background(), Request{}, nil)
	require.Nil(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, p.calls)
}

func TestRouterDoesNotRetryAuthFailure(t *testing.T) {
	p := newFakeProvider("anthropic").then(Response{}, errors.New("401 unauthorized: invalid api key"))
	r := New(p, nil, breaker.NewRegistry(breaker.Config{}))

	_, err := r.Invoke(context.Background(), Request{}, nil)
	require.NotNil(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestRouterFallsBackWhenPrimaryBreakerOpen(t *testing.T) {
	primary := newFakeProvider("anthropic")
	fallback := newFakeProvider("openai").then(Response{Text: "from fallback"}, nil)

	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, CooldownTimeout: 1 * time.Hour})
	breakers.Get("anthropic").RecordFailure()
	require.Equal(t, types.CircuitOpen, breakers.Get("anthropic").Snapshot().State)

	r := New(primary, fallback, breakers)
	resp, err := r.Invoke(context.Background(), Request{}, nil)
	require.Nil(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestRouterExhaustsRetriesWithoutOpeningBreaker(t *testing.T) {
	p := newFakeProvider("anthropic")
	for i := 0; i < 10; i++ {
		p.then(Response{}, errors.New("timeout waiting for response"))
	}
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 5, CooldownTimeout: 1 * time.Hour})
	r := New(p, nil, breakers)
	r.policy.InitialMs = 1
	r.policy.MaxMs = 2

	_, err := r.Invoke(context.Background(), Request{}, nil)
	require.NotNil(t, err)
	kind, _ := types.AsKind(err)
	assert.Equal(t, types.KindModelProviderError, kind)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, types.CircuitClosed, breakers.Get("anthropic").Snapshot().State)
}
