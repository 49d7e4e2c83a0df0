package router

import (
	"context"

	"github.com/ariarun/aria/internal/backoff"
	"github.com/ariarun/aria/internal/breaker"
	"github.com/ariarun/aria/pkg/types"
)

const maxAttempts = 3

// Router is the composition root for model invocation: one primary
// Provider, an optional fallback Provider, a breaker per provider name,
// and the retry policy for transient failures.
type Router struct {
	primary  Provider
	fallback Provider
	breakers *breaker.Registry
	policy   backoff.BackoffPolicy
}

// New constructs a Router. fallback may be nil, in which case a primary
// whose breaker is open fails the invocation outright.
func New(primary, fallback Provider, breakers *breaker.Registry) *Router {
	return &Router{
		primary:  primary,
		fallback: fallback,
		breakers: breakers,
		policy:   backoff.ModelRetryPolicy(),
	}
}

// PrimaryName returns the configured primary provider's name, for span and
// log attribution.
func (r *Router) PrimaryName() string {
	return r.primary.Name()
}

// Invoke sends req to the primary provider, retrying transient failures up
// to three attempts with backoff, and falling back to the secondary
// provider if the primary's breaker is open. A response carrying an unknown
// tool name, non-object arguments, or unparseable free-form text is
// rejected with ModelResponseMalformed and never retried.
func (r *Router) Invoke(ctx context.Context, req Request, knownTools map[string]bool) (Response, error) {
	resp, err := r.invokeProvider(ctx, r.primary, req)
	if err == nil {
		return r.validate(resp, knownTools)
	}

	kind, _ := types.AsKind(err)
	if kind != types.KindCircuitBreakerOpen || r.fallback == nil {
		return Response{}, err
	}

	resp, err = r.invokeProvider(ctx, r.fallback, req)
	if err != nil {
		return Response{}, err
	}
	return r.validate(resp, knownTools)
}

// invokeProvider gates one provider call through its breaker and retries
// transient (retryable) failures with backoff, up to maxAttempts. A
// non-retryable classification stops the loop immediately, without
// consuming a further attempt or sleeping.
func (r *Router) invokeProvider(ctx context.Context, p Provider, req Request) (Response, error) {
	b := r.breakers.Get(p.Name())
	if be := b.Allow(); be != nil {
		return Response{}, be
	}

	var last *types.Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			b.RecordFailure()
			return Response{}, types.Wrap(types.KindDeadlineExceeded, "context cancelled during model invocation", err)
		}

		resp, sendErr := p.Send(ctx, req)
		if sendErr == nil {
			b.RecordSuccess()
			resp.Cost = p.EstimateCost(req, resp)
			return resp, nil
		}

		ce := classify(p.Name(), sendErr)
		last = ce
		if !ce.Retryable() {
			b.RecordFailure()
			return Response{}, ce
		}

		if attempt < maxAttempts {
			if sleepErr := backoff.SleepWithBackoff(ctx, r.policy, attempt); sleepErr != nil {
				b.RecordFailure()
				return Response{}, types.Wrap(types.KindDeadlineExceeded, "context cancelled while backing off", sleepErr)
			}
		}
	}

	b.RecordFailure()
	return Response{}, last.WithAttempts(maxAttempts)
}

// validate enforces the router's malformed-response boundary: a tool call
// naming a tool the kernel never advertised is rejected, never retried.
func (r *Router) validate(resp Response, knownTools map[string]bool) (Response, error) {
	if resp.ToolCall == nil {
		return resp, nil
	}
	if knownTools != nil && !knownTools[resp.ToolCall.Name] {
		return Response{}, types.New(types.KindModelResponseMalformed, "model referenced unknown tool: "+resp.ToolCall.Name)
	}
	if len(resp.ToolCall.Arguments) == 0 || resp.ToolCall.Arguments[0] != '{' {
		return Response{}, types.New(types.KindModelResponseMalformed, "tool call arguments are not a JSON object")
	}
	return resp, nil
}
