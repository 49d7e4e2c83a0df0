// Package router normalizes model invocation across providers: it retries
// transient failures with backoff, gates calls through a per-provider
// circuit breaker, and falls back to a configured secondary provider when
// the primary's breaker is open.
package router

import (
	"context"
	"encoding/json"

	"github.com/ariarun/aria/pkg/types"
)

// ToolDescriptor is the model-facing view of a registered tool: enough to
// let the model decide to call it and to construct valid arguments.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is one normalized model invocation.
type Request struct {
	Model   string
	System  string
	History []types.Message
	Tools   []ToolDescriptor
}

// Response is a normalized provider response: exactly one of a textual
// finalization or a single tool-call directive, plus the estimated cost of
// the exchange that produced it.
type Response struct {
	Text     string
	ToolCall *ToolCallDirective
	Cost     float64
}

// ToolCallDirective is the tool call a model wants executed.
type ToolCallDirective struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// IsFinalization reports whether r is a textual answer rather than a tool
// call.
func (r Response) IsFinalization() bool {
	return r.ToolCall == nil
}

// Provider is the capability interface every model backend implements.
// Provider and tool variability is bounded and enumerable at runtime: a
// small closed set of adapters, no reflection-based dispatch.
type Provider interface {
	// Name identifies the provider for breaker/fallback bookkeeping and
	// audit payloads.
	Name() string

	// Send issues one request and returns a normalized response. It must
	// not retry internally; the Router owns retry policy.
	Send(ctx context.Context, req Request) (Response, error)

	// EstimateCost returns a non-negative estimate of what this exchange
	// cost, for the kernel's cumulative cost budget.
	EstimateCost(req Request, resp Response) float64
}
