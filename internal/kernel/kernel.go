// Package kernel drives one session's step loop: budget checks, model
// invocation through the Router, tool dispatch through the Sandbox, and the
// FSM transitions between them. The Kernel holds no session state itself —
// every call to Run takes the Session it operates on — so one Kernel can
// drive sessions strictly in sequence, one at a time, matching the
// single-threaded-per-session scheduling model.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariarun/aria/internal/fsm"
	"github.com/ariarun/aria/internal/observability"
	"github.com/ariarun/aria/internal/permission"
	"github.com/ariarun/aria/internal/registry"
	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/internal/sandbox"
	"github.com/ariarun/aria/internal/scrub"
	"github.com/ariarun/aria/pkg/types"
)

// defaultTokenCeiling bounds the conversation history the kernel sends on
// each model request, in the same character-count heuristic the router's
// providers use for cost estimation.
const defaultTokenCeiling = 32000

// AuditSink is the kernel's only dependency on durable storage: append one
// record to a session's hash-chained audit trail. A failed append is always
// AuditWriteFailure, one of the two invariant violations that halt the
// process rather than merely fail the session.
type AuditSink interface {
	Append(sessionID string, kind types.EventKind, payload []byte) (int, *types.Error)
}

// Clock abstracts wall-clock reads so deadline checks are deterministic in
// tests.
type Clock func() time.Time

// Kernel composes the router, registry, sandbox, scrubber, and audit sink
// into the step loop described in spec §4.2.
type Kernel struct {
	router   *router.Router
	registry *registry.Registry
	sandbox  *sandbox.Sandbox
	scrubber *scrub.Scrubber
	audit    AuditSink
	grant    permission.Grant
	tracer   *observability.Tracer

	system       string
	model        string
	tokenCeiling int
	now          Clock
}

// Option configures optional Kernel parameters.
type Option func(*Kernel)

// WithTokenCeiling overrides the history-truncation ceiling.
func WithTokenCeiling(n int) Option {
	return func(k *Kernel) { k.tokenCeiling = n }
}

// WithClock overrides the kernel's wall-clock source; tests use this to make
// deadline checks deterministic.
func WithClock(now Clock) Option {
	return func(k *Kernel) { k.now = now }
}

// WithTracer overrides the kernel's span tracer. Defaults to a Tracer bound
// to the process-wide (no-op unless the host configures one) TracerProvider.
func WithTracer(tracer *observability.Tracer) Option {
	return func(k *Kernel) { k.tracer = tracer }
}

// New constructs a Kernel. grant is the permission set available to every
// tool call this Kernel dispatches for the lifetime of the process.
func New(r *router.Router, reg *registry.Registry, sb *sandbox.Sandbox, scrubber *scrub.Scrubber, audit AuditSink, grant permission.Grant, system, model string, opts ...Option) *Kernel {
	k := &Kernel{
		router:       r,
		registry:     reg,
		sandbox:      sb,
		scrubber:     scrubber,
		audit:        audit,
		grant:        grant,
		system:       system,
		model:        model,
		tokenCeiling: defaultTokenCeiling,
		now:          time.Now,
		tracer:       observability.NewTracer("aria-kernel"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// auditPayload is a JSON-serializable audit record body. A nil map is never
// sent to the sink; empty payloads are encoded as {}.
type auditPayload map[string]interface{}

// Run executes one session's step loop to completion. The returned error is
// non-nil only for InvalidStateTransition or AuditWriteFailure — the two
// invariant violations the kernel cannot resolve by itself. The caller
// (cmd/aria) must treat a non-nil error as fatal and halt the process with
// the fatal-invariant exit code; every other disposition is reported through
// the returned Outcome.
func (k *Kernel) Run(ctx context.Context, session *types.Session, task string, limits types.Limits) (types.Outcome, *types.Error) {
	if cerr := k.transition(session, types.StateRunning); cerr != nil {
		return types.Outcome{}, cerr
	}
	session.Append(types.UserTask(task))
	if _, aerr := k.record(session.ID, types.EventSessionStart, auditPayload{"task": task}); aerr != nil {
		return types.Outcome{}, aerr
	}

	for {
		if ctx.Err() != nil {
			return k.cancel(session)
		}

		stepCtx, stepSpan := k.tracer.TraceStep(ctx, session.ID, session.Step)

		if cerr := k.checkBudgets(session, limits); cerr != nil {
			if _, aerr := k.record(session.ID, types.EventBudgetCheck, auditPayload{"kind": string(cerr.Kind)}); aerr != nil {
				stepSpan.End()
				return types.Outcome{}, aerr
			}
			k.tracer.RecordError(stepSpan, cerr)
			stepSpan.End()
			return k.fail(session, cerr)
		}

		resp, merr := k.invokeModel(stepCtx, session)
		if merr != nil {
			k.tracer.RecordError(stepSpan, merr)
			stepSpan.End()
			return k.fail(session, merr)
		}

		if resp.IsFinalization() {
			stepSpan.End()
			return k.finalize(session, resp.Text)
		}

		if terr := k.runTool(stepCtx, session, resp.ToolCall); terr != nil {
			k.tracer.RecordError(stepSpan, terr)
			stepSpan.End()
			return k.fail(session, terr)
		}
		stepSpan.End()
		session.Step++
	}
}

// checkBudgets enforces the step, cost, and deadline limits. Per spec §4.2,
// only a failing check is recorded; a passing check leaves no trace, which
// keeps the happy-path audit trail minimal (spec §8 scenario 1).
func (k *Kernel) checkBudgets(session *types.Session, limits types.Limits) *types.Error {
	if session.Step >= limits.MaxSteps {
		return types.New(types.KindStepLimitExceeded, "step limit exceeded")
	}
	if session.Cost >= limits.MaxCost {
		return types.New(types.KindCostLimitExceeded, "cost limit exceeded")
	}
	if !limits.Deadline.IsZero() && k.now().After(limits.Deadline) {
		return types.New(types.KindDeadlineExceeded, "deadline exceeded")
	}
	return nil
}

// invokeModel builds the model request from truncated history and the
// registered tool set, invokes the router, and records the cost of a
// successful exchange.
func (k *Kernel) invokeModel(ctx context.Context, session *types.Session) (router.Response, *types.Error) {
	req := router.Request{
		Model:   k.model,
		System:  k.system,
		History: truncate(session.History, k.tokenCeiling),
		Tools:   k.registry.AsToolDescriptors(),
	}

	known := make(map[string]bool)
	for _, name := range k.registry.Names() {
		known[name] = true
	}

	_, modelSpan := k.tracer.TraceModelInvocation(ctx, k.router.PrimaryName(), k.model)
	resp, err := k.router.Invoke(ctx, req, known)
	if err != nil {
		var ce *types.Error
		if !errors.As(err, &ce) {
			ce = types.Wrap(types.KindModelProviderError, "router invocation failed", err)
		}
		k.tracer.RecordError(modelSpan, ce)
		modelSpan.End()
		return router.Response{}, ce
	}
	modelSpan.End()

	session.Cost += resp.Cost

	if resp.IsFinalization() {
		session.Append(types.AssistantText(resp.Text))
		if _, aerr := k.record(session.ID, types.EventModelResponse, auditPayload{"text": resp.Text}); aerr != nil {
			return router.Response{}, aerr
		}
		return resp, nil
	}

	session.Append(types.ToolCallMessage(resp.ToolCall.ID, resp.ToolCall.Name, resp.ToolCall.Arguments))
	payload := auditPayload{"tool": resp.ToolCall.Name, "arguments": json.RawMessage(resp.ToolCall.Arguments)}
	if _, aerr := k.record(session.ID, types.EventModelResponse, payload); aerr != nil {
		return router.Response{}, aerr
	}
	return resp, nil
}

// runTool dispatches one tool call: WAITING transition, the advisory
// injection scan, sandbox execution, and the transition back to RUNNING.
func (k *Kernel) runTool(ctx context.Context, session *types.Session, call *router.ToolCallDirective) *types.Error {
	if cerr := k.transition(session, types.StateWaiting); cerr != nil {
		return cerr
	}

	findings := scrub.Scan(string(call.Arguments))
	payload := auditPayload{"tool": call.Name, "arguments": json.RawMessage(call.Arguments)}
	if len(findings) > 0 {
		payload["injection_findings"] = len(findings)
	}
	if _, aerr := k.record(session.ID, types.EventToolCall, payload); aerr != nil {
		return aerr
	}

	toolCtx, toolSpan := k.tracer.TraceToolExecution(ctx, call.Name)
	output, serr := k.sandbox.Run(toolCtx, k.grant, *call)
	if serr != nil {
		k.tracer.RecordError(toolSpan, serr)
		toolSpan.End()
		return serr
	}
	toolSpan.End()

	session.Append(types.ToolResultMessage(call.ID, call.Name, output, false))
	if _, aerr := k.record(session.ID, types.EventToolResult, auditPayload{"tool": call.Name, "result": json.RawMessage(output)}); aerr != nil {
		return aerr
	}

	return k.transition(session, types.StateRunning)
}

// finalize closes out a successful run: DONE transition, SESSION_END record,
// Completed outcome.
func (k *Kernel) finalize(session *types.Session, text string) (types.Outcome, *types.Error) {
	if cerr := k.transition(session, types.StateDone); cerr != nil {
		return types.Outcome{}, cerr
	}
	session.Finalize(types.StateDone, "")
	outcome := types.Completed(text)
	if _, aerr := k.record(session.ID, types.EventSessionEnd, auditPayload{"status": string(outcome.Status)}); aerr != nil {
		return types.Outcome{}, aerr
	}
	return outcome, nil
}

// fail closes out a failing run: ERROR record, FAILED transition,
// SESSION_END record, Failed outcome. A critical error (InvalidStateTransition
// or AuditWriteFailure) is returned immediately instead, since the session's
// own bookkeeping can no longer be trusted.
func (k *Kernel) fail(session *types.Session, err *types.Error) (types.Outcome, *types.Error) {
	if err.Kind.Critical() {
		return types.Outcome{}, err
	}

	if _, aerr := k.record(session.ID, types.EventError, auditPayload{"kind": string(err.Kind), "message": err.Message}); aerr != nil {
		return types.Outcome{}, aerr
	}

	if cerr := k.transition(session, types.StateFailed); cerr != nil {
		return types.Outcome{}, cerr
	}
	session.Finalize(types.StateFailed, err.Kind)
	outcome := types.Failed(err.Kind, err.Message)
	if _, aerr := k.record(session.ID, types.EventSessionEnd, auditPayload{"status": string(outcome.Status), "kind": string(err.Kind)}); aerr != nil {
		return types.Outcome{}, aerr
	}
	return outcome, nil
}

// cancel closes out a cancelled run at the next step boundary, per spec
// §4.2 point 5.
func (k *Kernel) cancel(session *types.Session) (types.Outcome, *types.Error) {
	if cerr := k.transition(session, types.StateCancelled); cerr != nil {
		return types.Outcome{}, cerr
	}
	session.Finalize(types.StateCancelled, "")
	outcome := types.Cancelled()
	if _, aerr := k.record(session.ID, types.EventSessionEnd, auditPayload{"status": string(outcome.Status)}); aerr != nil {
		return types.Outcome{}, aerr
	}
	return outcome, nil
}

// transition validates and applies a session state change; an illegal
// transition is InvalidStateTransition, a critical invariant violation.
func (k *Kernel) transition(session *types.Session, to types.State) *types.Error {
	if err := fsm.Validate(session.State, to); err != nil {
		return err
	}
	session.State = to
	return nil
}

// record scrubs, serializes, and appends one audit record. A failed append
// is AuditWriteFailure.
func (k *Kernel) record(sessionID string, kind types.EventKind, payload auditPayload) (int, *types.Error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, types.Wrap(types.KindAuditWriteFailure, "cannot serialize audit payload", err)
	}
	if k.scrubber != nil {
		raw = k.scrubber.ScrubBytes(raw)
	}
	return k.audit.Append(sessionID, kind, raw)
}
