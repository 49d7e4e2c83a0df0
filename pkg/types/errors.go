package types

import (
	"errors"
	"fmt"
)

// Kind is a named error kind from the taxonomy of spec §7. Every error site
// in ARIA carries one of these; there is no catch-all kind.
type Kind string

const (
	KindToolInputValidationError  Kind = "ToolInputValidationError"
	KindToolOutputValidationError Kind = "ToolOutputValidationError"
	KindToolTimeout               Kind = "ToolTimeout"
	KindToolCrashed               Kind = "ToolCrashed"
	KindPathTraversal             Kind = "PathTraversal"
	KindPermissionDenied          Kind = "PermissionDenied"
	KindUnknownTool               Kind = "UnknownTool"
	KindModelProviderError        Kind = "ModelProviderError"
	KindModelRateLimitError       Kind = "ModelRateLimitError"
	KindModelResponseMalformed    Kind = "ModelResponseMalformed"
	KindCircuitBreakerOpen        Kind = "CircuitBreakerOpen"
	KindStepLimitExceeded         Kind = "StepLimitExceeded"
	KindCostLimitExceeded         Kind = "CostLimitExceeded"
	KindDeadlineExceeded          Kind = "DeadlineExceeded"
	KindInvalidStateTransition    Kind = "InvalidStateTransition"
	KindAuditWriteFailure         Kind = "AuditWriteFailure"
	KindManifestInvalid           Kind = "ManifestInvalid"
)

// Retryable reports whether the kind is ever retried at the site that
// produced it. ModelProviderError is retryable only for its transient
// instances — callers deciding whether to retry a specific error should use
// (*Error).Retryable instead, which accounts for that.
func (k Kind) Retryable() bool {
	switch k {
	case KindModelProviderError, KindModelRateLimitError:
		return true
	default:
		return false
	}
}

// Retryable reports whether this specific error should be retried: always
// for ModelRateLimitError, only when Transient for ModelProviderError, never
// otherwise.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindModelRateLimitError:
		return true
	case KindModelProviderError:
		return e.Transient
	default:
		return false
	}
}

// Critical reports whether the kind is one of the two invariant violations
// that halt the process rather than fail the session: InvalidStateTransition
// and AuditWriteFailure.
func (k Kind) Critical() bool {
	switch k {
	case KindInvalidStateTransition, KindAuditWriteFailure:
		return true
	default:
		return false
	}
}

// Error is ARIA's typed error value. Every non-nil error returned by a core
// subsystem is an *Error (or wraps one via errors.As), never a bare string.
type Error struct {
	Kind     Kind
	Message  string
	Cause    error
	Attempts int

	// Transient distinguishes the retryable instances of ModelProviderError
	// (5xx, network reset) from its non-retryable instances (auth, invalid
	// request, unknown model) per spec's "ModelProviderError (transient)"
	// distinction. Unused by every other kind.
	Transient bool
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithAttempts records how many attempts were made before this error was
// returned (used by the router's retry loop).
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// AsKind extracts the Kind from an error chain, if it contains an *Error.
func AsKind(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
