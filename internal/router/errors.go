package router

import (
	"errors"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/ariarun/aria/pkg/types"
)

// classify turns a raw provider-adapter error into one of the router's
// named kinds. Only ModelProviderError and ModelRateLimitError are
// retryable; everything else the router returns as-is for the kernel to
// fail the session with. A concrete HTTP status code from either SDK's
// error type takes priority over string matching.
func classify(provider string, err error) *types.Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*types.Error); ok {
		return ae
	}

	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return classifyStatusCode(provider, apiErr.StatusCode, err)
	}
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return classifyStatusCode(provider, oaiErr.HTTPStatusCode, err)
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return types.Wrap(types.KindModelRateLimitError, provider+": rate limited", err)
	case containsAny(msg, "timeout", "deadline exceeded", "connection reset", "econnreset"):
		ce := types.Wrap(types.KindModelProviderError, provider+": transient network error", err)
		ce.Transient = true
		return ce
	case containsAny(msg, "internal server", "server error", "500", "502", "503", "504"):
		ce := types.Wrap(types.KindModelProviderError, provider+": server error", err)
		ce.Transient = true
		return ce
	case containsAny(msg, "unparseable", "malformed", "unknown tool", "not a structured object"):
		return types.Wrap(types.KindModelResponseMalformed, provider+": malformed response", err)
	default:
		return types.Wrap(types.KindModelProviderError, provider+": request failed", err)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classifyStatusCode maps an HTTP status code straight to a kind, for
// adapters that have a concrete status available instead of only an error
// string.
func classifyStatusCode(provider string, status int, err error) *types.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return types.Wrap(types.KindModelRateLimitError, provider+": rate limited", err)
	case status >= 500:
		ce := types.Wrap(types.KindModelProviderError, provider+": server error", err)
		ce.Transient = true
		return ce
	default:
		// 4xx other than 429 (auth, bad request, unknown model) is never
		// retried: the request itself cannot succeed as constructed.
		return types.Wrap(types.KindModelProviderError, provider+": request rejected", err)
	}
}
