package errors

import (
	"net/http"
	"strings"
)

// Transient-provider detection. Embedding APIs signal backpressure in
// inconsistent ways: HTTP 429, any 5xx, or an error body mentioning
// rate limits, quota, or model overload. All of these are retried with
// backoff; everything else is permanent and surfaces immediately.

// transientMarkers are substrings that mark a provider error as retryable.
var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"quota",
	"overloaded",
	"resource exhausted",
	"resource_exhausted",
	"too many requests",
	"try again",
	"timeout",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"eof",
}

// IsTransientStatus reports whether an HTTP status code indicates a
// transient provider condition worth retrying.
func IsTransientStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

// IsTransient reports whether an error looks like a transient provider
// failure based on its message. Used for errors that arrive without an
// HTTP status (transport failures, wrapped SDK errors).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// TransientProvider wraps a transient provider failure so the retry
// machinery recognizes it via IsRetryable.
func TransientProvider(message string, cause error) *AgentError {
	return New(ErrCodeProviderTransient, message, cause)
}

// PermanentProvider wraps a permanent provider failure (bad request,
// invalid model, auth failure). Never retried.
func PermanentProvider(message string, cause error) *AgentError {
	return New(ErrCodeProviderPermanent, message, cause)
}
