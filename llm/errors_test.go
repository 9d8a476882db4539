package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	rateLimit := NewRateLimitError("throttled", nil)
	if !IsRetryableError(rateLimit) {
		t.Errorf("rate limit errors should be retryable")
	}
	if !IsRateLimitError(rateLimit) {
		t.Errorf("expected IsRateLimitError to match")
	}

	serverErr := NewProviderError("upstream failed", 503, nil)
	if !IsRetryableError(serverErr) {
		t.Errorf("5xx provider errors should be retryable")
	}

	clientErr := NewProviderError("bad request", 400, nil)
	if IsRetryableError(clientErr) {
		t.Errorf("4xx provider errors should not be retryable")
	}

	malformed := NewMalformedOutputError("not json: %q", "...")
	if !IsMalformedOutput(malformed) {
		t.Errorf("expected IsMalformedOutput to match")
	}
	if IsRetryableError(malformed) {
		t.Errorf("malformed output should not be retryable")
	}
}

func TestErrorPredicatesUnwrapWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("extract facts: %w", NewNetworkError("connection refused", errors.New("dial tcp")))
	if !IsRetryableError(wrapped) {
		t.Errorf("expected wrapped network error to remain retryable")
	}
	if IsMalformedOutput(wrapped) {
		t.Errorf("network error misclassified as malformed output")
	}
}
