package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsContextTooLongError(t *testing.T) {
	err := NewContextTooLongError("request too large", nil)
	if !IsContextTooLongError(err) {
		t.Error("Expected IsContextTooLongError to return true for context length error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsContextTooLongError(regularErr) {
		t.Error("Expected IsContextTooLongError to return false for other errors")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

func TestErrorMessageHidesVendorDetail(t *testing.T) {
	vendor := errors.New(`{"error":{"message":"raw vendor json"}}`)
	err := NewProviderError("An error occurred with OpenAI's service.", vendor)
	if strings.Contains(err.Error(), "raw vendor json") {
		t.Errorf("Error() leaked vendor detail: %q", err.Error())
	}
	if !strings.Contains(err.Detail(), "raw vendor json") {
		t.Errorf("Detail() should include vendor detail, got %q", err.Detail())
	}
}

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		status    int
		want      ErrorType
		retryable bool
	}{
		{401, ErrorTypeAuthRejected, false},
		{403, ErrorTypeAuthRejected, false},
		{404, ErrorTypeModelUnavailable, false},
		{413, ErrorTypeContextTooLong, false},
		{429, ErrorTypeRateLimit, true},
		{400, ErrorTypeInvalidRequest, false},
		{503, ErrorTypeModelUnavailable, true},
		{418, ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		err := NewStatusError("boom", tt.status, nil)
		if err.Type != tt.want {
			t.Errorf("status %d: got type %s, want %s", tt.status, err.Type, tt.want)
		}
		if err.Retryable != tt.retryable {
			t.Errorf("status %d: got retryable %v, want %v", tt.status, err.Retryable, tt.retryable)
		}
	}
}

func TestIsAborted(t *testing.T) {
	if !IsAborted(NewAbortedError(context.Canceled)) {
		t.Error("Expected aborted error to be detected")
	}
	if !IsAborted(fmt.Errorf("stream: %w", context.Canceled)) {
		t.Error("Expected wrapped context.Canceled to be detected")
	}
	if IsAborted(NewRateLimitError("slow down", nil, nil)) {
		t.Error("Rate limit must not be reported as aborted")
	}
	if IsAborted(nil) {
		t.Error("nil must not be reported as aborted")
	}
}

func TestMissingCredentialError(t *testing.T) {
	err := NewMissingCredentialError(provider.OpenRouter)
	if ErrorTypeOf(err) != ErrorTypeMissingCredential {
		t.Errorf("unexpected type %s", ErrorTypeOf(err))
	}
	if !strings.Contains(err.Error(), "https://openrouter.ai/keys") {
		t.Errorf("expected setup URL in message, got %q", err.Error())
	}
}
