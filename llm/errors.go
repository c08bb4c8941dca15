package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type            ErrorType
	Message         string // Human-readable, safe to show to end users
	Retryable       bool
	RetryAfter      *time.Duration
	StatusCode      int
	Provider        provider.Provider
	Code            string // Classifier code such as INVALID_API_KEY
	SuggestedAction string
	ProviderErr     error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeMissingCredential       ErrorType = "missing_credential"
	ErrorTypeInvalidCredentialFormat ErrorType = "invalid_credential_format"
	ErrorTypeAuthRejected            ErrorType = "vendor_auth_rejected"
	ErrorTypeRateLimit               ErrorType = "rate_limited"
	ErrorTypeQuotaExceeded           ErrorType = "quota_exceeded"
	ErrorTypeContextTooLong          ErrorType = "context_too_long"
	ErrorTypeContentPolicy           ErrorType = "content_policy_blocked"
	ErrorTypeModelUnavailable        ErrorType = "model_unavailable"
	ErrorTypeNetwork                 ErrorType = "network_failure"
	ErrorTypeAborted                 ErrorType = "operation_aborted"
	ErrorTypeInvalidRequest          ErrorType = "invalid_request"
	ErrorTypeUnknown                 ErrorType = "unknown"
)

// Error implements the error interface. Only the human-readable message is
// returned; vendor detail stays reachable through Unwrap and Detail.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.ProviderErr != nil {
		return e.ProviderErr.Error()
	}
	return string(e.Type)
}

// Detail returns the message followed by the underlying provider error, for logs.
func (e *Error) Detail() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// ErrorTypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeUnknown.
func ErrorTypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsContextTooLongError checks if an error reports an oversized request.
func IsContextTooLongError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeContextTooLong
	}
	return false
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// IsAborted reports whether err is a caller cancellation rather than a
// vendor failure.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) && llmErr.Type == ErrorTypeAborted {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  429,
		ProviderErr: providerErr,
	}
}

// NewContextTooLongError creates an error for requests exceeding the model's
// context window.
func NewContextTooLongError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeContextTooLong,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new error for an unclassified vendor failure.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeUnknown,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewStatusError creates a vendor error carrying an HTTP status code. The
// type is derived from the status where it is unambiguous.
func NewStatusError(message string, statusCode int, providerErr error) *Error {
	e := &Error{
		Type:        ErrorTypeUnknown,
		Message:     message,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
	switch {
	case statusCode == 401 || statusCode == 403:
		e.Type = ErrorTypeAuthRejected
	case statusCode == 404:
		e.Type = ErrorTypeModelUnavailable
	case statusCode == 413:
		e.Type = ErrorTypeContextTooLong
	case statusCode == 429:
		e.Type = ErrorTypeRateLimit
		e.Retryable = true
	case statusCode == 400 || statusCode == 422:
		e.Type = ErrorTypeInvalidRequest
	case statusCode >= 500:
		e.Type = ErrorTypeModelUnavailable
		e.Retryable = true
	}
	return e
}

// NewMissingCredentialError creates the error returned when no credential
// could be resolved for p.
func NewMissingCredentialError(p provider.Provider) *Error {
	return &Error{
		Type:            ErrorTypeMissingCredential,
		Message:         p.MissingKeyMessage(),
		Provider:        p,
		Code:            "MISSING_API_KEY",
		SuggestedAction: "Add your " + p.DisplayName() + " API key in Settings → API Keys. Get a key at " + p.SetupURL(),
	}
}

// NewAbortedError creates the error surfaced when the caller cancels.
func NewAbortedError(cause error) *Error {
	return &Error{
		Type:        ErrorTypeAborted,
		Message:     "Operation aborted",
		ProviderErr: cause,
	}
}

// NewNetworkError creates a transport failure error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// TransportError classifies failures that happen below the vendor API:
// caller cancellation and network errors. It returns nil for anything else so
// that vendor clients can fall through to their own status mapping.
func TransportError(p provider.Provider, err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	if errors.Is(err, context.Canceled) {
		e := NewAbortedError(err)
		e.Provider = p
		return e
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		e := NewNetworkError(p.DisplayName()+" could not be reached", err)
		e.Provider = p
		return e
	}
	return nil
}
