// Package providererrors turns vendor failures into the gateway's error
// taxonomy. Extract produces a structured, developer-facing classification;
// GenerateErrorMessage produces end-user guidance; Translate folds the
// classification back into an *llm.Error.
package providererrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

const (
	// FallbackMessage is returned when no provider could be attributed to
	// an error.
	FallbackMessage = "An unexpected error occurred. Please try again or contact support if the issue persists."
	// ExtractionFailedMessage is returned when classification itself fails.
	ExtractionFailedMessage = "Unable to process error details. Please try again."
)

// ProviderError is the classification of one vendor failure.
type ProviderError struct {
	Provider         provider.Provider
	OriginalError    string
	ErrorCode        string
	StatusCode       int
	UserMessage      string
	TechnicalMessage string
	IsRetryable      bool
	SuggestedAction  string
	Kind             llm.ErrorType
}

// Result is the outcome of Extract. Exactly one of Error and
// FallbackMessage is set.
type Result struct {
	Success         bool
	Error           *ProviderError
	FallbackMessage string
}

// Extract classifies err. hint names the provider that produced it; when it
// is provider.Unknown the provider is taken from an *llm.Error in the chain
// or detected from the message.
func Extract(err error, hint provider.Provider) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{FallbackMessage: ExtractionFailedMessage}
		}
	}()
	if err == nil {
		return Result{FallbackMessage: FallbackMessage}
	}

	msg := messageOf(err)
	status := statusOf(err)

	p := hint
	if !p.Valid() {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && llmErr.Provider.Valid() {
			p = llmErr.Provider
		}
	}
	if !p.Valid() {
		p = detectProvider(msg)
	}
	if !p.Valid() {
		return Result{FallbackMessage: FallbackMessage}
	}

	return Result{Success: true, Error: classify(p, msg, status, codeOf(err))}
}

func classify(p provider.Provider, msg string, status int, code string) *ProviderError {
	set := rulesFor(p)
	r := set.fallback
	for _, candidate := range set.rules {
		if candidate.matches(msg, status, code) {
			r = candidate
			break
		}
	}
	return &ProviderError{
		Provider:         p,
		OriginalError:    msg,
		ErrorCode:        r.code,
		StatusCode:       status,
		UserMessage:      r.userMessage,
		TechnicalMessage: msg,
		IsRetryable:      r.retryable,
		SuggestedAction:  r.action,
		Kind:             r.kind,
	}
}

// detectProvider guesses the provider from vendor names in msg.
func detectProvider(msg string) provider.Provider {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "openai") || strings.Contains(lower, "gpt"):
		return provider.OpenAI
	case strings.Contains(lower, "anthropic") || strings.Contains(lower, "claude"):
		return provider.Anthropic
	case strings.Contains(lower, "google") || strings.Contains(lower, "gemini"):
		return provider.Google
	case strings.Contains(lower, "openrouter"):
		return provider.OpenRouter
	case strings.Contains(lower, "fireworks"):
		return provider.Fireworks
	case strings.Contains(lower, "together"):
		return provider.Together
	case strings.Contains(lower, "xai") || strings.Contains(lower, "grok"):
		return provider.XAI
	}
	return provider.Unknown
}

// describe returns the text keyword matching runs over: the vendor message,
// the classifier code spelled as words and the HTTP status.
func describe(err error) string {
	parts := []string{messageOf(err)}
	if code := codeOf(err); code != "" {
		parts = append(parts, strings.ReplaceAll(code, "_", " "))
	}
	if status := statusOf(err); status != 0 {
		parts = append(parts, fmt.Sprint(status))
	}
	return strings.Join(parts, " ")
}
