package providererrors

import (
	"errors"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
	"github.com/aschepis/backscratcher/llmgate/quota"
)

// Translate converts err into an *llm.Error carrying the classification of
// Extract. The original error stays reachable through Unwrap.
//
// Cancellations, quota exhaustion and failures detected before any network
// call are returned as they are.
func Translate(err error, hint provider.Provider) error {
	if err == nil {
		return nil
	}
	if llm.IsAborted(err) {
		if llm.ErrorTypeOf(err) == llm.ErrorTypeAborted {
			return err
		}
		e := llm.NewAbortedError(err)
		e.Provider = hint
		return e
	}
	if quota.IsExceeded(err) {
		return err
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		switch {
		case llmErr.Type == llm.ErrorTypeMissingCredential,
			llmErr.Type == llm.ErrorTypeInvalidCredentialFormat,
			llmErr.Type == llm.ErrorTypeInvalidRequest && llmErr.StatusCode == 0:
			return err
		}
	}

	res := Extract(err, hint)
	if !res.Success {
		out := &llm.Error{
			Type:        llm.ErrorTypeOf(err),
			Message:     res.FallbackMessage,
			Retryable:   llm.IsRetryableError(err),
			Provider:    hint,
			ProviderErr: err,
		}
		if llmErr != nil {
			out.StatusCode = llmErr.StatusCode
			out.RetryAfter = llmErr.RetryAfter
			if llmErr.Provider.Valid() {
				out.Provider = llmErr.Provider
			}
		}
		return out
	}

	pe := res.Error
	out := &llm.Error{
		Type:            pe.Kind,
		Message:         pe.UserMessage,
		Retryable:       pe.IsRetryable,
		StatusCode:      pe.StatusCode,
		Provider:        pe.Provider,
		Code:            pe.ErrorCode,
		SuggestedAction: pe.SuggestedAction,
		ProviderErr:     err,
	}
	if llmErr != nil {
		out.RetryAfter = llmErr.RetryAfter
		// Keep the adapter's status mapping when no rule matched.
		if pe.Kind == llm.ErrorTypeUnknown && llmErr.Type != llm.ErrorTypeUnknown {
			out.Type = llmErr.Type
			out.Retryable = llmErr.Retryable
		}
	}
	return out
}
