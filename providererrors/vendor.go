package providererrors

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// messageOf returns the most specific message available for err: the
// vendor's own error body when an SDK error is in the chain, then the
// gateway message, then err.Error().
func messageOf(err error) string {
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) && oaiErr.Message != "" {
		return oaiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if body := strings.TrimSpace(string(reqErr.Body)); body != "" {
			return body
		}
		if reqErr.Err != nil {
			return reqErr.Err.Error()
		}
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		if msg := anthropicMessage(antErr.RawJSON()); msg != "" {
			return msg
		}
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Message != "" {
		return gErr.Message
	}
	var olErr api.StatusError
	if errors.As(err, &olErr) && olErr.ErrorMessage != "" {
		return olErr.ErrorMessage
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.Message != "" {
			return llmErr.Message
		}
		if llmErr.ProviderErr != nil {
			return messageOf(llmErr.ProviderErr)
		}
	}
	return err.Error()
}

// anthropicMessage reads error.message from an Anthropic error body.
func anthropicMessage(raw string) string {
	if raw == "" {
		return ""
	}
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return ""
	}
	return body.Error.Message
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.StatusCode != 0 {
		return llmErr.StatusCode
	}
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return oaiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var olErr api.StatusError
	if errors.As(err, &olErr) {
		return olErr.StatusCode
	}
	return 0
}

// codeOf returns the classifier code a vendor adapter already attached, or
// the vendor's own status name.
func codeOf(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.Code != "" {
		return strings.ToUpper(llmErr.Code)
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Status
	}
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		if code, ok := oaiErr.Code.(string); ok {
			return strings.ToUpper(code)
		}
	}
	return ""
}
