package providererrors

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

// rule is one row of a provider's classification table. A rule matches when
// the adapter already attached its code, when the status is one of its
// statuses or when the message matches its pattern.
type rule struct {
	code        string
	kind        llm.ErrorType
	pattern     *regexp.Regexp
	statuses    []int
	retryable   bool
	userMessage string
	action      string
}

func (r rule) matches(msg string, status int, code string) bool {
	if code != "" && code == r.code {
		return true
	}
	if status != 0 && slices.Contains(r.statuses, status) {
		return true
	}
	return r.pattern != nil && r.pattern.MatchString(msg)
}

// ruleSet is checked in order; the first match wins. Credential errors come
// before quota and rate limits, which come before generic overload, because
// one message can loosely match several patterns.
type ruleSet struct {
	rules    []rule
	fallback rule
}

var tables = map[provider.Provider]ruleSet{
	provider.OpenAI: {
		rules: []rule{
			{
				code: "INVALID_API_KEY", kind: llm.ErrorTypeAuthRejected,
				pattern:     regexp.MustCompile(`(?i)invalid.?api.?key|unauthorized|401`),
				statuses:    []int{401},
				userMessage: "Your OpenAI API key is invalid or has expired.",
				action:      "Please check your OpenAI API key in Settings → API Keys. Make sure it starts with 'sk-' and is copied correctly.",
			},
			{
				code: "INSUFFICIENT_QUOTA", kind: llm.ErrorTypeQuotaExceeded,
				pattern:     regexp.MustCompile(`(?i)insufficient.?quota|exceeded.?quota|billing`),
				userMessage: "Your OpenAI account has insufficient credits or billing issues.",
				action:      "Please add credits to your OpenAI account or check your billing settings at platform.openai.com.",
			},
			{
				code: "RATE_LIMIT", kind: llm.ErrorTypeRateLimit, retryable: true,
				pattern:     regexp.MustCompile(`(?i)rate.?limit|too.?many.?requests|429`),
				statuses:    []int{429},
				userMessage: "You've exceeded OpenAI's rate limits. Please wait a moment before trying again.",
				action:      "Wait a few seconds and try again. Consider upgrading your OpenAI plan for higher rate limits.",
			},
			{
				code: "MODEL_NOT_FOUND", kind: llm.ErrorTypeModelUnavailable,
				pattern:     regexp.MustCompile(`(?i)model.?not.?found|invalid.?model|404`),
				statuses:    []int{404},
				userMessage: "The requested OpenAI model is not available or doesn't exist.",
				action:      "Try selecting a different model like GPT-4o or GPT-4o Mini.",
			},
			{
				code: "CONTEXT_LENGTH", kind: llm.ErrorTypeContextTooLong,
				pattern:     regexp.MustCompile(`(?i)context.?length|token.?limit|maximum.?context`),
				userMessage: "Your message is too long for the selected model's context window.",
				action:      "Try shortening your message or start a new conversation.",
			},
			{
				code: "CONTENT_POLICY", kind: llm.ErrorTypeContentPolicy,
				pattern:     regexp.MustCompile(`(?i)content.?policy|safety|moderation`),
				userMessage: "Your request was blocked by OpenAI's content policy.",
				action:      "Please rephrase your request to comply with OpenAI's usage policies.",
			},
			{
				code: "INVALID_REQUEST", kind: llm.ErrorTypeInvalidRequest,
				pattern:     regexp.MustCompile(`(?i)invalid.?request|bad.?request|400`),
				statuses:    []int{400},
				userMessage: "OpenAI rejected the request as invalid.",
				action:      "Try again with a different model or a shorter conversation.",
			},
			{
				code: "MODEL_OVERLOADED", kind: llm.ErrorTypeModelUnavailable, retryable: true,
				pattern:     regexp.MustCompile(`(?i)model.?overloaded|service.?unavailable|502|503`),
				statuses:    []int{502, 503},
				userMessage: "OpenAI's service is temporarily overloaded.",
				action:      "Wait a moment and try again, or choose a different model.",
			},
		},
		fallback: rule{
			code: "UNKNOWN", kind: llm.ErrorTypeUnknown, retryable: true,
			userMessage: "An error occurred with OpenAI's service.",
			action:      "Please try again. If the issue persists, check OpenAI's status page.",
		},
	},
	provider.Anthropic: {
		rules: []rule{
			{
				code: "INVALID_API_KEY", kind: llm.ErrorTypeAuthRejected,
				pattern:     regexp.MustCompile(`(?i)invalid.?api.?key|authentication.?failed|401`),
				statuses:    []int{401},
				userMessage: "Your Anthropic API key is invalid or has expired.",
				action:      "Please check your Anthropic API key in Settings → API Keys. Make sure it starts with 'sk-ant-' and is copied correctly.",
			},
			{
				code: "RATE_LIMIT", kind: llm.ErrorTypeRateLimit, retryable: true,
				pattern:     regexp.MustCompile(`(?i)rate.?limit|too.?many.?requests|429`),
				statuses:    []int{429},
				userMessage: "You've exceeded Anthropic's rate limits. Please wait before trying again.",
				action:      "Wait a moment and try again. Consider upgrading your Anthropic plan for higher limits.",
			},
			{
				code: "CONTEXT_LENGTH", kind: llm.ErrorTypeContextTooLong,
				pattern:     regexp.MustCompile(`(?i)context.?length|token.?limit|maximum.?context|prompt is too long`),
				statuses:    []int{413},
				userMessage: "Your message is too long for Claude's context window.",
				action:      "Try shortening your message or start a new conversation.",
			},
			{
				code: "CONTENT_POLICY", kind: llm.ErrorTypeContentPolicy,
				pattern:     regexp.MustCompile(`(?i)content.?policy|safety|harmful`),
				userMessage: "Your request was blocked by Anthropic's usage policies.",
				action:      "Please rephrase your request.",
			},
			{
				code: "OVERLOADED", kind: llm.ErrorTypeModelUnavailable, retryable: true,
				pattern:     regexp.MustCompile(`(?i)overloaded|service.?unavailable|502|503`),
				statuses:    []int{502, 503, 529},
				userMessage: "Anthropic's service is temporarily overloaded.",
				action:      "Wait a moment and try again, or choose a different model.",
			},
		},
		fallback: rule{
			code: "UNKNOWN", kind: llm.ErrorTypeUnknown, retryable: true,
			userMessage: "An error occurred with Anthropic's service.",
			action:      "Please try again. If the issue persists, check your API key and account status.",
		},
	},
	provider.Google: {
		rules: []rule{
			{
				code: "INVALID_API_KEY", kind: llm.ErrorTypeAuthRejected,
				pattern:     regexp.MustCompile(`(?i)invalid.?api.?key|api.?key.?not.?valid|403`),
				statuses:    []int{401, 403},
				userMessage: "Your Google API key is invalid or doesn't have the required permissions.",
				action:      "Please check your Google API key in Settings → API Keys. Make sure it starts with 'AIza' and has Generative AI permissions enabled.",
			},
			{
				code: "QUOTA_EXCEEDED", kind: llm.ErrorTypeQuotaExceeded,
				pattern:     regexp.MustCompile(`(?i)quota.?exceeded|daily.?limit|billing`),
				userMessage: "Your Google Gemini quota has been exceeded.",
				action:      "Wait for your quota to reset or check your limits in Google AI Studio.",
			},
			{
				code: "RATE_LIMIT", kind: llm.ErrorTypeRateLimit, retryable: true,
				pattern:     regexp.MustCompile(`(?i)rate.?limit|too.?many.?requests|429`),
				statuses:    []int{429},
				userMessage: "You've exceeded Google Gemini's rate limits. Please wait a moment before trying again.",
				action:      "Wait a few seconds and try again.",
			},
			{
				code: "MODEL_NOT_FOUND", kind: llm.ErrorTypeModelUnavailable,
				pattern:     regexp.MustCompile(`(?i)model.?not.?found|invalid.?model|is not found`),
				statuses:    []int{404},
				userMessage: "The requested Gemini model is not available.",
				action:      "Try selecting a different Gemini model.",
			},
			{
				code: "SAFETY_FILTER", kind: llm.ErrorTypeContentPolicy,
				pattern:     regexp.MustCompile(`(?i)safety.?settings|blocked.?by.?safety|content.?filter`),
				userMessage: "Your request was blocked by Google's safety filters.",
				action:      "Please rephrase your request to avoid content that might trigger safety filters.",
			},
		},
		fallback: rule{
			code: "UNKNOWN", kind: llm.ErrorTypeUnknown, retryable: true,
			userMessage: "An error occurred with Google's Gemini service.",
			action:      "Please try again. If the issue persists, check your API key and quota limits.",
		},
	},
}

// shortNames are the provider names used in generic classifications.
var shortNames = map[provider.Provider]string{
	provider.OpenAI:     "OpenAI",
	provider.Anthropic:  "Anthropic",
	provider.Google:     "Google",
	provider.OpenRouter: "OpenRouter",
	provider.Fireworks:  "Fireworks",
	provider.Together:   "Together AI",
	provider.XAI:        "xAI",
}

var (
	genericAuthPattern = regexp.MustCompile(`(?i)unauthorized|invalid.?api.?key`)
	genericRatePattern = regexp.MustCompile(`(?i)rate.?limit|too.?many.?requests`)
)

func rulesFor(p provider.Provider) ruleSet {
	if set, ok := tables[p]; ok {
		return set
	}

	name, ok := shortNames[p]
	if !ok {
		name = p.DisplayName()
	}
	return ruleSet{
		rules: []rule{
			{
				code: "UNAUTHORIZED", kind: llm.ErrorTypeAuthRejected,
				pattern:     genericAuthPattern,
				statuses:    []int{401},
				userMessage: fmt.Sprintf("Your %s API key is invalid or has expired.", name),
				action:      fmt.Sprintf("Please check your %s API key in Settings → API Keys.", name),
			},
			{
				code: "RATE_LIMIT", kind: llm.ErrorTypeRateLimit, retryable: true,
				pattern:     genericRatePattern,
				statuses:    []int{429},
				userMessage: fmt.Sprintf("You've exceeded %s's rate limits.", name),
				action:      "Please wait a moment before trying again.",
			},
		},
		fallback: rule{
			code: "UNKNOWN", kind: llm.ErrorTypeUnknown, retryable: true,
			userMessage: fmt.Sprintf("An error occurred with %s's service.", name),
			action:      "Please try again. If the issue persists, check your API key and account status.",
		},
	}
}
