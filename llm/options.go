package llm

// ProviderOptions carries vendor-native request options. Each vendor client
// reads only its own variant and ignores the others.
type ProviderOptions interface {
	providerOptions()
}

// GoogleOptions are request options understood by the Gemini client.
type GoogleOptions struct {
	Thinking *GoogleThinking `json:"thinking,omitempty"`
}

// GoogleThinking requests Gemini's native thinking output.
type GoogleThinking struct {
	IncludeThoughts bool  `json:"include_thoughts"`
	Budget          int32 `json:"budget"`
}

// AnthropicOptions are request options understood by the Anthropic client.
type AnthropicOptions struct {
	// ThinkingBudget enables extended thinking with the given token budget.
	ThinkingBudget int64 `json:"thinking_budget,omitempty"`
}

func (GoogleOptions) providerOptions()    {}
func (AnthropicOptions) providerOptions() {}

// GoogleOptionsFrom extracts Google options from a request, if present.
func GoogleOptionsFrom(req *Request) (GoogleOptions, bool) {
	switch o := req.Options.(type) {
	case GoogleOptions:
		return o, true
	case *GoogleOptions:
		if o != nil {
			return *o, true
		}
	}
	return GoogleOptions{}, false
}

// AnthropicOptionsFrom extracts Anthropic options from a request, if present.
func AnthropicOptionsFrom(req *Request) (AnthropicOptions, bool) {
	switch o := req.Options.(type) {
	case AnthropicOptions:
		return o, true
	case *AnthropicOptions:
		if o != nil {
			return *o, true
		}
	}
	return AnthropicOptions{}, false
}
