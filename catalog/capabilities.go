package catalog

// ReasoningProtocol is the convention a model uses to expose its intermediate
// reasoning.
type ReasoningProtocol string

const (
	ReasoningNone           ReasoningProtocol = "none"
	ReasoningGeminiThinking ReasoningProtocol = "gemini-thinking"
	ReasoningAnthropic      ReasoningProtocol = "anthropic-reasoning"
	ReasoningDeepSeek       ReasoningProtocol = "deepseek-reasoning"
)

// Reasoning delimiter tag names.
const (
	TagThink    = "think"
	TagThinking = "thinking"
)

type set map[string]struct{}

func newSet(ids ...string) set {
	s := make(set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s set) has(id string) bool {
	_, ok := s[id]
	return ok
}

var (
	geminiThinkingModels = newSet(Gemini25Flash, Gemini25Pro, Gemini25FlashLite)

	deepSeekReasoningModels = newSet(DeepSeekR1Fireworks, DeepSeekR1)

	anthropicReasoningModels = newSet(Claude41Opus, Claude4Sonnet, ClaudeSonnet45, Claude4Opus)

	// o1/o3/o4 models do not accept tools.
	toolModels = newSet(
		GPT5, GPT4o, GPT4oMini, GPT41, GPT41Mini, GPT41Nano,
		Claude41Opus, Claude4Sonnet, ClaudeSonnet45, Claude4Opus,
		Gemini25Flash, Gemini25Pro, Gemini25FlashLite,
		DeepSeekV30324, Qwen3235BA22B, Qwen332B, Qwen314B, MistralNemo, KimiK2, GPTOSS120B, GPTOSS20B,
		Grok3, Grok3Mini, Grok4,
	)

	// Models that cannot use web search. Everything else can.
	nonWebSearchModels = newSet()

	openAIWebSearchModels = newSet(GPT5, GPT4oMini, GPT4o, O3, O3Mini, GPTOSS120B, GPTOSS20B)
)

// ReasoningProtocolFor returns the reasoning protocol of the model. Unknown
// models have no reasoning protocol.
func ReasoningProtocolFor(id string) ReasoningProtocol {
	switch {
	case geminiThinkingModels.has(id):
		return ReasoningGeminiThinking
	case deepSeekReasoningModels.has(id):
		return ReasoningDeepSeek
	case anthropicReasoningModels.has(id):
		return ReasoningAnthropic
	default:
		return ReasoningNone
	}
}

// SupportsReasoning reports whether the model exposes a reasoning trace the
// gateway knows how to request or extract.
func SupportsReasoning(id string) bool {
	return ReasoningProtocolFor(id) != ReasoningNone
}

// SupportsTools reports whether the model accepts tool definitions.
func SupportsTools(id string) bool {
	return toolModels.has(id)
}

// SupportsWebSearch reports whether web search may be offered for the model.
// Unlike the other predicates this is a deny-list: unknown models are
// supported.
func SupportsWebSearch(id string) bool {
	return !nonWebSearchModels.has(id)
}

// SupportsNativeWebSearch reports whether the model can ground on search
// natively through the vendor API.
func SupportsNativeWebSearch(id string) bool {
	return geminiThinkingModels.has(id)
}

// SupportsOpenAIWebSearch reports whether the model can use OpenAI's hosted
// web search tool.
func SupportsOpenAIWebSearch(id string) bool {
	return openAIWebSearchModels.has(id)
}

// ReasoningTagName returns the delimiter tag wrapping inline reasoning, or ""
// when reasoning is not carried inline.
func ReasoningTagName(id string) string {
	switch ReasoningProtocolFor(id) {
	case ReasoningDeepSeek:
		return TagThink
	case ReasoningAnthropic:
		return TagThinking
	case ReasoningNone, ReasoningGeminiThinking:
		return ""
	default:
		return ""
	}
}
