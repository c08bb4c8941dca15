// Package catalog is the static registry of logical models and their
// capabilities.
package catalog

import (
	"github.com/aschepis/backscratcher/llmgate/provider"
)

// Logical model ids.
const (
	Claude41Opus              = "claude-opus-4-1-20250805"
	Claude4Sonnet             = "claude-sonnet-4-20250514"
	ClaudeSonnet45            = "claude-sonnet-4-5"
	Claude4Opus               = "claude-opus-4-20250514"
	Gemini25FlashLite         = "gemini-flash-lite-latest"
	Gemini25Flash             = "gemini-flash-latest"
	Gemini25Pro               = "gemini-2.5-pro"
	Gemini25FlashImagePreview = "gemini-2.5-flash-image-preview"
	GPT4oMini                 = "gpt-4o-mini"
	GPT4o                     = "gpt-4o"
	GPT41Mini                 = "gpt-4.1-mini"
	GPT41Nano                 = "gpt-4.1-nano"
	GPT41                     = "gpt-4.1"
	GPT5                      = "gpt-5-2025-08-07"
	O3                        = "o3"
	O3Mini                    = "o3-mini"
	O4Mini                    = "o4-mini"
	O1Mini                    = "o1-mini"
	O1                        = "o1"
	Grok3                     = "grok-3"
	Grok3Mini                 = "grok-3-mini"
	Grok4                     = "grok-4"
	DeepSeekR1Fireworks       = "accounts/fireworks/models/deepseek-r1-0528"
	KimiK2InstructFireworks   = "accounts/fireworks/models/kimi-k2-instruct"
	DeepSeekV30324            = "deepseek/deepseek-chat-v3-0324"
	DeepSeekR1                = "deepseek/deepseek-r1"
	Qwen3235BA22B             = "qwen/qwen3-235b-a22b"
	Qwen332B                  = "qwen/qwen3-32b"
	MistralNemo               = "mistralai/mistral-nemo"
	Qwen314B                  = "qwen/qwen3-14b"
	KimiK2                    = "moonshot/kimi-k2"
	GPTOSS120B                = "openai/gpt-oss-120b"
	GPTOSS20B                 = "openai/gpt-oss-20b"
)

// Model is a logical model and its static metadata.
type Model struct {
	ID              string
	Name            string
	Provider        provider.Provider
	MaxOutputTokens int64
	ContextWindow   int64
	IsFreeTier      bool
}

var models = []Model{
	{ID: GPT5, Name: "GPT-5", Provider: provider.OpenAI, MaxOutputTokens: 128_000, ContextWindow: 400_000},
	{ID: GPT4o, Name: "GPT-4o", Provider: provider.OpenAI, MaxOutputTokens: 16_384, ContextWindow: 128_000},
	{ID: GPT41Mini, Name: "GPT-4.1 Mini", Provider: provider.OpenAI, MaxOutputTokens: 32_768, ContextWindow: 1_047_576},
	{ID: GPT41, Name: "GPT-4.1", Provider: provider.OpenAI, MaxOutputTokens: 32_768, ContextWindow: 1_047_576},
	{ID: O3, Name: "o3", Provider: provider.OpenAI, MaxOutputTokens: 100_000, ContextWindow: 200_000},
	{ID: O3Mini, Name: "o3-mini", Provider: provider.OpenAI, MaxOutputTokens: 100_000, ContextWindow: 200_000},
	{ID: O4Mini, Name: "o4 mini", Provider: provider.OpenAI, MaxOutputTokens: 100_000, ContextWindow: 200_000},
	{ID: GPT41Nano, Name: "GPT-4.1 Nano", Provider: provider.OpenAI, MaxOutputTokens: 16_384, ContextWindow: 1_047_576},
	{ID: O1Mini, Name: "o1-mini", Provider: provider.OpenAI, MaxOutputTokens: 65_536, ContextWindow: 128_000},
	{ID: O1, Name: "o1", Provider: provider.OpenAI, MaxOutputTokens: 100_000, ContextWindow: 200_000},
	{ID: GPT4oMini, Name: "GPT-4o Mini", Provider: provider.OpenAI, MaxOutputTokens: 100_000, ContextWindow: 200_000},

	{ID: Claude41Opus, Name: "Claude 4.1 Opus", Provider: provider.Anthropic, MaxOutputTokens: 64_000, ContextWindow: 200_000},
	{ID: Claude4Sonnet, Name: "Claude 4 Sonnet", Provider: provider.Anthropic, MaxOutputTokens: 64_000, ContextWindow: 200_000},
	{ID: ClaudeSonnet45, Name: "Claude Sonnet 4.5", Provider: provider.Anthropic, MaxOutputTokens: 64_000, ContextWindow: 200_000},
	{ID: Claude4Opus, Name: "Claude 4 Opus", Provider: provider.Anthropic, MaxOutputTokens: 32_000, ContextWindow: 200_000},

	{ID: Gemini25Flash, Name: "Gemini 2.5 Flash", Provider: provider.Google, MaxOutputTokens: 1_048_576, ContextWindow: 1_048_576},
	{ID: Gemini25FlashLite, Name: "Gemini 2.5 Flash Lite", Provider: provider.Google, MaxOutputTokens: 65_536, ContextWindow: 65_536},
	{ID: Gemini25Pro, Name: "Gemini 2.5 Pro", Provider: provider.Google, MaxOutputTokens: 1_048_576, ContextWindow: 1_048_576},
	{ID: Gemini25FlashImagePreview, Name: "Gemini 2.5 Flash Image Preview", Provider: provider.Google, MaxOutputTokens: 65_536, ContextWindow: 65_536},

	{ID: Grok3, Name: "Grok 3", Provider: provider.XAI, MaxOutputTokens: 131_072, ContextWindow: 131_072},
	{ID: Grok3Mini, Name: "Grok 3 Mini", Provider: provider.XAI, MaxOutputTokens: 131_072, ContextWindow: 131_072},
	{ID: Grok4, Name: "Grok 4", Provider: provider.XAI, MaxOutputTokens: 256_000, ContextWindow: 256_000},

	{ID: DeepSeekR1Fireworks, Name: "DeepSeek R1 (Fireworks)", Provider: provider.Fireworks, MaxOutputTokens: 32_768, ContextWindow: 163_840},
	{ID: KimiK2InstructFireworks, Name: "Kimi K2 Instruct (Fireworks)", Provider: provider.Fireworks, MaxOutputTokens: 4_096, ContextWindow: 131_072},

	{ID: DeepSeekV30324, Name: "DeepSeek V3 0324", Provider: provider.OpenRouter, MaxOutputTokens: 32_768, ContextWindow: 163_840},
	{ID: DeepSeekR1, Name: "DeepSeek R1", Provider: provider.OpenRouter, MaxOutputTokens: 32_768, ContextWindow: 163_840},
	{ID: Qwen3235BA22B, Name: "Qwen3 235B A22B", Provider: provider.OpenRouter, MaxOutputTokens: 8192, ContextWindow: 40_960},
	{ID: Qwen332B, Name: "Qwen3 32B", Provider: provider.OpenRouter, MaxOutputTokens: 8192, ContextWindow: 40_960},
	{ID: MistralNemo, Name: "Mistral Nemo", Provider: provider.OpenRouter, MaxOutputTokens: 32_768, ContextWindow: 131_072},
	{ID: Qwen314B, Name: "Qwen3 14B", Provider: provider.OpenRouter, MaxOutputTokens: 8192, ContextWindow: 40_960, IsFreeTier: true},
	{ID: KimiK2, Name: "Kimi K2 (OpenRouter)", Provider: provider.OpenRouter, MaxOutputTokens: 4096, ContextWindow: 131_072},
	{ID: GPTOSS120B, Name: "OpenAI gpt-oss-120b (via OpenRouter)", Provider: provider.OpenRouter, MaxOutputTokens: 32_768, ContextWindow: 131_072},
	{ID: GPTOSS20B, Name: "OpenAI gpt-oss-20b (via OpenRouter)", Provider: provider.OpenRouter, MaxOutputTokens: 32_768, ContextWindow: 131_072},
}

var byID = func() map[string]Model {
	m := make(map[string]Model, len(models))
	for _, model := range models {
		m[model.ID] = model
	}
	return m
}()

// Lookup returns the model registered under id.
func Lookup(id string) (Model, bool) {
	m, ok := byID[id]
	return m, ok
}

// Models returns a copy of the model table.
func Models() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// Chat modes that do not name a model directly.
const (
	ChatModeDeep = "deep"
	ChatModePro  = "pro"
)

// FromChatMode maps a chat mode to the model serving it. Modes that are model
// ids map to themselves; anything unknown falls back to Gemini Flash Lite.
func FromChatMode(mode string) string {
	switch mode {
	case ChatModeDeep, ChatModePro:
		return Gemini25Flash
	}
	if _, ok := byID[mode]; ok {
		return mode
	}
	return Gemini25FlashLite
}
