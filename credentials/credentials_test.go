package credentials

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

var (
	validOpenRouterKey = "sk-or-v1-" + strings.Repeat("ab12", 16)
	validOpenAIKey     = "sk-" + strings.Repeat("a1B2", 8)
	validGeminiKey     = "AIza" + strings.Repeat("x", 35)
)

func newValidator(t *testing.T, size int) *Validator {
	t.Helper()
	v, err := NewValidator(size, zerolog.Nop())
	require.NoError(t, err)
	return v
}

func TestMapFrontendToProvider(t *testing.T) {
	got := MapFrontendToProvider(map[string]string{"A": "  x  ", "B": "   ", "C": ""})
	assert.Equal(t, Bag{"A": "x"}, got)
}

func TestMapFrontendToProviderPreservesEntries(t *testing.T) {
	in := map[string]string{
		"OPENAI_API_KEY":     " " + validOpenAIKey,
		"OPENROUTER_API_KEY": validOpenRouterKey + "\n",
	}
	got := MapFrontendToProvider(in)
	require.Len(t, got, 2)
	assert.Equal(t, validOpenAIKey, got["OPENAI_API_KEY"])
	assert.Equal(t, validOpenRouterKey, got["OPENROUTER_API_KEY"])
}

func TestValidateFormat(t *testing.T) {
	v := newValidator(t, 0)

	tests := []struct {
		name  string
		p     provider.Provider
		key   string
		valid bool
		err   string
	}{
		{"openrouter valid", provider.OpenRouter, validOpenRouterKey, true, ""},
		{"openrouter uppercase hex", provider.OpenRouter, "sk-or-v1-" + strings.Repeat("AB12", 16), false, "Invalid API key format"},
		{"openrouter short", provider.OpenRouter, "sk-or-v1-abc", false, "too short"},
		{"openai valid", provider.OpenAI, validOpenAIKey, true, ""},
		{"openai wrong prefix", provider.OpenAI, "pk-" + strings.Repeat("a", 30), false, "Invalid API key format"},
		{"gemini valid", provider.Google, validGeminiKey, true, ""},
		{"together valid", provider.Together, strings.Repeat("0f", 32), true, ""},
		{"xai valid", provider.XAI, "xai-" + strings.Repeat("Z", 40), true, ""},
		{"lmstudio valid", provider.LMStudio, "http://localhost:1234", true, ""},
		{"ollama https", provider.Ollama, "https://ollama.internal:11434/", true, ""},
		{"lmstudio bad scheme", provider.LMStudio, "ftp://localhost:1234", false, "Invalid protocol"},
		{"lmstudio bad port", provider.LMStudio, "http://localhost:70000", false, "Invalid port number"},
		{"lmstudio port zero", provider.LMStudio, "http://localhost:0", false, "Invalid port number"},
		{"lmstudio no host", provider.LMStudio, "http://:1234/v1", false, "Invalid hostname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateFormat(tt.p, tt.key)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.p, res.Provider)
			assert.True(t, res.HasKey)
			if tt.err != "" {
				assert.Contains(t, res.Error, tt.err)
				assert.NotEmpty(t, res.ExpectedFormat)
			} else {
				assert.Empty(t, res.Error)
			}
		})
	}
}

func TestValidateFormatIdempotentAndSecretFree(t *testing.T) {
	v := newValidator(t, 0)
	keys := map[provider.Provider]string{
		provider.OpenRouter: validOpenRouterKey,
		provider.OpenAI:     validOpenAIKey + "!",
		provider.Anthropic:  "sk-ant-" + strings.Repeat("q", 20),
	}
	for p, key := range keys {
		first := v.ValidateFormat(p, key)
		second := v.ValidateFormat(p, key)
		assert.Equal(t, first, second)

		data, err := json.Marshal(first)
		require.NoError(t, err)
		assert.NotContains(t, string(data), key)
	}
}

func TestValidationCacheKeyNeverHoldsSecret(t *testing.T) {
	v := newValidator(t, 0)
	v.ValidateFormat(provider.OpenRouter, validOpenRouterKey)
	for _, k := range v.cache.Keys() {
		assert.NotContains(t, k, validOpenRouterKey)
		assert.LessOrEqual(t, len(k), len("openrouter:73:")+cachePrefixLength)
	}
}

func TestValidationCacheEvictsOldestFirst(t *testing.T) {
	v := newValidator(t, 2)
	first := "sk-" + strings.Repeat("a", 30)
	second := "sk-" + strings.Repeat("a", 31)
	third := "sk-" + strings.Repeat("a", 32)

	v.ValidateFormat(provider.OpenAI, first)
	v.ValidateFormat(provider.OpenAI, second)
	v.ValidateFormat(provider.OpenAI, first) // hit must not refresh recency
	v.ValidateFormat(provider.OpenAI, third)

	assert.False(t, v.cache.Contains(cacheKey(provider.OpenAI, first)))
	assert.True(t, v.cache.Contains(cacheKey(provider.OpenAI, second)))
	assert.True(t, v.cache.Contains(cacheKey(provider.OpenAI, third)))
}

func TestValidateProviderKeyMissing(t *testing.T) {
	v := newValidator(t, 0)
	res := v.ValidateProviderKey(provider.XAI, Bag{"OPENAI_API_KEY": validOpenAIKey})
	assert.False(t, res.Valid)
	assert.False(t, res.HasKey)
	assert.Contains(t, res.Error, "XAI_API_KEY")
}

func TestAvailableProviders(t *testing.T) {
	v := newValidator(t, 0)
	bag := MapFrontendToProvider(map[string]string{
		"OPENROUTER_API_KEY": validOpenRouterKey,
		"OPENAI_API_KEY":     "garbage",
		"LMSTUDIO_BASE_URL":  "http://127.0.0.1:1234",
	})
	assert.Equal(t, []provider.Provider{provider.OpenRouter, provider.LMStudio}, v.AvailableProviders(bag))
}

func TestResolveBYOKAlwaysWins(t *testing.T) {
	server := StaticServerCredentials{provider.Google: "server-gemini"}
	r := NewResolver(server, zerolog.Nop())
	ctx := context.Background()

	for _, p := range provider.All() {
		bag := Bag{p.KeyName(): "  user-key  "}
		for _, privileged := range []bool{false, true} {
			for _, free := range []bool{false, true} {
				assert.Equal(t, "user-key", r.Resolve(ctx, p, bag, privileged, free), "provider %s", p)
			}
		}
	}
}

func TestResolveServerFundedWhitelist(t *testing.T) {
	server := StaticServerCredentials{}
	for _, p := range provider.All() {
		server[p] = "server-" + p.String()
	}
	r := NewResolver(server, zerolog.Nop())
	ctx := context.Background()

	for _, p := range provider.All() {
		for _, privileged := range []bool{false, true} {
			for _, free := range []bool{false, true} {
				got := r.Resolve(ctx, p, nil, privileged, free)
				if p == FreeProvider && (privileged || free) {
					assert.Equal(t, "server-google", got)
				} else {
					assert.Empty(t, got, "provider %s privileged=%v free=%v", p, privileged, free)
				}
			}
		}
	}
}

func TestResolveNonWhitelistedPrivilegedIsEmpty(t *testing.T) {
	r := NewResolver(StaticServerCredentials{provider.Anthropic: "server-anthropic"}, zerolog.Nop())
	assert.Empty(t, r.Resolve(context.Background(), provider.Anthropic, Bag{}, true, false))
}

func TestResolveAmbientFallback(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	ctx := WithAmbient(context.Background(), Bag{"XAI_API_KEY": " ambient "})
	assert.Equal(t, "ambient", r.Resolve(ctx, provider.XAI, nil, false, false))
	assert.Equal(t, "byok", r.Resolve(ctx, provider.XAI, Bag{"XAI_API_KEY": "byok"}, false, false))
	assert.Empty(t, r.Resolve(ctx, provider.OpenAI, nil, true, true))
}

func TestBagHasAny(t *testing.T) {
	assert.False(t, Bag(nil).HasAny())
	assert.False(t, Bag{"A": "  "}.HasAny())
	assert.True(t, Bag{"A": "x"}.HasAny())
}
