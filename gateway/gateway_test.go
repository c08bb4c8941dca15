package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmgate/catalog"
	"github.com/aschepis/backscratcher/llmgate/credentials"
	"github.com/aschepis/backscratcher/llmgate/factory"
	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/middleware"
	"github.com/aschepis/backscratcher/llmgate/provider"
	"github.com/aschepis/backscratcher/llmgate/quota"
	"github.com/aschepis/backscratcher/llmgate/reasoning"
)

var testBag = credentials.Bag{"OPENROUTER_API_KEY": "sk-or-v1-" + strings.Repeat("ab12", 16)}

// chatRequest is the part of an OpenAI chat request the tests inspect.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

// vendor is a fake OpenRouter endpoint answering each call with the next
// scripted list of SSE chunks.
type vendor struct {
	srv     *httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	script  [][]string
	bodies  []chatRequest
	block   chan struct{}
	holdAll bool
}

func newVendor(t *testing.T, script ...[]string) *vendor {
	t.Helper()
	v := &vendor{script: script}
	v.srv = httptest.NewServer(http.HandlerFunc(v.serve))
	t.Cleanup(v.srv.Close)
	return v
}

func (v *vendor) serve(w http.ResponseWriter, r *http.Request) {
	n := int(v.calls.Add(1)) - 1

	var body chatRequest
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &body)
	v.mu.Lock()
	v.bodies = append(v.bodies, body)
	chunks := v.script[min(n, len(v.script)-1)]
	block := v.block
	v.mu.Unlock()

	if v.holdAll {
		<-r.Context().Done()
		return
	}
	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	var sb strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&sb, "data: %s\n\n", ch)
	}
	sb.WriteString("data: [DONE]\n\n")
	_, _ = io.WriteString(w, sb.String())
}

func (v *vendor) requests() []chatRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]chatRequest(nil), v.bodies...)
}

func textChunks(parts ...string) []string {
	out := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		data, _ := json.Marshal(p)
		out = append(out, fmt.Sprintf(`{"id":"c","choices":[{"index":0,"delta":{"content":%s}}]}`, data))
	}
	return append(out, `{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`)
}

func toolCallChunks(id, name, args string) []string {
	data, _ := json.Marshal(args)
	return []string{
		fmt.Sprintf(`{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":%q,"type":"function","function":{"name":%q,"arguments":%s}}]}}]}`, id, name, data),
		`{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}
}

func newGateway(t *testing.T, v *vendor, cfg Config) *Gateway {
	t.Helper()
	validator, err := credentials.NewValidator(0, zerolog.Nop())
	require.NoError(t, err)
	resolver := credentials.NewResolver(nil, zerolog.Nop())
	fcfg := factory.Config{}
	if v != nil {
		fcfg.BaseURLs = map[provider.Provider]string{provider.OpenRouter: v.srv.URL + "/api/v1"}
	}
	f := factory.New(resolver, validator, fcfg, zerolog.Nop())
	return New(f, resolver, cfg, zerolog.Nop())
}

func TestGetLanguageModel(t *testing.T) {
	v := newVendor(t, textChunks("pong"))
	g := newGateway(t, v, Config{Composer: middleware.NewComposer(middleware.ComposerOptions{}, zerolog.Nop())})

	t.Run("unknown model", func(t *testing.T) {
		_, err := g.GetLanguageModel(context.Background(), "nope", ModelRequest{})
		require.Error(t, err)
		assert.Equal(t, llm.ErrorTypeInvalidRequest, llm.ErrorTypeOf(err))
		assert.Contains(t, err.Error(), "Model nope not found")
	})

	t.Run("missing credential", func(t *testing.T) {
		_, err := g.GetLanguageModel(context.Background(), catalog.MistralNemo, ModelRequest{})
		require.Error(t, err)
		assert.Equal(t, llm.ErrorTypeMissingCredential, llm.ErrorTypeOf(err))
	})

	t.Run("middleware attached", func(t *testing.T) {
		var hooked atomic.Bool
		mw := llm.StreamMiddlewareFunc{BeforeStreamFunc: func(_ context.Context, req *llm.Request) (*llm.Request, error) {
			hooked.Store(true)
			return req, nil
		}}
		client, err := g.GetLanguageModel(context.Background(), catalog.MistralNemo, ModelRequest{
			Middleware:       mw,
			Credentials:      testBag,
			MiddlewareConfig: &middleware.Development,
		})
		require.NoError(t, err)

		stream, err := client.Stream(context.Background(), &llm.Request{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "ping")}})
		require.NoError(t, err)
		acc := llm.NewAccumulator()
		for ev, err := range llm.Events(stream) {
			require.NoError(t, err)
			acc.Add(ev)
		}
		assert.Equal(t, "pong", acc.Response().Text())
		assert.True(t, hooked.Load())

		reqs := v.requests()
		require.NotEmpty(t, reqs)
		assert.Equal(t, catalog.MistralNemo, reqs[len(reqs)-1].Model)
	})
}

func TestGenerateText(t *testing.T) {
	v := newVendor(t, textChunks("Hel", "lo"))
	g := newGateway(t, v, Config{})

	var chunks, fulls []string
	text, err := g.GenerateText(context.Background(), TextRequest{
		Prompt:      "say hello",
		Model:       catalog.MistralNemo,
		Credentials: testBag,
		OnChunk: func(chunk, full string) {
			chunks = append(chunks, chunk)
			fulls = append(fulls, full)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	assert.Equal(t, []string{"Hel", "Hello"}, fulls)

	reqs := v.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, catalog.MistralNemo, reqs[0].Model)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, "user", reqs[0].Messages[0].Role)
	assert.Equal(t, "say hello", reqs[0].Messages[0].Content)
	assert.Equal(t, 32_768, reqs[0].MaxTokens)
}

func TestGenerateTextPromptBecomesSystem(t *testing.T) {
	v := newVendor(t, textChunks("ok"))
	g := newGateway(t, v, Config{})

	_, err := g.GenerateText(context.Background(), TextRequest{
		Prompt:      "be brief",
		Model:       catalog.MistralNemo,
		Credentials: testBag,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, "first"),
			{Role: llm.RoleAssistant},
			llm.NewTextMessage(llm.RoleAssistant, "   "),
			llm.NewTextMessage(llm.RoleUser, "second"),
		},
	})
	require.NoError(t, err)

	reqs := v.requests()
	require.Len(t, reqs, 1)
	var roles, contents []string
	for _, m := range reqs[0].Messages {
		roles = append(roles, m.Role)
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"system", "user", "user"}, roles)
	assert.Equal(t, []string{"be brief", "first", "second"}, contents)
}

func TestGenerateTextDeduplicates(t *testing.T) {
	v := newVendor(t, textChunks("shared"))
	v.block = make(chan struct{})
	g := newGateway(t, v, Config{})

	req := TextRequest{Prompt: "same", Model: catalog.MistralNemo, Credentials: testBag}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = g.GenerateText(context.Background(), req)
		}()
	}

	require.Eventually(t, func() bool { return v.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(v.block)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, int32(1), v.calls.Load())
}

func TestGenerateTextCachesResults(t *testing.T) {
	v := newVendor(t, textChunks("one"), textChunks("two"))
	g := newGateway(t, v, Config{})

	req := TextRequest{Prompt: "cache me", Model: catalog.MistralNemo, Credentials: testBag}
	first, err := g.GenerateText(context.Background(), req)
	require.NoError(t, err)
	second, err := g.GenerateText(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "one", first)
	assert.Equal(t, "one", second)
	assert.Equal(t, int32(1), v.calls.Load())

	req.Prompt = "something else"
	third, err := g.GenerateText(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "two", third)
	assert.Equal(t, int32(2), v.calls.Load())
}

func TestGenerateTextErrorsAreNotCached(t *testing.T) {
	g := newGateway(t, nil, Config{})

	req := TextRequest{Prompt: "hi", Model: catalog.MistralNemo}
	for range 2 {
		_, err := g.GenerateText(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, llm.ErrorTypeMissingCredential, llm.ErrorTypeOf(err))
		assert.Contains(t, err.Error(), "https://openrouter.ai/keys")
	}
}

func TestGenerateTextToolLoop(t *testing.T) {
	v := newVendor(t,
		toolCallChunks("call_1", "lookup", `{"q":"go"}`),
		textChunks("Go is ", "a language"),
	)
	g := newGateway(t, v, Config{})

	var gotInput map[string]any
	var calls []llm.ToolUseBlock
	var results []llm.ToolResultBlock
	text, err := g.GenerateText(context.Background(), TextRequest{
		Prompt:      "what is go",
		Model:       catalog.MistralNemo,
		Credentials: testBag,
		Tools: []Tool{{
			Spec: llm.ToolSpec{Name: "lookup", Description: "Looks things up"},
			Execute: func(_ context.Context, input map[string]any) (string, error) {
				gotInput = input
				return "a programming language", nil
			},
		}},
		OnToolCall:   func(call llm.ToolUseBlock) { calls = append(calls, call) },
		OnToolResult: func(res llm.ToolResultBlock) { results = append(results, res) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Go is a language", text)
	assert.Equal(t, map[string]any{"q": "go"}, gotInput)

	require.Len(t, calls, 1)
	assert.Equal(t, "lookup", calls[0].Name)
	require.Len(t, results, 1)
	assert.Equal(t, llm.ToolResultBlock{ID: "call_1", Content: "a programming language"}, results[0])

	reqs := v.requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Equal(t, "a programming language", last.Content)
}

func TestStreamTextStopsAtMaxSteps(t *testing.T) {
	v := newVendor(t, toolCallChunks("call_1", "missing", `{}`))
	g := newGateway(t, v, Config{})

	stream, err := g.StreamText(context.Background(), TextRequest{
		Prompt:      "loop",
		Model:       catalog.MistralNemo,
		Credentials: testBag,
		MaxSteps:    1,
		Tools:       []Tool{{Spec: llm.ToolSpec{Name: "other"}}},
	})
	require.NoError(t, err)

	var types []llm.StreamEventType
	var result *llm.ToolResultBlock
	for ev, err := range llm.Events(stream) {
		require.NoError(t, err)
		types = append(types, ev.Type)
		if ev.Delta != nil && ev.Delta.ToolResult != nil {
			result = ev.Delta.ToolResult
		}
	}
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "missing")
	assert.Equal(t, llm.StreamEventTypeStop, types[len(types)-1])
	assert.Equal(t, int32(1), v.calls.Load())
}

func TestGenerateTextAbort(t *testing.T) {
	v := newVendor(t, textChunks("never"))
	v.holdAll = true
	g := newGateway(t, v, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.GenerateText(ctx, TextRequest{Prompt: "slow", Model: catalog.MistralNemo, Credentials: testBag})
	require.Error(t, err)
	assert.True(t, llm.IsAborted(err))
	assert.Equal(t, "Operation aborted", err.Error())
}

func TestStreamTextQuota(t *testing.T) {
	ledger := quota.NewMemoryLedger(quota.Limits{quota.FeatureDeepResearch: 1})
	g := newGateway(t, nil, Config{Quota: ledger})

	req := TextRequest{
		Prompt: "research",
		Model:  catalog.MistralNemo,
		Tier:   TierPlus,
		UserID: "user-1",
		Mode:   catalog.ChatModeDeep,
	}
	used := func() int {
		t.Helper()
		n, err := ledger.Used(context.Background(), "user-1", quota.FeatureDeepResearch)
		require.NoError(t, err)
		return n
	}

	// Calls that fail the credential check are not charged.
	for range 3 {
		_, err := g.StreamText(context.Background(), req)
		assert.Equal(t, llm.ErrorTypeMissingCredential, llm.ErrorTypeOf(err))
	}
	assert.Equal(t, 0, used())

	// A deployment-supplied key resolves the model, so the call is charged.
	ctx := credentials.WithAmbient(context.Background(), testBag)
	stream, err := g.StreamText(ctx, req)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, 1, used())

	_, err = g.StreamText(ctx, req)
	var exceeded *quota.ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Same(t, exceeded, err)
	assert.Equal(t, quota.FeatureDeepResearch, exceeded.Feature)
	assert.Equal(t, 1, used())

	// Callers bringing their own key and free users are not metered.
	req.Credentials = testBag
	_, err = g.StreamText(context.Background(), req)
	assert.False(t, quota.IsExceeded(err))
	req.Credentials = nil
	req.Tier = TierFree
	_, err = g.StreamText(ctx, req)
	assert.False(t, quota.IsExceeded(err))
}

func TestGenerateTextDistinctRequestsAreNotShared(t *testing.T) {
	base := TextRequest{Prompt: "same", Model: catalog.MistralNemo, Credentials: testBag}
	withMessages := base
	withMessages.Messages = []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")}
	withTools := base
	withTools.Tools = []Tool{{Spec: llm.ToolSpec{Name: "lookup"}}}
	withPrompt := base
	withPrompt.Prompt = "different"

	tests := []struct {
		name  string
		other TextRequest
	}{
		{"prompt", withPrompt},
		{"messages", withMessages},
		{"tools", withTools},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVendor(t, textChunks("answer"))
			v.block = make(chan struct{})
			g := newGateway(t, v, Config{})

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, req := range []TextRequest{base, tt.other} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = g.GenerateText(context.Background(), req)
				}()
			}

			require.Eventually(t, func() bool { return v.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
			close(v.block)
			wg.Wait()

			require.NoError(t, errs[0])
			require.NoError(t, errs[1])
			assert.Equal(t, int32(2), v.calls.Load())
		})
	}
}

func TestBuildRequestDropsToolChoiceWithoutTools(t *testing.T) {
	m, ok := catalog.Lookup(catalog.MistralNemo)
	require.True(t, ok)

	req := buildRequest(m, TextRequest{Prompt: "hi", ToolChoice: llm.ToolChoiceRequired})
	assert.Empty(t, req.ToolChoice)
	assert.Empty(t, req.System)

	req = buildRequest(m, TextRequest{Prompt: "hi", ToolChoice: llm.ToolChoiceRequired, Tools: []Tool{{Spec: llm.ToolSpec{Name: "t"}}}})
	assert.Equal(t, llm.ToolChoiceRequired, req.ToolChoice)
	assert.Len(t, req.Tools, 1)
}

func TestResultKey(t *testing.T) {
	base := TextRequest{Prompt: "p", Model: "m"}.withDefaults()
	k1, err := resultKey(base)
	require.NoError(t, err)

	withKey := base
	withKey.Credentials = testBag
	k2, err := resultKey(withKey)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	other := base
	other.MaxSteps = 3
	k3, err := resultKey(other)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
	assert.True(t, strings.HasPrefix(k1, "generateText:"))
}

func TestStreamTextInterleavedThinkingFollowsPlan(t *testing.T) {
	tests := []struct {
		name     string
		thinking reasoning.ThinkingMode
		wantBeta bool
	}{
		{"thinking on", reasoning.ThinkingMode{Enabled: true, Budget: 1024, InterleavedThinking: true}, true},
		{"thinking off", reasoning.ThinkingMode{InterleavedThinking: true}, false},
		{"no budget", reasoning.ThinkingMode{Enabled: true, InterleavedThinking: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var beta atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				beta.Store(r.Header.Get("anthropic-beta"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"stop here"}}`)
			}))
			t.Cleanup(srv.Close)

			validator, err := credentials.NewValidator(0, zerolog.Nop())
			require.NoError(t, err)
			resolver := credentials.NewResolver(nil, zerolog.Nop())
			f := factory.New(resolver, validator, factory.Config{
				BaseURLs: map[provider.Provider]string{provider.Anthropic: srv.URL + "/"},
			}, zerolog.Nop())
			g := New(f, resolver, Config{}, zerolog.Nop())

			stream, err := g.StreamText(context.Background(), TextRequest{
				Prompt:      "think",
				Model:       catalog.ClaudeSonnet45,
				Credentials: credentials.Bag{"ANTHROPIC_API_KEY": "sk-ant-" + strings.Repeat("a", 95)},
				Thinking:    tt.thinking,
			})
			require.NoError(t, err)
			for _, err := range llm.Events(stream) {
				if err != nil {
					break
				}
			}

			got, _ := beta.Load().(string)
			if tt.wantBeta {
				assert.Contains(t, got, "interleaved-thinking")
			} else {
				assert.NotContains(t, got, "interleaved-thinking")
			}
		})
	}
}
