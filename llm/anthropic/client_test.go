package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, interleaved bool) *AnthropicClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewAnthropicClient("sk-ant-test", Options{InterleavedThinking: interleaved, BaseURL: srv.URL + "/"}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNewAnthropicClientRequiresKey(t *testing.T) {
	_, err := NewAnthropicClient("", Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSynchronousSendsThinkingAndHeaders(t *testing.T) {
	var body map[string]interface{}
	var headers http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[
				{"type":"thinking","thinking":"let me think","signature":"sig"},
				{"type":"text","text":"42"}
			],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":3}
		}`)
	}, true)

	resp, err := c.Synchronous(context.Background(), &llm.Request{
		Model:    "claude-sonnet-4-20250514",
		System:   "be brief",
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "answer?")},
		Options:  llm.AnthropicOptions{ThinkingBudget: 2048},
	})
	require.NoError(t, err)

	assert.Equal(t, "42", resp.Text())
	assert.Equal(t, "let me think", resp.Reasoning())
	assert.Equal(t, int64(10), resp.Usage.InputTokens)

	assert.Equal(t, "true", headers.Get("anthropic-dangerous-direct-browser-access"))
	assert.Contains(t, headers.Get("anthropic-beta"), InterleavedThinkingBeta)

	thinking, ok := body["thinking"].(map[string]interface{})
	require.True(t, ok, "thinking config missing from %v", body)
	assert.Equal(t, "enabled", thinking["type"])
	assert.EqualValues(t, 2048, thinking["budget_tokens"])
	assert.Greater(t, body["max_tokens"].(float64), float64(2048))
}

func TestSynchronousWithoutInterleavedHasNoBetaHeader(t *testing.T) {
	var beta string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		beta = r.Header.Get("anthropic-beta")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"m","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	}, false)

	_, err := c.Synchronous(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}})
	require.NoError(t, err)
	assert.NotContains(t, beta, InterleavedThinkingBeta)
}

func TestSynchronousAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}, false)

	_, err := c.Synchronous(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}})
	require.Error(t, err)
	assert.Equal(t, llm.ErrorTypeAuthRejected, llm.ErrorTypeOf(err))

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Contains(t, llmErr.Detail(), "invalid x-api-key")
}

func sse(events ...string) string {
	var sb strings.Builder
	for _, e := range events {
		var typ struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(e), &typ)
		fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", typ.Type, e)
	}
	return sb.String()
}

func TestStreamEmitsReasoningTextAndTools(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sse(
			`{"type":"message_start","message":{"id":"m","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":7,"output_tokens":1}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"pondering"}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hello"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"tu_1","name":"search","input":{}}}`,
			`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"q\":\"go\"}"}}`,
			`{"type":"content_block_stop","index":2}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":12}}`,
			`{"type":"message_stop"}`,
		))
	}, false)

	stream, err := c.Stream(context.Background(), &llm.Request{Model: "m", Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}})
	require.NoError(t, err)

	acc := llm.NewAccumulator()
	for ev, err := range llm.Events(stream) {
		require.NoError(t, err)
		acc.Add(ev)
	}
	resp := acc.Response()
	assert.Equal(t, "pondering", resp.Reasoning())
	assert.Equal(t, "Hello", resp.Text())
	require.Len(t, resp.ToolUses(), 1)
	assert.Equal(t, "go", resp.ToolUses()[0].Input["q"])
	assert.Equal(t, int64(12), resp.Usage.OutputTokens)
	assert.Equal(t, int64(7), resp.Usage.InputTokens)
}

func TestToMessageParamsSplitsSystem(t *testing.T) {
	msgs, system := ToMessageParams([]llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "rules"),
		llm.NewTextMessage(llm.RoleUser, "hi"),
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeReasoning, Text: "hidden"}, {Type: llm.ContentBlockTypeText, Text: "hello"}}},
	})
	assert.Equal(t, []string{"rules"}, system)
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[1].Content, 1)
}
