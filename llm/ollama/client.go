package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

// DefaultHost is the address of a stock local Ollama install.
const DefaultHost = "http://localhost:11434"

// OllamaClient implements the llm.Client interface for Ollama's API.
type OllamaClient struct {
	client *api.Client
}

// NewOllamaClient creates a new OllamaClient. An empty host uses DefaultHost.
func NewOllamaClient(host string, httpClient *http.Client) (*OllamaClient, error) {
	if host == "" {
		host = DefaultHost
	}
	baseURL, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{client: api.NewClient(baseURL, httpClient)}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
// A trailing /v1 from an OpenAI-style base URL is dropped.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/v1")
	return u, nil
}

func buildChatRequest(req *llm.Request, stream bool) (*api.ChatRequest, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	msgs, err := ToOllamaMessages(req.Messages, req.Tools)
	if err != nil {
		return nil, err
	}
	if req.System != "" {
		msgs = append([]api.Message{{Role: "system", Content: req.System}}, msgs...)
	}

	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}
	if len(req.Tools) > 0 && req.ToolChoice != llm.ToolChoiceNone {
		chatReq.Tools = ToOllamaTools(req.Tools)
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	return chatReq, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OllamaClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := buildChatRequest(req, false)
	if err != nil {
		return nil, err
	}

	var chatResp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertOllamaError(err)
	}

	content := make([]llm.ContentBlock, 0)
	if chatResp.Message.Thinking != "" {
		content = append(content, llm.ContentBlock{Type: llm.ContentBlockTypeReasoning, Text: chatResp.Message.Thinking})
	}
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: chatResp.Message.Content})
	}
	for i, toolCall := range chatResp.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOllamaToolCall(toolCall, i),
		})
	}

	stopReason := "stop"
	if len(chatResp.Message.ToolCalls) > 0 {
		stopReason = "tool_use"
	}

	return &llm.Response{
		Content:    content,
		Usage:      usageOf(chatResp),
		StopReason: stopReason,
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *OllamaClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := buildChatRequest(req, true)
	if err != nil {
		return nil, err
	}
	return newOllamaStream(ctx, c.client, chatReq), nil
}

func usageOf(resp api.ChatResponse) *llm.Usage {
	return &llm.Usage{
		InputTokens:  int64(resp.PromptEvalCount),
		OutputTokens: int64(resp.EvalCount),
	}
}

func convertOllamaError(err error) error {
	if err == nil {
		return nil
	}
	if e := llm.TransportError(provider.Ollama, err); e != nil {
		return e
	}
	var e *llm.Error
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		e = llm.NewStatusError("Ollama error: "+statusErr.ErrorMessage, statusErr.StatusCode, err)
	} else {
		e = llm.NewNetworkError("Ollama could not be reached", err)
	}
	e.Provider = provider.Ollama
	return e
}
