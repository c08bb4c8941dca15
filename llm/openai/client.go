package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

// OpenAI API errors don't directly expose retry-after headers
// We'll use a default retry after duration for rate limits
const defaultRetryAfter = 60 * time.Second

// OpenAIClient implements the llm.Client interface for OpenAI's chat
// completions API and every vendor speaking the same protocol.
type OpenAIClient struct {
	client   *openai.Client
	provider provider.Provider
	logger   zerolog.Logger
}

// NewOpenAIClient creates a new OpenAIClient for provider p.
// If baseURL is empty, the default OpenAI API endpoint is used. The API key
// may be empty only for local providers.
func NewOpenAIClient(p provider.Provider, apiKey, baseURL string, logger zerolog.Logger) (*OpenAIClient, error) {
	if apiKey == "" && !p.IsLocal() {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(config),
		provider: p,
		logger:   logger.With().Str("component", "openai").Str("provider", p.String()).Logger(),
	}, nil
}

func (c *OpenAIClient) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	if req.Model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("model is required")
	}

	msgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	if req.System != "" {
		systemMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}
		msgs = append([]openai.ChatCompletionMessage{systemMsg}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		choice := req.ToolChoice
		if choice == "" {
			choice = llm.ToolChoiceAuto
		}
		chatReq.ToolChoice = string(choice)
	}

	if req.MaxTokens > 0 {
		// OpenAI's reasoning models only accept max_completion_tokens.
		if c.provider == provider.OpenAI {
			chatReq.MaxCompletionTokens = int(req.MaxTokens)
		} else {
			chatReq.MaxTokens = int(req.MaxTokens)
		}
	}

	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	return chatReq, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0)

	if choice.Message.ReasoningContent != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeReasoning,
			Text: choice.Message.ReasoningContent,
		})
	}
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	usage := &llm.Usage{
		InputTokens:  int64(chatResp.Usage.PromptTokens),
		OutputTokens: int64(chatResp.Usage.CompletionTokens),
	}
	if d := chatResp.Usage.CompletionTokensDetails; d != nil {
		usage.ReasoningTokens = int64(d.ReasoningTokens)
	}

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: stopReason(choice.FinishReason),
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *OpenAIClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true
	if c.provider != provider.LMStudio {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	return newOpenAIStream(ctx, stream, c), nil
}

func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonToolCalls:
		return "tool_calls"
	case openai.FinishReasonContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

// convertError converts OpenAI API errors to llm.Error types.
func (c *OpenAIClient) convertError(err error) error {
	if err == nil {
		return nil
	}
	if e := llm.TransportError(c.provider, err); e != nil {
		return e
	}

	name := c.provider.DisplayName()
	var e *llm.Error

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			retryAfter := defaultRetryAfter
			e = llm.NewRateLimitError(fmt.Sprintf("%s rate limit: %s", name, apiErr.Message), &retryAfter, err)
		} else {
			e = llm.NewStatusError(fmt.Sprintf("%s API error: %s", name, apiErr.Message), apiErr.HTTPStatusCode, err)
		}
		if code, ok := apiErr.Code.(string); ok {
			e.Code = code
		}
	case errors.As(err, &reqErr):
		e = llm.NewStatusError(fmt.Sprintf("%s request failed (%d)", name, reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, err)
	default:
		e = llm.NewProviderError(fmt.Sprintf("%s API error", name), err)
	}
	e.Provider = c.provider
	return e
}
