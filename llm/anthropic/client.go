package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

const (
	// DefaultMaxTokens is used when a request does not set MaxTokens.
	DefaultMaxTokens = 4096

	// InterleavedThinkingBeta is the beta flag enabling thinking between tool calls.
	InterleavedThinkingBeta = "interleaved-thinking-2025-05-14"

	defaultRetryAfter = 60 * time.Second
	statusOverloaded  = 529
)

// Options configure an AnthropicClient.
type Options struct {
	InterleavedThinking bool
	BaseURL             string // Overrides the API endpoint, mainly for tests
}

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
func NewAnthropicClient(apiKey string, opts Options, logger zerolog.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHeader("anthropic-dangerous-direct-browser-access", "true"),
	}
	if opts.InterleavedThinking {
		reqOpts = append(reqOpts, option.WithHeader("anthropic-beta", InterleavedThinkingBeta))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(reqOpts...)
	return &AnthropicClient{
		client: &client,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	message, err := c.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	c.logCacheStats(usage, "Prompt cache stats")

	return &llm.Response{
		Content:    FromContentBlocks(message.Content),
		Usage:      usage,
		StopReason: string(message.StopReason),
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *AnthropicClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	stream := c.client.Messages.NewStreaming(ctx, buildParams(req))
	return newAnthropicStream(ctx, stream, c), nil
}

func buildParams(req *llm.Request) anthropic.MessageNewParams {
	msgs, system := ToMessageParams(req.Messages)
	if req.System != "" {
		system = append([]string{req.System}, system...)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = buildSystemBlocks(strings.Join(system, "\n\n"))
	}
	if len(req.Tools) > 0 {
		params.Tools = ToToolUnionParams(req.Tools)
		if choice, ok := ToToolChoice(req.ToolChoice); ok {
			params.ToolChoice = choice
		}
	}
	if opts, ok := llm.AnthropicOptionsFrom(req); ok && opts.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(opts.ThinkingBudget)
		// max_tokens must leave room for the answer after the thinking budget.
		if params.MaxTokens <= opts.ThinkingBudget {
			params.MaxTokens = opts.ThinkingBudget + DefaultMaxTokens
		}
		// Extended thinking rejects temperature overrides.
		return params
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

// buildSystemBlocks creates the system text block with prompt caching enabled.
// cache_control on the system block caches tools and system together.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

func (c *AnthropicClient) logCacheStats(usage *llm.Usage, msg string) {
	if usage == nil || (usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0) {
		return
	}
	cacheEfficiency := float64(0)
	if usage.InputTokens > 0 {
		cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
	}
	c.logger.Debug().
		Int64("input_tokens", usage.InputTokens).
		Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens).
		Float64("cache_efficiency", cacheEfficiency).
		Msg(msg)
}

// convertAnthropicError converts Anthropic API errors to llm.Error types.
func convertAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	if e := llm.TransportError(provider.Anthropic, err); e != nil {
		return e
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		e := llm.NewProviderError("Anthropic API error", err)
		e.Provider = provider.Anthropic
		return e
	}

	var e *llm.Error
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		e = llm.NewRateLimitError("Anthropic rate limit", &retryAfter, err)
	case statusOverloaded:
		e = &llm.Error{
			Type:        llm.ErrorTypeModelUnavailable,
			Message:     "Anthropic is overloaded",
			Retryable:   true,
			StatusCode:  apiErr.StatusCode,
			ProviderErr: err,
		}
	default:
		e = llm.NewStatusError(fmt.Sprintf("Anthropic API error (%d)", apiErr.StatusCode), apiErr.StatusCode, err)
	}
	e.Provider = provider.Anthropic
	return e
}
