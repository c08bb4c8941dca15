package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

const defaultRetryAfter = 30 * time.Second

// Options configure a GeminiClient.
type Options struct {
	// SearchGrounding attaches the Google Search tool to every request.
	SearchGrounding bool
	// CachedContent names a Gemini context cache to reuse.
	CachedContent string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// GeminiClient implements the llm.Client interface for the Gemini API.
type GeminiClient struct {
	client *genai.Client
	opts   Options
	logger zerolog.Logger
}

// NewGeminiClient creates a new GeminiClient for the Gemini developer API.
func NewGeminiClient(ctx context.Context, apiKey string, opts Options, logger zerolog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

func (c *GeminiClient) buildConfig(req *llm.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents, system := ToContents(req.Messages)
	if req.System != "" {
		system = append([]string{req.System}, system...)
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if len(req.Tools) > 0 {
		cfg.Tools = append(cfg.Tools, &genai.Tool{FunctionDeclarations: ToFunctionDeclarations(req.Tools)})
		cfg.ToolConfig = ToToolConfig(req.ToolChoice)
	}
	if c.opts.SearchGrounding {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if c.opts.CachedContent != "" {
		cfg.CachedContent = c.opts.CachedContent
	}
	if opts, ok := llm.GoogleOptionsFrom(req); ok && opts.Thinking != nil {
		tc := &genai.ThinkingConfig{IncludeThoughts: opts.Thinking.IncludeThoughts}
		if opts.Thinking.Budget != 0 {
			budget := opts.Thinking.Budget
			tc.ThinkingBudget = &budget
		}
		cfg.ThinkingConfig = tc
	}
	return contents, cfg
}

// Synchronous implements llm.Client.Synchronous.
func (c *GeminiClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	contents, cfg := c.buildConfig(req)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, convertGeminiError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, blockedError(resp)
	}

	candidate := resp.Candidates[0]
	var content []llm.ContentBlock
	if candidate.Content != nil {
		content = FromParts(candidate.Content.Parts)
	}
	if candidate.GroundingMetadata != nil {
		c.logger.Debug().Int("grounding_chunks", len(candidate.GroundingMetadata.GroundingChunks)).Msg("Search grounding used")
	}

	stopReason := strings.ToLower(string(candidate.FinishReason))
	if len(resp.FunctionCalls()) > 0 {
		stopReason = "tool_use"
	}

	return &llm.Response{
		Content:    content,
		Usage:      usageOf(resp),
		StopReason: stopReason,
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *GeminiClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	contents, cfg := c.buildConfig(req)
	seq := c.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)
	return newGeminiStream(ctx, seq), nil
}

// blockedError reports a response without candidates, which Gemini returns
// when the prompt itself is blocked.
func blockedError(resp *genai.GenerateContentResponse) error {
	reason := "no candidates"
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reason = string(resp.PromptFeedback.BlockReason)
	}
	return &llm.Error{
		Type:        llm.ErrorTypeContentPolicy,
		Message:     "Gemini blocked the request: " + reason,
		Provider:    provider.Google,
		Code:        "SAFETY_FILTER",
		ProviderErr: fmt.Errorf("prompt blocked: %s (SAFETY)", reason),
	}
}

// convertGeminiError converts Gemini API errors to llm.Error types.
func convertGeminiError(err error) error {
	if err == nil {
		return nil
	}
	if e := llm.TransportError(provider.Google, err); e != nil {
		return e
	}

	var e *llm.Error
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			retryAfter := defaultRetryAfter
			e = llm.NewRateLimitError("Gemini rate limit: "+apiErr.Message, &retryAfter, err)
		} else {
			e = llm.NewStatusError(fmt.Sprintf("Gemini API error (%d): %s", apiErr.Code, apiErr.Message), apiErr.Code, err)
		}
		e.Code = apiErr.Status
	} else {
		e = llm.NewProviderError("Gemini API error", err)
	}
	e.Provider = provider.Google
	return e
}
