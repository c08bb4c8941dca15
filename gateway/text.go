package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/llmgate/catalog"
	"github.com/aschepis/backscratcher/llmgate/credentials"
	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/middleware"
	"github.com/aschepis/backscratcher/llmgate/provider"
	"github.com/aschepis/backscratcher/llmgate/providererrors"
	"github.com/aschepis/backscratcher/llmgate/quota"
	"github.com/aschepis/backscratcher/llmgate/reasoning"
)

// DefaultMaxSteps is the number of model round trips a tool loop may take.
const DefaultMaxSteps = 2

// Tier is the caller's subscription tier.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPlus Tier = "PLUS"
)

// Privileged reports whether the tier may use server-funded credentials and
// quota-tracked features.
func (t Tier) Privileged() bool {
	return t == TierPlus
}

// TextRequest describes one text generation.
type TextRequest struct {
	Prompt string
	Model  string

	// OnChunk receives every text fragment in order together with the text
	// so far. It is not called for callers that join an in-flight identical
	// request or are served from the result cache.
	OnChunk      func(chunk, full string)
	OnReasoning  func(chunk, full string)
	OnToolCall   func(call llm.ToolUseBlock)
	OnToolResult func(result llm.ToolResultBlock)

	// Messages is the conversation so far. When it has content Prompt
	// becomes the system prompt.
	Messages   []llm.Message
	Tools      []Tool
	ToolChoice llm.ToolChoice
	MaxSteps   int

	Credentials     credentials.Bag
	Thinking        reasoning.ThinkingMode
	Tier            Tier
	UserID          string
	Mode            string
	SearchGrounding bool

	MiddlewareConfig *middleware.Config
}

func (r TextRequest) withDefaults() TextRequest {
	if r.MaxSteps <= 0 {
		r.MaxSteps = DefaultMaxSteps
	}
	if r.ToolChoice == "" {
		r.ToolChoice = llm.ToolChoiceAuto
	}
	return r
}

// resultKey identifies requests whose results are interchangeable.
func resultKey(r TextRequest) (string, error) {
	specs := make([]llm.ToolSpec, len(r.Tools))
	for i, t := range r.Tools {
		specs[i] = t.Spec
	}
	data, err := json.Marshal(struct {
		Model      string         `json:"model"`
		Prompt     string         `json:"prompt"`
		Messages   []llm.Message  `json:"messages"`
		Tools      []llm.ToolSpec `json:"tools"`
		ToolChoice llm.ToolChoice `json:"tool_choice"`
		MaxSteps   int            `json:"max_steps"`
	}{r.Model, r.Prompt, r.Messages, specs, r.ToolChoice, r.MaxSteps})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "generateText:" + hex.EncodeToString(sum[:]), nil
}

// GenerateText runs req to completion and returns the concatenated text.
//
// Concurrent identical requests share one vendor call and completed results
// are reused for a while. Only the caller whose request reaches the vendor
// receives the callbacks.
func (g *Gateway) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	req = req.withDefaults()
	key, err := resultKey(req)
	if err != nil {
		return "", &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "request cannot be keyed", ProviderErr: err}
	}

	if text, ok := g.results.Get(key); ok {
		g.logger.Info().Str("model", req.Model).Msg("Returning cached generateText result")
		return text, nil
	}

	ch := g.inflight.DoChan(key, func() (any, error) {
		text, err := g.generate(ctx, req)
		if err != nil {
			return "", err
		}
		g.results.Add(key, text)
		return text, nil
	})

	select {
	case <-ctx.Done():
		return "", llm.NewAbortedError(ctx.Err())
	case res := <-ch:
		if res.Shared {
			g.logger.Debug().Str("model", req.Model).Msg("Joined in-flight generateText request")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Gateway) generate(ctx context.Context, req TextRequest) (string, error) {
	stream, err := g.StreamText(ctx, req)
	if err != nil {
		return "", err
	}

	var text, thoughts strings.Builder
	acc := llm.NewAccumulator()
	reported := make(map[string]bool)
	for ev, err := range llm.Events(stream) {
		if err != nil {
			g.logger.Error().Str("model", req.Model).Str("error_type", string(llm.ErrorTypeOf(err))).Msg("generateText failed")
			return "", err
		}
		acc.Add(ev)
		switch {
		case ev.IsText():
			text.WriteString(ev.Delta.Text)
			if req.OnChunk != nil {
				req.OnChunk(ev.Delta.Text, text.String())
			}
		case ev.IsReasoning():
			thoughts.WriteString(ev.Delta.Text)
			if req.OnReasoning != nil {
				req.OnReasoning(ev.Delta.Text, thoughts.String())
			}
		case ev.Delta != nil && ev.Delta.Type == llm.StreamDeltaTypeToolResult:
			for _, call := range acc.Response().ToolUses() {
				if !reported[call.ID] {
					reported[call.ID] = true
					if req.OnToolCall != nil {
						req.OnToolCall(call)
					}
				}
			}
			if req.OnToolResult != nil && ev.Delta.ToolResult != nil {
				req.OnToolResult(*ev.Delta.ToolResult)
			}
		}
	}
	return text.String(), nil
}

// StreamText starts req and returns its event stream: text, reasoning, tool
// calls and the results of tools run between steps. Errors are *llm.Error
// values, or *quota.ExceededError when the caller's quota is spent.
func (g *Gateway) StreamText(ctx context.Context, req TextRequest) (llm.Stream, error) {
	req = req.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, llm.NewAbortedError(err)
	}

	m, ok := catalog.Lookup(req.Model)
	if !ok {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: fmt.Sprintf("Model %s not found", req.Model)}
	}
	privileged := req.Tier.Privileged()

	bag := req.Credentials
	if m.Provider == provider.Google && privileged && !bag.Has(provider.Google) && g.resolver.HasServerCredential(provider.Google) {
		g.logger.Info().Str("model", m.ID).Msg("Privileged user without Gemini key, using server credential")
		bag = nil
	}

	g.logger.Info().
		Str("model", m.ID).
		Str("mode", req.Mode).
		Str("tier", string(req.Tier)).
		Bool("has_byok", bag.HasAny()).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Int("max_steps", req.MaxSteps).
		Msg("generateText called")

	plan := reasoning.Normalize(m.ID, req.Thinking)
	mw := plan.Middleware
	if mw == nil && plan.Protocol == catalog.ReasoningDeepSeek {
		// These models always think out loud.
		mw = reasoning.NewTagExtractor(catalog.ReasoningTagName(m.ID), reasoning.DefaultSeparator)
	}

	client, err := g.GetLanguageModel(ctx, m.ID, ModelRequest{
		Middleware:          mw,
		Credentials:         bag,
		SearchGrounding:     req.SearchGrounding,
		InterleavedThinking: plan.InterleavedThinking,
		Privileged:          privileged,
		MiddlewareConfig:    req.MiddlewareConfig,
	})
	if err != nil {
		return nil, err
	}

	if err := g.consumeQuota(ctx, req, bag); err != nil {
		return nil, err
	}

	llmReq := plan.Apply(buildRequest(m, req))
	return newLoopStream(ctx, client, llmReq, req.Tools, req.MaxSteps, m.Provider, g.logger), nil
}

func (g *Gateway) consumeQuota(ctx context.Context, req TextRequest, bag credentials.Bag) error {
	if g.quota == nil || req.UserID == "" || !req.Tier.Privileged() || bag.HasAny() {
		return nil
	}
	feature, ok := quota.FeatureForMode(req.Mode)
	if !ok {
		return nil
	}
	if err := g.quota.Consume(ctx, req.UserID, feature, 1); err != nil {
		if quota.IsExceeded(err) {
			return err
		}
		return providererrors.Translate(fmt.Errorf("consume quota: %w", err), provider.Unknown)
	}
	return nil
}

// buildRequest turns req into a vendor request. Messages without content are
// dropped.
func buildRequest(m catalog.Model, req TextRequest) *llm.Request {
	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if !msg.IsEmpty() {
			messages = append(messages, msg)
		}
	}

	out := &llm.Request{
		Model:      m.ID,
		MaxTokens:  m.MaxOutputTokens,
		ToolChoice: req.ToolChoice,
	}
	if len(messages) > 0 {
		out.System = req.Prompt
		out.Messages = messages
	} else {
		out.Messages = []llm.Message{llm.NewTextMessage(llm.RoleUser, req.Prompt)}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, t.Spec)
	}
	if len(out.Tools) == 0 {
		out.ToolChoice = ""
	}
	return out
}
