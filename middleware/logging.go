package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/catalog"
	"github.com/aschepis/backscratcher/llmgate/llm"
)

// Logging records one structured entry per request and one per outcome.
// Message content is never logged.
type Logging struct {
	logger zerolog.Logger
	starts sync.Map // request id -> time.Time
}

var (
	_ llm.Middleware       = (*Logging)(nil)
	_ llm.StreamMiddleware = (*Logging)(nil)
	_ llm.StreamCloser     = (*Logging)(nil)
)

// NewLogging creates a Logging middleware for model.
func NewLogging(logger zerolog.Logger, model string) *Logging {
	ctx := logger.With().Str("component", "llm").Str("model", model)
	if m, ok := catalog.Lookup(model); ok {
		ctx = ctx.Str("provider", m.Provider.String())
	}
	return &Logging{logger: ctx.Logger()}
}

func (l *Logging) begin(req *llm.Request, stream bool) *llm.Request {
	if req.ID == "" {
		req = req.Clone()
		req.ID = uuid.NewString()
	}
	l.starts.Store(req.ID, time.Now())

	l.logger.Info().
		Str("request_id", req.ID).
		Bool("stream", stream).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Int64("max_tokens", req.MaxTokens).
		Bool("provider_options", req.Options != nil).
		Msg("LLM request")
	return req
}

func (l *Logging) elapsed(req *llm.Request) time.Duration {
	v, ok := l.starts.LoadAndDelete(req.ID)
	if !ok {
		return 0
	}
	return time.Since(v.(time.Time))
}

func logUsage(e *zerolog.Event, usage *llm.Usage) *zerolog.Event {
	if usage == nil {
		return e
	}
	return e.
		Int64("input_tokens", usage.InputTokens).
		Int64("output_tokens", usage.OutputTokens).
		Int64("reasoning_tokens", usage.ReasoningTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens)
}

// BeforeRequest implements llm.Middleware.
func (l *Logging) BeforeRequest(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return l.begin(req, false), nil
}

// AfterResponse implements llm.Middleware.
func (l *Logging) AfterResponse(_ context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	e := l.logger.Info().
		Str("request_id", req.ID).
		Dur("latency", l.elapsed(req))
	if resp != nil {
		e = logUsage(e, resp.Usage).
			Str("stop_reason", resp.StopReason).
			Int("tool_calls", len(resp.ToolUses()))
	}
	e.Msg("LLM response")
	return resp, nil
}

// OnError implements llm.Middleware.
func (l *Logging) OnError(_ context.Context, req *llm.Request, err error) error {
	l.logError(req, err)
	return err
}

func (l *Logging) logError(req *llm.Request, err error) {
	e := l.logger.Error().
		Str("request_id", req.ID).
		Dur("latency", l.elapsed(req)).
		Str("error_type", string(llm.ErrorTypeOf(err)))
	if llm.IsAborted(err) {
		e = l.logger.Info().Str("request_id", req.ID)
	}
	e.Err(err).Msg("LLM request failed")
}

// BeforeStream implements llm.StreamMiddleware.
func (l *Logging) BeforeStream(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return l.begin(req, true), nil
}

// OnStreamEvent implements llm.StreamMiddleware.
func (l *Logging) OnStreamEvent(_ context.Context, req *llm.Request, event *llm.StreamEvent) ([]*llm.StreamEvent, error) {
	if event.Type == llm.StreamEventTypeStop {
		logUsage(l.logger.Info().Str("request_id", req.ID).Dur("latency", l.elapsed(req)), event.Usage).
			Msg("LLM stream completed")
	}
	return []*llm.StreamEvent{event}, nil
}

// OnStreamError implements llm.StreamMiddleware.
func (l *Logging) OnStreamError(_ context.Context, req *llm.Request, err error) error {
	l.logError(req, err)
	return err
}

// OnStreamClose implements llm.StreamCloser.
func (l *Logging) OnStreamClose(_ context.Context, req *llm.Request) {
	if _, pending := l.starts.LoadAndDelete(req.ID); pending {
		l.logger.Debug().Str("request_id", req.ID).Msg("LLM stream closed early")
	}
}
