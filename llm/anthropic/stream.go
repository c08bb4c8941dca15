package anthropic

import (
	"context"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// anthropicStream implements the llm.Stream interface for Anthropic streaming responses.
type anthropicStream struct {
	ctx     context.Context
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	client  *AnthropicClient
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
}

func newAnthropicStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], client *AnthropicClient) *anthropicStream {
	as := &anthropicStream{
		ctx:     ctx,
		stream:  stream,
		client:  client,
		current: -1,
	}
	as.cond = sync.NewCond(&as.mu)
	return as
}

// Next advances to the next event in the stream.
func (s *anthropicStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		go s.startStream()
	}

	s.current++
	for s.current >= len(s.events) && !s.done && s.err == nil {
		s.cond.Wait()
	}

	if s.err != nil {
		return false
	}
	return s.current < len(s.events)
}

// Event returns the current event.
func (s *anthropicStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *anthropicStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources.
func (s *anthropicStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

// emit appends an event. Callers hold s.mu.
func (s *anthropicStream) emit(event *llm.StreamEvent) {
	s.events = append(s.events, event)
	s.cond.Broadcast()
}

func (s *anthropicStream) startStream() {
	s.mu.Lock()
	s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
	s.mu.Unlock()

	var inTool bool
	var usage *llm.Usage

	for s.stream.Next() {
		event := s.stream.Current()

		s.mu.Lock()
		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage = &llm.Usage{
				InputTokens:              evt.Message.Usage.InputTokens,
				CacheCreationInputTokens: evt.Message.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     evt.Message.Usage.CacheReadInputTokens,
			}

		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				inTool = true
				s.emit(&llm.StreamEvent{
					Type: llm.StreamEventTypeContentBlock,
					Delta: &llm.StreamDelta{
						Type: llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{
							ID:    block.ID,
							Name:  block.Name,
							Input: make(map[string]interface{}),
						},
					},
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					s.emit(llm.NewTextDelta(d.Text))
				}
			case anthropic.ThinkingDelta:
				if d.Thinking != "" {
					s.emit(llm.NewReasoningDelta(d.Thinking))
				}
			case anthropic.InputJSONDelta:
				if inTool && d.PartialJSON != "" {
					s.emit(&llm.StreamEvent{
						Type: llm.StreamEventTypeContentDelta,
						Delta: &llm.StreamDelta{
							Type:      llm.StreamDeltaTypeToolInput,
							ToolInput: d.PartialJSON,
						},
					})
				}
			}

		case anthropic.ContentBlockStopEvent:
			inTool = false

		case anthropic.MessageDeltaEvent:
			if usage == nil {
				usage = &llm.Usage{}
			}
			usage.OutputTokens = evt.Usage.OutputTokens
			if evt.Usage.InputTokens > 0 {
				usage.InputTokens = evt.Usage.InputTokens
			}

		case anthropic.MessageStopEvent:
			s.client.logCacheStats(usage, "Prompt cache stats (stream)")
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage})
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, Done: true})
			s.done = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Err(); err != nil {
		s.err = convertAnthropicError(err)
	} else if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = llm.NewAbortedError(ctxErr)
	}
	s.done = true
	s.cond.Broadcast()
}
