package ollama

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// ollamaStream implements the llm.Stream interface for Ollama streaming responses.
type ollamaStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	client  *api.Client
	req     *api.ChatRequest
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
}

func newOllamaStream(ctx context.Context, client *api.Client, req *api.ChatRequest) *ollamaStream {
	ctx, cancel := context.WithCancel(ctx)
	stream := &ollamaStream{
		ctx:     ctx,
		cancel:  cancel,
		client:  client,
		req:     req,
		current: -1,
	}
	stream.cond = sync.NewCond(&stream.mu)
	return stream
}

// Next advances to the next event in the stream.
func (s *ollamaStream) Next() bool {
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
func (s *ollamaStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *ollamaStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the underlying request and releases resources.
func (s *ollamaStream) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	return nil
}

// emit appends an event. Callers hold s.mu.
func (s *ollamaStream) emit(event *llm.StreamEvent) {
	s.events = append(s.events, event)
	s.cond.Broadcast()
}

func (s *ollamaStream) startStream() {
	s.mu.Lock()
	s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
	s.mu.Unlock()

	toolCount := 0

	// Ollama sends incremental deltas, not cumulative content.
	err := s.client.Chat(s.ctx, s.req, func(resp api.ChatResponse) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if resp.Message.Thinking != "" {
			s.emit(llm.NewReasoningDelta(resp.Message.Thinking))
		}
		if resp.Message.Content != "" {
			s.emit(llm.NewTextDelta(resp.Message.Content))
		}

		// Tool calls arrive whole.
		for _, toolCall := range resp.Message.ToolCalls {
			tu := FromOllamaToolCall(toolCall, toolCount)
			toolCount++
			s.emit(&llm.StreamEvent{
				Type:  llm.StreamEventTypeContentBlock,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolUse, ToolUse: tu},
			})
			if argsBytes, err := json.Marshal(tu.Input); err == nil {
				s.emit(&llm.StreamEvent{
					Type:  llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: string(argsBytes)},
				})
			}
		}

		if resp.Done {
			usage := usageOf(resp)
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage})
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, Done: true})
			s.done = true
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.done {
		s.err = convertOllamaError(err)
	}
	s.done = true
	s.cond.Broadcast()
}
