package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// openaiStream implements the llm.Stream interface for OpenAI streaming responses.
// Chunks are read from the wire as Next is called.
type openaiStream struct {
	ctx     context.Context
	stream  *openai.ChatCompletionStream
	client  *OpenAIClient
	pending []*llm.StreamEvent
	event   *llm.StreamEvent
	mu      sync.Mutex
	err     error
	done    bool
	started bool

	// tool call index -> id, for providers that only send the id once
	toolIDs map[int]string
	usage   *llm.Usage
}

func newOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, client *OpenAIClient) *openaiStream {
	return &openaiStream{
		ctx:     ctx,
		stream:  stream,
		client:  client,
		toolIDs: make(map[int]string),
	}
}

// Next advances to the next event in the stream.
func (s *openaiStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.pending = append(s.pending, &llm.StreamEvent{Type: llm.StreamEventTypeStart})
	}

	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			return false
		}
		s.recv()
	}

	s.event = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// recv reads one chunk and queues the events it produces. Callers hold s.mu.
func (s *openaiStream) recv() {
	response, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.pending = append(s.pending,
			&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: s.usage},
			&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: s.usage, Done: true},
		)
		s.done = true
		return
	}
	if err != nil {
		s.err = s.client.convertError(err)
		return
	}

	if response.Usage != nil {
		s.usage = &llm.Usage{
			InputTokens:  int64(response.Usage.PromptTokens),
			OutputTokens: int64(response.Usage.CompletionTokens),
		}
		if d := response.Usage.CompletionTokensDetails; d != nil {
			s.usage.ReasoningTokens = int64(d.ReasoningTokens)
		}
	}

	if len(response.Choices) == 0 {
		return
	}
	delta := response.Choices[0].Delta

	if delta.ReasoningContent != "" {
		s.pending = append(s.pending, llm.NewReasoningDelta(delta.ReasoningContent))
	}
	if delta.Content != "" {
		s.pending = append(s.pending, llm.NewTextDelta(delta.Content))
	}

	for _, toolCallDelta := range delta.ToolCalls {
		index := 0
		if toolCallDelta.Index != nil {
			index = *toolCallDelta.Index
		}
		if toolCallDelta.ID != "" && s.toolIDs[index] != toolCallDelta.ID {
			s.toolIDs[index] = toolCallDelta.ID
			s.pending = append(s.pending, &llm.StreamEvent{
				Type: llm.StreamEventTypeContentBlock,
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeToolUse,
					ToolUse: &llm.ToolUseBlock{
						ID:    toolCallDelta.ID,
						Name:  toolCallDelta.Function.Name,
						Input: make(map[string]interface{}),
					},
				},
			})
		}
		if toolCallDelta.Function.Arguments != "" {
			s.pending = append(s.pending, &llm.StreamEvent{
				Type: llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{
					Type:      llm.StreamDeltaTypeToolInput,
					ToolInput: toolCallDelta.Function.Arguments,
				},
			})
		}
	}
}

// Event returns the current event.
func (s *openaiStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *openaiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources.
func (s *openaiStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}
