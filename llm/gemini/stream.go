package gemini

import (
	"context"
	"encoding/json"
	"iter"

	"google.golang.org/genai"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// geminiStream adapts the SDK's pull iterator to llm.Stream. Each chunk can
// expand to several events, which are buffered in pending.
type geminiStream struct {
	ctx     context.Context
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []*llm.StreamEvent
	current *llm.StreamEvent
	usage   *llm.Usage
	tools   int
	err     error
	started bool
	done    bool
}

func newGeminiStream(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{ctx: ctx, next: next, stop: stop}
}

// Next advances to the next event in the stream.
func (s *geminiStream) Next() bool {
	if !s.started {
		s.started = true
		s.pending = append(s.pending, &llm.StreamEvent{Type: llm.StreamEventTypeStart})
	}

	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			s.current = nil
			return false
		}
		s.recv()
	}

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *geminiStream) recv() {
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		s.pending = append(s.pending,
			&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: s.usage},
			&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: s.usage, Done: true},
		)
		return
	}
	if err != nil {
		if s.ctx.Err() != nil {
			s.err = llm.NewAbortedError(s.ctx.Err())
		} else {
			s.err = convertGeminiError(err)
		}
		return
	}
	if resp == nil {
		return
	}

	if u := usageOf(resp); u != nil {
		s.usage = u
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part == nil:
		case part.FunctionCall != nil:
			tu := FromFunctionCall(part.FunctionCall, s.tools)
			s.tools++
			s.pending = append(s.pending, &llm.StreamEvent{
				Type:  llm.StreamEventTypeContentBlock,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolUse, ToolUse: tu},
			})
			if args, err := json.Marshal(tu.Input); err == nil {
				s.pending = append(s.pending, &llm.StreamEvent{
					Type:  llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolInput, ToolInput: string(args)},
				})
			}
		case part.Thought:
			if part.Text != "" {
				s.pending = append(s.pending, llm.NewReasoningDelta(part.Text))
			}
		case part.Text != "":
			s.pending = append(s.pending, llm.NewTextDelta(part.Text))
		}
	}
}

// Event returns the current event.
func (s *geminiStream) Event() *llm.StreamEvent {
	return s.current
}

// Err returns any error that occurred during streaming.
func (s *geminiStream) Err() error {
	return s.err
}

// Close stops the underlying iterator.
func (s *geminiStream) Close() error {
	s.stop()
	s.done = true
	s.pending = nil
	return nil
}
