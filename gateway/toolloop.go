package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/provider"
	"github.com/aschepis/backscratcher/llmgate/providererrors"
)

// Tool is a tool the model may call during GenerateText or StreamText.
type Tool struct {
	Spec llm.ToolSpec
	// Execute runs the tool. Its result is sent back to the model; an error
	// is sent back as a failed tool result.
	Execute func(ctx context.Context, input map[string]any) (string, error)
}

// loopStream runs up to maxSteps model round trips. Tool calls of a step are
// executed once the step stops and their results are emitted as tool result
// events; the next step sees them as messages. Stop events of intermediate
// steps are not emitted.
type loopStream struct {
	ctx      context.Context
	client   llm.Client
	req      *llm.Request
	tools    map[string]Tool
	maxSteps int
	provider provider.Provider
	logger   zerolog.Logger

	step    int
	current llm.Stream
	acc     *llm.Accumulator
	pending []*llm.StreamEvent
	event   *llm.StreamEvent
	err     error
	done    bool
}

func newLoopStream(ctx context.Context, client llm.Client, req *llm.Request, tools []Tool, maxSteps int, p provider.Provider, logger zerolog.Logger) *loopStream {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Spec.Name] = t
	}
	return &loopStream{
		ctx:      ctx,
		client:   client,
		req:      req,
		tools:    byName,
		maxSteps: maxSteps,
		provider: p,
		logger:   logger,
	}
}

var _ llm.Stream = (*loopStream)(nil)

func (s *loopStream) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.event, s.pending = s.pending[0], s.pending[1:]
			return true
		}
		if s.done || s.err != nil {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.fail(llm.NewAbortedError(err))
			return false
		}

		if s.current == nil {
			stream, err := s.client.Stream(s.ctx, s.req)
			if err != nil {
				s.fail(err)
				return false
			}
			s.current = stream
			s.acc = llm.NewAccumulator()
		}

		if s.current.Next() {
			ev := s.current.Event()
			s.acc.Add(ev)
			if ev.Type != llm.StreamEventTypeStop {
				s.event = ev
				return true
			}
			if !s.endStep() {
				s.pending = append(s.pending, ev)
			}
			continue
		}

		if err := s.current.Err(); err != nil {
			s.closeCurrent()
			s.fail(err)
			return false
		}
		// The vendor stream ended without a stop event.
		if !s.endStep() {
			s.pending = append(s.pending, &llm.StreamEvent{Type: llm.StreamEventTypeStop, Done: true})
		}
	}
}

// endStep finishes the current step. It runs the step's tool calls, queues
// their results and reports whether another step follows.
func (s *loopStream) endStep() bool {
	resp := s.acc.Response()
	calls := resp.ToolUses()
	s.step++

	if len(calls) == 0 {
		s.closeCurrent()
		s.done = true
		return false
	}

	results := make([]llm.ToolResultBlock, 0, len(calls))
	for _, call := range calls {
		res := s.execute(call)
		results = append(results, res)
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:  llm.StreamEventTypeContentBlock,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolResult, ToolResult: &res},
		})
	}

	if s.step >= s.maxSteps {
		s.closeCurrent()
		s.done = true
		return false
	}

	next := s.req.Clone()
	next.Messages = append(next.Messages, assistantMessage(resp), llm.NewToolResultMessage(results))
	s.req = next
	s.closeCurrent()
	s.logger.Debug().Int("step", s.step).Int("tool_calls", len(calls)).Msg("Continuing tool loop")
	return true
}

func (s *loopStream) execute(call llm.ToolUseBlock) llm.ToolResultBlock {
	tool, ok := s.tools[call.Name]
	if !ok || tool.Execute == nil {
		return llm.ToolResultBlock{ID: call.ID, Content: fmt.Sprintf("tool %q is not available", call.Name), IsError: true}
	}

	out, err := tool.Execute(s.ctx, call.Input)
	if err != nil {
		s.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool execution failed")
		return llm.ToolResultBlock{ID: call.ID, Content: err.Error(), IsError: true}
	}
	return llm.ToolResultBlock{ID: call.ID, Content: out}
}

// assistantMessage replays a step's text and tool calls. Reasoning is not
// sent back.
func assistantMessage(resp *llm.Response) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	for _, block := range resp.Content {
		if block.Type == llm.ContentBlockTypeText || block.Type == llm.ContentBlockTypeToolUse {
			msg.Content = append(msg.Content, block)
		}
	}
	return msg
}

func (s *loopStream) fail(err error) {
	s.err = providererrors.Translate(err, s.provider)
}

func (s *loopStream) closeCurrent() {
	if s.current != nil {
		_ = s.current.Close()
		s.current = nil
	}
}

func (s *loopStream) Event() *llm.StreamEvent {
	return s.event
}

func (s *loopStream) Err() error {
	return s.err
}

func (s *loopStream) Close() error {
	s.done = true
	s.pending = nil
	s.closeCurrent()
	return nil
}
