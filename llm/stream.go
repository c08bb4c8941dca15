package llm

import (
	"encoding/json"
	"iter"
	"strings"
)

// replayStream serves a fixed list of events, used for cached responses.
type replayStream struct {
	events []*StreamEvent
	idx    int
	event  *StreamEvent
}

// NewReplayStream returns a Stream yielding copies of events in order.
func NewReplayStream(events []*StreamEvent) Stream {
	return &replayStream{events: events}
}

func (s *replayStream) Next() bool {
	if s.idx >= len(s.events) {
		return false
	}
	s.event = s.events[s.idx].Clone()
	s.idx++
	return true
}

func (s *replayStream) Event() *StreamEvent { return s.event }
func (s *replayStream) Err() error          { return nil }
func (s *replayStream) Close() error        { return nil }

// Events adapts a Stream to a range-over-func iterator. The stream is closed
// when iteration ends. A terminal stream error is yielded with a nil event.
func Events(s Stream) iter.Seq2[*StreamEvent, error] {
	return func(yield func(*StreamEvent, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Event(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Accumulator folds stream events into a Response.
type Accumulator struct {
	text       strings.Builder
	reasoning  strings.Builder
	toolOrder  []string
	toolUses   map[string]*ToolUseBlock
	toolInputs map[string]*strings.Builder
	currentID  string
	usage      *Usage
	stopped    bool
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		toolUses:   make(map[string]*ToolUseBlock),
		toolInputs: make(map[string]*strings.Builder),
	}
}

// Add records one event.
func (a *Accumulator) Add(event *StreamEvent) {
	if event == nil {
		return
	}
	if event.Usage != nil {
		u := *event.Usage
		a.usage = &u
	}
	switch event.Type {
	case StreamEventTypeContentDelta, StreamEventTypeContentBlock:
		if event.Delta == nil {
			return
		}
		switch event.Delta.Type {
		case StreamDeltaTypeText:
			a.text.WriteString(event.Delta.Text)
		case StreamDeltaTypeReasoning:
			a.reasoning.WriteString(event.Delta.Text)
		case StreamDeltaTypeToolUse:
			if tu := event.Delta.ToolUse; tu != nil {
				if _, ok := a.toolUses[tu.ID]; !ok {
					toolCopy := *tu
					a.toolUses[tu.ID] = &toolCopy
					a.toolInputs[tu.ID] = &strings.Builder{}
					a.toolOrder = append(a.toolOrder, tu.ID)
				}
				a.currentID = tu.ID
			}
		case StreamDeltaTypeToolInput:
			if b, ok := a.toolInputs[a.currentID]; ok {
				b.WriteString(event.Delta.ToolInput)
			}
		}
	case StreamEventTypeStop:
		a.stopped = true
	}
}

// Stopped reports whether a Stop event has been seen.
func (a *Accumulator) Stopped() bool {
	return a.stopped
}

// Response returns the accumulated response. Tool inputs that are not valid
// JSON objects keep whatever input the tool use block started with.
func (a *Accumulator) Response() *Response {
	resp := &Response{Usage: a.usage, StopReason: "end_turn"}
	if a.reasoning.Len() > 0 {
		resp.Content = append(resp.Content, ContentBlock{Type: ContentBlockTypeReasoning, Text: a.reasoning.String()})
	}
	if a.text.Len() > 0 {
		resp.Content = append(resp.Content, ContentBlock{Type: ContentBlockTypeText, Text: a.text.String()})
	}
	for _, id := range a.toolOrder {
		tu := a.toolUses[id]
		if b := a.toolInputs[id]; b.Len() > 0 {
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(b.String()), &input); err == nil {
				tu.Input = input
			}
		}
		if tu.Input == nil {
			tu.Input = map[string]interface{}{}
		}
		resp.Content = append(resp.Content, ContentBlock{Type: ContentBlockTypeToolUse, ToolUse: tu})
	}
	if len(a.toolOrder) > 0 {
		resp.StopReason = "tool_use"
	}
	return resp
}
