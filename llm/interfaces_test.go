package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeClient struct {
	resp   *Response
	events []*StreamEvent
	err    error
	calls  int
}

func (f *fakeClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return NewReplayStream(f.events), nil
}

func suffixMiddleware(suffix string) Middleware {
	return StreamMiddlewareFunc{
		MiddlewareFunc: MiddlewareFunc{
			AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
				out := *resp
				out.Content = []ContentBlock{{Type: ContentBlockTypeText, Text: resp.Text() + suffix}}
				return &out, nil
			},
		},
		OnStreamEventFunc: func(ctx context.Context, req *Request, event *StreamEvent) ([]*StreamEvent, error) {
			if event.IsText() {
				event.Delta.Text += suffix
			}
			return []*StreamEvent{event}, nil
		},
	}
}

func TestWrapWithMiddlewareNoMiddleware(t *testing.T) {
	base := &fakeClient{}
	if WrapWithMiddleware(base) != Client(base) {
		t.Error("expected the base client when no middleware is given")
	}
	if WrapWithMiddleware(base, nil) != Client(base) {
		t.Error("nil middleware should be skipped")
	}
}

func TestResponseHooksRunInListOrder(t *testing.T) {
	base := &fakeClient{resp: &Response{Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "x"}}}}
	client := WrapWithMiddleware(base, suffixMiddleware("1"), suffixMiddleware("2"))

	resp, err := client.Synchronous(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if resp.Text() != "x12" {
		t.Errorf("got %q, want x12", resp.Text())
	}

	base.events = []*StreamEvent{NewTextDelta("y"), {Type: StreamEventTypeStop, Done: true}}
	stream, err := client.Stream(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var sb strings.Builder
	for ev, err := range Events(stream) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if ev.IsText() {
			sb.WriteString(ev.Delta.Text)
		}
	}
	if sb.String() != "y12" {
		t.Errorf("got %q, want y12", sb.String())
	}
}

func TestOnErrorNilKeepsCurrentError(t *testing.T) {
	vendorErr := errors.New("vendor down")
	wrapped := NewProviderError("translated", vendorErr)
	base := &fakeClient{err: vendorErr}
	client := WrapWithMiddleware(base,
		MiddlewareFunc{OnErrorFunc: func(ctx context.Context, req *Request, err error) error { return wrapped }},
		MiddlewareFunc{OnErrorFunc: func(ctx context.Context, req *Request, err error) error { return nil }},
	)
	_, err := client.Synchronous(context.Background(), &Request{})
	if err != wrapped {
		t.Errorf("got %v, want translated error", err)
	}
}

type staticResponder struct {
	MiddlewareFunc
	resp   *Response
	events []*StreamEvent
}

func (s staticResponder) BeforeStream(ctx context.Context, req *Request) (*Request, error) {
	return req, nil
}

func (s staticResponder) OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) ([]*StreamEvent, error) {
	return []*StreamEvent{event}, nil
}

func (s staticResponder) OnStreamError(ctx context.Context, req *Request, err error) error {
	return err
}

func (s staticResponder) Respond(ctx context.Context, req *Request) (*Response, bool) {
	return s.resp, s.resp != nil
}

func (s staticResponder) RespondStream(ctx context.Context, req *Request) ([]*StreamEvent, bool) {
	return s.events, s.events != nil
}

func TestResponderShortCircuitStillRunsHooks(t *testing.T) {
	base := &fakeClient{}
	responder := staticResponder{
		resp:   &Response{Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "cached"}}},
		events: []*StreamEvent{NewTextDelta("cached"), {Type: StreamEventTypeStop}},
	}
	client := WrapWithMiddleware(base, responder, suffixMiddleware("!"))

	resp, err := client.Synchronous(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if resp.Text() != "cached!" {
		t.Errorf("got %q", resp.Text())
	}

	stream, err := client.Stream(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	acc := NewAccumulator()
	for ev, err := range Events(stream) {
		if err != nil {
			t.Fatal(err)
		}
		acc.Add(ev)
	}
	if acc.Response().Text() != "cached!" {
		t.Errorf("got %q", acc.Response().Text())
	}
	if base.calls != 0 {
		t.Errorf("base client called %d times", base.calls)
	}
	if responder.events[0].Delta.Text != "cached" {
		t.Error("replay must not mutate stored events")
	}
}

func TestStreamHoldBackAndFlush(t *testing.T) {
	var held []string
	holder := StreamMiddlewareFunc{
		OnStreamEventFunc: func(ctx context.Context, req *Request, event *StreamEvent) ([]*StreamEvent, error) {
			if event.IsText() {
				held = append(held, event.Delta.Text)
				return nil, nil
			}
			if event.Type == StreamEventTypeStop {
				return []*StreamEvent{NewTextDelta(strings.Join(held, "")), event}, nil
			}
			return []*StreamEvent{event}, nil
		},
	}
	base := &fakeClient{events: []*StreamEvent{
		{Type: StreamEventTypeStart},
		NewTextDelta("a"),
		NewTextDelta("b"),
		{Type: StreamEventTypeStop, Done: true},
	}}
	stream, err := WrapWithMiddleware(base, holder).Stream(context.Background(), &Request{})
	if err != nil {
		t.Fatal(err)
	}
	var types []StreamEventType
	var text string
	for ev, err := range Events(stream) {
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, ev.Type)
		if ev.IsText() {
			text += ev.Delta.Text
		}
	}
	if text != "ab" {
		t.Errorf("text = %q", text)
	}
	if len(types) != 3 || types[2] != StreamEventTypeStop {
		t.Errorf("types = %v", types)
	}
}

func TestAccumulatorToolInput(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(&StreamEvent{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "t1", Name: "search"}}})
	acc.Add(&StreamEvent{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `{"q":`}})
	acc.Add(&StreamEvent{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `"go"}`}})
	acc.Add(NewReasoningDelta("hmm"))
	acc.Add(&StreamEvent{Type: StreamEventTypeStop})

	resp := acc.Response()
	uses := resp.ToolUses()
	if len(uses) != 1 || uses[0].Input["q"] != "go" {
		t.Fatalf("tool uses = %+v", uses)
	}
	if resp.Reasoning() != "hmm" || resp.StopReason != "tool_use" || !acc.Stopped() {
		t.Errorf("unexpected response %+v", resp)
	}
}
