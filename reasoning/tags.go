package reasoning

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// TagExtractor moves text wrapped in <tag>...</tag> out of the answer and into
// the reasoning channel. It works on synchronous responses and on streams,
// where a delimiter may be split across any number of chunks.
type TagExtractor struct {
	open      string
	close     string
	separator string
	pattern   *regexp.Regexp

	streams sync.Map // *llm.Request -> *tagState
}

var (
	_ llm.Middleware       = (*TagExtractor)(nil)
	_ llm.StreamMiddleware = (*TagExtractor)(nil)
	_ llm.StreamCloser     = (*TagExtractor)(nil)
)

// NewTagExtractor creates a TagExtractor for tag. Segments taken from
// different places in the text are joined with separator.
func NewTagExtractor(tag, separator string) *TagExtractor {
	open, closeTag := "<"+tag+">", "</"+tag+">"
	return &TagExtractor{
		open:      open,
		close:     closeTag,
		separator: separator,
		pattern:   regexp.MustCompile(regexp.QuoteMeta(open) + `(?s)(.*?)` + regexp.QuoteMeta(closeTag)),
	}
}

// Split separates text into its reasoning and answer parts.
func (t *TagExtractor) Split(text string) (reasoning, answer string) {
	matches := t.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", text
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, text[m[2]:m[3]])
	}
	reasoning = strings.Join(parts, t.separator)

	answer = text
	for i := len(matches) - 1; i >= 0; i-- {
		before, after := answer[:matches[i][0]], answer[matches[i][1]:]
		sep := ""
		if before != "" && after != "" {
			sep = t.separator
		}
		answer = before + sep + after
	}
	return reasoning, answer
}

// BeforeRequest implements llm.Middleware.
func (t *TagExtractor) BeforeRequest(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return req, nil
}

// AfterResponse implements llm.Middleware.
func (t *TagExtractor) AfterResponse(_ context.Context, _ *llm.Request, resp *llm.Response) (*llm.Response, error) {
	if resp == nil {
		return resp, nil
	}

	var reasoning []string
	content := make([]llm.ContentBlock, 0, len(resp.Content)+1)
	for _, block := range resp.Content {
		if block.Type != llm.ContentBlockTypeText {
			content = append(content, block)
			continue
		}
		r, answer := t.Split(block.Text)
		if r != "" {
			reasoning = append(reasoning, r)
		}
		block.Text = answer
		content = append(content, block)
	}
	if len(reasoning) == 0 {
		return resp, nil
	}

	out := *resp
	out.Content = append([]llm.ContentBlock{{
		Type: llm.ContentBlockTypeReasoning,
		Text: strings.Join(reasoning, t.separator),
	}}, content...)
	return &out, nil
}

// OnError implements llm.Middleware.
func (t *TagExtractor) OnError(_ context.Context, _ *llm.Request, err error) error {
	return err
}

// BeforeStream implements llm.StreamMiddleware.
func (t *TagExtractor) BeforeStream(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return req, nil
}

// OnStreamEvent implements llm.StreamMiddleware.
func (t *TagExtractor) OnStreamEvent(_ context.Context, req *llm.Request, event *llm.StreamEvent) ([]*llm.StreamEvent, error) {
	v, _ := t.streams.LoadOrStore(req, &tagState{extractor: t, firstText: true, firstReasoning: true})
	st := v.(*tagState)

	switch {
	case event.IsText():
		return st.feed(event.Delta.Text), nil
	case event.Type == llm.StreamEventTypeMessageDelta || event.Type == llm.StreamEventTypeStop:
		return append(st.flush(), event), nil
	default:
		return []*llm.StreamEvent{event}, nil
	}
}

// OnStreamError implements llm.StreamMiddleware.
func (t *TagExtractor) OnStreamError(_ context.Context, _ *llm.Request, err error) error {
	return err
}

// OnStreamClose implements llm.StreamCloser.
func (t *TagExtractor) OnStreamClose(_ context.Context, req *llm.Request) {
	t.streams.Delete(req)
}

// tagState is the per-stream scanner state.
type tagState struct {
	extractor      *TagExtractor
	buffer         string
	reasoning      bool
	afterSwitch    bool
	firstText      bool
	firstReasoning bool
}

func (s *tagState) feed(delta string) []*llm.StreamEvent {
	s.buffer += delta

	var out []*llm.StreamEvent
	for {
		next := s.extractor.open
		if s.reasoning {
			next = s.extractor.close
		}

		idx, ok := potentialStart(s.buffer, next)
		if !ok {
			out = s.publish(out, s.buffer)
			s.buffer = ""
			return out
		}

		out = s.publish(out, s.buffer[:idx])
		if idx+len(next) > len(s.buffer) {
			// Partial delimiter at the end of the buffer: wait for more.
			s.buffer = s.buffer[idx:]
			return out
		}
		s.buffer = s.buffer[idx+len(next):]
		s.reasoning = !s.reasoning
		s.afterSwitch = true
	}
}

// flush releases a held-back partial delimiter as plain content.
func (s *tagState) flush() []*llm.StreamEvent {
	out := s.publish(nil, s.buffer)
	s.buffer = ""
	return out
}

func (s *tagState) publish(out []*llm.StreamEvent, text string) []*llm.StreamEvent {
	if text == "" {
		return out
	}

	prefix := ""
	if s.afterSwitch {
		if (s.reasoning && !s.firstReasoning) || (!s.reasoning && !s.firstText) {
			prefix = s.extractor.separator
		}
	}
	s.afterSwitch = false

	if s.reasoning {
		s.firstReasoning = false
		return append(out, llm.NewReasoningDelta(prefix+text))
	}
	s.firstText = false
	return append(out, llm.NewTextDelta(prefix+text))
}

// potentialStart returns the index at which needle starts in text, or where a
// suffix of text could be the beginning of needle.
func potentialStart(text, needle string) (int, bool) {
	if text == "" {
		return 0, false
	}
	if idx := strings.Index(text, needle); idx >= 0 {
		return idx, true
	}
	for i := len(text) - 1; i >= 0; i-- {
		if strings.HasPrefix(needle, text[i:]) {
			return i, true
		}
	}
	return 0, false
}
