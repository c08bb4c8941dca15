package middleware

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// Rule replaces every match of Pattern with a typed placeholder.
type Rule struct {
	Kind    string
	Pattern *regexp.Regexp
}

// Placeholder returns the replacement text for matches of the rule.
func (r Rule) Placeholder() string {
	return "[REDACTED: " + r.Kind + "]"
}

// DefaultRules are applied in order. The numeric rules run before the looser
// phone rule so a long digit run is not tagged as a phone number.
var DefaultRules = []Rule{
	{Kind: "SSN", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{Kind: "CREDIT_CARD", Pattern: regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`)},
	{Kind: "EMAIL", Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{Kind: "PHONE", Pattern: regexp.MustCompile(`(?:\+?\d{1,2}[ .-]?)?(?:\(\d{3}\)|\b\d{3})[ .-]?\d{3}[ .-]?\d{4}\b`)},
}

// DefaultHoldback is how many trailing characters of streamed text are kept
// back so a pattern split across chunks can still be matched.
const DefaultHoldback = 32

// Guardrails redacts personal data from responses.
type Guardrails struct {
	rules    []Rule
	holdback int

	streams sync.Map // *llm.Request -> *redactState
}

var (
	_ llm.Middleware       = (*Guardrails)(nil)
	_ llm.StreamMiddleware = (*Guardrails)(nil)
	_ llm.StreamCloser     = (*Guardrails)(nil)
)

// NewGuardrails creates a Guardrails middleware using DefaultRules.
func NewGuardrails() *Guardrails {
	return &Guardrails{rules: DefaultRules, holdback: DefaultHoldback}
}

// Redact applies the rules to text in order.
func (g *Guardrails) Redact(text string) string {
	for _, rule := range g.rules {
		text = rule.Pattern.ReplaceAllLiteralString(text, rule.Placeholder())
	}
	return text
}

// BeforeRequest implements llm.Middleware.
func (g *Guardrails) BeforeRequest(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return req, nil
}

// AfterResponse implements llm.Middleware.
func (g *Guardrails) AfterResponse(_ context.Context, _ *llm.Request, resp *llm.Response) (*llm.Response, error) {
	if resp == nil {
		return nil, nil
	}
	out := *resp
	out.Content = make([]llm.ContentBlock, len(resp.Content))
	for i, block := range resp.Content {
		if block.Type == llm.ContentBlockTypeText || block.Type == llm.ContentBlockTypeReasoning {
			block.Text = g.Redact(block.Text)
		}
		out.Content[i] = block
	}
	return &out, nil
}

// OnError implements llm.Middleware.
func (g *Guardrails) OnError(_ context.Context, _ *llm.Request, err error) error {
	return err
}

// BeforeStream implements llm.StreamMiddleware.
func (g *Guardrails) BeforeStream(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return req, nil
}

// OnStreamEvent implements llm.StreamMiddleware.
func (g *Guardrails) OnStreamEvent(_ context.Context, req *llm.Request, event *llm.StreamEvent) ([]*llm.StreamEvent, error) {
	v, _ := g.streams.LoadOrStore(req, &redactState{})
	st := v.(*redactState)

	if event.IsText() || event.IsReasoning() {
		var out []*llm.StreamEvent
		if st.kind != event.Delta.Type {
			out = g.flush(st, out)
			st.kind = event.Delta.Type
		}
		st.buffer.WriteString(event.Delta.Text)
		return g.release(st, out), nil
	}

	return append(g.flush(st, nil), event), nil
}

// OnStreamError implements llm.StreamMiddleware.
func (g *Guardrails) OnStreamError(_ context.Context, _ *llm.Request, err error) error {
	return err
}

// OnStreamClose implements llm.StreamCloser.
func (g *Guardrails) OnStreamClose(_ context.Context, req *llm.Request) {
	g.streams.Delete(req)
}

// redactState buffers the not yet released text of one stream. Only one
// channel is buffered at a time.
type redactState struct {
	kind   llm.StreamDeltaType
	buffer strings.Builder
}

// release emits the buffered text up to the last whitespace that is at least
// holdback characters from the end and not inside a match.
func (g *Guardrails) release(st *redactState, out []*llm.StreamEvent) []*llm.StreamEvent {
	text := st.buffer.String()
	limit := len(text) - g.holdback
	if limit <= 0 {
		return out
	}

	spans := g.matchSpans(text)
	cut := -1
	for end := limit + 1; end > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:end])
		end -= size
		if unicode.IsSpace(r) && !inside(spans, end) {
			cut = end + size
			break
		}
	}
	if cut <= 0 {
		return out
	}

	out = append(out, g.delta(st.kind, g.Redact(text[:cut])))
	st.buffer.Reset()
	st.buffer.WriteString(text[cut:])
	return out
}

func (g *Guardrails) flush(st *redactState, out []*llm.StreamEvent) []*llm.StreamEvent {
	if st.buffer.Len() == 0 {
		return out
	}
	out = append(out, g.delta(st.kind, g.Redact(st.buffer.String())))
	st.buffer.Reset()
	return out
}

func (g *Guardrails) delta(kind llm.StreamDeltaType, text string) *llm.StreamEvent {
	if kind == llm.StreamDeltaTypeReasoning {
		return llm.NewReasoningDelta(text)
	}
	return llm.NewTextDelta(text)
}

func (g *Guardrails) matchSpans(text string) [][]int {
	var spans [][]int
	for _, rule := range g.rules {
		spans = append(spans, rule.Pattern.FindAllStringIndex(text, -1)...)
	}
	return spans
}

func inside(spans [][]int, i int) bool {
	for _, s := range spans {
		if i >= s[0] && i < s[1] {
			return true
		}
	}
	return false
}
