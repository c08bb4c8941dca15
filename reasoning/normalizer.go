// Package reasoning turns a caller's thinking request into what a model's
// reasoning protocol needs: vendor options, a request header flag or a text
// interceptor.
package reasoning

import (
	"math"

	"github.com/aschepis/backscratcher/llmgate/catalog"
	"github.com/aschepis/backscratcher/llmgate/llm"
)

// DefaultSeparator joins reasoning and answer segments split out of text.
const DefaultSeparator = "\n"

// ThinkingMode is the caller's reasoning request.
type ThinkingMode struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Budget  int  `json:"budget" yaml:"budget"`
	// IncludeThoughts defaults to true when nil.
	IncludeThoughts     *bool `json:"include_thoughts,omitempty" yaml:"include_thoughts,omitempty"`
	InterleavedThinking bool  `json:"interleaved_thinking,omitempty" yaml:"interleaved_thinking,omitempty"`
}

// Plan is what a call needs to obtain reasoning from a model. The zero Plan
// changes nothing.
type Plan struct {
	Protocol            catalog.ReasoningProtocol
	Options             llm.ProviderOptions
	Middleware          llm.Middleware
	InterleavedThinking bool
}

// IsZero reports whether the plan changes nothing.
func (p Plan) IsZero() bool {
	return p.Options == nil && p.Middleware == nil && !p.InterleavedThinking
}

// Normalize selects the reasoning plan for model. Only models that support
// reasoning and requests with a positive budget get a non-empty plan.
func Normalize(model string, mode ThinkingMode) Plan {
	protocol := catalog.ReasoningProtocolFor(model)
	if protocol == catalog.ReasoningNone || !mode.Enabled || mode.Budget <= 0 {
		return Plan{Protocol: protocol}
	}

	switch protocol {
	case catalog.ReasoningGeminiThinking:
		include := true
		if mode.IncludeThoughts != nil {
			include = *mode.IncludeThoughts
		}
		return Plan{
			Protocol: protocol,
			Options: llm.GoogleOptions{Thinking: &llm.GoogleThinking{
				IncludeThoughts: include,
				Budget:          int32(min(mode.Budget, math.MaxInt32)),
			}},
		}
	case catalog.ReasoningAnthropic:
		return Plan{
			Protocol:            protocol,
			Options:             llm.AnthropicOptions{ThinkingBudget: int64(mode.Budget)},
			InterleavedThinking: mode.InterleavedThinking,
		}
	case catalog.ReasoningDeepSeek:
		return Plan{
			Protocol:   protocol,
			Middleware: NewTagExtractor(catalog.ReasoningTagName(model), DefaultSeparator),
		}
	default:
		return Plan{Protocol: protocol}
	}
}

// Apply copies the plan's provider options onto req. Requests that already
// carry options keep them.
func (p Plan) Apply(req *llm.Request) *llm.Request {
	if p.Options == nil || req.Options != nil {
		return req
	}
	c := req.Clone()
	c.Options = p.Options
	return c
}
