package gemini

import (
	"encoding/json"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// ToContents converts llm.Messages to Gemini contents. System messages are
// collected separately for the system instruction. Reasoning blocks are not
// sent back to the model.
func ToContents(msgs []llm.Message) ([]*genai.Content, []string) {
	var system []string
	toolNames := make(map[string]string)
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			for _, block := range msg.Content {
				if block.Type == llm.ContentBlockTypeText && block.Text != "" {
					system = append(system, block.Text)
				}
			}
			continue
		}

		role := roleUser
		if msg.Role == llm.RoleAssistant {
			role = roleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			switch block.Type {
			case llm.ContentBlockTypeText:
				if block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			case llm.ContentBlockTypeToolUse:
				if block.ToolUse != nil {
					toolNames[block.ToolUse.ID] = block.ToolUse.Name
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						ID:   block.ToolUse.ID,
						Name: block.ToolUse.Name,
						Args: block.ToolUse.Input,
					}})
				}
			case llm.ContentBlockTypeToolResult:
				if block.ToolResult != nil {
					parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
						ID:       block.ToolResult.ID,
						Name:     toolNames[block.ToolResult.ID],
						Response: toolResponse(block.ToolResult),
					}})
				}
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents, system
}

// toolResponse wraps a tool result for FunctionResponse. JSON objects are
// passed through; anything else is wrapped under "output".
func toolResponse(result *llm.ToolResultBlock) map[string]any {
	key := "output"
	if result.IsError {
		key = "error"
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(result.Content), &obj); err == nil && !result.IsError {
		return obj
	}
	return map[string]any{key: result.Content}
}

// ToFunctionDeclarations converts tool specs to Gemini function declarations.
func ToFunctionDeclarations(specs []llm.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 spec.Name,
			Description:          spec.Description,
			ParametersJsonSchema: spec.Schema.JSONSchema(),
		})
	}
	return decls
}

// ToToolConfig maps a neutral tool choice onto Gemini's function calling mode.
func ToToolConfig(choice llm.ToolChoice) *genai.ToolConfig {
	var mode genai.FunctionCallingConfigMode
	switch choice {
	case llm.ToolChoiceRequired:
		mode = genai.FunctionCallingConfigModeAny
	case llm.ToolChoiceNone:
		mode = genai.FunctionCallingConfigModeNone
	default:
		mode = genai.FunctionCallingConfigModeAuto
	}
	return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
}

// FromParts converts response parts to llm content blocks. Thought parts
// become reasoning blocks.
func FromParts(parts []*genai.Part) []llm.ContentBlock {
	var content []llm.ContentBlock
	var text, reasoning strings.Builder
	for _, part := range parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			content = append(content, llm.ContentBlock{
				Type:    llm.ContentBlockTypeToolUse,
				ToolUse: FromFunctionCall(part.FunctionCall, len(content)),
			})
		case part.Thought:
			reasoning.WriteString(part.Text)
		default:
			text.WriteString(part.Text)
		}
	}

	var out []llm.ContentBlock
	if reasoning.Len() > 0 {
		out = append(out, llm.ContentBlock{Type: llm.ContentBlockTypeReasoning, Text: reasoning.String()})
	}
	if text.Len() > 0 {
		out = append(out, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: text.String()})
	}
	return append(out, content...)
}

// FromFunctionCall converts a Gemini function call to a tool use block.
// Gemini may omit call ids, in which case one is derived from the name.
func FromFunctionCall(fc *genai.FunctionCall, position int) *llm.ToolUseBlock {
	id := fc.ID
	if id == "" {
		id = "call_" + fc.Name + "_" + strconv.Itoa(position)
	}
	input := fc.Args
	if input == nil {
		input = make(map[string]any)
	}
	return &llm.ToolUseBlock{ID: id, Name: fc.Name, Input: input}
}

func usageOf(resp *genai.GenerateContentResponse) *llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	u := resp.UsageMetadata
	return &llm.Usage{
		InputTokens:          int64(u.PromptTokenCount),
		OutputTokens:         int64(u.CandidatesTokenCount),
		CacheReadInputTokens: int64(u.CachedContentTokenCount),
		ReasoningTokens:      int64(u.ThoughtsTokenCount),
	}
}
