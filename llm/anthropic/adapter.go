package anthropic

import (
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
// Reasoning blocks are not sent back: Anthropic only accepts signed
// thinking blocks it produced itself.
func ToMessageParam(msg llm.Message) anthropic.MessageParam {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text != "" {
				contentBlocks = append(contentBlocks, anthropic.NewTextBlock(block.Text))
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(
					block.ToolUse.ID,
					block.ToolUse.Input,
					block.ToolUse.Name,
				))
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(
					block.ToolResult.ID,
					block.ToolResult.Content,
					block.ToolResult.IsError,
				))
			}
		}
	}

	if msg.Role == llm.RoleAssistant {
		return anthropic.NewAssistantMessage(contentBlocks...)
	}
	return anthropic.NewUserMessage(contentBlocks...)
}

// ToMessageParams converts llm.Messages to Anthropic MessageParams. System
// messages are returned separately because Anthropic takes them as a
// top-level field.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, []string) {
	var system []string
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			for _, block := range msg.Content {
				if block.Type == llm.ContentBlockTypeText && block.Text != "" {
					system = append(system, block.Text)
				}
			}
			continue
		}
		result = append(result, ToMessageParam(msg))
	}
	return result, system
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec *llm.ToolSpec) anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties:  spec.Schema.Properties,
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(&spec)
	})
}

// ToToolChoice maps a neutral tool choice onto Anthropic's union.
func ToToolChoice(choice llm.ToolChoice) (anthropic.ToolChoiceUnionParam, bool) {
	switch choice {
	case llm.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, true
	case llm.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}, true
	case llm.ToolChoiceAuto:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, true
	}
	return anthropic.ToolChoiceUnionParam{}, false
}

// FromContentBlocks converts a response's content into llm content blocks.
func FromContentBlocks(blocks []anthropic.ContentBlockUnion) []llm.ContentBlock {
	content := make([]llm.ContentBlock, 0, len(blocks))
	for _, blockUnion := range blocks {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: block.Text})
		case anthropic.ThinkingBlock:
			content = append(content, llm.ContentBlock{Type: llm.ContentBlockTypeReasoning, Text: block.Thinking})
		case anthropic.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeInput(block.Input),
				},
			})
		}
	}
	return content
}

func decodeInput(raw json.RawMessage) map[string]interface{} {
	input := make(map[string]interface{})
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &input); err != nil {
			return make(map[string]interface{})
		}
	}
	return input
}
