package ollama

import (
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// coerceToolArguments checks required parameters and converts argument
// values to the types declared by the tool schema. Local models often emit
// numbers and booleans as strings.
func coerceToolArguments(toolName string, args map[string]interface{}, schema llm.ToolSchema) (api.ToolCallFunctionArguments, error) {
	result := make(api.ToolCallFunctionArguments)

	for _, reqParam := range schema.Required {
		val, exists := args[reqParam]
		if !exists {
			providedKeys := make([]string, 0, len(args))
			for k := range args {
				providedKeys = append(providedKeys, k)
			}
			return nil, fmt.Errorf("missing required parameter '%s' for tool '%s' (provided: %v)", reqParam, toolName, providedKeys)
		}
		if isEmptyValue(val) {
			return nil, fmt.Errorf("required parameter '%s' for tool '%s' cannot be empty", reqParam, toolName)
		}
	}

	for k, v := range args {
		propSchema, exists := schema.Properties[k]
		if !exists {
			result[k] = v
			continue
		}
		converted, err := convertValueToType(v, getPropertyType(propSchema), k)
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameter '%s' for tool '%s': %w", k, toolName, err)
		}
		result[k] = converted
	}

	return result, nil
}

// isEmptyValue checks if a value is considered empty (nil, empty string, empty array, etc.)
func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}

	switch val := v.(type) {
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}

	return false
}

// getPropertyType extracts the type from a property schema definition
func getPropertyType(propSchema interface{}) string {
	if propMap, ok := propSchema.(map[string]interface{}); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return "string" // Default type
}

// convertValueToType converts a value to the specified type
func convertValueToType(v interface{}, targetType, paramName string) (interface{}, error) {
	// If already the correct type, return as-is
	switch targetType {
	case "integer", "int":
		return convertToInteger(v, paramName)
	case "number", "float":
		return convertToNumber(v, paramName)
	case "boolean", "bool":
		return convertToBoolean(v, paramName)
	case "string":
		return convertToString(v), nil
	case "array":
		// Arrays are typically passed through, but we could validate
		return v, nil
	case "object":
		// Objects are typically passed through
		return v, nil
	default:
		// Unknown type, pass through
		return v, nil
	}
}

// convertToInteger converts a value to an integer
func convertToInteger(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		// Try to parse string as integer
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err != nil {
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to integer", paramName, val)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to integer", paramName, v)
	}
}

// convertToNumber converts a value to a float64
func convertToNumber(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%f", &f); err != nil {
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to number", paramName, val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to number", paramName, v)
	}
}

// convertToBoolean converts a value to a boolean
func convertToBoolean(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		default:
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to boolean", paramName, val)
		}
	case int:
		return val != 0, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to boolean", paramName, v)
	}
}

// convertToString converts a value to a string
func convertToString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// ToOllamaMessages converts llm.Messages to Ollama chat messages. Tool specs
// are used to coerce the arguments of earlier tool calls.
func ToOllamaMessages(msgs []llm.Message, specs []llm.ToolSpec) ([]api.Message, error) {
	specByName := make(map[string]llm.ToolSpec, len(specs))
	for _, spec := range specs {
		specByName[spec.Name] = spec
	}

	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := ToOllamaMessage(msg, specByName)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToOllamaMessage converts a single llm.Message to Ollama format. Tool
// results are split out into "tool" role messages.
func ToOllamaMessage(msg llm.Message, specByName map[string]llm.ToolSpec) ([]api.Message, error) {
	var text []string
	var toolCalls []api.ToolCall
	var toolResults []api.Message

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text != "" {
				text = append(text, block.Text)
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments)
			if spec, ok := specByName[block.ToolUse.Name]; ok {
				coerced, err := coerceToolArguments(block.ToolUse.Name, block.ToolUse.Input, spec.Schema)
				if err != nil {
					return nil, fmt.Errorf("tool argument validation failed: %w", err)
				}
				args = coerced
			} else {
				for k, v := range block.ToolUse.Input {
					args[k] = v
				}
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				toolResults = append(toolResults, api.Message{
					Role:    "tool",
					Content: block.ToolResult.Content,
				})
			}
		}
	}

	var out []api.Message
	if len(text) > 0 || len(toolCalls) > 0 {
		out = append(out, api.Message{
			Role:      string(msg.Role),
			Content:   strings.Join(text, "\n"),
			ToolCalls: toolCalls,
		})
	}
	return append(out, toolResults...), nil
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	result := make([]api.Tool, 0, len(specs))
	for i := range specs {
		result = append(result, ToOllamaTool(&specs[i]))
	}
	return result
}

// ToOllamaTool converts a single llm.ToolSpec to Ollama Tool format.
// Only the property types survive the conversion.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty)
	for k, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{"string"}}
		if propMap, ok := v.(map[string]interface{}); ok {
			if propType, ok := propMap["type"].(string); ok {
				prop.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[k] = prop
	}

	typ := spec.Schema.Type
	if typ == "" {
		typ = "object"
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       typ,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}

// FromOllamaToolCall converts an Ollama tool call to an llm.ToolUseBlock.
// Ollama does not assign call ids, so one is derived from the position.
func FromOllamaToolCall(toolCall api.ToolCall, position int) *llm.ToolUseBlock {
	input := make(map[string]interface{}, len(toolCall.Function.Arguments))
	for k, v := range toolCall.Function.Arguments {
		input[k] = v
	}
	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, position),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}
