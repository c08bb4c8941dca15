package llm

import (
	"encoding/json"
	"strings"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
// This is provider-neutral and can represent user, assistant, or system messages.
type Message struct {
	Role    MessageRole    `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a single content block within a message.
// It can be text, reasoning, a tool use, or a tool result.
type ContentBlock struct {
	Type       ContentBlockType `json:"type"`
	Text       string           `json:"text,omitempty"` // For text and reasoning blocks
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeReasoning  ContentBlockType = "reasoning"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUseBlock represents a tool invocation request from the assistant.
type ToolUseBlock struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// ToolResultBlock represents the result of a tool invocation.
type ToolResultBlock struct {
	ID      string `json:"id"`
	Content string `json:"content"` // JSON-serialized result
	IsError bool   `json:"is_error,omitempty"`
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schema      ToolSchema `json:"schema"`
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string                 `json:"type"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	ExtraFields map[string]interface{} `json:"extra,omitempty"`
}

// JSONSchema renders the schema as a plain JSON-schema map.
func (s ToolSchema) JSONSchema() map[string]interface{} {
	out := make(map[string]interface{}, len(s.ExtraFields)+3)
	for k, v := range s.ExtraFields {
		out[k] = v
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	out["type"] = typ
	if s.Properties != nil {
		out["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// ToolChoice controls whether the model may, must or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// Request represents a complete LLM API request.
type Request struct {
	ID          string          `json:"-"` // Correlation id, assigned by logging middleware when empty
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	System      string          `json:"system,omitempty"`
	Tools       []ToolSpec      `json:"tools,omitempty"`
	ToolChoice  ToolChoice      `json:"tool_choice,omitempty"`
	MaxTokens   int64           `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"` // Optional temperature override
	Options     ProviderOptions `json:"options,omitempty"`
}

// Clone returns a copy of the request whose slices can be modified without
// affecting the original.
func (r *Request) Clone() *Request {
	c := *r
	c.Messages = append([]Message(nil), r.Messages...)
	c.Tools = append([]ToolSpec(nil), r.Tools...)
	return &c
}

// Response represents a complete LLM API response.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	return r.join(ContentBlockTypeText)
}

// Reasoning concatenates the reasoning blocks of the response.
func (r *Response) Reasoning() string {
	return r.join(ContentBlockTypeReasoning)
}

// ToolUses returns the tool use blocks of the response.
func (r *Response) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeToolUse && block.ToolUse != nil {
			out = append(out, *block.ToolUse)
		}
	}
	return out
}

func (r *Response) join(t ContentBlockType) string {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == t {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	// Provider-specific usage fields can be added here
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
	ReasoningTokens          int64
}

// StreamDelta represents a single delta in a streaming response.
type StreamDelta struct {
	Type       StreamDeltaType
	Text       string           // For text and reasoning deltas
	ToolUse    *ToolUseBlock    // For tool use start
	ToolInput  string           // For tool input JSON deltas
	ToolResult *ToolResultBlock // For tool results produced by a tool loop
}

// StreamDeltaType represents the type of streaming delta.
type StreamDeltaType string

const (
	StreamDeltaTypeText       StreamDeltaType = "text"
	StreamDeltaTypeReasoning  StreamDeltaType = "reasoning"
	StreamDeltaTypeToolUse    StreamDeltaType = "tool_use"
	StreamDeltaTypeToolInput  StreamDeltaType = "tool_input"
	StreamDeltaTypeToolResult StreamDeltaType = "tool_result"
)

// StreamEvent represents a complete streaming event.
type StreamEvent struct {
	Type  StreamEventType
	Delta *StreamDelta
	Usage *Usage
	Done  bool
}

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	StreamEventTypeStart        StreamEventType = "start"
	StreamEventTypeContentBlock StreamEventType = "content_block"
	StreamEventTypeContentDelta StreamEventType = "content_delta"
	StreamEventTypeMessageDelta StreamEventType = "message_delta"
	StreamEventTypeStop         StreamEventType = "stop"
)

// NewTextDelta builds a content delta event carrying text.
func NewTextDelta(text string) *StreamEvent {
	return &StreamEvent{
		Type:  StreamEventTypeContentDelta,
		Delta: &StreamDelta{Type: StreamDeltaTypeText, Text: text},
	}
}

// NewReasoningDelta builds a content delta event carrying reasoning text.
func NewReasoningDelta(text string) *StreamEvent {
	return &StreamEvent{
		Type:  StreamEventTypeContentDelta,
		Delta: &StreamDelta{Type: StreamDeltaTypeReasoning, Text: text},
	}
}

// IsText reports whether the event is a text delta.
func (e *StreamEvent) IsText() bool {
	return e != nil && e.Delta != nil && e.Delta.Type == StreamDeltaTypeText
}

// IsReasoning reports whether the event is a reasoning delta.
func (e *StreamEvent) IsReasoning() bool {
	return e != nil && e.Delta != nil && e.Delta.Type == StreamDeltaTypeReasoning
}

// Clone returns a deep enough copy of the event for replay.
func (e *StreamEvent) Clone() *StreamEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.Delta != nil {
		d := *e.Delta
		c.Delta = &d
	}
	if e.Usage != nil {
		u := *e.Usage
		c.Usage = &u
	}
	return &c
}

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// NewToolUseMessage creates a new assistant message with tool use blocks.
func NewToolUseMessage(toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, len(toolUses))
	for i, tu := range toolUses {
		content[i] = ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &tu,
		}
	}
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolResultMessage creates a new user message with tool result blocks.
func NewToolResultMessage(toolResults []ToolResultBlock) Message {
	content := make([]ContentBlock, len(toolResults))
	for i, tr := range toolResults {
		content[i] = ContentBlock{
			Type:       ContentBlockTypeToolResult,
			ToolResult: &tr,
		}
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// IsEmpty reports whether the message carries no usable content.
func (m Message) IsEmpty() bool {
	for _, block := range m.Content {
		switch block.Type {
		case ContentBlockTypeText, ContentBlockTypeReasoning:
			if strings.TrimSpace(block.Text) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
