// Package anthropic defines the wire types for Anthropic's Messages API,
// both the request/response shapes and the named SSE event payloads its
// streaming protocol uses.
package anthropic

import (
	"github.com/howard-nolan/codegate/internal/protocol/common"
)

// APIVersion is the required anthropic-version header value.
const APIVersion = "2023-06-01"

// MessagesRequest is the /v1/messages request body.
type MessagesRequest struct {
	Model       string     `json:"model"`
	MaxTokens   int        `json:"max_tokens"`
	System       string     `json:"system,omitempty"`
	MessagesList []Message  `json:"messages"`
	Stream       bool       `json:"stream,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	StopSeqs    []string   `json:"stop_sequences,omitempty"`
	Tools       []Tool     `json:"tools,omitempty"`
	ToolChoice  *ToolChoice `json:"tool_choice,omitempty"`
	Thinking    *Thinking  `json:"thinking,omitempty"`

	BaseURL string `json:"-"`
}

func (r *MessagesRequest) GetStream() bool  { return r.Stream }
func (r *MessagesRequest) GetModel() string { return r.Model }

func (r *MessagesRequest) Messages() []common.Message {
	out := make([]common.Message, len(r.MessagesList))
	for i := range r.MessagesList {
		out[i] = &r.MessagesList[i]
	}
	return out
}

func (r *MessagesRequest) GetSystemPrompt() []string {
	if r.System == "" {
		return nil
	}
	return []string{r.System}
}

func (r *MessagesRequest) SetSystemPrompt(s string) { r.System = s }

func (r *MessagesRequest) AddSystemPrompt(s, sep string) {
	r.System = common.JoinNonEmpty([]string{r.System, s}, sep)
}

func (r *MessagesRequest) GetPrompt(def string) string {
	if m, _, ok := common.LastUserMessage(r.Messages()); ok {
		var parts []string
		for _, c := range m.Contents() {
			if t, ok := c.GetText(); ok {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			return common.JoinNonEmpty(parts, "\n")
		}
	}
	return def
}

// Thinking enables extended/reasoning output, mapped from OpenAI's
// reasoning_effort.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// ToolChoice is Anthropic's tool_choice variant: {"type": "auto"|"any"|"tool"|"none", "name": "..."}.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Tool is an entry in MessagesRequest.Tools.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Message is a user/assistant message. Content is an array of typed
// content blocks (text, tool_use, tool_result) — Anthropic never
// collapses single-text-block messages into a bare string the way
// OpenAI does.
type Message struct {
	RoleName string         `json:"role"`
	Content  []ContentBlock `json:"content"`
}

func (m *Message) Role() string { return m.RoleName }

func (m *Message) Contents() []common.Content {
	out := make([]common.Content, len(m.Content))
	for i := range m.Content {
		out[i] = &m.Content[i]
	}
	return out
}

// ContentBlock is one entry of Message.Content: a text block, a
// tool_use block (assistant requesting a tool call), or a tool_result
// block (the result of a prior tool_use, sent back as a user message).
type ContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"` // tool_result content, flattened to text
}

func (c *ContentBlock) GetText() (string, bool) {
	switch c.Type {
	case "text":
		return c.Text, true
	case "tool_result":
		return c.Content, true
	default:
		// tool_use blocks carry structured Input, not prose — redaction
		// and context-retrieval walks must skip them.
		return "", false
	}
}

func (c *ContentBlock) SetText(s string) {
	switch c.Type {
	case "text":
		c.Text = s
	case "tool_result":
		c.Content = s
	}
}

// TextContent is a convenience constructor for a text content block.
func TextContent(text string) ContentBlock { return ContentBlock{Type: "text", Text: text} }

// ToolUseContent is a convenience constructor for a tool_use block.
func ToolUseContent(id, name string, input any) ContentBlock {
	return ContentBlock{Type: "tool_use", ID: id, Name: name, Input: input}
}

// ---------------------------------------------------------------------
// Non-streaming response
// ---------------------------------------------------------------------

// MessagesResponse is the complete, non-streaming /v1/messages response.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
}

// Usage mirrors Anthropic's token accounting fields.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ---------------------------------------------------------------------
// Streaming event payloads
//
// Anthropic's SSE protocol sends NAMED events (the "event: <type>" line)
// each carrying a JSON payload whose "type" field repeats the event
// name. codegate's stream decoder (internal/streamcodec) decodes the
// envelope below, then the caller type-switches on the Type field to
// pick the right concrete view.
// ---------------------------------------------------------------------

// StreamEvent is the decoded envelope for one Anthropic SSE frame. Only
// the fields relevant to Type are populated; the rest stay at their
// zero value.
type StreamEvent struct {
	Type         string        `json:"type"`
	Message      *EventMessage `json:"message,omitempty"`
	Index        int           `json:"index"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *EventDelta   `json:"delta,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	Error        *EventError   `json:"error,omitempty"`
}

// EventMessage is message_start's "message" object.
type EventMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// EventDelta carries either a content_block_delta's delta (text_delta
// or input_json_delta) or a message_delta's delta (stop_reason).
type EventDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`         // text_delta
	PartialJSON string `json:"partial_json,omitempty"` // input_json_delta
	StopReason  string `json:"stop_reason,omitempty"`  // message_delta
}

// EventError is the payload of an "event: error" frame.
type EventError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Event type name constants, matching the literal "event:" line values.
const (
	EventMessageStart      = "message_start"
	EventMessageDelta      = "message_delta"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError_            = "error"

	DeltaTypeText = "text_delta"
	DeltaTypeJSON = "input_json_delta"
)
