// Package openai defines the wire types for OpenAI's chat-completions and
// legacy-completions APIs, plus the small capability methods (GetStream,
// GetModel, GetPrompt, …) every protocol package in codegate
// implements so the pipeline can walk a conversation generically.
package openai

import (
	"encoding/json"

	"github.com/howard-nolan/codegate/internal/protocol/common"
)

// ChatRequest is the /v1/chat/completions request body.
type ChatRequest struct {
	Model            string          `json:"model"`
	MessagesList     []Message       `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	MaxCompletion    *int            `json:"max_completion_tokens,omitempty"`
	Stop             any             `json:"stop,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	Functions        []Function     `json:"functions,omitempty"`
	ToolChoice       any             `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	ReasoningEffort  string          `json:"reasoning_effort,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`

	// BaseURL is not part of the wire format; the mux router stamps it
	// in after rule resolution so provider adapters know where to send
	// the (already-mapped) request. Omitted from JSON.
	BaseURL string `json:"-"`
}

func (r *ChatRequest) GetStream() bool  { return r.Stream }
func (r *ChatRequest) GetModel() string { return r.Model }

func (r *ChatRequest) Messages() []common.Message {
	out := make([]common.Message, len(r.MessagesList))
	for i := range r.MessagesList {
		out[i] = &r.MessagesList[i]
	}
	return out
}

// GetSystemPrompt returns the text of every system/developer message,
// wherever it appears in the list, in order.
func (r *ChatRequest) GetSystemPrompt() []string {
	var out []string
	for _, m := range r.MessagesList {
		if m.RoleName == "system" || m.RoleName == "developer" {
			out = append(out, m.flatText())
		}
	}
	return out
}

// SetSystemPrompt replaces all system/developer messages with a single
// leading system message containing s.
func (r *ChatRequest) SetSystemPrompt(s string) {
	filtered := r.MessagesList[:0:0]
	for _, m := range r.MessagesList {
		if m.RoleName != "system" && m.RoleName != "developer" {
			filtered = append(filtered, m)
		}
	}
	sys := Message{RoleName: "system", Content: json.RawMessage(jsonString(s))}
	r.MessagesList = append([]Message{sys}, filtered...)
}

// AddSystemPrompt appends to the first system/developer message if one
// exists, joined by sep, else prepends a new one.
func (r *ChatRequest) AddSystemPrompt(s, sep string) {
	for i := range r.MessagesList {
		if r.MessagesList[i].RoleName == "system" || r.MessagesList[i].RoleName == "developer" {
			existing := r.MessagesList[i].flatText()
			r.MessagesList[i].Content = json.RawMessage(jsonString(common.JoinNonEmpty([]string{existing, s}, sep)))
			return
		}
	}
	r.MessagesList = append([]Message{{RoleName: "system", Content: json.RawMessage(jsonString(s))}}, r.MessagesList...)
}

// GetPrompt returns the last user message's flattened text, or def.
func (r *ChatRequest) GetPrompt(def string) string {
	if m, _, ok := common.LastUserMessage(r.Messages()); ok {
		if text, hasText := soleMessageText(m); hasText {
			return text
		}
	}
	return def
}

func soleMessageText(m common.Message) (string, bool) {
	var parts []string
	for _, c := range m.Contents() {
		if t, ok := c.GetText(); ok {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return common.JoinNonEmpty(parts, "\n"), true
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// Message is a single chat message. Content is either a bare JSON string
// (the common case) or an array of content parts (text/refusal/image),
// matching OpenAI's polymorphic "content" field.
type Message struct {
	RoleName     string          `json:"role"`
	Content      json.RawMessage `json:"content,omitempty"`
	Name         string          `json:"name,omitempty"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	FunctionCall *FunctionCall   `json:"function_call,omitempty"`
}

// Role satisfies common.Message.
func (m *Message) Role() string { return m.RoleName }

func (m *Message) flatText() string {
	t, _ := soleMessageText(m)
	return t
}

// Contents parses the polymorphic Content field into a list of typed
// content parts (implementing common.Content). The parts are parsed
// afresh on every call; SetText on a returned part writes the edited
// content back into m.Content.
func (m *Message) Contents() []common.Content {
	parts := m.parseContent()
	bare := json.Unmarshal(m.Content, new(string)) == nil
	out := make([]common.Content, len(parts))
	for i := range parts {
		parts[i].owner, parts[i].siblings, parts[i].bare = m, parts, bare
		out[i] = &parts[i]
	}
	return out
}

func (m *Message) parseContent() []contentPart {
	if len(m.Content) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		return []contentPart{{Type: "text", Text: asString}}
	}
	var asParts []contentPart
	if err := json.Unmarshal(m.Content, &asParts); err == nil {
		return asParts
	}
	return nil
}

// contentPart is one element of an array-shaped Content field: either a
// {"type":"text","text":"..."} block or a {"type":"refusal","refusal":"..."}
// block. Tool-call content never appears here — it lives in Message.ToolCalls.
type contentPart struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`

	// owner, siblings and bare let SetText re-encode the message's
	// Content in the shape it arrived in (bare string or part array).
	owner    *Message
	siblings []contentPart
	bare     bool
}

func (c *contentPart) GetText() (string, bool) {
	switch c.Type {
	case "text":
		return c.Text, true
	case "refusal":
		return c.Refusal, true
	default:
		return "", false
	}
}

func (c *contentPart) SetText(s string) {
	switch c.Type {
	case "text":
		c.Text = s
	case "refusal":
		c.Refusal = s
	}
	if c.owner == nil {
		return
	}
	if c.bare {
		c.owner.Content = jsonString(c.Text)
	} else if b, err := json.Marshal(c.siblings); err == nil {
		c.owner.Content = b
	}
}

// ToolCall is one entry in Message.ToolCalls.
type ToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function FunctionCall  `json:"function"`
}

// FunctionCall is the deprecated single-function-call shape, still sent
// by some older clients alongside/instead of ToolCalls.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is an entry in ChatRequest.Tools.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes one callable tool/function.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponseFormat is OpenAI's response_format field.
type ResponseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"json_schema,omitempty"`
}

// LegacyCompletionRequest is the /v1/completions (pre-chat) request body.
type LegacyCompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stop        any      `json:"stop,omitempty"`

	BaseURL string `json:"-"`
}

func (r *LegacyCompletionRequest) GetStream() bool  { return r.Stream }
func (r *LegacyCompletionRequest) GetModel() string { return r.Model }

// Messages synthesizes a single-message view over the flat Prompt field,
// so FIM-only requests can still walk through the generic pipeline steps
// that operate on common.Request.
func (r *LegacyCompletionRequest) Messages() []common.Message {
	return []common.Message{&legacyPromptMessage{r: r}}
}

// GetSystemPrompt always returns nil: the legacy completions wire format
// has no separate system-message concept.
func (r *LegacyCompletionRequest) GetSystemPrompt() []string { return nil }

// SetSystemPrompt/AddSystemPrompt are no-ops: a FIM-only request has
// nowhere to put an injected system prompt. Steps that need to inject
// text into a legacy request do so via AddSystemPrompt's sep-joined
// convention against the prompt itself instead.
func (r *LegacyCompletionRequest) SetSystemPrompt(string) {}
func (r *LegacyCompletionRequest) AddSystemPrompt(s, sep string) {
	r.Prompt = common.JoinNonEmpty([]string{s, r.Prompt}, sep)
}

func (r *LegacyCompletionRequest) GetPrompt(def string) string {
	if r.Prompt == "" {
		return def
	}
	return r.Prompt
}

// legacyPromptMessage adapts LegacyCompletionRequest.Prompt to
// common.Message/common.Content so it can appear in a Messages() slice.
type legacyPromptMessage struct{ r *LegacyCompletionRequest }

func (m *legacyPromptMessage) Role() string                 { return "user" }
func (m *legacyPromptMessage) Contents() []common.Content    { return []common.Content{m} }
func (m *legacyPromptMessage) GetText() (string, bool)       { return m.r.Prompt, true }
func (m *legacyPromptMessage) SetText(s string)              { m.r.Prompt = s }

// ---------------------------------------------------------------------
// Non-streaming response types
// ---------------------------------------------------------------------

// ChatResponse is a complete (non-streaming) chat-completions response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []Choice     `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// Choice is one entry in ChatResponse.Choices.
type Choice struct {
	Index        int      `json:"index"`
	Message      Message  `json:"message"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

// Usage mirrors OpenAI's token accounting fields.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LegacyCompletion is both the non-streaming legacy-completion response
// and the per-chunk streaming shape (legacy completions never nest a
// "delta", the per-chunk text is the same "text" field as the full
// response uses).
type LegacyCompletion struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []LegacyMessage `json:"choices"`
	Usage   *Usage          `json:"usage,omitempty"`
}

// LegacyMessage is one choice entry in a LegacyCompletion.
type LegacyMessage struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ---------------------------------------------------------------------
// Streaming chunk types
// ---------------------------------------------------------------------

// ChatChunk is one SSE "data:" payload of a streaming chat completion.
type ChatChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChunkChoice is one entry in ChatChunk.Choices.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Delta carries the incremental content of one streaming chunk.
type Delta struct {
	Role      string      `json:"role,omitempty"`
	Content   string      `json:"content,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
}

// MessageError is the shape of an OpenAI-style `data: {"error": {...}}`
// stream error frame.
type MessageError struct {
	Error ErrorDetails `json:"error"`
}

// ErrorDetails is the body of MessageError.
type ErrorDetails struct {
	Message string  `json:"message"`
	Type    string  `json:"type,omitempty"`
	Code    *string `json:"code,omitempty"`
}

// Done is the literal sentinel OpenAI sends as the last SSE frame's
// data payload, instead of a final JSON object.
const Done = "[DONE]"
