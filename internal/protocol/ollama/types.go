// Package ollama defines the wire types for Ollama's /api/chat and
// /api/generate endpoints, which speak line-delimited NDJSON rather than
// SSE: one JSON object per line, with a trailing "done": true object
// closing the stream.
package ollama

import (
	"github.com/howard-nolan/codegate/internal/protocol/common"
)

// ChatRequest is the /api/chat request body.
type ChatRequest struct {
	Model        string         `json:"model"`
	MessagesList []Message      `json:"messages"`
	Stream       bool           `json:"stream,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
	Format       any            `json:"format,omitempty"`
	Tools        []Tool         `json:"tools,omitempty"`

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

func (r *ChatRequest) GetSystemPrompt() []string {
	var out []string
	for _, m := range r.MessagesList {
		if m.RoleName == "system" {
			out = append(out, m.Content)
		}
	}
	return out
}

func (r *ChatRequest) SetSystemPrompt(s string) {
	filtered := r.MessagesList[:0:0]
	for _, m := range r.MessagesList {
		if m.RoleName != "system" {
			filtered = append(filtered, m)
		}
	}
	r.MessagesList = append([]Message{{RoleName: "system", Content: s}}, filtered...)
}

func (r *ChatRequest) AddSystemPrompt(s, sep string) {
	for i := range r.MessagesList {
		if r.MessagesList[i].RoleName == "system" {
			r.MessagesList[i].Content = common.JoinNonEmpty([]string{r.MessagesList[i].Content, s}, sep)
			return
		}
	}
	r.MessagesList = append([]Message{{RoleName: "system", Content: s}}, r.MessagesList...)
}

func (r *ChatRequest) GetPrompt(def string) string {
	if m, _, ok := common.LastUserMessage(r.Messages()); ok {
		if mm, ok := m.(*Message); ok {
			return mm.Content
		}
	}
	return def
}

// Message is a single Ollama chat message: flat role + plain-string
// content, no nested content-part array (Ollama has no equivalent of
// OpenAI's array-shaped content).
type Message struct {
	RoleName  string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func (m *Message) Role() string { return m.RoleName }

func (m *Message) Contents() []common.Content {
	return []common.Content{&textContent{m: m}}
}

type textContent struct{ m *Message }

func (t *textContent) GetText() (string, bool) { return t.m.Content, true }
func (t *textContent) SetText(s string)         { t.m.Content = s }

// ToolCall is Ollama's tool-call shape: the function name + a decoded
// arguments object (unlike OpenAI, which encodes arguments as a JSON
// string).
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the body of a ToolCall.
type ToolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool is an entry in ChatRequest.Tools.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one callable tool in Ollama's (lossy,
// properties-only) schema shape.
type ToolFunction struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Parameters  ToolFunctionParameters     `json:"parameters"`
}

// ToolFunctionParameters is Ollama's simplified parameter schema: only
// top-level "required" + per-property "type"/"description" survive the
// conversion from OpenAI's full JSON Schema.
type ToolFunctionParameters struct {
	Type       string                         `json:"type"`
	Required   []string                       `json:"required,omitempty"`
	Properties map[string]ToolFunctionProperty `json:"properties,omitempty"`
}

// ToolFunctionProperty is one entry of ToolFunctionParameters.Properties.
type ToolFunctionProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// GenerateRequest is the /api/generate request body, used for FIM
// (fill-in-the-middle) completions.
type GenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	Format  any            `json:"format,omitempty"`

	BaseURL string `json:"-"`
}

func (r *GenerateRequest) GetStream() bool  { return r.Stream }
func (r *GenerateRequest) GetModel() string { return r.Model }
func (r *GenerateRequest) GetPrompt(def string) string {
	if r.Prompt == "" {
		return def
	}
	return r.Prompt
}

// Messages synthesizes a single-message view over Prompt, matching
// openai.LegacyCompletionRequest's adapter, so FIM requests can flow
// through the same generic pipeline steps as chat requests.
func (r *GenerateRequest) Messages() []common.Message {
	return []common.Message{&generatePromptMessage{r: r}}
}

func (r *GenerateRequest) GetSystemPrompt() []string { return nil }
func (r *GenerateRequest) SetSystemPrompt(string)     {}
func (r *GenerateRequest) AddSystemPrompt(s, sep string) {
	r.Prompt = common.JoinNonEmpty([]string{s, r.Prompt}, sep)
}

type generatePromptMessage struct{ r *GenerateRequest }

func (m *generatePromptMessage) Role() string              { return "user" }
func (m *generatePromptMessage) Contents() []common.Content { return []common.Content{m} }
func (m *generatePromptMessage) GetText() (string, bool)    { return m.r.Prompt, true }
func (m *generatePromptMessage) SetText(s string)           { m.r.Prompt = s }

// ---------------------------------------------------------------------
// Streaming / response payloads — one JSON object per NDJSON line.
// ---------------------------------------------------------------------

// ChatChunk is one line of an /api/chat streaming response (also the
// shape of the final, non-streaming response with Done=true).
type ChatChunk struct {
	Model     string   `json:"model"`
	CreatedAt string   `json:"created_at,omitempty"`
	Message   Message  `json:"message"`
	Done      bool     `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// GenerateChunk is one line of an /api/generate streaming response.
type GenerateChunk struct {
	Model      string `json:"model"`
	CreatedAt  string `json:"created_at,omitempty"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Error is Ollama's error envelope, `{"error": "..."}`.
type Error struct {
	Error string `json:"error"`
}
