// Package mapper implements the bidirectional protocol translations
// between OpenAI chat, OpenAI legacy completions, Anthropic Messages, and
// Ollama chat/generate. Every mapper here is a pure function over the
// typed protocol structs: given the same input it always produces the
// same output, and an unsupported variant is a hard error, never a
// silent drop.
package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/protocol/anthropic"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

// defaultAnthropicMaxTokens is used whenever the incoming OpenAI request
// doesn't specify max_tokens/max_completion_tokens — Anthropic requires
// the field, OpenAI does not.
const defaultAnthropicMaxTokens = 4096

// reasoningBudgetTokens is the fixed thinking budget every OpenAI
// reasoning_effort level maps to. Anthropic's thinking budget is a
// single knob; codegate (like the gateway it's grounded on) does not
// attempt a finer low/medium/high split.
const reasoningBudgetTokens = 1024

// modelAliases is a small, deliberately non-exhaustive table of
// well-known OpenAI model names to their closest Anthropic equivalent.
// Any model not listed here is passed through unchanged — the caller is
// assumed to already be naming a real Anthropic model (this is the
// common case once a mux rule has picked the destination).
var modelAliases = map[string]string{
	"gpt-4":         "claude-3-opus-20240229",
	"gpt-4o":        "claude-3-5-sonnet-20241022",
	"gpt-4o-mini":   "claude-3-5-haiku-20241022",
	"gpt-3.5-turbo": "claude-3-haiku-20240307",
}

func mapModel(openaiModel string) string {
	if m, ok := modelAliases[openaiModel]; ok {
		return m
	}
	return openaiModel
}

func mapMaxTokens(maxTokens, maxCompletionTokens *int) int {
	if maxCompletionTokens != nil && *maxCompletionTokens > 0 {
		return *maxCompletionTokens
	}
	if maxTokens != nil && *maxTokens > 0 {
		return *maxTokens
	}
	return defaultAnthropicMaxTokens
}

// mapTemperature halves an OpenAI temperature (range [0,2]) into
// Anthropic's range ([0,1]).
func mapTemperature(t *float64) *float64 {
	if t == nil {
		return nil
	}
	half := *t / 2
	return &half
}

func mapStopSequences(stop any) []string {
	switch v := stop.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func mapReasoningEffort(effort string) *anthropic.Thinking {
	switch effort {
	case "low", "medium", "high":
		return &anthropic.Thinking{Type: "enabled", BudgetTokens: reasoningBudgetTokens}
	default:
		return nil
	}
}

func mapToolChoice(choice any) *anthropic.ToolChoice {
	switch v := choice.(type) {
	case string:
		switch v {
		case "none":
			return &anthropic.ToolChoice{Type: "none"}
		case "auto":
			return &anthropic.ToolChoice{Type: "auto"}
		case "required":
			return &anthropic.ToolChoice{Type: "any"}
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				return &anthropic.ToolChoice{Type: "tool", Name: name}
			}
		}
	}
	return nil
}

func mapTools(tools []openai.Tool, functions []openai.Function) []anthropic.Tool {
	if len(tools) == 0 && len(functions) == 0 {
		return nil
	}
	out := make([]anthropic.Tool, 0, len(tools)+len(functions))
	for _, t := range tools {
		out = append(out, anthropic.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	// Deprecated top-level "functions" field maps the same way "tools" does.
	for _, f := range functions {
		out = append(out, anthropic.Tool{
			Name:        f.Name,
			Description: f.Description,
			InputSchema: f.Parameters,
		})
	}
	return out
}

// mapSystemMessages concatenates every system/developer message into
// Anthropic's single top-level "system" string, joined by newlines. It is
// not limited to the leading run: a system message that appears later in
// the conversation is moved into "system" too, losing its position.
func mapSystemMessages(messages []openai.Message) string {
	var prompts []string
	for _, m := range messages {
		if m.RoleName != "system" && m.RoleName != "developer" {
			continue
		}
		for _, c := range m.Contents() {
			if t, ok := c.GetText(); ok {
				prompts = append(prompts, t)
			}
		}
	}
	out := ""
	for i, p := range prompts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// mapMessages translates the non-system OpenAI messages into Anthropic
// messages, merging an assistant tool-call message's calls (both the
// modern ToolCalls list and the deprecated single FunctionCall) into
// tool_use content blocks, and mapping tool/function result messages
// back to a user message (Anthropic has no separate "tool" role).
func mapMessages(messages []openai.Message) ([]anthropic.Message, error) {
	var out []anthropic.Message
	for _, m := range messages {
		switch m.RoleName {
		case "system", "developer":
			continue

		case "user":
			out = append(out, anthropic.Message{RoleName: "user", Content: mapOpenAIContent(&m)})

		case "assistant":
			if len(m.ToolCalls) == 0 && m.FunctionCall == nil {
				out = append(out, anthropic.Message{RoleName: "assistant", Content: mapOpenAIContent(&m)})
				continue
			}
			var blocks []anthropic.ContentBlock
			for _, call := range m.ToolCalls {
				var input any
				if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
					return nil, fmt.Errorf("decoding tool call arguments for %q: %w", call.Function.Name, err)
				}
				blocks = append(blocks, anthropic.ToolUseContent(call.ID, call.Function.Name, input))
			}
			if m.FunctionCall != nil {
				var input any
				if err := json.Unmarshal([]byte(m.FunctionCall.Arguments), &input); err != nil {
					return nil, fmt.Errorf("decoding function call arguments for %q: %w", m.FunctionCall.Name, err)
				}
				blocks = append(blocks, anthropic.ToolUseContent(uuid.NewString(), m.FunctionCall.Name, input))
			}
			out = append(out, anthropic.Message{RoleName: "assistant", Content: blocks})

		case "tool", "function":
			out = append(out, anthropic.Message{RoleName: "user", Content: mapOpenAIContent(&m)})

		default:
			return nil, fmt.Errorf("openai->anthropic: unsupported message role %q", m.RoleName)
		}
	}
	return out, nil
}

// mapOpenAIContent flattens an OpenAI message's polymorphic content into
// Anthropic's content-block array. Refusal blocks are mapped to plain
// text: Anthropic has no separate refusal content type.
func mapOpenAIContent(m *openai.Message) []anthropic.ContentBlock {
	var out []anthropic.ContentBlock
	for _, c := range m.Contents() {
		if t, ok := c.GetText(); ok {
			out = append(out, anthropic.TextContent(t))
		}
	}
	return out
}

// AnthropicFromOpenAI translates an OpenAI chat-completions request into
// an Anthropic Messages request.
func AnthropicFromOpenAI(req *openai.ChatRequest) (*anthropic.MessagesRequest, error) {
	messages, err := mapMessages(req.MessagesList)
	if err != nil {
		return nil, err
	}

	out := &anthropic.MessagesRequest{
		Model:       mapModel(req.Model),
		MaxTokens:   mapMaxTokens(req.MaxTokens, req.MaxCompletion),
		System:       mapSystemMessages(req.MessagesList),
		MessagesList: messages,
		Stream:      req.Stream,
		Temperature: mapTemperature(req.Temperature),
		StopSeqs:    mapStopSequences(req.Stop),
		Tools:       mapTools(req.Tools, req.Functions),
		ToolChoice:  mapToolChoice(req.ToolChoice),
		Thinking:    mapReasoningEffort(req.ReasoningEffort),
	}
	return out, nil
}

// AnthropicFromLegacyOpenAI translates a legacy /v1/completions request
// (a single flat prompt string, no message list) into an Anthropic
// Messages request containing one user message.
func AnthropicFromLegacyOpenAI(req *openai.LegacyCompletionRequest) (*anthropic.MessagesRequest, error) {
	maxTokens := defaultAnthropicMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	return &anthropic.MessagesRequest{
		Model:     mapModel(req.Model),
		MaxTokens: maxTokens,
		MessagesList: []anthropic.Message{
			{RoleName: "user", Content: []anthropic.ContentBlock{anthropic.TextContent(req.Prompt)}},
		},
		Stream:      req.Stream,
		Temperature: mapTemperature(req.Temperature),
		StopSeqs:    mapStopSequences(req.Stop),
	}, nil
}

// ---------------------------------------------------------------------
// Anthropic -> OpenAI stream conversion
// ---------------------------------------------------------------------

// anthropicStreamState accumulates the cross-event bookkeeping the
// converter needs: the response id/model (set once, on message_start),
// running input/output token counts, the index of the most recent
// content_block_start, and the id of the tool_use block in progress.
// Every emitted chunk uses OpenAI choice index 0, whatever the block
// index.
type anthropicStreamState struct {
	id           string
	model        string
	inputTokens  int
	outputTokens int
	blockIndex   int
	toolCallID   string
}

// AnthropicToOpenAIStream converts a channel of decoded Anthropic SSE
// events into a channel of OpenAI-shaped ChatChunks. It is a state
// machine: message_start seeds id/model/usage, content_block_delta
// emits one chunk per delta (content text, or — unlike the system this
// is grounded on — a proper tool_calls delta for input_json_delta
// fragments rather than collapsing them into plain text), and
// message_stop emits the terminal chunk with finish_reason and usage.
func AnthropicToOpenAIStream(ctx context.Context, in <-chan anthropic.StreamEvent) <-chan openai.ChatChunk {
	out := make(chan openai.ChatChunk)

	go func() {
		defer close(out)
		var st anthropicStreamState

		emit := func(c openai.ChatChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for event := range in {
			switch event.Type {
			case anthropic.EventMessageStart:
				if event.Message != nil {
					st.id = event.Message.ID
					st.model = event.Message.Model
					st.inputTokens = event.Message.Usage.InputTokens
					st.outputTokens = event.Message.Usage.OutputTokens
				}
				if !emit(openai.ChatChunk{
					ID: st.id, Object: "chat.completion.chunk", Created: now(), Model: st.model,
					Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Role: "assistant"}}},
				}) {
					return
				}

			case anthropic.EventContentBlockStart:
				st.blockIndex = event.Index
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					st.toolCallID = event.ContentBlock.ID
					if !emit(openai.ChatChunk{
						ID: st.id, Object: "chat.completion.chunk", Created: now(), Model: st.model,
						Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{
							ToolCalls: []openai.ToolCall{{
								ID: event.ContentBlock.ID, Type: "function",
								Function: openai.FunctionCall{Name: event.ContentBlock.Name},
							}},
						}}},
					}) {
						return
					}
				}

			case anthropic.EventContentBlockDelta:
				if event.Delta == nil {
					continue
				}
				var delta openai.Delta
				switch event.Delta.Type {
				case anthropic.DeltaTypeText:
					delta = openai.Delta{Content: event.Delta.Text}
				case anthropic.DeltaTypeJSON:
					delta = openai.Delta{ToolCalls: []openai.ToolCall{{
						ID: st.toolCallID, Type: "function",
						Function: openai.FunctionCall{Arguments: event.Delta.PartialJSON},
					}}}
				default:
					continue
				}
				if !emit(openai.ChatChunk{
					ID: st.id, Object: "chat.completion.chunk", Created: now(), Model: st.model,
					Choices: []openai.ChunkChoice{{Index: 0, Delta: delta}},
				}) {
					return
				}

			case anthropic.EventMessageDelta:
				if event.Usage != nil {
					st.outputTokens += event.Usage.OutputTokens
				}

			case anthropic.EventMessageStop:
				total := &openai.Usage{
					PromptTokens:     st.inputTokens,
					CompletionTokens: st.outputTokens,
					TotalTokens:      st.inputTokens + st.outputTokens,
				}
				emit(openai.ChatChunk{
					ID: st.id, Object: "chat.completion.chunk", Created: now(), Model: st.model,
					Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{}, FinishReason: "stop"}},
					Usage:   total,
				})
				return

			case anthropic.EventError_:
				return

			case anthropic.EventPing, anthropic.EventContentBlockStop:
				continue
			}
		}
	}()

	return out
}

// AnthropicToLegacyOpenAIStream is the legacy-completions sibling of
// AnthropicToOpenAIStream: it emits the flat `choices[0].text` shape
// instead of `choices[0].delta.content`, used for FIM/autocomplete
// clients talking the pre-chat completions protocol.
func AnthropicToLegacyOpenAIStream(ctx context.Context, in <-chan anthropic.StreamEvent) <-chan openai.LegacyCompletion {
	out := make(chan openai.LegacyCompletion)

	go func() {
		defer close(out)
		var id, model string
		var inputTokens, outputTokens int

		emit := func(c openai.LegacyCompletion) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for event := range in {
			switch event.Type {
			case anthropic.EventMessageStart:
				if event.Message != nil {
					id = event.Message.ID
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
					outputTokens = event.Message.Usage.OutputTokens
				}
				if !emit(openai.LegacyCompletion{
					ID: id, Object: "text_completion", Created: now(), Model: model,
					Choices: []openai.LegacyMessage{{Text: ""}},
				}) {
					return
				}

			case anthropic.EventMessageDelta:
				if event.Usage != nil {
					outputTokens += event.Usage.OutputTokens
				}
				if !emit(openai.LegacyCompletion{
					ID: id, Object: "text_completion", Created: now(), Model: model,
					Choices: []openai.LegacyMessage{{Text: ""}},
				}) {
					return
				}

			case anthropic.EventContentBlockStart:
				if !emit(openai.LegacyCompletion{
					ID: id, Object: "text_completion", Created: now(), Model: model,
					Choices: []openai.LegacyMessage{{Text: ""}},
				}) {
					return
				}

			case anthropic.EventContentBlockDelta:
				if event.Delta == nil {
					continue
				}
				var text string
				switch event.Delta.Type {
				case anthropic.DeltaTypeText:
					text = event.Delta.Text
				case anthropic.DeltaTypeJSON:
					// Only expected on FIM-shaped calls. Legacy completions
					// have no tool_calls shape, so the partial JSON is
					// surfaced as literal text, matching how a FIM
					// client would have asked for raw completion text.
					text = event.Delta.PartialJSON
				default:
					continue
				}
				if !emit(openai.LegacyCompletion{
					ID: id, Object: "text_completion", Created: now(), Model: model,
					Choices: []openai.LegacyMessage{{Text: text}},
				}) {
					return
				}

			case anthropic.EventMessageStop:
				res := openai.LegacyCompletion{
					ID: id, Object: "text_completion", Created: now(), Model: model,
					Choices: []openai.LegacyMessage{{Text: "", FinishReason: "stop"}},
				}
				if inputTokens != 0 || outputTokens != 0 {
					res.Usage = &openai.Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					}
				}
				emit(res)
				return

			case anthropic.EventError_, anthropic.EventPing, anthropic.EventContentBlockStop:
				continue
			}
		}
	}()

	return out
}

func now() int64 { return timeNowUnix() }

// timeNowUnix is a thin indirection over time.Now().Unix() so tests that
// need deterministic chunk timestamps can swap it out.
var timeNowUnix = func() int64 { return time.Now().Unix() }
