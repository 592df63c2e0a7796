package mapper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/protocol/ollama"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

// genToolCallID synthesizes an OpenAI-shaped tool-call id for
// responses coming back from Ollama, which doesn't assign its own
// (Ollama tool calls have no id field at all).
func genToolCallID() string {
	return "call_" + uuid.NewString()[:8]
}

// mapResponseFormat translates OpenAI's response_format into Ollama's
// "format" field: a bare "json" string for json_object mode, or the
// schema itself for json_schema mode.
func mapResponseFormat(rf *openai.ResponseFormat) any {
	if rf == nil {
		return nil
	}
	switch rf.Type {
	case "json_object":
		return "json"
	case "json_schema":
		var schema any
		if len(rf.Schema) > 0 {
			_ = json.Unmarshal(rf.Schema, &schema)
		}
		return schema
	default:
		return nil
	}
}

// buildOptions translates the OpenAI sampling knobs present on req into
// Ollama's flat "options" map. Every key is added only if the caller
// actually set the corresponding field, so Ollama's own defaults apply
// otherwise.
func buildOptions(req *openai.ChatRequest) map[string]any {
	opts := map[string]any{}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	} else if req.MaxCompletion != nil {
		opts["num_predict"] = *req.MaxCompletion
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.Seed != nil {
		opts["seed"] = *req.Seed
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		opts["presence_penalty"] = *req.PresencePenalty
	}
	if req.Stop != nil {
		if stop := mapStopSequences(req.Stop); len(stop) > 0 {
			opts["stop"] = stop
		}
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func convertMessage(m openai.Message) ollama.Message {
	var text string
	for _, c := range m.Contents() {
		if t, ok := c.GetText(); ok {
			if text != "" {
				text += "\n"
			}
			text += t
		}
	}
	out := ollama.Message{RoleName: m.RoleName, Content: text}
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = openAIToolCallsToOllama(m.ToolCalls)
	}
	return out
}

func openAIToolCallsToOllama(calls []openai.ToolCall) []ollama.ToolCall {
	out := make([]ollama.ToolCall, 0, len(calls))
	for _, c := range calls {
		var args map[string]any
		_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
		out = append(out, ollama.ToolCall{Function: ollama.ToolCallFunction{
			Name: c.Function.Name, Arguments: args,
		}})
	}
	return out
}

// openAIToolCallsFromOllama is the inverse: Ollama decodes tool-call
// arguments as a map, OpenAI expects them re-encoded as a JSON string.
func openAIToolCallsFromOllama(calls []ollama.ToolCall) ([]openai.ToolCall, error) {
	out := make([]openai.ToolCall, 0, len(calls))
	for _, c := range calls {
		args, err := json.Marshal(c.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("encoding ollama tool call arguments: %w", err)
		}
		out = append(out, openai.ToolCall{
			ID: genToolCallID(), Type: "function",
			Function: openai.FunctionCall{Name: c.Function.Name, Arguments: string(args)},
		})
	}
	return out, nil
}

// convertTools translates OpenAI tool definitions into Ollama's
// properties-only schema shape. This is a lossy conversion: nested
// schema features beyond top-level required + per-property type/
// description do not survive, matching Ollama's own tool-calling
// surface.
func convertTools(tools []openai.Tool) []ollama.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollama.Tool, 0, len(tools))
	for _, t := range tools {
		params := ollama.ToolFunctionParameters{Type: "object", Properties: map[string]ollama.ToolFunctionProperty{}}
		if t.Function.Parameters != nil {
			if req, ok := t.Function.Parameters["required"].([]any); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						params.Required = append(params.Required, s)
					}
				}
			}
			if props, ok := t.Function.Parameters["properties"].(map[string]any); ok {
				for name, raw := range props {
					prop := ollama.ToolFunctionProperty{}
					if pm, ok := raw.(map[string]any); ok {
						if ty, ok := pm["type"].(string); ok {
							prop.Type = ty
						}
						if desc, ok := pm["description"].(string); ok {
							prop.Description = desc
						}
					}
					params.Properties[name] = prop
				}
			}
		}
		out = append(out, ollama.Tool{
			Type: "function",
			Function: ollama.ToolFunction{
				Name: t.Function.Name, Description: t.Function.Description, Parameters: params,
			},
		})
	}
	return out
}

// OllamaChatFromOpenAI translates an OpenAI chat-completions request
// into an Ollama /api/chat request.
func OllamaChatFromOpenAI(req *openai.ChatRequest) *ollama.ChatRequest {
	messages := make([]ollama.Message, 0, len(req.MessagesList))
	for _, m := range req.MessagesList {
		messages = append(messages, convertMessage(m))
	}
	return &ollama.ChatRequest{
		Model:        req.Model,
		MessagesList: messages,
		Stream:       req.Stream,
		Options:      buildOptions(req),
		Format:       mapResponseFormat(req.ResponseFormat),
		Tools:        convertTools(req.Tools),
	}
}

// OllamaGenerateFromOpenAI builds an Ollama /api/generate (FIM) request
// from an OpenAI chat request, using the last user message's text as the
// flat prompt — generate has no message list, only a single prompt
// string.
func OllamaGenerateFromOpenAI(req *openai.ChatRequest) *ollama.GenerateRequest {
	prompt := req.GetPrompt("")
	return &ollama.GenerateRequest{
		Model:   req.Model,
		Prompt:  prompt,
		Stream:  req.Stream,
		Options: buildOptions(req),
		Format:  mapResponseFormat(req.ResponseFormat),
	}
}

// ---------------------------------------------------------------------
// Ollama -> OpenAI stream conversion
// ---------------------------------------------------------------------

// OpenAIChunkFromOllamaChat converts a channel of decoded Ollama
// /api/chat NDJSON lines into OpenAI-shaped ChatChunks. total_tokens is
// computed as prompt + completion; codegate does not replicate the
// operator-precedence defect that silently drops completion tokens
// whenever prompt_eval_count is present (see DESIGN.md).
func OpenAIChunkFromOllamaChat(ctx context.Context, in <-chan ollama.ChatChunk) (<-chan openai.ChatChunk, <-chan error) {
	out := make(chan openai.ChatChunk)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		for chunk := range in {
			var toolCalls []openai.ToolCall
			if len(chunk.Message.ToolCalls) > 0 {
				calls, err := openAIToolCallsFromOllama(chunk.Message.ToolCalls)
				if err != nil {
					errc <- err
					return
				}
				toolCalls = calls
			}

			out_ := openai.ChatChunk{
				Object: "chat.completion.chunk", Created: now(), Model: chunk.Model,
				Choices: []openai.ChunkChoice{{
					Index: 0,
					Delta: openai.Delta{Content: chunk.Message.Content, ToolCalls: toolCalls},
				}},
			}
			if chunk.Done {
				out_.Choices[0].FinishReason = mapDoneReason(chunk.DoneReason)
				total := chunk.PromptEvalCount + chunk.EvalCount
				out_.Usage = &openai.Usage{
					PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount, TotalTokens: total,
				}
			}

			select {
			case out <- out_:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}

// OpenAIChunkFromOllamaGenerate is the /api/generate (FIM) sibling of
// OpenAIChunkFromOllamaChat, emitting the legacy-completion chunk shape
// since FIM clients speak the completions protocol.
func OpenAIChunkFromOllamaGenerate(ctx context.Context, in <-chan ollama.GenerateChunk) <-chan openai.LegacyCompletion {
	out := make(chan openai.LegacyCompletion)

	go func() {
		defer close(out)
		for chunk := range in {
			c := openai.LegacyCompletion{
				Object: "text_completion", Created: now(), Model: chunk.Model,
				Choices: []openai.LegacyMessage{{Text: chunk.Response}},
			}
			if chunk.Done {
				c.Choices[0].FinishReason = mapDoneReason(chunk.DoneReason)
				total := chunk.PromptEvalCount + chunk.EvalCount
				c.Usage = &openai.Usage{
					PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount, TotalTokens: total,
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func mapDoneReason(reason string) string {
	if reason == "" {
		return "stop"
	}
	return reason
}
