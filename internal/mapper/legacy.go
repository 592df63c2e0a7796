package mapper

import (
	"encoding/json"

	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

// ChatFromLegacyCompletion lifts a flat legacy-completions request (a
// single prompt string) into the chat-completions shape, as a single
// user message. Used when a FIM/autocomplete client speaks the legacy
// protocol but the winning mux route targets a provider that only
// understands chat.
func ChatFromLegacyCompletion(req *openai.LegacyCompletionRequest) *openai.ChatRequest {
	content, _ := json.Marshal(req.Prompt)
	return &openai.ChatRequest{
		Model:        req.Model,
		MessagesList: []openai.Message{{RoleName: "user", Content: content}},
		Stream:       req.Stream,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Stop:         req.Stop,
	}
}

// LegacyCompletionFromChat is the inverse: it collapses a chat request
// into a flat prompt, using the last user message's text. Any system
// prompt is not merged in — callers that need the system prompt
// preserved should inject it into the chat request before calling this
// (the SystemPrompt step always runs before mapping).
func LegacyCompletionFromChat(req *openai.ChatRequest) *openai.LegacyCompletionRequest {
	return &openai.LegacyCompletionRequest{
		Model:       req.Model,
		Prompt:      req.GetPrompt(""),
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
}

// ChatChunkFromLegacyCompletion converts one legacy-completion streaming
// chunk into the chat-completions delta shape.
func ChatChunkFromLegacyCompletion(c openai.LegacyCompletion) openai.ChatChunk {
	out := openai.ChatChunk{ID: c.ID, Object: "chat.completion.chunk", Created: c.Created, Model: c.Model, Usage: c.Usage}
	for _, choice := range c.Choices {
		out.Choices = append(out.Choices, openai.ChunkChoice{
			Index: choice.Index, Delta: openai.Delta{Content: choice.Text}, FinishReason: choice.FinishReason,
		})
	}
	return out
}
