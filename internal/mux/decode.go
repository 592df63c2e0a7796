package mux

import (
	"context"
	"encoding/json"

	"github.com/howard-nolan/codegate/internal/protocol/anthropic"
	"github.com/howard-nolan/codegate/internal/protocol/ollama"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
	"github.com/howard-nolan/codegate/internal/streamcodec"
)

// decodeOpenAIChatSSE reads an SSE body already shaped as OpenAI chat
// chunks (the openai/vllm/openrouter/llamacpp destinations all speak
// this wire format natively, so no mapper translation is needed).
func decodeOpenAIChatSSE(ctx context.Context, frames <-chan streamcodec.SSEFrame) <-chan openai.ChatChunk {
	out := make(chan openai.ChatChunk)
	go func() {
		defer close(out)
		for f := range frames {
			if f.IsDone() {
				return
			}
			var chunk openai.ChatChunk
			if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// decodeOpenAILegacySSE is decodeOpenAIChatSSE's legacy-completion (FIM)
// counterpart.
func decodeOpenAILegacySSE(ctx context.Context, frames <-chan streamcodec.SSEFrame) <-chan openai.LegacyCompletion {
	out := make(chan openai.LegacyCompletion)
	go func() {
		defer close(out)
		for f := range frames {
			if f.IsDone() {
				return
			}
			var chunk openai.LegacyCompletion
			if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// decodeAnthropicSSE turns raw Anthropic SSE frames into typed
// StreamEvents, for the mapper package to translate into OpenAI chunks.
func decodeAnthropicSSE(ctx context.Context, frames <-chan streamcodec.SSEFrame) <-chan anthropic.StreamEvent {
	out := make(chan anthropic.StreamEvent)
	go func() {
		defer close(out)
		for f := range frames {
			var ev anthropic.StreamEvent
			if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == anthropic.EventMessageStop {
				return
			}
		}
	}()
	return out
}

// decodeOllamaChatNDJSON turns raw Ollama chat NDJSON lines into typed
// chunks, stopping once a line carries "done": true.
func decodeOllamaChatNDJSON(ctx context.Context, lines <-chan string) <-chan ollama.ChatChunk {
	out := make(chan ollama.ChatChunk)
	go func() {
		defer close(out)
		for line := range lines {
			var chunk ollama.ChatChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out
}

// decodeOllamaGenerateNDJSON is decodeOllamaChatNDJSON's /api/generate
// (FIM) counterpart.
func decodeOllamaGenerateNDJSON(ctx context.Context, lines <-chan string) <-chan ollama.GenerateChunk {
	out := make(chan ollama.GenerateChunk)
	go func() {
		defer close(out)
		for line := range lines {
			var chunk ollama.GenerateChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out
}
