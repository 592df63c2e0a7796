package mux

import (
	"encoding/json"

	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

// accumulateChat folds a sequence of streaming chat chunks into a single
// non-streaming ChatResponse, for clients whose request body set
// "stream": false against a mux destination whose own wire format is
// inherently chunked (Anthropic SSE events, Ollama NDJSON lines). The
// router always talks to upstreams in streaming mode internally (see
// router.go) and only assembles a flat response here, at the edge,
// rather than needing a second non-streaming decode path per provider.
func accumulateChat(chunks []openai.ChatChunk) *openai.ChatResponse {
	resp := &openai.ChatResponse{Object: "chat.completion"}
	texts := map[int]string{}
	finish := map[int]string{}
	order := []int{}
	seen := map[int]bool{}

	for _, c := range chunks {
		if resp.ID == "" {
			resp.ID = c.ID
		}
		if resp.Model == "" {
			resp.Model = c.Model
		}
		if resp.Created == 0 {
			resp.Created = c.Created
		}
		if c.Usage != nil {
			resp.Usage = c.Usage
		}
		for _, ch := range c.Choices {
			if !seen[ch.Index] {
				seen[ch.Index] = true
				order = append(order, ch.Index)
			}
			texts[ch.Index] += ch.Delta.Content
			if ch.FinishReason != "" {
				finish[ch.Index] = ch.FinishReason
			}
		}
	}

	for _, idx := range order {
		resp.Choices = append(resp.Choices, openai.Choice{
			Index:        idx,
			Message:      openai.Message{RoleName: "assistant", Content: jsonContent(texts[idx])},
			FinishReason: finish[idx],
		})
	}
	return resp
}

// accumulateLegacy is accumulateChat's counterpart for legacy completion
// (FIM) streams.
func accumulateLegacy(chunks []openai.LegacyCompletion) *openai.LegacyCompletion {
	resp := &openai.LegacyCompletion{}
	texts := map[int]string{}
	finish := map[int]string{}
	order := []int{}
	seen := map[int]bool{}

	for _, c := range chunks {
		if resp.ID == "" {
			resp.ID = c.ID
		}
		if resp.Model == "" {
			resp.Model = c.Model
		}
		if resp.Created == 0 {
			resp.Created = c.Created
		}
		if c.Usage != nil {
			resp.Usage = c.Usage
		}
		for _, ch := range c.Choices {
			if !seen[ch.Index] {
				seen[ch.Index] = true
				order = append(order, ch.Index)
			}
			texts[ch.Index] += ch.Text
			if ch.FinishReason != "" {
				finish[ch.Index] = ch.FinishReason
			}
		}
	}

	for _, idx := range order {
		resp.Choices = append(resp.Choices, openai.LegacyMessage{
			Index: idx, Text: texts[idx], FinishReason: finish[idx],
		})
	}
	return resp
}

// jsonContent wraps plain text the way openai.Message.Content expects to
// unmarshal it back from (a bare JSON string), since Message.Content is
// stored as raw encoded JSON to support both the string and
// content-block-array shapes on the way in.
func jsonContent(text string) json.RawMessage {
	b, _ := json.Marshal(text)
	return b
}
