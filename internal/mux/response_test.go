package mux

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

func TestAccumulateChat_ConcatenatesDeltasInOrder(t *testing.T) {
	chunks := []openai.ChatChunk{
		{ID: "1", Model: "gpt-4", Created: 100, Choices: []openai.ChunkChoice{
			{Index: 0, Delta: openai.Delta{Role: "assistant"}},
		}},
		{Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: "Hello, "}}}},
		{Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: "world"}, FinishReason: "stop"}}},
	}

	resp := accumulateChat(chunks)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, "gpt-4", resp.Model)
	assert.Equal(t, int64(100), resp.Created)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)

	var text string
	require.NoError(t, json.Unmarshal(resp.Choices[0].Message.Content, &text))
	assert.Equal(t, "Hello, world", text)
}

func TestAccumulateChat_PreservesMultipleChoiceOrder(t *testing.T) {
	chunks := []openai.ChatChunk{
		{Choices: []openai.ChunkChoice{{Index: 1, Delta: openai.Delta{Content: "b"}}}},
		{Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: "a"}}}},
	}

	resp := accumulateChat(chunks)
	require.Len(t, resp.Choices, 2)
	assert.Equal(t, 1, resp.Choices[0].Index)
	assert.Equal(t, 0, resp.Choices[1].Index)
}

func TestAccumulateChat_CapturesLastUsage(t *testing.T) {
	chunks := []openai.ChatChunk{
		{Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: "a"}}}},
		{Usage: &openai.Usage{TotalTokens: 42}, Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: "b"}}}},
	}

	resp := accumulateChat(chunks)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
}

func TestAccumulateChat_EmptyInputProducesEmptyChoices(t *testing.T) {
	resp := accumulateChat(nil)
	assert.Empty(t, resp.Choices)
	assert.Equal(t, "chat.completion", resp.Object)
}

func TestAccumulateLegacy_ConcatenatesTextInOrder(t *testing.T) {
	chunks := []openai.LegacyCompletion{
		{ID: "c1", Model: "code-davinci", Choices: []openai.LegacyMessage{{Index: 0, Text: "func "}}},
		{Choices: []openai.LegacyMessage{{Index: 0, Text: "main() {}", FinishReason: "stop"}}},
	}

	resp := accumulateLegacy(chunks)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "func main() {}", resp.Choices[0].Text)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestJSONContent_WrapsBareStringAsJSON(t *testing.T) {
	raw := jsonContent(`has "quotes" inside`)
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, `has "quotes" inside`, s)
}
