package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_GetPrompt_ReturnsLastUserMessageText(t *testing.T) {
	req := &ChatRequest{MessagesList: []Message{
		{RoleName: "system", Content: json.RawMessage(`"be terse"`)},
		{RoleName: "user", Content: json.RawMessage(`"hello"`)},
		{RoleName: "assistant", Content: json.RawMessage(`"hi there"`)},
		{RoleName: "user", Content: json.RawMessage(`"what time is it"`)},
	}}
	assert.Equal(t, "what time is it", req.GetPrompt("default"))
}

func TestChatRequest_GetPrompt_FallsBackToDefaultWhenNoUserMessage(t *testing.T) {
	req := &ChatRequest{MessagesList: []Message{{RoleName: "system", Content: json.RawMessage(`"only system"`)}}}
	assert.Equal(t, "default", req.GetPrompt("default"))
}

func TestChatRequest_SetSystemPrompt_ReplacesExistingAndPrepends(t *testing.T) {
	req := &ChatRequest{MessagesList: []Message{
		{RoleName: "system", Content: json.RawMessage(`"old prompt"`)},
		{RoleName: "user", Content: json.RawMessage(`"hi"`)},
	}}
	req.SetSystemPrompt("new prompt")

	require.Len(t, req.MessagesList, 2)
	assert.Equal(t, "system", req.MessagesList[0].RoleName)
	assert.Equal(t, "new prompt", req.MessagesList[0].flatText())
	assert.Equal(t, "user", req.MessagesList[1].RoleName)
}

func TestChatRequest_AddSystemPrompt_JoinsWithExistingMessage(t *testing.T) {
	req := &ChatRequest{MessagesList: []Message{
		{RoleName: "system", Content: json.RawMessage(`"base rules"`)},
	}}
	req.AddSystemPrompt("extra rules", "\n")

	require.Len(t, req.MessagesList, 1)
	assert.Equal(t, "base rules\nextra rules", req.MessagesList[0].flatText())
}

func TestChatRequest_AddSystemPrompt_PrependsWhenNoneExists(t *testing.T) {
	req := &ChatRequest{MessagesList: []Message{
		{RoleName: "user", Content: json.RawMessage(`"hi"`)},
	}}
	req.AddSystemPrompt("injected", "\n")

	require.Len(t, req.MessagesList, 2)
	assert.Equal(t, "system", req.MessagesList[0].RoleName)
	assert.Equal(t, "injected", req.MessagesList[0].flatText())
}

func TestMessage_Contents_ParsesBareStringContent(t *testing.T) {
	m := Message{RoleName: "user", Content: json.RawMessage(`"plain text"`)}
	contents := m.Contents()
	require.Len(t, contents, 1)
	text, ok := contents[0].GetText()
	require.True(t, ok)
	assert.Equal(t, "plain text", text)
}

func TestMessage_Contents_ParsesArrayContentParts(t *testing.T) {
	m := Message{RoleName: "user", Content: json.RawMessage(`[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]`)}
	contents := m.Contents()
	require.Len(t, contents, 2)
	t1, _ := contents[0].GetText()
	t2, _ := contents[1].GetText()
	assert.Equal(t, "part one", t1)
	assert.Equal(t, "part two", t2)
}

func TestLegacyCompletionRequest_GetPromptFallsBackWhenEmpty(t *testing.T) {
	r := &LegacyCompletionRequest{}
	assert.Equal(t, "def", r.GetPrompt("def"))

	r.Prompt = "func main() {"
	assert.Equal(t, "func main() {", r.GetPrompt("def"))
}

func TestLegacyCompletionRequest_AddSystemPromptPrependsToPrompt(t *testing.T) {
	r := &LegacyCompletionRequest{Prompt: "the rest of the file"}
	r.AddSystemPrompt("injected context", "\n")
	assert.Equal(t, "injected context\nthe rest of the file", r.Prompt)
}

func TestLegacyCompletionRequest_MessagesExposesPromptAsSingleUserMessage(t *testing.T) {
	r := &LegacyCompletionRequest{Prompt: "hello"}
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role())
	text, ok := msgs[0].Contents()[0].GetText()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestChatChunk_RoundTripsThroughJSON(t *testing.T) {
	chunk := ChatChunk{
		ID: "chatcmpl-1", Object: "chat.completion.chunk", Model: "gpt-4",
		Choices: []ChunkChoice{{Delta: Delta{Content: "hi"}}},
	}
	raw, err := json.Marshal(chunk)
	require.NoError(t, err)

	var decoded ChatChunk
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, chunk, decoded)
}
