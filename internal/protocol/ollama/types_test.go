package ollama

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_SetSystemPrompt_ReplacesAnyExisting(t *testing.T) {
	r := &ChatRequest{MessagesList: []Message{
		{RoleName: "system", Content: "old"},
		{RoleName: "user", Content: "hi"},
	}}
	r.SetSystemPrompt("new")

	require.Len(t, r.MessagesList, 2)
	assert.Equal(t, "system", r.MessagesList[0].RoleName)
	assert.Equal(t, "new", r.MessagesList[0].Content)
}

func TestChatRequest_AddSystemPrompt_PrependsWhenNoneExists(t *testing.T) {
	r := &ChatRequest{MessagesList: []Message{{RoleName: "user", Content: "hi"}}}
	r.AddSystemPrompt("injected", "\n")

	require.Len(t, r.MessagesList, 2)
	assert.Equal(t, "injected", r.MessagesList[0].Content)
}

func TestChatRequest_GetPrompt_ReturnsLastUserMessageContent(t *testing.T) {
	r := &ChatRequest{MessagesList: []Message{
		{RoleName: "user", Content: "first"},
		{RoleName: "assistant", Content: "reply"},
		{RoleName: "user", Content: "second"},
	}}
	assert.Equal(t, "second", r.GetPrompt("def"))
}

func TestGenerateRequest_GetPromptFallsBackWhenEmpty(t *testing.T) {
	r := &GenerateRequest{}
	assert.Equal(t, "def", r.GetPrompt("def"))

	r.Prompt = "def foo():"
	assert.Equal(t, "def foo():", r.GetPrompt("unused"))
}

func TestGenerateRequest_MessagesExposesPromptAsUserMessage(t *testing.T) {
	r := &GenerateRequest{Prompt: "hello"}
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role())
	text, ok := msgs[0].Contents()[0].GetText()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}
