package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFIMRequestURL(t *testing.T) {
	cases := map[string]bool{
		"/v1/chat/completions": false,
		"/v1/completions":      true,
		"/api/generate":        true,
		"/api/chat":            false,
	}
	for path, want := range cases {
		assert.Equal(t, want, isFIMRequestURL(path), path)
	}
}

func TestIsFIMRequestBody_AllFourTagsPresentIsFIM(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "<QUERY>fn </QUERY><COMPLETION>foo() {}</COMPLETION>"},
	}}
	assert.True(t, isFIMRequestBody(body))
}

func TestIsFIMRequestBody_MissingTagIsNotFIM(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "<QUERY>fn </QUERY> no completion tag here"},
	}}
	assert.False(t, isFIMRequestBody(body))
}

func TestIsFIMRequestBody_NoMessagesIsNotFIM(t *testing.T) {
	assert.False(t, isFIMRequestBody(map[string]any{}))
}

func TestIsFIMRequestBody_FirstMessageWithNoTextBlocksIsVacuouslyTrue(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": []any{
			map[string]any{"type": "tool_use", "id": "t1"},
		}},
	}}
	assert.True(t, isFIMRequestBody(body))
}

func TestIsFIMRequestBody_ArrayContentWithAllTagsIsFIM(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": []any{
			map[string]any{"type": "text", "text": "<QUERY>fn </QUERY><COMPLETION>foo() {}</COMPLETION>"},
		}},
	}}
	assert.True(t, isFIMRequestBody(body))
}

func TestIsFIMRequest_ExemptToolOverridesURLAndBody(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "cline: <QUERY></QUERY><COMPLETION></COMPLETION>"},
	}}
	assert.False(t, IsFIMRequest("/v1/completions", body))
}

func TestIsFIMRequest_URLWins(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "just write a function"},
	}}
	assert.True(t, IsFIMRequest("/api/generate", body))
}

func TestIsFIMRequest_FallsBackToBodyCheck(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "<QUERY>fn </QUERY><COMPLETION>foo() {}</COMPLETION>"},
	}}
	assert.True(t, IsFIMRequest("/v1/chat/completions", body))
}

func TestIsFIMRequest_ChatRequestIsNotFIM(t *testing.T) {
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "write me a haiku"},
	}}
	assert.False(t, IsFIMRequest("/v1/chat/completions", body))
}

func TestPromptText_ConcatenatesMessagesAndSystem(t *testing.T) {
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hello"},
		},
		"system": "be helpful",
	}
	got := promptText(body)
	assert.Contains(t, got, "hello")
	assert.Contains(t, got, "be helpful")
}
