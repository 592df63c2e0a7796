package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

func TestSystemPrompt_NoopWhenNothingTriggeredAndNoInstructions(t *testing.T) {
	req := &openai.ChatRequest{}
	pctx := newTestContext(t)
	step := &SystemPrompt{BasePrompt: "base"}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	assert.Nil(t, res.Request.GetSystemPrompt())
}

func TestSystemPrompt_InjectsBasePromptWhenSecretsFound(t *testing.T) {
	req := &openai.ChatRequest{}
	pctx := newTestContext(t)
	pctx.SetSecretsFound()
	step := &SystemPrompt{BasePrompt: "codegate redacted something"}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	prompts := res.Request.GetSystemPrompt()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "codegate redacted something")
	assert.Contains(t, prompts[0], "REDACTED<...>")
}

func TestSystemPrompt_InjectsWorkspaceInstructionsEvenWithoutTrigger(t *testing.T) {
	req := &openai.ChatRequest{}
	pctx := newTestContext(t)
	step := &SystemPrompt{WorkspaceInstructions: "always use tabs"}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	prompts := res.Request.GetSystemPrompt()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "always use tabs")
}

func TestSystemPrompt_AddsClientSpecificFragment(t *testing.T) {
	req := &openai.ChatRequest{}
	pctx := newTestContext(t)
	pctx.ClientType = "cline"
	step := &SystemPrompt{
		BasePrompt:    "base",
		ClientPrompts: map[string]string{"cline": "wrap thinking in tags"},
	}
	pctx.SetBadPackagesFound()

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	prompts := res.Request.GetSystemPrompt()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "wrap thinking in tags")
}
