package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/common"
)

// secretsRedactedNotice is appended whenever SecretsRedact found anything
// this round, telling the model its context now contains placeholder
// markers rather than real secret values.
const secretsRedactedNotice = "Secrets detected in this conversation have been redacted. " +
	"Any REDACTED<...> marker you see stands in for a real value; treat it as an opaque token, never invent a replacement for it."

// SystemPrompt is the input-side step that injects (or extends) the
// request's system prompt when any earlier step flagged secrets or
// malicious packages, and additionally layers in a workspace's custom
// instructions and a per-client-type prompt when configured.
//
// It deliberately runs after SecretsRedact/PIIRedact/ContextRetriever in
// the step list, since its trigger condition reads the flags those steps
// set on pctx.
type SystemPrompt struct {
	// BasePrompt is codegate's own boilerplate prompt, injected whenever
	// should-add is true (secrets found or bad packages found).
	BasePrompt string
	// WorkspaceInstructions is the active workspace's custom
	// instructions, or "" if none configured.
	WorkspaceInstructions string
	// ClientPrompts maps a ClientType string to an extra per-client
	// system prompt fragment (e.g. Cline needs different formatting
	// guidance than a generic OpenAI client).
	ClientPrompts map[string]string
}

func (s *SystemPrompt) Name() string { return "system-prompt" }

func (s *SystemPrompt) Process(_ context.Context, req common.Request, pctx *pipeline.Context) (pipeline.InputResult, error) {
	shouldAddBase := pctx.SecretsFound() || pctx.BadPackagesFound()
	if !shouldAddBase && s.WorkspaceInstructions == "" {
		return pipeline.Continue(req), nil
	}

	var prompt string
	appendPart := func(part string) {
		if part == "" {
			return
		}
		if prompt == "" {
			prompt = part
			return
		}
		prompt = fmt.Sprintf("%s\n\nHere are additional instructions:\n\n%s", prompt, part)
	}

	if shouldAddBase {
		appendPart(s.BasePrompt)
	}
	appendPart(s.WorkspaceInstructions)
	if clientPrompt, ok := s.ClientPrompts[pctx.ClientType]; ok {
		appendPart(clientPrompt)
	}
	if pctx.SecretsFound() {
		appendPart(secretsRedactedNotice)
	}

	if prompt == "" {
		return pipeline.Continue(req), nil
	}

	pctx.AddAlert(pipeline.Alert{
		ID: uuid.NewString(), PromptID: pctx.PromptID,
		TriggerType: s.Name(), Category: pipeline.SeverityInfo, Trigger: prompt,
	})
	req.AddSystemPrompt(prompt, "\n\n")
	return pipeline.Continue(req), nil
}
