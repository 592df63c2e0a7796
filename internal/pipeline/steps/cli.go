package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/common"
)

const cliHelpText = `## codegate CLI

**Usage**: ` + "`codegate <command> [args]`" + `

Available commands:
- ` + "`version`" + `: show the running codegate version
- ` + "`workspace`" + `: list or switch the active workspace
- ` + "`custom-instructions`" + `: echo the given text with the active workspace's name (the text is not stored)
`

const cliNotFoundText = "Command not found. Use `codegate -h` to see available commands."

var cliLeadingTokenRe = regexp.MustCompile(`(?i)^codegate(?:\s+(.*))?`)
var xmlTagRe = regexp.MustCompile(`<[^>]+>`)

// CLIRunner executes one recognized codegate CLI subcommand and returns
// its text output. Concrete commands (version/workspace/custom-instructions)
// are wired in by cmd/codegate against the control-plane store; this
// step only owns detection and dispatch.
type CLIRunner interface {
	Run(ctx context.Context, args []string) (string, error)
}

// CodegateCli is the input-side step that intercepts a user message
// beginning with "codegate" and short-circuits the pipeline with the
// command's output instead of forwarding the request upstream.
//
// Cline wraps the user's actual text inside an XML envelope (tool-call
// tags around the real instruction), so the "codegate" check is applied
// to the text following the first XML tag rather than to the raw
// message when the client is Cline.
type CodegateCli struct {
	Commands map[string]CLIRunner
}

func (c *CodegateCli) Name() string { return "codegate-cli" }

func (c *CodegateCli) Process(ctx context.Context, req common.Request, pctx *pipeline.Context) (pipeline.InputResult, error) {
	msg, _, ok := common.LastUserMessage(req.Messages())
	if !ok {
		return pipeline.Continue(req), nil
	}
	text := strings.TrimSpace(flatten(msg))

	isCline := pctx.ClientType == "cline"
	if isCline {
		if loc := xmlTagRe.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(xmlTagRe.ReplaceAllString(text[loc[0]:], ""))
		} else {
			return pipeline.Continue(req), nil
		}
	}

	match := cliLeadingTokenRe.FindStringSubmatch(text)
	if match == nil {
		return pipeline.Continue(req), nil
	}

	out, err := c.dispatch(ctx, strings.TrimSpace(match[1]))
	if err != nil {
		return pipeline.InputResult{}, fmt.Errorf("steps: codegate-cli: %w", err)
	}
	if isCline {
		out = fmt.Sprintf("<attempt_completion><result>%s</result></attempt_completion>\n", out)
	}
	return pipeline.Shortcut(c.Name(), out, req.GetModel()), nil
}

func (c *CodegateCli) dispatch(ctx context.Context, rest string) (string, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return cliHelpText, nil
	}
	if fields[0] == "-h" {
		return cliHelpText, nil
	}
	runner, ok := c.Commands[fields[0]]
	if !ok {
		return cliNotFoundText, nil
	}
	return runner.Run(ctx, fields[1:])
}

func flatten(m common.Message) string {
	var parts []string
	for _, c := range m.Contents() {
		if t, ok := c.GetText(); ok {
			parts = append(parts, t)
		}
	}
	return common.JoinNonEmpty(parts, "\n")
}
