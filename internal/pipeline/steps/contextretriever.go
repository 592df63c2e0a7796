package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/common"
)

// PackageInfo describes one entry returned by a PackageIndex lookup: a
// known-malicious or archived package the model should be warned about.
type PackageInfo struct {
	Name        string
	Ecosystem   string
	Status      string // e.g. "malicious", "archived", "deprecated"
	Description string
}

// PackageIndex looks up packages by name within an ecosystem. The
// implementation in internal/packageindex is an in-memory lookup table
// with exact name matching; tests use in-memory fakes.
type PackageIndex interface {
	Lookup(ctx context.Context, ecosystem string, packages []string) ([]PackageInfo, error)
}

// packageTokenRe extracts import/require-style package references from
// free text: "import requests", "require('left-pad')", "pip install X",
// "npm install X@1.2.3". This is a deliberately simplified, regex-only
// stand-in for the original's second LLM call that classifies ecosystem
// and package names from the user's prose; see DESIGN.md for why a
// second model round-trip was not carried over.
var packageTokenRe = regexp.MustCompile(
	`(?i)(?:(?:import|from|pip install|npm install|go get|cargo add)\s+['"]?|require\(\s*['"])([A-Za-z0-9_\-./@]+)`)

// ContextRetriever is the input-side step that extracts package names
// referenced in the last user message, looks them up against a
// malicious/archived-package index, and injects what it finds as extra
// context ahead of the user's own query text.
type ContextRetriever struct {
	Index PackageIndex
	// Ecosystem is used when the step has no ecosystem classifier of its
	// own; codegate's Go ambient stack has no package-ecosystem detector,
	// so callers configure the ecosystem the running gateway mostly
	// serves (e.g. "npm", "pypi").
	Ecosystem string
	// Metrics, if set, receives a count of every malicious package this
	// step flags. Left nil in deployments/tests that don't wire Prometheus.
	Metrics *metrics.Metrics
}

func (c *ContextRetriever) Name() string { return "codegate-context-retriever" }

func (c *ContextRetriever) Process(ctx context.Context, req common.Request, pctx *pipeline.Context) (pipeline.InputResult, error) {
	msg, idx, ok := common.LastUserMessage(req.Messages())
	if !ok || c.Index == nil {
		return pipeline.Continue(req), nil
	}
	text := flatten(msg)
	if text == "" {
		return pipeline.Continue(req), nil
	}

	packages := extractPackageNames(text)
	if len(packages) == 0 {
		return pipeline.Continue(req), nil
	}

	found, err := c.Index.Lookup(ctx, c.Ecosystem, packages)
	if err != nil {
		return pipeline.InputResult{}, fmt.Errorf("steps: package lookup: %w", err)
	}

	var contextStr string
	if len(found) == 0 {
		contextStr = "codegate did not find any malicious or archived packages."
	} else {
		var b strings.Builder
		for _, p := range found {
			fmt.Fprintf(&b, "package=%s ecosystem=%s status=%s description=%s\n", p.Name, p.Ecosystem, p.Status, p.Description)
			pctx.AddAlert(pipeline.Alert{
				ID: uuid.NewString(), PromptID: pctx.PromptID,
				TriggerType: c.Name(), Category: pipeline.SeverityCritical,
				Trigger: fmt.Sprintf("%s (%s): %s", p.Name, p.Ecosystem, p.Status),
			})
			if p.Status == "malicious" {
				pctx.SetBadPackagesFound()
				if c.Metrics != nil {
					c.Metrics.BadPackagesFound.Inc()
				}
			}
		}
		contextStr = b.String()
	}

	msgs := req.Messages()
	for _, content := range msgs[idx].Contents() {
		if t, ok := content.GetText(); ok {
			content.SetText(fmt.Sprintf("Context: %s\n\nQuery: %s", contextStr, t))
			break
		}
	}
	return pipeline.Continue(req), nil
}

func extractPackageNames(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range packageTokenRe.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(strings.TrimSuffix(m[1], "'"))
		name = strings.SplitN(name, "@", 2)[0]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
