// Package matcher implements the concrete Matcher kinds (component I):
// catch-all, filename-glob, request-type+filename, and (in persona.go)
// persona-description embedding-similarity matching.
package matcher

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/howard-nolan/codegate/internal/rules"
)

// FilenameExtractor pulls the set of filenames referenced in a mux
// request body, in a client-specific way. codegate's Go port collapses
// the original's per-client factory (Cline, Continue, Copilot, Open
// Interpreter each have their own code-location convention) down to one
// extractor that recognizes the common fenced-code-block header
// ("```lang path/to/file (10-20)") every one of those clients also
// emits in the message body itself; see DESIGN.md for the simplification.
type FilenameExtractor interface {
	ExtractFilenames(clientType string, body map[string]any) ([]string, error)
}

var fencedFilenameRe = regexp.MustCompile(
	"```(?:[a-zA-Z0-9_+-]+\\s+)?([^\\s(\\n`]+\\.[a-zA-Z0-9_]+)")

// DefaultFilenameExtractor scans every message's text content in body
// for fenced-code-block filename headers.
type DefaultFilenameExtractor struct{}

func (DefaultFilenameExtractor) ExtractFilenames(_ string, body map[string]any) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, text := range messageTexts(body, nil) {
		for _, m := range fencedFilenameRe.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out, nil
}

// messageTexts walks body["messages"] (OpenAI/Ollama shape) collecting
// the text of every message whose role is in roles, or every message's
// text if roles is nil. Content may be a plain string or a list of
// {"type":"text","text":...} blocks (OpenAI's content-block shape).
func messageTexts(body map[string]any, roles map[string]bool) []string {
	rawMsgs, _ := body["messages"].([]any)
	var out []string
	for _, rawMsg := range rawMsgs {
		msg, ok := rawMsg.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		if roles != nil && !roles[role] {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			out = append(out, content)
		case []any:
			for _, block := range content {
				bm, ok := block.(map[string]any)
				if !ok {
					continue
				}
				if t, _ := bm["type"].(string); t == "text" {
					if text, _ := bm["text"].(string); text != "" {
						out = append(out, text)
					}
				}
			}
		}
	}
	if sysPrompt, ok := body["system"].(string); ok && sysPrompt != "" && (roles == nil || roles["system"]) {
		out = append(out, sysPrompt)
	}
	return out
}

// CatchAll matches every request. It is the conventional last-priority
// fallback rule in a workspace's list.
type CatchAll struct {
	Route        rules.ModelRoute
	RulePriority int
}

func (c *CatchAll) Name() string                                        { return "catch-all" }
func (c *CatchAll) Priority() int                                       { return c.RulePriority }
func (c *CatchAll) Destination() rules.ModelRoute                       { return c.Route }
func (c *CatchAll) Match(context.Context, rules.ThingToMatch) (bool, error) { return true, nil }

// FilenameMatch matches when any filename extracted from the request
// body satisfies the configured glob pattern. An empty pattern matches
// everything (spec §4.I: "Empty blob = match all").
type FilenameMatch struct {
	Route        rules.ModelRoute
	RulePriority int
	Pattern      string
	Extractor    FilenameExtractor
}

func (f *FilenameMatch) Name() string              { return "filename-match" }
func (f *FilenameMatch) Priority() int              { return f.RulePriority }
func (f *FilenameMatch) Destination() rules.ModelRoute { return f.Route }

func (f *FilenameMatch) Match(_ context.Context, t rules.ThingToMatch) (bool, error) {
	if f.Pattern == "" {
		return true, nil
	}
	return f.matchesAnyFilename(t)
}

func (f *FilenameMatch) matchesAnyFilename(t rules.ThingToMatch) (bool, error) {
	extractor := f.Extractor
	if extractor == nil {
		extractor = DefaultFilenameExtractor{}
	}
	filenames, err := extractor.ExtractFilenames(t.ClientType, t.Body)
	if err != nil {
		return false, fmt.Errorf("matcher: extracting filenames: %w", err)
	}
	for _, name := range filenames {
		ok, err := filepath.Match(f.Pattern, name)
		if err != nil {
			return false, fmt.Errorf("matcher: invalid glob pattern %q: %w", f.Pattern, err)
		}
		if ok {
			return true, nil
		}
		// Also try against the base name alone, since a pattern like
		// "*.ts" is meant to match regardless of directory depth.
		if ok, _ := filepath.Match(f.Pattern, filepath.Base(name)); ok {
			return true, nil
		}
	}
	return false, nil
}

// fimRequestType and chatRequestType mirror the matcher_type strings the
// original stores on a persisted mux rule.
const (
	fimRequestType  = "fim_filename"
	chatRequestType = "chat_filename"
)

// RequestTypeAndFilename matches FilenameMatch's condition AND that the
// request's FIM-ness agrees with the configured request type.
type RequestTypeAndFilename struct {
	FilenameMatch
	// RequestType is fimRequestType or chatRequestType.
	RequestType string
}

func (r *RequestTypeAndFilename) Name() string { return "request-type-and-filename" }

func (r *RequestTypeAndFilename) Match(ctx context.Context, t rules.ThingToMatch) (bool, error) {
	wantFIM := r.RequestType == fimRequestType
	if wantFIM != t.IsFIMRequest {
		return false, nil
	}
	return r.FilenameMatch.Match(ctx, t)
}

// NewFIMFilenameMatch and NewChatFilenameMatch are convenience
// constructors fixing RequestType to the two values a persisted rule's
// matcher_type can carry.
func NewFIMFilenameMatch(route rules.ModelRoute, priority int, pattern string, extractor FilenameExtractor) *RequestTypeAndFilename {
	return &RequestTypeAndFilename{
		FilenameMatch: FilenameMatch{Route: route, RulePriority: priority, Pattern: pattern, Extractor: extractor},
		RequestType:   fimRequestType,
	}
}

func NewChatFilenameMatch(route rules.ModelRoute, priority int, pattern string, extractor FilenameExtractor) *RequestTypeAndFilename {
	return &RequestTypeAndFilename{
		FilenameMatch: FilenameMatch{Route: route, RulePriority: priority, Pattern: pattern, Extractor: extractor},
		RequestType:   chatRequestType,
	}
}

// userMessageRoles/systemMessageRoles select which messageTexts call a
// persona matcher variant uses.
var (
	userMessageRoles   = map[string]bool{"user": true}
	systemMessageRoles = map[string]bool{"system": true, "developer": true}
)

func userQueries(body map[string]any) []string   { return messageTexts(body, userMessageRoles) }
func systemQueries(body map[string]any) []string { return messageTexts(body, systemMessageRoles) }
