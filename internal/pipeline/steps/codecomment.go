package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/pipeline"
)

// codeBlockFenceRe recognizes a fenced code block, optionally tagged with
// a language and/or a filename — IDE integrations commonly send headers
// shaped like "```py path/to/file.py (10-20)" alongside the plainer
// "```python" form.
var codeBlockFenceRe = regexp.MustCompile(
	`(?s)` + "```" + `(?:([a-zA-Z0-9_+-]+)\s+)?(?:([^\s(\n]+))?(?:\s+\([0-9]+-[0-9]+\))?\s*\n(.*?)` + "```")

var languageByTag = map[string]string{
	"py": "python", "js": "javascript", "ts": "javascript", "tsx": "javascript",
	"go": "go", "rs": "rust", "java": "java",
	"python": "python", "javascript": "javascript", "typescript": "javascript", "rust": "rust",
}

var languageByExt = map[string]string{
	".py": "python", ".js": "javascript", ".ts": "javascript", ".tsx": "javascript",
	".go": "go", ".rs": "rust", ".java": "java",
}

var ecosystemByLanguage = map[string]string{
	"python": "pypi", "javascript": "npm", "go": "go", "rust": "crates", "java": "maven",
}

func languageFromTag(tag string) (string, bool) {
	lang, ok := languageByTag[strings.ToLower(tag)]
	return lang, ok
}

func languageFromFilename(name string) (string, bool) {
	lower := strings.ToLower(name)
	for ext, lang := range languageByExt {
		if strings.HasSuffix(lower, ext) {
			return lang, true
		}
	}
	return "", false
}

// extractCodeSnippets scans text for fenced code blocks and classifies
// each one's language from its tag, its filename, or the filename's
// extension, in that order. Unlike the original, it never falls back to
// guessing a language from bare code content (no pygments equivalent is
// wired into codegate's Go ambient stack) — an unclassifiable block is
// still captured, just with Language left empty, which simply means no
// package-import check runs against it.
func extractCodeSnippets(text string) []pipeline.CodeSnippet {
	var out []pipeline.CodeSnippet
	for _, m := range codeBlockFenceRe.FindAllStringSubmatch(text, -1) {
		tag, filename, content := m[1], m[2], m[3]

		var lang string
		if filename != "" && tag == "" && !strings.Contains(filename, ".") {
			// A single bare word right after the fence is a language
			// identifier, not a filename (the "```python\n...\n```" form).
			if l, ok := languageFromTag(filename); ok {
				lang = l
			}
			filename = ""
		} else {
			if tag != "" {
				lang, _ = languageFromTag(tag)
			}
			if lang == "" && filename != "" {
				lang, _ = languageFromFilename(filename)
			}
		}
		out = append(out, pipeline.CodeSnippet{Filename: filename, Language: lang, Content: content})
	}
	return out
}

// importPatterns extracts the top-level packages a code block imports,
// one pattern per language extract_code_snippets recognizes. This is a
// regex stand-in for the original's PackageExtractor, which walks a
// real per-language AST/import parser.
var importPatterns = map[string]*regexp.Regexp{
	"python":     regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([A-Za-z0-9_\.]+)`),
	"javascript": regexp.MustCompile(`(?:require\(\s*['"]|from\s+['"])([^'"]+)['"]`),
	"go":         regexp.MustCompile(`"([A-Za-z0-9_.\-/]+)"`),
	"rust":       regexp.MustCompile(`(?m)^\s*use\s+([A-Za-z0-9_:]+)`),
	"java":       regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z0-9_.]+);`),
}

func extractImports(language, code string) []string {
	re, ok := importPatterns[language]
	if !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(code, -1) {
		name := strings.SplitN(m[1], ".", 2)[0]
		name = strings.SplitN(name, "/", 2)[0]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// CodeCommentStep is the output-side step that appends a warning comment
// right after a fenced code block finishes streaming, whenever any
// package it imports is flagged by the package index as malicious or
// archived. Unlike SecretsUnredact/PIIUnredact, which key their
// pause/flush decision on a placeholder marker, this step keys it on
// fence completion: it accumulates every chunk it has seen and compares
// the snippet count against what it saw last round, exactly as the
// original compares len(snippets) against context.snippets.
type CodeCommentStep struct {
	pctx  *pipeline.Context
	Index PackageIndex

	content strings.Builder
	seen    int
}

// NewCodeCommentStep binds the step to the request's Context (for
// alerting) and a package index to check extracted imports against.
func NewCodeCommentStep(pctx *pipeline.Context, index PackageIndex) *CodeCommentStep {
	return &CodeCommentStep{pctx: pctx, Index: index}
}

func (c *CodeCommentStep) Name() string { return "code-comment" }

func (c *CodeCommentStep) ProcessChunk(ctx context.Context, chunk string, octx *pipeline.OutputContext) ([]string, error) {
	if chunk == "" {
		return []string{chunk}, nil
	}
	c.content.WriteString(chunk)

	snippets := extractCodeSnippets(c.content.String())
	if len(snippets) <= c.seen {
		return []string{chunk}, nil
	}
	last := snippets[len(snippets)-1]
	c.seen = len(snippets)
	octx.Snippets = append(octx.Snippets, last)

	comment, err := c.snippetComment(ctx, last)
	if err != nil {
		return nil, fmt.Errorf("steps: code-comment: %w", err)
	}
	if comment == "" {
		return []string{chunk}, nil
	}

	before, after := splitChunkAtCodeEnd(chunk)
	var out []string
	if before != "" {
		out = append(out, before)
	}
	out = append(out, comment)
	if after != "" {
		out = append(out, after)
	}
	return out, nil
}

func (c *CodeCommentStep) snippetComment(ctx context.Context, snippet pipeline.CodeSnippet) (string, error) {
	if c.Index == nil || snippet.Language == "" {
		return "", nil
	}
	libs := extractImports(snippet.Language, snippet.Content)
	if len(libs) == 0 {
		return "", nil
	}

	found, err := c.Index.Lookup(ctx, ecosystemByLanguage[snippet.Language], libs)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", nil
	}

	names := make([]string, 0, len(found))
	var warnings strings.Builder
	for _, p := range found {
		names = append(names, "`"+p.Name+"`")
		fmt.Fprintf(&warnings, "- The package `%s` is marked as **%s**.\n", p.Name, p.Status)
	}

	comment := fmt.Sprintf("\n\nWarning: codegate detected one or more potentially malicious or archived packages: %s\n",
		strings.Join(names, ", "))
	comment += "\n### Warnings\n" + warnings.String()

	if c.pctx != nil {
		snippetCopy := snippet
		c.pctx.AddAlert(pipeline.Alert{
			ID: uuid.NewString(), PromptID: c.pctx.PromptID,
			TriggerType: c.Name(), Category: pipeline.SeverityCritical, Trigger: comment,
			CodeSnippet: &snippetCopy,
		})
	}
	return comment, nil
}

// splitChunkAtCodeEnd splits content at the first closing code fence
// line, returning everything up to and including it, and everything
// after. If no closing fence is present, all of content is "before".
func splitChunkAtCodeEnd(content string) (before, after string) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "```" {
			return strings.Join(lines[:i+1], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return content, ""
}
