package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/howard-nolan/codegate/internal/embed"
	"github.com/howard-nolan/codegate/internal/rules"
)

// Cleaning regexes mirror persona.py's _clean_text_for_embedding: strip
// URLs, emails, code, markup and numbers before embedding, so the
// persona's topical content — not its formatting or literal secrets —
// drives the match.
var (
	personaRemoveURLs        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	personaRemoveEmails      = regexp.MustCompile(`\S+@\S+`)
	personaRemoveCodeBlocks  = regexp.MustCompile("(?s)```.*?```")
	personaRemoveInlineCode  = regexp.MustCompile("`[^`]*`")
	personaRemoveHTMLTags    = regexp.MustCompile(`<[^>]+>`)
	personaRemovePunctuation = regexp.MustCompile(`[^\w\s']`)
	personaNormalizeSpace    = regexp.MustCompile(`\s+`)
	personaDecimalNumbers    = regexp.MustCompile(`\b\d+\.\d+\b`)
	personaIntegerNumbers    = regexp.MustCompile(`\b\d+\b`)
)

// cleanForEmbedding applies the same normalization persona.py does so
// vectors computed here are comparable to whatever produced the stored
// persona embedding.
func cleanForEmbedding(text string) string {
	if text == "" {
		return ""
	}
	t := strings.ReplaceAll(text, "\n", " ")
	t = strings.ReplaceAll(t, "\r", " ")
	t = stripDiacritics(t)
	t = personaRemoveURLs.ReplaceAllString(t, " ")
	t = personaRemoveEmails.ReplaceAllString(t, " ")
	t = personaRemoveCodeBlocks.ReplaceAllString(t, " ")
	t = personaRemoveInlineCode.ReplaceAllString(t, " ")
	t = personaRemoveHTMLTags.ReplaceAllString(t, " ")
	t = personaDecimalNumbers.ReplaceAllString(t, " NUM ")
	t = personaIntegerNumbers.ReplaceAllString(t, " NUM ")
	t = personaRemovePunctuation.ReplaceAllString(t, " ")
	t = personaNormalizeSpace.ReplaceAllString(t, " ")
	return strings.ToLower(strings.TrimSpace(t))
}

// stripDiacritics decomposes s into NFKD form and drops every combining
// mark, turning e.g. "café" into "cafe" so an accented description and
// its plain-ASCII paraphrase embed the same way. Mirrors persona.py's
// unicodedata.normalize("NFKD", text) + combining-character removal.
func stripDiacritics(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QueryExtractor pulls the text to embed and compare against a
// persona's description out of a mux request body.
type QueryExtractor func(body map[string]any) []string

// UserMessageQueries extracts every user-role message's text.
func UserMessageQueries(body map[string]any) []string { return userQueries(body) }

// SystemMessageQueries extracts every system/developer-role message's
// text, plus Anthropic's top-level "system" string.
func SystemMessageQueries(body map[string]any) []string { return systemQueries(body) }

// PersonaDesc matches when the position-weighted minimum cosine
// distance between the extracted queries' embeddings and the persona's
// stored description embedding falls below Threshold. Later messages
// weigh more heavily than earlier ones (WeightFactor < 1 sharpens that
// curve; 1 makes every position equal), on the theory that the most
// recent message best reflects what the user is asking for right now.
type PersonaDesc struct {
	Route        rules.ModelRoute
	RulePriority int

	PersonaName      string
	PersonaEmbedding []float32
	Threshold        float32
	WeightFactor     float32

	Embedder       embed.Embedder
	ExtractQueries QueryExtractor
}

func (p *PersonaDesc) Priority() int              { return p.RulePriority }
func (p *PersonaDesc) Destination() rules.ModelRoute { return p.Route }

func (p *PersonaDesc) Name() string {
	return "persona-desc:" + p.PersonaName
}

func (p *PersonaDesc) Match(ctx context.Context, t rules.ThingToMatch) (bool, error) {
	if p.Embedder == nil || p.ExtractQueries == nil || len(p.PersonaEmbedding) == 0 {
		return false, nil
	}
	raw := p.ExtractQueries(t.Body)
	if len(raw) == 0 {
		return false, nil
	}

	cleaned := make([]string, len(raw))
	for i, q := range raw {
		cleaned[i] = cleanForEmbedding(q)
	}

	embeddings, err := p.Embedder.Embed(ctx, cleaned)
	if err != nil {
		return false, fmt.Errorf("matcher: embedding persona queries: %w", err)
	}

	distances, err := embed.CosineDistances(embeddings, p.PersonaEmbedding)
	if err != nil {
		return false, fmt.Errorf("matcher: computing cosine distance: %w", err)
	}

	factor := p.WeightFactor
	if factor <= 0 {
		factor = 1
	}
	weighted := embed.WeightDistances(distances, factor)
	return embed.AnyBelow(weighted, p.Threshold), nil
}

// NewUserPersonaDesc and NewSysPromptPersonaDesc mirror the original's
// UserMsgsPersonaDescMuxMatcher / SysPromptPersonaDescMuxMatcher split.
func NewUserPersonaDesc(route rules.ModelRoute, priority int, name string, personaEmbedding []float32, threshold, weightFactor float32, embedder embed.Embedder) *PersonaDesc {
	return &PersonaDesc{
		Route: route, RulePriority: priority, PersonaName: name,
		PersonaEmbedding: personaEmbedding, Threshold: threshold, WeightFactor: weightFactor,
		Embedder: embedder, ExtractQueries: UserMessageQueries,
	}
}

func NewSysPromptPersonaDesc(route rules.ModelRoute, priority int, name string, personaEmbedding []float32, threshold, weightFactor float32, embedder embed.Embedder) *PersonaDesc {
	return &PersonaDesc{
		Route: route, RulePriority: priority, PersonaName: name,
		PersonaEmbedding: personaEmbedding, Threshold: threshold, WeightFactor: weightFactor,
		Embedder: embedder, ExtractQueries: SystemMessageQueries,
	}
}
