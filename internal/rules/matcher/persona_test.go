package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/embed/fakeembedder"
	"github.com/howard-nolan/codegate/internal/rules"
)

func TestCleanForEmbedding_StripsURLsEmailsCodeAndMarkup(t *testing.T) {
	in := "Check https://example.com/docs and mail jane@example.com\n" +
		"```go\nfmt.Println(1)\n```\nsee `x.Foo()` <b>now</b> version 1.5 and count 42"
	got := cleanForEmbedding(in)

	assert.NotContains(t, got, "example.com")
	assert.NotContains(t, got, "jane")
	assert.NotContains(t, got, "fmt.println")
	assert.NotContains(t, got, "x.foo")
	assert.NotContains(t, got, "<b>")
	assert.NotContains(t, got, "1.5")
	assert.NotContains(t, got, "42")
	assert.Contains(t, got, "num")
	assert.Equal(t, got, cleanForEmbedding(got), "cleaning an already-clean string is a no-op")
}

func TestCleanForEmbedding_EmptyInputReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", cleanForEmbedding(""))
}

func TestCleanForEmbedding_StripsDiacritics(t *testing.T) {
	assert.Equal(t, cleanForEmbedding("cafe Muller"), cleanForEmbedding("café Müller"))
	assert.Contains(t, cleanForEmbedding("café"), "cafe")
}

func TestStripDiacritics_LeavesPlainASCIIUnchanged(t *testing.T) {
	assert.Equal(t, "plain text 123", stripDiacritics("plain text 123"))
}

func TestStripDiacritics_DecomposesAndDropsCombiningMarks(t *testing.T) {
	assert.Equal(t, "cafe", stripDiacritics("café"))
	assert.Equal(t, "Muller", stripDiacritics("Müller"))
}

func embedPersona(t *testing.T, text string) []float32 {
	t.Helper()
	vecs, err := fakeembedder.New().Embed(context.Background(), []string{cleanForEmbedding(text)})
	require.NoError(t, err)
	return vecs[0]
}

func TestPersonaDesc_MatchesOnTopicalSimilarity(t *testing.T) {
	persona := embedPersona(t, "database migration schema rollback transaction")
	p := &PersonaDesc{
		PersonaEmbedding: persona,
		Threshold:        0.9,
		WeightFactor:     1,
		Embedder:         fakeembedder.New(),
		ExtractQueries:   UserMessageQueries,
	}
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "how do I roll back this database migration transaction"},
	}}

	ok, err := p.Match(context.Background(), rules.ThingToMatch{Body: body})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPersonaDesc_NoMatchOnUnrelatedTopic(t *testing.T) {
	persona := embedPersona(t, "database migration schema rollback transaction")
	p := &PersonaDesc{
		PersonaEmbedding: persona,
		Threshold:        0.3,
		WeightFactor:     1,
		Embedder:         fakeembedder.New(),
		ExtractQueries:   UserMessageQueries,
	}
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "please write a haiku about autumn leaves"},
	}}

	ok, err := p.Match(context.Background(), rules.ThingToMatch{Body: body})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersonaDesc_NilEmbedderIsNoop(t *testing.T) {
	p := &PersonaDesc{PersonaEmbedding: []float32{1, 2, 3}, ExtractQueries: UserMessageQueries}

	ok, err := p.Match(context.Background(), rules.ThingToMatch{Body: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersonaDesc_NoExtractedQueriesIsNoop(t *testing.T) {
	p := &PersonaDesc{
		PersonaEmbedding: []float32{1, 2, 3},
		Embedder:         fakeembedder.New(),
		ExtractQueries:   UserMessageQueries,
	}

	ok, err := p.Match(context.Background(), rules.ThingToMatch{Body: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, ok)
}

type erroringEmbedder struct{}

func (erroringEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}

func TestPersonaDesc_EmbedderErrorPropagates(t *testing.T) {
	p := &PersonaDesc{
		PersonaEmbedding: []float32{1, 2, 3},
		Embedder:         erroringEmbedder{},
		ExtractQueries:   UserMessageQueries,
	}
	body := map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hello"}}}

	_, err := p.Match(context.Background(), rules.ThingToMatch{Body: body})
	assert.Error(t, err)
}

func TestPersonaDesc_WeightFactorZeroDefaultsToOne(t *testing.T) {
	persona := embedPersona(t, "database migration schema rollback transaction")
	withZero := &PersonaDesc{
		PersonaEmbedding: persona, Threshold: 0.9, WeightFactor: 0,
		Embedder: fakeembedder.New(), ExtractQueries: UserMessageQueries,
	}
	withOne := &PersonaDesc{
		PersonaEmbedding: persona, Threshold: 0.9, WeightFactor: 1,
		Embedder: fakeembedder.New(), ExtractQueries: UserMessageQueries,
	}
	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "database migration rollback"},
	}}

	okZero, err := withZero.Match(context.Background(), rules.ThingToMatch{Body: body})
	require.NoError(t, err)
	okOne, err := withOne.Match(context.Background(), rules.ThingToMatch{Body: body})
	require.NoError(t, err)
	assert.Equal(t, okOne, okZero)
}

func TestPersonaDesc_NameAndDestination(t *testing.T) {
	p := &PersonaDesc{PersonaName: "db-expert", RulePriority: 5, Route: rules.ModelRoute{Model: "gpt-4"}}

	assert.Equal(t, "persona-desc:db-expert", p.Name())
	assert.Equal(t, 5, p.Priority())
	assert.Equal(t, "gpt-4", p.Destination().Model)
}

func TestNewUserPersonaDesc_WiresUserMessageQueries(t *testing.T) {
	p := NewUserPersonaDesc(rules.ModelRoute{}, 1, "name", []float32{1, 0}, 0.5, 1, fakeembedder.New())

	body := map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "user text"},
		map[string]any{"role": "assistant", "content": "assistant text"},
	}}
	assert.Equal(t, []string{"user text"}, p.ExtractQueries(body))
}

func TestNewSysPromptPersonaDesc_WiresSystemMessageQueries(t *testing.T) {
	p := NewSysPromptPersonaDesc(rules.ModelRoute{}, 1, "name", []float32{1, 0}, 0.5, 1, fakeembedder.New())

	body := map[string]any{"system": "system text"}
	assert.Equal(t, []string{"system text"}, p.ExtractQueries(body))
}
