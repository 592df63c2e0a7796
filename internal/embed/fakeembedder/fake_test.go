package fakeembedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/embed"
)

func TestEmbed_SimilarTextProducesIdenticalVector(t *testing.T) {
	e := New()

	vecs, err := e.Embed(context.Background(), []string{"database migration rollback", "database migration rollback"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], vecs[1])
}

func TestEmbed_DisjointTextProducesOrthogonalVectors(t *testing.T) {
	e := New()

	vecs, err := e.Embed(context.Background(), []string{"database migration rollback", "haiku autumn leaves poem"})
	require.NoError(t, err)

	dist, err := embed.CosineDistances(vecs[:1], vecs[1])
	require.NoError(t, err)
	assert.Greater(t, dist[0], float32(0.5), "completely disjoint vocabularies should land far from identical")
}

func TestEmbed_IsCaseInsensitive(t *testing.T) {
	e := New()

	vecs, err := e.Embed(context.Background(), []string{"Hello World", "hello world"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], vecs[1])
}

func TestEmbed_EmptyTextProducesZeroVector(t *testing.T) {
	e := New()

	vecs, err := e.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	for _, v := range vecs[0] {
		assert.Equal(t, float32(0), v)
	}
}

func TestEmbed_SatisfiesEmbedderInterface(t *testing.T) {
	var _ embed.Embedder = New()
}
