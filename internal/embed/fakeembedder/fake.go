// Package fakeembedder implements embed.Embedder deterministically from
// a text's content, with no native dependencies — for unit tests of the
// persona matcher that need embeddings to behave consistently (similar
// text -> similar vector) without loading a real ONNX model.
package fakeembedder

import (
	"context"
	"hash/fnv"
	"strings"
)

const dims = 32

// Embedder hashes each whitespace-separated token of a text into one of
// dims buckets and accumulates a count there, producing a bag-of-words
// style vector. Texts sharing vocabulary land close together under
// cosine distance; completely disjoint texts land near-orthogonal.
type Embedder struct{}

func New() Embedder { return Embedder{} }

func (Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedOne(t)
	}
	return out, nil
}

func embedOne(text string) []float32 {
	vec := make([]float32, dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%dims]++
	}
	return vec
}
