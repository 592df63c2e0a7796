// Package embed defines the embedding engine the persona matcher
// (internal/rules/matcher) uses to turn free text into vectors, plus the
// cosine-distance and recency-weighting math it compares them with.
//
// This is the Go-native seam for what spec.md treats as an external
// vector-similarity oracle everywhere else (malicious-package lookup);
// persona matching is the one place the spec actually describes the
// embedding math itself (§4.I), so it gets a real implementation rather
// than another interface the gateway merely calls through.
package embed

import (
	"context"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

// Embedder turns a batch of cleaned text into one vector per input. All
// vectors returned by a single Embedder share a dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineDistances returns, for each row of queries, its cosine distance
// (1 - cosine similarity) to persona. 0 means identical direction, 2
// means opposite, 1 means orthogonal — matching the convention the
// persona matcher's threshold is tuned against.
func CosineDistances(queries [][]float32, persona []float32) ([]float32, error) {
	personaNorm := vek32.Norm(persona)
	if personaNorm == 0 {
		return nil, fmt.Errorf("embed: persona embedding has zero norm")
	}

	out := make([]float32, len(queries))
	for i, q := range queries {
		if len(q) != len(persona) {
			return nil, fmt.Errorf("embed: dimension mismatch: query has %d, persona has %d", len(q), len(persona))
		}
		queryNorm := vek32.Norm(q)
		if queryNorm == 0 {
			out[i] = 1 // orthogonal convention for a degenerate all-zero embedding
			continue
		}
		similarity := vek32.Dot(q, persona) / (queryNorm * personaNorm)
		out[i] = 1 - similarity
	}
	return out, nil
}

// WeightDistances applies a recency weight to distances, where the LAST
// element (the most recent message) is unweighted and earlier elements
// are divided by a shrinking power of factor — making them larger, and
// so harder to satisfy the threshold, as they recede into history.
// factor must be in (0, 1]; 1 makes every position equally weighted.
func WeightDistances(distances []float32, factor float32) []float32 {
	n := len(distances)
	out := make([]float32, n)
	for i, d := range distances {
		position := float32(n - 1 - i)
		weight := math32.Pow(factor, position)
		out[i] = d / weight
	}
	return out
}

// AnyBelow reports whether any element of distances is below threshold.
func AnyBelow(distances []float32, threshold float32) bool {
	for _, d := range distances {
		if d < threshold {
			return true
		}
	}
	return false
}
