package mux

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

// upperStep is a trivial OutputStep used only to prove transformChatStream
// actually threads chunk content through the pipeline instance instead of
// forwarding it untouched.
type upperStep struct{}

func (upperStep) Name() string { return "upper" }
func (upperStep) ProcessChunk(_ context.Context, chunk string, _ *pipeline.OutputContext) ([]string, error) {
	return []string{strings.ToUpper(chunk)}, nil
}

func TestTransformChatStream_AppliesStepAndPreservesMetadata(t *testing.T) {
	ctx := context.Background()
	in := make(chan openai.ChatChunk, 4)
	in <- openai.ChatChunk{ID: "abc", Model: "gpt-4", Choices: []openai.ChunkChoice{{Delta: openai.Delta{Content: "hi"}}}}
	in <- openai.ChatChunk{ID: "abc", Model: "gpt-4", Choices: []openai.ChunkChoice{{Delta: openai.Delta{Content: " there"}}}}
	in <- openai.ChatChunk{ID: "abc", Model: "gpt-4", Choices: []openai.ChunkChoice{{FinishReason: "stop"}}}
	close(in)

	pctx := pipeline.NewContext("p1", "s1", "", false, nil, nil)
	oi := pipeline.NewOutputInstance(pctx, nil, upperStep{})

	out := transformChatStream(ctx, in, oi)

	var got []openai.ChatChunk
	done := make(chan struct{})
	go func() {
		for c := range out {
			got = append(got, c)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transformed stream")
	}

	require.NotEmpty(t, got)
	for _, c := range got[:len(got)-1] {
		assert.Equal(t, "abc", c.ID)
		assert.Equal(t, "gpt-4", c.Model)
	}
	var text strings.Builder
	for _, c := range got {
		if len(c.Choices) > 0 {
			text.WriteString(c.Choices[0].Delta.Content)
		}
	}
	assert.Equal(t, "HI THERE", text.String())

	last := got[len(got)-1]
	require.Len(t, last.Choices, 1)
	assert.Equal(t, "stop", last.Choices[0].FinishReason)
}

func TestTransformChatStream_NilStepsWouldPassThrough(t *testing.T) {
	ctx := context.Background()
	pctx := pipeline.NewContext("p1", "s1", "", false, nil, nil)
	oi := pipeline.NewOutputInstance(pctx, nil)

	in := make(chan openai.ChatChunk, 1)
	in <- openai.ChatChunk{ID: "x", Choices: []openai.ChunkChoice{{Delta: openai.Delta{Content: "same"}}}}
	close(in)

	out := transformChatStream(ctx, in, oi)
	var content string
	for c := range out {
		if len(c.Choices) > 0 && c.Choices[0].Delta.Content != "" {
			content += c.Choices[0].Delta.Content
		}
	}
	assert.Equal(t, "same", content)
}
