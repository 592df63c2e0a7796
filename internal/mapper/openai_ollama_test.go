package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/protocol/ollama"
)

// TestOpenAIChunkFromOllamaChat_TotalTokensIncludesBoth guards against
// the operator-precedence defect this mapper deliberately does not
// replicate: total_tokens must be prompt + completion even when both are
// non-zero.
func TestOpenAIChunkFromOllamaChat_TotalTokensIncludesBoth(t *testing.T) {
	in := make(chan ollama.ChatChunk, 1)
	in <- ollama.ChatChunk{
		Model: "llama3", Message: ollama.Message{RoleName: "assistant", Content: ""},
		Done: true, DoneReason: "stop", PromptEvalCount: 7, EvalCount: 5,
	}
	close(in)

	out, errc := OpenAIChunkFromOllamaChat(context.Background(), in)

	var last struct {
		prompt, completion, total int
	}
	for c := range out {
		require.NotNil(t, c.Usage)
		last.prompt = c.Usage.PromptTokens
		last.completion = c.Usage.CompletionTokens
		last.total = c.Usage.TotalTokens
	}
	for err := range errc {
		require.NoError(t, err)
	}

	assert.Equal(t, 7, last.prompt)
	assert.Equal(t, 5, last.completion)
	assert.Equal(t, 12, last.total)
}
