package mux

import (
	"context"

	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

// transformChatStream threads every non-empty delta in a chat-chunk
// stream through oi (the per-request Output Pipeline Engine instance),
// re-wrapping whatever text the pipeline emits back into chunks so the
// rest of writeChatResponse never has to know unredaction/comment-
// annotation happened in between. Chunks carrying no content (the
// terminal finish_reason/usage chunk most providers send last) bypass
// the pipeline entirely and are forwarded once the content stream has
// drained, since they carry no client-visible text to redact.
//
// Metadata (id/object/created/model) is captured once from the first
// chunk seen and reused for every chunk this function emits — codegate
// assumes n=1 choice per mux request, matching the rest of this port's
// scope.
func transformChatStream(ctx context.Context, in <-chan openai.ChatChunk, oi *pipeline.OutputInstance) <-chan openai.ChatChunk {
	textIn := make(chan string)
	meta := make(chan openai.ChatChunk, 1)
	terminal := make(chan *openai.ChatChunk, 1)

	go func() {
		defer close(textIn)
		defer close(terminal)
		var sentMeta bool
		var last openai.ChatChunk
		for c := range in {
			if len(c.Choices) == 0 {
				continue
			}
			last = c
			if !sentMeta {
				meta <- c
				sentMeta = true
			}
			if content := c.Choices[0].Delta.Content; content != "" {
				select {
				case textIn <- content:
				case <-ctx.Done():
					return
				}
			}
		}
		if !sentMeta {
			meta <- openai.ChatChunk{}
		}
		// The last chunk's text already went through the pipeline; only
		// its finish_reason/usage are forwarded here.
		tc := last
		if len(tc.Choices) > 0 {
			tc.Choices = append([]openai.ChunkChoice(nil), tc.Choices...)
			tc.Choices[0].Delta.Content = ""
		}
		terminal <- &tc
	}()

	processed := oi.ProcessStream(ctx, textIn)

	out := make(chan openai.ChatChunk)
	go func() {
		defer close(out)
		m := <-meta
		for piece := range processed {
			out <- openai.ChatChunk{
				ID: m.ID, Object: m.Object, Created: m.Created, Model: m.Model,
				Choices: []openai.ChunkChoice{{Delta: openai.Delta{Content: piece}}},
			}
		}
		if tc, ok := <-terminal; ok && tc != nil {
			out <- *tc
		}
	}()

	return out
}

// transformLegacyStream is transformChatStream's legacy-completion
// counterpart: LegacyMessage carries its text directly (no nested
// delta), so the pipeline text is re-wrapped into that flatter shape.
func transformLegacyStream(ctx context.Context, in <-chan openai.LegacyCompletion, oi *pipeline.OutputInstance) <-chan openai.LegacyCompletion {
	textIn := make(chan string)
	meta := make(chan openai.LegacyCompletion, 1)
	terminal := make(chan *openai.LegacyCompletion, 1)

	go func() {
		defer close(textIn)
		defer close(terminal)
		var sentMeta bool
		var last openai.LegacyCompletion
		for c := range in {
			if len(c.Choices) == 0 {
				continue
			}
			last = c
			if !sentMeta {
				meta <- c
				sentMeta = true
			}
			if text := c.Choices[0].Text; text != "" {
				select {
				case textIn <- text:
				case <-ctx.Done():
					return
				}
			}
		}
		if !sentMeta {
			meta <- openai.LegacyCompletion{}
		}
		tc := last
		if len(tc.Choices) > 0 {
			tc.Choices = append([]openai.LegacyMessage(nil), tc.Choices...)
			tc.Choices[0].Text = ""
		}
		terminal <- &tc
	}()

	processed := oi.ProcessStream(ctx, textIn)

	out := make(chan openai.LegacyCompletion)
	go func() {
		defer close(out)
		m := <-meta
		for piece := range processed {
			out <- openai.LegacyCompletion{
				ID: m.ID, Object: m.Object, Created: m.Created, Model: m.Model,
				Choices: []openai.LegacyMessage{{Text: piece}},
			}
		}
		if tc, ok := <-terminal; ok && tc != nil {
			out <- *tc
		}
	}()

	return out
}
