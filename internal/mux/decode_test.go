package mux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/protocol/anthropic"
	"github.com/howard-nolan/codegate/internal/streamcodec"
)

func drainTimeout[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for channel to close")
		}
	}
}

func TestDecodeOpenAIChatSSE_StopsOnDoneMarker(t *testing.T) {
	frames := make(chan streamcodec.SSEFrame, 3)
	frames <- streamcodec.SSEFrame{Data: `{"id":"1","choices":[{"delta":{"content":"hi"}}]}`}
	frames <- streamcodec.SSEFrame{Data: "[DONE]"}
	close(frames)

	out := decodeOpenAIChatSSE(context.Background(), frames)
	chunks := drainTimeout(t, out)
	require.Len(t, chunks, 1)
	assert.Equal(t, "1", chunks[0].ID)
}

func TestDecodeOpenAIChatSSE_SkipsUnparseableFrame(t *testing.T) {
	frames := make(chan streamcodec.SSEFrame, 2)
	frames <- streamcodec.SSEFrame{Data: "not json"}
	frames <- streamcodec.SSEFrame{Data: `{"id":"2"}`}
	close(frames)

	out := decodeOpenAIChatSSE(context.Background(), frames)
	chunks := drainTimeout(t, out)
	require.Len(t, chunks, 1)
	assert.Equal(t, "2", chunks[0].ID)
}

func TestDecodeOpenAIChatSSE_ContextCancelStopsEarly(t *testing.T) {
	frames := make(chan streamcodec.SSEFrame)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := decodeOpenAIChatSSE(ctx, frames)
	close(frames)
	chunks := drainTimeout(t, out)
	assert.Empty(t, chunks)
}

func TestDecodeOpenAILegacySSE_StopsOnDoneMarker(t *testing.T) {
	frames := make(chan streamcodec.SSEFrame, 2)
	frames <- streamcodec.SSEFrame{Data: `{"id":"c1","choices":[{"text":"fn "}]}`}
	frames <- streamcodec.SSEFrame{Data: "[DONE]"}
	close(frames)

	out := decodeOpenAILegacySSE(context.Background(), frames)
	chunks := drainTimeout(t, out)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)
}

func TestDecodeAnthropicSSE_StopsOnMessageStop(t *testing.T) {
	frames := make(chan streamcodec.SSEFrame, 3)
	frames <- streamcodec.SSEFrame{Data: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`}
	frames <- streamcodec.SSEFrame{Data: `{"type":"message_stop"}`}
	frames <- streamcodec.SSEFrame{Data: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"never seen"}}`}
	close(frames)

	out := decodeAnthropicSSE(context.Background(), frames)
	events := drainTimeout(t, out)
	require.Len(t, events, 2)
	assert.Equal(t, anthropic.EventContentBlockDelta, events[0].Type)
	assert.Equal(t, anthropic.EventMessageStop, events[1].Type)
}

func TestDecodeOllamaChatNDJSON_StopsOnDoneTrue(t *testing.T) {
	lines := make(chan string, 2)
	lines <- `{"message":{"role":"assistant","content":"hi"},"done":false}`
	lines <- `{"done":true}`
	close(lines)

	out := decodeOllamaChatNDJSON(context.Background(), lines)
	chunks := drainTimeout(t, out)
	require.Len(t, chunks, 2)
	assert.False(t, chunks[0].Done)
	assert.True(t, chunks[1].Done)
}

func TestDecodeOllamaGenerateNDJSON_StopsOnDoneTrue(t *testing.T) {
	lines := make(chan string, 2)
	lines <- `{"response":"fn ","done":false}`
	lines <- `{"response":"","done":true}`
	close(lines)

	out := decodeOllamaGenerateNDJSON(context.Background(), lines)
	chunks := drainTimeout(t, out)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[1].Done)
}
