package streamcodec

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScanSSE_OpenAIStyleFramesNoEventLine(t *testing.T) {
	raw := "data: {\"a\":1}\n\ndata: {\"a\":2}\n\ndata: [DONE]\n\n"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frames, errc := ScanSSE(ctx, strings.NewReader(raw))

	var got []SSEFrame
	for f := range frames {
		got = append(got, f)
	}
	require.NoError(t, drain(errc))

	require.Len(t, got, 3)
	require.Equal(t, "", got[0].Event)
	require.Equal(t, `{"a":1}`, got[0].Data)
	require.True(t, got[2].IsDone())
}

func TestScanSSE_AnthropicStyleNamedEvents(t *testing.T) {
	raw := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\"}\n\n"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frames, errc := ScanSSE(ctx, strings.NewReader(raw))

	var got []SSEFrame
	for f := range frames {
		got = append(got, f)
	}
	require.NoError(t, drain(errc))

	require.Len(t, got, 2)
	require.Equal(t, "message_start", got[0].Event)
	require.Equal(t, "content_block_delta", got[1].Event)
}

func TestSSEWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewSSEWriter(&buf)
	require.NoError(t, w.WriteFrame("", `{"a":1}`))
	require.NoError(t, w.WriteDone())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frames, errc := ScanSSE(ctx, strings.NewReader(buf.String()))

	var got []SSEFrame
	for f := range frames {
		got = append(got, f)
	}
	require.NoError(t, drain(errc))
	require.Len(t, got, 2)
	require.True(t, got[1].IsDone())
}

func drain(errc <-chan error) error {
	for err := range errc {
		return err
	}
	return nil
}
