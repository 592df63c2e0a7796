// Package streamcodec holds the two streaming-wire-format codecs codegate
// understands: Server-Sent Events (used by OpenAI and Anthropic) and
// line-delimited NDJSON (used by Ollama). The muxing router's upstream
// decoding and every downstream writer share these, so frame-boundary handling — the part
// most likely to have subtle bugs — is written exactly once.
package streamcodec

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// SSEFrame is one decoded "event: <type>\ndata: <payload>\n\n" frame.
// Event is empty for OpenAI-style frames, which never send an "event:"
// line — callers distinguish frames by the JSON shape of Data instead.
type SSEFrame struct {
	Event string
	Data  string
}

// IsDone reports whether this frame is OpenAI's literal `data: [DONE]`
// terminator.
func (f SSEFrame) IsDone() bool { return f.Event == "" && strings.TrimSpace(f.Data) == "[DONE]" }

// ScanSSE reads r and sends one SSEFrame per blank-line-terminated event
// on the returned channel, closing it when r is exhausted, ctx is
// cancelled, or a read error occurs (in which case err is sent as the
// channel's final value's error via the returned error channel pattern
// collapsed into Data for simplicity is avoided — instead ScanSSE reports
// read errors through the separate errc return).
//
// The scanner does not interpret frame contents at all: it only tracks
// "event:" / "data:" line prefixes and the blank line that ends a frame.
// Anthropic sends multi-line "data:" is never used by codegate's
// upstreams (each event is one data line), so lines are not
// concatenated — this matches every fixture in the pack.
func ScanSSE(ctx context.Context, r io.Reader) (<-chan SSEFrame, <-chan error) {
	out := make(chan SSEFrame)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var cur SSEFrame
		for scanner.Scan() {
			line := scanner.Text()

			switch {
			case line == "":
				if cur.Data == "" && cur.Event == "" {
					continue
				}
				select {
				case out <- cur:
				case <-ctx.Done():
					return
				}
				cur = SSEFrame{}
			case strings.HasPrefix(line, "event:"):
				cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			default:
				// Ignore comment lines ("id:", "retry:", ":" keep-alives).
			}
		}

		if err := scanner.Err(); err != nil {
			errc <- fmt.Errorf("scanning SSE stream: %w", err)
			return
		}

		// A frame with no trailing blank line (stream closed right after
		// the last data line) is still a real event — flush it.
		if cur.Data != "" || cur.Event != "" {
			select {
			case out <- cur:
			case <-ctx.Done():
			}
		}
	}()

	return out, errc
}

// SSEWriter writes SSE frames to an underlying writer, flushing after
// every frame when the writer supports it (http.ResponseWriter does;
// a bytes.Buffer in tests does not, and that's fine).
type SSEWriter struct {
	w       io.Writer
	flusher flusher
}

type flusher interface{ Flush() }

// NewSSEWriter wraps w. If w also implements an http.Flusher-shaped
// Flush() method, WriteFrame flushes after every frame.
func NewSSEWriter(w io.Writer) *SSEWriter {
	f, _ := w.(flusher)
	return &SSEWriter{w: w, flusher: f}
}

// WriteFrame writes one frame. An empty event omits the "event:" line,
// matching OpenAI's convention; a non-empty event writes it, matching
// Anthropic's.
func (s *SSEWriter) WriteFrame(event, data string) error {
	var buf bytes.Buffer
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	fmt.Fprintf(&buf, "data: %s\n\n", data)
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing SSE frame: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// WriteDone writes OpenAI's literal `data: [DONE]` terminator line.
func (s *SSEWriter) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("writing SSE done marker: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
