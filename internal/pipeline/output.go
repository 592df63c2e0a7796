package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/howard-nolan/codegate/internal/metrics"
)

// cleanupTimeout bounds the detached session-cleanup call made once a
// stream ends, so a slow/stuck store can't leak a goroutine forever.
const cleanupTimeout = 5 * time.Second

// OutputContext is the per-stream scratch space threaded through every
// OutputStep.ProcessChunk call of a single response stream. It is
// created fresh for every stream — never shared across requests, unlike
// the fixed OutputStep list itself.
type OutputContext struct {
	// Buffer holds content a step has deliberately held back (e.g. a
	// partial "REDACTED<..." marker split across a chunk boundary),
	// waiting for more input before it can decide what to emit.
	Buffer []string

	// PrefixBuffer holds a short tail of already-emitted text that a
	// step needs to remember across calls (e.g. to detect a marker whose
	// opening half landed in the previous chunk).
	PrefixBuffer string

	// Snippets accumulates code blocks recognized in the streamed
	// content, for the same comment-annotation/context-retrieval use as
	// the input side's Context.Snippets.
	Snippets []CodeSnippet

	// ProcessedContent accumulates the full de-redacted text of the
	// response, for logging/alerting once the stream ends.
	ProcessedContent strings.Builder
}

// OutputStep is one stage of the output pipeline. ProcessChunk is called
// once per round with the text emitted by the previous step so far this
// round (the first step in the list receives the raw provider chunk).
// It returns the list of chunks to pass downstream:
//   - non-empty: emit these chunks (further split or merged by later
//     steps) to the client this round.
//   - empty: the step has swallowed the input to wait for more context;
//     nothing is emitted downstream this round, and whatever state the
//     step needs to resume must live in octx (octx.Buffer is the
//     conventional place for it).
type OutputStep interface {
	Name() string
	ProcessChunk(ctx context.Context, chunk string, octx *OutputContext) ([]string, error)
}

// OutputInstance runs one fixed, ordered OutputStep list over a single
// response stream. A new OutputInstance (and OutputContext) is built for
// every stream; the step list itself, like the InputProcessor's, is
// built once and shared.
type OutputInstance struct {
	steps   []OutputStep
	pctx    *Context
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewOutputInstance constructs an Instance bound to pctx (so steps can
// consult/record FIM status, alerts, and the sensitive-data manager) and
// running steps in order.
func NewOutputInstance(pctx *Context, log *slog.Logger, steps ...OutputStep) *OutputInstance {
	if log == nil {
		log = slog.Default()
	}
	return &OutputInstance{steps: steps, pctx: pctx, log: log}
}

// SetMetrics wires m into the instance so every step's wall time is
// observed into m.PipelineLatency. A nil m (the default) disables this.
func (o *OutputInstance) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// ProcessStream consumes in and produces the client-visible output
// stream, running every chunk through the step list in order each
// round. Each step is called once per round with the single string its
// predecessor produced this round (steps upstream of it may have
// already split or merged chunks; this instance concatenates a step's
// multi-chunk output before handing it to the next step, trading the
// original's finer-grained per-sub-chunk fan-out for the simpler
// contract spec.md describes: "non-empty list -> pass downstream,
// empty list -> pause and re-buffer").
//
// On context cancellation, upstream close, or any step error, the
// sensitive-data session is cleaned up exactly once before the output
// channel closes. Any content left in a step's OutputContext.Buffer
// when the stream ends is logged and discarded — it is never flushed
// to the client, per the engine's no-silent-flush invariant.
func (o *OutputInstance) ProcessStream(ctx context.Context, in <-chan string) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)
		defer o.cleanup(ctx)

		octx := &OutputContext{}

		for {
			select {
			case <-ctx.Done():
				o.logDangling(octx)
				return

			case chunk, ok := <-in:
				if !ok {
					o.logDangling(octx)
					return
				}

				cur := []string{chunk}
				for _, step := range o.steps {
					merged := strings.Join(cur, "")
					start := time.Now()
					produced, err := step.ProcessChunk(ctx, merged, octx)
					if o.metrics != nil {
						o.metrics.PipelineLatency.WithLabelValues(step.Name()).Observe(time.Since(start).Seconds())
					}
					if err != nil {
						o.log.Error("output step failed", "step", step.Name(), "err", err)
						o.logDangling(octx)
						return
					}
					if len(produced) == 0 {
						// Step is buffering; nothing reaches later steps
						// or the client this round.
						cur = nil
						break
					}
					cur = produced
				}

				for _, piece := range cur {
					octx.ProcessedContent.WriteString(piece)
					select {
					case out <- piece:
					case <-ctx.Done():
						o.logDangling(octx)
						return
					}
				}
			}
		}
	}()

	return out
}

func (o *OutputInstance) logDangling(octx *OutputContext) {
	if len(octx.Buffer) == 0 && octx.PrefixBuffer == "" {
		return
	}
	o.log.Warn("output pipeline: discarding dangling buffered content at stream end",
		"prompt_id", o.pctx.PromptID, "session_id", o.pctx.SessionID,
		"buffered_rounds", len(octx.Buffer), "prefix_len", len(octx.PrefixBuffer))
}

// cleanup always runs to completion even when the stream's own context
// was cancelled: a cancelled ctx must not prevent secrets/PII from being
// purged from the session store, so cleanup uses a detached context with
// its own short deadline rather than the (possibly already-done) stream
// ctx.
func (o *OutputInstance) cleanup(ctx context.Context) {
	if o.pctx == nil || o.pctx.Sensitive == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := o.pctx.Sensitive.CleanupSession(cctx, o.pctx.SessionID); err != nil {
		o.log.Error("output pipeline: session cleanup failed",
			"session_id", o.pctx.SessionID, "err", err)
	}
}
