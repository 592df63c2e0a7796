package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/protocol/common"
)

// InputResultKind is the tri-state tag for an InputStep's verdict.
type InputResultKind int

const (
	// InputContinue means the (possibly modified) request should be
	// passed to the next step.
	InputContinue InputResultKind = iota
	// InputShortcut means the pipeline stops here: the response is
	// delivered to the client as a synthesized one-chunk stream instead
	// of forwarding to an upstream provider.
	InputShortcut
	// InputError means the step rejected the request with a
	// user-visible message (distinct from a Go error, which signals an
	// unexpected internal failure and aborts the whole request with a
	// 500).
	InputError
)

// InputResult is the tagged-union result an InputStep.Process returns.
type InputResult struct {
	Kind InputResultKind

	// Request is set on InputContinue: the request to hand to the next
	// step (may be the same pointer, mutated in place, or a new value).
	Request common.Request

	// ShortcutText/ShortcutModel are set on InputShortcut.
	ShortcutText  string
	ShortcutModel string

	// Message is set on InputError: shown to the client, never a raw
	// internal error string.
	Message string
}

// Continue is a convenience constructor for the common case.
func Continue(req common.Request) InputResult {
	return InputResult{Kind: InputContinue, Request: req}
}

// Shortcut is a convenience constructor for a short-circuit response.
func Shortcut(stepName, text, model string) InputResult {
	return InputResult{Kind: InputShortcut, ShortcutText: text, ShortcutModel: model, Message: stepName}
}

// ErrorResult is a convenience constructor for a user-visible rejection.
func ErrorResult(message string) InputResult {
	return InputResult{Kind: InputError, Message: message}
}

// InputStep is one stage of the input pipeline. Name is used for
// logging/metrics and appears as the step name of a Shortcut result.
type InputStep interface {
	Name() string
	Process(ctx context.Context, req common.Request, pctx *Context) (InputResult, error)
}

// InputOutcome is the terminal result of running a full input pipeline.
type InputOutcome struct {
	Kind          InputResultKind
	Request       common.Request
	ShortcutText  string
	ShortcutModel string
	ShortcutStep  string
	Message       string
}

// InputProcessor holds one ordered, immutable list of InputSteps — built
// once per provider/request-kind pair at startup (chat gets the full
// list, FIM gets only the redaction steps, per spec §4.E.3) and reused
// across every request. It does not hold any per-request state itself:
// Process always operates over the caller-supplied Context, so the same
// Processor is safe to share across concurrently in-flight requests.
type InputProcessor struct {
	steps   []InputStep
	metrics *metrics.Metrics
}

// NewInputProcessor constructs a Processor over steps, run in order.
func NewInputProcessor(steps ...InputStep) *InputProcessor {
	return &InputProcessor{steps: steps}
}

// SetMetrics wires m into the processor so every step's wall time is
// observed into m.PipelineLatency. A nil m (the default) disables this.
func (p *InputProcessor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Process runs req through every step in order:
//  1. Secrets/PII redaction steps must be first in the configured list —
//     the processor does not reorder or enforce this; callers build the
//     step list with redaction first (see cmd/codegate wiring).
//  2. On InputShortcut or after the last step returns InputContinue, the
//     (possibly redacted) request text is recorded into pctx so
//     persisted copies never contain cleartext secrets/PII.
//  3. An InputError result or a genuine Go error both stop the pipeline;
//     the caller maps InputError to the wire error envelope and a Go
//     error to an internal 500.
func (p *InputProcessor) Process(ctx context.Context, req common.Request, pctx *Context) (InputOutcome, error) {
	cur := req

	for _, step := range p.steps {
		start := time.Now()
		res, err := step.Process(ctx, cur, pctx)
		if p.metrics != nil {
			p.metrics.PipelineLatency.WithLabelValues(step.Name()).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return InputOutcome{}, fmt.Errorf("input step %q: %w", step.Name(), err)
		}

		switch res.Kind {
		case InputContinue:
			cur = res.Request

		case InputShortcut:
			pctx.SetRecordedInput(cur.GetPrompt(""))
			return InputOutcome{
				Kind: InputShortcut, ShortcutText: res.ShortcutText,
				ShortcutModel: res.ShortcutModel, ShortcutStep: res.Message,
			}, nil

		case InputError:
			return InputOutcome{Kind: InputError, Message: res.Message}, nil

		default:
			return InputOutcome{}, fmt.Errorf("input step %q: unknown result kind %d", step.Name(), res.Kind)
		}
	}

	pctx.SetRecordedInput(cur.GetPrompt(""))
	return InputOutcome{Kind: InputContinue, Request: cur}, nil
}
