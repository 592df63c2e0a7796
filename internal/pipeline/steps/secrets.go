package steps

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/common"
	"github.com/howard-nolan/codegate/internal/session"
)

// redactedPattern matches a previously-emitted REDACTED<placeholder>
// marker, used by SecretUnredact to find and reverse them in a streaming
// response.
var redactedPattern = regexp.MustCompile(`REDACTED<([^>]+)>`)

const redactedMarkerStart = "REDACTED<"

// SecretsRedact is the input-side step that scans every message in the
// last user turn for known secret signatures and replaces each match
// with a REDACTED<placeholder> token backed by the session's sensitive
// data manager. Messages outside the last user turn (prior assistant
// turns, earlier history) are left untouched — they were already
// redacted the round they were submitted.
type SecretsRedact struct {
	Signatures *SignatureSet
	// Metrics, if set, receives a count of every secret this step
	// redacts. Left nil in deployments/tests that don't wire Prometheus.
	Metrics *metrics.Metrics
}

func (s *SecretsRedact) Name() string { return "codegate-secrets" }

func (s *SecretsRedact) Process(ctx context.Context, req common.Request, pctx *pipeline.Context) (pipeline.InputResult, error) {
	block := common.LastUserBlock(req.Messages())
	if len(block) == 0 {
		return pipeline.Continue(req), nil
	}
	blockSet := make(map[common.Message]bool, len(block))
	for _, m := range block {
		blockSet[m] = true
	}

	redactedTotal := 0
	for _, m := range req.Messages() {
		if !blockSet[m] {
			continue
		}
		for _, c := range m.Contents() {
			text, ok := c.GetText()
			if !ok || text == "" {
				continue
			}
			redacted, n, err := s.redactText(ctx, pctx, text)
			if err != nil {
				return pipeline.InputResult{}, err
			}
			c.SetText(redacted)
			redactedTotal += n
		}
	}

	if redactedTotal > 0 {
		pctx.SetSecretsFound()
		pctx.IncRedactedSecrets(redactedTotal)
		if s.Metrics != nil {
			s.Metrics.SecretsRedacted.Add(float64(redactedTotal))
		}
	}
	return pipeline.Continue(req), nil
}

func (s *SecretsRedact) redactText(ctx context.Context, pctx *pipeline.Context, text string) (string, int, error) {
	matches := s.Signatures.FindAll(text)
	if len(matches) == 0 {
		return text, 0, nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	var b strings.Builder
	last := 0
	seen := map[string]bool{}
	for _, m := range matches {
		if m.Start < last {
			continue // overlapping match already covered
		}
		placeholder, err := pctx.Sensitive.Store(ctx, pctx.SessionID, session.KindSecret, m.Signature.Service, m.Signature.Type, m.Value)
		if err != nil {
			return "", 0, fmt.Errorf("steps: redacting secret: %w", err)
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(placeholder)
		last = m.End

		if !seen[m.Value] {
			seen[m.Value] = true
			pctx.AddAlert(pipeline.Alert{
				ID:          uuid.NewString(),
				PromptID:    pctx.PromptID,
				TriggerType: s.Name(),
				Category:    pipeline.SeverityCritical,
				Trigger:     fmt.Sprintf("service=%s type=%s", m.Signature.Service, m.Signature.Type),
			})
		}
	}
	b.WriteString(text[last:])
	return b.String(), len(seen), nil
}

// SecretsUnredact is the output-side step that reverses REDACTED<...>
// markers in the streamed response, restoring the original secret value
// so the client sees exactly what it would have without codegate in the
// path. It buffers across chunk boundaries: a marker split by a chunk
// boundary (e.g. "REDACTED<a" / "bc>") must never be flushed half-open,
// matching the no-silent-flush invariant of the output engine.
type SecretsUnredact struct {
	pctx *pipeline.Context
}

// NewSecretsUnredact binds the step to the request's Context so it can
// reach the session's sensitive data manager.
func NewSecretsUnredact(pctx *pipeline.Context) *SecretsUnredact { return &SecretsUnredact{pctx: pctx} }

func (s *SecretsUnredact) Name() string { return "secret-unredaction" }

func (s *SecretsUnredact) ProcessChunk(ctx context.Context, chunk string, octx *pipeline.OutputContext) ([]string, error) {
	octx.Buffer = append(octx.Buffer, chunk)
	buffered := strings.Join(octx.Buffer, "")

	loc := redactedPattern.FindStringSubmatchIndex(buffered)
	if loc != nil {
		placeholder := buffered[loc[0]:loc[1]]
		original, ok, err := s.pctx.Sensitive.GetOriginal(ctx, s.pctx.SessionID, placeholder)
		replacement := buffered[loc[0]:loc[1]] // fall back to leaving the marker as-is
		if err != nil {
			return nil, fmt.Errorf("steps: unredacting secret: %w", err)
		}
		if ok {
			replacement = original.Original
			s.pctx.AddAlert(pipeline.Alert{
				ID: uuid.NewString(), PromptID: s.pctx.PromptID,
				TriggerType: s.Name(), Category: pipeline.SeverityInfo, Trigger: placeholder,
			})
		}
		result := buffered[:loc[0]] + replacement + buffered[loc[1]:]
		octx.Buffer = nil
		return []string{result}, nil
	}

	if strings.Contains(buffered, redactedMarkerStart) {
		// A marker has started but isn't closed yet — keep buffering the
		// whole thing, including whatever leads it.
		return nil, nil
	}
	if partialMarkerSuffix(buffered) {
		// The tail of buffered could be the start of a marker split
		// across the next chunk — hold everything back.
		return nil, nil
	}

	octx.Buffer = nil
	if buffered == "" {
		return nil, nil
	}
	return []string{buffered}, nil
}

// partialMarkerSuffix reports whether text ends with a non-empty proper
// prefix of "REDACTED<", meaning a marker may be about to start in the
// next chunk.
func partialMarkerSuffix(text string) bool {
	for i := 1; i < len(redactedMarkerStart); i++ {
		if strings.HasSuffix(text, redactedMarkerStart[:i]) {
			return true
		}
	}
	return false
}

// SecretsNotifier is the output-side step that prepends a one-line
// notice to the first post-redaction chunk of a response, telling the
// client how many secrets were kept out of the request it just sent
// upstream. It runs upstream of SecretsUnredact's resets so it reads
// pctx, never octx state.
type SecretsNotifier struct {
	pctx     *pipeline.Context
	notified bool
}

// NewSecretsNotifier binds the step to the request's Context.
func NewSecretsNotifier(pctx *pipeline.Context) *SecretsNotifier { return &SecretsNotifier{pctx: pctx} }

func (s *SecretsNotifier) Name() string { return "secret-redaction-notifier" }

func (s *SecretsNotifier) ProcessChunk(_ context.Context, chunk string, _ *pipeline.OutputContext) ([]string, error) {
	count := s.pctx.RedactedSecretsCount()
	if s.notified || count == 0 || chunk == "" {
		return []string{chunk}, nil
	}
	s.notified = true

	noun := "secret"
	if count != 1 {
		noun = "secrets"
	}
	notice := fmt.Sprintf("\n\U0001F6E1️ [codegate prevented %d %s from being leaked by redacting them]\n\n", count, noun)
	if s.pctx.ClientType == "cline" || s.pctx.ClientType == "kodu" {
		notice = fmt.Sprintf("<thinking>\n\U0001F6E1️ [codegate prevented %d %s from being leaked by redacting them]</thinking>\n\n", count, noun)
	}
	return []string{notice, chunk}, nil
}
