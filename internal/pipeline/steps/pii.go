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

// piiPattern pairs a compiled regex with the PII type name stored
// alongside every placeholder, grounded on the confidence-scored regex
// table of laplaque-ai-anonymizing-proxy's anonymizer — simplified here
// to the high-confidence tier only (structurally unambiguous formats),
// since codegate has no AI-verification fallback for the low-confidence
// tier.
type piiPattern struct {
	re   *regexp.Regexp
	kind string
}

var piiPatterns = []piiPattern{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "EMAIL_ADDRESS"},
	{regexp.MustCompile(`\b(?:\d{3}-\d{2}-\d{4})\b`), "US_SSN"},
	{regexp.MustCompile(`\b(?:\d{4}[\-\s]){3}\d{4}\b`), "CREDIT_CARD"},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`), "IP_ADDRESS"},
	{regexp.MustCompile(`(?i)\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`), "PHONE_NUMBER"},
}

// piiPlaceholderPattern matches a previously-emitted #placeholder#
// marker, used by PIIUnredact to find and reverse them in a streaming
// response.
var piiPlaceholderPattern = regexp.MustCompile(`#([0-9a-fA-F-]+)#`)

// PIIRedact is the input-side step that scans the last user turn for
// structured PII (email, phone, SSN, credit card, IP address) and
// replaces each match with a #placeholder# token backed by the
// session's sensitive data manager.
type PIIRedact struct {
	// Metrics, if set, receives a per-kind count of every PII value this
	// step redacts. Left nil in deployments/tests that don't wire
	// Prometheus.
	Metrics *metrics.Metrics
}

func (*PIIRedact) Name() string { return "codegate-pii" }

func (p *PIIRedact) Process(ctx context.Context, req common.Request, pctx *pipeline.Context) (pipeline.InputResult, error) {
	block := common.LastUserBlock(req.Messages())
	if len(block) == 0 {
		return pipeline.Continue(req), nil
	}
	blockSet := make(map[common.Message]bool, len(block))
	for _, m := range block {
		blockSet[m] = true
	}

	anyFound := false
	for _, m := range req.Messages() {
		if !blockSet[m] {
			continue
		}
		for _, c := range m.Contents() {
			text, ok := c.GetText()
			if !ok || text == "" {
				continue
			}
			redacted, found, err := p.redactPII(ctx, pctx, text)
			if err != nil {
				return pipeline.InputResult{}, err
			}
			c.SetText(redacted)
			anyFound = anyFound || found
		}
	}

	if anyFound {
		pctx.SetPIIFound()
	}
	return pipeline.Continue(req), nil
}

func (p *PIIRedact) redactPII(ctx context.Context, pctx *pipeline.Context, text string) (string, bool, error) {
	type hit struct {
		start, end int
		kind       string
	}
	var hits []hit
	for _, p := range piiPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{start: loc[0], end: loc[1], kind: p.kind})
		}
	}
	if len(hits) == 0 {
		return text, false, nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var b strings.Builder
	last := 0
	for _, h := range hits {
		if h.start < last {
			continue
		}
		value := text[h.start:h.end]
		placeholder, err := pctx.Sensitive.Store(ctx, pctx.SessionID, session.KindPII, "pii", h.kind, value)
		if err != nil {
			return "", false, fmt.Errorf("steps: redacting pii: %w", err)
		}
		b.WriteString(text[last:h.start])
		b.WriteString(placeholder)
		last = h.end
		pctx.IncRedactedPII(h.kind, 1)
		if p.Metrics != nil {
			p.Metrics.PIIRedacted.WithLabelValues(h.kind).Inc()
		}
	}
	b.WriteString(text[last:])
	return b.String(), true, nil
}

// PIIUnredact is the output-side mirror of SecretsUnredact: it reverses
// #placeholder# markers in the streamed response, buffering across chunk
// boundaries the same way.
type PIIUnredact struct{ pctx *pipeline.Context }

// NewPIIUnredact binds the step to the request's Context.
func NewPIIUnredact(pctx *pipeline.Context) *PIIUnredact { return &PIIUnredact{pctx: pctx} }

func (s *PIIUnredact) Name() string { return "pii-unredaction" }

func (s *PIIUnredact) ProcessChunk(ctx context.Context, chunk string, octx *pipeline.OutputContext) ([]string, error) {
	octx.Buffer = append(octx.Buffer, chunk)
	buffered := strings.Join(octx.Buffer, "")

	loc := piiPlaceholderPattern.FindStringSubmatchIndex(buffered)
	if loc != nil {
		placeholder := buffered[loc[0]:loc[1]]
		entry, ok, err := s.pctx.Sensitive.GetOriginal(ctx, s.pctx.SessionID, placeholder)
		if err != nil {
			return nil, fmt.Errorf("steps: unredacting pii: %w", err)
		}
		replacement := placeholder
		if ok {
			replacement = entry.Original
			s.pctx.AddAlert(pipeline.Alert{
				ID: uuid.NewString(), PromptID: s.pctx.PromptID,
				TriggerType: s.Name(), Category: pipeline.SeverityInfo, Trigger: placeholder,
			})
		}
		result := buffered[:loc[0]] + replacement + buffered[loc[1]:]
		octx.Buffer = nil
		return []string{result}, nil
	}

	// An unpaired '#' followed only by placeholder characters (hex digits
	// and '-') up to the end of buffered could be opening a placeholder
	// that completes in the next chunk.
	if i := strings.LastIndex(buffered, "#"); strings.Count(buffered, "#")%2 == 1 &&
		strings.Trim(buffered[i+1:], "0123456789abcdefABCDEF-") == "" {
		return nil, nil
	}

	octx.Buffer = nil
	if buffered == "" {
		return nil, nil
	}
	return []string{buffered}, nil
}
