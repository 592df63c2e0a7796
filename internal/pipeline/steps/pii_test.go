package steps

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

func TestPIIRedact_ReplacesEmailWithPlaceholder(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"contact me at jane.doe@example.com please"`)},
	}}
	pctx := newTestContext(t)
	step := PIIRedact{}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	text, _ := res.Request.Messages()[0].Contents()[0].GetText()
	assert.NotContains(t, text, "jane.doe@example.com")
	assert.Regexp(t, `#[0-9a-fA-F-]+#`, text)
	assert.True(t, pctx.PIIFound())
	assert.Equal(t, 1, pctx.RedactedPIIByType()["EMAIL_ADDRESS"])
}

func TestPIIRedact_IncrementsMetricsWhenSet(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"contact me at jane.doe@example.com please"`)},
	}}
	pctx := newTestContext(t)
	m, _ := metrics.New()
	step := &PIIRedact{Metrics: m}

	_, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PIIRedacted.WithLabelValues("EMAIL_ADDRESS")))
}

func TestPIIRedact_NoMatchLeavesContentUnchanged(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"just talking about code"`)},
	}}
	pctx := newTestContext(t)
	step := PIIRedact{}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	text, _ := res.Request.Messages()[0].Contents()[0].GetText()
	assert.Equal(t, "just talking about code", text)
	assert.False(t, pctx.PIIFound())
}

func TestPIIRedact_ThenUnredact_RoundTrips(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"call me at 555-123-4567"`)},
	}}
	pctx := newTestContext(t)
	redact := PIIRedact{}

	res, err := redact.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	redactedText, _ := res.Request.Messages()[0].Contents()[0].GetText()
	require.NotEqual(t, "call me at 555-123-4567", redactedText)

	unredact := NewPIIUnredact(pctx)
	octx := &pipeline.OutputContext{}
	out, err := unredact.ProcessChunk(context.Background(), redactedText, octx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "555-123-4567")
}

func TestPIIUnredact_UnknownPlaceholderPassesThrough(t *testing.T) {
	pctx := newTestContext(t)
	unredact := NewPIIUnredact(pctx)
	octx := &pipeline.OutputContext{}

	out, err := unredact.ProcessChunk(context.Background(), "value is #not-a-real-placeholder#", octx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "#not-a-real-placeholder#")
}

func TestPIIUnredact_BuffersUnterminatedHash(t *testing.T) {
	pctx := newTestContext(t)
	unredact := NewPIIUnredact(pctx)
	octx := &pipeline.OutputContext{}

	out, err := unredact.ProcessChunk(context.Background(), "id is #abc", octx)
	require.NoError(t, err)
	assert.Empty(t, out, "an odd number of '#' means the marker may still be opening")

	out, err = unredact.ProcessChunk(context.Background(), "def#", octx)
	require.NoError(t, err)
	require.Len(t, out, 1)
}
