package steps

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
)

type fakeIndex struct {
	entries map[string]PackageInfo
	lastEco string
}

func (f *fakeIndex) Lookup(_ context.Context, ecosystem string, packages []string) ([]PackageInfo, error) {
	f.lastEco = ecosystem
	var out []PackageInfo
	for _, p := range packages {
		if info, ok := f.entries[p]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func TestContextRetriever_FlagsMaliciousPackageAndInjectsContext(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"npm install left-pad should fix this"`)},
	}}
	idx := &fakeIndex{entries: map[string]PackageInfo{"left-pad": {Name: "left-pad", Ecosystem: "npm", Status: "malicious", Description: "known supply-chain attack"}}}
	pctx := newTestContext(t)
	step := &ContextRetriever{Index: idx, Ecosystem: "npm"}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	text, _ := res.Request.Messages()[0].Contents()[0].GetText()
	assert.Contains(t, text, "left-pad")
	assert.Contains(t, text, "Query: npm install left-pad should fix this")
	assert.Equal(t, "npm", idx.lastEco)
	assert.True(t, pctx.BadPackagesFound())
}

func TestContextRetriever_IncrementsMetricsWhenSet(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"npm install left-pad should fix this"`)},
	}}
	idx := &fakeIndex{entries: map[string]PackageInfo{"left-pad": {Name: "left-pad", Ecosystem: "npm", Status: "malicious", Description: "known supply-chain attack"}}}
	pctx := newTestContext(t)
	m, _ := metrics.New()
	step := &ContextRetriever{Index: idx, Ecosystem: "npm", Metrics: m}

	_, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BadPackagesFound))
}

func TestContextRetriever_NoPackageMentionIsNoop(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"just a normal question"`)},
	}}
	idx := &fakeIndex{entries: map[string]PackageInfo{}}
	pctx := newTestContext(t)
	step := &ContextRetriever{Index: idx, Ecosystem: "npm"}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	text, _ := res.Request.Messages()[0].Contents()[0].GetText()
	assert.Equal(t, "just a normal question", text)
	assert.False(t, pctx.BadPackagesFound())
}

func TestContextRetriever_NilIndexIsNoop(t *testing.T) {
	req := &openai.ChatRequest{MessagesList: []openai.Message{
		{RoleName: "user", Content: json.RawMessage(`"npm install left-pad"`)},
	}}
	pctx := newTestContext(t)
	step := &ContextRetriever{Index: nil, Ecosystem: "npm"}

	res, err := step.Process(context.Background(), req, pctx)
	require.NoError(t, err)
	text, _ := res.Request.Messages()[0].Contents()[0].GetText()
	assert.Equal(t, "npm install left-pad", text)
}

func TestExtractPackageNames_StripsVersionSuffix(t *testing.T) {
	names := extractPackageNames("run npm install left-pad@1.3.0 to reproduce")
	assert.Equal(t, []string{"left-pad"}, names)
}

func TestExtractPackageNames_DedupesRepeatedMention(t *testing.T) {
	names := extractPackageNames("pip install requests, then pip install requests again")
	assert.Equal(t, []string{"requests"}, names)
}
