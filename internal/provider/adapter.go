// Package provider implements the provider adapters (component K): the
// thin HTTP clients that take an already-mapped, destination-shaped
// request body and actually talk to an upstream LLM backend, returning
// its raw response stream for the muxing router to decode and translate
// back into the client's wire protocol.
//
// The original six provider types split into three wire families: OpenAI
// and its three API-compatible cousins (vLLM, llama.cpp's server mode,
// OpenRouter) all speak the OpenAI chat-completions/completions wire
// format and differ only in base URL and auth header; Anthropic and
// Ollama each have their own request/response shape, handled by the
// mapper package before the body ever reaches an Adapter.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ProviderType identifies one of the six upstream backends codegate
// knows how to speak to. It is also the string stored on a persisted
// provider endpoint and mux rule destination.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOllama     ProviderType = "ollama"
	ProviderVLLM       ProviderType = "vllm"
	ProviderLlamaCPP   ProviderType = "llamacpp"
	ProviderOpenRouter ProviderType = "openrouter"
)

// defaultLlamaCPPModelsFolder is the fallback local models directory used
// when no CODEGATE_PROVIDER_URL_LLAMACPP override is configured,
// mirroring adapter.py's get_llamacpp_models_folder default.
const defaultLlamaCPPModelsFolder = "./codegate_volume/models"

// FormatBaseURL rewrites a configured provider endpoint into the base
// URL an outbound request should actually use, grounded on
// muxing/adapter.py's get_provider_formatted_url. llamacpp is the odd
// one out: it names a local models folder rather than a URL, since
// codegate drives an in-process llama.cpp server rather than proxying
// to a remote one.
func FormatBaseURL(pt ProviderType, endpoint string) (string, error) {
	switch pt {
	case ProviderOpenAI, ProviderVLLM:
		return joinURL(endpoint, "/v1")
	case ProviderOpenRouter:
		return joinURL(endpoint, "/api/v1")
	case ProviderLlamaCPP:
		if override := os.Getenv("CODEGATE_PROVIDER_URL_LLAMACPP"); override != "" {
			return override, nil
		}
		return defaultLlamaCPPModelsFolder, nil
	default: // ollama, anthropic: endpoint used verbatim
		return endpoint, nil
	}
}

// joinURL mirrors Python's urllib.parse.urljoin(endpoint, path): path is
// absolute, so it replaces whatever path component endpoint already had.
func joinURL(endpoint, path string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("provider: parsing endpoint %q: %w", endpoint, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("provider: parsing path %q: %w", path, err)
	}
	return u.ResolveReference(ref).String(), nil
}

// Destination is everything an Adapter needs to place one outbound
// request: where to send it, how to authenticate, and which path
// suffix/streaming mode the wire protocol expects.
type Destination struct {
	BaseURL string
	APIKey  string
	Path    string
	Stream  bool
}

// Adapter sends an already-mapped request body to one upstream backend
// and returns its raw HTTP response. The muxing router is responsible
// for decoding resp.Body per the destination's wire protocol (SSE for
// openai/anthropic/vllm/openrouter/llamacpp, NDJSON for ollama) and
// mapping it back to the client's protocol.
type Adapter interface {
	Type() ProviderType
	Send(ctx context.Context, dest Destination, body []byte) (*http.Response, error)
}

// httpClient is shared by every Adapter; upstream calls are proxied
// request/response pairs, not held open indefinitely, so a generous but
// finite timeout guards against a hung upstream connection. Streaming
// responses are read incrementally by the caller, so the timeout only
// bounds the time to receive headers plus the time between reads, not
// the whole stream's lifetime (net/http resets it per Read).
var httpClient = &http.Client{Timeout: 5 * time.Minute}

func newRequest(ctx context.Context, dest Destination, body []byte, extraHeaders map[string]string) (*http.Request, error) {
	target := strings.TrimRight(dest.BaseURL, "/") + dest.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: building request to %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if dest.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func do(req *http.Request) (*http.Response, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: sending request to %s: %w", req.URL, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("provider: upstream %s returned %s", req.URL, resp.Status)
	}
	return resp, nil
}

// openAICompatible is the shared Adapter implementation for the four
// provider types that speak OpenAI's wire format: OpenAI itself, vLLM,
// OpenRouter, and llama.cpp's OpenAI-compatible server mode. They differ
// only in auth header shape.
type openAICompatible struct {
	pt ProviderType
}

func NewOpenAI() Adapter     { return openAICompatible{pt: ProviderOpenAI} }
func NewVLLM() Adapter       { return openAICompatible{pt: ProviderVLLM} }
func NewOpenRouter() Adapter { return openAICompatible{pt: ProviderOpenRouter} }
func NewLlamaCPP() Adapter   { return openAICompatible{pt: ProviderLlamaCPP} }

func (a openAICompatible) Type() ProviderType { return a.pt }

func (a openAICompatible) Send(ctx context.Context, dest Destination, body []byte) (*http.Response, error) {
	headers := map[string]string{}
	if dest.APIKey != "" {
		headers["Authorization"] = "Bearer " + dest.APIKey
	}
	req, err := newRequest(ctx, dest, body, headers)
	if err != nil {
		return nil, err
	}
	return do(req)
}

// anthropicAdapter speaks Anthropic's native Messages API: auth via
// x-api-key plus a required anthropic-version header, instead of a
// bearer token.
type anthropicAdapter struct{}

// AnthropicAPIVersion is the anthropic-version header value codegate
// requests requests against; bump together with protocol/anthropic's
// type definitions if the wire format ever changes.
const AnthropicAPIVersion = "2023-06-01"

func NewAnthropic() Adapter { return anthropicAdapter{} }

func (anthropicAdapter) Type() ProviderType { return ProviderAnthropic }

func (anthropicAdapter) Send(ctx context.Context, dest Destination, body []byte) (*http.Response, error) {
	headers := map[string]string{
		"anthropic-version": AnthropicAPIVersion,
	}
	if dest.APIKey != "" {
		headers["x-api-key"] = dest.APIKey
	}
	req, err := newRequest(ctx, dest, body, headers)
	if err != nil {
		return nil, err
	}
	return do(req)
}

// ollamaAdapter speaks Ollama's native chat/generate API: no auth header
// at all in the common local-daemon deployment, NDJSON rather than SSE.
type ollamaAdapter struct{}

func NewOllama() Adapter { return ollamaAdapter{} }

func (ollamaAdapter) Type() ProviderType { return ProviderOllama }

func (ollamaAdapter) Send(ctx context.Context, dest Destination, body []byte) (*http.Response, error) {
	headers := map[string]string{}
	if dest.APIKey != "" {
		headers["Authorization"] = "Bearer " + dest.APIKey
	}
	req, err := newRequest(ctx, dest, body, headers)
	if err != nil {
		return nil, err
	}
	return do(req)
}

// Registry maps a ProviderType to the Adapter instance that serves it.
// All six entries are stateless, so one shared instance per type is
// enough for the whole process.
func Registry() map[ProviderType]Adapter {
	return map[ProviderType]Adapter{
		ProviderOpenAI:     NewOpenAI(),
		ProviderAnthropic:  NewAnthropic(),
		ProviderOllama:     NewOllama(),
		ProviderVLLM:       NewVLLM(),
		ProviderLlamaCPP:   NewLlamaCPP(),
		ProviderOpenRouter: NewOpenRouter(),
	}
}
