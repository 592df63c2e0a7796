package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/howard-nolan/codegate/internal/mapper"
	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
	"github.com/howard-nolan/codegate/internal/provider"
	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/streamcodec"
)

// NoMatchError is returned when no rule in the relevant workspace
// matched; the HTTP layer turns this into a 404, mirroring the
// original's "No matching rule found for the active workspace".
type NoMatchError struct{ Workspace string }

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no matching rule found for workspace %q", e.Workspace)
}

// WorkspaceHeader is the header a client sets to pick a non-active
// workspace's mux rules for one request.
const WorkspaceHeader = "X-CodeGate-Workspace"

// WorkspaceExists is injected by the caller (backed by the control-plane
// store) to validate a workspace named in WorkspaceHeader before trusting
// it over the registry's active workspace.
type WorkspaceExists func(name string) bool

// Router is the Muxing Router (component J): it decides FIM-ness, picks
// a destination via the rule registry, rewrites the request body for
// that destination, dispatches it through the matching provider.Adapter,
// and decodes the response back into the client-facing OpenAI wire
// format every /v1/mux request speaks.
type Router struct {
	Registry        *rules.Registry
	Adapters        map[provider.ProviderType]provider.Adapter
	WorkspaceExists WorkspaceExists

	// OutputSteps builds the per-stream Output Pipeline Engine step list
	// (unredaction, comment annotation) bound to pctx. Left nil, WriteResponse
	// forwards upstream text unmodified — useful for FIM-only deployments
	// that skip the full pipeline. The caller rebuilds this closure once at
	// startup over whatever pipeline.Context-independent steps it wants
	// (e.g. CodeCommentStep's package index) the same way InputProcessor is
	// built once and reused.
	OutputSteps func(pctx *pipeline.Context) []pipeline.OutputStep

	// Metrics, if set, is shared with every OutputInstance this router
	// builds so per-step latency lands in the same Prometheus registry as
	// the HTTP-layer mux counters. Left nil in deployments/tests that
	// don't wire Prometheus.
	Metrics *metrics.Metrics
}

// New constructs a Router. adapters is normally provider.Registry().
func New(reg *rules.Registry, adapters map[provider.ProviderType]provider.Adapter, exists WorkspaceExists) *Router {
	return &Router{Registry: reg, Adapters: adapters, WorkspaceExists: exists}
}

// relevantWorkspace mirrors _get_relevant_workspace_name: trust the
// header only if that workspace actually exists, else fall back to the
// registry's active workspace.
func (rt *Router) relevantWorkspace(header string) string {
	if header != "" && rt.WorkspaceExists != nil && rt.WorkspaceExists(header) {
		return header
	}
	return rt.Registry.Active()
}

// matchRoute finds the first matcher (in registry order) that matches t,
// returning its destination.
func (rt *Router) matchRoute(ctx context.Context, workspace string, t rules.ThingToMatch) (rules.ModelRoute, bool, error) {
	matchers, ok := rt.Registry.GetRules(workspace)
	if !ok {
		return rules.ModelRoute{}, false, nil
	}
	for _, m := range matchers {
		matched, err := m.Match(ctx, t)
		if err != nil {
			return rules.ModelRoute{}, false, fmt.Errorf("mux: evaluating matcher %s: %w", m.Name(), err)
		}
		if matched {
			return m.Destination(), true, nil
		}
	}
	return rules.ModelRoute{}, false, nil
}

// providerPath returns the upstream path suffix for a destination
// provider type and FIM-ness, mirroring each protocol's own two-endpoint
// split (chat vs completion/generate).
func providerPath(pt provider.ProviderType, isFIM bool) string {
	switch pt {
	case provider.ProviderOllama:
		if isFIM {
			return "/api/generate"
		}
		return "/api/chat"
	case provider.ProviderAnthropic:
		return "/messages"
	default: // openai, vllm, openrouter, llamacpp
		if isFIM {
			return "/completions"
		}
		return "/chat/completions"
	}
}

// Route is the result of a successful dispatch: how to decode and
// present resp.Body back to the client.
type Route struct {
	Destination       rules.ModelRoute
	IsFIM             bool
	ClientWantsStream bool
	resp              *http.Response

	// PipelineCtx, if non-nil, is the request's Output Pipeline Engine
	// context; WriteResponse threads the response stream through
	// rt.OutputSteps(PipelineCtx) before writing it to the client.
	PipelineCtx *pipeline.Context
}

// Dispatch runs the full component-J pipeline for one incoming /v1/mux
// request: parse, detect FIM, match, rewrite, send. rawBody is the
// client's raw JSON request body (already processed by the Input
// Pipeline Engine and re-marshaled — see server.handleMux). urlPath is
// the path segment after /v1/mux/ the client actually posted to (used
// only for llama.cpp-style URL-based FIM detection). pctx, if non-nil,
// is carried onto the returned Route so WriteResponse can run the
// matching Output Pipeline Engine instance over the response stream.
func (rt *Router) Dispatch(ctx context.Context, rawBody []byte, urlPath, workspaceHeader, clientType string, pctx *pipeline.Context) (*Route, error) {
	var body map[string]any
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, fmt.Errorf("mux: parsing request body as JSON: %w", err)
	}

	isFIM := IsFIMRequest(urlPath, body)
	workspace := rt.relevantWorkspace(workspaceHeader)

	t := rules.ThingToMatch{Body: body, URLPath: urlPath, IsFIMRequest: isFIM, ClientType: clientType}
	dest, matched, err := rt.matchRoute(ctx, workspace, t)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, &NoMatchError{Workspace: workspace}
	}

	outBody, wantStream, err := rt.buildDestinationBody(dest, body, isFIM)
	if err != nil {
		return nil, err
	}

	pt := provider.ProviderType(dest.ProviderType)
	adapter, ok := rt.Adapters[pt]
	if !ok {
		return nil, fmt.Errorf("mux: no adapter registered for provider type %q", dest.ProviderType)
	}
	baseURL, err := provider.FormatBaseURL(pt, dest.Endpoint)
	if err != nil {
		return nil, err
	}

	destination := provider.Destination{
		BaseURL: baseURL,
		APIKey:  dest.AuthBlob,
		Path:    providerPath(pt, isFIM),
		Stream:  true, // always stream upstream; see response.go for the non-stream fold-back
	}
	resp, err := adapter.Send(ctx, destination, outBody)
	if err != nil {
		return nil, err
	}

	return &Route{Destination: dest, IsFIM: isFIM, ClientWantsStream: wantStream, resp: resp, PipelineCtx: pctx}, nil
}

// buildDestinationBody decodes the client's raw OpenAI-shaped body into
// its typed request struct, overwrites the model with the destination's
// configured model, maps it into the destination protocol's own typed
// request (a no-op for the OpenAI-compatible family), and re-marshals
// it. It also returns whether the ORIGINAL client request asked to
// stream, since the destination request is always sent with stream:true
// regardless (see Dispatch).
func (rt *Router) buildDestinationBody(dest rules.ModelRoute, body map[string]any, isFIM bool) ([]byte, bool, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("mux: re-encoding request body: %w", err)
	}

	if isFIM {
		var req openai.LegacyCompletionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false, fmt.Errorf("mux: decoding legacy completion request: %w", err)
		}
		wantStream := req.Stream
		req.Model = dest.Model
		out, err := marshalLegacyForDestination(provider.ProviderType(dest.ProviderType), &req)
		return out, wantStream, err
	}

	var req openai.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, false, fmt.Errorf("mux: decoding chat request: %w", err)
	}
	wantStream := req.Stream
	req.Model = dest.Model
	out, err := marshalChatForDestination(provider.ProviderType(dest.ProviderType), &req)
	return out, wantStream, err
}

func marshalChatForDestination(pt provider.ProviderType, req *openai.ChatRequest) ([]byte, error) {
	switch pt {
	case provider.ProviderAnthropic:
		dst, err := mapper.AnthropicFromOpenAI(req)
		if err != nil {
			return nil, fmt.Errorf("mux: mapping chat request to anthropic: %w", err)
		}
		dst.Stream = true
		return json.Marshal(dst)
	case provider.ProviderOllama:
		dst := mapper.OllamaChatFromOpenAI(req)
		dst.Stream = true
		return json.Marshal(dst)
	default: // openai, vllm, openrouter, llamacpp
		req.Stream = true
		return json.Marshal(req)
	}
}

func marshalLegacyForDestination(pt provider.ProviderType, req *openai.LegacyCompletionRequest) ([]byte, error) {
	switch pt {
	case provider.ProviderAnthropic:
		dst, err := mapper.AnthropicFromLegacyOpenAI(req)
		if err != nil {
			return nil, fmt.Errorf("mux: mapping legacy request to anthropic: %w", err)
		}
		dst.Stream = true
		return json.Marshal(dst)
	case provider.ProviderOllama:
		chatReq := mapper.ChatFromLegacyCompletion(req)
		dst := mapper.OllamaGenerateFromOpenAI(chatReq)
		dst.Stream = true
		return json.Marshal(dst)
	default:
		req.Stream = true
		return json.Marshal(req)
	}
}

// WriteResponse decodes route's upstream response and writes it back to
// w in OpenAI's wire format — SSE if the client asked to stream, a
// single JSON object otherwise — closing route's upstream body when
// done. This is the "4. Transmit the response back to the client in
// OpenAI format" step of the original's route_to_dest_provider.
func (rt *Router) WriteResponse(ctx context.Context, w http.ResponseWriter, route *Route) error {
	defer route.resp.Body.Close()

	if route.IsFIM {
		return rt.writeLegacyResponse(ctx, w, route)
	}
	return rt.writeChatResponse(ctx, w, route)
}

// outputInstance builds the per-stream Output Pipeline Engine instance
// for route, or nil if the router has no output steps configured or the
// request carries no pipeline context (e.g. a FIM-only caller that opted
// out of the full pipeline).
func (rt *Router) outputInstance(route *Route) *pipeline.OutputInstance {
	if rt.OutputSteps == nil || route.PipelineCtx == nil {
		return nil
	}
	inst := pipeline.NewOutputInstance(route.PipelineCtx, nil, rt.OutputSteps(route.PipelineCtx)...)
	inst.SetMetrics(rt.Metrics)
	return inst
}

func chatChunksFrom(ctx context.Context, pt provider.ProviderType, body io.Reader) <-chan openai.ChatChunk {
	switch pt {
	case provider.ProviderAnthropic:
		frames, _ := streamcodec.ScanSSE(ctx, body)
		return mapper.AnthropicToOpenAIStream(ctx, decodeAnthropicSSE(ctx, frames))
	case provider.ProviderOllama:
		lines, _ := streamcodec.ScanNDJSON(ctx, body)
		out, _ := mapper.OpenAIChunkFromOllamaChat(ctx, decodeOllamaChatNDJSON(ctx, lines))
		return out
	default:
		frames, _ := streamcodec.ScanSSE(ctx, body)
		return decodeOpenAIChatSSE(ctx, frames)
	}
}

func legacyChunksFrom(ctx context.Context, pt provider.ProviderType, body io.Reader) <-chan openai.LegacyCompletion {
	switch pt {
	case provider.ProviderAnthropic:
		frames, _ := streamcodec.ScanSSE(ctx, body)
		return mapper.AnthropicToLegacyOpenAIStream(ctx, decodeAnthropicSSE(ctx, frames))
	case provider.ProviderOllama:
		lines, _ := streamcodec.ScanNDJSON(ctx, body)
		return mapper.OpenAIChunkFromOllamaGenerate(ctx, decodeOllamaGenerateNDJSON(ctx, lines))
	default:
		frames, _ := streamcodec.ScanSSE(ctx, body)
		return decodeOpenAILegacySSE(ctx, frames)
	}
}

func (rt *Router) writeChatResponse(ctx context.Context, w http.ResponseWriter, route *Route) error {
	chunks := chatChunksFrom(ctx, provider.ProviderType(route.Destination.ProviderType), route.resp.Body)
	if oi := rt.outputInstance(route); oi != nil {
		chunks = transformChatStream(ctx, chunks, oi)
	}

	if !route.ClientWantsStream {
		var all []openai.ChatChunk
		for c := range chunks {
			all = append(all, c)
		}
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(accumulateChat(all))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	sw := streamcodec.NewSSEWriter(w)
	for c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		if err := sw.WriteFrame("", string(data)); err != nil {
			return err
		}
	}
	return sw.WriteDone()
}

func (rt *Router) writeLegacyResponse(ctx context.Context, w http.ResponseWriter, route *Route) error {
	chunks := legacyChunksFrom(ctx, provider.ProviderType(route.Destination.ProviderType), route.resp.Body)
	if oi := rt.outputInstance(route); oi != nil {
		chunks = transformLegacyStream(ctx, chunks, oi)
	}

	if !route.ClientWantsStream {
		var all []openai.LegacyCompletion
		for c := range chunks {
			all = append(all, c)
		}
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(accumulateLegacy(all))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	sw := streamcodec.NewSSEWriter(w)
	for c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		if err := sw.WriteFrame("", string(data)); err != nil {
			return err
		}
	}
	return sw.WriteDone()
}
