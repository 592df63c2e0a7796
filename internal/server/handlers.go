package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/howard-nolan/codegate/internal/apierr"
	"github.com/howard-nolan/codegate/internal/mux"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/protocol/common"
	"github.com/howard-nolan/codegate/internal/protocol/openai"
	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/rules/matcher"
	"github.com/howard-nolan/codegate/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleMux is the downstream gateway entrypoint: every developer-tool
// request arrives here as OpenAI-shaped chat or legacy completion JSON,
// regardless of the destination provider the active workspace's mux
// rules eventually pick. Before muxing, the raw body runs through the
// Input Pipeline Engine (component E) — secrets/PII redaction, the
// codegate-cli intercept, malicious-package context, system-prompt
// injection — exactly as spec §4.E describes, so every downstream
// provider only ever sees a request the pipeline has already cleared.
func (s *Server) handleMux(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		apierr.Write(w, apierr.BadRequest("reading request body", err))
		return
	}

	urlPath := chi.URLParam(r, "*")
	workspaceHeader := r.Header.Get(mux.WorkspaceHeader)
	clientType := r.Header.Get("X-CodeGate-Client")

	var rawBody map[string]any
	if err := json.Unmarshal(raw, &rawBody); err != nil {
		apierr.Write(w, apierr.BadRequest("parsing request body as JSON", err))
		return
	}
	isFIM := mux.IsFIMRequest(urlPath, rawBody)

	promptID := uuid.NewString()
	sessionID := promptID
	pctx := pipeline.NewContext(promptID, sessionID, clientType, isFIM, s.sensitive, nil)

	body, shortcut, err := s.runInputPipeline(r.Context(), raw, isFIM, pctx)
	if err != nil {
		apierr.Write(w, apierr.PipelineError(err.Error(), err))
		return
	}
	if shortcut != nil {
		writeShortcutResponse(w, isFIM, shortcut)
		return
	}

	route, err := s.mux.Dispatch(r.Context(), body, urlPath, workspaceHeader, clientType, pctx)
	if err != nil {
		var noMatch *mux.NoMatchError
		if errors.As(err, &noMatch) {
			s.metrics.MuxErrors.WithLabelValues("no_match").Inc()
			apierr.Write(w, apierr.NotFound(noMatch.Error(), err))
			return
		}
		s.metrics.MuxErrors.WithLabelValues("dispatch").Inc()
		apierr.Write(w, apierr.Upstream(err.Error(), err))
		return
	}

	s.metrics.MuxRequests.WithLabelValues(route.Destination.ProviderType, fimLabel(route.IsFIM)).Inc()

	if err := s.mux.WriteResponse(r.Context(), w, route); err != nil {
		s.metrics.MuxErrors.WithLabelValues("write_response").Inc()
	}
}

func fimLabel(isFIM bool) string {
	if isFIM {
		return "true"
	}
	return "false"
}

// shortcutResult is what runInputPipeline returns when a step
// short-circuited the request (the codegate-cli intercept, most often).
type shortcutResult struct {
	Text  string
	Model string
}

// runInputPipeline decodes raw into the typed OpenAI request shape
// matching isFIM, runs it through the matching input processor, and re-marshals the
// (possibly redacted/annotated) result. A non-nil shortcutResult means
// the caller should respond directly instead of dispatching upstream.
func (s *Server) runInputPipeline(ctx context.Context, raw []byte, isFIM bool, pctx *pipeline.Context) ([]byte, *shortcutResult, error) {
	if isFIM {
		if s.inputFIM == nil {
			return raw, nil, nil
		}
		var req openai.LegacyCompletionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, nil, err
		}
		return s.finishInputPipeline(ctx, s.inputFIM, &req, pctx)
	}

	if s.inputChat == nil {
		return raw, nil, nil
	}
	var req openai.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, err
	}
	return s.finishInputPipeline(ctx, s.inputChat, &req, pctx)
}

func (s *Server) finishInputPipeline(ctx context.Context, proc *pipeline.InputProcessor, req common.Request, pctx *pipeline.Context) ([]byte, *shortcutResult, error) {
	outcome, err := proc.Process(ctx, req, pctx)
	if err != nil {
		return nil, nil, err
	}
	switch outcome.Kind {
	case pipeline.InputShortcut:
		return nil, &shortcutResult{Text: outcome.ShortcutText, Model: outcome.ShortcutModel}, nil
	case pipeline.InputError:
		return nil, nil, fmt.Errorf("%s", outcome.Message)
	default:
		out, err := json.Marshal(outcome.Request)
		return out, nil, err
	}
}

func writeShortcutResponse(w http.ResponseWriter, isFIM bool, sc *shortcutResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if isFIM {
		_ = json.NewEncoder(w).Encode(openai.LegacyCompletion{
			Object: "text_completion", Model: sc.Model,
			Choices: []openai.LegacyMessage{{Text: sc.Text, FinishReason: "stop"}},
		})
		return
	}
	content, _ := json.Marshal(sc.Text)
	_ = json.NewEncoder(w).Encode(openai.ChatResponse{
		Object: "chat.completion", Model: sc.Model,
		Choices: []openai.Choice{{Message: openai.Message{RoleName: "assistant", Content: content}, FinishReason: "stop"}},
	})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"workspaces": s.store.ListWorkspaces(),
		"active":     s.store.ActiveWorkspace(),
	})
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.BadRequest("decoding request body", err))
		return
	}
	if req.Name == "" {
		apierr.Write(w, apierr.BadRequest("name is required", nil))
		return
	}
	if err := s.store.CreateWorkspace(req.Name); err != nil {
		if errors.Is(err, store.ErrExists) {
			apierr.Write(w, apierr.Conflict(err.Error(), err))
			return
		}
		apierr.Write(w, apierr.Internal(err.Error(), err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteWorkspace(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierr.Write(w, apierr.NotFound(err.Error(), err))
			return
		}
		apierr.Write(w, apierr.BadRequest(err.Error(), err))
		return
	}
	s.registry.DeleteRules(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.SetActiveWorkspace(name); err != nil {
		apierr.Write(w, apierr.NotFound(err.Error(), err))
		return
	}
	s.registry.SetActive(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMuxRules(w http.ResponseWriter, r *http.Request) {
	workspace := chi.URLParam(r, "name")
	var specs []matcher.Spec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		apierr.Write(w, apierr.BadRequest("decoding request body", err))
		return
	}

	lookup := func(name string) ([]float32, bool) {
		p, ok := s.store.Persona(name)
		if !ok {
			return nil, false
		}
		return p.Embedding, true
	}

	built := make([]rules.Matcher, 0, len(specs))
	for _, spec := range specs {
		m, err := matcher.Build(spec, lookup, s.embedder)
		if err != nil {
			apierr.Write(w, apierr.PipelineError(err.Error(), err))
			return
		}
		built = append(built, m)
	}

	if err := s.store.SetWorkspaceRules(s.registry, workspace, specs, built); err != nil {
		apierr.Write(w, apierr.NotFound(err.Error(), err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePersonaRequest is the wire shape for creating/updating a
// persona: an operator submits a free-text description, and codegate
// embeds it server-side exactly like an incoming query would be, so the
// stored vector is comparable against request-time embeddings.
type handlePersonaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleUpsertPersona(w http.ResponseWriter, r *http.Request) {
	var req handlePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.BadRequest("decoding request body", err))
		return
	}
	if req.Name == "" || req.Description == "" {
		apierr.Write(w, apierr.BadRequest("name and description are required", nil))
		return
	}
	if s.embedder == nil {
		apierr.Write(w, apierr.Internal("no embedder configured", nil))
		return
	}

	embeddings, err := s.embedder.Embed(r.Context(), []string{req.Description})
	if err != nil {
		apierr.Write(w, apierr.Internal("embedding persona description", err))
		return
	}

	if err := s.store.UpsertPersona(store.Persona{Name: req.Name, Embedding: embeddings[0]}); err != nil {
		if errors.Is(err, store.ErrPersonaTooSimilar) {
			apierr.Write(w, apierr.Conflict(err.Error(), err))
			return
		}
		apierr.Write(w, apierr.Internal(err.Error(), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": req.Name})
}

func (s *Server) handleListProviderEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListProviderEndpoints())
}

func (s *Server) handleUpsertProviderEndpoint(w http.ResponseWriter, r *http.Request) {
	var ep store.ProviderEndpoint
	if err := json.NewDecoder(r.Body).Decode(&ep); err != nil {
		apierr.Write(w, apierr.BadRequest("decoding request body", err))
		return
	}
	if ep.ID == "" || ep.Endpoint == "" || ep.ProviderType == "" {
		apierr.Write(w, apierr.BadRequest("id, endpoint, and provider_type are required", nil))
		return
	}
	s.store.UpsertProviderEndpoint(ep)
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleDeleteProviderEndpoint(w http.ResponseWriter, r *http.Request) {
	s.store.DeleteProviderEndpoint(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
