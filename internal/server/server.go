// Package server mounts both of codegate's HTTP surfaces on one chi
// router: the downstream /v1/mux gateway (component J) that developer
// tools actually talk to, and the control-plane CRUD API an operator or
// the dashboard uses to manage workspaces, provider endpoints, and mux
// rules.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/howard-nolan/codegate/internal/config"
	"github.com/howard-nolan/codegate/internal/embed"
	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/mux"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/sensitive"
	"github.com/howard-nolan/codegate/internal/store"
)

// Server holds every dependency codegate's handlers need.
type Server struct {
	router chi.Router
	cfg    *config.Config
	log    zerolog.Logger

	mux       *mux.Router
	registry  *rules.Registry
	store     *store.Store
	sensitive *sensitive.Manager
	embedder  embed.Embedder
	inputChat *pipeline.InputProcessor
	inputFIM  *pipeline.InputProcessor
	metrics   *metrics.Metrics
	metricsH  http.Handler
}

// New builds a Server, wires routes and middleware, and returns it ready
// to serve. inputChat runs the full input pipeline (secrets/PII
// redaction, codegate-cli, context retrieval, system prompt); inputFIM
// runs only the redaction steps, per spec §4.E.3 ("FIM requests skip
// every step except secrets/PII redaction — no system prompt injection,
// no CLI interception, nothing that would corrupt the completion
// boundary a FIM-aware editor expects"). Either may be nil to disable
// the pipeline for that request kind.
func New(cfg *config.Config, reg *rules.Registry, st *store.Store, sm *sensitive.Manager, embedder embed.Embedder, inputChat, inputFIM *pipeline.InputProcessor, router *mux.Router, log zerolog.Logger, m *metrics.Metrics, metricsHandler http.Handler) *Server {
	s := &Server{
		cfg: cfg, log: log,
		mux: router, registry: reg, store: st, sensitive: sm, embedder: embedder,
		inputChat: inputChat, inputFIM: inputFIM,
		metrics: m, metricsH: metricsHandler,
	}
	s.routes()
	return s
}

// requestLogger is zerolog's answer to chi's middleware.Logger: one
// structured line per request, with the request-scoped logger stashed
// in context so downstream handlers and pipeline steps can log without
// re-deriving request fields — and without ever logging the raw request
// or response body, which may carry secrets this same gateway exists to
// redact.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ctx := reqLog.WithContext(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		reqLog.Info().
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes", ww.BytesWritten()).
			Msg("request handled")
	})
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metricsH)

	r.Post("/v1/mux/*", s.handleMux)

	r.Route("/api/v1/workspaces", func(r chi.Router) {
		r.Get("/", s.handleListWorkspaces)
		r.Post("/", s.handleCreateWorkspace)
		r.Delete("/{name}", s.handleDeleteWorkspace)
		r.Put("/{name}/activate", s.handleActivateWorkspace)
		r.Put("/{name}/mux-rules", s.handleSetMuxRules)
	})

	r.Route("/api/v1/provider-endpoints", func(r chi.Router) {
		r.Get("/", s.handleListProviderEndpoints)
		r.Post("/", s.handleUpsertProviderEndpoint)
		r.Delete("/{id}", s.handleDeleteProviderEndpoint)
	})

	r.Route("/api/v1/personas", func(r chi.Router) {
		r.Post("/", s.handleUpsertPersona)
	})

	s.router = r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
