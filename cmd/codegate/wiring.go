package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/howard-nolan/codegate/internal/config"
	"github.com/howard-nolan/codegate/internal/embed"
	"github.com/howard-nolan/codegate/internal/embed/fakeembedder"
	"github.com/howard-nolan/codegate/internal/embed/onnxembedder"
	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/packageindex"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/pipeline/steps"
	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/rules/matcher"
	"github.com/howard-nolan/codegate/internal/session"
	"github.com/howard-nolan/codegate/internal/session/redisstore"
	"github.com/howard-nolan/codegate/internal/store"
)

// snapshotFile is the bbolt database filename codegate persists its
// control-plane state to, under cfg.Gateway.DataDir.
const snapshotFile = "codegate.db"

func snapshotPath(cfg *config.Config) string {
	if cfg.Gateway.DataDir == "" {
		return snapshotFile
	}
	return cfg.Gateway.DataDir + "/" + snapshotFile
}

// openStore loads a persisted snapshot if one exists, or starts fresh.
func openStore(cfg *config.Config, log zerolog.Logger) *store.Store {
	if cfg.Gateway.DataDir == "" {
		return store.New()
	}
	st, err := store.LoadFrom(snapshotPath(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("loading persisted store snapshot, starting fresh")
		return store.New()
	}
	return st
}

func persistStore(st *store.Store, cfg *config.Config) error {
	if cfg.Gateway.DataDir == "" {
		return nil
	}
	return st.PersistTo(snapshotPath(cfg))
}

// buildSessionStore picks redisstore when RedisAddr is configured (a
// multi-replica deployment), the in-memory default otherwise.
func buildSessionStore(cfg *config.Config, log zerolog.Logger) session.Store {
	if cfg.Gateway.RedisAddr == "" {
		return session.NewInMemoryStore()
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Gateway.RedisAddr})
	ttl := cfg.Gateway.SessionTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	log.Info().Str("addr", cfg.Gateway.RedisAddr).Msg("using redis session store")
	return redisstore.New(rdb, ttl, "codegate:session:")
}

// buildEmbedder wires the ONNX embedder when a model path is configured,
// falling back to the deterministic FakeEmbedder — fine for development
// and for deployments that never configure persona-matching rules.
func buildEmbedder(cfg *config.Config, log zerolog.Logger) embed.Embedder {
	if cfg.Gateway.ONNXModelPath == "" {
		log.Warn().Msg("no onnx_model_path configured, using fake embedder (persona matching will not be meaningful)")
		return fakeembedder.New()
	}
	e, err := onnxembedder.New(onnxembedder.Config{
		ModelPath:     cfg.Gateway.ONNXModelPath,
		TokenizerPath: cfg.Gateway.ONNXTokenizerPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("loading onnx embedder")
	}
	return e
}

// seedRegistry repopulates reg from whatever mux rules st restored from
// its bbolt snapshot, rebuilding each workspace's matchers from its
// persisted matcher.Spec list via matcher.Build — mirroring the spec's
// "on startup the registry is repopulated from persistence" requirement.
// A workspace with no persisted specs still gets an empty rule list so
// the router's GetRules lookup succeeds ("no rules configured" must
// mean "no match", not "unknown workspace").
func seedRegistry(st *store.Store, reg *rules.Registry, embedder embed.Embedder, log zerolog.Logger) {
	lookup := func(name string) ([]float32, bool) {
		p, ok := st.Persona(name)
		if !ok {
			return nil, false
		}
		return p.Embedding, true
	}

	for _, name := range st.ListWorkspaces() {
		specs, ok := st.RuleSpecs(name)
		if !ok {
			reg.SetRules(name, nil)
			continue
		}
		built := make([]rules.Matcher, 0, len(specs))
		for _, spec := range specs {
			m, err := matcher.Build(spec, lookup, embedder)
			if err != nil {
				log.Warn().Err(err).Str("workspace", name).Msg("rebuilding persisted mux rule, skipping it")
				continue
			}
			built = append(built, m)
		}
		reg.SetRules(name, built)
	}
	reg.SetActive(st.ActiveWorkspace())
}

func seedProviderEndpoints(cfg *config.Config, st *store.Store) {
	for name, p := range cfg.Providers {
		st.UpsertProviderEndpoint(store.ProviderEndpoint{
			ID:           name,
			Name:         p.Name,
			ProviderType: p.Type,
			Endpoint:     p.BaseURL,
			AuthType:     "bearer",
			AuthBlob:     p.APIKey,
		})
	}
}

func buildSignatures(cfg *config.Config, log zerolog.Logger) *steps.SignatureSet {
	if cfg.Gateway.SignaturesPath == "" {
		return steps.DefaultSignatures()
	}
	sigs, err := steps.LoadSignatures(cfg.Gateway.SignaturesPath)
	if err != nil {
		log.Warn().Err(err).Msg("loading signatures file, falling back to built-in set")
		return steps.DefaultSignatures()
	}
	return sigs
}

// buildChatInputProcessor assembles the full input step list a chat
// request runs through: redaction first (so every later step only ever
// sees already-redacted text), then the codegate-cli intercept, the
// malicious-package context retriever, and finally system-prompt
// injection — the order SystemPrompt's own doc comment requires, since
// it branches on flags the earlier steps set.
func buildChatInputProcessor(st *store.Store, reg *rules.Registry, signatures *steps.SignatureSet, index *packageindex.Index, m *metrics.Metrics) *pipeline.InputProcessor {
	cli := &steps.CodegateCli{
		Commands: map[string]steps.CLIRunner{
			"version":             versionRunner{version: codegateVersion},
			"workspace":           workspaceRunner{store: st, reg: reg},
			"custom-instructions": customInstructionsRunner{store: st},
		},
	}

	p := pipeline.NewInputProcessor(
		&steps.SecretsRedact{Signatures: signatures, Metrics: m},
		&steps.PIIRedact{Metrics: m},
		cli,
		&steps.ContextRetriever{Index: index, Ecosystem: "npm", Metrics: m},
		&steps.SystemPrompt{
			BasePrompt: "codegate has redacted sensitive content from this conversation or flagged a referenced package as unsafe.",
		},
	)
	p.SetMetrics(m)
	return p
}

// buildFIMInputProcessor builds the redaction-only step list FIM
// requests run through, per spec §4.E.3: no system prompt injection, no
// CLI interception — anything else would corrupt the completion
// boundary a FIM-aware editor expects around the cursor position.
func buildFIMInputProcessor(signatures *steps.SignatureSet, m *metrics.Metrics) *pipeline.InputProcessor {
	p := pipeline.NewInputProcessor(
		&steps.SecretsRedact{Signatures: signatures, Metrics: m},
		&steps.PIIRedact{Metrics: m},
	)
	p.SetMetrics(m)
	return p
}

// buildOutputSteps assembles the per-stream Output Pipeline Engine step
// list: unredact secrets and PII back to their original values before
// the client ever sees them, then annotate any code block referencing a
// flagged package with a warning comment.
func buildOutputSteps(pctx *pipeline.Context, index *packageindex.Index) []pipeline.OutputStep {
	return []pipeline.OutputStep{
		steps.NewSecretsUnredact(pctx),
		steps.NewPIIUnredact(pctx),
		steps.NewSecretsNotifier(pctx),
		steps.NewCodeCommentStep(pctx, index),
	}
}
