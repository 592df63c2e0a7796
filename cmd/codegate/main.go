// Package main is the entry point for the codegate gateway: it loads
// configuration, wires every component the spec describes (store,
// session/sensitive-data manager, rule registry, embedder, provider
// adapters, the input/output pipeline engines, the muxing router) and
// starts serving.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/codegate/internal/config"
	"github.com/howard-nolan/codegate/internal/metrics"
	"github.com/howard-nolan/codegate/internal/mux"
	"github.com/howard-nolan/codegate/internal/packageindex"
	"github.com/howard-nolan/codegate/internal/pipeline"
	"github.com/howard-nolan/codegate/internal/provider"
	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/server"
	"github.com/howard-nolan/codegate/internal/sensitive"
)

// codegateVersion answers the `codegate version` CLI intercept; bumped
// by hand since this port has no build-time ldflags injection set up.
const codegateVersion = "0.1.0"

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	st := openStore(cfg, log)

	sessionStore := buildSessionStore(cfg, log)
	sensitiveManager := sensitive.New(sessionStore)

	embedder := buildEmbedder(cfg, log)
	st.SetPersonaDiffThreshold(cfg.Gateway.PersonaDiffThreshold)

	registry := rules.New()
	seedRegistry(st, registry, embedder, log)

	adapters := provider.Registry()
	seedProviderEndpoints(cfg, st)

	signatures := buildSignatures(cfg, log)
	index := packageindex.New()

	m, metricsHandler := metrics.New()

	inputChat := buildChatInputProcessor(st, registry, signatures, index, m)
	inputFIM := buildFIMInputProcessor(signatures, m)

	router := &mux.Router{
		Registry:        registry,
		Adapters:        adapters,
		WorkspaceExists: st.WorkspaceExists,
		OutputSteps: func(pctx *pipeline.Context) []pipeline.OutputStep {
			return buildOutputSteps(pctx, index)
		},
		Metrics: m,
	}

	srv := server.New(cfg, registry, st, sensitiveManager, embedder, inputChat, inputFIM, router, log, m, metricsHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("codegate listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server error")
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := persistStore(st, cfg); err != nil {
		log.Error().Err(err).Msg("persisting store snapshot")
	}
}
