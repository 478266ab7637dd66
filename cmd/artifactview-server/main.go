package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/foundry/artifactview/internal/adapters/auth"
	"github.com/foundry/artifactview/internal/adapters/backend"
	"github.com/foundry/artifactview/internal/api/handlers"
	"github.com/foundry/artifactview/internal/config"
	"github.com/foundry/artifactview/internal/core/views"
	"github.com/foundry/artifactview/internal/util/logging"
	"github.com/foundry/artifactview/internal/util/metrics"
	"github.com/foundry/artifactview/internal/util/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config file (environment only when empty)")
	flag.Parse()

	logger := logging.New(os.Stdout, "artifactview")

	cfg, err := config.Load(*configPath, os.Environ())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize backend client.
	client, err := backend.NewClient(backend.Options{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
		Metrics: m,
		Logger:  logger.With().Str("component", "backend").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize backend client")
	}

	view := views.New(client, cfg.ViewConfig(), logger.With().Str("component", "views").Logger())
	authenticator := auth.NewTokenAuth(cfg.Auth.Tokens)

	// Initialize HTTP handlers.
	handler := handlers.New(view, authenticator, reg, m, logger, handlers.Options{
		RateLimit:      cfg.Server.RateLimit,
		Compress:       cfg.Server.Compress,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.Telemetry.ServiceName,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("backend", cfg.Backend.URL).
			Int("tokens", authenticator.Len()).
			Msg("starting artifactview server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("flushing traces failed")
	}
}
