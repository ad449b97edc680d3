package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/property-doc-engine/internal/adapters/http"
	"github.com/kirillkom/property-doc-engine/internal/bootstrap"
	"github.com/kirillkom/property-doc-engine/internal/config"
	"github.com/kirillkom/property-doc-engine/internal/observability/logging"
	"github.com/kirillkom/property-doc-engine/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithEngineMetrics(httpMetrics.Engine),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:   app.IngestUC,
		Documents:  app.Documents,
		Classifier: app.Classifier,
		Extractor:  app.Extractor,
		TestRunner: app.TestRunner,
		Suggester:  app.Suggester,
	}, httpadapter.WithMetrics(httpMetrics))

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.APIReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.APIShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
