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

	"github.com/kirillkom/property-doc-engine/internal/bootstrap"
	"github.com/kirillkom/property-doc-engine/internal/config"
	"github.com/kirillkom/property-doc-engine/internal/observability/logging"
	"github.com/kirillkom/property-doc-engine/internal/observability/metrics"
)

const processTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithEngineMetrics(workerMetrics.Engine),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		if doc, err := app.Documents.GetByID(processCtx, documentID); err == nil {
			workerMetrics.ObserveQueueLag("worker", time.Since(doc.CreatedAt))
		}

		start := time.Now()
		workerMetrics.StartDocument()
		err := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument("worker", time.Since(start), err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
