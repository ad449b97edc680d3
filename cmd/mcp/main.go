package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/property-doc-engine/internal/adapters/mcp"
	"github.com/kirillkom/property-doc-engine/internal/bootstrap"
	"github.com/kirillkom/property-doc-engine/internal/config"
	"github.com/kirillkom/property-doc-engine/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithoutQueue(),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(version, mcpadapter.Services{
		Classifier: app.Classifier,
		Extractor:  app.Extractor,
		TestRunner: app.TestRunner,
		Suggester:  app.Suggester,
		Documents:  app.Documents,
	}, logger)

	logger.Info("mcp_stdio_started", "version", version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_stdio_failed", "error", err)
	}
}
