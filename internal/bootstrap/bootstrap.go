package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/property-doc-engine/internal/config"
	"github.com/kirillkom/property-doc-engine/internal/core/engine"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
	"github.com/kirillkom/property-doc-engine/internal/core/usecase"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/extractor"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/repository/rulefile"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/property-doc-engine/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository

	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	Classifier ports.Classifier
	Extractor  ports.FieldExtractor
	TestRunner ports.TestRunner
	Suggester  ports.Suggester

	closeFn []func()
}

type Option func(*options)

type options struct {
	logger    *slog.Logger
	engine    *metrics.EngineMetrics
	skipQueue bool
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEngineMetrics instruments the classifier, the suggester and the
// resilience executor.
func WithEngineMetrics(m *metrics.EngineMetrics) Option {
	return func(o *options) { o.engine = m }
}

// WithoutQueue skips the NATS connection; uploads are then unavailable.
func WithoutQueue() Option {
	return func(o *options) { o.skipQueue = true }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg}

	engine.ConfigurePatternCache(cfg.RegexCacheTTL)
	policy := resilienceConfig(cfg)
	publishExec := newExecutor(policy, o)
	readExec := newExecutor(policy.ReadPath(), o)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFn = append(app.closeFn, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	docs := postgres.NewDocumentRepository(db)
	app.Documents = docs

	rules, properties, categories := ruleSources(cfg, db, readExec, o.logger)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	classifyUC := usecase.NewClassifyUseCase(rules, cfg.ClassifierTopN)
	classifier := metrics.InstrumentClassifier(classifyUC, o.engine)
	app.Classifier = classifier
	app.Extractor = usecase.NewExtractUseCase(rules)
	app.TestRunner = usecase.NewTestRunUseCase(rules, cfg.ClassifierTopN)
	app.Suggester = metrics.InstrumentSuggester(
		usecase.NewSuggestUseCase(docs, rules, properties, categories, o.logger),
		o.engine,
	)

	textExtractor := extractor.NewRouter(storage, cfg.MaxDocumentBytes, extractor.StandardRoutes(cfg.PDFMaxPages)...)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(docs, textExtractor, classifier)

	if o.skipQueue {
		return app, nil
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: publishExec,
		Logger:             o.logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closeFn = append(app.closeFn, queue.Close)
	app.Queue = queue
	app.IngestUC = usecase.NewIngestDocumentUseCase(docs, storage, queue)

	return app, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerOpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
	}
}

func newExecutor(policy resilience.Config, o options) *resilience.Executor {
	executorOpts := []resilience.Option{resilience.WithLogger(o.logger)}
	if o.engine != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(o.engine))
	}
	return resilience.NewExecutor(policy, executorOpts...)
}

// ruleSources picks the YAML snapshot when one is configured, Postgres
// otherwise. Both are read fresh on every request.
func ruleSources(cfg config.Config, db *sql.DB, executor *resilience.Executor, logger *slog.Logger) (ports.RuleStore, ports.PropertyDirectory, ports.CategoryDirectory) {
	if cfg.RuleSnapshotPath != "" {
		logger.Info("rule_store_selected", "kind", "snapshot", "path", cfg.RuleSnapshotPath)
		store := rulefile.NewStore(cfg.RuleSnapshotPath)
		return store, store, store
	}
	directory := postgres.NewDirectoryRepository(db, executor)
	return postgres.NewRuleRepository(db, executor), directory, directory
}

func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}
