package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	httpadapter "github.com/dkotenko/document-intake/internal/adapters/http"
	"github.com/dkotenko/document-intake/internal/config"
	"github.com/dkotenko/document-intake/internal/core/ports"
	"github.com/dkotenko/document-intake/internal/core/usecase"
	"github.com/dkotenko/document-intake/internal/export"
	"github.com/dkotenko/document-intake/internal/infrastructure/extractor/localtext"
	"github.com/dkotenko/document-intake/internal/infrastructure/inference/docai"
	"github.com/dkotenko/document-intake/internal/infrastructure/queue/nats"
	"github.com/dkotenko/document-intake/internal/infrastructure/repository/postgres"
	"github.com/dkotenko/document-intake/internal/infrastructure/resilience"
	"github.com/dkotenko/document-intake/internal/infrastructure/storage/localfs"
	"github.com/dkotenko/document-intake/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue      *nats.Queue
	Source     ports.DocumentSource
	ProcessUC  *usecase.ProcessDocumentUseCase
	BatchUC    *usecase.BatchRunUseCase
	RegistryUC *usecase.ClassRegistryUseCase
	UploadUC   *usecase.UploadDocumentUseCase
	HistoryUC  *usecase.HistoryQueryUseCase

	// APIHandler serves the whole HTTP surface including /metrics.
	APIHandler http.Handler
	// MetricsHandler is the bare scrape endpoint for the worker process.
	MetricsHandler http.Handler

	closeFn func()
}

// New wires every adapter behind the use cases. The service name labels
// metrics so api and worker series stay distinguishable.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	classRepo := postgres.NewClassRepository(db)
	resultRepo := postgres.NewResultRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	policy := resilience.DefaultPolicy()
	policy.RetryMaxAttempts = cfg.RetryMaxAttempts
	policy.RetryInitialBackoff = cfg.RetryInitialBackoff
	policy.RetryMaxBackoff = cfg.RetryMaxBackoff
	policy.RetryMultiplier = cfg.RetryMultiplier
	policy.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(policy)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	gateway := docai.New(docai.Options{
		BaseURL:     cfg.InferenceURL,
		Model:       cfg.InferenceModel,
		CallTimeout: cfg.InferenceTimeout,
		RateLimit:   cfg.InferenceRateLimit,
		RateBurst:   cfg.InferenceRateBurst,
	}, executor)
	extractor := localtext.New()

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	pipelineMetrics := metrics.NewPipelineMetrics(service, httpMetrics.Registry())

	processUC := usecase.NewProcessDocumentUseCase(
		classRepo,
		storage,
		gateway,
		extractor,
		resultRepo,
		pipelineMetrics,
		usecase.PipelineOptions{
			FallbackClass:       cfg.FallbackClass,
			AutoSeedClasses:     cfg.AutoSeedClasses,
			SummaryMaxChars:     cfg.SummaryMaxChars,
			MarkFailedProcessed: cfg.MarkFailedProcessed,
		},
	)
	batchUC := usecase.NewBatchRunUseCase(
		processUC,
		classRepo,
		storage,
		resultRepo,
		nil,
		pipelineMetrics,
		usecase.BatchOptions{DefaultConcurrency: cfg.BatchConcurrency},
	)
	registryUC := usecase.NewClassRegistryUseCase(classRepo, batchUC.Guard())
	uploadUC := usecase.NewUploadDocumentUseCase(storage, resultRepo, queue, cfg.UploadArea)
	historyUC := usecase.NewHistoryQueryUseCase(resultRepo)
	exportSvc := export.NewService(resultRepo, slog.Default())

	router := httpadapter.NewRouter(
		cfg,
		registryUC,
		uploadUC,
		processUC,
		batchUC,
		historyUC,
		exportSvc,
		storage,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", httpMetrics.Middleware(service, router.Handler()))

	return &App{
		Config: cfg,

		Queue:      queue,
		Source:     storage,
		ProcessUC:  processUC,
		BatchUC:    batchUC,
		RegistryUC: registryUC,
		UploadUC:   uploadUC,
		HistoryUC:  historyUC,

		APIHandler:     mux,
		MetricsHandler: pipelineMetrics.Handler(),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
