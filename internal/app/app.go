package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tmc/langchaingo/llms"

	"RegIngest/internal/catalog"
	"RegIngest/internal/config"
	"RegIngest/internal/domain"
	"RegIngest/internal/infrastructure/fetcher"
	"RegIngest/internal/infrastructure/llm"
	"RegIngest/internal/infrastructure/parser"
	"RegIngest/internal/infrastructure/scheduler"
	"RegIngest/internal/infrastructure/storage"
	"RegIngest/internal/infrastructure/telegram"
	"RegIngest/internal/logging"
	"RegIngest/internal/metrics"
	"RegIngest/internal/ports"
	"RegIngest/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Option customizes Application construction.
type Option func(*Application)

// WithModel injects a ready model handle instead of building one from config.
func WithModel(model llms.Model) Option {
	return func(a *Application) { a.model = model }
}

// WithHTTPClient sets the client used to fetch regulation sources.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Application) { a.httpClient = client }
}

// WithNotifier overrides the configured job-summary notifier.
func WithNotifier(n ports.Notifier) Option {
	return func(a *Application) { a.notifier = n }
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	catalog    *catalog.Registry
	store      ports.Store
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	model      llms.Model
	httpClient *http.Client
	notifier   ports.Notifier

	once         sync.Once
	orchestrator *usecase.IngestJobOrchestrator
	buildErr     error
}

// New opens the store and the catalog. The enrichment model is built on first
// use so read-only commands work without model credentials.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry, err := catalog.FromConfig(cfg.Regulations)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		catalog:  registry,
		store:    store,
		registry: promRegistry,
		metrics:  metrics.New(promRegistry),
	}
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		a.notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}

// Sources lists the catalog.
func (a *Application) Sources() []catalog.Source {
	return a.catalog.List()
}

// RunOne ingests a single regulation by catalog key.
func (a *Application) RunOne(ctx context.Context, organizationID, key string, onProgress func(stage string, done, total int)) (domain.RunStats, error) {
	src, err := a.catalog.Resolve(key)
	if err != nil {
		return domain.RunStats{}, err
	}
	orchestrator, err := a.ingest()
	if err != nil {
		return domain.RunStats{}, err
	}
	return orchestrator.Run(ctx, usecase.RunRequest{OrganizationID: organizationID, Source: src, OnProgress: onProgress})
}

// RunAll ingests every catalog entry sequentially.
func (a *Application) RunAll(ctx context.Context, organizationID string) ([]domain.RunStats, error) {
	if organizationID == "" {
		return nil, usecase.ErrMissingOrganization
	}
	orchestrator, err := a.ingest()
	if err != nil {
		return nil, err
	}
	return orchestrator.RunAll(ctx, organizationID, a.catalog.List())
}

// Jobs returns the organization's most recent jobs.
func (a *Application) Jobs(ctx context.Context, organizationID string, limit int) ([]domain.JobStatusView, error) {
	return a.store.ListJobs(ctx, organizationID, limit)
}

// ReconcileStale fails jobs left running longer than olderThan. It only
// touches the job store, so it works without model credentials.
func (a *Application) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("stale cutoff must be positive, got %s", olderThan)
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := a.store.FailStaleJobs(ctx, cutoff, usecase.StaleJobMessage(olderThan))
	if err != nil {
		return n, fmt.Errorf("reconcile stale jobs: %w", err)
	}
	if n > 0 {
		a.logger.Warn("stale ingest jobs failed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Daemon re-ingests the whole catalog on the configured interval and serves
// /metrics until ctx is cancelled.
func (a *Application) Daemon(ctx context.Context, organizationID string) error {
	if organizationID == "" {
		return usecase.ErrMissingOrganization
	}
	orchestrator, err := a.ingest()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("metrics endpoint listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, orchestrator, organizationID, a.catalog.List(), a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("daemon started", "interval", a.cfg.Scheduler.Interval, "org", organizationID)

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "err", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics server shutdown", "err", err)
	}
	return runErr
}

func (a *Application) ingest() (*usecase.IngestJobOrchestrator, error) {
	a.once.Do(func() {
		model := a.model
		if model == nil {
			model, a.buildErr = llm.NewModel(a.cfg.Enrichment)
			if a.buildErr != nil {
				a.buildErr = fmt.Errorf("build enrichment model: %w", a.buildErr)
				return
			}
		}

		ec := a.cfg.Enrichment
		client := llm.NewEnrichmentClient(model, llm.ClientOptions{
			MaxTokens:      ec.MaxTokens,
			JSONMode:       ec.JSONMode,
			MaxRetries:     ec.MaxRetries,
			RetryBaseDelay: ec.RetryBaseDelay,
		}, a.logger.With("component", "enrichment"))

		fc := a.cfg.Fetcher
		a.orchestrator = usecase.NewIngestJobOrchestrator(usecase.IngestDeps{
			Fetcher: fetcher.NewHTTPFetcher(a.httpClient, fetcher.Options{
				UserAgent:      fc.UserAgent,
				AcceptLanguage: fc.AcceptLanguage,
				Timeout:        fc.Timeout,
				MaxBodyBytes:   fc.MaxBodyBytes,
			}, a.logger.With("component", "fetcher")),
			Extractor: parser.NewProvisionExtractor(a.logger.With("component", "extractor")),
			Enricher:  usecase.NewBatchEnricher(client, a.metrics, a.logger.With("component", "batch")),
			Gateway:   usecase.NewPersistenceGateway(a.store, a.logger.With("component", "persistence")),
			Jobs:      a.store,
			Notifier:  a.notifier,
			Metrics:   a.metrics,
			Logger:    a.logger.With("component", "ingest"),
			Batch: usecase.BatchOptions{
				Concurrency:     ec.Concurrency,
				InterBatchDelay: ec.InterBatchDelay,
			},
			Pricing: usecase.Pricing{
				InputPerMillion:  ec.InputCostPerMillion,
				OutputPerMillion: ec.OutputCostPerMillion,
			},
		})
	})
	return a.orchestrator, a.buildErr
}
