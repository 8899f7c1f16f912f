package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"RegIngest/internal/catalog"
	"RegIngest/internal/domain"
	"RegIngest/internal/metrics"
	"RegIngest/internal/ports"
)

const (
	finalizeTimeout  = 10 * time.Second
	maxLoggedFailure = 50
)

// ErrMissingOrganization is returned when a mutating run has no tenant.
var ErrMissingOrganization = errors.New("organization id is required")

// Pricing converts token usage into an estimated cost.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Estimate returns the USD cost of usage.
func (p Pricing) Estimate(u domain.Usage) float64 {
	return float64(u.InputTokens)*p.InputPerMillion/1e6 + float64(u.OutputTokens)*p.OutputPerMillion/1e6
}

// IngestDeps wires all driven adapters into the orchestrator.
type IngestDeps struct {
	Fetcher   ports.SourceFetcher
	Extractor ports.ProvisionExtractor
	Enricher  *BatchEnricher
	Gateway   *PersistenceGateway
	Jobs      ports.JobStore
	Notifier  ports.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	Batch   BatchOptions
	Pricing Pricing

	Now   func() time.Time
	NewID func() string
}

// IngestJobOrchestrator owns one end-to-end run: job record, fetch, extract,
// enrich, persist and finalization.
type IngestJobOrchestrator struct {
	fetcher   ports.SourceFetcher
	extractor ports.ProvisionExtractor
	enricher  *BatchEnricher
	gateway   *PersistenceGateway
	jobs      ports.JobStore
	notifier  ports.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	batch     BatchOptions
	pricing   Pricing
	now       func() time.Time
	newID     func() string
}

// NewIngestJobOrchestrator constructs the orchestration component.
func NewIngestJobOrchestrator(deps IngestDeps) *IngestJobOrchestrator {
	o := &IngestJobOrchestrator{
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		enricher:  deps.Enricher,
		gateway:   deps.Gateway,
		jobs:      deps.Jobs,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		batch:     deps.Batch,
		pricing:   deps.Pricing,
		now:       deps.Now,
		newID:     deps.NewID,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// RunRequest selects the tenant and the regulation to ingest.
type RunRequest struct {
	OrganizationID string
	Source         catalog.Source
	OnProgress     func(stage string, done, total int)
}

// Run executes one ingest job. Enrichment failures do not fail the job; they
// are counted in the stats and the job log. Any other failure finishes the job
// as failed and is returned as a *domain.JobError.
func (o *IngestJobOrchestrator) Run(ctx context.Context, req RunRequest) (domain.RunStats, error) {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return domain.RunStats{}, ErrMissingOrganization
	}

	src := req.Source
	started := o.now()
	job := domain.IngestJob{
		ID:             o.newID(),
		OrganizationID: req.OrganizationID,
		Source:         src.Key,
		SourceURL:      src.URL,
		Status:         domain.JobRunning,
		StartedAt:      started,
	}
	stats := domain.RunStats{JobID: job.ID, RegulationID: src.Key, Status: domain.JobRunning}
	logger := o.logger.With("job", job.ID, "regulation", src.Key, "org", req.OrganizationID)

	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return stats, &domain.JobError{JobID: job.ID, Stage: domain.StageStart, Err: err}
	}
	logger.Info("ingest job started", "url", src.URL)

	fail := func(stage domain.JobStage, err error) (domain.RunStats, error) {
		return o.fail(ctx, logger, job, stats, stage, err)
	}

	doc, err := o.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return fail(domain.StageFetch, err)
	}

	provisions, err := o.extractor.Extract(doc.RawMarkup, src.Key)
	if err != nil {
		return fail(domain.StageExtract, err)
	}
	stats.Provisions = len(provisions)
	if len(provisions) == 0 {
		logger.Warn("extraction produced no provisions", "err", domain.ErrNoProvisions)
		stats.Warnings = append(stats.Warnings, domain.ErrNoProvisions.Error())
	}

	batchOpts := o.batch
	batchOpts.OnProgress = stageProgress(req.OnProgress, "enrich")
	batch, err := o.enricher.EnrichAll(ctx, provisions, src.Name, batchOpts)
	if err != nil {
		return fail(domain.StageEnrich, err)
	}
	stats.Enriched = len(batch.Enriched)
	stats.Failed = len(batch.Failed)
	stats.Failures = summarizeFailures(batch.Failed)
	stats.Usage = batch.Usage
	stats.EstimatedCostUSD = o.pricing.Estimate(batch.Usage)
	o.metrics.AddTokens(batch.Usage.InputTokens, batch.Usage.OutputTokens)
	if stats.Failed > 0 {
		logger.Warn("some provisions failed enrichment", "failed", stats.Failed, "enriched", stats.Enriched)
	}

	opts := domain.ProvenanceOptions{
		IngestJobID:    job.ID,
		OrganizationID: req.OrganizationID,
		Timestamp:      o.now(),
	}
	stats.RegulationInserted, err = o.gateway.UpsertRegulation(ctx, regulationFromSource(src), opts)
	if err != nil {
		return fail(domain.StagePersist, err)
	}

	stats.Persist, err = o.gateway.BatchUpsertArticles(ctx, batch.Enriched, opts, stageProgress(req.OnProgress, "persist"))
	if err != nil {
		return fail(domain.StagePersist, err)
	}
	o.metrics.AddArticles(stats.Persist.ArticlesInserted, stats.Persist.ArticlesUpdated,
		stats.Persist.ArticlesUnchanged, stats.Persist.ObligationsInserted)

	finished := o.now()
	stats.Status = domain.JobSucceeded
	stats.Duration = finished.Sub(started)
	job.Status = domain.JobSucceeded
	job.FinishedAt = &finished
	job.Log = stats.LogJSON()

	if err := o.jobs.FinishJob(ctx, job); err != nil {
		return fail(domain.StageFinalize, err)
	}

	o.metrics.ObserveJob(string(job.Status), stats.Duration)
	logger.Info("ingest job succeeded",
		"provisions", stats.Provisions,
		"enriched", stats.Enriched,
		"failed", stats.Failed,
		"articles_inserted", stats.Persist.ArticlesInserted,
		"articles_updated", stats.Persist.ArticlesUpdated,
		"articles_unchanged", stats.Persist.ArticlesUnchanged,
		"obligations_inserted", stats.Persist.ObligationsInserted,
		"cost_usd", stats.EstimatedCostUSD)
	o.notify(ctx, logger, buildJobSummary(src.Key, stats, ""))

	return stats, nil
}

// fail finishes the job as failed. The write uses a fresh context so a
// cancelled run does not stay running.
func (o *IngestJobOrchestrator) fail(ctx context.Context, logger *slog.Logger, job domain.IngestJob, stats domain.RunStats, stage domain.JobStage, cause error) (domain.RunStats, error) {
	finished := o.now()
	stats.Status = domain.JobFailed
	stats.Duration = finished.Sub(job.StartedAt)

	job.Status = domain.JobFailed
	job.FinishedAt = &finished
	job.ErrorMessage = cause.Error()
	job.Log = stats.LogJSON()

	jobErr := &domain.JobError{JobID: job.ID, Stage: stage, Err: cause}
	logger.Error("ingest job failed", "stage", stage, "err", cause)

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.jobs.FinishJob(finalizeCtx, job); err != nil {
		logger.Error("could not mark job failed", "err", err)
		return stats, errors.Join(jobErr, fmt.Errorf("finish job: %w", err))
	}

	o.metrics.ObserveJob(string(job.Status), stats.Duration)
	o.notify(finalizeCtx, logger, buildJobSummary(job.Source, stats, cause.Error()))
	return stats, jobErr
}

// RunAll ingests every source sequentially, one job each, continuing past failures.
func (o *IngestJobOrchestrator) RunAll(ctx context.Context, organizationID string, sources []catalog.Source) ([]domain.RunStats, error) {
	var (
		results []domain.RunStats
		errs    []error
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		stats, err := o.Run(ctx, RunRequest{OrganizationID: organizationID, Source: src})
		results = append(results, stats)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Key, err))
		}
	}
	return results, errors.Join(errs...)
}

// ReconcileStale fails running jobs that started more than olderThan ago.
func (o *IngestJobOrchestrator) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("stale cutoff must be positive, got %s", olderThan)
	}
	cutoff := o.now().Add(-olderThan)
	n, err := o.jobs.FailStaleJobs(ctx, cutoff, StaleJobMessage(olderThan))
	if err != nil {
		return n, fmt.Errorf("reconcile stale jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn("stale ingest jobs failed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// StaleJobMessage is the error recorded on jobs failed by reconciliation.
func StaleJobMessage(olderThan time.Duration) string {
	return fmt.Sprintf("marked failed by reconciliation: still running after %s", olderThan)
}

// Jobs returns the recent jobs of an organization.
func (o *IngestJobOrchestrator) Jobs(ctx context.Context, organizationID string, limit int) ([]domain.JobStatusView, error) {
	return o.jobs.ListJobs(ctx, organizationID, limit)
}

func (o *IngestJobOrchestrator) notify(ctx context.Context, logger *slog.Logger, summary string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishJobSummary(ctx, summary); err != nil {
		logger.Warn("job summary not delivered", "err", err)
	}
}

func regulationFromSource(src catalog.Source) domain.Regulation {
	return domain.Regulation{
		ID:            src.Key,
		Name:          src.Name,
		FullTitle:     src.FullTitle,
		Jurisdiction:  src.Jurisdiction,
		EffectiveDate: src.EffectiveDate,
		SourceURL:     src.URL,
	}
}

func summarizeFailures(failed []domain.FailedProvision) []domain.FailureSummary {
	if len(failed) == 0 {
		return nil
	}
	n := len(failed)
	if n > maxLoggedFailure {
		n = maxLoggedFailure
	}
	out := make([]domain.FailureSummary, 0, n)
	for _, f := range failed[:n] {
		out = append(out, domain.FailureSummary{
			ProvisionID: f.Provision.ID,
			Number:      f.Provision.Number,
			Error:       f.Error,
		})
	}
	return out
}

func stageProgress(fn func(stage string, done, total int), stage string) func(done, total int) {
	if fn == nil {
		return nil
	}
	return func(done, total int) { fn(stage, done, total) }
}
