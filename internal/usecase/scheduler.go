package usecase

import (
	"context"
	"log/slog"
	"time"

	"RegIngest/internal/catalog"
	"RegIngest/internal/ports"
)

// Scheduler wires the interval driver with the ingest orchestrator.
type Scheduler struct {
	driver       ports.Scheduler
	orchestrator *IngestJobOrchestrator
	organization string
	sources      []catalog.Source
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring ingestion of sources for one organization.
func NewScheduler(driver ports.Scheduler, orchestrator *IngestJobOrchestrator, organizationID string, sources []catalog.Source, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		driver:       driver,
		orchestrator: orchestrator,
		organization: organizationID,
		sources:      sources,
		logger:       log,
	}
}

// Start registers the batch run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.orchestrator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled ingest triggered", "at", trigger, "sources", len(s.sources))
		results, err := s.orchestrator.RunAll(ctx, s.organization, s.sources)
		if err != nil {
			s.logger.Error("scheduled ingest finished with failures", "runs", len(results), "err", err)
			return
		}
		s.logger.Info("scheduled ingest finished", "runs", len(results))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
