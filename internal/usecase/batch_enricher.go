package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"RegIngest/internal/domain"
	"RegIngest/internal/metrics"
	"RegIngest/internal/ports"
)

const (
	defaultConcurrency     = 3
	defaultInterBatchDelay = 250 * time.Millisecond
)

// BatchOptions tunes one EnrichAll call. A negative InterBatchDelay disables pacing.
type BatchOptions struct {
	Concurrency     int
	InterBatchDelay time.Duration
	OnProgress      func(done, total int)
}

// BatchResult holds successes and failures in input order.
type BatchResult struct {
	Enriched []domain.EnrichedProvision
	Failed   []domain.FailedProvision
	Usage    domain.Usage
}

// BatchEnricher drives an Enricher over many provisions in fixed-size chunks.
type BatchEnricher struct {
	enricher ports.Enricher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBatchEnricher wires the enricher; m and log may be nil.
func NewBatchEnricher(enricher ports.Enricher, m *metrics.Metrics, log *slog.Logger) *BatchEnricher {
	if log == nil {
		log = slog.Default()
	}
	return &BatchEnricher{enricher: enricher, metrics: m, logger: log}
}

type itemResult struct {
	enrichment domain.Enrichment
	err        error
}

// EnrichAll enriches every provision. Per-item failures are returned as data in
// BatchResult.Failed; the only error is a cancelled context, returned together
// with whatever was collected before it.
func (b *BatchEnricher) EnrichAll(ctx context.Context, provisions []domain.Provision, contextName string, opts BatchOptions) (BatchResult, error) {
	result := BatchResult{
		Enriched: []domain.EnrichedProvision{},
		Failed:   []domain.FailedProvision{},
	}
	if len(provisions) == 0 {
		return result, nil
	}

	size := opts.Concurrency
	if size <= 0 {
		size = defaultConcurrency
	}
	delay := opts.InterBatchDelay
	if delay == 0 {
		delay = defaultInterBatchDelay
	}

	pool, err := ants.NewPool(size)
	if err != nil {
		return result, fmt.Errorf("create enrichment pool: %w", err)
	}
	defer pool.Release()

	total := len(provisions)
	for start := 0; start < total; start += size {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + size
		if end > total {
			end = total
		}
		chunk := provisions[start:end]

		for i, res := range b.runChunk(ctx, pool, chunk, contextName) {
			b.collect(&result, chunk[i], res)
		}

		b.logger.Debug("enrichment chunk done", "done", end, "total", total, "failed", len(result.Failed))
		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}

		if end < total && delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// runChunk issues one call per provision and waits for all of them. Results are
// indexed by position, not completion order.
func (b *BatchEnricher) runChunk(ctx context.Context, pool *ants.Pool, chunk []domain.Provision, contextName string) []itemResult {
	results := make([]itemResult, len(chunk))

	var wg sync.WaitGroup
	for i := range chunk {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			enrichment, err := b.enricher.Enrich(ctx, chunk[i], contextName)
			results[i] = itemResult{enrichment: enrichment, err: err}
		})
		if err != nil {
			wg.Done()
			results[i] = itemResult{err: fmt.Errorf("submit enrichment: %w", err)}
		}
	}
	wg.Wait()

	return results
}

func (b *BatchEnricher) collect(result *BatchResult, provision domain.Provision, res itemResult) {
	if res.err != nil {
		b.logger.Warn("enrichment failed", "provision", provision.ID, "err", res.err)
		b.metrics.IncrementEnrichment(failureOutcome(res.err))
		result.Failed = append(result.Failed, domain.FailedProvision{
			Provision: provision,
			Error:     res.err.Error(),
		})
		return
	}

	b.metrics.IncrementEnrichment("enriched")
	result.Enriched = append(result.Enriched, res.enrichment.Provision)
	result.Usage = result.Usage.Add(res.enrichment.Usage)
}

func failureOutcome(err error) string {
	var enrichErr *domain.EnrichmentError
	if errors.As(err, &enrichErr) {
		return string(enrichErr.Kind)
	}
	return "error"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
