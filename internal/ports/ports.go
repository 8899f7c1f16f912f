package ports

import (
	"context"
	"time"

	"RegIngest/internal/domain"
)

// SourceFetcher retrieves a regulation page by URL.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) (domain.SourceDocument, error)
}

// ProvisionExtractor turns fetched markup into ordered provisions.
type ProvisionExtractor interface {
	Extract(markup, regulationID string) ([]domain.Provision, error)
}

// Enricher runs one enrichment call for a single provision.
type Enricher interface {
	Enrich(ctx context.Context, provision domain.Provision, regulationName string) (domain.Enrichment, error)
}

// RegulationStore is the relational-store contract for regulation content.
// Every lookup is scoped to an organization.
type RegulationStore interface {
	FindRegulation(ctx context.Context, organizationID, id string) (domain.Regulation, bool, error)
	InsertRegulation(ctx context.Context, regulation domain.Regulation) error
	UpdateRegulation(ctx context.Context, regulation domain.Regulation) error

	FindArticle(ctx context.Context, organizationID, id string) (domain.Article, bool, error)
	InsertArticle(ctx context.Context, article domain.Article) error
	UpdateArticle(ctx context.Context, article domain.Article) error

	ObligationExists(ctx context.Context, organizationID, id string) (bool, error)
	// InsertObligation inserts the row unless its id already exists and reports whether it did.
	InsertObligation(ctx context.Context, obligation domain.Obligation) (bool, error)
}

// JobStore persists ingest job lifecycle records.
type JobStore interface {
	CreateJob(ctx context.Context, job domain.IngestJob) error
	FinishJob(ctx context.Context, job domain.IngestJob) error
	GetJob(ctx context.Context, organizationID, id string) (domain.JobStatusView, bool, error)
	ListJobs(ctx context.Context, organizationID string, limit int) ([]domain.JobStatusView, error)
	FailStaleJobs(ctx context.Context, startedBefore time.Time, message string) (int, error)
}

// Store bundles both persistence contracts behind one handle.
type Store interface {
	RegulationStore
	JobStore
	Close() error
}

// Notifier posts finished-job summaries to an outbound channel.
type Notifier interface {
	PublishJobSummary(ctx context.Context, summary string) error
}

// Scheduler controls when batch runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
