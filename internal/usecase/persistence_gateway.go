package usecase

import (
	"context"
	"log/slog"

	"RegIngest/internal/domain"
	"RegIngest/internal/ports"
)

// ArticleResult reports what UpsertArticle did with one enriched provision.
type ArticleResult struct {
	Inserted            bool
	Updated             bool
	Unchanged           bool
	ObligationsInserted int
}

// PersistenceGateway writes regulations, articles and obligations idempotently.
// All writes within one call are sequential.
type PersistenceGateway struct {
	store  ports.RegulationStore
	logger *slog.Logger
}

func NewPersistenceGateway(store ports.RegulationStore, log *slog.Logger) *PersistenceGateway {
	if log == nil {
		log = slog.Default()
	}
	return &PersistenceGateway{store: store, logger: log}
}

// UpsertRegulation inserts the regulation or overwrites its content and
// provenance. It reports whether a new row was created.
func (g *PersistenceGateway) UpsertRegulation(ctx context.Context, reg domain.Regulation, opts domain.ProvenanceOptions) (bool, error) {
	reg.OrganizationID = opts.OrganizationID
	reg.IngestJobID = opts.IngestJobID
	reg.IngestTime = opts.Timestamp

	_, found, err := g.store.FindRegulation(ctx, opts.OrganizationID, reg.ID)
	if err != nil {
		return false, &domain.PersistenceError{Op: "find", Entity: "regulation", ID: reg.ID, Err: err}
	}
	if found {
		if err := g.store.UpdateRegulation(ctx, reg); err != nil {
			return false, &domain.PersistenceError{Op: "update", Entity: "regulation", ID: reg.ID, Err: err}
		}
		return false, nil
	}

	if err := g.store.InsertRegulation(ctx, reg); err != nil {
		return false, &domain.PersistenceError{Op: "insert", Entity: "regulation", ID: reg.ID, Err: err}
	}
	return true, nil
}

// UpsertArticle writes one enriched provision and its obligations. An article
// whose checksum matches the stored row is not rewritten, but its missing
// obligations are still created so an interrupted earlier run heals.
// Obligations are insert-only: existing ids are never rewritten.
func (g *PersistenceGateway) UpsertArticle(ctx context.Context, ep domain.EnrichedProvision, opts domain.ProvenanceOptions) (ArticleResult, error) {
	article := articleFromProvision(ep, opts)

	existing, found, err := g.store.FindArticle(ctx, opts.OrganizationID, article.ID)
	if err != nil {
		return ArticleResult{}, &domain.PersistenceError{Op: "find", Entity: "article", ID: article.ID, Err: err}
	}

	var res ArticleResult
	switch {
	case found && existing.Checksum == article.Checksum:
		res.Unchanged = true
	case found:
		if err := g.store.UpdateArticle(ctx, article); err != nil {
			return ArticleResult{}, &domain.PersistenceError{Op: "update", Entity: "article", ID: article.ID, Err: err}
		}
		res.Updated = true
	default:
		if err := g.store.InsertArticle(ctx, article); err != nil {
			return ArticleResult{}, &domain.PersistenceError{Op: "insert", Entity: "article", ID: article.ID, Err: err}
		}
		res.Inserted = true
	}

	ids := domain.ObligationIDs(article.ID, ep.Obligations)
	for i, draft := range ep.Obligations {
		obligation := domain.Obligation{
			ID:             ids[i],
			OrganizationID: opts.OrganizationID,
			ArticleID:      article.ID,
			Title:          draft.Title,
			Summary:        draft.Description,
			Status:         domain.ObligationPending,
		}

		exists, err := g.store.ObligationExists(ctx, opts.OrganizationID, obligation.ID)
		if err != nil {
			return res, &domain.PersistenceError{Op: "find", Entity: "obligation", ID: obligation.ID, Err: err}
		}
		if exists {
			continue
		}

		inserted, err := g.store.InsertObligation(ctx, obligation)
		if err != nil {
			return res, &domain.PersistenceError{Op: "insert", Entity: "obligation", ID: obligation.ID, Err: err}
		}
		if inserted {
			res.ObligationsInserted++
		}
	}

	return res, nil
}

// BatchUpsertArticles persists articles in order, stopping at the first failure.
// Counts accumulated before the failure are returned alongside the error.
func (g *PersistenceGateway) BatchUpsertArticles(ctx context.Context, provisions []domain.EnrichedProvision, opts domain.ProvenanceOptions, onProgress func(done, total int)) (domain.PersistStats, error) {
	var stats domain.PersistStats

	for i, ep := range provisions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := g.UpsertArticle(ctx, ep, opts)
		stats.ObligationsInserted += res.ObligationsInserted
		if err != nil {
			return stats, err
		}

		switch {
		case res.Inserted:
			stats.ArticlesInserted++
		case res.Updated:
			stats.ArticlesUpdated++
		case res.Unchanged:
			stats.ArticlesUnchanged++
		}

		if onProgress != nil {
			onProgress(i+1, len(provisions))
		}
	}

	g.logger.Debug("articles persisted",
		"inserted", stats.ArticlesInserted,
		"updated", stats.ArticlesUpdated,
		"unchanged", stats.ArticlesUnchanged,
		"obligations", stats.ObligationsInserted)
	return stats, nil
}

func articleFromProvision(ep domain.EnrichedProvision, opts domain.ProvenanceOptions) domain.Article {
	systemTypes := ep.SystemTypes
	if systemTypes == nil {
		systemTypes = []string{}
	}
	return domain.Article{
		ID:             ep.ID,
		OrganizationID: opts.OrganizationID,
		RegulationID:   ep.RegulationID,
		ArticleNumber:  ep.Number,
		SectionTitle:   ep.SectionTitle,
		RawText:        ep.FullText,
		AISummary:      ep.AISummary,
		RiskLevel:      ep.RiskLevel,
		SystemTypes:    systemTypes,
		Checksum:       domain.Checksum(ep.FullText, ep.AISummary),
		IngestJobID:    opts.IngestJobID,
		IngestTime:     opts.Timestamp,
	}
}
